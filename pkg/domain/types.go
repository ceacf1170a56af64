package domain

import "time"

type Book struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Author         string    `json:"author"`
	LanguageCode   string    `json:"languageCode"`
	ContentVersion string    `json:"contentVersion"`
	LocalFilePath  string    `json:"localFilePath,omitempty"`
	CoverPath      string    `json:"coverPath,omitempty"`
	IsDownloaded   bool      `json:"isDownloaded"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// BookUpdate carries a partial book mutation; nil fields are left untouched.
type BookUpdate struct {
	Title          *string `json:"title,omitempty"`
	Author         *string `json:"author,omitempty"`
	ContentVersion *string `json:"contentVersion,omitempty"`
	LocalFilePath  *string `json:"localFilePath,omitempty"`
	CoverPath      *string `json:"coverPath,omitempty"`
	IsDownloaded   *bool   `json:"isDownloaded,omitempty"`
}

type ReadingProgress struct {
	BookID    string    `json:"bookId"`
	ChapterID string    `json:"chapterId"`
	Position  float64   `json:"position"` // 0.0 ~ 1.0
	UpdatedAt time.Time `json:"updatedAt"`
}

type Chapter struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Href  string `json:"href"`
}

// Receipt is the durable slice of purchase state. Purchased implies both
// PurchasedAt and TransactionID are set; unpurchased implies both are empty.
type Receipt struct {
	Purchased     bool       `json:"isPurchased"`
	PurchasedAt   *time.Time `json:"purchaseTimestamp,omitempty"`
	TransactionID string     `json:"transactionId,omitempty"`
}

type Bookmark struct {
	ID        string    `json:"id"`
	BookID    string    `json:"bookId"`
	ChapterID string    `json:"chapterId"`
	Position  float64   `json:"position"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type HighlightColor string

const (
	HighlightYellow HighlightColor = "yellow"
	HighlightGreen  HighlightColor = "green"
	HighlightBlue   HighlightColor = "blue"
	HighlightPink   HighlightColor = "pink"
)

type Highlight struct {
	ID          string         `json:"id"`
	BookID      string         `json:"bookId"`
	ChapterID   string         `json:"chapterId"`
	StartOffset int            `json:"startOffset"`
	EndOffset   int            `json:"endOffset"`
	Text        string         `json:"text"`
	Color       HighlightColor `json:"color"`
	Note        string         `json:"note,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type LanguagePack struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	LocalName string    `json:"localName"`
	File      string    `json:"file"`
	Size      string    `json:"size"`
	SizeBytes int64     `json:"sizeBytes"`
	Version   string    `json:"version"`
	RTL       bool      `json:"rtl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Manifest struct {
	Version   string             `json:"version"`
	UpdatedAt time.Time          `json:"updatedAt"`
	Languages []ManifestLanguage `json:"languages"`
}

type ManifestLanguage struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	LocalName string `json:"localName"`
	File      string `json:"file"`
	Size      string `json:"size"`
	Version   string `json:"version"`
	RTL       bool   `json:"rtl,omitempty"`
}

type Voice struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Language   string `json:"language"`
	Quality    string `json:"quality,omitempty"`
}
