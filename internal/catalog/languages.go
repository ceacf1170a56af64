// Package catalog manages the server-side language pack catalog and the
// manifest the reader downloads content from.
package catalog

// Language describes a translation the catalog accepts (ISO 639-1 code).
type Language struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	LocalName string `json:"localName"`
	RTL       bool   `json:"rtl,omitempty"`
}

// AvailableLanguages lists every language a pack may be uploaded for.
var AvailableLanguages = []Language{
	{Code: "en", Name: "English", LocalName: "English"},
	{Code: "ko", Name: "Korean", LocalName: "한국어"},
	{Code: "es", Name: "Spanish", LocalName: "Español"},
	{Code: "zh", Name: "Chinese", LocalName: "中文"},
	{Code: "ar", Name: "Arabic", LocalName: "العربية", RTL: true},
	{Code: "fr", Name: "French", LocalName: "Français"},
	{Code: "pt", Name: "Portuguese", LocalName: "Português"},
	{Code: "ru", Name: "Russian", LocalName: "Русский"},
	{Code: "hi", Name: "Hindi", LocalName: "हिन्दी"},
	{Code: "ja", Name: "Japanese", LocalName: "日本語"},
	{Code: "de", Name: "German", LocalName: "Deutsch"},
	{Code: "it", Name: "Italian", LocalName: "Italiano"},
	{Code: "vi", Name: "Vietnamese", LocalName: "Tiếng Việt"},
	{Code: "th", Name: "Thai", LocalName: "ไทย"},
	{Code: "id", Name: "Indonesian", LocalName: "Bahasa Indonesia"},
	{Code: "tr", Name: "Turkish", LocalName: "Türkçe"},
	{Code: "pl", Name: "Polish", LocalName: "Polski"},
	{Code: "uk", Name: "Ukrainian", LocalName: "Українська"},
	{Code: "nl", Name: "Dutch", LocalName: "Nederlands"},
	{Code: "he", Name: "Hebrew", LocalName: "עברית", RTL: true},
	{Code: "fa", Name: "Persian", LocalName: "فارسی", RTL: true},
	{Code: "ur", Name: "Urdu", LocalName: "اردو", RTL: true},
	{Code: "sw", Name: "Swahili", LocalName: "Kiswahili"},
	{Code: "am", Name: "Amharic", LocalName: "አማርኛ"},
}

// LanguageInfo looks up a language by code.
func LanguageInfo(code string) (Language, bool) {
	for _, lang := range AvailableLanguages {
		if lang.Code == code {
			return lang, true
		}
	}
	return Language{}, false
}

// IsRTL reports whether the language is written right to left.
func IsRTL(code string) bool {
	lang, ok := LanguageInfo(code)
	return ok && lang.RTL
}
