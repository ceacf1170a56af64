// Package app wires the reader core: registry, chapter index, progress,
// access gate, settings, and content acquisition behind one entry point.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"riverreader/internal/content"
	"riverreader/internal/library"
	"riverreader/internal/metrics"
	"riverreader/internal/purchase"
	"riverreader/internal/settings"
	"riverreader/pkg/domain"
	"riverreader/pkg/kv"
)

var (
	// ErrBookNotFound means the registry has no book with the id.
	ErrBookNotFound = errors.New("book not found")
	// ErrChapterNotFound means the index has no chapter at the position.
	ErrChapterNotFound = errors.New("chapter not found")
	// ErrChapterLocked means the access gate denied the chapter.
	ErrChapterLocked = errors.New("chapter requires full access")
)

// Options carries the collaborators App does not build itself.
type Options struct {
	Store    kv.Store
	Client   purchase.TransactionClient
	Resolver *content.Resolver
	Content  *content.Service
	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// App is the reader application core.
type App struct {
	Registry  *library.Registry
	Chapters  *library.ChapterIndex
	Progress  *library.ProgressTracker
	Bookmarks *library.Bookmarks
	Gate      *purchase.Gate
	Settings  *settings.Store
	Resolver  *content.Resolver
	Content   *content.Service

	recorder metrics.Recorder
	log      *slog.Logger
}

// New loads all persisted state and wires the core together.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.Store == nil {
		return nil, errors.New("app requires a kv store")
	}
	if opts.Client == nil {
		opts.Client = purchase.NewMockClient()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	registry, err := library.NewRegistry(ctx, opts.Store)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	chapters, err := library.NewChapterIndex(ctx, opts.Store)
	if err != nil {
		return nil, fmt.Errorf("load chapter index: %w", err)
	}
	progress, err := library.NewProgressTracker(ctx, opts.Store)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	bookmarks, err := library.NewBookmarks(ctx, opts.Store)
	if err != nil {
		return nil, fmt.Errorf("load bookmarks: %w", err)
	}
	gate, err := purchase.NewGate(ctx, opts.Store, opts.Client)
	if err != nil {
		return nil, fmt.Errorf("load purchase state: %w", err)
	}
	prefs, err := settings.NewStore(ctx, opts.Store)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	return &App{
		Registry:  registry,
		Chapters:  chapters,
		Progress:  progress,
		Bookmarks: bookmarks,
		Gate:      gate,
		Settings:  prefs,
		Resolver:  opts.Resolver,
		Content:   opts.Content,
		recorder:  opts.Recorder,
		log:       opts.Logger,
	}, nil
}

// OnChapterIndexExtracted replaces the chapter list for a book. The viewer
// reports this after parsing content; each report replaces the previous
// list wholesale.
func (a *App) OnChapterIndexExtracted(ctx context.Context, bookID string, chapters []domain.Chapter) error {
	return a.Chapters.SetChapters(ctx, bookID, chapters)
}

// OnProgressReported records a position update from the viewer. Later
// reports win regardless of position direction.
func (a *App) OnProgressReported(ctx context.Context, bookID, chapterID string, position float64) error {
	if position < 0 {
		position = 0
	}
	if position > 1 {
		position = 1
	}
	return a.Progress.RecordProgress(ctx, bookID, chapterID, position)
}

// OpenBook resolves the book's content path and makes it the current book.
// The stored path goes through the resolver on every open, so a book whose
// downloaded file has since disappeared falls back to its bundled copy.
// Books with neither open without a local path; the viewer decides what to
// show for them.
func (a *App) OpenBook(ctx context.Context, id string) (domain.Book, error) {
	book, ok := a.Registry.GetBook(id)
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}

	if a.Resolver != nil {
		path, found, err := a.Resolver.Resolve(ctx, book.LanguageCode, book.LocalFilePath)
		if err != nil {
			return domain.Book{}, fmt.Errorf("resolve content: %w", err)
		}
		if found && path != book.LocalFilePath {
			downloaded := true
			update := domain.BookUpdate{LocalFilePath: &path, IsDownloaded: &downloaded}
			if err := a.Registry.UpdateBook(ctx, id, update); err != nil {
				return domain.Book{}, err
			}
			book, _ = a.Registry.GetBook(id)
		}
	}

	if err := a.Registry.SetCurrentBook(ctx, id); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// OpenChapter consults the access gate before handing out the chapter.
// Progress is not recorded here; it arrives through viewer events.
func (a *App) OpenChapter(bookID string, index int) (domain.Chapter, error) {
	if a.Gate.IsChapterLocked(index) {
		a.recorder.RecordChapterDenied()
		return domain.Chapter{}, ErrChapterLocked
	}
	chapters := a.Chapters.GetChapters(bookID)
	if index < 0 || index >= len(chapters) {
		return domain.Chapter{}, ErrChapterNotFound
	}
	return chapters[index], nil
}

// PurchaseFullAccess runs a purchase through the gate and records the
// outcome.
func (a *App) PurchaseFullAccess(ctx context.Context) bool {
	ok := a.Gate.PurchaseFullAccess(ctx)
	if ok {
		a.recorder.RecordPurchase("success")
	} else {
		a.recorder.RecordPurchase("failure")
	}
	return ok
}

// RestorePurchases runs a restore through the gate and records the outcome.
func (a *App) RestorePurchases(ctx context.Context) bool {
	ok := a.Gate.RestorePurchases(ctx)
	switch {
	case ok:
		a.recorder.RecordRestore("restored")
	case a.Gate.RestoreError() != "":
		a.recorder.RecordRestore("failure")
	default:
		a.recorder.RecordRestore("none")
	}
	return ok
}

// AddLanguage registers a manifest language as a not-yet-downloaded book.
// Re-adding a known language keeps its registry identity.
func (a *App) AddLanguage(ctx context.Context, lang domain.ManifestLanguage) (domain.Book, error) {
	book := domain.Book{
		ID:             lang.Code,
		Title:          lang.LocalName,
		LanguageCode:   lang.Code,
		ContentVersion: lang.Version,
	}
	if existing, ok := a.Registry.GetBook(lang.Code); ok {
		book.LocalFilePath = existing.LocalFilePath
		book.IsDownloaded = existing.IsDownloaded
	}
	if err := a.Registry.AddBook(ctx, book); err != nil {
		return domain.Book{}, err
	}
	added, _ := a.Registry.GetBook(lang.Code)
	return added, nil
}

// DownloadLanguage acquires the language's content and flips the book to
// downloaded. The book is registered first when unknown.
func (a *App) DownloadLanguage(ctx context.Context, lang domain.ManifestLanguage, onProgress content.ProgressFunc) (domain.Book, error) {
	if a.Content == nil {
		return domain.Book{}, errors.New("content service not configured")
	}
	if _, ok := a.Registry.GetBook(lang.Code); !ok {
		if _, err := a.AddLanguage(ctx, lang); err != nil {
			return domain.Book{}, err
		}
	}

	path, err := a.Content.Download(ctx, lang, onProgress)
	if err != nil {
		a.recorder.RecordDownloadFailure(lang.Code)
		return domain.Book{}, fmt.Errorf("download %s: %w", lang.Code, err)
	}
	a.recorder.RecordDownloadSuccess(lang.Code)

	downloaded := true
	update := domain.BookUpdate{
		LocalFilePath:  &path,
		IsDownloaded:   &downloaded,
		ContentVersion: &lang.Version,
	}
	if err := a.Registry.UpdateBook(ctx, lang.Code, update); err != nil {
		return domain.Book{}, err
	}
	book, _ := a.Registry.GetBook(lang.Code)
	a.log.Info("language downloaded", "language", lang.Code, "path", path)
	return book, nil
}

// RemoveLanguage deletes downloaded content and the registry entry.
// Removing an unknown language is a no-op.
func (a *App) RemoveLanguage(ctx context.Context, code string) error {
	if a.Content != nil {
		if err := a.Content.Remove(code); err != nil {
			return fmt.Errorf("remove content: %w", err)
		}
	}
	return a.Registry.RemoveBook(ctx, code)
}
