package library

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"riverreader/internal/util"
	"riverreader/pkg/domain"
	"riverreader/pkg/kv"
)

const bookmarksKey = "bookmarks"

type bookmarksState struct {
	Bookmarks  []domain.Bookmark  `json:"bookmarks"`
	Highlights []domain.Highlight `json:"highlights"`
}

// Bookmarks stores reader bookmarks and text highlights.
type Bookmarks struct {
	store kv.Store

	mu    sync.Mutex
	state bookmarksState
	now   func() time.Time
}

// NewBookmarks loads persisted bookmarks and highlights.
func NewBookmarks(ctx context.Context, store kv.Store) (*Bookmarks, error) {
	b := &Bookmarks{store: store, now: func() time.Time { return time.Now().UTC() }}

	raw, ok, err := store.Get(ctx, bookmarksKey)
	if err != nil {
		return nil, fmt.Errorf("load bookmarks: %w", err)
	}
	if ok {
		if err := json.Unmarshal(raw, &b.state); err != nil {
			return nil, fmt.Errorf("decode bookmarks: %w", err)
		}
	}
	return b, nil
}

// AddBookmark stores a bookmark and returns it with ID and CreatedAt filled.
func (b *Bookmarks) AddBookmark(ctx context.Context, bookmark domain.Bookmark) (domain.Bookmark, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bookmark.ID = util.NewID()
	bookmark.CreatedAt = b.now()

	next := b.state
	next.Bookmarks = append(append([]domain.Bookmark{}, b.state.Bookmarks...), bookmark)

	if err := b.persist(ctx, next); err != nil {
		return domain.Bookmark{}, err
	}
	b.state = next
	return bookmark, nil
}

// RemoveBookmark deletes by ID; a missing ID is a no-op.
func (b *Bookmarks) RemoveBookmark(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.state
	next.Bookmarks = make([]domain.Bookmark, 0, len(b.state.Bookmarks))
	for _, bookmark := range b.state.Bookmarks {
		if bookmark.ID != id {
			next.Bookmarks = append(next.Bookmarks, bookmark)
		}
	}

	if err := b.persist(ctx, next); err != nil {
		return err
	}
	b.state = next
	return nil
}

// BookmarksByBook returns bookmarks recorded for the book.
func (b *Bookmarks) BookmarksByBook(bookID string) []domain.Bookmark {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Bookmark, 0)
	for _, bookmark := range b.state.Bookmarks {
		if bookmark.BookID == bookID {
			out = append(out, bookmark)
		}
	}
	return out
}

// AddHighlight stores a highlight and returns it with ID and CreatedAt filled.
func (b *Bookmarks) AddHighlight(ctx context.Context, highlight domain.Highlight) (domain.Highlight, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	highlight.ID = util.NewID()
	highlight.CreatedAt = b.now()

	next := b.state
	next.Highlights = append(append([]domain.Highlight{}, b.state.Highlights...), highlight)

	if err := b.persist(ctx, next); err != nil {
		return domain.Highlight{}, err
	}
	b.state = next
	return highlight, nil
}

// UpdateHighlight merges color and note changes into an existing highlight.
// Unknown IDs are a no-op.
func (b *Bookmarks) UpdateHighlight(ctx context.Context, id string, color domain.HighlightColor, note string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.state
	next.Highlights = make([]domain.Highlight, len(b.state.Highlights))
	copy(next.Highlights, b.state.Highlights)
	for i, highlight := range next.Highlights {
		if highlight.ID != id {
			continue
		}
		if color != "" {
			highlight.Color = color
		}
		highlight.Note = note
		next.Highlights[i] = highlight
	}

	if err := b.persist(ctx, next); err != nil {
		return err
	}
	b.state = next
	return nil
}

// RemoveHighlight deletes by ID; a missing ID is a no-op.
func (b *Bookmarks) RemoveHighlight(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.state
	next.Highlights = make([]domain.Highlight, 0, len(b.state.Highlights))
	for _, highlight := range b.state.Highlights {
		if highlight.ID != id {
			next.Highlights = append(next.Highlights, highlight)
		}
	}

	if err := b.persist(ctx, next); err != nil {
		return err
	}
	b.state = next
	return nil
}

// HighlightsByBook returns highlights recorded for the book.
func (b *Bookmarks) HighlightsByBook(bookID string) []domain.Highlight {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Highlight, 0)
	for _, highlight := range b.state.Highlights {
		if highlight.BookID == bookID {
			out = append(out, highlight)
		}
	}
	return out
}

// HighlightsByChapter narrows HighlightsByBook to one chapter.
func (b *Bookmarks) HighlightsByChapter(bookID, chapterID string) []domain.Highlight {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Highlight, 0)
	for _, highlight := range b.state.Highlights {
		if highlight.BookID == bookID && highlight.ChapterID == chapterID {
			out = append(out, highlight)
		}
	}
	return out
}

func (b *Bookmarks) persist(ctx context.Context, state bookmarksState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode bookmarks: %w", err)
	}
	if err := b.store.Set(ctx, bookmarksKey, raw); err != nil {
		return fmt.Errorf("persist bookmarks: %w", err)
	}
	return nil
}
