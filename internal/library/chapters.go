package library

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"riverreader/pkg/domain"
	"riverreader/pkg/kv"
)

const chaptersKey = "bookChapters"

// ChapterIndex stores the ordered table of contents per book. The list is
// replaced wholesale each time a book's content is freshly parsed; there is
// no per-chapter mutation. Order is preserved exactly as given because the
// access gate keys on index position.
type ChapterIndex struct {
	store kv.Store

	mu       sync.Mutex
	chapters map[string][]domain.Chapter
}

// NewChapterIndex loads persisted chapter lists. A missing key reads as
// "no chapters recorded yet".
func NewChapterIndex(ctx context.Context, store kv.Store) (*ChapterIndex, error) {
	c := &ChapterIndex{store: store, chapters: make(map[string][]domain.Chapter)}

	raw, ok, err := store.Get(ctx, chaptersKey)
	if err != nil {
		return nil, fmt.Errorf("load chapters: %w", err)
	}
	if ok {
		if err := json.Unmarshal(raw, &c.chapters); err != nil {
			return nil, fmt.Errorf("decode chapters: %w", err)
		}
	}
	return c, nil
}

// SetChapters replaces the full list for the book. No deduplication or
// validation is performed; this is a pure store.
func (c *ChapterIndex) SetChapters(ctx context.Context, bookID string, chapters []domain.Chapter) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[string][]domain.Chapter, len(c.chapters)+1)
	for id, list := range c.chapters {
		next[id] = list
	}
	stored := make([]domain.Chapter, len(chapters))
	copy(stored, chapters)
	next[bookID] = stored

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode chapters: %w", err)
	}
	if err := c.store.Set(ctx, chaptersKey, raw); err != nil {
		return fmt.Errorf("persist chapters: %w", err)
	}
	c.chapters = next
	return nil
}

// GetChapters returns the stored ordered list, or an empty slice when the
// book has never been parsed. Unknown book IDs are not an error.
func (c *ChapterIndex) GetChapters(bookID string) []domain.Chapter {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.chapters[bookID]
	if !ok {
		return []domain.Chapter{}
	}
	out := make([]domain.Chapter, len(stored))
	copy(out, stored)
	return out
}
