package library

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"riverreader/pkg/domain"
	"riverreader/pkg/kv"
)

const progressKey = "readingProgress"

// ProgressTracker keeps at most one reading-progress record per book.
// Writes are last-write-wins with no monotonicity check on position; the
// viewer legitimately reports backward jumps.
type ProgressTracker struct {
	store kv.Store

	mu       sync.Mutex
	progress map[string]domain.ReadingProgress
	now      func() time.Time
}

// NewProgressTracker loads persisted progress records.
func NewProgressTracker(ctx context.Context, store kv.Store) (*ProgressTracker, error) {
	p := &ProgressTracker{
		store:    store,
		progress: make(map[string]domain.ReadingProgress),
		now:      func() time.Time { return time.Now().UTC() },
	}

	raw, ok, err := store.Get(ctx, progressKey)
	if err != nil {
		return nil, fmt.Errorf("load reading progress: %w", err)
	}
	if ok {
		if err := json.Unmarshal(raw, &p.progress); err != nil {
			return nil, fmt.Errorf("decode reading progress: %w", err)
		}
	}
	return p, nil
}

// RecordProgress overwrites the record for the book.
func (p *ProgressTracker) RecordProgress(ctx context.Context, bookID, chapterID string, position float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := make(map[string]domain.ReadingProgress, len(p.progress)+1)
	for id, record := range p.progress {
		next[id] = record
	}
	next[bookID] = domain.ReadingProgress{
		BookID:    bookID,
		ChapterID: chapterID,
		Position:  position,
		UpdatedAt: p.now(),
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode reading progress: %w", err)
	}
	if err := p.store.Set(ctx, progressKey, raw); err != nil {
		return fmt.Errorf("persist reading progress: %w", err)
	}
	p.progress = next
	return nil
}

// GetProgress returns the stored record for the book, if any.
func (p *ProgressTracker) GetProgress(bookID string) (domain.ReadingProgress, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	record, ok := p.progress[bookID]
	return record, ok
}
