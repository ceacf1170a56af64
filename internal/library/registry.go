// Package library owns the book catalog and the per-book reading state:
// the registry of known language editions, the chapter index extracted by
// the content viewer, last-read progress, and bookmarks. Each store owns a
// disjoint key in the persisted backend and treats a missing key as empty.
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

const (
	booksKey       = "books"
	currentBookKey = "currentBookId"
)

// Registry is the catalog of known books plus the "current book" pointer.
// The pointer is a weak reference: SetCurrentBook does not validate that the
// book exists, so optimistic UI flows can point at a book before inserting it.
type Registry struct {
	store kv.Store

	mu        sync.Mutex
	books     []domain.Book
	currentID string
	now       func() time.Time
}

// NewRegistry loads persisted books and the current pointer. A missing or
// empty backend reads as an empty catalog.
func NewRegistry(ctx context.Context, store kv.Store) (*Registry, error) {
	r := &Registry{store: store, now: func() time.Time { return time.Now().UTC() }}

	raw, ok, err := store.Get(ctx, booksKey)
	if err != nil {
		return nil, fmt.Errorf("load books: %w", err)
	}
	if ok {
		if err := json.Unmarshal(raw, &r.books); err != nil {
			return nil, fmt.Errorf("decode books: %w", err)
		}
	}

	raw, ok, err = store.Get(ctx, currentBookKey)
	if err != nil {
		return nil, fmt.Errorf("load current book: %w", err)
	}
	if ok {
		var id *string
		if err := json.Unmarshal(raw, &id); err != nil {
			return nil, fmt.Errorf("decode current book: %w", err)
		}
		if id != nil {
			r.currentID = *id
		}
	}
	return r, nil
}

// AddBook inserts the book, or replaces an existing entry with the same ID.
// CreatedAt is set on first insert only; UpdatedAt is bumped either way.
func (r *Registry) AddBook(ctx context.Context, book domain.Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	book.UpdatedAt = now

	next := make([]domain.Book, len(r.books))
	copy(next, r.books)

	replaced := false
	for i, existing := range next {
		if existing.ID == book.ID {
			book.CreatedAt = existing.CreatedAt
			next[i] = book
			replaced = true
			break
		}
	}
	if !replaced {
		book.CreatedAt = now
		next = append(next, book)
	}

	if err := r.persistBooks(ctx, next); err != nil {
		return err
	}
	r.books = next
	return nil
}

// UpdateBook merges the partial update into an existing entry and bumps
// UpdatedAt. Unknown IDs are a no-op, not an error; callers that care check
// presence via GetBook.
func (r *Registry) UpdateBook(ctx context.Context, id string, update domain.BookUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := -1
	for i, existing := range r.books {
		if existing.ID == id {
			index = i
			break
		}
	}
	if index < 0 {
		return nil
	}

	next := make([]domain.Book, len(r.books))
	copy(next, r.books)

	book := next[index]
	if update.Title != nil {
		book.Title = *update.Title
	}
	if update.Author != nil {
		book.Author = *update.Author
	}
	if update.ContentVersion != nil {
		book.ContentVersion = *update.ContentVersion
	}
	if update.LocalFilePath != nil {
		book.LocalFilePath = *update.LocalFilePath
	}
	if update.CoverPath != nil {
		book.CoverPath = *update.CoverPath
	}
	if update.IsDownloaded != nil {
		book.IsDownloaded = *update.IsDownloaded
	}
	book.UpdatedAt = r.now()
	next[index] = book

	if err := r.persistBooks(ctx, next); err != nil {
		return err
	}
	r.books = next
	return nil
}

// RemoveBook deletes the entry. When it was the current book the pointer is
// cleared so no dangling reference remains.
func (r *Registry) RemoveBook(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]domain.Book, 0, len(r.books))
	for _, existing := range r.books {
		if existing.ID != id {
			next = append(next, existing)
		}
	}

	nextCurrent := r.currentID
	if nextCurrent == id {
		nextCurrent = ""
	}

	if err := r.persistBooks(ctx, next); err != nil {
		return err
	}
	if nextCurrent != r.currentID {
		if err := r.persistCurrent(ctx, nextCurrent); err != nil {
			// Books already committed; fall back to the old pointer in memory
			// so reads stay consistent with the persisted value.
			r.books = next
			return err
		}
	}
	r.books = next
	r.currentID = nextCurrent
	return nil
}

// SetCurrentBook sets the pointer; pass "" to clear. Existence of the book is
// deliberately not validated.
func (r *Registry) SetCurrentBook(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.persistCurrent(ctx, id); err != nil {
		return err
	}
	r.currentID = id
	return nil
}

// GetBook retrieves a book by ID.
func (r *Registry) GetBook(id string) (domain.Book, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.books {
		if existing.ID == id {
			return existing, true
		}
	}
	return domain.Book{}, false
}

// GetCurrentBook returns the book the current pointer references, if any.
func (r *Registry) GetCurrentBook() (domain.Book, bool) {
	r.mu.Lock()
	current := r.currentID
	r.mu.Unlock()
	if current == "" {
		return domain.Book{}, false
	}
	return r.GetBook(current)
}

// CurrentBookID returns the raw pointer value ("" when unset). The pointer
// may reference a book not present in the catalog.
func (r *Registry) CurrentBookID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentID
}

// ListBooks returns books in insertion order.
func (r *Registry) ListBooks() []domain.Book {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Book, len(r.books))
	copy(out, r.books)
	return out
}

func (r *Registry) persistBooks(ctx context.Context, books []domain.Book) error {
	raw, err := json.Marshal(books)
	if err != nil {
		return fmt.Errorf("encode books: %w", err)
	}
	if err := r.store.Set(ctx, booksKey, raw); err != nil {
		return fmt.Errorf("persist books: %w", err)
	}
	return nil
}

func (r *Registry) persistCurrent(ctx context.Context, id string) error {
	var value *string
	if id != "" {
		value = &id
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode current book: %w", err)
	}
	if err := r.store.Set(ctx, currentBookKey, raw); err != nil {
		return fmt.Errorf("persist current book: %w", err)
	}
	return nil
}
