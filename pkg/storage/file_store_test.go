package storage

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	content := "epub bytes"
	if err := fs.Put(ctx, "packs/en.epub", strings.NewReader(content), int64(len(content)), "application/epub+zip"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	r, size, err := fs.Get(ctx, "packs/en.epub")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer r.Close()
	if size != int64(len(content)) {
		t.Fatalf("size = %d, want %d", size, len(content))
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != content {
		t.Fatalf("content = %q", got)
	}
}

func TestFileStoreOverwrite(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	if err := fs.Put(ctx, "packs/de.epub", strings.NewReader("v1"), 2, ""); err != nil {
		t.Fatalf("Put v1: %v", err)
	}
	if err := fs.Put(ctx, "packs/de.epub", strings.NewReader("version2"), 8, ""); err != nil {
		t.Fatalf("Put v2: %v", err)
	}

	r, _, err := fs.Get(ctx, "packs/de.epub")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if string(got) != "version2" {
		t.Fatalf("content = %q, want version2", got)
	}
}

func TestFileStoreDeleteMissing(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := fs.Delete(context.Background(), "packs/nothing.epub"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := fs.Put(context.Background(), "../escape", strings.NewReader("x"), 1, ""); err == nil {
		t.Fatal("expected error for traversal key")
	}
	if _, _, err := fs.Get(context.Background(), "/abs"); err == nil {
		t.Fatal("expected error for absolute key")
	}
}
