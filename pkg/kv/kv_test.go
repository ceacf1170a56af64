package kv

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "books"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "books", []byte(`[{"id":"en"}]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, ok, err := s.Get(ctx, "books")
	if err != nil || !ok {
		t.Fatalf("get after set: ok=%v err=%v", ok, err)
	}
	if string(value) != `[{"id":"en"}]` {
		t.Fatalf("unexpected value: %s", value)
	}

	if err := s.Delete(ctx, "books"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "books"); ok {
		t.Fatalf("expected key gone after delete")
	}
	// Deleting a missing key is fine.
	if err := s.Delete(ctx, "books"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	original := []byte(`{"a":1}`)
	if err := s.Set(ctx, "k", original); err != nil {
		t.Fatalf("set: %v", err)
	}
	original[0] = 'X'

	value, _, _ := s.Get(ctx, "k")
	if string(value) != `{"a":1}` {
		t.Fatalf("stored value mutated by caller: %s", value)
	}
	value[0] = 'Y'
	again, _, _ := s.Get(ctx, "k")
	if string(again) != `{"a":1}` {
		t.Fatalf("stored value mutated by reader: %s", again)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	redis := miniredis.RunT(t)
	s, err := NewRedisStore(redis.Addr(), "", "")
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "purchase"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "purchase", []byte(`{"isPurchased":true}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, ok, err := s.Get(ctx, "purchase")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(value) != `{"isPurchased":true}` {
		t.Fatalf("unexpected value: %s", value)
	}
	if err := s.Delete(ctx, "purchase"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "purchase"); ok {
		t.Fatalf("expected key gone after delete")
	}
}

func TestRedisStoreRequiresAddr(t *testing.T) {
	if _, err := NewRedisStore("  ", "", ""); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
