// Package kv provides the persisted key/value backend shared by the reader
// stores. Values are opaque JSON documents; a missing key reads as absent,
// never as an error.
package kv

import "context"

// Store defines persistence operations over string keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
