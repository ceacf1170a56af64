package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random hex id. Bookmarks, highlights, and generated
// request ids all use it; 16 random bytes keep those id spaces from ever
// colliding in practice.
func NewID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
