// Package content locates and acquires readable book content: resolving
// bundled assets into a writable cache on first use, and downloading remote
// language packs with resumable transfer. No parsing happens here; files are
// opaque blobs handed to the content viewer.
package content

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Resolver maps a language code to a readable on-device file, copying the
// bundled asset into the cache directory the first time it is needed.
type Resolver struct {
	cacheDir string
	bundled  map[string]string // language code -> bundled asset path
}

// NewResolver registers the bundled assets. The cache directory is created
// lazily on first copy.
func NewResolver(cacheDir string, bundled map[string]string) *Resolver {
	assets := make(map[string]string, len(bundled))
	for code, path := range bundled {
		assets[code] = path
	}
	return &Resolver{cacheDir: cacheDir, bundled: assets}
}

// BundledLanguages returns the language codes with a registered bundled asset.
func (r *Resolver) BundledLanguages() []string {
	codes := make([]string, 0, len(r.bundled))
	for code := range r.bundled {
		codes = append(codes, code)
	}
	return codes
}

// Resolve returns the path to readable content for the language.
// An explicit path wins when the file exists; otherwise the cached bundled
// copy is returned, copying from the bundled asset on first use. ok=false
// means no content is available, which is not an error; a failed copy
// surfaces the underlying I/O error.
func (r *Resolver) Resolve(ctx context.Context, languageCode, explicitPath string) (string, bool, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err == nil {
			return explicitPath, true, nil
		}
	}

	source, ok := r.bundled[languageCode]
	if !ok {
		return "", false, nil
	}

	ext := filepath.Ext(source)
	if ext == "" {
		ext = ".epub"
	}
	cached := filepath.Join(r.cacheDir, languageCode+ext)

	// Idempotent: once cached, never re-copy.
	if _, err := os.Stat(cached); err == nil {
		return cached, true, nil
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	if err := copyFile(source, cached); err != nil {
		return "", false, fmt.Errorf("copy bundled asset for %q: %w", languageCode, err)
	}
	return cached, true, nil
}

// copyFile copies src to dst via a temp file in the destination directory,
// then renames, so a concurrent reader never observes a partial file.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("copy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename into cache: %w", err)
	}
	return nil
}
