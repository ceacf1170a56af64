package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"riverreader/pkg/domain"
)

const contentExt = ".epub"

// partialSuffix marks an interrupted download kept as a resume checkpoint.
const partialSuffix = ".partial"

// ProgressFunc receives download progress as a fraction in [0, 1]. Calls are
// monotonically non-decreasing with a final call at 1.0 on success.
type ProgressFunc func(fraction float64)

// Service downloads remote language packs into the content cache directory
// and tracks their local presence.
type Service struct {
	baseURL  string
	cacheDir string
	client   *http.Client
}

// NewService configures acquisition against a remote content base URL.
func NewService(baseURL, cacheDir string, client *http.Client) (*Service, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("content base URL required")
	}
	if strings.TrimSpace(cacheDir) == "" {
		return nil, fmt.Errorf("content cache dir required")
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Service{baseURL: baseURL, cacheDir: cacheDir, client: client}, nil
}

// FetchManifest retrieves the remote catalog of available language packs.
func (s *Service) FetchManifest(ctx context.Context) (domain.Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/manifest.json", nil)
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("build manifest request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Manifest{}, fmt.Errorf("fetch manifest: unexpected status %d", resp.StatusCode)
	}
	var manifest domain.Manifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return domain.Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return manifest, nil
}

// ContentPath returns the deterministic local path for a language pack,
// whether or not the file exists yet.
func (s *Service) ContentPath(languageCode string) string {
	return filepath.Join(s.cacheDir, languageCode+contentExt)
}

// Download fetches the language pack to its deterministic local path,
// resuming from a previous partial transfer when one exists. On failure the
// partial file is kept as a resume checkpoint; no retry happens here.
func (s *Service) Download(ctx context.Context, lang domain.ManifestLanguage, onProgress ProgressFunc) (string, error) {
	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create content dir: %w", err)
	}

	target := s.ContentPath(lang.Code)
	partial := target + partialSuffix

	var offset int64
	if info, err := os.Stat(partial); err == nil {
		offset = info.Size()
	}

	downloadURL, err := url.JoinPath(s.baseURL, lang.File)
	if err != nil {
		return "", fmt.Errorf("build download url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %q: %w", lang.Code, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		// Server honored the range; keep the existing bytes.
	case http.StatusOK:
		// Full body; any previous partial is stale.
		offset = 0
	case http.StatusRequestedRangeNotSatisfiable:
		// The checkpoint already holds every byte, so the resume range
		// starts past the end of the file. Promote it instead of retrying
		// the same doomed range forever.
		if total, known := contentRangeTotal(resp.Header.Get("Content-Range")); known && offset != total {
			_ = os.Remove(partial)
			return "", fmt.Errorf("download %q: checkpoint has %d bytes, server reports %d", lang.Code, offset, total)
		}
		if err := os.Rename(partial, target); err != nil {
			return "", fmt.Errorf("finalize download %q: %w", lang.Code, err)
		}
		if onProgress != nil {
			onProgress(1.0)
		}
		return target, nil
	default:
		return "", fmt.Errorf("download %q: unexpected status %d", lang.Code, resp.StatusCode)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(partial, flags, 0o644)
	if err != nil {
		return "", fmt.Errorf("open partial file: %w", err)
	}

	expected := int64(-1)
	if resp.ContentLength >= 0 {
		expected = offset + resp.ContentLength
	}

	written := offset
	lastFraction := 0.0
	report := func(fraction float64) {
		if onProgress == nil {
			return
		}
		if fraction < lastFraction {
			fraction = lastFraction
		}
		if fraction > 1 {
			fraction = 1
		}
		lastFraction = fraction
		onProgress(fraction)
	}

	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				return "", fmt.Errorf("write content for %q: %w", lang.Code, writeErr)
			}
			written += int64(n)
			if expected > 0 {
				report(float64(written) / float64(expected))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			return "", fmt.Errorf("download %q interrupted: %w", lang.Code, readErr)
		}
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close partial file: %w", err)
	}
	if expected > 0 && written < expected {
		return "", fmt.Errorf("download %q truncated: got %d of %d bytes", lang.Code, written, expected)
	}
	if err := os.Rename(partial, target); err != nil {
		return "", fmt.Errorf("finalize download %q: %w", lang.Code, err)
	}
	report(1.0)
	return target, nil
}

// contentRangeTotal parses the complete length out of an unsatisfied-range
// response header, "bytes */N".
func contentRangeTotal(header string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes */")
	if !ok {
		return 0, false
	}
	total, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

// DownloadAll fetches several language packs with bounded concurrency.
// The first failure cancels the remaining transfers.
func (s *Service) DownloadAll(ctx context.Context, langs []domain.ManifestLanguage, limit int) error {
	if limit <= 0 {
		limit = 2
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, lang := range langs {
		g.Go(func() error {
			_, err := s.Download(ctx, lang, nil)
			return err
		})
	}
	return g.Wait()
}

// IsPresent reports whether a fully downloaded pack exists for the language.
func (s *Service) IsPresent(languageCode string) bool {
	_, err := os.Stat(s.ContentPath(languageCode))
	return err == nil
}

// Remove deletes the downloaded pack. A missing file is not an error.
func (s *Service) Remove(languageCode string) error {
	err := os.Remove(s.ContentPath(languageCode))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove content for %q: %w", languageCode, err)
	}
	// Drop any stale checkpoint alongside.
	_ = os.Remove(s.ContentPath(languageCode) + partialSuffix)
	return nil
}

// DownloadedLanguages scans the cache directory for completed packs.
func (s *Service) DownloadedLanguages() ([]string, error) {
	entries, err := os.ReadDir(s.cacheDir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan content dir: %w", err)
	}
	codes := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, contentExt) {
			continue
		}
		codes = append(codes, strings.TrimSuffix(name, contentExt))
	}
	return codes, nil
}
