package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"riverreader/internal/catalog"
	"riverreader/internal/util"
)

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.catalog == nil {
		writeError(w, http.StatusNotFound, "no content catalog configured")
		return
	}
	manifest, err := s.catalog.Manifest()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, manifest)
}

// handlePackContent serves stored pack blobs under /books/{code}.epub.
// Range requests are honored when the blob backend hands back a seekable
// reader, which the resumable reader download depends on.
func (s *Server) handlePackContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w)
		return
	}
	if s.catalog == nil {
		writeError(w, http.StatusNotFound, "no content catalog configured")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/books/")
	if !strings.HasSuffix(name, ".epub") || strings.Contains(name, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	code := strings.TrimSuffix(name, ".epub")

	if s.downloadLimiter != nil {
		ip := util.ClientIP(r, s.trustedProxies)
		if ok, retryAfter := s.downloadLimiter.Allow(ip); !ok {
			if seconds := int(retryAfter.Round(time.Second).Seconds()); seconds > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
			}
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	reader, size, err := s.catalog.OpenPack(r.Context(), code)
	if err != nil {
		if errors.Is(err, catalog.ErrPackNotFound) {
			writeError(w, http.StatusNotFound, "language pack not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/epub+zip")
	if seeker, ok := reader.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, time.Time{}, seeker)
		return
	}
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.Copy(w, reader)
}
