package util

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type logRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *logRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *logRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}

// WithRequestLog emits one structured line per request, tagged with the
// surface it hit. Pack downloads additionally carry the language code and
// the byte count actually sent, which is what an interrupted multi-megabyte
// transfer shows up as.
func WithRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &logRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"surface", RequestSurface(r.URL.Path),
			"status", status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", RequestIDFromRequest(r),
		}
		if code := PackLanguage(r.URL.Path); code != "" {
			attrs = append(attrs, "language", code)
		}
		slog.Info("http_request", attrs...)
	})
}

// RequestSurface classifies a path into the route groups the service
// exposes: the reader API, the admin panel, and the content downloads.
// Everything else (health, metrics) is operational.
func RequestSurface(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/"):
		return "reader"
	case strings.HasPrefix(path, "/admin/"):
		return "admin"
	case path == "/manifest.json" || strings.HasPrefix(path, "/books/"):
		return "content"
	default:
		return "ops"
	}
}

// PackLanguage extracts the language code from a pack download path, or ""
// when the path is not one.
func PackLanguage(path string) string {
	rest, ok := strings.CutPrefix(path, "/books/")
	if !ok {
		return ""
	}
	code, ok := strings.CutSuffix(rest, ".epub")
	if !ok || code == "" || strings.Contains(code, "/") {
		return ""
	}
	return code
}
