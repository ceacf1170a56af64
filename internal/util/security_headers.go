package util

import (
	"net/http"
	"strings"
)

// WithSecurityHeaders sets response headers for a service that mixes a JSON
// API with cross-origin EPUB downloads.
func WithSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

		// Manifest and pack fetches come from the reader app's own origin,
		// not from a page served by this host.
		if RequestSurface(r.URL.Path) == "content" {
			h.Set("Cross-Origin-Resource-Policy", "cross-origin")
		}

		// Only emit HSTS when the request arrived over HTTPS, directly or
		// through a forwarding proxy.
		if r.TLS != nil || strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https") {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
