package util

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWithRequestIDPropagatesReaderSuppliedID(t *testing.T) {
	const incoming = "reader-session-42"
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestIDFromRequest(r); got != incoming {
			t.Fatalf("unexpected request id in context: got %q want %q", got, incoming)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
	req.Header.Set(RequestIDHeader, incoming)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != incoming {
		t.Fatalf("unexpected response request id: got %q want %q", got, incoming)
	}
}

func TestWithRequestIDGeneratesWhenMissing(t *testing.T) {
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestIDFromRequest(r); got == "" {
			t.Fatal("expected generated request id in context")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got == "" {
		t.Fatal("expected generated request id header")
	}
}

func TestWithRequestIDReplacesUnusableIDs(t *testing.T) {
	for name, supplied := range map[string]string{
		"overlong":      strings.Repeat("x", 200),
		"control bytes": "abc\x01def",
		"whitespace":    "   ",
	} {
		t.Run(name, func(t *testing.T) {
			handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
			req.Header.Set(RequestIDHeader, supplied)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if got == "" || got == strings.TrimSpace(supplied) {
				t.Fatalf("expected a fresh id instead of %q, got %q", supplied, got)
			}
		})
	}
}
