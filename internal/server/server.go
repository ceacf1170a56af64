// Package server exposes the reader API, the content endpoints the reader
// downloads from, and the protected pack management routes.
package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"riverreader/internal/admintoken"
	"riverreader/internal/app"
	"riverreader/internal/catalog"
	"riverreader/internal/metrics"
	"riverreader/internal/ratelimit"
	"riverreader/internal/util"
	"riverreader/pkg/auth"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App               *app.App
	Catalog           *catalog.Service
	Tokens            *admintoken.Manager
	AdminUser         string
	AdminPasswordHash string
	Recorder          metrics.Recorder
	MetricsHandler    http.Handler
	DownloadLimiter   *ratelimit.Limiter
	TrustedProxies    *util.TrustedProxies
	MaxUploadBytes    int64
}

// Server exposes HTTP endpoints for the reader service.
type Server struct {
	app             *app.App
	catalog         *catalog.Service
	tokens          *admintoken.Manager
	adminUser       string
	adminPassHash   string
	recorder        metrics.Recorder
	metricsHandler  http.Handler
	downloadLimiter *ratelimit.Limiter
	trustedProxies  *util.TrustedProxies
	maxUploadBytes  int64
	mux             *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 100 * 1024 * 1024
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	s := &Server{
		app:             cfg.App,
		catalog:         cfg.Catalog,
		tokens:          cfg.Tokens,
		adminUser:       cfg.AdminUser,
		adminPassHash:   cfg.AdminPasswordHash,
		recorder:        recorder,
		metricsHandler:  cfg.MetricsHandler,
		downloadLimiter: cfg.DownloadLimiter,
		trustedProxies:  cfg.TrustedProxies,
		maxUploadBytes:  maxUploadBytes,
		mux:             http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.withMetrics(s.mux)))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	if s.metricsHandler != nil {
		s.mux.Handle("/metrics", s.metricsHandler)
	}

	// content the reader acquires from
	s.mux.HandleFunc("/manifest.json", s.handleManifest)
	s.mux.HandleFunc("/books/", s.handlePackContent)

	// reader state
	s.mux.HandleFunc("/api/books", s.handleBooks)
	s.mux.HandleFunc("/api/books/", s.handleBookByID)
	s.mux.HandleFunc("/api/current-book", s.handleCurrentBook)
	s.mux.HandleFunc("/api/gate", s.handleGate)
	s.mux.HandleFunc("/api/purchase", s.handlePurchase)
	s.mux.HandleFunc("/api/purchase/restore", s.handleRestore)
	s.mux.HandleFunc("/api/purchase/products", s.handleProducts)
	s.mux.HandleFunc("/api/events/chapter-index", s.handleChapterIndexEvent)
	s.mux.HandleFunc("/api/events/progress", s.handleProgressEvent)
	s.mux.HandleFunc("/api/languages", s.handleLanguages)
	s.mux.HandleFunc("/api/languages/", s.handleLanguageByCode)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/bookmarks", s.handleBookmarks)
	s.mux.HandleFunc("/api/bookmarks/", s.handleBookmarkByID)
	s.mux.HandleFunc("/api/highlights", s.handleHighlights)
	s.mux.HandleFunc("/api/highlights/", s.handleHighlightByID)

	// pack management
	s.mux.HandleFunc("/admin/login", s.handleAdminLogin)
	s.mux.Handle("/admin/languages", s.withAdmin(s.handleAdminLanguages))
	s.mux.Handle("/admin/packs/", s.withAdmin(s.handleAdminPackByCode))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		s.recorder.RecordHTTPStatus(status)
		s.recorder.RecordRequestLatency(time.Since(start))
	})
}

func (s *Server) withAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokens == nil {
			writeError(w, http.StatusInternalServerError, "admin auth not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if _, err := s.tokens.Verify(token); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username != s.adminUser || !auth.CheckPassword(req.Password, s.adminPassHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := s.tokens.Issue(req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
