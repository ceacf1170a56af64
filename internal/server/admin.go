package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"riverreader/internal/catalog"
)

// handleAdminLanguages lists catalog state: every uploadable language plus
// the packs already uploaded.
func (s *Server) handleAdminLanguages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.catalog == nil {
		writeError(w, http.StatusNotFound, "no content catalog configured")
		return
	}
	packs, err := s.catalog.ListPacks()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"available": catalog.AvailableLanguages,
		"packs":     packs,
	})
}

// handleAdminPackByCode dispatches /admin/packs/{code}: upload (POST),
// version bump (PATCH), delete (DELETE).
func (s *Server) handleAdminPackByCode(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusNotFound, "no content catalog configured")
		return
	}
	code := strings.TrimPrefix(r.URL.Path, "/admin/packs/")
	if code == "" || strings.Contains(code, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.handlePackUpload(w, r, code)
	case http.MethodPatch:
		var req struct {
			Version string `json:"version"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Version) == "" {
			writeError(w, http.StatusBadRequest, "version is required")
			return
		}
		pack, err := s.catalog.SetPackVersion(r.Context(), code, req.Version)
		if errors.Is(err, catalog.ErrPackNotFound) {
			writeError(w, http.StatusNotFound, "language pack not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, pack)
	case http.MethodDelete:
		err := s.catalog.DeletePack(r.Context(), code)
		if errors.Is(err, catalog.ErrPackNotFound) {
			writeError(w, http.StatusNotFound, "language pack not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

// handlePackUpload accepts a multipart form with an EPUB under "file" and
// an optional "version" field, or a raw EPUB body with ?version=.
func (s *Server) handlePackUpload(w http.ResponseWriter, r *http.Request, code string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	var data []byte
	var version string
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		version = r.FormValue("version")
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "epub file is required")
			return
		}
		defer file.Close()
		if !strings.HasSuffix(strings.ToLower(header.Filename), ".epub") {
			writeError(w, http.StatusBadRequest, "file must be an EPUB file")
			return
		}
		data, err = io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read upload")
			return
		}
	} else {
		version = r.URL.Query().Get("version")
		var err error
		data, err = io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "epub file is required")
		return
	}

	pack, err := s.catalog.UploadPack(r.Context(), code, version, data)
	switch {
	case errors.Is(err, catalog.ErrUnknownLanguage):
		writeError(w, http.StatusBadRequest, "invalid language code")
	case errors.Is(err, catalog.ErrInvalidEPUB):
		writeError(w, http.StatusBadRequest, "file must be a valid EPUB")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		s.recorder.RecordPackUpload(code)
		writeJSON(w, http.StatusCreated, pack)
	}
}
