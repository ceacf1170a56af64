package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"riverreader/internal/app"
	"riverreader/internal/purchase"
	"riverreader/internal/settings"
	"riverreader/pkg/domain"
)

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		books := s.app.Registry.ListBooks()
		writeJSON(w, http.StatusOK, map[string]any{
			"items": books,
			"count": len(books),
		})
	case http.MethodPost:
		var book domain.Book
		if err := json.NewDecoder(r.Body).Decode(&book); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(book.ID) == "" {
			writeError(w, http.StatusBadRequest, "book id is required")
			return
		}
		if err := s.app.Registry.AddBook(r.Context(), book); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		added, _ := s.app.Registry.GetBook(book.ID)
		writeJSON(w, http.StatusCreated, added)
	default:
		methodNotAllowed(w)
	}
}

// handleBookByID dispatches /api/books/{id} and its subresources:
// open, chapters, chapters/{index}, progress.
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/books/")
	parts := strings.SplitN(rest, "/", 3)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}

	if len(parts) == 1 {
		s.handleBook(w, r, id)
		return
	}
	switch parts[1] {
	case "open":
		s.handleOpenBook(w, r, id)
	case "chapters":
		if len(parts) == 3 && parts[2] != "" {
			s.handleChapterByIndex(w, r, id, parts[2])
			return
		}
		s.handleChapters(w, r, id)
	case "progress":
		s.handleProgress(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		book, ok := s.app.Registry.GetBook(id)
		if !ok {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodPatch:
		var update domain.BookUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := s.app.Registry.UpdateBook(r.Context(), id, update); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		book, ok := s.app.Registry.GetBook(id)
		if !ok {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodDelete:
		if err := s.app.Registry.RemoveBook(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleOpenBook(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	book, err := s.app.OpenBook(r.Context(), id)
	if err != nil {
		if errors.Is(err, app.ErrBookNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	chapters := s.app.Chapters.GetChapters(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"items": chapters,
		"count": len(chapters),
	})
}

func (s *Server) handleChapterByIndex(w http.ResponseWriter, r *http.Request, id, rawIndex string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	index, err := strconv.Atoi(rawIndex)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chapter index")
		return
	}
	chapter, err := s.app.OpenChapter(id, index)
	switch {
	case errors.Is(err, app.ErrChapterLocked):
		writeError(w, http.StatusPaymentRequired, "chapter requires full access")
	case errors.Is(err, app.ErrChapterNotFound):
		writeError(w, http.StatusNotFound, "chapter not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, chapter)
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	progress, ok := s.app.Progress.GetProgress(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no progress recorded")
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleCurrentBook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		book, ok := s.app.Registry.GetCurrentBook()
		if !ok {
			writeError(w, http.StatusNotFound, "no current book")
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodPut:
		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := s.app.Registry.SetCurrentBook(r.Context(), req.ID); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"currentBookId": req.ID})
	case http.MethodDelete:
		if err := s.app.Registry.SetCurrentBook(r.Context(), ""); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleGate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	resp := map[string]any{
		"freeChapterLimit": purchase.FreeChapterLimit,
		"isPurchased":      s.app.Gate.IsPurchased(),
	}
	if raw := r.URL.Query().Get("index"); raw != "" {
		index, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid index")
			return
		}
		resp["index"] = index
		resp["locked"] = s.app.Gate.IsChapterLocked(index)
	}
	if raw := r.URL.Query().Get("total"); raw != "" {
		total, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid total")
			return
		}
		resp["lockedCount"] = s.app.Gate.LockedChapterCount(total)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) purchaseState() map[string]any {
	return map[string]any{
		"isPurchased":   s.app.Gate.IsPurchased(),
		"receipt":       s.app.Gate.Receipt(),
		"isPurchasing":  s.app.Gate.IsPurchasing(),
		"isRestoring":   s.app.Gate.IsRestoring(),
		"purchaseError": s.app.Gate.PurchaseError(),
		"restoreError":  s.app.Gate.RestoreError(),
	}
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.purchaseState())
	case http.MethodPost:
		ok := s.app.PurchaseFullAccess(r.Context())
		state := s.purchaseState()
		state["ok"] = ok
		if !ok {
			writeJSON(w, http.StatusConflict, state)
			return
		}
		writeJSON(w, http.StatusOK, state)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	restored := s.app.RestorePurchases(r.Context())
	state := s.purchaseState()
	state["restored"] = restored
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	products, err := s.app.Gate.Products(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "product lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": products})
}

// Viewer events. The embedded viewer reports extracted chapter lists and
// position updates through these; the server treats them as authoritative.

func (s *Server) handleChapterIndexEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var event struct {
		BookID   string           `json:"bookId"`
		Chapters []domain.Chapter `json:"chapters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(event.BookID) == "" {
		writeError(w, http.StatusBadRequest, "bookId is required")
		return
	}
	if err := s.app.OnChapterIndexExtracted(r.Context(), event.BookID, event.Chapters); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProgressEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var event struct {
		BookID    string  `json:"bookId"`
		ChapterID string  `json:"chapterId"`
		Position  float64 `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(event.BookID) == "" {
		writeError(w, http.StatusBadRequest, "bookId is required")
		return
	}
	if err := s.app.OnProgressReported(r.Context(), event.BookID, event.ChapterID, event.Position); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	downloaded := []string{}
	if s.app.Content != nil {
		langs, err := s.app.Content.DownloadedLanguages()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		downloaded = langs
	}
	bundled := []string{}
	if s.app.Resolver != nil {
		bundled = s.app.Resolver.BundledLanguages()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"downloaded": downloaded,
		"bundled":    bundled,
	})
}

// handleLanguageByCode dispatches /api/languages/{code} and
// /api/languages/{code}/download.
func (s *Server) handleLanguageByCode(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/languages/")
	parts := strings.SplitN(rest, "/", 2)
	code := parts[0]
	if code == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if len(parts) == 2 && parts[1] == "download" {
		s.handleLanguageDownload(w, r, code)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.RemoveLanguage(r.Context(), code); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLanguageDownload(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var lang domain.ManifestLanguage
	if err := json.NewDecoder(r.Body).Decode(&lang); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lang.Code = code
	if strings.TrimSpace(lang.File) == "" {
		lang.File = "books/" + code + ".epub"
	}
	book, err := s.app.DownloadLanguage(r.Context(), lang, nil)
	if err != nil {
		writeError(w, http.StatusBadGateway, "download failed")
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.app.Settings.Get())
	case http.MethodPatch:
		var patch settings.State
		current := s.app.Settings.Get()
		patch = current
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		err := s.app.Settings.Update(r.Context(), func(state *settings.State) {
			*state = patch
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, s.app.Settings.Get())
	case http.MethodDelete:
		if err := s.app.Settings.Reset(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, s.app.Settings.Get())
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		bookID := r.URL.Query().Get("bookId")
		if bookID == "" {
			writeError(w, http.StatusBadRequest, "bookId query parameter is required")
			return
		}
		items := s.app.Bookmarks.BookmarksByBook(bookID)
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	case http.MethodPost:
		var bookmark domain.Bookmark
		if err := json.NewDecoder(r.Body).Decode(&bookmark); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(bookmark.BookID) == "" {
			writeError(w, http.StatusBadRequest, "bookId is required")
			return
		}
		added, err := s.app.Bookmarks.AddBookmark(r.Context(), bookmark)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, added)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleBookmarkByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/bookmarks/")
	if err := s.app.Bookmarks.RemoveBookmark(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHighlights(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		bookID := r.URL.Query().Get("bookId")
		if bookID == "" {
			writeError(w, http.StatusBadRequest, "bookId query parameter is required")
			return
		}
		var items []domain.Highlight
		if chapterID := r.URL.Query().Get("chapterId"); chapterID != "" {
			items = s.app.Bookmarks.HighlightsByChapter(bookID, chapterID)
		} else {
			items = s.app.Bookmarks.HighlightsByBook(bookID)
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	case http.MethodPost:
		var highlight domain.Highlight
		if err := json.NewDecoder(r.Body).Decode(&highlight); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(highlight.BookID) == "" {
			writeError(w, http.StatusBadRequest, "bookId is required")
			return
		}
		added, err := s.app.Bookmarks.AddHighlight(r.Context(), highlight)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, added)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleHighlightByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/highlights/")
	switch r.Method {
	case http.MethodPatch:
		var req struct {
			Color domain.HighlightColor `json:"color"`
			Note  string                `json:"note"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := s.app.Bookmarks.UpdateHighlight(r.Context(), id, req.Color, req.Note); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := s.app.Bookmarks.RemoveHighlight(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}
