package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"riverreader/internal/admintoken"
	"riverreader/internal/app"
	"riverreader/internal/catalog"
	"riverreader/internal/ratelimit"
	"riverreader/pkg/auth"
	"riverreader/pkg/domain"
	"riverreader/pkg/kv"
	"riverreader/pkg/storage"
)

func testEPUB(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	files := map[string]string{
		"META-INF/container.xml": `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`,
		"content.opf": `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" xmlns:dc="http://purl.org/dc/elements/1.1/" version="2.0">
  <metadata><dc:title>Test</dc:title><dc:language>en</dc:language></metadata>
  <manifest><item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/></manifest>
</package>`,
	}
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

const testPassword = "Adm1n#Passw0rd!"

func newTestServer(t *testing.T) (*httptest.Server, *app.App) {
	t.Helper()
	a, err := app.New(context.Background(), app.Options{Store: kv.NewMemoryStore()})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	blobs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	packs := catalog.NewService(catalog.NewMemoryStore(), blobs)
	tokens, err := admintoken.NewManager("test-secret")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	srv, err := New(Config{
		App:               a,
		Catalog:           packs,
		Tokens:            tokens,
		AdminUser:         "admin",
		AdminPasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, a
}

func doJSON(t *testing.T, method, url string, body any, token string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("missing request id header")
	}
}

func TestBookLifecycleOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/books", domain.Book{ID: "en", Title: "English", LanguageCode: "en"}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPut, ts.URL+"/api/current-book", map[string]string{"id": "en"}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set current status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	var current domain.Book
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/current-book", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get current status = %d", resp.StatusCode)
	}
	decodeBody(t, resp, &current)
	if current.ID != "en" {
		t.Fatalf("current book = %q", current.ID)
	}

	title := "English Bible"
	resp = doJSON(t, http.MethodPatch, ts.URL+"/api/books/en", domain.BookUpdate{Title: &title}, "")
	var updated domain.Book
	decodeBody(t, resp, &updated)
	if updated.Title != title {
		t.Fatalf("title = %q", updated.Title)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/books/en", nil, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/current-book", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("current after delete = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChapterGateOverHTTP(t *testing.T) {
	ts, a := newTestServer(t)

	chapters := []domain.Chapter{{ID: "c0"}, {ID: "c1"}, {ID: "c2"}}
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/events/chapter-index", map[string]any{
		"bookId":   "en",
		"chapters": chapters,
	}, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("event status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/books/en/chapters/1", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("free chapter status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/books/en/chapters/2", nil, "")
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("locked chapter status = %d, want 402", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/purchase", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("purchase status = %d", resp.StatusCode)
	}
	resp.Body.Close()
	if !a.Gate.IsPurchased() {
		t.Fatal("gate should be purchased")
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/books/en/chapters/2", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unlocked chapter status = %d", resp.StatusCode)
	}
	var chapter domain.Chapter
	decodeBody(t, resp, &chapter)
	if chapter.ID != "c2" {
		t.Fatalf("chapter = %+v", chapter)
	}
}

func TestProgressEventOverHTTP(t *testing.T) {
	ts, a := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/events/progress", map[string]any{
		"bookId":    "en",
		"chapterId": "c1",
		"position":  0.42,
	}, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("event status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	progress, ok := a.Progress.GetProgress("en")
	if !ok || progress.Position != 0.42 {
		t.Fatalf("progress = %+v ok=%v", progress, ok)
	}

	var got domain.ReadingProgress
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/books/en/progress", nil, "")
	decodeBody(t, resp, &got)
	if got.ChapterID != "c1" {
		t.Fatalf("chapterId = %q", got.ChapterID)
	}
}

func TestGateQuery(t *testing.T) {
	ts, _ := newTestServer(t)

	var state map[string]any
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/gate?index=5&total=7", nil, "")
	decodeBody(t, resp, &state)
	if state["freeChapterLimit"].(float64) != 2 {
		t.Fatalf("freeChapterLimit = %v", state["freeChapterLimit"])
	}
	if state["locked"] != true {
		t.Fatalf("locked = %v", state["locked"])
	}
	if state["lockedCount"].(float64) != 5 {
		t.Fatalf("lockedCount = %v", state["lockedCount"])
	}
}

func adminToken(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/admin/login", map[string]string{
		"username": "admin",
		"password": testPassword,
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["token"] == "" {
		t.Fatal("empty token")
	}
	return body["token"]
}

func TestAdminLoginRejectsBadPassword(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/admin/login", map[string]string{
		"username": "admin",
		"password": "wrong",
	}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/admin/languages", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func uploadPack(t *testing.T, ts *httptest.Server, token, code, version string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if version != "" {
		if err := mw.WriteField("version", version); err != nil {
			t.Fatalf("write version field: %v", err)
		}
	}
	fw, err := mw.CreateFormFile("file", code+".epub")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/admin/packs/"+code, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return resp
}

func TestPackUploadManifestAndDownload(t *testing.T) {
	ts, _ := newTestServer(t)
	token := adminToken(t, ts)
	data := testEPUB(t)

	resp := uploadPack(t, ts, token, "ko", "1.1", data)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	var pack domain.LanguagePack
	decodeBody(t, resp, &pack)
	if pack.Code != "ko" || pack.Version != "1.1" {
		t.Fatalf("pack = %+v", pack)
	}

	var manifest domain.Manifest
	resp = doJSON(t, http.MethodGet, ts.URL+"/manifest.json", nil, "")
	decodeBody(t, resp, &manifest)
	if len(manifest.Languages) != 1 || manifest.Languages[0].File != "books/ko.epub" {
		t.Fatalf("manifest = %+v", manifest)
	}

	resp, err := http.Get(ts.URL + "/books/ko.epub")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", resp.StatusCode)
	}
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("downloaded bytes differ from upload")
	}
}

func TestPackContentSupportsRange(t *testing.T) {
	ts, _ := newTestServer(t)
	token := adminToken(t, ts)
	data := testEPUB(t)

	resp := uploadPack(t, ts, token, "en", "", data)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/books/en.epub", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Range", "bytes=10-")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("range get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", resp.StatusCode)
	}
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data[10:]) {
		t.Fatal("range response mismatch")
	}
}

func TestPackDownloadThrottled(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	limiter, err := ratelimit.NewLimiter(redisSrv.Addr(), "", 1, time.Minute)
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}

	a, err := app.New(context.Background(), app.Options{Store: kv.NewMemoryStore()})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	blobs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	packs := catalog.NewService(catalog.NewMemoryStore(), blobs)
	if _, err := packs.UploadPack(context.Background(), "en", "", testEPUB(t)); err != nil {
		t.Fatalf("UploadPack: %v", err)
	}

	srv, err := New(Config{App: a, Catalog: packs, DownloadLimiter: limiter})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/books/en.epub")
	if err != nil {
		t.Fatalf("first download: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first download status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/books/en.epub")
	if err != nil {
		t.Fatalf("second download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second download status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header on throttled download")
	}
}

func TestPackUploadRejectsUnknownCode(t *testing.T) {
	ts, _ := newTestServer(t)
	token := adminToken(t, ts)
	resp := uploadPack(t, ts, token, "xx", "", testEPUB(t))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPackDelete(t *testing.T) {
	ts, _ := newTestServer(t)
	token := adminToken(t, ts)

	resp := uploadPack(t, ts, token, "fr", "", testEPUB(t))
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, ts.URL+"/admin/packs/fr", nil, token)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/books/fr.epub")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("download after delete = %d, want 404", resp.StatusCode)
	}
}

func TestSettingsOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)

	var state map[string]any
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/settings", nil, "")
	decodeBody(t, resp, &state)
	if state["theme"] != "light" {
		t.Fatalf("default theme = %v", state["theme"])
	}

	state["theme"] = "dark"
	resp = doJSON(t, http.MethodPatch, ts.URL+"/api/settings", state, "")
	decodeBody(t, resp, &state)
	if state["theme"] != "dark" {
		t.Fatalf("patched theme = %v", state["theme"])
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/settings", nil, "")
	decodeBody(t, resp, &state)
	if state["theme"] != "light" {
		t.Fatalf("reset theme = %v", state["theme"])
	}
}

func TestBookmarksOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/bookmarks", domain.Bookmark{BookID: "en", ChapterID: "c1", Position: 0.3}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var bookmark domain.Bookmark
	decodeBody(t, resp, &bookmark)
	if bookmark.ID == "" {
		t.Fatal("bookmark id not assigned")
	}

	var list struct {
		Items []domain.Bookmark `json:"items"`
		Count int               `json:"count"`
	}
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/bookmarks?bookId=en", nil, "")
	decodeBody(t, resp, &list)
	if list.Count != 1 {
		t.Fatalf("count = %d", list.Count)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/bookmarks/"+bookmark.ID, nil, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodDelete, ts.URL+"/api/purchase", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if !strings.Contains(body.Error, "method not allowed") {
		t.Fatalf("error = %q", body.Error)
	}
}
