package web

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/core"
	_ "github.com/JonMunkholm/sheetimport/internal/importers"
)

const contactsCSV = "name,email\nAlice,alice@example.com\nBob,bad-email\n"

type memSink struct {
	mu   sync.Mutex
	rows []map[string]string
}

func (s *memSink) BeginBatch(context.Context) error  { return nil }
func (s *memSink) CommitBatch(context.Context) error { return nil }
func (s *memSink) AbortBatch(context.Context) error  { return nil }
func (s *memSink) Close(context.Context) error       { return nil }

func (s *memSink) Insert(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, values)
	return nil
}

type memSinks struct{ sink memSink }

func (f *memSinks) NewSink(context.Context, core.Importer, string) (core.Sink, error) {
	return &f.sink, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Import: config.ImportConfig{MaxUploadSize: 1 << 20, PreviewRows: 100},
		Rate:   config.RateLimitConfig{Enabled: false},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *memSinks) {
	t.Helper()
	sinks := &memSinks{}
	svc, err := core.NewService(core.ServiceConfig{
		SpoolDir:      t.TempDir(),
		MaxConcurrent: 2,
		MaxWait:       time.Second,
	}, sinks, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewServer(ctx, svc, cfg), sinks
}

// uploadRequest builds a multipart request with a file part and form fields.
func uploadRequest(t *testing.T, target, name, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if name != "" {
		part, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func startImport(t *testing.T, s *Server, fields map[string]string) string {
	t.Helper()
	rec := serve(s, uploadRequest(t, "/api/import/contacts", "contacts.csv", contactsCSV, fields))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	return decode[StartResponse](t, rec).RunID
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestListImporters(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/importers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	importers := decode[[]ImporterResponse](t, rec)
	keys := make([]string, len(importers))
	for i, imp := range importers {
		keys[i] = imp.Key
	}
	assert.Contains(t, keys, "contacts")
	assert.Contains(t, keys, "products")
}

func TestGetImporter_Unknown(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/importers/widgets", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "IMP001", decode[ErrorResponse](t, rec).Code)
}

func TestImportLifecycle(t *testing.T) {
	s, sinks := newTestServer(t, testConfig())
	runID := startImport(t, s, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/result?wait=true", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	run := decode[core.RunRecord](t, rec)
	assert.Equal(t, core.StatusCompleted, run.Status)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 2, run.Summary.Processed)
	assert.Equal(t, 1, run.Summary.Succeeded)
	assert.Equal(t, 1, run.Summary.Failed)
	assert.Len(t, sinks.sink.rows, 1)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.PhaseComplete, decode[core.RunProgress](t, rec).Phase)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/failed-rows", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "contacts_failed.csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "name,email,Error\n"))
	assert.Contains(t, rec.Body.String(), "bad-email")

	rec = serve(s, httptest.NewRequest(http.MethodPost, "/api/runs/"+runID+"/cancel", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestProgressStream_FinishedRun(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	runID := startImport(t, s, nil)
	serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/result?wait=true", nil))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/events", nil))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: complete\n")
	assert.Contains(t, rec.Body.String(), `"run_id":"`+runID+`"`)
}

func TestRunNotFound(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	for _, path := range []string{"/api/runs/nope", "/api/runs/nope/result", "/api/runs/nope/failed-rows"} {
		rec := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "IMP004", decode[ErrorResponse](t, rec).Code, path)
	}
}

func TestImport_Errors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		file     string
		content  string
		fields   map[string]string
		wantCode int
		wantErr  string
	}{
		{"no file", "/api/import/contacts", "", "", map[string]string{"chunk_size": "10"}, http.StatusBadRequest, "FILE005"},
		{"unknown importer", "/api/import/widgets", "a.csv", contactsCSV, nil, http.StatusNotFound, "IMP001"},
		{"bad chunk size", "/api/import/contacts", "a.csv", contactsCSV, map[string]string{"chunk_size": "many"}, http.StatusBadRequest, "IMP002"},
		{"no header without mapping", "/api/import/contacts", "a.csv", contactsCSV, map[string]string{"header_row": "false"}, http.StatusBadRequest, "IMP002"},
		{"bad mapping", "/api/import/contacts", "a.csv", contactsCSV, map[string]string{"mapping": "{"}, http.StatusBadRequest, "IMP003"},
		{"unsupported format", "/api/import/contacts", "a.pdf", "%PDF-1.4 binary", nil, http.StatusUnsupportedMediaType, "FILE001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, testConfig())
			rec := serve(s, uploadRequest(t, tt.target, tt.file, tt.content, tt.fields))

			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestImport_FileTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Import.MaxUploadSize = 64
	s, _ := newTestServer(t, cfg)

	rec := serve(s, uploadRequest(t, "/api/import/contacts", "big.csv", strings.Repeat("a,b\n", 100), nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "FILE006", decode[ErrorResponse](t, rec).Code)
}

func TestPreview(t *testing.T) {
	s, sinks := newTestServer(t, testConfig())
	csv := contactsCSV + "Alice Again,Alice@Example.com\n"

	rec := serve(s, uploadRequest(t, "/api/preview/contacts", "contacts.csv", csv, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	preview := decode[core.PreviewResponse](t, rec)
	assert.Equal(t, []string{"name", "email"}, preview.Header)
	assert.Equal(t, 3, preview.Summary.TotalRows)
	assert.Equal(t, 1, preview.Summary.ValidRows)
	assert.Equal(t, 1, preview.Summary.DuplicateInFile)
	assert.Empty(t, sinks.sink.rows)
}

func TestListSheets_FlatFile(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := serve(s, uploadRequest(t, "/api/sheets", "contacts.csv", contactsCSV, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[SheetsResponse](t, rec)
	assert.Equal(t, "csv", string(resp.Format))
	assert.Empty(t, resp.Sheets)
	assert.Contains(t, rec.Body.String(), `"sheets":[]`)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, UploadLimit: 1}
	s, _ := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/importers", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/importers", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "UPL006", decode[ErrorResponse](t, rec).Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Now()
	rl := &rateLimiter{visitors: make(map[string]*visitor), rate: 1, window: time.Minute, now: func() time.Time { return now }}

	ok, _ := rl.allow("a")
	assert.True(t, ok)
	ok, wait := rl.allow("a")
	assert.False(t, ok)
	assert.InDelta(t, time.Minute, wait, float64(time.Second))

	ok, _ = rl.allow("b")
	assert.True(t, ok)

	now = now.Add(time.Minute + time.Second)
	ok, _ = rl.allow("a")
	assert.True(t, ok)

	now = now.Add(3 * time.Minute)
	rl.sweep()
	assert.Empty(t, rl.visitors)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(core.ErrRunInProgress))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(core.ErrTooManyImports))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(&core.MissingRequiredFieldError{Fields: []string{"email"}}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
