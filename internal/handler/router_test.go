package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"chat-edge/internal/assets"
	"chat-edge/internal/client"
	"chat-edge/internal/config"
	"chat-edge/internal/metrics"
	"chat-edge/internal/middleware"
	"chat-edge/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEcho assembles the public listener the way the binary does.
func newTestEcho(t *testing.T, backendURL string, binding assets.Binding) (*echo.Echo, *metrics.Metrics) {
	t.Helper()

	logger := discardLogger()
	cfg := &config.Config{
		Backend: config.BackendConfig{URL: backendURL, IdleConnections: 10},
	}
	m := metrics.New()
	bc := client.NewBackendClient(cfg, logger, m)
	svc := service.NewProxyService(bc, cfg, logger)
	router := NewRouterHandler(svc, assets.NewAdapter(binding, logger), logger)

	e := echo.New()
	e.HTTPErrorHandler = NewErrorHandler(logger, m)
	e.Use(
		middleware.Boundary(logger),
		middleware.RequestID(),
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(m),
		echomw.BodyLimit("1KB"),
		middleware.Boundary(logger),
	)
	RegisterRoutes(e, router)
	return e, m
}

// noRedirectClient reports redirects to the test instead of following them.
func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// pathRecorder records the paths it is asked to serve.
type pathRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (p *pathRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.paths = append(p.paths, r.URL.Path)
	p.mu.Unlock()
	_, _ = io.WriteString(w, "asset:"+r.URL.Path)
}

func (p *pathRecorder) Paths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

func TestRouter_ForwardsChatUnchanged(t *testing.T) {
	type seen struct {
		method, path, query string
		multi               []string
		contentType         string
		contentLength       int64
		body                []byte
	}
	got := make(chan seen, 1)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- seen{
			method:        r.Method,
			path:          r.URL.Path,
			query:         r.URL.RawQuery,
			multi:         r.Header.Values("X-Multi"),
			contentType:   r.Header.Get("Content-Type"),
			contentLength: r.ContentLength,
			body:          body,
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Add("X-Backend", "one")
		w.Header().Add("X-Backend", "two")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"answer":"hello","tool_trace":[{"tool":"search"}]}`)
	}))
	defer backend.Close()

	e, _ := newTestEcho(t, backend.URL, assets.Absent())
	edge := httptest.NewServer(e)
	defer edge.Close()

	reqBody := []byte(`{"message":"cześć"}`)
	req, err := http.NewRequest(http.MethodPost, edge.URL+"/api/chat?lang=pl&x=1", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Add("X-Multi", "a")
	req.Header.Add("X-Multi", "b")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	s := <-got
	if s.method != http.MethodPost {
		t.Errorf("backend method = %q, want POST", s.method)
	}
	if s.path != "/api/chat" {
		t.Errorf("backend path = %q, want /api/chat", s.path)
	}
	if s.query != "lang=pl&x=1" {
		t.Errorf("backend query = %q, want %q", s.query, "lang=pl&x=1")
	}
	if strings.Join(s.multi, ",") != "a,b" {
		t.Errorf("backend X-Multi = %v, want [a b]", s.multi)
	}
	if s.contentType != "application/json" {
		t.Errorf("backend Content-Type = %q", s.contentType)
	}
	if s.contentLength != int64(len(reqBody)) {
		t.Errorf("backend ContentLength = %d, want %d", s.contentLength, len(reqBody))
	}
	if !bytes.Equal(s.body, reqBody) {
		t.Errorf("backend body = %q, want %q", s.body, reqBody)
	}

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if got := resp.Header.Values("X-Backend"); strings.Join(got, ",") != "one,two" {
		t.Errorf("X-Backend = %v, want [one two]", got)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"answer":"hello","tool_trace":[{"tool":"search"}]}` {
		t.Errorf("body = %q", body)
	}
}

func TestRouter_DoesNotAddHeaders(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header()["Content-Type"] = nil
		w.Header()["Date"] = nil
		_, _ = io.WriteString(w, "<html>raw</html>")
	}))
	defer backend.Close()

	e, _ := newTestEcho(t, backend.URL, assets.Absent())
	edge := httptest.NewServer(e)
	defer edge.Close()

	resp, err := http.Post(edge.URL+"/api/chat", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if v, ok := resp.Header["Content-Type"]; ok {
		t.Errorf("Content-Type = %v, want absent", v)
	}
	if v, ok := resp.Header["Date"]; ok {
		t.Errorf("Date = %v, want absent", v)
	}
	if v, ok := resp.Header["X-Request-Id"]; ok {
		t.Errorf("X-Request-Id = %v, want absent", v)
	}
}

func TestRouter_PassesRedirectsThrough(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", "/elsewhere")
		w.WriteHeader(http.StatusFound)
	}))
	defer backend.Close()

	e, _ := newTestEcho(t, backend.URL, assets.Absent())
	edge := httptest.NewServer(e)
	defer edge.Close()

	resp, err := noRedirectClient().Post(edge.URL+"/api/chat", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/elsewhere" {
		t.Errorf("Location = %q, want /elsewhere", loc)
	}
}

func TestRouter_AnyMethodOnChatPathIsForwarded(t *testing.T) {
	methods := []string{
		http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions,
		"PROPFIND", "PURGE", "LOCK", "MKCOL", "QUERY",
	}

	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			var gotMethod string
			backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				w.WriteHeader(http.StatusAccepted)
			}))
			defer backend.Close()

			e, _ := newTestEcho(t, backend.URL, assets.Absent())
			req := httptest.NewRequest(method, "/api/chat", http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusAccepted {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
			}
			if gotMethod != method {
				t.Errorf("backend method = %q, want %q", gotMethod, method)
			}
		})
	}
}

func TestRouter_ConfigErrors(t *testing.T) {
	tests := []struct {
		name       string
		backendURL string
		wantInMsg  string
	}{
		{"unset", "", "BACKEND_URL is not configured"},
		{"not a url", "not-a-url", "not-a-url"},
		{"missing scheme", "backend.internal:8080", "backend.internal:8080"},
		{"unsupported scheme", "ftp://backend.internal", "ftp://backend.internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, m := newTestEcho(t, tt.backendURL, assets.Absent())

			req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`))
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}

			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
			}
			if len(body) != 1 {
				t.Errorf("body = %v, want only an answer field", body)
			}
			if !strings.Contains(body["answer"], tt.wantInMsg) {
				t.Errorf("answer = %q, want it to contain %q", body["answer"], tt.wantInMsg)
			}
			if n := failureCount(t, m, "config_error"); n != 1 {
				t.Errorf("config_error failures = %v, want 1", n)
			}
		})
	}
}

func TestRouter_TransportFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := backend.URL
	backend.Close()

	e, m := newTestEcho(t, deadURL, assets.Absent())
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), UnexpectedErrorPrefix) {
		t.Errorf("body = %q, want prefix %q", rec.Body.String(), UnexpectedErrorPrefix)
	}
	if !strings.Contains(rec.Body.String(), "forward to backend") {
		t.Errorf("body = %q, want the failure message", rec.Body.String())
	}
	if n := failureCount(t, m, "unexpected_error"); n != 1 {
		t.Errorf("unexpected_error failures = %v, want 1", n)
	}
}

func TestRouter_RootRewrittenToIndex(t *testing.T) {
	rec := &pathRecorder{}
	e, _ := newTestEcho(t, "", assets.Present(rec))

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := rec.Paths(); len(got) != 1 || got[0] != assets.IndexPath {
		t.Errorf("capability paths = %v, want [%s]", got, assets.IndexPath)
	}
}

func TestRouter_AssetPathsUnmodified(t *testing.T) {
	paths := []string{"/app.js", "/styles.css", "/index.html", "/api/chat/", "/api", "/nested/file.txt"}

	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			rec := &pathRecorder{}
			e, _ := newTestEcho(t, "http://backend.invalid", assets.Present(rec))

			w := httptest.NewRecorder()
			e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, http.NoBody))

			if got := rec.Paths(); len(got) != 1 || got[0] != p {
				t.Errorf("capability paths = %v, want [%s]", got, p)
			}
			if w.Body.String() != "asset:"+p {
				t.Errorf("body = %q, want %q", w.Body.String(), "asset:"+p)
			}
		})
	}
}

func TestRouter_ServesFileSystem(t *testing.T) {
	fsys := fstest.MapFS{
		"index.html": {Data: []byte("<h1>chat</h1>")},
		"app.js":     {Data: []byte("console.log(1)")},
	}
	e, _ := newTestEcho(t, "", assets.Present(assets.FileServer(fsys)))

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/", http.StatusOK, "<h1>chat</h1>"},
		{"/index.html", http.StatusOK, "<h1>chat</h1>"},
		{"/app.js", http.StatusOK, "console.log(1)"},
		{"/missing.css", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRouter_AssetCapabilityAbsent(t *testing.T) {
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/"},
		{http.MethodGet, "/app.js"},
		{http.MethodGet, "/favicon.ico"},
		{"PURGE", "/app.js"},
		{"SEARCH", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			e, m := newTestEcho(t, "http://backend.invalid", assets.Absent())

			w := httptest.NewRecorder()
			e.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, http.NoBody))

			if w.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
				t.Errorf("Content-Type = %q, want text/plain", ct)
			}
			if w.Body.String() != assets.ErrUnavailable.Error() {
				t.Errorf("body = %q, want %q", w.Body.String(), assets.ErrUnavailable.Error())
			}
			if n := failureCount(t, m, "capability_missing"); n != 1 {
				t.Errorf("capability_missing failures = %v, want 1", n)
			}
		})
	}
}

func TestRouter_PanicBecomesUnexpectedError(t *testing.T) {
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("disk on fire")
	})
	e, m := newTestEcho(t, "", assets.Present(boom))

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app.js", http.NoBody))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if w.Body.String() != UnexpectedErrorPrefix+"disk on fire" {
		t.Errorf("body = %q, want %q", w.Body.String(), UnexpectedErrorPrefix+"disk on fire")
	}
	if n := failureCount(t, m, "unexpected_error"); n != 1 {
		t.Errorf("unexpected_error failures = %v, want 1", n)
	}
}

func TestRouter_BodyLimit(t *testing.T) {
	called := false
	backend := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer backend.Close()

	e, m := newTestEcho(t, backend.URL, assets.Absent())
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(strings.Repeat("x", 4096)))
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
	if called {
		t.Error("backend was called for an oversized body")
	}
	if n := failureCount(t, m, "http_error"); n != 1 {
		t.Errorf("http_error failures = %v, want 1", n)
	}
}

// failureCount reads chat_edge_failures_total{kind} from m.
func failureCount(t *testing.T, m *metrics.Metrics, kind string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != "chat_edge_failures_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "kind" && lp.GetValue() == kind {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
