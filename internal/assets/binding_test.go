package assets

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chat-edge/internal/config"
)

func TestNewBinding_Embedded(t *testing.T) {
	b, err := NewBinding(&config.Config{Assets: config.AssetsConfig{Embedded: true}})
	if err != nil {
		t.Fatalf("NewBinding() error = %v", err)
	}
	h, ok := b.Handler()
	if !ok {
		t.Fatal("embedded binding should be present")
	}

	for _, p := range []string{"/index.html", "/app.js", "/styles.css"} {
		req := httptest.NewRequest(http.MethodGet, p, http.NoBody)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", p, rec.Code, http.StatusOK)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/index.html", http.NoBody)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), `id="chat-form"`) {
		t.Error("embedded index.html does not contain the chat form")
	}
}

func TestNewBinding_Dir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("from disk"), 0o644); err != nil {
		t.Fatal(err)
	}

	b, err := NewBinding(&config.Config{Assets: config.AssetsConfig{Dir: dir}})
	if err != nil {
		t.Fatalf("NewBinding() error = %v", err)
	}
	h, ok := b.Handler()
	if !ok {
		t.Fatal("dir binding should be present")
	}

	req := httptest.NewRequest(http.MethodGet, "/index.html", http.NoBody)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Body.String() != "from disk" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "from disk")
	}
}

func TestNewBinding_None(t *testing.T) {
	b, err := NewBinding(&config.Config{})
	if err != nil {
		t.Fatalf("NewBinding() error = %v", err)
	}
	if _, ok := b.Handler(); ok {
		t.Error("binding should be absent when no assets are configured")
	}
}
