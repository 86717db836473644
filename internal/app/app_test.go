package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"example.com/slpkserve/internal/config"
	"example.com/slpkserve/internal/logger"
)

func newTestApp(t *testing.T, logBuf *bytes.Buffer) *App {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]int{
		"/data/layers/0/index.json":                  1500,
		"/data/layers/0/nodes/1/geometries/0.bin.gz": 2500,
		"/data/metadata.json":                        96,
	}
	for name, size := range files {
		if err := afero.WriteFile(fs, name, bytes.Repeat([]byte("x"), size), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := &config.Config{Slpk: &config.SlpkConfig{PathBase: "/slpk", RootFolder: "/data"}}
	config.ApplyDefaults(cfg)

	lg, err := logger.NewWithWriters(cfg.Logging, logBuf, nil)
	if err != nil {
		t.Fatal(err)
	}
	a, err := New(cfg, fs, lg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil, nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestScanAssets(t *testing.T) {
	a := newTestApp(t, &bytes.Buffer{})
	sum, err := a.ScanAssets()
	if err != nil {
		t.Fatalf("ScanAssets failed: %v", err)
	}
	if sum.Files != 3 || sum.Bytes != 4096 {
		t.Errorf("ScanAssets() = %+v, want 3 files / 4096 bytes", sum)
	}
}

func TestLogMount(t *testing.T) {
	var logBuf bytes.Buffer
	a := newTestApp(t, &logBuf)
	a.LogMount()

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(logBuf.Bytes()), &entry); err != nil {
		t.Fatalf("banner is not a single JSON entry: %v (%s)", err, logBuf.String())
	}
	if entry["msg"] != "SLPK /slpk => /data" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["assets"] != "3" || entry["size"] != "4.1 kB" {
		t.Errorf("assets=%v size=%v", entry["assets"], entry["size"])
	}
}

func TestRouterIsWired(t *testing.T) {
	a := newTestApp(t, &bytes.Buffer{})
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slpk/metadata", nil))
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "xxx") {
		t.Errorf("GET /slpk/metadata = %d", rec.Code)
	}
	if a.Server == nil || a.Router.PathBase() != "/slpk" {
		t.Error("server or router not assembled")
	}
}
