package slpk

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewFallback(t *testing.T) {
	fs := newTestFs(t, map[string]string{
		"index.html":          "<html>viewer</html>",
		"css/site.css":        "body{}",
		"layers/0/index.json": `{}`,
	})
	h := NewFallback(fs, testRoot)

	tests := []struct {
		target     string
		wantStatus int
		wantBody   string
	}{
		{"/", http.StatusOK, "<html>viewer</html>"},
		{"/css/site.css", http.StatusOK, "body{}"},
		{"/layers/", http.StatusNotFound, ""},
		{"/missing.js", http.StatusNotFound, ""},
	}
	for _, tc := range tests {
		t.Run(tc.target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.target, nil))
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if tc.wantBody != "" && rec.Body.String() != tc.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tc.wantBody)
			}
		})
	}
}
