package slpk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func TestBuild(t *testing.T) {
	files := map[string]string{
		"data.json.gz": "\x1f\x8b gzipped json",
		"data.bin.gz":  "\x1f\x8b gzipped geometry",
		"data.json":    `{"layerType":"3DObject"}`,
		"data.bin":     "\x00\x01\x02\xff",
		"data.txt":     "plain",
	}
	fs := newTestFs(t, files)
	b := NewBuilder(fs)
	etag := Validator(testModTime)

	tests := []struct {
		file        string
		contentType string
		encoding    string
		kind        Kind
		wantBody    bool
	}{
		{"data.json.gz", "application/json", "gzip", KindGzipJSON, true},
		{"data.bin.gz", "application/octet-stream", "gzip", KindGzip, true},
		{"data.json", "application/json", "", KindJSON, true},
		{"data.bin", "application/octet-stream", "", KindBinary, true},
		{"data.txt", "", "", KindUnclassified, false},
	}
	for _, tc := range tests {
		t.Run(tc.file, func(t *testing.T) {
			resp, err := b.Build(context.Background(), testRoot+"/"+tc.file, "")
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			if resp.Status != http.StatusOK || resp.Kind != tc.kind {
				t.Fatalf("Build() status=%d kind=%v, want 200 %v", resp.Status, resp.Kind, tc.kind)
			}
			size := strconv.Itoa(len(files[tc.file]))
			want := map[string]string{
				"Content-Length":   size,
				"Cache-Control":    "no-cache",
				"Etag":             etag,
				"Content-Type":     tc.contentType,
				"Content-Encoding": tc.encoding,
			}
			for k, v := range want {
				if got := resp.Header.Get(k); got != v {
					t.Errorf("%s = %q, want %q", k, got, v)
				}
			}
			if tc.wantBody && string(resp.Body) != files[tc.file] {
				t.Errorf("body = %q, want file bytes %q", resp.Body, files[tc.file])
			}
			if !tc.wantBody && len(resp.Body) != 0 {
				t.Errorf("body = %q, want empty", resp.Body)
			}
		})
	}
}

func TestBuild_NotModified(t *testing.T) {
	fs := newTestFs(t, map[string]string{"data.json.gz": "gz"})
	b := NewBuilder(fs)
	path := testRoot + "/data.json.gz"

	first, err := b.Build(context.Background(), path, "")
	if err != nil {
		t.Fatal(err)
	}
	etag := first.Header.Get("ETag")
	if etag != Validator(testModTime) {
		t.Fatalf("ETag = %q, want %q", etag, Validator(testModTime))
	}

	second, err := b.Build(context.Background(), path, etag)
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != http.StatusNotModified || len(second.Header) != 0 || len(second.Body) != 0 {
		t.Errorf("conditional Build() = %d %v %q, want bare 304", second.Status, second.Header, second.Body)
	}

	// Weak or quoted forms are not the validator.
	for _, inm := range []string{`"` + etag + `"`, "W/" + etag, "*"} {
		resp, err := b.Build(context.Background(), path, inm)
		if err != nil {
			t.Fatal(err)
		}
		if resp.Status != http.StatusOK {
			t.Errorf("If-None-Match %q: status = %d, want 200", inm, resp.Status)
		}
	}
}

func TestBuild_Errors(t *testing.T) {
	fs := newTestFs(t, map[string]string{"data.json": "{}"})

	if _, err := NewBuilder(fs).Build(context.Background(), testRoot+"/missing.json", ""); err == nil {
		t.Error("expected error for a missing file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewBuilder(fs).Build(ctx, testRoot+"/data.json", ""); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Build() error = %v, want context.Canceled", err)
	}

	openErr := errors.New("disk on fire")
	_, err := NewBuilder(faultyFs{Fs: fs, openErr: openErr}).Build(context.Background(), testRoot+"/data.json", "")
	if !errors.Is(err, openErr) {
		t.Errorf("Build() error = %v, want wrapped open failure", err)
	}

	// A 304 never opens the file.
	resp, err := NewBuilder(faultyFs{Fs: fs, openErr: openErr}).Build(context.Background(), testRoot+"/data.json", Validator(testModTime))
	if err != nil || resp.Status != http.StatusNotModified {
		t.Errorf("conditional Build() = %v, %v; want 304", resp, err)
	}
}

func TestResponseSend(t *testing.T) {
	resp := &Response{Status: http.StatusOK, Header: http.Header{"Etag": {"ABC"}}, Body: []byte("body")}

	rec := httptest.NewRecorder()
	n, err := resp.Send(rec, false)
	if err != nil || n != 4 {
		t.Fatalf("Send() = %d, %v", n, err)
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "body" || rec.Header().Get("ETag") != "ABC" {
		t.Errorf("unexpected response: %d %q %v", rec.Code, rec.Body.String(), rec.Header())
	}

	rec = httptest.NewRecorder()
	n, err = resp.Send(rec, true)
	if err != nil || n != 0 || rec.Body.Len() != 0 {
		t.Errorf("HEAD Send() = %d, %v, body %q", n, err, rec.Body.String())
	}
	if rec.Header().Get("ETag") != "ABC" {
		t.Error("HEAD response lost its headers")
	}
}
