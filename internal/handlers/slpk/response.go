package slpk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/spf13/afero"
)

// Response is a fully materialised reply: headers are final and the body is
// already in memory.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Kind   Kind
}

// Builder turns a resolved file into a Response.
type Builder struct {
	fs afero.Fs
}

// NewBuilder returns a Builder reading from fs.
func NewBuilder(fs afero.Fs) *Builder {
	return &Builder{fs: fs}
}

// Build answers a request for filePath. If ifNoneMatch equals the file's
// validator the result is a bodiless 304. Otherwise the result is a 200 with
// Content-Length, Cache-Control: no-cache and ETag, plus Content-Type,
// Content-Encoding and body according to the file's Kind. Files of an
// unclassified kind get no Content-Type and an empty body.
//
// The body is read in full. A cancelled ctx stops Build before the file is opened.
func (b *Builder) Build(ctx context.Context, filePath, ifNoneMatch string) (*Response, error) {
	file, err := statFile(b.fs, filePath)
	if err != nil {
		return nil, err
	}

	etag := Validator(file.ModTime)
	if etag == ifNoneMatch {
		return &Response{Status: http.StatusNotModified, Header: http.Header{}}, nil
	}

	kind := Classify(file.Path)
	resp := &Response{Status: http.StatusOK, Header: http.Header{}, Kind: kind}
	resp.Header.Set("Content-Length", strconv.FormatInt(file.Size, 10))
	resp.Header.Set("Cache-Control", "no-cache")
	resp.Header.Set("ETag", etag)

	if kind == KindUnclassified {
		return resp, nil
	}
	resp.Header.Set("Content-Type", kind.ContentType())
	if enc := kind.ContentEncoding(); enc != "" {
		resp.Header.Set("Content-Encoding", enc)
	}

	body, err := b.readAll(ctx, file)
	if err != nil {
		return nil, err
	}
	resp.Body = body
	return resp, nil
}

func (b *Builder) readAll(ctx context.Context, file ResolvedFile) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", file.Path, err)
	}
	f, err := b.fs.Open(file.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	body := make([]byte, file.Size)
	if _, err := io.ReadFull(f, body); err != nil {
		return nil, fmt.Errorf("read %s: %w", file.Path, err)
	}
	return body, nil
}

// Send writes the response. For HEAD requests the body is omitted.
func (r *Response) Send(w http.ResponseWriter, head bool) (int64, error) {
	h := w.Header()
	for k, vv := range r.Header {
		h[k] = vv
	}
	w.WriteHeader(r.Status)
	if head || len(r.Body) == 0 {
		return 0, nil
	}
	n, err := w.Write(r.Body)
	return int64(n), err
}
