package slpk

import (
	"fmt"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"example.com/slpkserve/internal/config"
	"example.com/slpkserve/internal/logger"
	"example.com/slpkserve/internal/server"
)

const allowedMethods = "GET, HEAD, OPTIONS"

// Middleware serves scene layer resources below a mount point. It holds no
// per-request state and is safe for concurrent use.
type Middleware struct {
	cfg      *config.SlpkConfig
	resolver *Resolver
	builder  *Builder
	log      *logger.Logger
}

// New creates the middleware for cfg. A nil fs means the OS filesystem.
func New(cfg *config.SlpkConfig, fs afero.Fs, lg *logger.Logger) (*Middleware, error) {
	if cfg == nil {
		return nil, fmt.Errorf("slpk configuration cannot be nil")
	}
	if cfg.RootFolder == "" {
		return nil, fmt.Errorf("slpk root folder cannot be empty")
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if lg == nil {
		lg = logger.NewDiscardLogger()
	}
	return &Middleware{
		cfg:      cfg,
		resolver: NewResolver(fs, cfg),
		builder:  NewBuilder(fs),
		log:      lg,
	}, nil
}

// Resolver exposes the path resolver bound to this middleware.
func (m *Middleware) Resolver() *Resolver { return m.resolver }

// Handler chains the middleware in front of next. Requests TryServe declines
// are passed to next; a nil next answers them with 404.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.TryServe(w, r) {
			next.ServeHTTP(w, r)
		}
	})
}

// TryServe answers r if it is addressed to the middleware and reports whether
// it did. r.URL.Path is relative to the mount point; a request for the mount
// point itself (an empty path) is declined.
//
// Any error or panic while handling is logged once and answered with 500 and
// the error text as a plain-text body.
func (m *Middleware) TryServe(w http.ResponseWriter, r *http.Request) (handled bool) {
	if r.URL.Path == "" {
		return false
	}
	handled = true
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			m.fail(w, r, fmt.Errorf("%v", rec))
		}
	}()
	if err := m.serve(w, r); err != nil {
		m.fail(w, r, err)
	}
	return handled
}

func (m *Middleware) serve(w http.ResponseWriter, r *http.Request) error {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	case http.MethodOptions:
		w.Header().Set("Allow", allowedMethods)
		w.WriteHeader(http.StatusNoContent)
		return nil
	default:
		w.Header().Set("Allow", allowedMethods)
		server.SendDefaultErrorResponse(w, http.StatusMethodNotAllowed, r, "", m.log)
		return nil
	}

	reqPath := r.URL.Path
	m.log.Debug("SLPK request", logger.LogFields{"path": reqPath})

	filePath := m.resolver.Resolve(reqPath)
	if filePath == "" {
		m.log.Warn("No file found for request", logger.LogFields{"path": reqPath})
		w.WriteHeader(http.StatusNotFound)
		return nil
	}

	resp, err := m.builder.Build(r.Context(), filePath, r.Header.Get("If-None-Match"))
	if err != nil {
		return err
	}
	m.log.Debug("Serving SLPK resource", logger.LogFields{
		"path":   reqPath,
		"file":   filePath,
		"status": resp.Status,
		"kind":   resp.Kind.String(),
		"size":   humanize.Bytes(uint64(len(resp.Body))),
	})

	// Headers are on the wire once Send starts; a write failure can only be logged.
	if _, err := resp.Send(w, r.Method == http.MethodHead); err != nil {
		m.log.Warn("Failed to write SLPK response body", logger.LogFields{
			"path":  reqPath,
			"file":  filePath,
			"error": err.Error(),
		})
	}
	return nil
}

func (m *Middleware) fail(w http.ResponseWriter, r *http.Request, err error) {
	m.log.Error(fmt.Sprintf("Handle %s error.", r.URL.Path), logger.LogFields{
		"path":  r.URL.Path,
		"error": err.Error(),
	})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	io.WriteString(w, err.Error())
}
