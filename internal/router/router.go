// Package router assembles the HTTP handler tree: the scene layer middleware
// mounted at its path base, the fallback file server, and the cross-cutting
// middlewares.
package router

import (
	"fmt"
	"net/http"

	"github.com/go-pkgz/routegroup"
	"github.com/spf13/afero"

	"example.com/slpkserve/internal/config"
	"example.com/slpkserve/internal/handlers/slpk"
	"example.com/slpkserve/internal/logger"
	"example.com/slpkserve/internal/server"
)

// Router is the application's root http.Handler.
type Router struct {
	bundle   *routegroup.Bundle
	handler  http.Handler
	slpk     *slpk.Middleware
	pathBase string
}

// New builds the handler tree for cfg over fs (the OS filesystem when nil).
// cfg must have been finalized by config.Finalize.
func New(cfg *config.Config, fs afero.Fs, lg *logger.Logger) (*Router, error) {
	if cfg == nil || cfg.Slpk == nil {
		return nil, fmt.Errorf("slpk configuration cannot be nil")
	}
	if lg == nil {
		lg = logger.NewDiscardLogger()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	mw, err := slpk.New(cfg.Slpk, fs, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to create slpk middleware: %w", err)
	}
	core := mw.Handler(slpk.NewFallback(fs, cfg.Slpk.RootFolder))

	bundle := routegroup.New(http.NewServeMux())
	if cfg.RateLimit.IsEnabled() {
		bundle.Use(NewRateLimitMiddleware(cfg.RateLimit, lg).Handle)
	}
	if cfg.Cors.IsEnabled() {
		bundle.Use(NewCorsMiddleware(cfg.Cors).Handle)
	}

	base := cfg.Slpk.PathBase
	if base == "" || base == "/" {
		base = "/"
		bundle.Handle("/", core)
	} else {
		// The exact base reaches the middleware with an empty path, which it
		// declines in favour of the fallback.
		stripped := http.StripPrefix(base, core)
		bundle.Handle(base, stripped)
		bundle.Handle(base+"/", stripped)
		bundle.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			server.SendDefaultErrorResponse(w, http.StatusNotFound, r, "", lg)
		})
	}

	rt := &Router{bundle: bundle, handler: bundle, slpk: mw, pathBase: base}
	if lg.AccessEnabled() {
		rt.handler = NewAccessLogMiddleware(lg).Handle(bundle)
	}
	return rt, nil
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.handler.ServeHTTP(w, r)
}

// PathBase returns the URL prefix the scene layer middleware is mounted at.
func (rt *Router) PathBase() string { return rt.pathBase }

// Slpk returns the mounted scene layer middleware.
func (rt *Router) Slpk() *slpk.Middleware { return rt.slpk }
