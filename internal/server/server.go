package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"example.com/slpkserve/internal/config"
	"example.com/slpkserve/internal/logger"
	"example.com/slpkserve/internal/util"
)

// Server owns the listening socket and the HTTP/1.1 + HTTP/2 stack in front
// of the application handler. HTTP/2 is negotiated through ALPN when TLS is
// configured and accepted in cleartext (h2c) otherwise, unless disabled.
type Server struct {
	cfg        *config.Config
	log        *logger.Logger
	httpServer *http.Server
	tls        bool
	h2c        bool

	mu       sync.Mutex
	listener net.Listener
}

// NewServer wires handler into a server configured by cfg. A nil tlsCfg is
// built from the configured certificate pair when one is set.
func NewServer(cfg *config.Config, lg *logger.Logger, handler http.Handler, tlsCfg *tls.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	if tlsCfg == nil && cfg.Server.TLSEnabled() {
		cert, err := tls.LoadX509KeyPair(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair from %s and %s: %w", cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile, err)
		}
		tlsCfg = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}

	s := &Server{cfg: cfg, log: lg, tls: tlsCfg != nil}
	h2s := &http2.Server{}
	h := handler
	if !s.tls && cfg.Server.H2CEnabled() {
		h = h2c.NewHandler(handler, h2s)
		s.h2c = true
	}

	s.httpServer = &http.Server{
		Handler:           h,
		ReadHeaderTimeout: cfg.Server.HeaderTimeout(),
		TLSConfig:         tlsCfg,
		ErrorLog:          log.New(serverErrorWriter{lg}, "", 0),
	}
	if s.tls {
		if err := http2.ConfigureServer(s.httpServer, h2s); err != nil {
			return nil, fmt.Errorf("failed to enable HTTP/2 over TLS: %w", err)
		}
	}
	return s, nil
}

// Start listens on the configured address (or an inherited socket) and serves
// until SIGINT or SIGTERM, then shuts down gracefully within the configured
// timeout. SIGHUP reopens log files. Start returns nil after a clean shutdown.
func (s *Server) Start() error {
	l, err := s.listen()
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve(l) }()

	for {
		select {
		case err := <-serveErr:
			return err
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				if err := s.log.ReopenLogFiles(); err != nil {
					s.log.Error("Failed to reopen log files", logger.LogFields{"error": err.Error()})
				} else {
					s.log.Info("Log files reopened", nil)
				}
				continue
			}
			timeout := s.cfg.Server.ShutdownTimeout()
			s.log.Info("Shutdown signal received", logger.LogFields{"signal": sig.String(), "timeout": timeout.String()})
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			shutdownErr := s.Shutdown(ctx)
			cancel()
			if err := <-serveErr; err != nil {
				return err
			}
			return shutdownErr
		}
	}
}

func (s *Server) listen() (net.Listener, error) {
	inherited, err := util.InheritedListeners()
	if err != nil {
		return nil, fmt.Errorf("failed to use inherited listeners: %w", err)
	}
	if len(inherited) > 0 {
		for _, extra := range inherited[1:] {
			extra.Close()
		}
		s.log.Info("Using inherited listener", logger.LogFields{"address": inherited[0].Addr().String(), "count": len(inherited)})
		return inherited[0], nil
	}
	address := config.DefaultAddress
	if s.cfg.Server != nil && s.cfg.Server.Address != nil {
		address = *s.cfg.Server.Address
	}
	return util.CreateListener("tcp", address)
}

// Serve accepts connections on l until Shutdown. It returns nil when the
// server was shut down.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	s.log.Info("Server listening", logger.LogFields{"address": l.Addr().String(), "tls": s.tls, "h2c": s.h2c})
	var err error
	if s.tls {
		err = s.httpServer.ServeTLS(l, "", "")
	} else {
		err = s.httpServer.Serve(l)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting connections and waits for in-flight requests.
// Connections still open when ctx expires are closed forcibly.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn("Graceful shutdown incomplete, closing remaining connections", logger.LogFields{"error": err.Error()})
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("forced close after %v: %w", err, closeErr)
		}
		return err
	}
	s.log.Info("Server shut down gracefully", nil)
	return nil
}

// serverErrorWriter routes net/http's internal error log into the error log.
type serverErrorWriter struct {
	log *logger.Logger
}

func (w serverErrorWriter) Write(p []byte) (int, error) {
	w.log.Warn("http: "+strings.TrimSpace(string(p)), nil)
	return len(p), nil
}
