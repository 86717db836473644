package router

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"example.com/slpkserve/internal/config"
	"example.com/slpkserve/internal/logger"
	"example.com/slpkserve/internal/server"
)

// RequestIDHeader is accepted from clients to correlate access log entries.
const RequestIDHeader = "X-Request-Id"

const maxRequestIDLen = 128

// CorsMiddleware applies the configured cross-origin policy.
type CorsMiddleware struct {
	allowAll      bool
	origins       map[string]struct{}
	allowMethods  string
	allowHeaders  string
	exposeHeaders string
	maxAge        string
}

func NewCorsMiddleware(cfg *config.CorsConfig) *CorsMiddleware {
	cm := &CorsMiddleware{
		origins:       make(map[string]struct{}, len(cfg.AllowedOrigins)),
		allowMethods:  strings.Join(cfg.AllowedMethods, ", "),
		allowHeaders:  strings.Join(cfg.AllowedHeaders, ", "),
		exposeHeaders: strings.Join(cfg.ExposedHeaders, ", "),
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			cm.allowAll = true
		}
		cm.origins[strings.ToLower(o)] = struct{}{}
	}
	if cfg.MaxAge > 0 {
		cm.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	return cm
}

func (cm *CorsMiddleware) allowed(origin string) bool {
	if cm.allowAll {
		return true
	}
	_, ok := cm.origins[strings.ToLower(origin)]
	return ok
}

// Handle answers preflight requests with 204 and decorates other responses
// from allowed origins. Requests without an Origin pass through untouched.
func (cm *CorsMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !cm.allowed(origin) {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		if cm.allowAll {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if cm.allowMethods != "" {
				h.Set("Access-Control-Allow-Methods", cm.allowMethods)
			}
			if cm.allowHeaders != "" {
				h.Set("Access-Control-Allow-Headers", cm.allowHeaders)
			}
			if cm.maxAge != "" {
				h.Set("Access-Control-Max-Age", cm.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if cm.exposeHeaders != "" {
			h.Set("Access-Control-Expose-Headers", cm.exposeHeaders)
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitMiddleware is a single token bucket shared by all clients.
type RateLimitMiddleware struct {
	limiter *rate.Limiter
	log     *logger.Logger
}

func NewRateLimitMiddleware(cfg *config.RateLimitConfig, lg *logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		log:     lg,
	}
}

func (rlm *RateLimitMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rlm.limiter.Allow() {
			rlm.log.Debug("Rate limit exceeded", logger.LogFields{"path": r.URL.Path, "remote_addr": r.RemoteAddr})
			w.Header().Set("Retry-After", "1")
			server.SendDefaultErrorResponse(w, http.StatusTooManyRequests, r, "", rlm.log)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AccessLogMiddleware writes one access log entry per request.
type AccessLogMiddleware struct {
	log *logger.Logger
}

func NewAccessLogMiddleware(lg *logger.Logger) *AccessLogMiddleware {
	return &AccessLogMiddleware{log: lg}
}

func (alm *AccessLogMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = uuid.NewString()
		}
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		defer func() {
			alm.log.Access(r, requestID, rec.Status(), rec.bytes, time.Since(start))
		}()
		next.ServeHTTP(rec, r)
	})
}

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(p)
	s.bytes += int64(n)
	return n, err
}

// Status returns the status sent so far, 200 if the handler wrote nothing.
func (s *statusRecorder) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
