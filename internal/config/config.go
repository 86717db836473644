package config

import (
	"fmt"
	"time"
)

// LogLevel defines the minimum severity for error logs.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// Access log formats.
const (
	AccessLogFormatJSON   = "json"
	AccessLogFormatCommon = "common"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultAddress                 = ":8080"
	DefaultPathBase                = "/"
	DefaultGracefulShutdownTimeout = "30s"
	DefaultReadHeaderTimeout       = "10s"
)

// DefaultIndexFiles and DefaultExtensions mirror the layout of an extracted
// scene layer package: every node directory carries an index.json (3dSceneLayer,
// nodepage and node documents) and resources are stored with their suffix
// stripped from the URL.
var (
	DefaultIndexFiles = []string{"index.json"}
	DefaultExtensions = []string{".json", ".bin", ".json.gz", ".bin.gz"}
)

// Config is the top-level configuration structure for the server.
type Config struct {
	Server    *ServerConfig    `json:"server,omitempty" toml:"server,omitempty" yaml:"server,omitempty"`
	Slpk      *SlpkConfig      `json:"slpk,omitempty" toml:"slpk,omitempty" yaml:"slpk,omitempty"`
	Cors      *CorsConfig      `json:"cors,omitempty" toml:"cors,omitempty" yaml:"cors,omitempty"`
	RateLimit *RateLimitConfig `json:"rate_limit,omitempty" toml:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	Logging   *LoggingConfig   `json:"logging,omitempty" toml:"logging,omitempty" yaml:"logging,omitempty"`
}

// ServerConfig holds general server settings.
type ServerConfig struct {
	Address                 *string `json:"address,omitempty" toml:"address,omitempty" yaml:"address,omitempty"`
	TLSCertFile             string  `json:"tls_cert_file,omitempty" toml:"tls_cert_file,omitempty" yaml:"tls_cert_file,omitempty"`
	TLSKeyFile              string  `json:"tls_key_file,omitempty" toml:"tls_key_file,omitempty" yaml:"tls_key_file,omitempty"`
	EnableH2C               *bool   `json:"enable_h2c,omitempty" toml:"enable_h2c,omitempty" yaml:"enable_h2c,omitempty"`
	GracefulShutdownTimeout *string `json:"graceful_shutdown_timeout,omitempty" toml:"graceful_shutdown_timeout,omitempty" yaml:"graceful_shutdown_timeout,omitempty"` // e.g., "30s"
	ReadHeaderTimeout       *string `json:"read_header_timeout,omitempty" toml:"read_header_timeout,omitempty" yaml:"read_header_timeout,omitempty"`
}

// SlpkConfig binds the scene layer middleware to a URL prefix and a directory.
// It is never mutated once the server has started.
type SlpkConfig struct {
	PathBase   string   `json:"path_base,omitempty" toml:"path_base,omitempty" yaml:"path_base,omitempty"`
	RootFolder string   `json:"root_folder" toml:"root_folder" yaml:"root_folder"`
	IndexFiles []string `json:"index_files,omitempty" toml:"index_files,omitempty" yaml:"index_files,omitempty"`
	Extensions []string `json:"extensions,omitempty" toml:"extensions,omitempty" yaml:"extensions,omitempty"`
}

// CorsConfig is the cross-origin policy applied to every response.
type CorsConfig struct {
	Enabled        *bool    `json:"enabled,omitempty" toml:"enabled,omitempty" yaml:"enabled,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" toml:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
	AllowedMethods []string `json:"allowed_methods,omitempty" toml:"allowed_methods,omitempty" yaml:"allowed_methods,omitempty"`
	AllowedHeaders []string `json:"allowed_headers,omitempty" toml:"allowed_headers,omitempty" yaml:"allowed_headers,omitempty"`
	ExposedHeaders []string `json:"exposed_headers,omitempty" toml:"exposed_headers,omitempty" yaml:"exposed_headers,omitempty"`
	MaxAge         int      `json:"max_age,omitempty" toml:"max_age,omitempty" yaml:"max_age,omitempty"` // seconds
}

// RateLimitConfig configures the global token bucket.
type RateLimitConfig struct {
	Enabled           *bool   `json:"enabled,omitempty" toml:"enabled,omitempty" yaml:"enabled,omitempty"`
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" toml:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
	Burst             int     `json:"burst,omitempty" toml:"burst,omitempty" yaml:"burst,omitempty"`
}

// LoggingConfig holds logging configurations.
type LoggingConfig struct {
	LogLevel  LogLevel         `json:"log_level,omitempty" toml:"log_level,omitempty" yaml:"log_level,omitempty"`
	AccessLog *AccessLogConfig `json:"access_log,omitempty" toml:"access_log,omitempty" yaml:"access_log,omitempty"`
	ErrorLog  *ErrorLogConfig  `json:"error_log,omitempty" toml:"error_log,omitempty" yaml:"error_log,omitempty"`
}

// AccessLogConfig configures access logging.
type AccessLogConfig struct {
	Enabled        *bool    `json:"enabled,omitempty" toml:"enabled,omitempty" yaml:"enabled,omitempty"`
	Target         string   `json:"target,omitempty" toml:"target,omitempty" yaml:"target,omitempty"`
	Format         string   `json:"format,omitempty" toml:"format,omitempty" yaml:"format,omitempty"`
	TrustedProxies []string `json:"trusted_proxies,omitempty" toml:"trusted_proxies,omitempty" yaml:"trusted_proxies,omitempty"`
	RealIPHeader   *string  `json:"real_ip_header,omitempty" toml:"real_ip_header,omitempty" yaml:"real_ip_header,omitempty"`
}

// ErrorLogConfig configures error logging.
type ErrorLogConfig struct {
	Target string `json:"target,omitempty" toml:"target,omitempty" yaml:"target,omitempty"`
}

// IsFilePath reports whether a log target names a file rather than a standard stream.
func IsFilePath(target string) bool {
	return target != "stdout" && target != "stderr" && target != ""
}

// IsEnabled reports whether the section is switched on. A nil section is off;
// a present section without an explicit flag is on.
func (c *CorsConfig) IsEnabled() bool {
	return c != nil && (c.Enabled == nil || *c.Enabled)
}

// IsEnabled reports whether rate limiting is switched on.
func (c *RateLimitConfig) IsEnabled() bool {
	return c != nil && (c.Enabled == nil || *c.Enabled)
}

// IsEnabled reports whether access logging is switched on.
func (c *AccessLogConfig) IsEnabled() bool {
	return c != nil && (c.Enabled == nil || *c.Enabled)
}

// H2CEnabled reports whether cleartext HTTP/2 is accepted. It defaults to true.
func (c *ServerConfig) H2CEnabled() bool {
	return c == nil || c.EnableH2C == nil || *c.EnableH2C
}

// TLSEnabled reports whether a certificate pair is configured.
func (c *ServerConfig) TLSEnabled() bool {
	return c != nil && c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// ShutdownTimeout returns the parsed graceful shutdown timeout.
// The value has been checked by Validate; a bad value falls back to the default.
func (c *ServerConfig) ShutdownTimeout() time.Duration {
	var raw *string
	if c != nil {
		raw = c.GracefulShutdownTimeout
	}
	return durationOrDefault(raw, DefaultGracefulShutdownTimeout)
}

// HeaderTimeout returns the parsed read header timeout.
func (c *ServerConfig) HeaderTimeout() time.Duration {
	var raw *string
	if c != nil {
		raw = c.ReadHeaderTimeout
	}
	return durationOrDefault(raw, DefaultReadHeaderTimeout)
}

func durationOrDefault(raw *string, def string) time.Duration {
	if raw != nil {
		if d, err := ParseDuration(*raw); err == nil {
			return d
		}
	}
	d, _ := time.ParseDuration(def)
	return d
}

// ParseDuration parses a strictly positive Go duration string.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration string cannot be empty")
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", s)
	}
	return d, nil
}
