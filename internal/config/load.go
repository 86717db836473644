package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a configuration file.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// ValidationError reports a configuration value that cannot be used.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// LoadConfig reads, decodes, defaults and validates the configuration file at path.
// Relative paths inside the file are resolved against the file's directory.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("configuration file path cannot be empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}
	cfg, err := Parse(data, DetectFormat(path, data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
	}
	if err := Finalize(cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DetectFormat picks a decoder from the file extension, falling back to
// sniffing the content when the extension is not recognised.
func DetectFormat(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".toml":
		return FormatTOML
	case ".yaml", ".yml":
		return FormatYAML
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	var probe map[string]interface{}
	if _, err := toml.Decode(string(data), &probe); err == nil {
		return FormatTOML
	}
	return FormatYAML
}

// Parse decodes data in the given format. Unknown keys are rejected.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := &Config{}
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("toml: unknown keys: %s", strings.Join(keys, ", "))
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported configuration format %q", format)
	}
	return cfg, nil
}

// Finalize applies defaults and validates cfg. baseDir anchors relative paths;
// an empty baseDir means the working directory.
func Finalize(cfg *Config, baseDir string) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	ApplyDefaults(cfg)
	if err := resolvePaths(cfg, baseDir); err != nil {
		return err
	}
	return Validate(cfg)
}

// ApplyDefaults fills every optional setting left empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	if cfg.Server.Address == nil {
		addr := DefaultAddress
		cfg.Server.Address = &addr
	}
	if cfg.Server.GracefulShutdownTimeout == nil {
		d := DefaultGracefulShutdownTimeout
		cfg.Server.GracefulShutdownTimeout = &d
	}
	if cfg.Server.ReadHeaderTimeout == nil {
		d := DefaultReadHeaderTimeout
		cfg.Server.ReadHeaderTimeout = &d
	}

	if cfg.Slpk != nil {
		if cfg.Slpk.PathBase == "" {
			cfg.Slpk.PathBase = DefaultPathBase
		}
		if len(cfg.Slpk.PathBase) > 1 {
			cfg.Slpk.PathBase = strings.TrimRight(cfg.Slpk.PathBase, "/")
			if cfg.Slpk.PathBase == "" {
				cfg.Slpk.PathBase = "/"
			}
		}
		if cfg.Slpk.IndexFiles == nil {
			cfg.Slpk.IndexFiles = append([]string(nil), DefaultIndexFiles...)
		}
		if cfg.Slpk.Extensions == nil {
			cfg.Slpk.Extensions = append([]string(nil), DefaultExtensions...)
		}
	}

	if cfg.Cors != nil {
		if cfg.Cors.AllowedMethods == nil {
			cfg.Cors.AllowedMethods = []string{"GET", "HEAD", "OPTIONS"}
		}
		if cfg.Cors.AllowedHeaders == nil {
			cfg.Cors.AllowedHeaders = []string{"If-None-Match"}
		}
		if cfg.Cors.ExposedHeaders == nil {
			cfg.Cors.ExposedHeaders = []string{"ETag", "Content-Length", "Content-Encoding"}
		}
	}

	if cfg.RateLimit != nil && cfg.RateLimit.Burst == 0 && cfg.RateLimit.RequestsPerSecond > 0 {
		cfg.RateLimit.Burst = int(math.Ceil(cfg.RateLimit.RequestsPerSecond))
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.LogLevel == "" {
		cfg.Logging.LogLevel = LogLevelInfo
	}
	if cfg.Logging.ErrorLog == nil {
		cfg.Logging.ErrorLog = &ErrorLogConfig{}
	}
	if cfg.Logging.ErrorLog.Target == "" {
		cfg.Logging.ErrorLog.Target = "stderr"
	}
	if cfg.Logging.AccessLog != nil {
		if cfg.Logging.AccessLog.Target == "" {
			cfg.Logging.AccessLog.Target = "stdout"
		}
		if cfg.Logging.AccessLog.Format == "" {
			cfg.Logging.AccessLog.Format = AccessLogFormatJSON
		}
	}
}

func resolvePaths(cfg *Config, baseDir string) error {
	anchor := func(p string) (string, error) {
		if p == "" || filepath.IsAbs(p) {
			return p, nil
		}
		if baseDir != "" {
			p = filepath.Join(baseDir, p)
		}
		return filepath.Abs(p)
	}
	var err error
	if cfg.Slpk != nil {
		if cfg.Slpk.RootFolder, err = anchor(cfg.Slpk.RootFolder); err != nil {
			return fmt.Errorf("failed to resolve slpk.root_folder: %w", err)
		}
	}
	if cfg.Server != nil {
		if cfg.Server.TLSCertFile, err = anchor(cfg.Server.TLSCertFile); err != nil {
			return fmt.Errorf("failed to resolve server.tls_cert_file: %w", err)
		}
		if cfg.Server.TLSKeyFile, err = anchor(cfg.Server.TLSKeyFile); err != nil {
			return fmt.Errorf("failed to resolve server.tls_key_file: %w", err)
		}
	}
	return nil
}

// Validate checks a defaulted configuration. The first problem found is
// returned as a *ValidationError.
func Validate(cfg *Config) error {
	if cfg.Server == nil || cfg.Server.Address == nil || *cfg.Server.Address == "" {
		return invalid("server.address", "must not be empty")
	}
	if (cfg.Server.TLSCertFile == "") != (cfg.Server.TLSKeyFile == "") {
		return invalid("server.tls_cert_file", "tls_cert_file and tls_key_file must be set together")
	}
	if cfg.Server.GracefulShutdownTimeout != nil {
		if _, err := ParseDuration(*cfg.Server.GracefulShutdownTimeout); err != nil {
			return invalid("server.graceful_shutdown_timeout", "%v", err)
		}
	}
	if cfg.Server.ReadHeaderTimeout != nil {
		if _, err := ParseDuration(*cfg.Server.ReadHeaderTimeout); err != nil {
			return invalid("server.read_header_timeout", "%v", err)
		}
	}

	if err := validateSlpk(cfg.Slpk); err != nil {
		return err
	}

	if cfg.Cors.IsEnabled() && len(cfg.Cors.AllowedOrigins) == 0 {
		return invalid("cors.allowed_origins", "must list at least one origin when cors is enabled")
	}
	if cfg.Cors != nil && cfg.Cors.MaxAge < 0 {
		return invalid("cors.max_age", "must not be negative")
	}

	if cfg.RateLimit.IsEnabled() {
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			return invalid("rate_limit.requests_per_second", "must be positive")
		}
		if cfg.RateLimit.Burst < 1 {
			return invalid("rate_limit.burst", "must be at least 1")
		}
	}

	return validateLogging(cfg.Logging)
}

func validateSlpk(s *SlpkConfig) error {
	if s == nil {
		return invalid("slpk", "section is required")
	}
	if !strings.HasPrefix(s.PathBase, "/") {
		return invalid("slpk.path_base", "must start with '/', got %q", s.PathBase)
	}
	if strings.ContainsAny(s.PathBase, "{} \t?#") || strings.Contains(s.PathBase, "//") {
		return invalid("slpk.path_base", "must be a plain URL path, got %q", s.PathBase)
	}
	if s.RootFolder == "" {
		return invalid("slpk.root_folder", "must not be empty")
	}
	fi, err := os.Stat(s.RootFolder)
	if err != nil {
		return invalid("slpk.root_folder", "%v", err)
	}
	if !fi.IsDir() {
		return invalid("slpk.root_folder", "%s is not a directory", s.RootFolder)
	}
	for i, name := range s.IndexFiles {
		if name == "" || strings.ContainsAny(name, `/\`) {
			return invalid(fmt.Sprintf("slpk.index_files[%d]", i), "must be a plain file name, got %q", name)
		}
	}
	for i, ext := range s.Extensions {
		if ext == "" || strings.ContainsAny(ext, `/\`) {
			return invalid(fmt.Sprintf("slpk.extensions[%d]", i), "must be a non-empty suffix, got %q", ext)
		}
	}
	return nil
}

func validateLogging(l *LoggingConfig) error {
	if l == nil {
		return nil
	}
	switch l.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return invalid("logging.log_level", "unknown level %q", l.LogLevel)
	}
	if l.ErrorLog != nil {
		if err := validateTarget("logging.error_log.target", l.ErrorLog.Target); err != nil {
			return err
		}
	}
	if l.AccessLog != nil {
		if err := validateTarget("logging.access_log.target", l.AccessLog.Target); err != nil {
			return err
		}
		switch l.AccessLog.Format {
		case AccessLogFormatJSON, AccessLogFormatCommon:
		default:
			return invalid("logging.access_log.format", "must be %q or %q, got %q", AccessLogFormatJSON, AccessLogFormatCommon, l.AccessLog.Format)
		}
	}
	return nil
}

func validateTarget(field, target string) error {
	if IsFilePath(target) && !filepath.IsAbs(target) {
		return invalid(field, "file targets must be absolute paths, got %q", target)
	}
	return nil
}
