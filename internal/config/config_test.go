package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// writeTempFile creates a file with the given content and extension inside dir.
func writeTempFile(t *testing.T, dir, content, ext string) string {
	t.Helper()
	f, err := os.CreateTemp(dir, "test-config-*"+ext)
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close temp file: %v", err)
	}
	return f.Name()
}

// checkErrorContains checks if the error is not nil and its message contains the expected substring.
func checkErrorContains(t *testing.T, err error, expectedSubstring string) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected an error containing %q, but got nil", expectedSubstring)
	}
	if !strings.Contains(err.Error(), expectedSubstring) {
		t.Fatalf("Expected error message to contain %q, but got: %v", expectedSubstring, err)
	}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestLoadConfig_EmptyPath(t *testing.T) {
	_, err := LoadConfig("")
	checkErrorContains(t, err, "configuration file path cannot be empty")
}

func TestLoadConfig_NonExistentFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	checkErrorContains(t, err, "failed to read configuration file")
}

func TestLoadConfig_AllFormats(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "layers"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		ext     string
		content string
	}{
		{
			name:    "json",
			ext:     ".json",
			content: `{"server": {"address": ":9000"}, "slpk": {"path_base": "/slpk/", "root_folder": "layers"}}`,
		},
		{
			name: "toml",
			ext:  ".toml",
			content: `
[server]
address = ":9000"

[slpk]
path_base = "/slpk/"
root_folder = "layers"
`,
		},
		{
			name: "yaml",
			ext:  ".yaml",
			content: `
server:
  address: ":9000"
slpk:
  path_base: /slpk/
  root_folder: layers
`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempFile(t, dir, tc.content, tc.ext)
			cfg, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}
			if got := *cfg.Server.Address; got != ":9000" {
				t.Errorf("server.address = %q, want %q", got, ":9000")
			}
			if cfg.Slpk.PathBase != "/slpk" {
				t.Errorf("slpk.path_base = %q, want %q", cfg.Slpk.PathBase, "/slpk")
			}
			if want := filepath.Join(dir, "layers"); cfg.Slpk.RootFolder != want {
				t.Errorf("slpk.root_folder = %q, want %q", cfg.Slpk.RootFolder, want)
			}
			if !reflect.DeepEqual(cfg.Slpk.IndexFiles, DefaultIndexFiles) {
				t.Errorf("slpk.index_files = %v, want defaults %v", cfg.Slpk.IndexFiles, DefaultIndexFiles)
			}
			if !reflect.DeepEqual(cfg.Slpk.Extensions, DefaultExtensions) {
				t.Errorf("slpk.extensions = %v, want defaults %v", cfg.Slpk.Extensions, DefaultExtensions)
			}
			if cfg.Logging.LogLevel != LogLevelInfo {
				t.Errorf("logging.log_level = %q, want INFO", cfg.Logging.LogLevel)
			}
		})
	}
}

func TestLoadConfig_UnknownKeysRejected(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		ext     string
		content string
		want    string
	}{
		{".json", `{"slpk": {"root_folder": "."}, "bogus": 1}`, "unknown field"},
		{".toml", "bogus = 1\n[slpk]\nroot_folder = \".\"\n", "unknown keys: bogus"},
		{".yml", "slpk:\n  root_folder: .\nbogus: 1\n", "field bogus not found"},
	}
	for _, tc := range tests {
		t.Run(tc.ext, func(t *testing.T) {
			_, err := LoadConfig(writeTempFile(t, dir, tc.content, tc.ext))
			checkErrorContains(t, err, tc.want)
		})
	}
}

func TestDetectFormat_Sniffing(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Format
	}{
		{"json object", `  {"slpk": {}}`, FormatJSON},
		{"toml table", "[slpk]\nroot_folder = \"/x\"\n", FormatTOML},
		{"yaml mapping", "slpk:\n  root_folder: /x\n", FormatYAML},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectFormat("config.conf", []byte(tc.data)); got != tc.want {
				t.Errorf("DetectFormat() = %q, want %q", got, tc.want)
			}
		})
	}
	if got := DetectFormat("a.YML", nil); got != FormatYAML {
		t.Errorf("DetectFormat(a.YML) = %q, want yaml", got)
	}
}

func TestFinalize_Defaults(t *testing.T) {
	root := t.TempDir()
	cfg := &Config{
		Slpk:      &SlpkConfig{RootFolder: root},
		Cors:      &CorsConfig{AllowedOrigins: []string{"*"}},
		RateLimit: &RateLimitConfig{RequestsPerSecond: 2.5},
		Logging:   &LoggingConfig{AccessLog: &AccessLogConfig{}},
	}
	if err := Finalize(cfg, ""); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if *cfg.Server.Address != DefaultAddress {
		t.Errorf("address = %q, want %q", *cfg.Server.Address, DefaultAddress)
	}
	if cfg.Server.ShutdownTimeout() != 30*time.Second {
		t.Errorf("ShutdownTimeout() = %v, want 30s", cfg.Server.ShutdownTimeout())
	}
	if cfg.Server.HeaderTimeout() != 10*time.Second {
		t.Errorf("HeaderTimeout() = %v, want 10s", cfg.Server.HeaderTimeout())
	}
	if !cfg.Server.H2CEnabled() {
		t.Error("h2c should default to enabled")
	}
	if cfg.Slpk.PathBase != "/" {
		t.Errorf("path_base = %q, want /", cfg.Slpk.PathBase)
	}
	if cfg.RateLimit.Burst != 3 {
		t.Errorf("burst = %d, want 3", cfg.RateLimit.Burst)
	}
	if !cfg.Cors.IsEnabled() || !reflect.DeepEqual(cfg.Cors.ExposedHeaders, []string{"ETag", "Content-Length", "Content-Encoding"}) {
		t.Errorf("unexpected cors defaults: %+v", cfg.Cors)
	}
	if cfg.Logging.AccessLog.Target != "stdout" || cfg.Logging.AccessLog.Format != AccessLogFormatJSON {
		t.Errorf("unexpected access log defaults: %+v", cfg.Logging.AccessLog)
	}
	if cfg.Logging.ErrorLog.Target != "stderr" {
		t.Errorf("error log target = %q, want stderr", cfg.Logging.ErrorLog.Target)
	}
}

func TestFinalize_KeepsExplicitEmptyLists(t *testing.T) {
	cfg := &Config{Slpk: &SlpkConfig{RootFolder: t.TempDir(), IndexFiles: []string{}, Extensions: []string{}}}
	if err := Finalize(cfg, ""); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if len(cfg.Slpk.IndexFiles) != 0 || len(cfg.Slpk.Extensions) != 0 {
		t.Errorf("explicit empty lists were replaced: %v %v", cfg.Slpk.IndexFiles, cfg.Slpk.Extensions)
	}
}

func TestValidate_Errors(t *testing.T) {
	root := t.TempDir()
	file := writeTempFile(t, root, "x", ".txt")

	tests := []struct {
		name  string
		cfg   *Config
		field string
	}{
		{"missing slpk", &Config{}, "slpk"},
		{"missing root", &Config{Slpk: &SlpkConfig{}}, "slpk.root_folder"},
		{"root is file", &Config{Slpk: &SlpkConfig{RootFolder: file}}, "slpk.root_folder"},
		{"root missing", &Config{Slpk: &SlpkConfig{RootFolder: filepath.Join(root, "nope")}}, "slpk.root_folder"},
		{"bad path base", &Config{Slpk: &SlpkConfig{RootFolder: root, PathBase: "slpk"}}, "slpk.path_base"},
		{"path base with wildcard", &Config{Slpk: &SlpkConfig{RootFolder: root, PathBase: "/{layer}"}}, "slpk.path_base"},
		{"index with separator", &Config{Slpk: &SlpkConfig{RootFolder: root, IndexFiles: []string{"a/index.json"}}}, "slpk.index_files[0]"},
		{"empty extension", &Config{Slpk: &SlpkConfig{RootFolder: root, Extensions: []string{".json", ""}}}, "slpk.extensions[1]"},
		{"half tls", &Config{Server: &ServerConfig{TLSCertFile: "/c.pem"}, Slpk: &SlpkConfig{RootFolder: root}}, "server.tls_cert_file"},
		{"bad timeout", &Config{Server: &ServerConfig{GracefulShutdownTimeout: strPtr("-1s")}, Slpk: &SlpkConfig{RootFolder: root}}, "server.graceful_shutdown_timeout"},
		{"cors without origins", &Config{Slpk: &SlpkConfig{RootFolder: root}, Cors: &CorsConfig{}}, "cors.allowed_origins"},
		{"rate without rps", &Config{Slpk: &SlpkConfig{RootFolder: root}, RateLimit: &RateLimitConfig{}}, "rate_limit.requests_per_second"},
		{"bad level", &Config{Slpk: &SlpkConfig{RootFolder: root}, Logging: &LoggingConfig{LogLevel: "TRACE"}}, "logging.log_level"},
		{"relative log file", &Config{Slpk: &SlpkConfig{RootFolder: root}, Logging: &LoggingConfig{ErrorLog: &ErrorLogConfig{Target: "logs/err.log"}}}, "logging.error_log.target"},
		{"bad access format", &Config{Slpk: &SlpkConfig{RootFolder: root}, Logging: &LoggingConfig{AccessLog: &AccessLogConfig{Format: "xml"}}}, "logging.access_log.format"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Finalize(tc.cfg, "")
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Errorf("Field = %q, want %q (err: %v)", verr.Field, tc.field, err)
			}
		})
	}
}

func TestValidate_DisabledSectionsSkipChecks(t *testing.T) {
	cfg := &Config{
		Slpk:      &SlpkConfig{RootFolder: t.TempDir()},
		Cors:      &CorsConfig{Enabled: boolPtr(false)},
		RateLimit: &RateLimitConfig{Enabled: boolPtr(false)},
	}
	if err := Finalize(cfg, ""); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if cfg.Cors.IsEnabled() || cfg.RateLimit.IsEnabled() {
		t.Error("disabled sections reported as enabled")
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Field: "slpk.path_base", Reason: "must start with '/'"}
	want := "invalid configuration: slpk.path_base: must start with '/'"
	if got := err.Error(); got != want {
		t.Errorf("ValidationError.Error() = %q, want %q", got, want)
	}
}

func TestParseDuration(t *testing.T) {
	if d, err := ParseDuration("1500ms"); err != nil || d != 1500*time.Millisecond {
		t.Errorf("ParseDuration(1500ms) = %v, %v", d, err)
	}
	for _, in := range []string{"", "0s", "-5s", "soon"} {
		if _, err := ParseDuration(in); err == nil {
			t.Errorf("ParseDuration(%q) expected error", in)
		}
	}
}

func TestIsFilePath(t *testing.T) {
	for target, want := range map[string]bool{"stdout": false, "stderr": false, "": false, "/var/log/slpk.log": true} {
		if got := IsFilePath(target); got != want {
			t.Errorf("IsFilePath(%q) = %v, want %v", target, got, want)
		}
	}
}
