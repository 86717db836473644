// Package testutil runs the full server in-process for end-to-end tests.
package testutil

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"gopkg.in/yaml.v3"

	"example.com/slpkserve/internal/app"
	"example.com/slpkserve/internal/config"
	"example.com/slpkserve/internal/logger"
	"example.com/slpkserve/internal/util"
)

// TestRequest models an HTTP request for E2E testing.
type TestRequest struct {
	Method  string
	Path    string
	Headers http.Header
}

// HeaderMatcher maps header names to their exact expected values.
type HeaderMatcher map[string]string

// BodyMatcher defines a way to match the response body.
type BodyMatcher interface {
	Match(body []byte) (bool, string)
}

// ExactBodyMatcher matches the body exactly.
type ExactBodyMatcher struct {
	ExpectedBody []byte
}

func (m *ExactBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Equal(m.ExpectedBody, body) {
		return true, ""
	}
	return false, fmt.Sprintf("bodies do not match exactly. Expected: %q, Got: %q", m.ExpectedBody, body)
}

// StringContainsBodyMatcher checks if the body contains a specific substring.
type StringContainsBodyMatcher struct {
	Substring string
}

func (m *StringContainsBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Contains(body, []byte(m.Substring)) {
		return true, ""
	}
	return false, fmt.Sprintf("body does not contain substring: %q. Body: %q", m.Substring, body)
}

// ExpectedResponse models the expected outcome of an HTTP request.
type ExpectedResponse struct {
	StatusCode    int
	Headers       HeaderMatcher
	AbsentHeaders []string
	BodyMatcher   BodyMatcher
	ExpectNoBody  bool
	Proto         string // e.g. "HTTP/2.0"; empty means any
}

// ActualResponse stores what the client received.
type ActualResponse struct {
	StatusCode int
	Proto      string
	Headers    http.Header
	Body       []byte
}

// E2ETestCase is one request and its expected response.
type E2ETestCase struct {
	Name     string
	Request  TestRequest
	Expected ExpectedResponse
}

// E2ETestDefinition describes a server configuration and the requests run against it.
type E2ETestDefinition struct {
	Name         string
	ConfigData   map[string]interface{}
	ConfigFormat string // json, toml or yaml
	Client       *http.Client
	TestCases    []E2ETestCase
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ServerInstance is a server running inside the test process.
type ServerInstance struct {
	App       *app.App
	Address   string
	BaseURL   string
	ErrorLog  *syncBuffer
	AccessLog *syncBuffer
}

// ErrorLogString returns everything written to the error log so far.
func (s *ServerInstance) ErrorLogString() string { return s.ErrorLog.String() }

// AccessLogString returns everything written to the access log so far.
func (s *ServerInstance) AccessLogString() string { return s.AccessLog.String() }

// WriteTempConfig encodes configData as json, toml or yaml into dir and
// returns the file path.
func WriteTempConfig(t *testing.T, dir string, configData interface{}, format string) string {
	t.Helper()
	var data []byte
	var err error
	switch strings.ToLower(format) {
	case "json":
		data, err = json.MarshalIndent(configData, "", "  ")
	case "toml":
		buf := new(bytes.Buffer)
		if err = toml.NewEncoder(buf).Encode(configData); err == nil {
			data = buf.Bytes()
		}
	case "yaml":
		data, err = yaml.Marshal(configData)
	default:
		err = fmt.Errorf("unsupported config format: %s", format)
	}
	require.NoError(t, err, "failed to marshal config data to %s", format)

	path := filepath.Join(dir, "config."+strings.ToLower(format))
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// StartServer loads the configuration file and serves it on a loopback port
// until the test ends. Logs are captured in memory.
func StartServer(t *testing.T, configPath string) *ServerInstance {
	t.Helper()
	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err, "failed to load %s", configPath)

	errorLog, accessLog := &syncBuffer{}, &syncBuffer{}
	var accessOut io.Writer
	if cfg.Logging.AccessLog.IsEnabled() {
		accessOut = accessLog
	}
	lg, err := logger.NewWithWriters(cfg.Logging, errorLog, accessOut)
	require.NoError(t, err)

	a, err := app.New(cfg, nil, lg)
	require.NoError(t, err)
	a.LogMount()

	l, err := util.CreateListener("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- a.Server.Serve(l) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, a.Server.Shutdown(ctx))
		assert.NoError(t, <-served)
	})

	scheme := "http"
	if cfg.Server.TLSEnabled() {
		scheme = "https"
	}
	addr := l.Addr().String()
	return &ServerInstance{
		App:       a,
		Address:   addr,
		BaseURL:   scheme + "://" + addr,
		ErrorLog:  errorLog,
		AccessLog: accessLog,
	}
}

// NewHTTP1Client returns a client that does not follow redirects and does
// not negotiate compression, so bodies arrive exactly as sent.
func NewHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{DisableCompression: true},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Timeout: 10 * time.Second,
	}
}

// NewH2CClient speaks HTTP/2 with prior knowledge over cleartext TCP.
func NewH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP:          true,
			DisableCompression: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
		Timeout: 10 * time.Second,
	}
}

// Do sends request to baseURL with client.
func Do(client *http.Client, baseURL string, request TestRequest) (ActualResponse, error) {
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequest(method, baseURL+request.Path, nil)
	if err != nil {
		return ActualResponse{}, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vv := range request.Headers {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return ActualResponse{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ActualResponse{}, fmt.Errorf("failed to read response body: %w", err)
	}
	return ActualResponse{StatusCode: resp.StatusCode, Proto: resp.Proto, Headers: resp.Header, Body: body}, nil
}

// AssertResponse checks actual against expected.
func AssertResponse(t *testing.T, expected ExpectedResponse, actual ActualResponse) {
	t.Helper()
	assert.Equal(t, expected.StatusCode, actual.StatusCode, "status code (body %q)", actual.Body)
	if expected.Proto != "" {
		assert.Equal(t, expected.Proto, actual.Proto, "protocol")
	}
	for name, want := range expected.Headers {
		assert.Equal(t, want, actual.Headers.Get(name), "header %s", name)
	}
	for _, name := range expected.AbsentHeaders {
		_, present := actual.Headers[http.CanonicalHeaderKey(name)]
		assert.False(t, present, "header %s should be absent, got %q", name, actual.Headers.Get(name))
	}
	if expected.ExpectNoBody {
		assert.Empty(t, actual.Body, "body")
	} else if expected.BodyMatcher != nil {
		ok, msg := expected.BodyMatcher.Match(actual.Body)
		assert.True(t, ok, msg)
	}
}

// RunE2ETest starts a server for def and runs every test case against it.
func RunE2ETest(t *testing.T, def E2ETestDefinition) *ServerInstance {
	t.Helper()
	format := def.ConfigFormat
	if format == "" {
		format = "json"
	}
	cfgPath := WriteTempConfig(t, t.TempDir(), def.ConfigData, format)
	srv := StartServer(t, cfgPath)

	client := def.Client
	if client == nil {
		client = NewHTTP1Client()
	}
	for _, tc := range def.TestCases {
		t.Run(tc.Name, func(t *testing.T) {
			actual, err := Do(client, srv.BaseURL, tc.Request)
			require.NoError(t, err)
			AssertResponse(t, tc.Expected, actual)
		})
	}
	return srv
}
