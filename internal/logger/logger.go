package logger

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"example.com/slpkserve/internal/config"
)

// LogFields carries structured context for a log entry.
type LogFields map[string]interface{}

func init() {
	zerolog.TimestampFieldName = "ts"
	zerolog.MessageFieldName = "msg"
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z07:00"
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	zerolog.LevelFieldMarshalFunc = func(l zerolog.Level) string {
		return string(fromZerologLevel(l))
	}
}

// parsedProxiesContainer holds pre-parsed trusted proxy IP addresses and CIDR blocks.
type parsedProxiesContainer struct {
	cidrs []*net.IPNet
	ips   []net.IP
}

// AccessLogger writes one entry per completed request.
type AccessLogger struct {
	mu            sync.Mutex
	zl            zerolog.Logger
	config        config.AccessLogConfig
	output        io.Writer
	parsedProxies parsedProxiesContainer
}

// ErrorLogger writes leveled application messages.
type ErrorLogger struct {
	mu     sync.Mutex
	zl     zerolog.Logger
	config config.ErrorLogConfig
	output io.Writer
}

// Logger is a general logger that contains specific loggers for access and errors.
type Logger struct {
	accessLog      *AccessLogger
	errorLog       *ErrorLogger
	globalLogLevel config.LogLevel
}

// NewLogger creates a Logger writing to the targets named in cfg.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging configuration cannot be nil")
	}

	errTarget := "stderr"
	if cfg.ErrorLog != nil && cfg.ErrorLog.Target != "" {
		errTarget = cfg.ErrorLog.Target
	}
	errorOutput, err := openTarget(errTarget)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log target %s: %w", errTarget, err)
	}

	var accessOutput io.Writer
	if cfg.AccessLog.IsEnabled() {
		target := cfg.AccessLog.Target
		if target == "" {
			target = "stdout"
		}
		accessOutput, err = openTarget(target)
		if err != nil {
			closeIfFile(errorOutput)
			return nil, fmt.Errorf("failed to open access log target %s: %w", target, err)
		}
	}

	l, err := NewWithWriters(cfg, errorOutput, accessOutput)
	if err != nil {
		closeIfFile(errorOutput)
		closeIfFile(accessOutput)
		return nil, err
	}
	return l, nil
}

// NewWithWriters builds a Logger over caller-supplied writers. A nil
// accessOut disables access logging.
func NewWithWriters(cfg *config.LoggingConfig, errorOut, accessOut io.Writer) (*Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging configuration cannot be nil")
	}
	if errorOut == nil {
		errorOut = io.Discard
	}
	level := cfg.LogLevel
	if level == "" {
		level = config.LogLevelInfo
	}

	l := &Logger{globalLogLevel: level}
	errCfg := config.ErrorLogConfig{Target: "stderr"}
	if cfg.ErrorLog != nil {
		errCfg = *cfg.ErrorLog
	}
	l.errorLog = &ErrorLogger{
		zl:     zerolog.New(errorOut).Level(toZerologLevel(level)).With().Timestamp().Logger(),
		config: errCfg,
		output: errorOut,
	}

	if accessOut != nil && cfg.AccessLog.IsEnabled() {
		parsedProxies, err := preParseTrustedProxies(cfg.AccessLog.TrustedProxies)
		if err != nil {
			return nil, fmt.Errorf("failed to parse trusted proxies for access log: %w", err)
		}
		l.accessLog = &AccessLogger{
			zl:            newAccessZerolog(accessOut, cfg.AccessLog.Format),
			config:        *cfg.AccessLog,
			output:        accessOut,
			parsedProxies: parsedProxies,
		}
	}
	return l, nil
}

// NewDiscardLogger returns a Logger that drops everything.
func NewDiscardLogger() *Logger {
	nop := zerolog.Nop()
	return &Logger{
		errorLog:       &ErrorLogger{zl: nop, output: io.Discard},
		globalLogLevel: config.LogLevelError,
	}
}

func newAccessZerolog(w io.Writer, format string) zerolog.Logger {
	if format == config.AccessLogFormatCommon {
		w = zerolog.ConsoleWriter{
			Out:           w,
			NoColor:       true,
			TimeFormat:    "02/Jan/2006:15:04:05 -0700",
			PartsOrder:    []string{zerolog.TimestampFieldName, zerolog.MessageFieldName},
			FieldsExclude: []string{"uri", "method", "status"},
		}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func openTarget(target string) (io.Writer, error) {
	switch target {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if !config.IsFilePath(target) {
		return nil, fmt.Errorf("invalid log target %q", target)
	}
	return os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func closeIfFile(w io.Writer) {
	if f, ok := w.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		f.Close()
	}
}

func toZerologLevel(level config.LogLevel) zerolog.Level {
	switch level {
	case config.LogLevelDebug:
		return zerolog.DebugLevel
	case config.LogLevelWarning:
		return zerolog.WarnLevel
	case config.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func fromZerologLevel(level zerolog.Level) config.LogLevel {
	switch level {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		return config.LogLevelDebug
	case zerolog.WarnLevel:
		return config.LogLevelWarning
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return config.LogLevelError
	default:
		return config.LogLevelInfo
	}
}

// preParseTrustedProxies converts string representations of IPs and CIDRs
// into net.IP and *net.IPNet objects for efficient checking.
func preParseTrustedProxies(proxyStrings []string) (parsedProxiesContainer, error) {
	var container parsedProxiesContainer
	for _, pStr := range proxyStrings {
		pStr = strings.TrimSpace(pStr)
		if pStr == "" {
			continue
		}
		if strings.Contains(pStr, "/") {
			_, ipNet, err := net.ParseCIDR(pStr)
			if err != nil {
				return parsedProxiesContainer{}, fmt.Errorf("invalid CIDR string in trusted_proxies '%s': %w", pStr, err)
			}
			container.cidrs = append(container.cidrs, ipNet)
			continue
		}
		ip := net.ParseIP(pStr)
		if ip == nil {
			return parsedProxiesContainer{}, fmt.Errorf("invalid IP string in trusted_proxies '%s'", pStr)
		}
		container.ips = append(container.ips, ip)
	}
	return container, nil
}

func isIPTrusted(ip net.IP, trustedProxies parsedProxiesContainer) bool {
	if ip == nil {
		return false
	}
	for _, trustedCIDR := range trustedProxies.cidrs {
		if trustedCIDR.Contains(ip) {
			return true
		}
	}
	for _, trustedIP := range trustedProxies.ips {
		if trustedIP.Equal(ip) {
			return true
		}
	}
	return false
}

// getRealClientIP determines the client's address. When realIPHeaderName is
// set, the header is walked right to left and the first address that is not a
// trusted proxy wins; a malformed entry falls back to the direct peer.
func getRealClientIP(remoteAddr string, headers http.Header, realIPHeaderName string, trustedProxies parsedProxiesContainer) string {
	peer := remoteAddr
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		peer = host
	} else if ip := net.ParseIP(remoteAddr); ip != nil {
		peer = ip.String()
	}

	if realIPHeaderName == "" {
		return peer
	}
	headerValue := headers.Get(realIPHeaderName)
	if headerValue == "" {
		return peer
	}

	ipsInHeader := strings.Split(headerValue, ",")
	for i := len(ipsInHeader) - 1; i >= 0; i-- {
		ipStr := strings.TrimSpace(ipsInHeader[i])
		if ipStr == "" {
			continue
		}
		ip := net.ParseIP(ipStr)
		if ip == nil {
			return peer
		}
		if !isIPTrusted(ip, trustedProxies) {
			return ipStr
		}
	}
	return peer
}

// LogAccess writes an access log entry for a completed request.
func (al *AccessLogger) LogAccess(req *http.Request, requestID string, status int, responseBytes int64, duration time.Duration) {
	if al == nil {
		return
	}

	_, clientPort, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		clientPort = "0"
	}
	realIPHeaderName := ""
	if al.config.RealIPHeader != nil {
		realIPHeaderName = *al.config.RealIPHeader
	}
	remote := getRealClientIP(req.RemoteAddr, req.Header, realIPHeaderName, al.parsedProxies)

	al.mu.Lock()
	defer al.mu.Unlock()
	ev := al.zl.Log().
		Str("request_id", requestID).
		Str("remote_addr", remote).
		Str("remote_port", clientPort).
		Str("protocol", req.Proto).
		Str("method", req.Method).
		Str("uri", req.RequestURI).
		Int("status", status).
		Int64("resp_bytes", responseBytes).
		Str("resp_size", humanize.Bytes(uint64(responseBytes))).
		Int64("duration_ms", duration.Milliseconds())
	if ua := req.UserAgent(); ua != "" {
		ev = ev.Str("user_agent", ua)
	}
	if ref := req.Referer(); ref != "" {
		ev = ev.Str("referer", ref)
	}
	ev.Msg(fmt.Sprintf("%s %s %d", req.Method, req.RequestURI, status))
}

// LogError writes msg at level if the level passes the configured threshold.
func (el *ErrorLogger) LogError(level config.LogLevel, msg string, fields ...map[string]interface{}) {
	if el == nil {
		return
	}
	el.mu.Lock()
	defer el.mu.Unlock()
	ev := el.zl.WithLevel(toZerologLevel(level))
	if ev == nil {
		return
	}
	for _, f := range fields {
		ev = ev.Fields(f)
	}
	ev.Msg(msg)
}

func (l *Logger) log(level config.LogLevel, msg string, fields []LogFields) {
	if l == nil || l.errorLog == nil {
		return
	}
	plain := make([]map[string]interface{}, 0, len(fields))
	for _, f := range fields {
		if f != nil {
			plain = append(plain, map[string]interface{}(f))
		}
	}
	l.errorLog.LogError(level, msg, plain...)
}

func (l *Logger) Info(msg string, fields ...LogFields)  { l.log(config.LogLevelInfo, msg, fields) }
func (l *Logger) Error(msg string, fields ...LogFields) { l.log(config.LogLevelError, msg, fields) }
func (l *Logger) Debug(msg string, fields ...LogFields) { l.log(config.LogLevelDebug, msg, fields) }
func (l *Logger) Warn(msg string, fields ...LogFields)  { l.log(config.LogLevelWarning, msg, fields) }

// Access records a completed request when access logging is enabled.
func (l *Logger) Access(req *http.Request, requestID string, status int, responseBytes int64, duration time.Duration) {
	if l != nil && l.accessLog != nil {
		l.accessLog.LogAccess(req, requestID, status, responseBytes, duration)
	}
}

// AccessEnabled reports whether Access writes anything.
func (l *Logger) AccessEnabled() bool {
	return l != nil && l.accessLog != nil
}

// CloseLogFiles closes any file-backed targets. Standard streams are left open.
func (l *Logger) CloseLogFiles() error {
	var firstErr error
	closeOne := func(w io.Writer) {
		if f, ok := w.(*os.File); ok && f != os.Stdout && f != os.Stderr {
			if err := f.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if l.accessLog != nil {
		l.accessLog.mu.Lock()
		closeOne(l.accessLog.output)
		l.accessLog.mu.Unlock()
	}
	if l.errorLog != nil {
		l.errorLog.mu.Lock()
		closeOne(l.errorLog.output)
		l.errorLog.mu.Unlock()
	}
	return firstErr
}

// ReopenLogFiles closes and reopens file-backed targets, for log rotation on SIGHUP.
func (l *Logger) ReopenLogFiles() error {
	if l.errorLog != nil && config.IsFilePath(l.errorLog.config.Target) {
		l.errorLog.mu.Lock()
		out, err := reopen(l.errorLog.output, l.errorLog.config.Target)
		if err != nil {
			out = os.Stderr
		}
		l.errorLog.output = out
		l.errorLog.zl = l.errorLog.zl.Output(out)
		l.errorLog.mu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to reopen error log file %s: %w", l.errorLog.config.Target, err)
		}
	}
	if l.accessLog != nil && config.IsFilePath(l.accessLog.config.Target) {
		l.accessLog.mu.Lock()
		out, err := reopen(l.accessLog.output, l.accessLog.config.Target)
		if err != nil {
			out = os.Stdout
		}
		l.accessLog.output = out
		l.accessLog.zl = newAccessZerolog(out, l.accessLog.config.Format)
		l.accessLog.mu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to reopen access log file %s: %w", l.accessLog.config.Target, err)
		}
	}
	return nil
}

func reopen(current io.Writer, path string) (io.Writer, error) {
	closeIfFile(current)
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}
