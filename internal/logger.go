package internal

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "ERROR"
	case LogLevelWarn:
		return "WARN"
	case LogLevelInfo:
		return "INFO"
	case LogLevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// SecureLogger is a leveled logger that scrubs credentials and session
// cookies from every message before it is written.
type SecureLogger struct {
	mu        sync.Mutex
	logger    *log.Logger
	level     LogLevel
	debug     bool
	quiet     bool
	redactors []Redactor
}

// Redactor defines an interface for redacting sensitive information
type Redactor interface {
	Redact(input string) string
}

// redactAfter replaces the value following each marker, up to one of the
// terminator bytes, with [REDACTED]. Matching is case-insensitive.
func redactAfter(input string, markers []string, terminators string) string {
	result := input
	for _, marker := range markers {
		lowerMarker := strings.ToLower(marker)
		offset := 0
		for {
			lower := strings.ToLower(result)
			index := strings.Index(lower[offset:], lowerMarker)
			if index == -1 {
				break
			}
			start := offset + index + len(marker)
			end := start
			for end < len(result) && !strings.ContainsRune(terminators, rune(result[end])) {
				end++
			}
			if end > start && result[start:end] != "[REDACTED]" {
				result = result[:start] + "[REDACTED]" + result[end:]
				end = start + len("[REDACTED]")
			}
			offset = end
		}
	}
	return result
}

// CookieRedactor redacts cookie values from strings
type CookieRedactor struct{}

func (r *CookieRedactor) Redact(input string) string {
	return redactAfter(input, []string{
		"Cookie: ",
		"_gorilla_csrf=",
		"session=",
		"remember_token=",
	}, " ;\n\r")
}

// FormRedactor redacts secrets carried in form bodies and query strings
type FormRedactor struct{}

func (r *FormRedactor) Redact(input string) string {
	return redactAfter(input, []string{
		"password=",
		"token=",
		"signature=",
	}, "& \n")
}

// NewSecureLogger creates a new secure logger
func NewSecureLogger(output io.Writer, level LogLevel, debug, quiet bool) *SecureLogger {
	return &SecureLogger{
		logger: log.New(output, "", 0),
		level:  level,
		debug:  debug,
		quiet:  quiet,
		redactors: []Redactor{
			&CookieRedactor{},
			&FormRedactor{},
		},
	}
}

// NewDefaultLogger creates a logger with default settings
func NewDefaultLogger(debug, quiet bool) *SecureLogger {
	level := LogLevelInfo
	if debug {
		level = LogLevelDebug
	}
	if quiet {
		level = LogLevelError
	}

	return NewSecureLogger(os.Stderr, level, debug, quiet)
}

func (sl *SecureLogger) redactSensitiveData(input string) string {
	result := input
	for _, redactor := range sl.redactors {
		result = redactor.Redact(result)
	}
	return result
}

// formatMessage formats a log message with timestamp and, in debug mode, the caller
func (sl *SecureLogger) formatMessage(level LogLevel, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	if sl.debug {
		for depth := 3; depth <= 5; depth++ {
			_, file, line, ok := runtime.Caller(depth)
			if ok && !strings.HasSuffix(file, "logger.go") && !strings.HasSuffix(file, "log.go") {
				parts := strings.Split(file, "/")
				return fmt.Sprintf("[%s] %s %s:%d %s", timestamp, level.String(), parts[len(parts)-1], line, message)
			}
		}
	}

	return fmt.Sprintf("[%s] %s %s", timestamp, level.String(), message)
}

func (sl *SecureLogger) shouldLog(level LogLevel) bool {
	if sl.quiet && level > LogLevelError {
		return false
	}
	return level <= sl.level
}

func (sl *SecureLogger) logf(level LogLevel, format string, args ...interface{}) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if !sl.shouldLog(level) {
		return
	}

	message := sl.redactSensitiveData(fmt.Sprintf(format, args...))
	sl.logger.Print(sl.formatMessage(level, message))
}

// Error logs an error message
func (sl *SecureLogger) Error(format string, args ...interface{}) {
	sl.logf(LogLevelError, format, args...)
}

// Warn logs a warning message
func (sl *SecureLogger) Warn(format string, args ...interface{}) {
	sl.logf(LogLevelWarn, format, args...)
}

// Info logs an info message
func (sl *SecureLogger) Info(format string, args ...interface{}) {
	sl.logf(LogLevelInfo, format, args...)
}

// Debug logs a debug message
func (sl *SecureLogger) Debug(format string, args ...interface{}) {
	sl.logf(LogLevelDebug, format, args...)
}

// LogHTTPRequest logs an outgoing request with sensitive headers redacted
func (sl *SecureLogger) LogHTTPRequest(req *http.Request) {
	if req == nil || !sl.enabled(LogLevelDebug) {
		return
	}
	sl.Debug("HTTP Request: %s %s Headers: %v", req.Method, redactSensitiveURL(req.URL.String()), sl.sanitizeHeaders(req.Header))
}

// LogHTTPResponse logs a response with sensitive headers redacted
func (sl *SecureLogger) LogHTTPResponse(resp *http.Response) {
	if resp == nil || !sl.enabled(LogLevelDebug) {
		return
	}
	target := ""
	if resp.Request != nil && resp.Request.URL != nil {
		target = redactSensitiveURL(resp.Request.URL.String())
	}
	sl.Debug("HTTP Response: %s %s Headers: %v", resp.Status, target, sl.sanitizeHeaders(resp.Header))
}

func (sl *SecureLogger) enabled(level LogLevel) bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.shouldLog(level)
}

func (sl *SecureLogger) sanitizeHeaders(header http.Header) map[string]string {
	sanitized := make(map[string]string, len(header))
	for name, values := range header {
		if isSensitiveHeader(name) {
			sanitized[name] = "[REDACTED]"
		} else {
			sanitized[name] = strings.Join(values, ", ")
		}
	}
	return sanitized
}

func isSensitiveHeader(name string) bool {
	lowerName := strings.ToLower(name)
	for _, sensitive := range []string{"authorization", "cookie", "csrf", "token"} {
		if strings.Contains(lowerName, sensitive) {
			return true
		}
	}
	return false
}

// SetLevel sets the logging level
func (sl *SecureLogger) SetLevel(level LogLevel) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.level = level
}

// SetDebug enables or disables debug mode
func (sl *SecureLogger) SetDebug(debug bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.debug = debug
	if debug && sl.level < LogLevelDebug {
		sl.level = LogLevelDebug
	}
}

// SetQuiet enables or disables quiet mode
func (sl *SecureLogger) SetQuiet(quiet bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.quiet = quiet
	if quiet {
		sl.level = LogLevelError
	}
}

// AddRedactor adds a custom redactor
func (sl *SecureLogger) AddRedactor(redactor Redactor) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.redactors = append(sl.redactors, redactor)
}
