// Package log provides the levelled key/value logger used across gfq.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config or flag value to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// Logger interface defines structured logging methods
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	// With returns a logger that prefixes every entry with the given
	// key/value pairs.
	With(args ...interface{}) Logger
	SetLevel(level Level)
	SetJSONOutput(enabled bool)
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// DefaultLogger writes to a single stream, by default stderr so that command
// output on stdout stays machine readable.
type DefaultLogger struct {
	core   *core
	fields []interface{}
}

type core struct {
	mu         sync.Mutex
	level      Level
	jsonOutput bool
	out        io.Writer
	colors     bool
}

var (
	defaultMu     sync.Mutex
	defaultLogger Logger
)

// New creates a new logger with the given configuration
func New(cfg LoggerConfig) *DefaultLogger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	return &DefaultLogger{core: &core{
		level:      cfg.Level,
		jsonOutput: cfg.JSONOutput,
		out:        out,
		colors:     isTerminal(out),
	}}
}

// Default returns the process-wide logger.
func Default() Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(LoggerConfig{Level: InfoLevel})
	}
	return defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// Discard returns a logger that drops everything; tests use it.
func Discard() Logger {
	return New(LoggerConfig{Level: ErrorLevel + 1, Output: io.Discard})
}

// isTerminal checks if the writer is a terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// pairs normalizes key/value args; a leading odd argument is kept under "arg".
func pairs(args []interface{}) [][2]interface{} {
	var out [][2]interface{}
	if len(args)%2 != 0 {
		out = append(out, [2]interface{}{"arg", args[0]})
		args = args[1:]
	}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		out = append(out, [2]interface{}{key, args[i+1]})
	}
	return out
}

// formatMessage formats the message with key-value args
func formatMessage(msg string, kv [][2]interface{}) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for _, p := range kv {
		sb.WriteString(" ")
		sb.WriteString(p[0].(string))
		sb.WriteString("=")
		sb.WriteString(fmt.Sprintf("%v", p[1]))
	}
	return sb.String()
}

// getColor returns the ANSI color code for the given level
func getColor(level Level) string {
	switch level {
	case DebugLevel:
		return "\033[36m" // Cyan
	case InfoLevel:
		return "\033[32m" // Green
	case WarnLevel:
		return "\033[33m" // Yellow
	case ErrorLevel:
		return "\033[31m" // Red
	default:
		return ""
	}
}

func (l *DefaultLogger) log(level Level, msg string, args []interface{}) {
	c := l.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if level < c.level {
		return
	}

	kv := pairs(append(append([]interface{}{}, l.fields...), args...))
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	if c.jsonOutput {
		entry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level.String(),
			"message":   msg,
		}
		for _, p := range kv {
			entry[p[0].(string)] = fmt.Sprintf("%v", p[1])
		}
		data, _ := json.Marshal(entry)
		fmt.Fprintln(c.out, string(data))
		return
	}

	line := formatMessage(msg, kv)
	if c.colors {
		line = getColor(level) + line + "\033[0m"
	}
	fmt.Fprintf(c.out, "[%s] %s: %s\n", timestamp, level.String(), line)
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, args ...interface{}) { l.log(DebugLevel, msg, args) }

// Info logs an info message
func (l *DefaultLogger) Info(msg string, args ...interface{}) { l.log(InfoLevel, msg, args) }

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, args ...interface{}) { l.log(WarnLevel, msg, args) }

// Error logs an error message
func (l *DefaultLogger) Error(msg string, args ...interface{}) { l.log(ErrorLevel, msg, args) }

// With returns a child logger sharing the output and level.
func (l *DefaultLogger) With(args ...interface{}) Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(args))
	fields = append(fields, l.fields...)
	fields = append(fields, args...)
	return &DefaultLogger{core: l.core, fields: fields}
}

// SetLevel sets the minimum log level
func (l *DefaultLogger) SetLevel(level Level) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.level = level
}

// SetJSONOutput enables or disables JSON output
func (l *DefaultLogger) SetJSONOutput(enabled bool) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.jsonOutput = enabled
}
