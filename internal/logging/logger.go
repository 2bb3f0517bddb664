// Package logging provides the leveled logger used across udsock's
// dispatch, control, and demo-harness call sites. Most log lines in
// this codebase are scoped to one socket table minor or one parked
// request, so fields accumulate on a Logger via ForSlot/WithOp/
// WithError instead of being re-typed as loose key-value pairs at
// every call site.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the available log levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Config holds logging configuration.
type Config struct {
	Level  LogLevel
	Format string // "text" (default) or "json"
	Output io.Writer
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// Logger is a leveled writer with a chain of bound key-value fields
// that get rendered into every line logged through it. Loggers
// derived from the same root (via With/ForSlot/WithOp/WithError)
// share the same output and mutex, since they all write to the same
// underlying stream; only the field chain differs between them.
type Logger struct {
	out    io.Writer
	level  LogLevel
	format string
	mu     *sync.Mutex
	fields []any // flat key, value, key, value, ... pairs bound to this logger
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// NewLogger creates a new logger from cfg. A nil cfg uses DefaultConfig.
func NewLogger(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	format := cfg.Format
	if format == "" {
		format = "text"
	}
	return &Logger{out: out, level: cfg.Level, format: format, mu: &sync.Mutex{}}
}

// Default returns the process-wide default logger, creating one with
// DefaultConfig on first use.
func Default() *Logger {
	defaultMu.RLock()
	if defaultLogger != nil {
		defer defaultMu.RUnlock()
		return defaultLogger
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault replaces the process-wide default logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// With returns a derived logger with keyvals appended to its bound
// field chain. The field slice is copied, never aliased, so the same
// logger can be branched into several independent chains (e.g. one
// ForSlot logger reused across several WithOp calls for different
// requests on that slot) without one branch's fields leaking into
// another.
func (l *Logger) With(keyvals ...any) *Logger {
	if len(keyvals) == 0 {
		return l
	}
	fields := make([]any, len(l.fields), len(l.fields)+len(keyvals))
	copy(fields, l.fields)
	fields = append(fields, keyvals...)
	return &Logger{out: l.out, level: l.level, format: l.format, mu: l.mu, fields: fields}
}

// ForSlot binds a socket table minor to every line logged through the
// returned logger.
func (l *Logger) ForSlot(minor int) *Logger { return l.With("minor", minor) }

// WithOp binds a dispatcher request id and operation name, for
// correlating a suspended request with its eventual wakeup or
// cancellation in the log.
func (l *Logger) WithOp(id uint64, op string) *Logger { return l.With("id", id, "op", op) }

// WithError binds an error value. A nil err returns l unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.With("error", err.Error())
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if level < l.level {
		return
	}
	kv := args
	if len(l.fields) > 0 {
		kv = make([]any, 0, len(l.fields)+len(args))
		kv = append(kv, l.fields...)
		kv = append(kv, args...)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.format == "json" {
		l.writeJSON(level, msg, kv)
		return
	}
	l.writeText(level, msg, kv)
}

func (l *Logger) writeText(level LogLevel, msg string, kv []any) {
	var b strings.Builder
	b.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	b.WriteByte('\n')
	io.WriteString(l.out, b.String())
}

func (l *Logger) writeJSON(level LogLevel, msg string, kv []any) {
	rec := make(map[string]any, len(kv)/2+2)
	rec["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	rec["level"] = level.String()
	rec["msg"] = msg
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		rec[key] = kv[i+1]
	}
	enc, err := json.Marshal(rec)
	if err != nil {
		fmt.Fprintf(l.out, "{\"level\":\"ERROR\",\"msg\":%q}\n", "log: encode failed: "+err.Error())
		return
	}
	l.out.Write(enc)
	l.out.Write([]byte{'\n'})
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

// Printf-style logging, for call sites composing a message ahead of
// time instead of passing key-value pairs.
func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, fmt.Sprintf(format, args...)) }

// Printf logs at Info level, for compatibility with call sites that
// expect a bare Printf-shaped sink.
func (l *Logger) Printf(format string, args ...any) { l.Infof(format, args...) }

// Global convenience functions, logging through Default().
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
