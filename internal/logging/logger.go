// Package logging provides the leveled, structured logger used by the
// trainer, the CLI and the HTTP service.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
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

// ParseLevel maps debug, info, warn/warning and error to a Level.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info", "":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

// Fields are structured key/value pairs attached to an entry.
type Fields map[string]any

// Entry is one JSON log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Fields  Fields    `json:"fields,omitempty"`
}

// Logger writes leveled entries to an io.Writer. Loggers derived with With
// share the parent's writer and lock.
type Logger struct {
	mu       *sync.Mutex
	output   io.Writer
	level    Level
	jsonMode bool
	fields   Fields
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns the process-wide logger writing to stderr.
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(os.Stderr)
	})
	return defaultLogger
}

// New creates a logger at info level.
func New(output io.Writer) *Logger {
	return &Logger{
		mu:     &sync.Mutex{},
		output: output,
		level:  LevelInfo,
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(io.Discard).SetLevel(LevelError + 1)
}

// SetLevel sets the minimum level written.
func (l *Logger) SetLevel(level Level) *Logger {
	l.level = level
	return l
}

// SetLevelFromString sets level from string (debug, info, warn, error).
// Unknown names leave the level unchanged.
func (l *Logger) SetLevelFromString(level string) *Logger {
	if lv, ok := ParseLevel(level); ok {
		l.level = lv
	}
	return l
}

// SetJSON switches between JSON lines and human-readable output.
func (l *Logger) SetJSON(enabled bool) *Logger {
	l.jsonMode = enabled
	return l
}

// Enabled reports whether entries at level are written.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.level
}

// With returns a logger that adds fields to every entry.
func (l *Logger) With(fields Fields) *Logger {
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{
		mu:       l.mu,
		output:   l.output,
		level:    l.level,
		jsonMode: l.jsonMode,
		fields:   merged,
	}
}

func (l *Logger) Debug(msg string, fields ...Fields) { l.log(LevelDebug, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Fields)  { l.log(LevelInfo, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Fields)  { l.log(LevelWarn, msg, fields...) }
func (l *Logger) Error(msg string, fields ...Fields) { l.log(LevelError, msg, fields...) }

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, fmt.Sprintf(format, args...)) }

func (l *Logger) log(level Level, msg string, fields ...Fields) {
	if level < l.level {
		return
	}

	all := make(Fields, len(l.fields))
	for k, v := range l.fields {
		all[k] = v
	}
	for _, f := range fields {
		for k, v := range f {
			all[k] = v
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.jsonMode {
		entry := Entry{
			Time:    time.Now().UTC(),
			Level:   level.String(),
			Message: msg,
		}
		if len(all) > 0 {
			entry.Fields = all
		}
		data, _ := json.Marshal(entry)
		fmt.Fprintln(l.output, string(data))
		return
	}

	var sb strings.Builder
	sb.WriteString(time.Now().Format("15:04:05"))
	sb.WriteByte(' ')
	fmt.Fprintf(&sb, "%-5s", level.String())
	sb.WriteByte(' ')
	sb.WriteString(msg)

	// Sorted so identical entries render identically.
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, all[k])
	}
	sb.WriteByte('\n')
	io.WriteString(l.output, sb.String())
}

// Package-level convenience functions using the default logger

func Debug(msg string, fields ...Fields) { Default().Debug(msg, fields...) }
func Info(msg string, fields ...Fields)  { Default().Info(msg, fields...) }
func Warn(msg string, fields ...Fields)  { Default().Warn(msg, fields...) }
func Error(msg string, fields ...Fields) { Default().Error(msg, fields...) }

func Infof(format string, args ...any)  { Default().Infof(format, args...) }
func Warnf(format string, args ...any)  { Default().Warnf(format, args...) }
func Errorf(format string, args ...any) { Default().Errorf(format, args...) }

// Configure applies level and output mode to the default logger.
func Configure(level string, jsonMode bool) {
	Default().SetLevelFromString(level).SetJSON(jsonMode)
}
