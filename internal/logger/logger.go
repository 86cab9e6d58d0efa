// Package logger provides leveled logging for sandkasten. Child processes
// activating a sandbox on themselves must not write to stdout/stderr (the
// caller owns those streams), so the logger writes to a file, or discards
// everything until initialized.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents a logging level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

// String returns the string representation of the level.
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
	case LevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a Level. Unknown strings map to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "info", "INFO":
		return LevelInfo
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	case "none", "NONE":
		return LevelNone
	default:
		return LevelInfo
	}
}

// Logger writes timestamped, leveled log lines.
type Logger struct {
	mu     sync.RWMutex
	level  Level
	out    *log.Logger
	prefix string
	file   *os.File
}

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// New creates a Logger writing to logPath. An empty path or LevelNone yields
// a logger that discards everything.
func New(level Level, logPath, prefix string) (*Logger, error) {
	if level == LevelNone || logPath == "" {
		return &Logger{level: LevelNone, out: log.New(io.Discard, "", 0), prefix: prefix}, nil
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &Logger{level: level, out: log.New(file, "", 0), prefix: prefix, file: file}, nil
}

// Init installs the global logger. Later calls replace the earlier instance,
// which matters for the child activation path: activation installs a logger
// from transported options, and the driver re-initializes from config later.
func Init(level Level, logPath string) error {
	l, err := New(level, logPath, "")
	if err != nil {
		return err
	}
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
	return nil
}

// Global returns the global logger, or a discarding logger if Init was never
// called.
func Global() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = &Logger{level: LevelNone, out: log.New(io.Discard, "", 0)}
	}
	return globalLogger
}

// WithPrefix returns a logger that tags every line with the given prefix.
func (l *Logger) WithPrefix(prefix string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p := prefix
	if l.prefix != "" {
		p = l.prefix + ":" + prefix
	}
	return &Logger{level: l.level, out: l.out, prefix: p, file: l.file}
}

// SetLevel changes the logging level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *Logger) log(level Level, format string, args ...any) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if level < l.level || l.level == LevelNone {
		return
	}
	prefix := ""
	if l.prefix != "" {
		prefix = "[" + l.prefix + "] "
	}
	l.out.Printf("%s [%s] %s%s",
		time.Now().Format("2006-01-02 15:04:05.000"), level, prefix,
		fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

// Close closes the underlying log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Package-level helpers routing through the global logger.

func Debug(format string, args ...any) { Global().Debug(format, args...) }
func Info(format string, args ...any)  { Global().Info(format, args...) }
func Warn(format string, args ...any)  { Global().Warn(format, args...) }
func Error(format string, args ...any) { Global().Error(format, args...) }
