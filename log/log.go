// Package log is the module's structured logging layer: a thin wrapper
// over log/slog whose one opinion is per-subsystem child loggers carrying
// a "module" attribute, so pipeline output can be filtered by component.
package log

import (
	"log/slog"
	"os"
)

// Logger carries an slog.Logger plus the module convention.
type Logger struct {
	inner *slog.Logger
}

// defaultLogger backs the package-level functions.
var defaultLogger = New(slog.LevelInfo)

// New builds a Logger emitting JSON to stderr at the given level.
func New(level slog.Level) *Logger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &Logger{inner: slog.New(h)}
}

// NewWithHandler wraps an arbitrary slog.Handler; tests route output
// through this.
func NewWithHandler(h slog.Handler) *Logger {
	return &Logger{inner: slog.New(h)}
}

// SetDefault swaps the process-wide logger; nil is ignored.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// Default returns the process-wide logger.
func Default() *Logger {
	return defaultLogger
}

// Module derives a child logger tagged with the subsystem name; this is
// how components (core/blockchain, vm, ...) obtain their loggers.
func (l *Logger) Module(name string) *Logger {
	return &Logger{inner: l.inner.With("module", name)}
}

// With derives a child logger with extra key-value context.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{inner: l.inner.With(args...)}
}

func (l *Logger) Debug(msg string, args ...any) { l.inner.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.inner.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.inner.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.inner.Error(msg, args...) }

// The package-level functions log through the default logger.

func Debug(msg string, args ...any) { defaultLogger.Debug(msg, args...) }
func Info(msg string, args ...any)  { defaultLogger.Info(msg, args...) }
func Warn(msg string, args ...any)  { defaultLogger.Warn(msg, args...) }
func Error(msg string, args ...any) { defaultLogger.Error(msg, args...) }
