// Package log provides logging functionality for unitd.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger defines the interface for logging operations.
//
// The supervision core never logs from inside the fork child path (see
// internal/starter) — slog.Logger's internal locking makes it unsafe to
// touch between fork and exec.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// SlogAdapter wraps slog.Logger to implement our Logger interface.
type SlogAdapter struct {
	logger *slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) {
	s.logger.Debug(msg, args...)
}

// Info logs an info message.
func (s *SlogAdapter) Info(msg string, args ...any) {
	s.logger.Info(msg, args...)
}

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) {
	s.logger.Warn(msg, args...)
}

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) {
	s.logger.Error(msg, args...)
}

// With returns a logger that prepends args to every subsequent record,
// typically used to scope a logger to a single unit: log.With("unit", name).
func (s *SlogAdapter) With(args ...any) Logger {
	return &SlogAdapter{logger: s.logger.With(args...)}
}

// NewLogger creates a new logger with the specified verbosity.
func NewLogger(verbose bool) Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}

	if verbose {
		opts.Level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	slogLogger := slog.New(handler)

	return &SlogAdapter{logger: slogLogger}
}

// GetLogger returns a non-verbose logger writing to stdout, the same
// logger NewLogger(false) builds.
func GetLogger() Logger {
	return NewLogger(false)
}

// Nop returns a logger that discards all output.
func Nop() Logger {
	handler := slog.NewTextHandler(io.Discard, nil)
	slogLogger := slog.New(handler)
	return &SlogAdapter{logger: slogLogger}
}

// NewSlogAdapter creates a Logger from an slog.Logger.
func NewSlogAdapter(slogLogger *slog.Logger) Logger {
	return &SlogAdapter{logger: slogLogger}
}
