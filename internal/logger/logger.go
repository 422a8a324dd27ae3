// Package logger wraps log/slog with the small field-based API used across
// the hub: every component receives a *Logger, scopes it with Component, and
// logs with logger.Field pairs.
//
//	log, err := logger.New(logger.Config{Level: "info", Format: "json", Output: "stdout"})
//	if err != nil {
//	    return err
//	}
//	log.Component("scheduler").Info("tick", logger.Field{Key: "due", Value: 2})
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config describes where and how log records are written.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output string // stdout, stderr or a file path (~/ is expanded)
}

// Logger is a thin wrapper around *slog.Logger.
type Logger struct {
	slog *slog.Logger
}

// Field is a single structured key/value pair.
type Field struct {
	Key   string
	Value any
}

// New builds a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	level, ok := parseLevel(cfg.Level)
	if !ok {
		return nil, fmt.Errorf("invalid log level: %s (expected: debug, info, warn, error)", cfg.Level)
	}

	writer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	return NewWithWriter(writer, level, cfg.Format)
}

// NewWithWriter builds a Logger writing to w. Used by New and by tests that
// need to inspect output.
func NewWithWriter(w io.Writer, level slog.Level, format string) (*Logger, error) {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format: %s (expected: json, text)", format)
	}

	return &Logger{slog: slog.New(handler)}, nil
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{slog: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	path := output
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	path = filepath.Clean(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", filepath.Dir(path), err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return file, nil
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// ValidLevel reports whether level is accepted by New.
func ValidLevel(level string) bool {
	_, ok := parseLevel(level)
	return ok
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.slog.Debug(msg, toArgs(fields)...)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.slog.Info(msg, toArgs(fields)...)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.slog.Warn(msg, toArgs(fields)...)
}

// Error logs at error level; err may be nil.
func (l *Logger) Error(msg string, err error, fields ...Field) {
	l.slog.Error(msg, toArgs(withErr(err, fields))...)
}

func (l *Logger) DebugCtx(ctx context.Context, msg string, fields ...Field) {
	l.slog.DebugContext(ctx, msg, toArgs(fields)...)
}

func (l *Logger) InfoCtx(ctx context.Context, msg string, fields ...Field) {
	l.slog.InfoContext(ctx, msg, toArgs(fields)...)
}

func (l *Logger) WarnCtx(ctx context.Context, msg string, fields ...Field) {
	l.slog.WarnContext(ctx, msg, toArgs(fields)...)
}

func (l *Logger) ErrorCtx(ctx context.Context, msg string, err error, fields ...Field) {
	l.slog.ErrorContext(ctx, msg, toArgs(withErr(err, fields))...)
}

// With returns a child logger carrying fields on every record.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{slog: l.slog.With(toArgs(fields)...)}
}

// Component is shorthand for With(Field{"component", name}).
func (l *Logger) Component(name string) *Logger {
	return l.With(Field{Key: "component", Value: name})
}

// StdLogger exposes the underlying slog logger.
func (l *Logger) StdLogger() *slog.Logger {
	return l.slog
}

// SetDefault installs l as the process-wide slog default.
func SetDefault(l *Logger) {
	slog.SetDefault(l.slog)
}

func withErr(err error, fields []Field) []Field {
	if err == nil {
		return fields
	}
	return append([]Field{{Key: "error", Value: err}}, fields...)
}

func toArgs(fields []Field) []any {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return args
}
