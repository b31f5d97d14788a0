package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log is the global logger instance. It falls back to slog's default until Setup runs.
var Log = slog.Default()

type attrsKey struct{}

// Setup initializes the global logger on stdout based on the environment and level name
func Setup(env, level string) {
	SetupTo(os.Stdout, env, level)
}

// SetupTo initializes the global logger writing to w
func SetupTo(w io.Writer, env, level string) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	if env == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	Log = slog.New(handler)
	slog.SetDefault(Log)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// WithContext returns a context whose logger carries args in addition to any attributes already attached.
// Request and closing run identifiers travel this way into repository and SQL logs.
func WithContext(ctx context.Context, args ...any) context.Context {
	prev, _ := ctx.Value(attrsKey{}).([]any)
	attrs := make([]any, 0, len(prev)+len(args))
	attrs = append(attrs, prev...)
	attrs = append(attrs, args...)
	return context.WithValue(ctx, attrsKey{}, attrs)
}

// FromContext returns the global logger with the attributes attached to ctx
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return Log
	}
	attrs, _ := ctx.Value(attrsKey{}).([]any)
	if len(attrs) == 0 {
		return Log
	}
	return Log.With(attrs...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Log.Info(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Log.Error(msg, args...)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Log.Debug(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Log.Warn(msg, args...)
}
