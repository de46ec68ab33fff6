package logger

import (
	"context"
	"fmt"
	"log/slog"
)

type contextKey struct{}

// WithLogger returns a new context carrying the given logger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// WithValues returns a context whose logger carries the given attributes,
// either slog.Attr values or alternating keys and values.
func WithValues(ctx context.Context, attrs ...any) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(attrs...))
}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) Logger {
	if ctx == nil {
		return defaultLogger
	}
	if l, ok := ctx.Value(contextKey{}).(Logger); ok {
		return l
	}
	return defaultLogger
}

func logCtx(ctx context.Context, level slog.Level, msg string, tags ...any) {
	l := FromContext(ctx)
	if al, ok := l.(*appLogger); ok {
		al.logAt(4, level, msg, tags...)
		return
	}
	switch level {
	case slog.LevelDebug:
		l.Debug(msg, tags...)
	case slog.LevelWarn:
		l.Warn(msg, tags...)
	case slog.LevelError:
		l.Error(msg, tags...)
	default:
		l.Info(msg, tags...)
	}
}

// Debug logs a message with debug level.
func Debug(ctx context.Context, msg string, tags ...any) {
	logCtx(ctx, slog.LevelDebug, msg, tags...)
}

// Info logs a message with info level.
func Info(ctx context.Context, msg string, tags ...any) {
	logCtx(ctx, slog.LevelInfo, msg, tags...)
}

// Warn logs a message with warn level.
func Warn(ctx context.Context, msg string, tags ...any) {
	logCtx(ctx, slog.LevelWarn, msg, tags...)
}

// Error logs a message with error level.
func Error(ctx context.Context, msg string, tags ...any) {
	logCtx(ctx, slog.LevelError, msg, tags...)
}

// Infof logs a formatted message with info level.
func Infof(ctx context.Context, format string, v ...any) {
	logCtx(ctx, slog.LevelInfo, fmt.Sprintf(format, v...))
}

// Warnf logs a formatted message with warn level.
func Warnf(ctx context.Context, format string, v ...any) {
	logCtx(ctx, slog.LevelWarn, fmt.Sprintf(format, v...))
}

// Errorf logs a formatted message with error level.
func Errorf(ctx context.Context, format string, v ...any) {
	logCtx(ctx, slog.LevelError, fmt.Sprintf(format, v...))
}
