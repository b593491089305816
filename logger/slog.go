package logger

import (
	"context"
	"log/slog"
)

type fieldsKey struct{}

// ContextWithFields returns a context carrying key-value pairs that
// WithContext adds to a logger.
func ContextWithFields(ctx context.Context, args ...any) context.Context {
	existing, _ := ctx.Value(fieldsKey{}).([]any)
	fields := make([]any, 0, len(existing)+len(args))
	fields = append(fields, existing...)
	fields = append(fields, args...)
	return context.WithValue(ctx, fieldsKey{}, fields)
}

// slogLogger is an adapter that wraps slog.Logger to implement our Logger interface.
type slogLogger struct {
	logger *slog.Logger
}

func (l *slogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

func (l *slogLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

func (l *slogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

func (l *slogLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// With returns a new logger with the given key-value pairs added to all log messages.
func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{
		logger: l.logger.With(args...),
	}
}

// WithContext returns a logger carrying the fields stored by ContextWithFields.
func (l *slogLogger) WithContext(ctx context.Context) Logger {
	fields, _ := ctx.Value(fieldsKey{}).([]any)
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}
