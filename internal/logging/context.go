package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	requestIDKey
	traceIDKey
	spanIDKey
)

// WithLogger stores the provided logger on the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the request-scoped logger or falls back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := value[*slog.Logger](ctx, loggerKey); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// WithRequestID stores a request identifier on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves a previously stored request identifier.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := value[string](ctx, requestIDKey)
	return id
}

// WithTraceID stores a trace identifier on the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withString(ctx, traceIDKey, traceID)
}

// TraceIDFromContext retrieves the trace identifier from the context.
func TraceIDFromContext(ctx context.Context) string {
	id, _ := value[string](ctx, traceIDKey)
	return id
}

// WithSpanID stores the current span identifier on the context.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return withString(ctx, spanIDKey, spanID)
}

// SpanIDFromContext retrieves the span identifier from the context.
func SpanIDFromContext(ctx context.Context) string {
	id, _ := value[string](ctx, spanIDKey)
	return id
}

func withString(ctx context.Context, key ctxKey, v string) context.Context {
	if ctx == nil || v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func value[T any](ctx context.Context, key ctxKey) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(key).(T)
	return v, ok
}
