package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span is a named unit of background or request work. Every log line written
// through the derived context carries trace_id and span_id.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
	failed bool
}

// StartSpan derives a child span from ctx. attrs are attached to the span's logger.
func StartSpan(ctx context.Context, name string, attrs ...any) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx)

	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
		ctx = WithTraceID(ctx, traceID)
		logger = logger.With(slog.String("trace_id", traceID))
	}

	spanID := uuid.NewString()
	logger = logger.With(slog.String("span_id", spanID), slog.String("span_name", name))
	if parent := SpanIDFromContext(ctx); parent != "" {
		logger = logger.With(slog.String("parent_span_id", parent))
	}
	if len(attrs) > 0 {
		logger = logger.With(attrs...)
	}

	ctx = WithSpanID(WithLogger(ctx, logger), spanID)
	return ctx, &Span{name: name, logger: logger, start: time.Now()}
}

// Fail marks the span as failed; End then logs at error level.
func (s *Span) Fail(err error) {
	if s == nil {
		return
	}
	s.failed = true
	s.logger = s.logger.With(slog.Any("error", err))
}

// Duration reports the time since the span started.
func (s *Span) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return time.Since(s.start)
}

// End emits the completion entry.
func (s *Span) End() {
	if s == nil {
		return
	}
	if s.failed {
		s.logger.Error("span failed", slog.Duration("duration", s.Duration()))
		return
	}
	s.logger.Info("span completed", slog.Duration("duration", s.Duration()))
}
