package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type extractionCtxKey struct{}
type targetCtxKey struct{}
type loggerCtxKey struct{}

// ContextFields extracts correlation data from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}
	if id := ExtractionIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("extraction.id", id))
	}
	if id := TargetIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("target.id", id))
	}
	return fields
}

// WithExtractionID tags ctx with the id of a running extraction. An empty
// id leaves ctx unchanged.
func WithExtractionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, extractionCtxKey{}, id)
}

func ExtractionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(extractionCtxKey{}).(string)
	return id
}

// WithTargetID tags ctx with the debuggable target being observed.
func WithTargetID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, targetCtxKey{}, id)
}

func TargetIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(targetCtxKey{}).(string)
	return id
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger stored in ctx, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
