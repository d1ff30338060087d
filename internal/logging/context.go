package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	if id := SourceIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("source.id", id))
	}
	if id := WorkflowIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("workflow.id", id))
	}
	return fields
}

type requestCtxKey struct{}
type sourceCtxKey struct{}
type workflowCtxKey struct{}
type loggerCtxKey struct{}

// maxIDLen caps correlation ids copied into every log line.
const maxIDLen = 256

func clip(id string) string {
	if len(id) > maxIDLen {
		return id[:maxIDLen]
	}
	return id
}

// WithRequestID tags ctx with an HTTP, NATS or MCP request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, clip(id))
}

// RequestIDFromContext returns the request id or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestCtxKey{}).(string)
	return id
}

// WithSourceID tags ctx with the document source being ingested.
func WithSourceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sourceCtxKey{}, clip(id))
}

// SourceIDFromContext returns the source id or "".
func SourceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sourceCtxKey{}).(string)
	return id
}

// WithWorkflowID tags ctx with the Temporal workflow id.
func WithWorkflowID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, workflowCtxKey{}, clip(id))
}

// WorkflowIDFromContext returns the workflow id or "".
func WorkflowIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(workflowCtxKey{}).(string)
	return id
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
