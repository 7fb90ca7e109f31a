package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	requestIDKey
	tenantKey
	connectorKey
	jobIDKey
)

// WithContext stores the logger in ctx
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
// Trace and span ids of an active span are attached.
func FromContext(ctx context.Context) *zap.Logger {
	l, ok := ctx.Value(loggerKey).(*zap.Logger)
	if !ok || l == nil {
		l = zap.NewNop()
	}
	if fields := TraceFields(ctx); len(fields) > 0 {
		l = l.With(fields...)
	}
	return l
}

// WithRequestID records the request id and tags the stored logger with it
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return annotate(ctx, requestIDKey, "request_id", requestID)
}

// WithTenant records the tenant slug
func WithTenant(ctx context.Context, slug string) context.Context {
	return annotate(ctx, tenantKey, "tenant", slug)
}

// WithConnector records the connector name
func WithConnector(ctx context.Context, connector string) context.Context {
	return annotate(ctx, connectorKey, "connector", connector)
}

// WithJobID records the sync job id
func WithJobID(ctx context.Context, jobID string) context.Context {
	return annotate(ctx, jobIDKey, "job_id", jobID)
}

func annotate(ctx context.Context, key ctxKey, field, value string) context.Context {
	ctx = context.WithValue(ctx, key, value)
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
		ctx = WithContext(ctx, l.With(zap.String(field, value)))
	}
	return ctx
}

func value(ctx context.Context, key ctxKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

func GetRequestID(ctx context.Context) string { return value(ctx, requestIDKey) }
func GetTenant(ctx context.Context) string    { return value(ctx, tenantKey) }
func GetConnector(ctx context.Context) string { return value(ctx, connectorKey) }
func GetJobID(ctx context.Context) string     { return value(ctx, jobIDKey) }

// TraceFields returns trace_id and span_id of the span in ctx, if any
func TraceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
