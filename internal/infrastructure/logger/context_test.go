package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestFromContext_NoLogger(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.NotPanics(t, func() { l.Info("dropped") })
}

func TestAnnotations(t *testing.T) {
	l, logs := observed()
	ctx := WithContext(context.Background(), l)
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTenant(ctx, "acme")
	ctx = WithConnector(ctx, "intercom")
	ctx = WithJobID(ctx, "job-9")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "acme", GetTenant(ctx))
	assert.Equal(t, "intercom", GetConnector(ctx))
	assert.Equal(t, "job-9", GetJobID(ctx))

	FromContext(ctx).Info("page fetched")
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "acme", fields["tenant"])
	assert.Equal(t, "intercom", fields["connector"])
	assert.Equal(t, "job-9", fields["job_id"])
}

func TestAnnotations_WithoutLogger(t *testing.T) {
	ctx := WithConnector(context.Background(), "segment")
	assert.Equal(t, "segment", GetConnector(ctx))
	assert.Empty(t, GetTenant(ctx))
}

func TestTraceFields(t *testing.T) {
	assert.Nil(t, TraceFields(context.Background()))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	l, logs := observed()
	ctx := trace.ContextWithSpanContext(WithContext(context.Background(), l), sc)

	FromContext(ctx).Warn("slow page")
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
}
