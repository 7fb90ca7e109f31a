package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names spans started by application code
const TracerName = "github.com/feedsync/backend"

// Span attribute keys shared by the gateway, the sync workers and the db plugin
const (
	AttrTenant    = attribute.Key("feedsync.tenant")
	AttrConnector = attribute.Key("feedsync.connector")
	AttrJobID     = attribute.Key("feedsync.job_id")
	AttrEventType = attribute.Key("feedsync.event_type")
)

// StartSpan starts an internal span, e.g. "sync.execute" or "webhook.receive"
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// End records err on the span, if any, and ends it
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
