// Package middleware provides the gin middleware of the webhook gateway and
// the admin API.
package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/feedsync/backend/internal/infrastructure/telemetry"
)

// Gin context key under which handlers leave the resolved tenant slug
const TenantSlugKey = "tenant_slug"

// TracingConfig holds configuration for the tracing middleware
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// SkipPaths are not traced, e.g. health probes
	SkipPaths []string
}

// DefaultTracingConfig returns default tracing configuration
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "feedsync",
		Enabled:     true,
		SkipPaths:   []string{"/health", "/ready"},
	}
}

// Tracing starts a server span per request via otelgin
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return otelgin.Middleware(cfg.ServiceName, otelgin.WithFilter(func(r *http.Request) bool {
		return !slices.Contains(cfg.SkipPaths, r.URL.Path)
	}))
}

// SpanStatus runs inside the otelgin span. Once the handler chain returns
// it tags the span with the request id, tenant and operator, records errors
// collected with c.Error and marks 5xx responses as failed.
func SpanStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		enrichSpan(c, span)
		for _, e := range c.Errors {
			span.RecordError(e.Err)
		}
		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

func enrichSpan(c *gin.Context, span trace.Span) {
	if id := GetRequestID(c); id != "" {
		span.SetAttributes(attribute.String("request_id", id))
	}
	if slug := c.GetString(TenantSlugKey); slug != "" {
		span.SetAttributes(telemetry.AttrTenant.String(slug))
	}
	if op := GetOperator(c); op != "" {
		span.SetAttributes(attribute.String("feedsync.operator", op))
	}
}
