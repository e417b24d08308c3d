package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// SkipPaths are not traced (health probes).
	SkipPaths []string
}

// Tracing wraps otelgin. Spans are named "METHOD route" by otelgin and are
// enriched with the request ID, the customer a request acts on, and an error
// status for 4xx/5xx answers.
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}
	return otelgin.Middleware(cfg.ServiceName, otelgin.WithFilter(func(r *http.Request) bool {
		return !skip[r.URL.Path]
	}))
}

// ErrorCodeKey is the gin context key under which handlers record the
// error code they answered with
const ErrorCodeKey = "error_code"

// SpanEnricher runs after Tracing and RequestID: it tags the active span
// with the request ID and, once the handler finished, the outcome.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}
		if id := GetRequestID(c); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}
		if customerID := c.Param("customerId"); customerID != "" {
			span.SetAttributes(attribute.String("customer_id", customerID))
		}

		c.Next()

		if status := c.Writer.Status(); status >= http.StatusBadRequest {
			span.SetAttributes(attribute.Int("http.status_code", status))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			if code := c.GetString(ErrorCodeKey); code != "" {
				span.SetAttributes(attribute.String("error.code", code))
			}
		}
	}
}
