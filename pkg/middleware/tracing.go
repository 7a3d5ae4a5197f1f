package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds tracing middleware configuration
type TracingConfig struct {
	ServiceName string
	SkipPaths   []string
	Propagators propagation.TextMapPropagator
	TracerName  string
}

// DefaultTracingConfig returns default tracing configuration
func DefaultTracingConfig(serviceName string) *TracingConfig {
	return &TracingConfig{
		ServiceName: serviceName,
		SkipPaths:   []string{"/health", "/ready", "/metrics"},
		Propagators: otel.GetTextMapPropagator(),
		TracerName:  serviceName,
	}
}

// TracingMiddleware opens a server span per request, continuing any
// incoming W3C trace context.
func TracingMiddleware(config *TracingConfig) gin.HandlerFunc {
	tracer := otel.Tracer(config.TracerName)
	skipMap := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}

	return func(c *gin.Context) {
		if skipMap[c.Request.URL.Path] {
			c.Next()
			return
		}

		ctx := config.Propagators.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", c.Request.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethodKey.String(c.Request.Method),
				semconv.HTTPRouteKey.String(route),
				attribute.String("http.client_ip", c.ClientIP()),
			),
		)
		defer span.End()

		if id := GetRequestID(c); id != "" {
			span.SetAttributes(attribute.String("request.id", id))
		}
		if id := GetCorrelationID(c); id != "" {
			span.SetAttributes(attribute.String("replenishment.correlation_id", id))
		}
		if orderID := c.Param("orderId"); orderID != "" {
			span.SetAttributes(attribute.String("replenishment.order_id", orderID))
		}

		c.Set(ContextKeyTraceID, span.SpanContext().TraceID().String())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(status))
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		for _, err := range c.Errors {
			span.RecordError(err.Err)
		}
	}
}
