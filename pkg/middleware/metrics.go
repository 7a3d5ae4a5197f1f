package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wms-platform/replenishment-service/pkg/metrics"
)

// MetricsMiddleware records request count, latency and in-flight gauge by route pattern.
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		done := m.TrackInFlight()
		defer done()

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// MetricsEndpoint returns a handler for the /metrics endpoint
func MetricsEndpoint(m *metrics.Metrics) gin.HandlerFunc {
	return gin.WrapH(m.Handler())
}
