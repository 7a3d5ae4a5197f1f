package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wms-platform/replenishment-service/pkg/logging"
	"github.com/wms-platform/replenishment-service/pkg/metrics"
)

// Config holds middleware configuration
type Config struct {
	Logger         *logging.Logger
	Metrics        *metrics.Metrics
	ServiceName    string
	EnableTracing  bool
	TrustedProxies []string
}

// DefaultConfig returns a default middleware configuration
func DefaultConfig(serviceName string, logger *logging.Logger, m *metrics.Metrics) *Config {
	return &Config{
		Logger:        logger,
		Metrics:       m,
		ServiceName:   serviceName,
		EnableTracing: true,
	}
}

// Setup applies the standard middleware chain and the JSON 404/405 handlers.
func Setup(router *gin.Engine, config *Config) {
	InitValidator()

	if len(config.TrustedProxies) > 0 {
		_ = router.SetTrustedProxies(config.TrustedProxies)
	}

	router.HandleMethodNotAllowed = true
	router.NoRoute(NoRoute())
	router.NoMethod(NoMethod())

	router.Use(Recovery(config.Logger))
	router.Use(RequestID())
	router.Use(CorrelationID())
	if config.EnableTracing {
		router.Use(TracingMiddleware(DefaultTracingConfig(config.ServiceName)))
	}
	if config.Metrics != nil {
		router.Use(MetricsMiddleware(config.Metrics))
	}
	router.Use(Logger(config.Logger))
	router.Use(ContentType())
}

// HealthCheck creates a liveness handler.
func HealthCheck(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
		})
	}
}

// ReadinessCheck runs every named check and reports 503 when any fails.
func ReadinessCheck(serviceName string, checks map[string]func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		results := make(map[string]string, len(checks))
		ready := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				ready = false
				continue
			}
			results[name] = "ok"
		}

		status, text := http.StatusOK, "ready"
		if !ready {
			status, text = http.StatusServiceUnavailable, "not ready"
		}
		c.JSON(status, gin.H{
			"status":  text,
			"service": serviceName,
			"checks":  results,
		})
	}
}

// NoRoute handles 404 errors with proper error format
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, APIErrorResponse{
			Code:      "ROUTE_NOT_FOUND",
			Message:   "The requested resource was not found",
			RequestID: GetRequestID(c),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Path:      c.Request.URL.Path,
		})
	}
}

// NoMethod handles 405 errors with proper error format
func NoMethod() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, APIErrorResponse{
			Code:      "METHOD_NOT_ALLOWED",
			Message:   "The request method is not supported for this resource",
			RequestID: GetRequestID(c),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Path:      c.Request.URL.Path,
		})
	}
}
