package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wms-platform/replenishment-service/pkg/cloudevents"
	"github.com/wms-platform/replenishment-service/pkg/errors"
	"github.com/wms-platform/replenishment-service/pkg/logging"
)

// Context keys
const (
	ContextKeyRequestID     = "requestId"
	ContextKeyCorrelationID = "correlationId"
	ContextKeyTraceID       = "traceId"
)

// HTTP header names
const (
	HeaderRequestID     = "X-Request-ID"
	HeaderCorrelationID = "X-Correlation-ID"
)

// RequestID middleware generates or propagates request IDs
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set(ContextKeyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Request = c.Request.WithContext(logging.ContextWithRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}

// CorrelationID propagates X-Correlation-ID into the request context, where
// both the logger and the event factory pick it up.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(HeaderCorrelationID)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		c.Set(ContextKeyCorrelationID, correlationID)
		c.Header(HeaderCorrelationID, correlationID)

		ctx := logging.ContextWithCorrelationID(c.Request.Context(), correlationID)
		ctx = cloudevents.ContextWithCorrelationID(ctx, correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// LoggerConfig holds logger middleware configuration
type LoggerConfig struct {
	Logger       *logging.Logger
	ExcludePaths []string
}

// DefaultLoggerConfig excludes the probe and scrape paths.
func DefaultLoggerConfig(logger *logging.Logger) *LoggerConfig {
	return &LoggerConfig{
		Logger:       logger,
		ExcludePaths: []string{"/health", "/ready", "/metrics"},
	}
}

// Logger logs one line per request.
func Logger(logger *logging.Logger) gin.HandlerFunc {
	return LoggerWithConfig(DefaultLoggerConfig(logger))
}

// LoggerWithConfig middleware adds structured logging with path exclusion
func LoggerWithConfig(config *LoggerConfig) gin.HandlerFunc {
	skipMap := make(map[string]bool, len(config.ExcludePaths))
	for _, path := range config.ExcludePaths {
		skipMap[path] = true
	}

	return func(c *gin.Context) {
		if skipMap[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		config.Logger.HTTPRequest(c.Request.Context(), c.Request.Method, path,
			c.Writer.Status(), time.Since(start), c.ClientIP(), c.Request.UserAgent())
	}
}

// Recovery middleware handles panics and logs them properly
func Recovery(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Panic(c.Request.Context(), recovered)
				AbortWithAppError(c, errors.ErrInternal("an unexpected error occurred"))
			}
		}()
		c.Next()
	}
}

// GetRequestID extracts request ID from context
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// GetCorrelationID extracts correlation ID from context
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(ContextKeyCorrelationID)
}
