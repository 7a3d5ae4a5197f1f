package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// ParseLevel maps a LOG_LEVEL value onto a LogLevel, falling back to info.
func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "warning":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// Config holds logger configuration
type Config struct {
	Level       LogLevel
	ServiceName string
	Environment string
	Version     string
	Output      io.Writer
	AddSource   bool
}

// DefaultConfig returns a default logger configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		Level:       ParseLevel(getEnv("LOG_LEVEL", string(LevelInfo))),
		ServiceName: serviceName,
		Environment: getEnv("ENVIRONMENT", "development"),
		Version:     getEnv("VERSION", "unknown"),
		Output:      os.Stdout,
	}
}

// Logger wraps slog.Logger with service metadata and domain helpers.
type Logger struct {
	*slog.Logger
	serviceName string
	environment string
	version     string
}

// New creates a new Logger instance
func New(config *Config) *Logger {
	level := slog.LevelInfo
	switch config.Level {
	case LevelDebug:
		level = slog.LevelDebug
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}

	output := config.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
				}
			}
			return a
		},
	}

	base := slog.New(slog.NewJSONHandler(output, opts)).With(
		"service", config.ServiceName,
		"environment", config.Environment,
		"version", config.Version,
	)

	return &Logger{
		Logger:      base,
		serviceName: config.ServiceName,
		environment: config.Environment,
		version:     config.Version,
	}
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return New(&Config{Level: LevelError, ServiceName: "test", Output: io.Discard})
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{
		Logger:      l.Logger.With(args...),
		serviceName: l.serviceName,
		environment: l.environment,
		version:     l.version,
	}
}

// ServiceName returns the service the logger was built for.
func (l *Logger) ServiceName() string {
	return l.serviceName
}

// WithContext creates a logger with context attributes
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := extractContextAttrs(ctx)
	if len(attrs) == 0 {
		return l
	}
	return l.with(attrs...)
}

// WithRequestID adds a request ID to the logger
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.with("requestId", requestID)
}

// WithCorrelationID adds a correlation ID to the logger
func (l *Logger) WithCorrelationID(correlationID string) *Logger {
	return l.with("correlationId", correlationID)
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields map[string]any) *Logger {
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	return l.with(attrs...)
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

// WithComponent adds a component name to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return l.with("component", component)
}

// WithOperation adds an operation name to the logger
func (l *Logger) WithOperation(operation string) *Logger {
	return l.with("operation", operation)
}

// WithOrderID scopes the logger to one replenishment order.
func (l *Logger) WithOrderID(orderID string) *Logger {
	return l.with("orderId", orderID)
}

// Event logs a business event with structured data
func (l *Logger) Event(ctx context.Context, eventType string, data map[string]any) {
	attrs := []any{
		"eventType", eventType,
		"timestamp", time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range data {
		attrs = append(attrs, k, v)
	}
	l.WithContext(ctx).Info("Business event", attrs...)
}

// BusinessEvent describes a state change worth an audit trail.
type BusinessEvent struct {
	EventType  string
	EntityType string
	EntityID   string
	Action     string
	RelatedIDs map[string]string
}

// LogBusinessEvent logs a BusinessEvent with its related identifiers flattened.
func (l *Logger) LogBusinessEvent(ctx context.Context, event BusinessEvent) {
	attrs := []any{
		"eventType", event.EventType,
		"entityType", event.EntityType,
		"entityId", event.EntityID,
		"action", event.Action,
	}
	for k, v := range event.RelatedIDs {
		attrs = append(attrs, k, v)
	}
	l.WithContext(ctx).Info("Business event", attrs...)
}

// Audit logs an audit event
func (l *Logger) Audit(ctx context.Context, action string, resource string, resourceID string, details map[string]any) {
	attrs := []any{
		"auditAction", action,
		"resource", resource,
		"resourceId", resourceID,
		"timestamp", time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range details {
		attrs = append(attrs, k, v)
	}
	l.WithContext(ctx).Info("Audit event", attrs...)
}

// HTTPRequest logs an HTTP request with standard fields
func (l *Logger) HTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration, clientIP, userAgent string) {
	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	} else if status >= 400 {
		level = slog.LevelWarn
	}

	l.WithContext(ctx).Log(ctx, level, "HTTP request",
		"method", method,
		"path", path,
		"status", status,
		"durationMs", duration.Milliseconds(),
		"clientIP", clientIP,
		"userAgent", userAgent,
	)
}

// DatabaseQuery logs a database query
func (l *Logger) DatabaseQuery(ctx context.Context, collection, operation string, duration time.Duration, success bool, rowsAffected int64) {
	level := slog.LevelDebug
	if !success {
		level = slog.LevelError
	}

	l.WithContext(ctx).Log(ctx, level, "Database query",
		"collection", collection,
		"operation", operation,
		"durationMs", duration.Milliseconds(),
		"success", success,
		"rowsAffected", rowsAffected,
	)
}

// KafkaPublish logs a Kafka publish event
func (l *Logger) KafkaPublish(ctx context.Context, topic, eventType string, success bool, duration time.Duration) {
	level := slog.LevelDebug
	if !success {
		level = slog.LevelError
	}

	l.WithContext(ctx).Log(ctx, level, "Kafka publish",
		"topic", topic,
		"eventType", eventType,
		"success", success,
		"durationMs", duration.Milliseconds(),
	)
}

// KafkaConsume logs a Kafka consume event
func (l *Logger) KafkaConsume(ctx context.Context, topic, eventType string, partition int, offset int64) {
	l.WithContext(ctx).Debug("Kafka consume",
		"topic", topic,
		"eventType", eventType,
		"partition", partition,
		"offset", offset,
	)
}

// Panic logs a panic with stack trace
func (l *Logger) Panic(ctx context.Context, recovered any) {
	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)

	l.WithContext(ctx).Error("Panic recovered",
		"panic", recovered,
		"stack", string(stack[:n]),
	)
}

// SetDefault sets this logger as the default slog logger
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

type contextKey string

const (
	RequestIDKey     contextKey = "requestId"
	CorrelationIDKey contextKey = "correlationId"
	TraceIDKey       contextKey = "traceId"
	EventIDKey       contextKey = "eventId"
	TriggerKey       contextKey = "trigger"
)

func extractContextAttrs(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}

	var attrs []any
	for _, key := range []contextKey{RequestIDKey, CorrelationIDKey, TraceIDKey, EventIDKey, TriggerKey} {
		if v := ctx.Value(key); v != nil {
			attrs = append(attrs, string(key), v)
		}
	}
	return attrs
}

// ContextWithRequestID adds request ID to context
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// ContextWithCorrelationID adds correlation ID to context
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// ContextWithTraceID adds trace ID to context
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// ContextWithEventID tags the context with the id of the inbound event being handled.
func ContextWithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, EventIDKey, eventID)
}

// ContextWithTrigger records which entry point (api, event, sweeper) drove the call.
func ContextWithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, TriggerKey, trigger)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
