package kafka

import (
	"context"
	"time"

	"github.com/wms-platform/replenishment-service/pkg/cloudevents"
	"github.com/wms-platform/replenishment-service/pkg/logging"
	"github.com/wms-platform/replenishment-service/pkg/metrics"
	"github.com/wms-platform/replenishment-service/pkg/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Publisher is what callers need from a producer.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error
	Close() error
}

func addOrderAttributes(span trace.Span, event *cloudevents.CloudEvent) {
	if event.CorrelationID != "" {
		span.SetAttributes(attribute.String("replenishment.correlation_id", event.CorrelationID))
	}
	if event.OrderID != "" {
		span.SetAttributes(attribute.String("replenishment.order_id", event.OrderID))
	}
	if event.StoreID != "" {
		span.SetAttributes(attribute.String("replenishment.store_id", event.StoreID))
	}
}

// InstrumentedProducer wraps a Producer with metrics and tracing
type InstrumentedProducer struct {
	producer *Producer
	metrics  *metrics.Metrics
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewInstrumentedProducer creates a new instrumented producer
func NewInstrumentedProducer(producer *Producer, m *metrics.Metrics, logger *logging.Logger) *InstrumentedProducer {
	return &InstrumentedProducer{
		producer: producer,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("kafka-producer"),
	}
}

// PublishEvent publishes a CloudEvent with metrics and tracing. The active
// span context is written into the traceparent extension so consumers can
// continue the trace.
func (p *InstrumentedProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "kafka.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("kafka"),
			semconv.MessagingDestinationNameKey.String(topic),
			semconv.MessagingOperationKey.String("publish"),
			attribute.String("messaging.kafka.event_type", event.Type),
			attribute.String("messaging.message_id", event.ID),
		),
	)
	defer span.End()

	addOrderAttributes(span, event)

	carrier := tracing.MapCarrier{}
	tracing.InjectTraceContext(ctx, carrier)
	if tp, ok := carrier["traceparent"]; ok {
		event.TraceParent = tp
		event.TraceState = carrier["tracestate"]
	}

	err := p.producer.PublishEvent(ctx, topic, event)
	duration := time.Since(start)

	success := err == nil
	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(topic, event.Type, success, duration)
	}
	if p.logger != nil {
		p.logger.KafkaPublish(ctx, topic, event.Type, success, duration)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return err
}

// Close closes the underlying producer
func (p *InstrumentedProducer) Close() error {
	return p.producer.Close()
}

// InstrumentHandler wraps an event handler with a consumer span and metrics.
// The span is parented on the traceparent carried by the event.
func InstrumentHandler(topic, groupID string, m *metrics.Metrics, handler EventHandler) EventHandler {
	tracer := otel.Tracer("kafka-consumer")

	return func(ctx context.Context, event *cloudevents.CloudEvent) error {
		start := time.Now()

		if event.TraceParent != "" {
			ctx = tracing.ExtractTraceContext(ctx, tracing.MapCarrier{
				"traceparent": event.TraceParent,
				"tracestate":  event.TraceState,
			})
		}

		ctx, span := tracer.Start(ctx, "kafka.consume",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				semconv.MessagingSystemKey.String("kafka"),
				semconv.MessagingDestinationNameKey.String(topic),
				semconv.MessagingOperationKey.String("receive"),
				attribute.String("messaging.kafka.event_type", event.Type),
				attribute.String("messaging.message_id", event.ID),
				attribute.String("messaging.kafka.consumer_group", groupID),
			),
		)
		defer span.End()

		addOrderAttributes(span, event)

		err := handler(ctx, event)

		if m != nil {
			m.RecordKafkaConsume(topic, event.Type, err == nil)
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
			span.SetAttributes(attribute.Int64("messaging.processing_duration_ms", time.Since(start).Milliseconds()))
		}

		return err
	}
}
