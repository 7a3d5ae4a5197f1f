package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/wms-platform/replenishment-service/internal/domain"
	"github.com/wms-platform/replenishment-service/pkg/cloudevents"
	"github.com/wms-platform/replenishment-service/pkg/idempotency"
	"github.com/wms-platform/replenishment-service/pkg/kafka"
	"github.com/wms-platform/replenishment-service/pkg/logging"
	"github.com/wms-platform/replenishment-service/pkg/metrics"
)

// Subscriber is the part of kafka.Consumer the gateway registers handlers on.
type Subscriber interface {
	GroupID() string
	SubscribeAll(topic string, handler kafka.EventHandler)
}

// KafkaGateway publishes domain events straight to Kafka and registers
// deduplicated inbound handlers on a consumer.
type KafkaGateway struct {
	producer    kafka.Publisher
	consumer    Subscriber
	factory     *cloudevents.EventFactory
	processed   idempotency.MessageRepository
	serviceName string
	logger      *logging.Logger
	metrics     *metrics.Metrics
}

// NewKafkaGateway creates a gateway. consumer may be nil for a publish-only
// gateway.
func NewKafkaGateway(
	producer kafka.Publisher,
	consumer Subscriber,
	factory *cloudevents.EventFactory,
	processed idempotency.MessageRepository,
	logger *logging.Logger,
	m *metrics.Metrics,
) *KafkaGateway {
	return &KafkaGateway{
		producer:    producer,
		consumer:    consumer,
		factory:     factory,
		processed:   processed,
		serviceName: logger.ServiceName(),
		logger:      logger.WithComponent("event-gateway"),
		metrics:     m,
	}
}

func (g *KafkaGateway) Publish(ctx context.Context, event domain.DomainEvent) error {
	topic, ce, err := Encode(ctx, g.factory, event)
	if err != nil {
		return err
	}

	start := time.Now()
	err = g.producer.PublishEvent(ctx, topic, ce)
	g.logger.KafkaPublish(ctx, topic, ce.Type, err == nil, time.Since(start))
	if err != nil {
		return fmt.Errorf("publish %s: %w", ce.Type, err)
	}
	return nil
}

// Subscribe registers handler for every topic. Each delivery is traced,
// counted and checked against the processed-message ledger before the
// handler sees it. An undecodable message is logged and acknowledged.
func (g *KafkaGateway) Subscribe(groupID string, topics []string, handler domain.InboundHandler) error {
	if g.consumer == nil {
		return fmt.Errorf("event gateway has no consumer")
	}
	if groupID != g.consumer.GroupID() {
		return fmt.Errorf("consumer is bound to group %s, not %s", g.consumer.GroupID(), groupID)
	}

	for _, topic := range topics {
		decode := func(ctx context.Context, ce *cloudevents.CloudEvent) error {
			event, err := Decode(ce)
			if err != nil {
				g.logger.WithContext(ctx).WithError(err).Warn("Dropping undecodable event",
					"topic", topic,
					"eventId", ce.ID,
					"eventType", ce.Type,
				)
				return nil
			}
			return handler(ctx, event)
		}

		cfg := idempotency.DefaultConsumerConfig(g.serviceName, topic, groupID, g.processed)
		cfg.Logger = g.logger
		cfg.Metrics = g.metrics

		g.consumer.SubscribeAll(topic, kafka.InstrumentHandler(topic, groupID, g.metrics,
			idempotency.DeduplicatingHandler(cfg, decode)))
		g.logger.Info("Subscribed to topic", "topic", topic, "group", groupID)
	}
	return nil
}
