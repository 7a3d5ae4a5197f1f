package idempotency

import (
	"time"

	"github.com/wms-platform/replenishment-service/pkg/logging"
	"github.com/wms-platform/replenishment-service/pkg/metrics"
)

// DefaultRetentionPeriod is how long processed message ids are kept.
const DefaultRetentionPeriod = 24 * time.Hour

// ConsumerConfig holds configuration for Kafka consumer message deduplication
type ConsumerConfig struct {
	ServiceName     string
	Topic           string
	ConsumerGroup   string
	Repository      MessageRepository
	RetentionPeriod time.Duration

	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// DefaultConsumerConfig returns a default consumer configuration
func DefaultConsumerConfig(serviceName, topic, consumerGroup string, repository MessageRepository) *ConsumerConfig {
	return &ConsumerConfig{
		ServiceName:     serviceName,
		Topic:           topic,
		ConsumerGroup:   consumerGroup,
		Repository:      repository,
		RetentionPeriod: DefaultRetentionPeriod,
	}
}
