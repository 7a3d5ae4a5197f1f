package kafka

import (
	"context"

	"github.com/sony/gobreaker"
	"github.com/wms-platform/replenishment-service/pkg/cloudevents"
	"github.com/wms-platform/replenishment-service/pkg/logging"
	"github.com/wms-platform/replenishment-service/pkg/metrics"
	"github.com/wms-platform/replenishment-service/pkg/resilience"
)

// CircuitBreakerProducer fails fast while the broker keeps rejecting writes.
type CircuitBreakerProducer struct {
	producer       Publisher
	circuitBreaker *resilience.CircuitBreaker
}

// NewCircuitBreakerProducer wraps producer with the "kafka-producer" breaker.
func NewCircuitBreakerProducer(producer Publisher, m *metrics.Metrics, logger *logging.Logger) *CircuitBreakerProducer {
	config := resilience.DefaultCircuitBreakerConfig("kafka-producer")
	config.MaxRequests = 5

	if logger == nil {
		logger = logging.NewNop()
	}

	cb := resilience.NewCircuitBreaker(config, logger.Logger)
	if m != nil {
		cb.OnStateChange(func(name string, _, to gobreaker.State) {
			m.SetCircuitBreakerState(name, int(to))
		})
	}

	return &CircuitBreakerProducer{
		producer:       producer,
		circuitBreaker: cb,
	}
}

// PublishEvent publishes a CloudEvent with circuit breaker protection
func (p *CircuitBreakerProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	_, err := p.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return nil, p.producer.PublishEvent(ctx, topic, event)
	})
	return err
}

// State exposes the breaker state for readiness reporting.
func (p *CircuitBreakerProducer) State() gobreaker.State {
	return p.circuitBreaker.State()
}

// Close closes the underlying producer
func (p *CircuitBreakerProducer) Close() error {
	return p.producer.Close()
}
