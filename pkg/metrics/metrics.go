package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaEventsConsumed  *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	// MongoDB metrics
	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec

	// Replenishment metrics
	OrdersCreated          *prometheus.CounterVec
	StageTransitions       *prometheus.CounterVec
	StockReservations      *prometheus.CounterVec
	ReservedUnits          *prometheus.CounterVec
	ReceivedUnits          *prometheus.CounterVec
	Compensations          *prometheus.CounterVec
	EventPublishFailures   *prometheus.CounterVec
	DuplicateEventsDropped *prometheus.CounterVec

	// Outbox metrics
	OutboxPending         prometheus.Gauge
	OutboxPublished       *prometheus.CounterVec
	OutboxPublishDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "replenishment",
	}
}

// New creates a new Metrics instance with its own registry.
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ns := config.Namespace
	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total", Help: "Total number of HTTP requests"},
		[]string{"service", "method", "path", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)
	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being processed",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	m.KafkaEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "kafka_events_published_total", Help: "Total number of Kafka events published"},
		[]string{"service", "topic", "event_type", "status"},
	)
	m.KafkaEventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "kafka_events_consumed_total", Help: "Total number of Kafka events consumed"},
		[]string{"service", "topic", "event_type", "status"},
	)
	m.KafkaPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "kafka_publish_duration_seconds",
			Help:      "Kafka publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "topic"},
	)

	m.MongoDBOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "mongodb_operations_total", Help: "Total number of MongoDB operations"},
		[]string{"service", "collection", "operation", "status"},
	)
	m.MongoDBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "mongodb_operation_duration_seconds",
			Help:      "MongoDB operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"service", "collection", "operation"},
	)

	m.OrdersCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "orders_created_total", Help: "Replenishment orders created from low-stock alerts"},
		[]string{"service", "store_id"},
	)
	m.StageTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "stage_transitions_total", Help: "Lifecycle transition attempts by target stage, outcome and trigger"},
		[]string{"service", "stage", "outcome", "trigger"},
	)
	m.StockReservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "stock_reservations_total", Help: "Warehouse stock reservation attempts"},
		[]string{"service", "result"},
	)
	m.ReservedUnits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "reserved_units_total", Help: "Units reserved from warehouse stock"},
		[]string{"service", "warehouse_id"},
	)
	m.ReceivedUnits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "received_units_total", Help: "Units received into store stock"},
		[]string{"service", "store_id"},
	)
	m.Compensations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "stock_compensations_total", Help: "Stock movements reverted after a failed ledger commit"},
		[]string{"service", "kind", "status"},
	)
	m.EventPublishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "event_publish_failures_total", Help: "Outbound events that could not be handed to the gateway"},
		[]string{"service", "event_type"},
	)
	m.DuplicateEventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "duplicate_events_dropped_total", Help: "Inbound events skipped by the processed-message ledger"},
		[]string{"service", "topic"},
	)

	m.OutboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "outbox_pending_events",
			Help:        "Unpublished events seen in the last outbox poll",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)
	m.OutboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "outbox_events_published_total", Help: "Outbox relay attempts by event type"},
		[]string{"service", "event_type", "status"},
	)
	m.OutboxPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "outbox_publish_duration_seconds",
			Help:      "Time to relay one outbox event",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "event_type"},
	)

	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)"},
		[]string{"service", "name"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.KafkaEventsPublished,
		m.KafkaEventsConsumed,
		m.KafkaPublishDuration,
		m.MongoDBOperations,
		m.MongoDBOperationDuration,
		m.OrdersCreated,
		m.StageTransitions,
		m.StockReservations,
		m.ReservedUnits,
		m.ReceivedUnits,
		m.Compensations,
		m.EventPublishFailures,
		m.DuplicateEventsDropped,
		m.OutboxPending,
		m.OutboxPublished,
		m.OutboxPublishDuration,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns an HTTP handler for metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// TrackInFlight increments the in-flight gauge and returns its decrement.
func (m *Metrics) TrackInFlight() func() {
	m.HTTPRequestsInFlight.Inc()
	return m.HTTPRequestsInFlight.Dec
}

// RecordKafkaPublish records a Kafka publish event
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, statusLabel(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordKafkaConsume records a Kafka consume event
func (m *Metrics) RecordKafkaConsume(topic, eventType string, success bool) {
	m.KafkaEventsConsumed.WithLabelValues(m.serviceName, topic, eventType, statusLabel(success)).Inc()
}

// RecordMongoDBOperation records a MongoDB operation
func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	m.MongoDBOperations.WithLabelValues(m.serviceName, collection, operation, statusLabel(success)).Inc()
	m.MongoDBOperationDuration.WithLabelValues(m.serviceName, collection, operation).Observe(duration.Seconds())
}

// RecordOrderCreated counts a new replenishment order.
func (m *Metrics) RecordOrderCreated(storeID string) {
	m.OrdersCreated.WithLabelValues(m.serviceName, storeID).Inc()
}

// RecordTransition counts one lifecycle transition attempt.
func (m *Metrics) RecordTransition(stage, outcome, trigger string) {
	m.StageTransitions.WithLabelValues(m.serviceName, stage, outcome, trigger).Inc()
}

// RecordReservation counts a reservation attempt; result is reserved,
// insufficient or error.
func (m *Metrics) RecordReservation(result, warehouseID string, units int) {
	m.StockReservations.WithLabelValues(m.serviceName, result).Inc()
	if result == "reserved" && units > 0 {
		m.ReservedUnits.WithLabelValues(m.serviceName, warehouseID).Add(float64(units))
	}
}

// RecordReceipt counts units landed in store stock.
func (m *Metrics) RecordReceipt(storeID string, units int) {
	if units > 0 {
		m.ReceivedUnits.WithLabelValues(m.serviceName, storeID).Add(float64(units))
	}
}

// RecordCompensation counts a reverted stock movement.
func (m *Metrics) RecordCompensation(kind string, success bool) {
	m.Compensations.WithLabelValues(m.serviceName, kind, statusLabel(success)).Inc()
}

// RecordPublishFailure counts an outbound event the gateway refused.
func (m *Metrics) RecordPublishFailure(eventType string) {
	m.EventPublishFailures.WithLabelValues(m.serviceName, eventType).Inc()
}

// RecordDuplicateEvent counts an inbound event skipped as already processed.
func (m *Metrics) RecordDuplicateEvent(topic string) {
	m.DuplicateEventsDropped.WithLabelValues(m.serviceName, topic).Inc()
}

// SetOutboxPending records the size of the latest unpublished batch.
func (m *Metrics) SetOutboxPending(count int) {
	m.OutboxPending.Set(float64(count))
}

// RecordOutboxPublish records one relay attempt.
func (m *Metrics) RecordOutboxPublish(eventType string, success bool, duration time.Duration) {
	m.OutboxPublished.WithLabelValues(m.serviceName, eventType, statusLabel(success)).Inc()
	m.OutboxPublishDuration.WithLabelValues(m.serviceName, eventType).Observe(duration.Seconds())
}

// SetCircuitBreakerState records a breaker state (0=closed, 1=half-open, 2=open).
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}
