package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/replenishment-service/internal/domain"
	"github.com/wms-platform/replenishment-service/pkg/cloudevents"
	"github.com/wms-platform/replenishment-service/pkg/contracts/asyncapi"
	"github.com/wms-platform/replenishment-service/pkg/idempotency"
	"github.com/wms-platform/replenishment-service/pkg/kafka"
	"github.com/wms-platform/replenishment-service/pkg/logging"
	"github.com/wms-platform/replenishment-service/pkg/metrics"
	"github.com/wms-platform/replenishment-service/pkg/outbox"
)

const asyncAPISpec = "../../../api/asyncapi.yaml"

var sampleTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type recordingProducer struct {
	mu     sync.Mutex
	topics []string
	events []*cloudevents.CloudEvent
	err    error
}

func (p *recordingProducer) PublishEvent(_ context.Context, topic string, event *cloudevents.CloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

type fakeSubscriber struct {
	group    string
	handlers map[string]kafka.EventHandler
}

func newFakeSubscriber(group string) *fakeSubscriber {
	return &fakeSubscriber{group: group, handlers: make(map[string]kafka.EventHandler)}
}

func (s *fakeSubscriber) GroupID() string { return s.group }

func (s *fakeSubscriber) SubscribeAll(topic string, handler kafka.EventHandler) {
	s.handlers[topic] = handler
}

// savingRepo only implements Save; the relay side of the outbox is not used here.
type savingRepo struct {
	outbox.Repository
	saved []*outbox.OutboxEvent
	err   error
}

func (r *savingRepo) Save(_ context.Context, event *outbox.OutboxEvent) error {
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, event)
	return nil
}

func sampleEvents() []domain.DomainEvent {
	return []domain.DomainEvent{
		&domain.AlertRaisedEvent{OrderID: "REP-1", StoreID: "S1", ProductID: "P1", RequestedQuantity: 10, RaisedAt: sampleTime},
		&domain.TransferOrderCreatedEvent{OrderID: "REP-1", TransferOrderID: "TO-1", ProductID: "P1", StoreID: "S1", WarehouseID: "WH1", Quantity: 10, CreatedAt: sampleTime},
		&domain.ShipmentRecordedEvent{OrderID: "REP-1", TrackingNumber: "TRK-1a2b3c4d", Carrier: "UPS", ShippedAt: sampleTime},
		&domain.ReceiptRecordedEvent{OrderID: "REP-1", StoreID: "S1", ProductID: "P1", Quantity: 10, ReceivedAt: sampleTime},
	}
}

func newTestGateway(producer kafka.Publisher, sub Subscriber) *KafkaGateway {
	return NewKafkaGateway(
		producer,
		sub,
		cloudevents.NewEventFactory("/replenishment-service"),
		idempotency.NewMemoryMessageRepository(),
		logging.NewNop(),
		metrics.New(metrics.DefaultConfig("test")),
	)
}

func TestTopicFor(t *testing.T) {
	topic, err := TopicFor(domain.AlertRaisedEventType)
	require.NoError(t, err)
	assert.Equal(t, kafka.Topics.LowStockAlerts, topic)

	topic, err = TopicFor(domain.ReceiptRecordedEventType)
	require.NoError(t, err)
	assert.Equal(t, kafka.Topics.Receipts, topic)

	_, err = TopicFor("replenishment.unknown")
	assert.Error(t, err)
}

func TestEncode_KeysByOrderID(t *testing.T) {
	factory := cloudevents.NewEventFactory("/replenishment-service")
	ctx := cloudevents.ContextWithCorrelationID(context.Background(), "corr-1")

	topic, ce, err := Encode(ctx, factory, sampleEvents()[1])
	require.NoError(t, err)

	assert.Equal(t, kafka.Topics.TransferOrders, topic)
	assert.Equal(t, domain.TransferOrderCreatedEventType, ce.Type)
	assert.Equal(t, "REP-1", ce.Subject)
	assert.Equal(t, "REP-1", ce.OrderID)
	assert.Equal(t, "S1", ce.StoreID)
	assert.Equal(t, "corr-1", ce.CorrelationID)
	assert.NoError(t, ce.Validate())
}

func TestDecode_AlertFromWire(t *testing.T) {
	ce := &cloudevents.CloudEvent{
		SpecVersion: cloudevents.SpecVersion,
		ID:          "evt-1",
		Type:        domain.AlertRaisedEventType,
		Source:      "/store-systems",
		Data: map[string]interface{}{
			"orderId":           "REP-9",
			"storeId":           "S2",
			"productId":         "P7",
			"requestedQuantity": 4,
			"raisedAt":          sampleTime.Format(time.RFC3339),
		},
	}

	event, err := Decode(ce)
	require.NoError(t, err)

	alert, ok := event.(*domain.AlertRaisedEvent)
	require.True(t, ok)
	assert.Equal(t, "REP-9", alert.OrderID)
	assert.Equal(t, 4, alert.RequestedQuantity)
	assert.True(t, alert.RaisedAt.Equal(sampleTime))

	_, err = Decode(&cloudevents.CloudEvent{ID: "evt-2", Type: "something.else", Data: map[string]interface{}{}})
	assert.Error(t, err)
}

func TestEncode_MatchesAsyncAPIContract(t *testing.T) {
	validator, err := asyncapi.NewEventValidator(asyncAPISpec)
	require.NoError(t, err)

	factory := cloudevents.NewEventFactory("/replenishment-service")
	for _, event := range sampleEvents() {
		t.Run(event.EventType(), func(t *testing.T) {
			topic, ce, err := Encode(context.Background(), factory, event)
			require.NoError(t, err)

			assert.NoError(t, validator.ValidateEvent(ce))

			channel, ok := validator.Channel(ce.Type)
			require.True(t, ok)
			assert.Equal(t, channel, topic)
		})
	}
}

func TestKafkaGateway_Publish(t *testing.T) {
	producer := &recordingProducer{}
	gateway := newTestGateway(producer, nil)

	require.NoError(t, gateway.Publish(context.Background(), sampleEvents()[2]))

	require.Len(t, producer.events, 1)
	assert.Equal(t, kafka.Topics.Shipments, producer.topics[0])
	assert.Equal(t, domain.ShipmentRecordedEventType, producer.events[0].Type)
}

func TestKafkaGateway_PublishFailure(t *testing.T) {
	producer := &recordingProducer{err: errors.New("circuit breaker is open")}
	gateway := newTestGateway(producer, nil)

	err := gateway.Publish(context.Background(), sampleEvents()[0])
	assert.Error(t, err)
	assert.Contains(t, err.Error(), domain.AlertRaisedEventType)
}

func TestKafkaGateway_SubscribeDeduplicates(t *testing.T) {
	sub := newFakeSubscriber("replenishment-lowstock-group")
	gateway := newTestGateway(&recordingProducer{}, sub)

	var received []domain.DomainEvent
	err := gateway.Subscribe("replenishment-lowstock-group", []string{kafka.Topics.LowStockAlerts},
		func(_ context.Context, event domain.DomainEvent) error {
			received = append(received, event)
			return nil
		})
	require.NoError(t, err)

	handler := sub.handlers[kafka.Topics.LowStockAlerts]
	require.NotNil(t, handler)

	_, ce, err := Encode(context.Background(), cloudevents.NewEventFactory("/store-systems"), sampleEvents()[0])
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), ce))
	require.NoError(t, handler(context.Background(), ce))

	assert.Len(t, received, 1)
}

func TestKafkaGateway_SubscribeHandlerErrorIsRedelivered(t *testing.T) {
	sub := newFakeSubscriber("replenishment-lowstock-group")
	gateway := newTestGateway(&recordingProducer{}, sub)

	calls := 0
	err := gateway.Subscribe("replenishment-lowstock-group", []string{kafka.Topics.LowStockAlerts},
		func(context.Context, domain.DomainEvent) error {
			calls++
			if calls == 1 {
				return errors.New("order ledger unavailable")
			}
			return nil
		})
	require.NoError(t, err)

	handler := sub.handlers[kafka.Topics.LowStockAlerts]
	_, ce, err := Encode(context.Background(), cloudevents.NewEventFactory("/store-systems"), sampleEvents()[0])
	require.NoError(t, err)

	assert.Error(t, handler(context.Background(), ce))
	assert.NoError(t, handler(context.Background(), ce))
	assert.Equal(t, 2, calls)
}

func TestKafkaGateway_SubscribeAcksUndecodable(t *testing.T) {
	sub := newFakeSubscriber("replenishment-lowstock-group")
	gateway := newTestGateway(&recordingProducer{}, sub)

	called := false
	require.NoError(t, gateway.Subscribe("replenishment-lowstock-group", []string{kafka.Topics.LowStockAlerts},
		func(context.Context, domain.DomainEvent) error {
			called = true
			return nil
		}))

	ce := &cloudevents.CloudEvent{
		SpecVersion: cloudevents.SpecVersion,
		ID:          "evt-bad",
		Type:        "replenishment.unknown",
		Source:      "/store-systems",
		Data:        map[string]interface{}{"x": 1},
	}
	assert.NoError(t, sub.handlers[kafka.Topics.LowStockAlerts](context.Background(), ce))
	assert.False(t, called)
}

func TestKafkaGateway_SubscribeRequiresMatchingGroup(t *testing.T) {
	gateway := newTestGateway(&recordingProducer{}, newFakeSubscriber("replenishment-lowstock-group"))
	err := gateway.Subscribe("other-group", []string{kafka.Topics.LowStockAlerts}, func(context.Context, domain.DomainEvent) error { return nil })
	assert.Error(t, err)

	publishOnly := newTestGateway(&recordingProducer{}, nil)
	err = publishOnly.Subscribe("replenishment-lowstock-group", []string{kafka.Topics.LowStockAlerts}, func(context.Context, domain.DomainEvent) error { return nil })
	assert.Error(t, err)
}

func TestOutboxGateway_PublishStoresEnvelope(t *testing.T) {
	repo := &savingRepo{}
	gateway := NewOutboxGateway(repo, cloudevents.NewEventFactory("/replenishment-service"), nil, logging.NewNop())

	require.NoError(t, gateway.Publish(context.Background(), sampleEvents()[3]))

	require.Len(t, repo.saved, 1)
	entry := repo.saved[0]
	assert.Equal(t, kafka.Topics.Receipts, entry.Topic)
	assert.Equal(t, "REP-1", entry.AggregateID)
	assert.Equal(t, domain.ReceiptRecordedEventType, entry.EventType)
	assert.False(t, entry.IsPublished())

	ce, err := entry.ToCloudEvent()
	require.NoError(t, err)
	event, err := Decode(ce)
	require.NoError(t, err)
	assert.Equal(t, 10, event.(*domain.ReceiptRecordedEvent).Quantity)
}

func TestOutboxGateway_SaveFailure(t *testing.T) {
	repo := &savingRepo{err: errors.New("mongo down")}
	gateway := NewOutboxGateway(repo, cloudevents.NewEventFactory("/replenishment-service"), nil, logging.NewNop())

	assert.Error(t, gateway.Publish(context.Background(), sampleEvents()[0]))
}

func TestOutboxGateway_SubscribeDelegates(t *testing.T) {
	sub := newFakeSubscriber("replenishment-lowstock-group")
	inbound := newTestGateway(&recordingProducer{}, sub)
	gateway := NewOutboxGateway(&savingRepo{}, cloudevents.NewEventFactory("/replenishment-service"), inbound, logging.NewNop())

	require.NoError(t, gateway.Subscribe("replenishment-lowstock-group", []string{kafka.Topics.LowStockAlerts},
		func(context.Context, domain.DomainEvent) error { return nil }))
	assert.Contains(t, sub.handlers, kafka.Topics.LowStockAlerts)

	unbound := NewOutboxGateway(&savingRepo{}, cloudevents.NewEventFactory("/replenishment-service"), nil, logging.NewNop())
	assert.Error(t, unbound.Subscribe("g", nil, nil))
}
