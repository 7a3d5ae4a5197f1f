package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type correlationKey struct{}

// ContextWithCorrelationID makes events created from ctx inherit correlationID.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationKey{}, correlationID)
}

// CorrelationIDFromContext returns the correlation id stored by ContextWithCorrelationID.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(correlationKey{}).(string); ok {
		return v
	}
	return ""
}

// EventFactory creates CloudEvents stamped with one source.
type EventFactory struct {
	source string
	now    func() time.Time
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source, now: time.Now}
}

// Source returns the source attribute the factory stamps.
func (f *EventFactory) Source() string {
	return f.source
}

// CreateEvent creates a new CloudEvent with the given parameters
func (f *EventFactory) CreateEvent(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
) *CloudEvent {
	return &CloudEvent{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            f.now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		Extensions:      make(map[string]interface{}),
		CorrelationID:   CorrelationIDFromContext(ctx),
	}
}

// CreateOrderEvent creates an event scoped to one replenishment order.
// The order id doubles as the subject so all events of an order share a
// partition key.
func (f *EventFactory) CreateOrderEvent(
	ctx context.Context,
	eventType string,
	orderID string,
	storeID string,
	data interface{},
) *CloudEvent {
	event := f.CreateEvent(ctx, eventType, orderID, data)
	event.OrderID = orderID
	event.StoreID = storeID
	return event
}
