package messaging

import (
	"context"
	"fmt"

	"github.com/wms-platform/replenishment-service/internal/domain"
	"github.com/wms-platform/replenishment-service/pkg/cloudevents"
	"github.com/wms-platform/replenishment-service/pkg/kafka"
)

// TopicFor returns the topic an event type is published on.
func TopicFor(eventType string) (string, error) {
	switch eventType {
	case domain.AlertRaisedEventType:
		return kafka.Topics.LowStockAlerts, nil
	case domain.TransferOrderCreatedEventType:
		return kafka.Topics.TransferOrders, nil
	case domain.ShipmentRecordedEventType:
		return kafka.Topics.Shipments, nil
	case domain.ReceiptRecordedEventType:
		return kafka.Topics.Receipts, nil
	default:
		return "", fmt.Errorf("no topic for event type %q", eventType)
	}
}

// Encode wraps a domain event in a CloudEvent keyed by its order id.
func Encode(ctx context.Context, factory *cloudevents.EventFactory, event domain.DomainEvent) (string, *cloudevents.CloudEvent, error) {
	topic, err := TopicFor(event.EventType())
	if err != nil {
		return "", nil, err
	}

	var storeID string
	switch e := event.(type) {
	case *domain.AlertRaisedEvent:
		storeID = e.StoreID
	case *domain.TransferOrderCreatedEvent:
		storeID = e.StoreID
	case *domain.ReceiptRecordedEvent:
		storeID = e.StoreID
	}

	ce := factory.CreateOrderEvent(ctx, event.EventType(), event.AggregateID(), storeID, event)
	return topic, ce, nil
}

// Decode turns an inbound CloudEvent back into its domain event.
func Decode(ce *cloudevents.CloudEvent) (domain.DomainEvent, error) {
	var event domain.DomainEvent
	switch ce.Type {
	case domain.AlertRaisedEventType:
		event = &domain.AlertRaisedEvent{}
	case domain.TransferOrderCreatedEventType:
		event = &domain.TransferOrderCreatedEvent{}
	case domain.ShipmentRecordedEventType:
		event = &domain.ShipmentRecordedEvent{}
	case domain.ReceiptRecordedEventType:
		event = &domain.ReceiptRecordedEvent{}
	default:
		return nil, fmt.Errorf("unknown event type %q", ce.Type)
	}

	if err := ce.DecodeData(event); err != nil {
		return nil, err
	}
	return event, nil
}
