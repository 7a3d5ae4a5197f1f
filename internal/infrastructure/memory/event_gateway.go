package memory

import (
	"context"
	"sync"

	"github.com/wms-platform/replenishment-service/internal/domain"
)

// EventGateway records published events and lets tests deliver inbound
// ones to subscribed handlers.
type EventGateway struct {
	mu       sync.Mutex
	events   []domain.DomainEvent
	handlers []domain.InboundHandler

	// PublishErr, when set, is returned from every Publish.
	PublishErr error
}

func NewEventGateway() *EventGateway {
	return &EventGateway{}
}

func (g *EventGateway) Publish(ctx context.Context, event domain.DomainEvent) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.PublishErr != nil {
		return g.PublishErr
	}
	g.events = append(g.events, event)
	return nil
}

func (g *EventGateway) Subscribe(groupID string, topics []string, handler domain.InboundHandler) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers = append(g.handlers, handler)
	return nil
}

// Deliver hands event to every subscribed handler and returns the first error.
func (g *EventGateway) Deliver(ctx context.Context, event domain.DomainEvent) error {
	g.mu.Lock()
	handlers := append([]domain.InboundHandler(nil), g.handlers...)
	g.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Published returns a copy of every event published so far.
func (g *EventGateway) Published() []domain.DomainEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.DomainEvent(nil), g.events...)
}

// PublishedOfType filters Published by event type.
func (g *EventGateway) PublishedOfType(eventType string) []domain.DomainEvent {
	var out []domain.DomainEvent
	for _, e := range g.Published() {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}
