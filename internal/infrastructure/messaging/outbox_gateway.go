package messaging

import (
	"context"
	"fmt"

	"github.com/wms-platform/replenishment-service/internal/domain"
	"github.com/wms-platform/replenishment-service/pkg/cloudevents"
	"github.com/wms-platform/replenishment-service/pkg/logging"
	"github.com/wms-platform/replenishment-service/pkg/outbox"
)

// OutboxGateway parks outbound events in the outbox for the relay and
// delegates subscriptions to an inbound gateway.
type OutboxGateway struct {
	repo    outbox.Repository
	factory *cloudevents.EventFactory
	inbound domain.EventGateway
	logger  *logging.Logger
}

func NewOutboxGateway(repo outbox.Repository, factory *cloudevents.EventFactory, inbound domain.EventGateway, logger *logging.Logger) *OutboxGateway {
	return &OutboxGateway{
		repo:    repo,
		factory: factory,
		inbound: inbound,
		logger:  logger.WithComponent("outbox-gateway"),
	}
}

func (g *OutboxGateway) Publish(ctx context.Context, event domain.DomainEvent) error {
	topic, ce, err := Encode(ctx, g.factory, event)
	if err != nil {
		return err
	}

	entry, err := outbox.NewOutboxEvent(topic, ce)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", ce.Type, err)
	}
	if err := g.repo.Save(ctx, entry); err != nil {
		return fmt.Errorf("save %s to outbox: %w", ce.Type, err)
	}

	g.logger.WithContext(ctx).Debug("Event stored in outbox",
		"outboxId", entry.ID,
		"eventType", entry.EventType,
		"orderId", entry.AggregateID,
		"topic", topic,
	)
	return nil
}

func (g *OutboxGateway) Subscribe(groupID string, topics []string, handler domain.InboundHandler) error {
	if g.inbound == nil {
		return fmt.Errorf("outbox gateway has no inbound gateway")
	}
	return g.inbound.Subscribe(groupID, topics, handler)
}
