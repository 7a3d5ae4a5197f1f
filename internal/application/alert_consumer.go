package application

import (
	"context"
	"fmt"

	"github.com/wms-platform/replenishment-service/internal/domain"
	"github.com/wms-platform/replenishment-service/pkg/errors"
	"github.com/wms-platform/replenishment-service/pkg/logging"
)

// AlertConsumer turns inbound low-stock alerts into allocations.
type AlertConsumer struct {
	orchestrator *LifecycleOrchestrator
	logger       *logging.Logger
}

func NewAlertConsumer(orchestrator *LifecycleOrchestrator, logger *logging.Logger) *AlertConsumer {
	return &AlertConsumer{
		orchestrator: orchestrator,
		logger:       logger.WithComponent("alert_consumer"),
	}
}

// Handle allocates stock for the order named by an alert. Domain outcomes
// (not found, illegal transition, insufficient stock, bad payload) return
// nil so the message is acked. Dependency failures return an error and the
// message is redelivered.
func (c *AlertConsumer) Handle(ctx context.Context, event domain.DomainEvent) error {
	alert, ok := event.(*domain.AlertRaisedEvent)
	if !ok {
		c.logger.WithContext(ctx).Warn("Ignoring unexpected event type", "eventType", event.EventType())
		return nil
	}

	log := c.logger.WithContext(ctx).WithOrderID(alert.OrderID)

	result, err := c.orchestrator.Allocate(ctx, AllocateCommand{
		OrderID:  alert.OrderID,
		Quantity: alert.RequestedQuantity,
		Trigger:  domain.TriggerEvent,
	})
	if err != nil {
		if IsDependencyFailure(err) {
			log.WithError(err).Error("Allocation failed, alert will be redelivered")
			return fmt.Errorf("allocate %s: %w", alert.OrderID, err)
		}
		if errors.HasCode(err, errors.CodeNotFound) {
			log.Warn("Alert refers to an unknown order, dropping")
		} else {
			log.WithError(err).Warn("Alert rejected, dropping")
		}
		return nil
	}

	switch result.Outcome {
	case OutcomeTransitioned:
		log.Info("Alert allocated",
			"transferOrderId", result.Order.TransferOrder.OrderID,
			"warehouseId", result.Order.TransferOrder.WarehouseID,
			"quantity", result.Order.TransferOrder.Quantity,
		)
	case OutcomeRedirected:
		log.Info("Alert parked awaiting stock")
	case OutcomeRejected:
		log.Info("Alert already handled by another trigger", "reason", result.Err.Error())
	}
	return nil
}
