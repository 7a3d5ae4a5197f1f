package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/replenishment-service/internal/domain"
	"github.com/wms-platform/replenishment-service/pkg/logging"
)

func alertFor(order *domain.ReplenishmentOrder, requested int) *domain.AlertRaisedEvent {
	return &domain.AlertRaisedEvent{
		OrderID:           order.OrderID,
		StoreID:           order.StoreID,
		ProductID:         order.ProductID,
		RequestedQuantity: requested,
		RaisedAt:          time.Now().UTC(),
	}
}

func TestAlertConsumer_AllocatesOrder(t *testing.T) {
	h := newHarness(t)
	h.restock(t, "WH1", "P1", 10)
	order := h.create(t, 4)

	consumer := NewAlertConsumer(h.orchestrator, logging.NewNop())
	require.NoError(t, h.events.Subscribe("replenishment-lowstock-group", []string{"replenishment.low-stock-alerts"}, consumer.Handle))

	require.NoError(t, h.events.Deliver(context.Background(), alertFor(order, 0)))

	stored := h.stored(t, order.OrderID)
	assert.Equal(t, domain.StatusPendingPicking, stored.Status)
	assert.Equal(t, 4, stored.TransferOrder.Quantity)
	assert.Equal(t, domain.TriggerEvent, stored.History[1].Metadata.Trigger)
	assert.Equal(t, 6, h.warehouseQty(t, "WH1", "P1"))
}

func TestAlertConsumer_DuplicateAlertIsAcked(t *testing.T) {
	h := newHarness(t)
	h.restock(t, "WH1", "P1", 10)
	order := h.create(t, 4)
	consumer := NewAlertConsumer(h.orchestrator, logging.NewNop())

	require.NoError(t, consumer.Handle(context.Background(), alertFor(order, 4)))
	require.NoError(t, consumer.Handle(context.Background(), alertFor(order, 4)))

	assert.Len(t, h.stored(t, order.OrderID).History, 2)
	assert.Equal(t, 6, h.warehouseQty(t, "WH1", "P1"))
}

func TestAlertConsumer_UnknownOrderIsAcked(t *testing.T) {
	h := newHarness(t)
	consumer := NewAlertConsumer(h.orchestrator, logging.NewNop())

	err := consumer.Handle(context.Background(), &domain.AlertRaisedEvent{OrderID: "REP-unknown", RequestedQuantity: 3})
	assert.NoError(t, err)
}

func TestAlertConsumer_InsufficientStockIsAcked(t *testing.T) {
	h := newHarness(t)
	order := h.create(t, 4)
	consumer := NewAlertConsumer(h.orchestrator, logging.NewNop())

	require.NoError(t, consumer.Handle(context.Background(), alertFor(order, 4)))
	assert.Equal(t, domain.StatusAwaitingStock, h.stored(t, order.OrderID).Status)
}

func TestAlertConsumer_DependencyFailureIsRedelivered(t *testing.T) {
	h := newHarness(t)
	h.restock(t, "WH1", "P1", 10)
	order := h.create(t, 4)
	consumer := NewAlertConsumer(h.orchestrator, logging.NewNop())

	h.orders.CommitErr = fmt.Errorf("%w: connection reset", domain.ErrUnavailable)
	err := consumer.Handle(context.Background(), alertFor(order, 4))
	require.Error(t, err)
	assert.Equal(t, 10, h.warehouseQty(t, "WH1", "P1"))

	h.orders.CommitErr = nil
	require.NoError(t, consumer.Handle(context.Background(), alertFor(order, 4)))
	assert.Equal(t, domain.StatusPendingPicking, h.stored(t, order.OrderID).Status)
}

func TestAlertConsumer_IgnoresOtherEvents(t *testing.T) {
	h := newHarness(t)
	consumer := NewAlertConsumer(h.orchestrator, logging.NewNop())

	assert.NoError(t, consumer.Handle(context.Background(), &domain.ShipmentRecordedEvent{OrderID: "REP-1"}))
}
