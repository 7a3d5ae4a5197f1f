package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestOrder(t *testing.T, requested int) *ReplenishmentOrder {
	t.Helper()
	order, err := NewReplenishmentOrder("REP-0000aaaa-0000", "S1", "P1", requested, TriggerAPI, testNow)
	require.NoError(t, err)
	return order
}

func testTransfer(quantity int) *TransferOrder {
	return &TransferOrder{OrderID: "TO-1", Quantity: quantity, WarehouseID: "WH1", CreatedAt: testNow}
}

func TestNewReplenishmentOrder(t *testing.T) {
	tests := []struct {
		name      string
		storeID   string
		productID string
		requested int
		wantField string
	}{
		{name: "valid", storeID: "S1", productID: "P1", requested: 10},
		{name: "zero quantity allowed", storeID: "S1", productID: "P1", requested: 0},
		{name: "missing store", productID: "P1", requested: 1, wantField: "storeId"},
		{name: "missing product", storeID: "S1", requested: 1, wantField: "productId"},
		{name: "negative quantity", storeID: "S1", productID: "P1", requested: -1, wantField: "requestedQuantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := NewReplenishmentOrder("REP-1", tt.storeID, tt.productID, tt.requested, TriggerAPI, testNow)
			if tt.wantField != "" {
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Equal(t, tt.wantField, vErr.Field)
				assert.Nil(t, order)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, StatusAlertRaised, order.Status)
			require.Len(t, order.History, 1)
			assert.Equal(t, StatusAlertRaised, order.History[0].Stage)
			assert.Equal(t, tt.requested, order.History[0].Metadata.Alert.RequestedQuantity)
			assert.Nil(t, order.TransferOrder)
			assert.NoError(t, order.CheckInvariants())
		})
	}
}

func TestReplenishmentOrder_HappyPath(t *testing.T) {
	order := newTestOrder(t, 10)

	tr, err := order.Allocate(testTransfer(10), TriggerAPI, testNow.Add(time.Second))
	require.NoError(t, err)
	require.NoError(t, order.Apply(tr))
	require.NoError(t, order.CheckInvariants())

	tr, err = order.Ship(&Shipment{TrackingNumber: "TRK-1a2b3c4d", Carrier: "DefaultCarrier", ShippedAt: testNow}, TriggerAPI, testNow.Add(2*time.Second))
	require.NoError(t, err)
	require.NoError(t, order.Apply(tr))
	require.NoError(t, order.CheckInvariants())

	tr, err = order.Receive(order.ReceiveQuantity(), TriggerAPI, testNow.Add(3*time.Second))
	require.NoError(t, err)
	require.NoError(t, order.Apply(tr))
	require.NoError(t, order.CheckInvariants())

	stages := make([]Status, 0, len(order.History))
	for _, h := range order.History {
		stages = append(stages, h.Stage)
	}
	assert.Equal(t, []Status{StatusAlertRaised, StatusPendingPicking, StatusInTransit, StatusCompleted}, stages)
	assert.Equal(t, StatusCompleted, order.Status)
	assert.Equal(t, int64(3), order.Version)
	assert.Equal(t, 10, order.History[3].Metadata.Receipt.Quantity)
	assert.Equal(t, "TRK-1a2b3c4d", order.Shipment.TrackingNumber)
}

func TestReplenishmentOrder_AwaitStockThenAllocate(t *testing.T) {
	order := newTestOrder(t, 5)

	tr, err := order.AwaitStock(5, "", TriggerEvent, testNow)
	require.NoError(t, err)
	require.NoError(t, order.Apply(tr))
	assert.Equal(t, StatusAwaitingStock, order.Status)
	assert.Nil(t, order.TransferOrder)
	require.NoError(t, order.CheckInvariants())

	_, err = order.AwaitStock(5, "", TriggerSweeper, testNow)
	assert.True(t, IsIllegalTransition(err), "AWAITING_STOCK does not loop on itself")

	tr, err = order.Allocate(testTransfer(5), TriggerSweeper, testNow)
	require.NoError(t, err)
	require.NoError(t, order.Apply(tr))
	assert.Equal(t, StatusPendingPicking, order.Status)
	assert.Len(t, order.History, 3)
}

func TestReplenishmentOrder_IllegalTransitionLeavesOrderUntouched(t *testing.T) {
	order := newTestOrder(t, 10)

	_, err := order.Ship(&Shipment{TrackingNumber: "TRK-x"}, TriggerAPI, testNow)
	var illegal *IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, StatusAlertRaised, illegal.From)
	assert.Equal(t, StatusInTransit, illegal.To)

	assert.Len(t, order.History, 1)
	assert.Nil(t, order.Shipment)
	assert.Equal(t, int64(0), order.Version)
}

func TestReplenishmentOrder_ApplyRejectsStaleTransition(t *testing.T) {
	order := newTestOrder(t, 10)
	tr, err := order.Allocate(testTransfer(10), TriggerAPI, testNow)
	require.NoError(t, err)

	require.NoError(t, order.Apply(tr))
	err = order.Apply(tr)
	assert.True(t, IsIllegalTransition(err))
	assert.Len(t, order.History, 2)
}

func TestReplenishmentOrder_UpdatedAtNeverMovesBack(t *testing.T) {
	order := newTestOrder(t, 10)

	tr, err := order.Allocate(testTransfer(10), TriggerAPI, testNow.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, order.Apply(tr))

	assert.Equal(t, testNow, order.UpdatedAt)
	assert.Equal(t, testNow, order.History[1].Timestamp)
}

func TestReplenishmentOrder_ReceiveQuantity(t *testing.T) {
	order := newTestOrder(t, 12)
	assert.Equal(t, 12, order.ReceiveQuantity())

	order.TransferOrder = testTransfer(7)
	assert.Equal(t, 7, order.ReceiveQuantity())
}

func TestReplenishmentOrder_CheckInvariants(t *testing.T) {
	order := newTestOrder(t, 10)
	order.Status = StatusInTransit
	assert.Error(t, order.CheckInvariants())

	order = newTestOrder(t, 10)
	order.TransferOrder = testTransfer(10)
	assert.Error(t, order.CheckInvariants())

	order = newTestOrder(t, 10)
	order.History = nil
	assert.Error(t, order.CheckInvariants())
}

func TestPendingTransition_Active(t *testing.T) {
	var lease *PendingTransition
	assert.False(t, lease.Active(testNow, time.Minute))

	lease = &PendingTransition{Stage: StatusPendingPicking, AcquiredAt: testNow}
	assert.True(t, lease.Active(testNow.Add(30*time.Second), time.Minute))
	assert.False(t, lease.Active(testNow.Add(time.Minute), time.Minute))
}

func TestReplenishmentOrder_Clone(t *testing.T) {
	order := newTestOrder(t, 10)
	order.TransferOrder = testTransfer(10)

	clone := order.Clone()
	clone.TransferOrder.Quantity = 1
	clone.History[0].Stage = StatusCompleted

	assert.Equal(t, 10, order.TransferOrder.Quantity)
	assert.Equal(t, StatusAlertRaised, order.History[0].Stage)
}

func TestSubRecordsShareTransitionTime(t *testing.T) {
	order := newTestOrder(t, 5)
	// The clock stepped back between creation and the next transitions.
	skewed := testNow.Add(-time.Minute)

	alloc, err := order.Allocate(testTransfer(5), TriggerAPI, skewed)
	require.NoError(t, err)
	assert.Equal(t, testNow, alloc.At)
	assert.Equal(t, alloc.At, alloc.TransferOrder.CreatedAt)
	require.NoError(t, order.Apply(alloc))

	ship, err := order.Ship(&Shipment{TrackingNumber: "TRK-1", Carrier: "DefaultCarrier"}, TriggerAPI, skewed)
	require.NoError(t, err)
	assert.Equal(t, testNow, ship.At)
	assert.Equal(t, ship.At, ship.Shipment.ShippedAt)
	require.NoError(t, order.Apply(ship))

	assert.Equal(t, order.History[1].Timestamp, order.TransferOrder.CreatedAt)
	assert.Equal(t, order.History[2].Timestamp, order.Shipment.ShippedAt)
}
