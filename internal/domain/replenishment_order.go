package domain

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Trigger identifies which entry point drove a mutation.
type Trigger string

const (
	TriggerAPI     Trigger = "api"
	TriggerEvent   Trigger = "event"
	TriggerSweeper Trigger = "sweeper"
)

// ReplenishmentOrder is the ledger record of one store's restock request
// for one product.
type ReplenishmentOrder struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	OrderID           string             `bson:"orderId" json:"orderId"`
	StoreID           string             `bson:"storeId" json:"storeId"`
	ProductID         string             `bson:"productId" json:"productId"`
	RequestedQuantity int                `bson:"requestedQuantity" json:"requestedQuantity"`
	Status            Status             `bson:"status" json:"status"`
	History           []HistoryEntry     `bson:"history" json:"history"`
	TransferOrder     *TransferOrder     `bson:"transferOrder,omitempty" json:"transferOrder,omitempty"`
	Shipment          *Shipment          `bson:"shipment,omitempty" json:"shipment,omitempty"`
	PendingTransition *PendingTransition `bson:"pendingTransition,omitempty" json:"pendingTransition,omitempty"`
	Version           int64              `bson:"version" json:"version"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// TransferOrder is the warehouse-to-store shipment request created at allocation.
type TransferOrder struct {
	OrderID     string    `bson:"orderId" json:"orderId"`
	Quantity    int       `bson:"quantity" json:"quantity"`
	WarehouseID string    `bson:"warehouseId" json:"warehouseId"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
}

// Shipment is recorded when the transfer leaves the warehouse.
type Shipment struct {
	TrackingNumber string    `bson:"trackingNumber" json:"trackingNumber"`
	Carrier        string    `bson:"carrier" json:"carrier"`
	ShippedAt      time.Time `bson:"shippedAt" json:"shippedAt"`
}

// PendingTransition is the lease a trigger holds while it moves stock for
// the order. It is cleared by the commit that follows.
type PendingTransition struct {
	Stage      Status    `bson:"stage" json:"stage"`
	AcquiredAt time.Time `bson:"acquiredAt" json:"acquiredAt"`
}

// Active reports whether the lease is still held at now.
func (p *PendingTransition) Active(now time.Time, ttl time.Duration) bool {
	return p != nil && now.Before(p.AcquiredAt.Add(ttl))
}

// HistoryEntry is one append-only record per status mutation.
type HistoryEntry struct {
	Stage     Status        `bson:"stage" json:"stage"`
	Timestamp time.Time     `bson:"timestamp" json:"timestamp"`
	Metadata  StageMetadata `bson:"metadata" json:"metadata"`
}

// StageMetadata carries exactly one stage-specific variant alongside the
// trigger that caused the entry.
type StageMetadata struct {
	Trigger       Trigger                `bson:"trigger" json:"trigger"`
	Alert         *AlertMetadata         `bson:"alert,omitempty" json:"alert,omitempty"`
	AwaitingStock *AwaitingStockMetadata `bson:"awaitingStock,omitempty" json:"awaitingStock,omitempty"`
	TransferOrder *TransferOrderMetadata `bson:"transferOrder,omitempty" json:"transferOrder,omitempty"`
	Shipment      *ShipmentMetadata      `bson:"shipment,omitempty" json:"shipment,omitempty"`
	Receipt       *ReceiptMetadata       `bson:"receipt,omitempty" json:"receipt,omitempty"`
}

type AlertMetadata struct {
	RequestedQuantity int `bson:"requestedQuantity" json:"requestedQuantity"`
}

type AwaitingStockMetadata struct {
	Reason            string `bson:"reason" json:"reason"`
	RequestedQuantity int    `bson:"requestedQuantity" json:"requestedQuantity"`
	WarehouseID       string `bson:"warehouseId,omitempty" json:"warehouseId,omitempty"`
}

type TransferOrderMetadata struct {
	TransferOrderID string `bson:"transferOrderId" json:"transferOrderId"`
	Quantity        int    `bson:"quantity" json:"quantity"`
	WarehouseID     string `bson:"warehouseId" json:"warehouseId"`
}

type ShipmentMetadata struct {
	TrackingNumber string `bson:"trackingNumber" json:"trackingNumber"`
	Carrier        string `bson:"carrier" json:"carrier"`
}

type ReceiptMetadata struct {
	Quantity int `bson:"quantity" json:"quantity"`
}

// NewReplenishmentOrder creates an order at ALERT_RAISED with its creation
// history entry.
func NewReplenishmentOrder(orderID, storeID, productID string, requestedQuantity int, trigger Trigger, now time.Time) (*ReplenishmentOrder, error) {
	if storeID == "" {
		return nil, &ValidationError{Field: "storeId", Message: "is required"}
	}
	if productID == "" {
		return nil, &ValidationError{Field: "productId", Message: "is required"}
	}
	if requestedQuantity < 0 {
		return nil, &ValidationError{Field: "requestedQuantity", Message: "must not be negative"}
	}

	return &ReplenishmentOrder{
		OrderID:           orderID,
		StoreID:           storeID,
		ProductID:         productID,
		RequestedQuantity: requestedQuantity,
		Status:            StatusAlertRaised,
		History: []HistoryEntry{{
			Stage:     StatusAlertRaised,
			Timestamp: now,
			Metadata: StageMetadata{
				Trigger: trigger,
				Alert:   &AlertMetadata{RequestedQuantity: requestedQuantity},
			},
		}},
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ReceiveQuantity is the reserved transfer quantity, falling back to the
// requested quantity when no transfer order exists.
func (o *ReplenishmentOrder) ReceiveQuantity() int {
	if o.TransferOrder != nil {
		return o.TransferOrder.Quantity
	}
	return o.RequestedQuantity
}

// Transition is a validated status mutation ready to be committed. It is
// built from the order state it was checked against.
type Transition struct {
	From          Status
	To            Status
	At            time.Time
	Metadata      StageMetadata
	TransferOrder *TransferOrder
	Shipment      *Shipment
}

// HistoryEntry returns the record the transition appends.
func (t Transition) HistoryEntry() HistoryEntry {
	return HistoryEntry{Stage: t.To, Timestamp: t.At, Metadata: t.Metadata}
}

func (o *ReplenishmentOrder) newTransition(to Status, trigger Trigger, now time.Time) (Transition, error) {
	if !CanTransition(o.Status, to) {
		return Transition{}, &IllegalTransitionError{From: o.Status, To: to}
	}
	// updatedAt never moves backwards, even if the clock does.
	if now.Before(o.UpdatedAt) {
		now = o.UpdatedAt
	}
	return Transition{
		From:     o.Status,
		To:       to,
		At:       now,
		Metadata: StageMetadata{Trigger: trigger},
	}, nil
}

// Allocate builds the move to PENDING_PICKING backed by transfer. The
// transfer is stamped with the transition time.
func (o *ReplenishmentOrder) Allocate(transfer *TransferOrder, trigger Trigger, now time.Time) (Transition, error) {
	t, err := o.newTransition(StatusPendingPicking, trigger, now)
	if err != nil {
		return t, err
	}
	transfer.CreatedAt = t.At
	t.TransferOrder = transfer
	t.Metadata.TransferOrder = &TransferOrderMetadata{
		TransferOrderID: transfer.OrderID,
		Quantity:        transfer.Quantity,
		WarehouseID:     transfer.WarehouseID,
	}
	return t, nil
}

// AwaitStock builds the redirect taken when a reservation is short.
func (o *ReplenishmentOrder) AwaitStock(requested int, warehouseID string, trigger Trigger, now time.Time) (Transition, error) {
	t, err := o.newTransition(StatusAwaitingStock, trigger, now)
	if err != nil {
		return t, err
	}
	t.Metadata.AwaitingStock = &AwaitingStockMetadata{
		Reason:            ErrInsufficientStock.Error(),
		RequestedQuantity: requested,
		WarehouseID:       warehouseID,
	}
	return t, nil
}

// Ship builds the move to IN_TRANSIT.
func (o *ReplenishmentOrder) Ship(shipment *Shipment, trigger Trigger, now time.Time) (Transition, error) {
	t, err := o.newTransition(StatusInTransit, trigger, now)
	if err != nil {
		return t, err
	}
	shipment.ShippedAt = t.At
	t.Shipment = shipment
	t.Metadata.Shipment = &ShipmentMetadata{
		TrackingNumber: shipment.TrackingNumber,
		Carrier:        shipment.Carrier,
	}
	return t, nil
}

// Receive builds the terminal move to COMPLETED.
func (o *ReplenishmentOrder) Receive(quantity int, trigger Trigger, now time.Time) (Transition, error) {
	t, err := o.newTransition(StatusCompleted, trigger, now)
	if err != nil {
		return t, err
	}
	t.Metadata.Receipt = &ReceiptMetadata{Quantity: quantity}
	return t, nil
}

// Apply mutates the in-memory order the same way a ledger commit does:
// status and sub-record set, one history entry appended, lease cleared,
// version bumped.
func (o *ReplenishmentOrder) Apply(t Transition) error {
	if o.Status != t.From {
		return &IllegalTransitionError{From: o.Status, To: t.To, Reason: fmt.Sprintf("transition was built from %s", t.From)}
	}
	if !CanTransition(o.Status, t.To) {
		return &IllegalTransitionError{From: o.Status, To: t.To}
	}

	o.Status = t.To
	o.History = append(o.History, t.HistoryEntry())
	if t.TransferOrder != nil {
		o.TransferOrder = t.TransferOrder
	}
	if t.Shipment != nil {
		o.Shipment = t.Shipment
	}
	if t.At.After(o.UpdatedAt) {
		o.UpdatedAt = t.At
	}
	o.PendingTransition = nil
	o.Version++
	return nil
}

// CheckInvariants verifies the ledger invariants on o.
func (o *ReplenishmentOrder) CheckInvariants() error {
	if len(o.History) == 0 {
		return fmt.Errorf("order %s has no history", o.OrderID)
	}
	if last := o.History[len(o.History)-1].Stage; last != o.Status {
		return fmt.Errorf("order %s status %s does not match last history stage %s", o.OrderID, o.Status, last)
	}

	needsTransfer := o.Status == StatusPendingPicking || o.Status == StatusInTransit || o.Status == StatusCompleted
	if needsTransfer != (o.TransferOrder != nil) {
		return fmt.Errorf("order %s in %s has transferOrder=%t", o.OrderID, o.Status, o.TransferOrder != nil)
	}

	for i := 1; i < len(o.History); i++ {
		if o.History[i].Timestamp.Before(o.History[i-1].Timestamp) {
			return fmt.Errorf("order %s history is out of order at entry %d", o.OrderID, i)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (o *ReplenishmentOrder) Clone() *ReplenishmentOrder {
	c := *o
	c.History = append([]HistoryEntry(nil), o.History...)
	if o.TransferOrder != nil {
		to := *o.TransferOrder
		c.TransferOrder = &to
	}
	if o.Shipment != nil {
		s := *o.Shipment
		c.Shipment = &s
	}
	if o.PendingTransition != nil {
		p := *o.PendingTransition
		c.PendingTransition = &p
	}
	return &c
}
