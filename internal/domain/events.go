package domain

import "time"

// Event types published and consumed by the replenishment service.
const (
	AlertRaisedEventType          = "replenishment.alert.raised"
	TransferOrderCreatedEventType = "replenishment.transfer-order.created"
	ShipmentRecordedEventType     = "replenishment.shipment.recorded"
	ReceiptRecordedEventType      = "replenishment.receipt.recorded"
)

// DomainEvent is the base interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
	AggregateID() string
}

// AlertRaisedEvent is published when a low-stock alert creates an order.
// The service also consumes it to drive automatic allocation.
type AlertRaisedEvent struct {
	OrderID           string    `json:"orderId"`
	StoreID           string    `json:"storeId"`
	ProductID         string    `json:"productId"`
	RequestedQuantity int       `json:"requestedQuantity"`
	RaisedAt          time.Time `json:"raisedAt"`
}

func (e *AlertRaisedEvent) EventType() string     { return AlertRaisedEventType }
func (e *AlertRaisedEvent) OccurredAt() time.Time { return e.RaisedAt }
func (e *AlertRaisedEvent) AggregateID() string   { return e.OrderID }

// TransferOrderCreatedEvent is published when warehouse stock is reserved.
type TransferOrderCreatedEvent struct {
	OrderID         string    `json:"orderId"`
	TransferOrderID string    `json:"transferOrderId"`
	ProductID       string    `json:"productId"`
	StoreID         string    `json:"storeId"`
	WarehouseID     string    `json:"warehouseId"`
	Quantity        int       `json:"quantity"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (e *TransferOrderCreatedEvent) EventType() string     { return TransferOrderCreatedEventType }
func (e *TransferOrderCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }
func (e *TransferOrderCreatedEvent) AggregateID() string   { return e.OrderID }

// ShipmentRecordedEvent is published when the order goes in transit.
type ShipmentRecordedEvent struct {
	OrderID        string    `json:"orderId"`
	TrackingNumber string    `json:"trackingNumber"`
	Carrier        string    `json:"carrier"`
	ShippedAt      time.Time `json:"shippedAt"`
}

func (e *ShipmentRecordedEvent) EventType() string     { return ShipmentRecordedEventType }
func (e *ShipmentRecordedEvent) OccurredAt() time.Time { return e.ShippedAt }
func (e *ShipmentRecordedEvent) AggregateID() string   { return e.OrderID }

// ReceiptRecordedEvent is published when the store receives the transfer.
type ReceiptRecordedEvent struct {
	OrderID    string    `json:"orderId"`
	StoreID    string    `json:"storeId"`
	ProductID  string    `json:"productId"`
	Quantity   int       `json:"quantity"`
	ReceivedAt time.Time `json:"receivedAt"`
}

func (e *ReceiptRecordedEvent) EventType() string     { return ReceiptRecordedEventType }
func (e *ReceiptRecordedEvent) OccurredAt() time.Time { return e.ReceivedAt }
func (e *ReceiptRecordedEvent) AggregateID() string   { return e.OrderID }

// NewAlertRaisedEvent builds the alert event for a freshly created order.
func NewAlertRaisedEvent(o *ReplenishmentOrder) *AlertRaisedEvent {
	return &AlertRaisedEvent{
		OrderID:           o.OrderID,
		StoreID:           o.StoreID,
		ProductID:         o.ProductID,
		RequestedQuantity: o.RequestedQuantity,
		RaisedAt:          o.CreatedAt,
	}
}

// NewTransferOrderCreatedEvent builds the allocation event from an order in PENDING_PICKING.
func NewTransferOrderCreatedEvent(o *ReplenishmentOrder) *TransferOrderCreatedEvent {
	return &TransferOrderCreatedEvent{
		OrderID:         o.OrderID,
		TransferOrderID: o.TransferOrder.OrderID,
		ProductID:       o.ProductID,
		StoreID:         o.StoreID,
		WarehouseID:     o.TransferOrder.WarehouseID,
		Quantity:        o.TransferOrder.Quantity,
		CreatedAt:       o.TransferOrder.CreatedAt,
	}
}

func NewShipmentRecordedEvent(o *ReplenishmentOrder) *ShipmentRecordedEvent {
	return &ShipmentRecordedEvent{
		OrderID:        o.OrderID,
		TrackingNumber: o.Shipment.TrackingNumber,
		Carrier:        o.Shipment.Carrier,
		ShippedAt:      o.Shipment.ShippedAt,
	}
}

func NewReceiptRecordedEvent(o *ReplenishmentOrder, quantity int) *ReceiptRecordedEvent {
	return &ReceiptRecordedEvent{
		OrderID:    o.OrderID,
		StoreID:    o.StoreID,
		ProductID:  o.ProductID,
		Quantity:   quantity,
		ReceivedAt: o.UpdatedAt,
	}
}
