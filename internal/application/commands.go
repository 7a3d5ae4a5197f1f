package application

import "github.com/wms-platform/replenishment-service/internal/domain"

// CreateAlertCommand opens a replenishment order from a low-stock alert.
type CreateAlertCommand struct {
	StoreID           string
	ProductID         string
	RequestedQuantity int
	Trigger           domain.Trigger
}

// AllocateCommand reserves warehouse stock for an order. Quantity 0 means
// "use the order's requested quantity" for automated triggers; the API
// trigger must supply a positive quantity.
type AllocateCommand struct {
	OrderID     string
	Quantity    int
	WarehouseID string
	Trigger     domain.Trigger
}

// ShipCommand records the shipment of a transfer order.
type ShipCommand struct {
	OrderID string
	Carrier string
	Trigger domain.Trigger
}

// ReceiveCommand records receipt of a transfer at the store.
type ReceiveCommand struct {
	OrderID string
	Trigger domain.Trigger
}

// ListOrdersQuery lists orders newest first.
type ListOrdersQuery struct {
	Status    string
	ProductID string
	Limit     int
}

// RestockCommand increments warehouse stock.
type RestockCommand struct {
	WarehouseID string
	ProductID   string
	Quantity    int
}
