package domain

import (
	"context"
	"time"
)

// Allocation is the result of a successful warehouse reservation.
type Allocation struct {
	WarehouseID string    `json:"warehouseId"`
	ProductID   string    `json:"productId"`
	Quantity    int       `json:"quantity"`
	ReservedAt  time.Time `json:"reservedAt"`
}

// WarehouseStock is the on-hand quantity of a product in a warehouse.
type WarehouseStock struct {
	WarehouseID string    `bson:"warehouseId" json:"warehouseId"`
	ProductID   string    `bson:"productId" json:"productId"`
	Quantity    int       `bson:"quantity" json:"quantity"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}

// StoreStock is the on-hand quantity of a product in a store.
type StoreStock struct {
	StoreID   string    `bson:"storeId" json:"storeId"`
	ProductID string    `bson:"productId" json:"productId"`
	Quantity  int       `bson:"quantity" json:"quantity"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// ListFilter narrows FindRecent.
type ListFilter struct {
	Status      Status
	ProductID   string
	Limit       int
	OldestFirst bool
}

// OrderRepository is the order ledger. Every mutating method is a
// conditional update on the order's version; a miss returns
// ErrConcurrentModification.
type OrderRepository interface {
	Create(ctx context.Context, order *ReplenishmentOrder) error
	// FindByID returns nil, nil when the order does not exist.
	FindByID(ctx context.Context, orderID string) (*ReplenishmentOrder, error)
	FindRecent(ctx context.Context, filter ListFilter) ([]*ReplenishmentOrder, error)
	// AcquireLease sets pendingTransition if the order is still at version
	// and holds no live lease. The stored version becomes version+1.
	AcquireLease(ctx context.Context, orderID string, version int64, stage Status, now time.Time, ttl time.Duration) error
	// ReleaseLease clears pendingTransition if the order is still at version.
	ReleaseLease(ctx context.Context, orderID string, version int64) error
	// Commit applies t if the order is still at version.
	Commit(ctx context.Context, orderID string, version int64, t Transition) error
}

// StockRepository moves warehouse and store inventory. Decrements are a
// single guarded update, never a read followed by a write.
type StockRepository interface {
	// Reserve decrements one warehouse row by quantity, or returns
	// ErrInsufficientStock leaving it untouched.
	Reserve(ctx context.Context, warehouseID, productID string, quantity int) error
	// ReserveAny decrements the first row for productID holding at least
	// quantity and returns its warehouse.
	ReserveAny(ctx context.Context, productID string, quantity int) (string, error)
	// Release returns a reservation to its warehouse row.
	Release(ctx context.Context, warehouseID, productID string, quantity int) error
	// Receive upserts and increments store stock.
	Receive(ctx context.Context, storeID, productID string, quantity int) error
	// RevertReceipt undoes a Receive whose ledger commit failed.
	RevertReceipt(ctx context.Context, storeID, productID string, quantity int) error
	// Restock upserts and increments warehouse stock.
	Restock(ctx context.Context, warehouseID, productID string, quantity int) (*WarehouseStock, error)
	GetWarehouseStock(ctx context.Context, warehouseID, productID string) (*WarehouseStock, error)
	GetStoreStock(ctx context.Context, storeID, productID string) (*StoreStock, error)
}

// InboundHandler handles one decoded inbound event.
type InboundHandler func(ctx context.Context, event DomainEvent) error

// EventGateway publishes domain events and delivers inbound ones.
type EventGateway interface {
	Publish(ctx context.Context, event DomainEvent) error
	Subscribe(groupID string, topics []string, handler InboundHandler) error
}
