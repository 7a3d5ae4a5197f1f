package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wms-platform/replenishment-service/internal/domain"
)

type stockKey struct {
	location  string
	productID string
}

// StockRepository is an in-memory domain.StockRepository. A single mutex
// makes each guarded decrement atomic.
type StockRepository struct {
	mu        sync.Mutex
	warehouse map[stockKey]*domain.WarehouseStock
	store     map[stockKey]*domain.StoreStock
	now       func() time.Time
}

func NewStockRepository() *StockRepository {
	return &StockRepository{
		warehouse: make(map[stockKey]*domain.WarehouseStock),
		store:     make(map[stockKey]*domain.StoreStock),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (r *StockRepository) Reserve(ctx context.Context, warehouseID, productID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.warehouse[stockKey{warehouseID, productID}]
	if !ok || row.Quantity < quantity {
		return domain.ErrInsufficientStock
	}
	row.Quantity -= quantity
	row.UpdatedAt = r.now()
	return nil
}

func (r *StockRepository) ReserveAny(ctx context.Context, productID string, quantity int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]stockKey, 0)
	for k := range r.warehouse {
		if k.productID == productID {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].location < keys[j].location })

	for _, k := range keys {
		row := r.warehouse[k]
		if row.Quantity >= quantity {
			row.Quantity -= quantity
			row.UpdatedAt = r.now()
			return k.location, nil
		}
	}
	return "", domain.ErrInsufficientStock
}

func (r *StockRepository) Release(ctx context.Context, warehouseID, productID string, quantity int) error {
	_, err := r.Restock(ctx, warehouseID, productID, quantity)
	return err
}

func (r *StockRepository) Receive(ctx context.Context, storeID, productID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := stockKey{storeID, productID}
	row, ok := r.store[key]
	if !ok {
		row = &domain.StoreStock{StoreID: storeID, ProductID: productID}
		r.store[key] = row
	}
	row.Quantity += quantity
	row.UpdatedAt = r.now()
	return nil
}

func (r *StockRepository) RevertReceipt(ctx context.Context, storeID, productID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.store[stockKey{storeID, productID}]
	if !ok || row.Quantity < quantity {
		return domain.ErrStockNotFound
	}
	row.Quantity -= quantity
	row.UpdatedAt = r.now()
	return nil
}

func (r *StockRepository) Restock(ctx context.Context, warehouseID, productID string, quantity int) (*domain.WarehouseStock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := stockKey{warehouseID, productID}
	row, ok := r.warehouse[key]
	if !ok {
		row = &domain.WarehouseStock{WarehouseID: warehouseID, ProductID: productID}
		r.warehouse[key] = row
	}
	row.Quantity += quantity
	row.UpdatedAt = r.now()

	out := *row
	return &out, nil
}

func (r *StockRepository) GetWarehouseStock(ctx context.Context, warehouseID, productID string) (*domain.WarehouseStock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.warehouse[stockKey{warehouseID, productID}]
	if !ok {
		return nil, nil
	}
	out := *row
	return &out, nil
}

func (r *StockRepository) GetStoreStock(ctx context.Context, storeID, productID string) (*domain.StoreStock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.store[stockKey{storeID, productID}]
	if !ok {
		return nil, nil
	}
	out := *row
	return &out, nil
}
