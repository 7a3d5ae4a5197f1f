// Package postgres is the relational alternative to the MongoDB stock
// store, selected with STOCK_BACKEND=postgres.
package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wms-platform/replenishment-service/internal/domain"
)

// GormStockRepository implements domain.StockRepository using GORM.
type GormStockRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStockRepository creates a new GORM stock repository.
func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates or updates both stock tables.
func (r *GormStockRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&WarehouseStockDTO{}, &StoreStockDTO{}); err != nil {
		return wrapErr("migrate stock tables", err)
	}
	return nil
}

// Reserve is a single UPDATE guarded by quantity >= q.
func (r *GormStockRepository) Reserve(ctx context.Context, warehouseID, productID string, quantity int) error {
	result := r.db.WithContext(ctx).
		Model(&WarehouseStockDTO{}).
		Where("warehouse_id = ? AND product_id = ? AND quantity >= ?", warehouseID, productID, quantity).
		Updates(map[string]interface{}{
			"quantity":   gorm.Expr("quantity - ?", quantity),
			"updated_at": r.now(),
		})
	if result.Error != nil {
		return wrapErr("reserve stock", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrInsufficientStock
	}
	return nil
}

// ReserveAny picks and decrements the first sufficient row in one
// statement. A row locked by a concurrent reservation is waited on and
// re-checked against the guard once that reservation commits, so a row
// that still holds enough stock is never reported as short.
func (r *GormStockRepository) ReserveAny(ctx context.Context, productID string, quantity int) (string, error) {
	var rows []WarehouseStockDTO
	err := r.db.WithContext(ctx).Raw(`
		UPDATE warehouse_stock
		   SET quantity = quantity - @qty, updated_at = @now
		 WHERE (warehouse_id, product_id) = (
		         SELECT warehouse_id, product_id
		           FROM warehouse_stock
		          WHERE product_id = @product AND quantity >= @qty
		          ORDER BY warehouse_id
		          LIMIT 1
		          FOR UPDATE)
		   AND quantity >= @qty
		RETURNING warehouse_id, product_id, quantity, updated_at`,
		map[string]interface{}{"qty": quantity, "now": r.now(), "product": productID},
	).Scan(&rows).Error
	if err != nil {
		return "", wrapErr("reserve stock", err)
	}
	if len(rows) == 0 {
		return "", domain.ErrInsufficientStock
	}
	return rows[0].WarehouseID, nil
}

// Release returns a reservation to its row.
func (r *GormStockRepository) Release(ctx context.Context, warehouseID, productID string, quantity int) error {
	return r.upsertWarehouse(ctx, warehouseID, productID, quantity)
}

// Receive upserts the store row and increments it.
func (r *GormStockRepository) Receive(ctx context.Context, storeID, productID string, quantity int) error {
	now := r.now()
	row := StoreStockDTO{StoreID: storeID, ProductID: productID, Quantity: quantity, UpdatedAt: now}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "store_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity":   gorm.Expr("store_stock.quantity + EXCLUDED.quantity"),
			"updated_at": now,
		}),
	}).Create(&row).Error
	return wrapErr("receive stock", err)
}

// RevertReceipt is the guarded decrement undoing Receive.
func (r *GormStockRepository) RevertReceipt(ctx context.Context, storeID, productID string, quantity int) error {
	result := r.db.WithContext(ctx).
		Model(&StoreStockDTO{}).
		Where("store_id = ? AND product_id = ? AND quantity >= ?", storeID, productID, quantity).
		Updates(map[string]interface{}{
			"quantity":   gorm.Expr("quantity - ?", quantity),
			"updated_at": r.now(),
		})
	if result.Error != nil {
		return wrapErr("revert receipt", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrStockNotFound
	}
	return nil
}

// Restock upserts the warehouse row and returns it.
func (r *GormStockRepository) Restock(ctx context.Context, warehouseID, productID string, quantity int) (*domain.WarehouseStock, error) {
	if err := r.upsertWarehouse(ctx, warehouseID, productID, quantity); err != nil {
		return nil, err
	}
	return r.GetWarehouseStock(ctx, warehouseID, productID)
}

func (r *GormStockRepository) GetWarehouseStock(ctx context.Context, warehouseID, productID string) (*domain.WarehouseStock, error) {
	var row WarehouseStockDTO
	err := r.db.WithContext(ctx).
		Where("warehouse_id = ? AND product_id = ?", warehouseID, productID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrapErr("get warehouse stock", err)
	}
	return row.toDomain(), nil
}

func (r *GormStockRepository) GetStoreStock(ctx context.Context, storeID, productID string) (*domain.StoreStock, error) {
	var row StoreStockDTO
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND product_id = ?", storeID, productID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrapErr("get store stock", err)
	}
	return row.toDomain(), nil
}

func (r *GormStockRepository) upsertWarehouse(ctx context.Context, warehouseID, productID string, quantity int) error {
	now := r.now()
	row := WarehouseStockDTO{WarehouseID: warehouseID, ProductID: productID, Quantity: quantity, UpdatedAt: now}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "warehouse_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity":   gorm.Expr("warehouse_stock.quantity + EXCLUDED.quantity"),
			"updated_at": now,
		}),
	}).Create(&row).Error
	return wrapErr("restock", err)
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
