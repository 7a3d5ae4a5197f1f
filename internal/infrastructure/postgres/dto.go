package postgres

import (
	"time"

	"github.com/wms-platform/replenishment-service/internal/domain"
)

// WarehouseStockDTO is the warehouse_stock row.
type WarehouseStockDTO struct {
	WarehouseID string    `gorm:"primaryKey;size:64"`
	ProductID   string    `gorm:"primaryKey;size:64;index"`
	Quantity    int       `gorm:"not null;default:0;check:quantity >= 0"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (WarehouseStockDTO) TableName() string {
	return "warehouse_stock"
}

// StoreStockDTO is the store_stock row.
type StoreStockDTO struct {
	StoreID   string    `gorm:"primaryKey;size:64"`
	ProductID string    `gorm:"primaryKey;size:64"`
	Quantity  int       `gorm:"not null;default:0;check:quantity >= 0"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (StoreStockDTO) TableName() string {
	return "store_stock"
}

func (d WarehouseStockDTO) toDomain() *domain.WarehouseStock {
	return &domain.WarehouseStock{
		WarehouseID: d.WarehouseID,
		ProductID:   d.ProductID,
		Quantity:    d.Quantity,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (d StoreStockDTO) toDomain() *domain.StoreStock {
	return &domain.StoreStock{
		StoreID:   d.StoreID,
		ProductID: d.ProductID,
		Quantity:  d.Quantity,
		UpdatedAt: d.UpdatedAt,
	}
}
