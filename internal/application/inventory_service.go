package application

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/wms-platform/replenishment-service/internal/domain"
	"github.com/wms-platform/replenishment-service/pkg/errors"
	"github.com/wms-platform/replenishment-service/pkg/logging"
	"github.com/wms-platform/replenishment-service/pkg/metrics"
)

// InventoryService reserves warehouse stock and lands it in stores. Every
// decrement is delegated to a single guarded update in the repository.
type InventoryService struct {
	stock            domain.StockRepository
	defaultWarehouse string
	logger           *logging.Logger
	metrics          *metrics.Metrics
	now              func() time.Time
}

// NewInventoryService creates a new InventoryService
func NewInventoryService(
	stock domain.StockRepository,
	defaultWarehouse string,
	logger *logging.Logger,
	m *metrics.Metrics,
) *InventoryService {
	return &InventoryService{
		stock:            stock,
		defaultWarehouse: defaultWarehouse,
		logger:           logger.WithComponent("inventory"),
		metrics:          m,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Reserve takes quantity units of productID out of one warehouse row.
// With warehouseID set only that row is considered; otherwise the default
// warehouse is tried first, then any row with enough stock.
func (s *InventoryService) Reserve(ctx context.Context, productID string, quantity int, warehouseID string) (*domain.Allocation, error) {
	if quantity <= 0 {
		return nil, &domain.ValidationError{Field: "quantity", Message: "must be greater than zero"}
	}

	var err error
	switch {
	case warehouseID != "":
		err = s.stock.Reserve(ctx, warehouseID, productID, quantity)
	case s.defaultWarehouse != "":
		warehouseID = s.defaultWarehouse
		err = s.stock.Reserve(ctx, warehouseID, productID, quantity)
		if stderrors.Is(err, domain.ErrInsufficientStock) {
			warehouseID, err = s.stock.ReserveAny(ctx, productID, quantity)
		}
	default:
		warehouseID, err = s.stock.ReserveAny(ctx, productID, quantity)
	}

	switch {
	case err == nil:
		s.metrics.RecordReservation("reserved", warehouseID, quantity)
		s.logger.WithContext(ctx).Debug("Reserved warehouse stock",
			"warehouseId", warehouseID,
			"productId", productID,
			"quantity", quantity,
		)
		return &domain.Allocation{
			WarehouseID: warehouseID,
			ProductID:   productID,
			Quantity:    quantity,
			ReservedAt:  s.now(),
		}, nil
	case stderrors.Is(err, domain.ErrInsufficientStock):
		s.metrics.RecordReservation("insufficient", warehouseID, quantity)
		return nil, err
	default:
		s.metrics.RecordReservation("error", warehouseID, quantity)
		return nil, err
	}
}

// Release returns a reservation to the row it was taken from.
func (s *InventoryService) Release(ctx context.Context, alloc *domain.Allocation) error {
	err := s.stock.Release(ctx, alloc.WarehouseID, alloc.ProductID, alloc.Quantity)
	s.metrics.RecordCompensation("reservation", err == nil)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to release reservation, stock must be reconciled manually",
			"warehouseId", alloc.WarehouseID,
			"productId", alloc.ProductID,
			"quantity", alloc.Quantity,
		)
	}
	return err
}

// Receive increments store stock, creating the row if needed.
func (s *InventoryService) Receive(ctx context.Context, storeID, productID string, quantity int) error {
	if err := s.stock.Receive(ctx, storeID, productID, quantity); err != nil {
		return err
	}
	s.metrics.RecordReceipt(storeID, quantity)
	return nil
}

// RevertReceipt undoes a Receive whose ledger commit failed.
func (s *InventoryService) RevertReceipt(ctx context.Context, storeID, productID string, quantity int) error {
	err := s.stock.RevertReceipt(ctx, storeID, productID, quantity)
	s.metrics.RecordCompensation("receipt", err == nil)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to revert receipt, stock must be reconciled manually",
			"storeId", storeID,
			"productId", productID,
			"quantity", quantity,
		)
	}
	return err
}

// Restock adds warehouse stock.
func (s *InventoryService) Restock(ctx context.Context, cmd RestockCommand) (*domain.WarehouseStock, error) {
	if cmd.WarehouseID == "" || cmd.ProductID == "" {
		return nil, errors.ErrValidation("warehouseId and productId are required")
	}
	if cmd.Quantity <= 0 {
		return nil, errors.ErrValidationWithFields("invalid restock", map[string]string{"quantity": "must be greater than zero"})
	}

	stock, err := s.stock.Restock(ctx, cmd.WarehouseID, cmd.ProductID, cmd.Quantity)
	if err != nil {
		return nil, toAppError(err, "stock store")
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "warehouse.restocked",
		EntityType: "warehouse_stock",
		EntityID:   cmd.WarehouseID + "/" + cmd.ProductID,
		Action:     "restock",
		RelatedIDs: map[string]string{"productId": cmd.ProductID},
	})
	return stock, nil
}

// GetWarehouseStock returns one warehouse row.
func (s *InventoryService) GetWarehouseStock(ctx context.Context, warehouseID, productID string) (*domain.WarehouseStock, error) {
	stock, err := s.stock.GetWarehouseStock(ctx, warehouseID, productID)
	if err != nil {
		return nil, toAppError(err, "stock store")
	}
	if stock == nil {
		return nil, errors.ErrNotFoundWithID("warehouse stock", warehouseID+"/"+productID)
	}
	return stock, nil
}

// GetStoreStock returns one store row.
func (s *InventoryService) GetStoreStock(ctx context.Context, storeID, productID string) (*domain.StoreStock, error) {
	stock, err := s.stock.GetStoreStock(ctx, storeID, productID)
	if err != nil {
		return nil, toAppError(err, "stock store")
	}
	if stock == nil {
		return nil, errors.ErrNotFoundWithID("store stock", storeID+"/"+productID)
	}
	return stock, nil
}
