package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/replenishment-service/internal/application"
	"github.com/wms-platform/replenishment-service/internal/domain"
	"github.com/wms-platform/replenishment-service/pkg/logging"
	"github.com/wms-platform/replenishment-service/pkg/middleware"
)

// StockService is what the stock routes need from the inventory service.
type StockService interface {
	Restock(ctx context.Context, cmd application.RestockCommand) (*domain.WarehouseStock, error)
	GetWarehouseStock(ctx context.Context, warehouseID, productID string) (*domain.WarehouseStock, error)
	GetStoreStock(ctx context.Context, storeID, productID string) (*domain.StoreStock, error)
}

// SweepTrigger starts an AWAITING_STOCK retry for one product.
type SweepTrigger interface {
	TriggerSweep(productID string)
}

// RestockRequest is the body of the restock route.
type RestockRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

// StockHandler serves warehouse and store stock.
type StockHandler struct {
	service StockService
	sweeper SweepTrigger
	logger  *logging.Logger
}

// NewStockHandler creates a new stock handler. sweeper may be nil.
func NewStockHandler(service StockService, sweeper SweepTrigger, logger *logging.Logger) *StockHandler {
	middleware.InitValidator()
	return &StockHandler{
		service: service,
		sweeper: sweeper,
		logger:  logger,
	}
}

// RegisterRoutes registers the stock routes
func (h *StockHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/warehouses/:warehouseId/stock/:productId/restock", h.Restock)
	r.GET("/warehouses/:warehouseId/stock/:productId", h.GetWarehouseStock)
	r.GET("/stores/:storeId/stock/:productId", h.GetStoreStock)
}

// Restock handles POST /warehouses/:warehouseId/stock/:productId/restock
func (h *StockHandler) Restock(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responder.RespondBindingError(err)
		return
	}

	productID := c.Param("productId")
	stock, err := h.service.Restock(c.Request.Context(), application.RestockCommand{
		WarehouseID: c.Param("warehouseId"),
		ProductID:   productID,
		Quantity:    req.Quantity,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	if h.sweeper != nil {
		h.sweeper.TriggerSweep(productID)
	}
	c.JSON(http.StatusOK, stock)
}

// GetWarehouseStock handles GET /warehouses/:warehouseId/stock/:productId
func (h *StockHandler) GetWarehouseStock(c *gin.Context) {
	stock, err := h.service.GetWarehouseStock(c.Request.Context(), c.Param("warehouseId"), c.Param("productId"))
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, stock)
}

// GetStoreStock handles GET /stores/:storeId/stock/:productId
func (h *StockHandler) GetStoreStock(c *gin.Context) {
	stock, err := h.service.GetStoreStock(c.Request.Context(), c.Param("storeId"), c.Param("productId"))
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, stock)
}

var (
	_ StockService = (*application.InventoryService)(nil)
	_ SweepTrigger = (*application.RestockSweeper)(nil)
)
