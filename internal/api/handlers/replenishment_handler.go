package handlers

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/replenishment-service/internal/application"
	"github.com/wms-platform/replenishment-service/internal/domain"
	"github.com/wms-platform/replenishment-service/pkg/logging"
	"github.com/wms-platform/replenishment-service/pkg/middleware"
)

// LifecycleService is what the replenishment routes need from the orchestrator.
type LifecycleService interface {
	Create(ctx context.Context, cmd application.CreateAlertCommand) (*domain.ReplenishmentOrder, error)
	Allocate(ctx context.Context, cmd application.AllocateCommand) (*application.TransitionResult, error)
	Ship(ctx context.Context, cmd application.ShipCommand) (*application.TransitionResult, error)
	Receive(ctx context.Context, cmd application.ReceiveCommand) (*application.TransitionResult, error)
	Get(ctx context.Context, orderID string) (*domain.ReplenishmentOrder, error)
	List(ctx context.Context, query application.ListOrdersQuery) (*application.OrderListDTO, error)
}

// CreateAlertRequest is the body of POST /alerts.
type CreateAlertRequest struct {
	StoreID           string `json:"storeId" binding:"required,entity_id"`
	ProductID         string `json:"productId" binding:"required,entity_id"`
	RequestedQuantity int    `json:"requestedQuantity" binding:"gte=0"`
}

// AllocateRequest is the body of POST /transfer-orders.
type AllocateRequest struct {
	OrderID     string `json:"orderId" binding:"required,order_id"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
	WarehouseID string `json:"warehouseId" binding:"omitempty,entity_id"`
}

// ShipRequest is the optional body of PATCH /shipments/:orderId/ship.
type ShipRequest struct {
	Carrier string `json:"carrier" binding:"omitempty,max=64"`
}

// ReplenishmentHandler serves the lifecycle routes.
type ReplenishmentHandler struct {
	service LifecycleService
	logger  *logging.Logger
}

// NewReplenishmentHandler creates a new replenishment handler
func NewReplenishmentHandler(service LifecycleService, logger *logging.Logger) *ReplenishmentHandler {
	middleware.InitValidator()
	return &ReplenishmentHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the lifecycle routes
func (h *ReplenishmentHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/alerts", h.CreateAlert)
	r.POST("/transfer-orders", h.AllocateTransferOrder)
	r.PATCH("/shipments/:orderId/ship", h.ShipOrder)
	r.PATCH("/receipts/:orderId/receive", h.ReceiveOrder)

	replenishments := r.Group("/replenishments")
	{
		replenishments.GET("", h.ListOrders)
		replenishments.GET("/:orderId", h.GetOrder)
	}
}

// CreateAlert handles POST /alerts
func (h *ReplenishmentHandler) CreateAlert(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responder.RespondBindingError(err)
		return
	}

	order, err := h.service.Create(c.Request.Context(), application.CreateAlertCommand{
		StoreID:           req.StoreID,
		ProductID:         req.ProductID,
		RequestedQuantity: req.RequestedQuantity,
		Trigger:           domain.TriggerAPI,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusCreated, application.OrderStatusDTO{OrderID: order.OrderID, Status: order.Status})
}

// AllocateTransferOrder handles POST /transfer-orders
func (h *ReplenishmentHandler) AllocateTransferOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responder.RespondBindingError(err)
		return
	}

	result, err := h.service.Allocate(c.Request.Context(), application.AllocateCommand{
		OrderID:     req.OrderID,
		Quantity:    req.Quantity,
		WarehouseID: req.WarehouseID,
		Trigger:     domain.TriggerAPI,
	})
	if !h.transitioned(responder, result, err) {
		return
	}

	c.JSON(http.StatusOK, application.AllocationDTO{
		OrderID:       result.Order.OrderID,
		TransferOrder: result.Order.TransferOrder,
		Status:        result.Order.Status,
	})
}

// ShipOrder handles PATCH /shipments/:orderId/ship
func (h *ReplenishmentHandler) ShipOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req ShipRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !stderrors.Is(err, io.EOF) {
			responder.RespondBindingError(err)
			return
		}
	}

	result, err := h.service.Ship(c.Request.Context(), application.ShipCommand{
		OrderID: c.Param("orderId"),
		Carrier: req.Carrier,
		Trigger: domain.TriggerAPI,
	})
	if !h.transitioned(responder, result, err) {
		return
	}

	shipment := result.Order.Shipment
	c.JSON(http.StatusOK, application.ShipmentDTO{
		OrderID:  result.Order.OrderID,
		Tracking: shipment.TrackingNumber,
		Carrier:  shipment.Carrier,
		Status:   result.Order.Status,
	})
}

// ReceiveOrder handles PATCH /receipts/:orderId/receive
func (h *ReplenishmentHandler) ReceiveOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	result, err := h.service.Receive(c.Request.Context(), application.ReceiveCommand{
		OrderID: c.Param("orderId"),
		Trigger: domain.TriggerAPI,
	})
	if !h.transitioned(responder, result, err) {
		return
	}

	c.JSON(http.StatusOK, application.ReceiptDTO{
		OrderID:          result.Order.OrderID,
		ReceivedQuantity: result.Order.ReceiveQuantity(),
		Status:           result.Order.Status,
	})
}

// GetOrder handles GET /replenishments/:orderId
func (h *ReplenishmentHandler) GetOrder(c *gin.Context) {
	order, err := h.service.Get(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ListOrders handles GET /replenishments
func (h *ReplenishmentHandler) ListOrders(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	query := application.ListOrdersQuery{
		Status:    c.Query("status"),
		ProductID: c.Query("productId"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			responder.RespondValidationError("invalid query", map[string]string{"limit": "must be an integer"})
			return
		}
		query.Limit = limit
	}

	list, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// transitioned writes the error response for anything but a completed
// transition and reports whether the caller should write its success body.
func (h *ReplenishmentHandler) transitioned(responder *middleware.ErrorResponder, result *application.TransitionResult, err error) bool {
	if err != nil {
		responder.RespondWithError(err)
		return false
	}
	if result.Outcome != application.OutcomeTransitioned {
		responder.RespondWithAppError(result.AsError())
		return false
	}
	return true
}

var _ LifecycleService = (*application.LifecycleOrchestrator)(nil)
