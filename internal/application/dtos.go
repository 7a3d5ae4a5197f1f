package application

import (
	stderrors "errors"

	"github.com/wms-platform/replenishment-service/internal/domain"
	"github.com/wms-platform/replenishment-service/pkg/errors"
)

// Outcome classifies how a transition attempt ended.
type Outcome string

const (
	OutcomeTransitioned Outcome = "transitioned"
	OutcomeRedirected   Outcome = "redirected"
	OutcomeRejected     Outcome = "rejected"
)

// TransitionResult is returned by every lifecycle operation that reached
// the policy check. Order is the latest known state of the order.
type TransitionResult struct {
	Outcome Outcome
	Stage   domain.Status
	Order   *domain.ReplenishmentOrder
	Err     error
}

// AsError maps a non-transitioned result onto the API error taxonomy.
func (r *TransitionResult) AsError() *errors.AppError {
	switch r.Outcome {
	case OutcomeRedirected:
		return errors.ErrInsufficientStock("insufficient warehouse stock; order is awaiting stock").
			WithDetail("orderId", r.Order.OrderID).
			WithDetail("status", string(domain.StatusAwaitingStock)).
			Wrap(r.Err)
	case OutcomeRejected:
		var illegal *domain.IllegalTransitionError
		if stderrors.As(r.Err, &illegal) {
			appErr := errors.ErrIllegalTransition(string(illegal.From), string(illegal.To)).Wrap(r.Err)
			if illegal.Reason != "" {
				appErr.WithDetail("reason", illegal.Reason)
			}
			return appErr
		}
		return errors.ErrConflict(r.Err.Error()).Wrap(r.Err)
	default:
		return nil
	}
}

// OrderStatusDTO is the short form returned by mutating endpoints.
type OrderStatusDTO struct {
	OrderID string        `json:"orderId"`
	Status  domain.Status `json:"status"`
}

// AllocationDTO is returned by POST /transfer-orders.
type AllocationDTO struct {
	OrderID       string                `json:"orderId"`
	TransferOrder *domain.TransferOrder `json:"transferOrder"`
	Status        domain.Status         `json:"status"`
}

// ShipmentDTO is returned by PATCH /shipments/:orderId/ship.
type ShipmentDTO struct {
	OrderID  string        `json:"orderId"`
	Tracking string        `json:"tracking"`
	Carrier  string        `json:"carrier"`
	Status   domain.Status `json:"status"`
}

// ReceiptDTO is returned by PATCH /receipts/:orderId/receive.
type ReceiptDTO struct {
	OrderID          string        `json:"orderId"`
	ReceivedQuantity int           `json:"receivedQuantity"`
	Status           domain.Status `json:"status"`
}

// OrderListDTO wraps a page of orders.
type OrderListDTO struct {
	Orders []*domain.ReplenishmentOrder `json:"orders"`
	Count  int                          `json:"count"`
	Limit  int                          `json:"limit"`
}

// SweepReport summarises one restock sweep.
type SweepReport struct {
	Scanned      int `json:"scanned"`
	Allocated    int `json:"allocated"`
	StillWaiting int `json:"stillWaiting"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
}
