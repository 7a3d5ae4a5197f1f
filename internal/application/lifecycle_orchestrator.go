package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/replenishment-service/internal/domain"
	"github.com/wms-platform/replenishment-service/pkg/errors"
	"github.com/wms-platform/replenishment-service/pkg/logging"
	"github.com/wms-platform/replenishment-service/pkg/metrics"
)

var tracer = otel.Tracer("replenishment-service/application")

const (
	DefaultListLimit = 100
	MaxListLimit     = 100
)

// OrchestratorConfig tunes the lifecycle orchestrator.
type OrchestratorConfig struct {
	DefaultCarrier string
	LeaseTTL       time.Duration
}

// DefaultOrchestratorConfig returns the production defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		DefaultCarrier: "DefaultCarrier",
		LeaseTTL:       30 * time.Second,
	}
}

// LifecycleOrchestrator drives an order through its stages. The HTTP
// handlers, the alert consumer and the restock sweeper all call the same
// methods, so every trigger passes the same policy check.
type LifecycleOrchestrator struct {
	orders    domain.OrderRepository
	inventory *InventoryService
	events    domain.EventGateway
	logger    *logging.Logger
	metrics   *metrics.Metrics
	config    OrchestratorConfig

	now   func() time.Time
	newID func() string
}

// NewLifecycleOrchestrator creates a new LifecycleOrchestrator
func NewLifecycleOrchestrator(
	orders domain.OrderRepository,
	inventory *InventoryService,
	events domain.EventGateway,
	logger *logging.Logger,
	m *metrics.Metrics,
	config OrchestratorConfig,
) *LifecycleOrchestrator {
	if config.DefaultCarrier == "" {
		config.DefaultCarrier = DefaultOrchestratorConfig().DefaultCarrier
	}
	if config.LeaseTTL <= 0 {
		config.LeaseTTL = DefaultOrchestratorConfig().LeaseTTL
	}
	return &LifecycleOrchestrator{
		orders:    orders,
		inventory: inventory,
		events:    events,
		logger:    logger.WithComponent("lifecycle"),
		metrics:   m,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Create opens a new order at ALERT_RAISED and publishes the alert.
func (o *LifecycleOrchestrator) Create(ctx context.Context, cmd CreateAlertCommand) (*domain.ReplenishmentOrder, error) {
	ctx, span := o.startSpan(ctx, "replenishment.create", cmd.Trigger,
		attribute.String("store.id", cmd.StoreID),
		attribute.String("product.id", cmd.ProductID),
	)
	defer span.End()

	order, err := domain.NewReplenishmentOrder("REP-"+o.newID(), cmd.StoreID, cmd.ProductID, cmd.RequestedQuantity, triggerOrAPI(cmd.Trigger), o.now())
	if err != nil {
		return nil, toAppError(err, "order ledger")
	}

	if err := o.orders.Create(ctx, order); err != nil {
		recordSpanError(span, err)
		o.logger.WithContext(ctx).WithError(err).Error("Failed to create replenishment order", "storeId", cmd.StoreID, "productId", cmd.ProductID)
		return nil, toAppError(err, "order ledger")
	}
	span.SetAttributes(attribute.String("order.id", order.OrderID))

	o.metrics.RecordOrderCreated(order.StoreID)
	o.metrics.RecordTransition(string(domain.StatusAlertRaised), string(OutcomeTransitioned), string(triggerOrAPI(cmd.Trigger)))
	o.logger.WithContext(ctx).Info("Replenishment order created",
		"orderId", order.OrderID,
		"storeId", order.StoreID,
		"productId", order.ProductID,
		"requestedQuantity", order.RequestedQuantity,
	)

	o.publish(ctx, domain.NewAlertRaisedEvent(order))
	return order, nil
}

// Allocate reserves warehouse stock and moves the order to PENDING_PICKING,
// or redirects it to AWAITING_STOCK when no row can cover the quantity.
func (o *LifecycleOrchestrator) Allocate(ctx context.Context, cmd AllocateCommand) (*TransitionResult, error) {
	trigger := triggerOrAPI(cmd.Trigger)
	ctx, span := o.startSpan(ctx, "replenishment.allocate", trigger, attribute.String("order.id", cmd.OrderID))
	defer span.End()

	if cmd.OrderID == "" {
		return nil, errors.ErrValidationWithFields("invalid allocation", map[string]string{"orderId": "is required"})
	}
	if trigger == domain.TriggerAPI && cmd.Quantity <= 0 {
		return nil, errors.ErrValidationWithFields("invalid allocation", map[string]string{"quantity": "must be greater than zero"})
	}

	order, err := o.load(ctx, cmd.OrderID)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	quantity := cmd.Quantity
	if quantity <= 0 {
		quantity = order.RequestedQuantity
	}
	if quantity <= 0 {
		quantity = 1
	}

	result, err := o.allocate(ctx, order, quantity, cmd.WarehouseID, trigger)
	o.finish(ctx, span, domain.StatusPendingPicking, trigger, result, err)
	return result, err
}

func (o *LifecycleOrchestrator) allocate(ctx context.Context, order *domain.ReplenishmentOrder, quantity int, warehouseID string, trigger domain.Trigger) (*TransitionResult, error) {
	now := o.now()
	if rejected := o.precheck(order, domain.StatusPendingPicking, now); rejected != nil {
		return rejected, nil
	}

	if err := o.orders.AcquireLease(ctx, order.OrderID, order.Version, domain.StatusPendingPicking, now, o.config.LeaseTTL); err != nil {
		return o.lostRace(ctx, order.OrderID, domain.StatusPendingPicking, err)
	}
	leased := order.Version + 1

	alloc, err := o.inventory.Reserve(ctx, order.ProductID, quantity, warehouseID)
	if stderrors.Is(err, domain.ErrInsufficientStock) {
		return o.redirect(ctx, order, leased, quantity, warehouseID, trigger)
	}
	if err != nil {
		o.releaseLease(ctx, order.OrderID, leased)
		return nil, toAppError(err, "stock store")
	}

	transfer := &domain.TransferOrder{
		OrderID:     "TO-" + o.newID(),
		Quantity:    alloc.Quantity,
		WarehouseID: alloc.WarehouseID,
	}
	t, err := order.Allocate(transfer, trigger, now)
	if err != nil {
		o.inventory.Release(ctx, alloc)
		o.releaseLease(ctx, order.OrderID, leased)
		return nil, toAppError(err, "order ledger")
	}

	if err := o.orders.Commit(ctx, order.OrderID, leased, t); err != nil {
		o.logger.WithContext(ctx).WithError(err).Error("Ledger commit failed after reservation, releasing stock",
			"orderId", order.OrderID,
			"warehouseId", alloc.WarehouseID,
			"quantity", alloc.Quantity,
		)
		o.inventory.Release(ctx, alloc)
		return o.commitFailed(ctx, order.OrderID, leased, domain.StatusPendingPicking, err)
	}

	order.Version = leased
	if err := order.Apply(t); err != nil {
		return nil, toAppError(err, "order ledger")
	}

	o.publish(ctx, domain.NewTransferOrderCreatedEvent(order))
	return &TransitionResult{Outcome: OutcomeTransitioned, Stage: domain.StatusPendingPicking, Order: order}, nil
}

// redirect handles a short reservation. The lease at version leased is
// still held by this call.
func (o *LifecycleOrchestrator) redirect(ctx context.Context, order *domain.ReplenishmentOrder, leased int64, quantity int, warehouseID string, trigger domain.Trigger) (*TransitionResult, error) {
	if order.Status == domain.StatusAwaitingStock {
		o.releaseLease(ctx, order.OrderID, leased)
		order.Version = leased + 1
		order.PendingTransition = nil
		return &TransitionResult{Outcome: OutcomeRedirected, Stage: domain.StatusAwaitingStock, Order: order, Err: domain.ErrInsufficientStock}, nil
	}

	t, err := order.AwaitStock(quantity, warehouseID, trigger, o.now())
	if err != nil {
		o.releaseLease(ctx, order.OrderID, leased)
		return nil, toAppError(err, "order ledger")
	}
	if err := o.orders.Commit(ctx, order.OrderID, leased, t); err != nil {
		return o.commitFailed(ctx, order.OrderID, leased, domain.StatusAwaitingStock, err)
	}

	order.Version = leased
	if err := order.Apply(t); err != nil {
		return nil, toAppError(err, "order ledger")
	}

	o.logger.WithContext(ctx).Warn("Insufficient warehouse stock, order awaiting stock",
		"orderId", order.OrderID,
		"productId", order.ProductID,
		"quantity", quantity,
	)
	return &TransitionResult{Outcome: OutcomeRedirected, Stage: domain.StatusAwaitingStock, Order: order, Err: domain.ErrInsufficientStock}, nil
}

// Ship records the shipment and moves the order to IN_TRANSIT.
func (o *LifecycleOrchestrator) Ship(ctx context.Context, cmd ShipCommand) (*TransitionResult, error) {
	trigger := triggerOrAPI(cmd.Trigger)
	ctx, span := o.startSpan(ctx, "replenishment.ship", trigger, attribute.String("order.id", cmd.OrderID))
	defer span.End()

	order, err := o.load(ctx, cmd.OrderID)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	result, err := o.ship(ctx, order, cmd.Carrier, trigger)
	o.finish(ctx, span, domain.StatusInTransit, trigger, result, err)
	return result, err
}

func (o *LifecycleOrchestrator) ship(ctx context.Context, order *domain.ReplenishmentOrder, carrier string, trigger domain.Trigger) (*TransitionResult, error) {
	now := o.now()
	if rejected := o.precheck(order, domain.StatusInTransit, now); rejected != nil {
		return rejected, nil
	}

	if carrier == "" {
		carrier = o.config.DefaultCarrier
	}
	shipment := &domain.Shipment{
		TrackingNumber: "TRK-" + strings.SplitN(o.newID(), "-", 2)[0],
		Carrier:        carrier,
	}
	t, err := order.Ship(shipment, trigger, now)
	if err != nil {
		return nil, toAppError(err, "order ledger")
	}

	if err := o.orders.Commit(ctx, order.OrderID, order.Version, t); err != nil {
		return o.lostRace(ctx, order.OrderID, domain.StatusInTransit, err)
	}
	if err := order.Apply(t); err != nil {
		return nil, toAppError(err, "order ledger")
	}

	o.publish(ctx, domain.NewShipmentRecordedEvent(order))
	return &TransitionResult{Outcome: OutcomeTransitioned, Stage: domain.StatusInTransit, Order: order}, nil
}

// Receive lands the transfer in store stock and completes the order.
func (o *LifecycleOrchestrator) Receive(ctx context.Context, cmd ReceiveCommand) (*TransitionResult, error) {
	trigger := triggerOrAPI(cmd.Trigger)
	ctx, span := o.startSpan(ctx, "replenishment.receive", trigger, attribute.String("order.id", cmd.OrderID))
	defer span.End()

	order, err := o.load(ctx, cmd.OrderID)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	result, err := o.receive(ctx, order, trigger)
	o.finish(ctx, span, domain.StatusCompleted, trigger, result, err)
	return result, err
}

func (o *LifecycleOrchestrator) receive(ctx context.Context, order *domain.ReplenishmentOrder, trigger domain.Trigger) (*TransitionResult, error) {
	now := o.now()
	if rejected := o.precheck(order, domain.StatusCompleted, now); rejected != nil {
		return rejected, nil
	}

	if err := o.orders.AcquireLease(ctx, order.OrderID, order.Version, domain.StatusCompleted, now, o.config.LeaseTTL); err != nil {
		return o.lostRace(ctx, order.OrderID, domain.StatusCompleted, err)
	}
	leased := order.Version + 1

	quantity := order.ReceiveQuantity()
	if err := o.inventory.Receive(ctx, order.StoreID, order.ProductID, quantity); err != nil {
		o.releaseLease(ctx, order.OrderID, leased)
		return nil, toAppError(err, "stock store")
	}

	t, err := order.Receive(quantity, trigger, now)
	if err != nil {
		o.inventory.RevertReceipt(ctx, order.StoreID, order.ProductID, quantity)
		o.releaseLease(ctx, order.OrderID, leased)
		return nil, toAppError(err, "order ledger")
	}

	if err := o.orders.Commit(ctx, order.OrderID, leased, t); err != nil {
		o.logger.WithContext(ctx).WithError(err).Error("Ledger commit failed after receipt, reverting store stock",
			"orderId", order.OrderID,
			"storeId", order.StoreID,
			"quantity", quantity,
		)
		o.inventory.RevertReceipt(ctx, order.StoreID, order.ProductID, quantity)
		return o.commitFailed(ctx, order.OrderID, leased, domain.StatusCompleted, err)
	}

	order.Version = leased
	if err := order.Apply(t); err != nil {
		return nil, toAppError(err, "order ledger")
	}

	o.publish(ctx, domain.NewReceiptRecordedEvent(order, quantity))
	return &TransitionResult{Outcome: OutcomeTransitioned, Stage: domain.StatusCompleted, Order: order}, nil
}

// Get returns one order.
func (o *LifecycleOrchestrator) Get(ctx context.Context, orderID string) (*domain.ReplenishmentOrder, error) {
	return o.load(ctx, orderID)
}

// List returns orders newest first. The limit defaults to and is capped at
// MaxListLimit.
func (o *LifecycleOrchestrator) List(ctx context.Context, query ListOrdersQuery) (*OrderListDTO, error) {
	filter := domain.ListFilter{ProductID: query.ProductID, Limit: query.Limit}
	if query.Status != "" {
		status, err := domain.ParseStatus(query.Status)
		if err != nil {
			return nil, toAppError(err, "order ledger")
		}
		filter.Status = status
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}

	orders, err := o.orders.FindRecent(ctx, filter)
	if err != nil {
		o.logger.WithContext(ctx).WithError(err).Error("Failed to list replenishment orders")
		return nil, toAppError(err, "order ledger")
	}
	if orders == nil {
		orders = []*domain.ReplenishmentOrder{}
	}
	return &OrderListDTO{Orders: orders, Count: len(orders), Limit: filter.Limit}, nil
}

// AwaitingStock lists orders parked in AWAITING_STOCK, oldest first.
func (o *LifecycleOrchestrator) AwaitingStock(ctx context.Context, productID string, limit int) ([]*domain.ReplenishmentOrder, error) {
	orders, err := o.orders.FindRecent(ctx, domain.ListFilter{
		Status:      domain.StatusAwaitingStock,
		ProductID:   productID,
		Limit:       limit,
		OldestFirst: true,
	})
	if err != nil {
		return nil, toAppError(err, "order ledger")
	}
	return orders, nil
}

func (o *LifecycleOrchestrator) load(ctx context.Context, orderID string) (*domain.ReplenishmentOrder, error) {
	order, err := o.orders.FindByID(ctx, orderID)
	if err != nil {
		o.logger.WithContext(ctx).WithError(err).Error("Failed to load replenishment order", "orderId", orderID)
		return nil, toAppError(err, "order ledger")
	}
	if order == nil {
		return nil, errors.ErrNotFoundWithID("replenishment order", orderID)
	}
	return order, nil
}

// precheck rejects a transition the policy forbids or another trigger is
// already performing.
func (o *LifecycleOrchestrator) precheck(order *domain.ReplenishmentOrder, target domain.Status, now time.Time) *TransitionResult {
	if order.PendingTransition.Active(now, o.config.LeaseTTL) {
		return rejected(order, target, domain.ReasonTransitionInProgress)
	}
	if !domain.CanTransition(order.Status, target) {
		return rejected(order, target, "")
	}
	return nil
}

// lostRace re-reads the order after a conditional update missed and
// re-verifies the policy against what the winner left behind.
func (o *LifecycleOrchestrator) lostRace(ctx context.Context, orderID string, target domain.Status, cause error) (*TransitionResult, error) {
	if !stderrors.Is(cause, domain.ErrConcurrentModification) {
		o.logger.WithContext(ctx).WithError(cause).Error("Ledger update failed", "orderId", orderID, "target", target)
		return nil, toAppError(cause, "order ledger")
	}

	current, err := o.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if r := o.precheck(current, target, o.now()); r != nil {
		return r, nil
	}
	return nil, errors.ErrConflict(fmt.Sprintf("order %s was modified concurrently, retry the request", orderID)).Wrap(cause)
}

// commitFailed finishes a stock-moving transition whose ledger commit
// missed. Stock has already been compensated by the caller.
func (o *LifecycleOrchestrator) commitFailed(ctx context.Context, orderID string, leased int64, target domain.Status, cause error) (*TransitionResult, error) {
	if stderrors.Is(cause, domain.ErrConcurrentModification) {
		// The lease expired and another trigger moved the order on.
		return o.lostRace(ctx, orderID, target, cause)
	}
	o.releaseLease(ctx, orderID, leased)
	if !stderrors.Is(cause, domain.ErrUnavailable) {
		cause = fmt.Errorf("%w: %v", domain.ErrUnavailable, cause)
	}
	return nil, toAppError(cause, "order ledger")
}

func (o *LifecycleOrchestrator) releaseLease(ctx context.Context, orderID string, leased int64) {
	if err := o.orders.ReleaseLease(ctx, orderID, leased); err != nil {
		o.logger.WithContext(ctx).WithError(err).Warn("Failed to release transition lease, it will expire",
			"orderId", orderID,
			"ttl", o.config.LeaseTTL.String(),
		)
	}
}

// publish hands an event to the gateway. Failures are logged and counted,
// never rolled back into the ledger.
func (o *LifecycleOrchestrator) publish(ctx context.Context, event domain.DomainEvent) {
	if err := o.events.Publish(ctx, event); err != nil {
		o.metrics.RecordPublishFailure(event.EventType())
		o.logger.WithContext(ctx).WithError(err).Error("Failed to publish event",
			"eventType", event.EventType(),
			"orderId", event.AggregateID(),
		)
	}
}

func (o *LifecycleOrchestrator) startSpan(ctx context.Context, name string, trigger domain.Trigger, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx = logging.ContextWithTrigger(ctx, string(triggerOrAPI(trigger)))
	attrs = append(attrs, attribute.String("replenishment.trigger", string(triggerOrAPI(trigger))))
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *LifecycleOrchestrator) finish(ctx context.Context, span trace.Span, stage domain.Status, trigger domain.Trigger, result *TransitionResult, err error) {
	if err != nil {
		recordSpanError(span, err)
		o.metrics.RecordTransition(string(stage), "error", string(trigger))
		return
	}

	span.SetAttributes(attribute.String("replenishment.outcome", string(result.Outcome)))
	o.metrics.RecordTransition(string(result.Stage), string(result.Outcome), string(trigger))

	switch result.Outcome {
	case OutcomeTransitioned:
		o.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
			EventType:  "replenishment.transitioned",
			EntityType: "replenishment_order",
			EntityID:   result.Order.OrderID,
			Action:     string(result.Stage),
			RelatedIDs: map[string]string{"trigger": string(trigger)},
		})
	case OutcomeRejected:
		o.logger.WithContext(ctx).Info("Transition rejected", "orderId", result.Order.OrderID, "target", stage, "reason", result.Err.Error())
	}
}

func rejected(order *domain.ReplenishmentOrder, target domain.Status, reason string) *TransitionResult {
	return &TransitionResult{
		Outcome: OutcomeRejected,
		Stage:   target,
		Order:   order,
		Err:     &domain.IllegalTransitionError{From: order.Status, To: target, Reason: reason},
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func triggerOrAPI(t domain.Trigger) domain.Trigger {
	if t == "" {
		return domain.TriggerAPI
	}
	return t
}
