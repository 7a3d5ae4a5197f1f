// Package memory holds mutex-guarded adapters with the same conditional
// update semantics as the MongoDB repositories. They back unit tests and
// the acceptance suite.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wms-platform/replenishment-service/internal/domain"
)

// OrderRepository is an in-memory domain.OrderRepository.
type OrderRepository struct {
	mu     sync.Mutex
	orders map[string]*domain.ReplenishmentOrder

	// CommitErr, when set, fails every Commit after its version check.
	CommitErr error
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]*domain.ReplenishmentOrder)}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.ReplenishmentOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.OrderID]; exists {
		return domain.ErrOrderExists
	}
	r.orders[order.OrderID] = order.Clone()
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (*domain.ReplenishmentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return nil, nil
	}
	return order.Clone(), nil
}

func (r *OrderRepository) FindRecent(ctx context.Context, filter domain.ListFilter) ([]*domain.ReplenishmentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*domain.ReplenishmentOrder, 0, len(r.orders))
	for _, order := range r.orders {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.ProductID != "" && order.ProductID != filter.ProductID {
			continue
		}
		result = append(result, order.Clone())
	}

	sort.SliceStable(result, func(i, j int) bool {
		if filter.OldestFirst {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *OrderRepository) AcquireLease(ctx context.Context, orderID string, version int64, stage domain.Status, now time.Time, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok || order.Version != version || order.PendingTransition.Active(now, ttl) {
		return domain.ErrConcurrentModification
	}
	order.PendingTransition = &domain.PendingTransition{Stage: stage, AcquiredAt: now}
	order.Version++
	return nil
}

func (r *OrderRepository) ReleaseLease(ctx context.Context, orderID string, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok || order.Version != version {
		return domain.ErrConcurrentModification
	}
	order.PendingTransition = nil
	order.Version++
	return nil
}

func (r *OrderRepository) Commit(ctx context.Context, orderID string, version int64, t domain.Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok || order.Version != version {
		return domain.ErrConcurrentModification
	}
	if r.CommitErr != nil {
		return r.CommitErr
	}

	next := order.Clone()
	if err := next.Apply(t); err != nil {
		return err
	}
	r.orders[orderID] = next
	return nil
}

// Len returns the number of stored orders.
func (r *OrderRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}
