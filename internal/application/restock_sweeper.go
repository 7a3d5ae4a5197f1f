package application

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/wms-platform/replenishment-service/internal/domain"
	"github.com/wms-platform/replenishment-service/pkg/logging"
)

const sweepBatchSize = 100

// RestockSweeper retries allocation for orders parked in AWAITING_STOCK.
// It runs on a cron schedule and on demand after a warehouse restock.
type RestockSweeper struct {
	orchestrator *LifecycleOrchestrator
	cron         *cron.Cron
	schedule     string
	logger       *logging.Logger

	mu      sync.Mutex
	pending sync.WaitGroup
}

// NewRestockSweeper creates a sweeper. An empty schedule disables the
// periodic run; TriggerSweep still works.
func NewRestockSweeper(orchestrator *LifecycleOrchestrator, schedule string, logger *logging.Logger) *RestockSweeper {
	return &RestockSweeper{
		orchestrator: orchestrator,
		cron:         cron.New(),
		schedule:     schedule,
		logger:       logger.WithComponent("restock_sweeper"),
	}
}

// Start registers the periodic sweep and starts the scheduler.
func (s *RestockSweeper) Start() error {
	if s.schedule == "" {
		s.logger.Info("Restock sweeper schedule empty, periodic sweep disabled")
		return nil
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		// Skip the tick rather than queue behind a sweep still running.
		if !s.mu.TryLock() {
			s.logger.Debug("Previous sweep still running, skipping tick")
			return
		}
		defer s.mu.Unlock()
		s.sweep(context.Background(), "")
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Restock sweeper started", "schedule", s.schedule)
	return nil
}

// Stop stops the scheduler and waits for running sweeps.
func (s *RestockSweeper) Stop() {
	<-s.cron.Stop().Done()
	s.pending.Wait()
	s.logger.Info("Restock sweeper stopped")
}

// TriggerSweep sweeps productID in the background.
func (s *RestockSweeper) TriggerSweep(productID string) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if _, err := s.Sweep(context.Background(), productID); err != nil {
			s.logger.WithError(err).Error("Restock sweep failed", "productId", productID)
		}
	}()
}

// Sweep retries allocation for up to one batch of AWAITING_STOCK orders,
// oldest first. An empty productID sweeps every product.
func (s *RestockSweeper) Sweep(ctx context.Context, productID string) (*SweepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweep(ctx, productID)
}

func (s *RestockSweeper) sweep(ctx context.Context, productID string) (*SweepReport, error) {
	orders, err := s.orchestrator.AwaitingStock(ctx, productID, sweepBatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list orders awaiting stock")
		return nil, err
	}

	report := &SweepReport{Scanned: len(orders)}
	for _, order := range orders {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		result, err := s.orchestrator.Allocate(ctx, AllocateCommand{
			OrderID:  order.OrderID,
			Quantity: order.RequestedQuantity,
			Trigger:  domain.TriggerSweeper,
		})
		switch {
		case err != nil:
			report.Failed++
			s.logger.WithError(err).Warn("Sweep allocation failed", "orderId", order.OrderID)
		case result.Outcome == OutcomeTransitioned:
			report.Allocated++
		case result.Outcome == OutcomeRedirected:
			report.StillWaiting++
		default:
			report.Skipped++
		}
	}

	if report.Scanned > 0 {
		s.logger.Info("Restock sweep finished",
			"productId", productID,
			"scanned", report.Scanned,
			"allocated", report.Allocated,
			"stillWaiting", report.StillWaiting,
			"skipped", report.Skipped,
			"failed", report.Failed,
		)
	}
	return report, nil
}
