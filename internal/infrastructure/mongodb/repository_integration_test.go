package mongodb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wms-platform/replenishment-service/internal/domain"
	testutil "github.com/wms-platform/replenishment-service/pkg/testing"
)

type RepositoryIntegrationTestSuite struct {
	suite.Suite
	container *testutil.MongoDBContainer
	client    *mongo.Client
	db        *mongo.Database
	orders    *ReplenishmentRepository
	stock     *StockRepository
	ctx       context.Context
}

func TestRepositoryIntegration(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Run(t, new(RepositoryIntegrationTestSuite))
}

func (s *RepositoryIntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := testutil.NewMongoDBContainer(s.ctx)
	s.Require().NoError(err)
	s.container = container

	client, err := container.GetClient(s.ctx)
	s.Require().NoError(err)
	s.client = client
	s.db = client.Database("replenishment_test")

	s.orders = NewReplenishmentRepository(s.db)
	s.stock = NewStockRepository(s.db)
}

func (s *RepositoryIntegrationTestSuite) SetupTest() {
	s.Require().NoError(s.orders.EnsureIndexes(s.ctx))
	s.Require().NoError(s.stock.EnsureIndexes(s.ctx))
}

func (s *RepositoryIntegrationTestSuite) TearDownTest() {
	s.db.Collection(ordersCollection).Drop(s.ctx)
	s.db.Collection(warehouseStockCollection).Drop(s.ctx)
	s.db.Collection(storeStockCollection).Drop(s.ctx)
}

func (s *RepositoryIntegrationTestSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Disconnect(s.ctx)
	}
	if s.container != nil {
		s.Require().NoError(s.container.Close(s.ctx))
	}
}

func (s *RepositoryIntegrationTestSuite) newOrder(id string, at time.Time) *domain.ReplenishmentOrder {
	order, err := domain.NewReplenishmentOrder(id, "S1", "P1", 10, domain.TriggerAPI, at)
	s.Require().NoError(err)
	s.Require().NoError(s.orders.Create(s.ctx, order))
	return order
}

func (s *RepositoryIntegrationTestSuite) TestCreateAndFind() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	s.newOrder("REP-1", now)

	found, err := s.orders.FindByID(s.ctx, "REP-1")
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(domain.StatusAlertRaised, found.Status)
	s.Len(found.History, 1)
	s.Equal(int64(0), found.Version)
	s.Nil(found.PendingTransition)

	missing, err := s.orders.FindByID(s.ctx, "REP-missing")
	s.NoError(err)
	s.Nil(missing)

	order, _ := domain.NewReplenishmentOrder("REP-1", "S1", "P1", 1, domain.TriggerAPI, now)
	s.ErrorIs(s.orders.Create(s.ctx, order), domain.ErrOrderExists)
}

func (s *RepositoryIntegrationTestSuite) TestLeaseAndCommit() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	order := s.newOrder("REP-2", now)

	s.Require().NoError(s.orders.AcquireLease(s.ctx, order.OrderID, 0, domain.StatusPendingPicking, now, time.Minute))
	s.ErrorIs(s.orders.AcquireLease(s.ctx, order.OrderID, 0, domain.StatusPendingPicking, now, time.Minute), domain.ErrConcurrentModification)
	s.ErrorIs(s.orders.AcquireLease(s.ctx, order.OrderID, 1, domain.StatusPendingPicking, now, time.Minute), domain.ErrConcurrentModification,
		"a live lease blocks even at the current version")

	leased, err := s.orders.FindByID(s.ctx, order.OrderID)
	s.Require().NoError(err)
	s.Require().NotNil(leased.PendingTransition)
	s.Equal(domain.StatusPendingPicking, leased.PendingTransition.Stage)

	transfer := &domain.TransferOrder{OrderID: "TO-1", Quantity: 10, WarehouseID: "WH1", CreatedAt: now}
	t, err := order.Allocate(transfer, domain.TriggerAPI, now.Add(time.Second))
	s.Require().NoError(err)

	s.ErrorIs(s.orders.Commit(s.ctx, order.OrderID, 0, t), domain.ErrConcurrentModification)
	s.Require().NoError(s.orders.Commit(s.ctx, order.OrderID, 1, t))

	committed, err := s.orders.FindByID(s.ctx, order.OrderID)
	s.Require().NoError(err)
	s.Equal(domain.StatusPendingPicking, committed.Status)
	s.Equal(int64(2), committed.Version)
	s.Nil(committed.PendingTransition)
	s.Require().NotNil(committed.TransferOrder)
	s.Equal("WH1", committed.TransferOrder.WarehouseID)
	s.Len(committed.History, 2)
	s.Equal(10, committed.History[1].Metadata.TransferOrder.Quantity)
	s.NoError(committed.CheckInvariants())
}

func (s *RepositoryIntegrationTestSuite) TestExpiredLeaseCanBeTaken() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	order := s.newOrder("REP-3", now)

	s.Require().NoError(s.orders.AcquireLease(s.ctx, order.OrderID, 0, domain.StatusPendingPicking, now.Add(-time.Hour), time.Minute))
	s.NoError(s.orders.AcquireLease(s.ctx, order.OrderID, 1, domain.StatusPendingPicking, now, time.Minute))

	s.NoError(s.orders.ReleaseLease(s.ctx, order.OrderID, 2))
	released, err := s.orders.FindByID(s.ctx, order.OrderID)
	s.Require().NoError(err)
	s.Nil(released.PendingTransition)
	s.Equal(int64(3), released.Version)
}

func (s *RepositoryIntegrationTestSuite) TestFindRecent() {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.newOrder("REP-a", base)
	s.newOrder("REP-b", base.Add(time.Minute))
	s.newOrder("REP-c", base.Add(2*time.Minute))

	newest, err := s.orders.FindRecent(s.ctx, domain.ListFilter{Limit: 2})
	s.Require().NoError(err)
	s.Require().Len(newest, 2)
	s.Equal("REP-c", newest[0].OrderID)

	oldest, err := s.orders.FindRecent(s.ctx, domain.ListFilter{Status: domain.StatusAlertRaised, ProductID: "P1", OldestFirst: true})
	s.Require().NoError(err)
	s.Require().Len(oldest, 3)
	s.Equal("REP-a", oldest[0].OrderID)

	none, err := s.orders.FindRecent(s.ctx, domain.ListFilter{Status: domain.StatusCompleted})
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *RepositoryIntegrationTestSuite) TestConcurrentReserve() {
	const k = 10
	_, err := s.stock.Restock(s.ctx, "WH1", "P1", 10)
	s.Require().NoError(err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.stock.Reserve(s.ctx, "WH1", "P1", 10); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, succeeded)
	row, err := s.stock.GetWarehouseStock(s.ctx, "WH1", "P1")
	s.Require().NoError(err)
	s.Equal(0, row.Quantity)
}

func (s *RepositoryIntegrationTestSuite) TestReserveAnyAndRelease() {
	_, err := s.stock.Restock(s.ctx, "WH1", "P1", 2)
	s.Require().NoError(err)
	_, err = s.stock.Restock(s.ctx, "WH2", "P1", 8)
	s.Require().NoError(err)

	s.ErrorIs(s.stock.Reserve(s.ctx, "WH1", "P1", 5), domain.ErrInsufficientStock)

	warehouseID, err := s.stock.ReserveAny(s.ctx, "P1", 5)
	s.Require().NoError(err)
	s.Equal("WH2", warehouseID)

	_, err = s.stock.ReserveAny(s.ctx, "P1", 5)
	s.ErrorIs(err, domain.ErrInsufficientStock)

	s.Require().NoError(s.stock.Release(s.ctx, "WH2", "P1", 5))
	row, err := s.stock.GetWarehouseStock(s.ctx, "WH2", "P1")
	s.Require().NoError(err)
	s.Equal(8, row.Quantity)
}

func (s *RepositoryIntegrationTestSuite) TestReceiveAndRevert() {
	s.Require().NoError(s.stock.Receive(s.ctx, "S1", "P1", 10))
	s.Require().NoError(s.stock.Receive(s.ctx, "S1", "P1", 5))

	row, err := s.stock.GetStoreStock(s.ctx, "S1", "P1")
	s.Require().NoError(err)
	s.Equal(15, row.Quantity)

	s.Require().NoError(s.stock.RevertReceipt(s.ctx, "S1", "P1", 5))
	s.ErrorIs(s.stock.RevertReceipt(s.ctx, "S1", "P1", 50), domain.ErrStockNotFound)

	row, err = s.stock.GetStoreStock(s.ctx, "S1", "P1")
	s.Require().NoError(err)
	s.Equal(10, row.Quantity)

	missing, err := s.stock.GetStoreStock(s.ctx, "S9", "P1")
	s.NoError(err)
	s.Nil(missing)
}
