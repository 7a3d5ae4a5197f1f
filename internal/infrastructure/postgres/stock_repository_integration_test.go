package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	postgresdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/wms-platform/replenishment-service/internal/domain"
	testutil "github.com/wms-platform/replenishment-service/pkg/testing"
)

type StockRepositoryIntegrationTestSuite struct {
	suite.Suite
	container  *testutil.PostgresContainer
	db         *gorm.DB
	repository *GormStockRepository
}

func TestStockRepositoryIntegration(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Run(t, new(StockRepositoryIntegrationTestSuite))
}

func (suite *StockRepositoryIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	container, err := testutil.NewPostgresContainer(ctx)
	suite.Require().NoError(err)
	suite.container = container

	db, err := gorm.Open(postgresdriver.Open(container.DSN), &gorm.Config{})
	suite.Require().NoError(err)
	suite.db = db

	suite.repository = NewGormStockRepository(db)
	suite.Require().NoError(suite.repository.Migrate(ctx))
}

func (suite *StockRepositoryIntegrationTestSuite) SetupTest() {
	suite.Require().NoError(suite.db.Exec("TRUNCATE TABLE warehouse_stock, store_stock").Error)
}

func (suite *StockRepositoryIntegrationTestSuite) TearDownSuite() {
	if suite.container != nil {
		suite.Require().NoError(suite.container.Close(context.Background()))
	}
}

func (suite *StockRepositoryIntegrationTestSuite) TestRestockAndReserve() {
	ctx := context.Background()

	row, err := suite.repository.Restock(ctx, "WH1", "P1", 10)
	suite.Require().NoError(err)
	suite.Equal(10, row.Quantity)

	row, err = suite.repository.Restock(ctx, "WH1", "P1", 5)
	suite.Require().NoError(err)
	suite.Equal(15, row.Quantity)

	suite.Require().NoError(suite.repository.Reserve(ctx, "WH1", "P1", 15))
	suite.ErrorIs(suite.repository.Reserve(ctx, "WH1", "P1", 1), domain.ErrInsufficientStock)
	suite.ErrorIs(suite.repository.Reserve(ctx, "WH9", "P1", 1), domain.ErrInsufficientStock)

	row, err = suite.repository.GetWarehouseStock(ctx, "WH1", "P1")
	suite.Require().NoError(err)
	suite.Equal(0, row.Quantity)
}

func (suite *StockRepositoryIntegrationTestSuite) TestConcurrentReserve() {
	ctx := context.Background()
	_, err := suite.repository.Restock(ctx, "WH1", "P1", 10)
	suite.Require().NoError(err)

	const k = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, insufficient := 0, 0
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := suite.repository.Reserve(ctx, "WH1", "P1", 10)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if err == domain.ErrInsufficientStock {
				insufficient++
			}
		}()
	}
	wg.Wait()

	suite.Equal(1, succeeded)
	suite.Equal(k-1, insufficient)
}

func (suite *StockRepositoryIntegrationTestSuite) TestReserveAny() {
	ctx := context.Background()
	_, err := suite.repository.Restock(ctx, "WH1", "P1", 3)
	suite.Require().NoError(err)
	_, err = suite.repository.Restock(ctx, "WH2", "P1", 7)
	suite.Require().NoError(err)

	warehouseID, err := suite.repository.ReserveAny(ctx, "P1", 5)
	suite.Require().NoError(err)
	suite.Equal("WH2", warehouseID)

	_, err = suite.repository.ReserveAny(ctx, "P1", 5)
	suite.ErrorIs(err, domain.ErrInsufficientStock)

	suite.Require().NoError(suite.repository.Release(ctx, "WH2", "P1", 5))
	row, err := suite.repository.GetWarehouseStock(ctx, "WH2", "P1")
	suite.Require().NoError(err)
	suite.Equal(7, row.Quantity)
}

func (suite *StockRepositoryIntegrationTestSuite) TestReserveAny_WaitsForLockedRow() {
	ctx := context.Background()
	_, err := suite.repository.Restock(ctx, "WH1", "P1", 0)
	suite.Require().NoError(err)
	_, err = suite.repository.Restock(ctx, "WH2", "P1", 20)
	suite.Require().NoError(err)

	// A concurrent reservation holds the WH2 row.
	tx := suite.db.Begin()
	suite.Require().NoError(tx.Error)
	suite.Require().NoError(tx.Exec(
		"UPDATE warehouse_stock SET quantity = quantity - 10 WHERE warehouse_id = ? AND product_id = ?", "WH2", "P1",
	).Error)

	type reservation struct {
		warehouseID string
		err         error
	}
	done := make(chan reservation, 1)
	go func() {
		warehouseID, err := suite.repository.ReserveAny(ctx, "P1", 10)
		done <- reservation{warehouseID, err}
	}()

	select {
	case res := <-done:
		suite.Require().Failf("reservation did not wait for the locked row", "got %q, %v", res.warehouseID, res.err)
	case <-time.After(200 * time.Millisecond):
	}

	suite.Require().NoError(tx.Commit().Error)

	select {
	case res := <-done:
		suite.Require().NoError(res.err)
		suite.Equal("WH2", res.warehouseID)
	case <-time.After(10 * time.Second):
		suite.Require().Fail("reservation still blocked after commit")
	}

	row, err := suite.repository.GetWarehouseStock(ctx, "WH2", "P1")
	suite.Require().NoError(err)
	suite.Equal(0, row.Quantity)
}

func (suite *StockRepositoryIntegrationTestSuite) TestConcurrentReserveAny() {
	ctx := context.Background()
	_, err := suite.repository.Restock(ctx, "WH1", "P1", 0)
	suite.Require().NoError(err)
	_, err = suite.repository.Restock(ctx, "WH2", "P1", 20)
	suite.Require().NoError(err)

	const k = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, insufficient := 0, 0
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			warehouseID, err := suite.repository.ReserveAny(ctx, "P1", 5)
			mu.Lock()
			defer mu.Unlock()
			if err == nil && warehouseID == "WH2" {
				succeeded++
			} else if err == domain.ErrInsufficientStock {
				insufficient++
			}
		}()
	}
	wg.Wait()

	suite.Equal(4, succeeded)
	suite.Equal(k-4, insufficient)

	row, err := suite.repository.GetWarehouseStock(ctx, "WH2", "P1")
	suite.Require().NoError(err)
	suite.Equal(0, row.Quantity)
}

func (suite *StockRepositoryIntegrationTestSuite) TestReceiveAndRevert() {
	ctx := context.Background()

	suite.Require().NoError(suite.repository.Receive(ctx, "S1", "P1", 10))
	suite.Require().NoError(suite.repository.Receive(ctx, "S1", "P1", 2))
	suite.Require().NoError(suite.repository.RevertReceipt(ctx, "S1", "P1", 2))
	suite.ErrorIs(suite.repository.RevertReceipt(ctx, "S1", "P1", 20), domain.ErrStockNotFound)

	row, err := suite.repository.GetStoreStock(ctx, "S1", "P1")
	suite.Require().NoError(err)
	suite.Equal(10, row.Quantity)

	missing, err := suite.repository.GetStoreStock(ctx, "S2", "P1")
	suite.NoError(err)
	suite.Nil(missing)
}
