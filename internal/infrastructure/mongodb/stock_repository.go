package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/replenishment-service/internal/domain"
	"github.com/wms-platform/replenishment-service/pkg/mongodb"
)

const (
	warehouseStockCollection = "warehouse_stock"
	storeStockCollection     = "store_stock"
)

// StockRepository implements domain.StockRepository using MongoDB.
// Decrements are UpdateOne calls guarded by quantity >= q, so the check and
// the write happen in one server-side operation.
type StockRepository struct {
	warehouse *mongo.Collection
	store     *mongo.Collection
	now       func() time.Time
}

// NewStockRepository creates a new StockRepository
func NewStockRepository(db *mongo.Database) *StockRepository {
	return &StockRepository{
		warehouse: db.Collection(warehouseStockCollection),
		store:     db.Collection(storeStockCollection),
		now:       mongodb.Now,
	}
}

// EnsureIndexes creates the unique keys both collections are upserted on.
func (r *StockRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.warehouse.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "warehouseId", Value: 1}, {Key: "productId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("idx_warehouse_product_unique"),
	})
	if err != nil {
		return wrapErr("create warehouse stock index", err)
	}

	_, err = r.warehouse.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "productId", Value: 1}, {Key: "warehouseId", Value: 1}},
		Options: options.Index().SetName("idx_product_warehouse"),
	})
	if err != nil {
		return wrapErr("create warehouse product index", err)
	}

	_, err = r.store.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "storeId", Value: 1}, {Key: "productId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("idx_store_product_unique"),
	})
	if err != nil {
		return wrapErr("create store stock index", err)
	}
	return nil
}

func (r *StockRepository) Reserve(ctx context.Context, warehouseID, productID string, quantity int) error {
	filter := bson.M{
		"warehouseId": warehouseID,
		"productId":   productID,
		"quantity":    bson.M{"$gte": quantity},
	}
	result, err := r.warehouse.UpdateOne(ctx, filter, r.increment(-quantity))
	if err != nil {
		return wrapErr("reserve stock", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrInsufficientStock
	}
	return nil
}

func (r *StockRepository) ReserveAny(ctx context.Context, productID string, quantity int) (string, error) {
	filter := bson.M{
		"productId": productID,
		"quantity":  bson.M{"$gte": quantity},
	}
	opts := options.FindOneAndUpdate().SetSort(mongodb.SortAscending("warehouseId"))

	var row domain.WarehouseStock
	err := r.warehouse.FindOneAndUpdate(ctx, filter, r.increment(-quantity), opts).Decode(&row)
	if err != nil {
		if mongodb.IsNoDocuments(err) {
			return "", domain.ErrInsufficientStock
		}
		return "", wrapErr("reserve stock", err)
	}
	return row.WarehouseID, nil
}

func (r *StockRepository) Release(ctx context.Context, warehouseID, productID string, quantity int) error {
	_, err := r.warehouse.UpdateOne(ctx,
		bson.M{"warehouseId": warehouseID, "productId": productID},
		r.increment(quantity),
		options.Update().SetUpsert(true),
	)
	return wrapErr("release stock", err)
}

func (r *StockRepository) Receive(ctx context.Context, storeID, productID string, quantity int) error {
	_, err := r.store.UpdateOne(ctx,
		bson.M{"storeId": storeID, "productId": productID},
		r.increment(quantity),
		options.Update().SetUpsert(true),
	)
	return wrapErr("receive stock", err)
}

func (r *StockRepository) RevertReceipt(ctx context.Context, storeID, productID string, quantity int) error {
	filter := bson.M{
		"storeId":   storeID,
		"productId": productID,
		"quantity":  bson.M{"$gte": quantity},
	}
	result, err := r.store.UpdateOne(ctx, filter, r.increment(-quantity))
	if err != nil {
		return wrapErr("revert receipt", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrStockNotFound
	}
	return nil
}

func (r *StockRepository) Restock(ctx context.Context, warehouseID, productID string, quantity int) (*domain.WarehouseStock, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var row domain.WarehouseStock
	err := r.warehouse.FindOneAndUpdate(ctx,
		bson.M{"warehouseId": warehouseID, "productId": productID},
		r.increment(quantity),
		opts,
	).Decode(&row)
	if err != nil {
		return nil, wrapErr("restock", err)
	}
	return &row, nil
}

func (r *StockRepository) GetWarehouseStock(ctx context.Context, warehouseID, productID string) (*domain.WarehouseStock, error) {
	var row domain.WarehouseStock
	err := r.warehouse.FindOne(ctx, bson.M{"warehouseId": warehouseID, "productId": productID}).Decode(&row)
	if err != nil {
		if mongodb.IsNoDocuments(err) {
			return nil, nil
		}
		return nil, wrapErr("get warehouse stock", err)
	}
	return &row, nil
}

func (r *StockRepository) GetStoreStock(ctx context.Context, storeID, productID string) (*domain.StoreStock, error) {
	var row domain.StoreStock
	err := r.store.FindOne(ctx, bson.M{"storeId": storeID, "productId": productID}).Decode(&row)
	if err != nil {
		if mongodb.IsNoDocuments(err) {
			return nil, nil
		}
		return nil, wrapErr("get store stock", err)
	}
	return &row, nil
}

func (r *StockRepository) increment(delta int) bson.M {
	return bson.M{
		"$inc": bson.M{"quantity": delta},
		"$set": bson.M{"updatedAt": r.now()},
	}
}
