package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/replenishment-service/internal/domain"
	"github.com/wms-platform/replenishment-service/pkg/mongodb"
)

const ordersCollection = "replenishment_orders"

// ReplenishmentRepository implements domain.OrderRepository using MongoDB.
// Every mutation is a single UpdateOne filtered on orderId and version.
type ReplenishmentRepository struct {
	collection *mongo.Collection
}

// NewReplenishmentRepository creates a new ReplenishmentRepository
func NewReplenishmentRepository(db *mongo.Database) *ReplenishmentRepository {
	return &ReplenishmentRepository{collection: db.Collection(ordersCollection)}
}

// EnsureIndexes creates the lookup and listing indexes.
func (r *ReplenishmentRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "orderId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_orderId_unique"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("idx_createdAt"),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "productId", Value: 1},
				{Key: "createdAt", Value: 1},
			},
			Options: options.Index().SetName("idx_status_productId_createdAt"),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return wrapErr("create order indexes", err)
	}
	return nil
}

// Create inserts a new order.
func (r *ReplenishmentRepository) Create(ctx context.Context, order *domain.ReplenishmentOrder) error {
	if _, err := r.collection.InsertOne(ctx, order); err != nil {
		if mongodb.IsDuplicateKey(err) {
			return fmt.Errorf("%w: %s", domain.ErrOrderExists, order.OrderID)
		}
		return wrapErr("insert order", err)
	}
	return nil
}

// FindByID retrieves an order by its orderId
func (r *ReplenishmentRepository) FindByID(ctx context.Context, orderID string) (*domain.ReplenishmentOrder, error) {
	var order domain.ReplenishmentOrder
	err := r.collection.FindOne(ctx, bson.M{"orderId": orderID}).Decode(&order)
	if err != nil {
		if mongodb.IsNoDocuments(err) {
			return nil, nil
		}
		return nil, wrapErr("find order", err)
	}
	return &order, nil
}

// FindRecent lists orders by creation time.
func (r *ReplenishmentRepository) FindRecent(ctx context.Context, filter domain.ListFilter) ([]*domain.ReplenishmentOrder, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.ProductID != "" {
		query["productId"] = filter.ProductID
	}

	sort := mongodb.SortDescending("createdAt")
	if filter.OldestFirst {
		sort = mongodb.SortAscending("createdAt")
	}
	opts := options.Find().SetSort(sort)
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, wrapErr("list orders", err)
	}
	defer cursor.Close(ctx)

	orders := make([]*domain.ReplenishmentOrder, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, wrapErr("decode orders", err)
	}
	return orders, nil
}

// AcquireLease marks the order as mid-transition. A lease older than ttl
// counts as absent.
func (r *ReplenishmentRepository) AcquireLease(ctx context.Context, orderID string, version int64, stage domain.Status, now time.Time, ttl time.Duration) error {
	filter := bson.M{
		"orderId": orderID,
		"version": version,
		"$or": bson.A{
			bson.M{"pendingTransition": nil},
			bson.M{"pendingTransition.acquiredAt": bson.M{"$lte": now.Add(-ttl)}},
		},
	}
	update := bson.M{
		"$set": bson.M{"pendingTransition": domain.PendingTransition{Stage: stage, AcquiredAt: now}},
		"$inc": bson.M{"version": 1},
	}
	return r.conditionalUpdate(ctx, "acquire lease", filter, update)
}

// ReleaseLease drops a lease held at version.
func (r *ReplenishmentRepository) ReleaseLease(ctx context.Context, orderID string, version int64) error {
	filter := bson.M{"orderId": orderID, "version": version}
	update := bson.M{
		"$unset": bson.M{"pendingTransition": ""},
		"$inc":   bson.M{"version": 1},
	}
	return r.conditionalUpdate(ctx, "release lease", filter, update)
}

// Commit applies a transition: status and sub-record set, history entry
// pushed, lease cleared, version bumped. updatedAt only moves forward.
func (r *ReplenishmentRepository) Commit(ctx context.Context, orderID string, version int64, t domain.Transition) error {
	filter := bson.M{
		"orderId": orderID,
		"version": version,
		"status":  t.From,
	}

	set := bson.M{"status": t.To}
	if t.TransferOrder != nil {
		set["transferOrder"] = t.TransferOrder
	}
	if t.Shipment != nil {
		set["shipment"] = t.Shipment
	}

	update := bson.M{
		"$set":   set,
		"$max":   bson.M{"updatedAt": t.At},
		"$push":  bson.M{"history": t.HistoryEntry()},
		"$unset": bson.M{"pendingTransition": ""},
		"$inc":   bson.M{"version": 1},
	}
	return r.conditionalUpdate(ctx, "commit "+string(t.To), filter, update)
}

func (r *ReplenishmentRepository) conditionalUpdate(ctx context.Context, op string, filter, update bson.M) error {
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return wrapErr(op, err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}
