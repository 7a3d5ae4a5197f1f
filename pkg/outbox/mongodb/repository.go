package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/wms-platform/replenishment-service/pkg/outbox"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollectionName is the default name for the outbox collection
const DefaultCollectionName = "outbox_events"

// publishedTTL is how long relayed events are kept for inspection.
const publishedTTL = 7 * 24 * time.Hour

// OutboxRepository implements outbox.Repository for MongoDB
type OutboxRepository struct {
	collection *mongo.Collection
}

// NewOutboxRepository creates a new MongoDB outbox repository
func NewOutboxRepository(db *mongo.Database) *OutboxRepository {
	return &OutboxRepository{
		collection: db.Collection(DefaultCollectionName),
	}
}

// Save saves an outbox event
func (r *OutboxRepository) Save(ctx context.Context, event *outbox.OutboxEvent) error {
	if _, err := r.collection.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}

// FindUnpublished retrieves unpublished events up to the specified limit
func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	filter := bson.M{
		"publishedAt": bson.M{"$exists": false},
		"$expr":       bson.M{"$lt": bson.A{"$retryCount", "$maxRetries"}},
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find unpublished events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*outbox.OutboxEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode outbox events: %w", err)
	}

	return events, nil
}

// MarkPublished marks an event as published
func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": eventID},
		bson.M{"$set": bson.M{"publishedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark event as published: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("event not found: %s", eventID)
	}
	return nil
}

// IncrementRetry increments the retry count and updates last error
func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": eventID},
		bson.M{
			"$inc": bson.M{"retryCount": 1},
			"$set": bson.M{"lastError": errorMsg},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("event not found: %s", eventID)
	}
	return nil
}

// FindByAggregateID retrieves all events for a specific aggregate
func (r *OutboxRepository) FindByAggregateID(ctx context.Context, aggregateID string) ([]*outbox.OutboxEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"aggregateId": aggregateID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find events by aggregate ID: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*outbox.OutboxEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode outbox events: %w", err)
	}

	return events, nil
}

// EnsureIndexes creates the relay and TTL indexes.
func (r *OutboxRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "publishedAt", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_publishedAt_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "aggregateId", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_aggregateId_createdAt"),
		},
		{
			// Unpublished documents have no publishedAt and are never expired.
			Keys: bson.D{{Key: "publishedAt", Value: 1}},
			Options: options.Index().
				SetName("idx_publishedAt_ttl").
				SetExpireAfterSeconds(int32(publishedTTL.Seconds())),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
