package outbox

import "context"

// Repository defines the interface for outbox event persistence
type Repository interface {
	// Save saves an outbox event
	Save(ctx context.Context, event *OutboxEvent) error

	// FindUnpublished returns retryable unpublished events, oldest first.
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)

	// MarkPublished marks an event as published
	MarkPublished(ctx context.Context, eventID string) error

	// IncrementRetry increments the retry count and updates last error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error

	// FindByAggregateID retrieves all events for a specific aggregate
	FindByAggregateID(ctx context.Context, aggregateID string) ([]*OutboxEvent, error)
}
