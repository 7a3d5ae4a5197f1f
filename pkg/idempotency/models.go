package idempotency

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProcessedMessage records that a consumer group finished handling one
// CloudEvent. The (messageId, topic, consumerGroup) triple is unique.
type ProcessedMessage struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	MessageID     string             `bson:"messageId"`
	Topic         string             `bson:"topic"`
	EventType     string             `bson:"eventType"`
	ConsumerGroup string             `bson:"consumerGroup"`
	ServiceID     string             `bson:"serviceId"`

	ProcessedAt time.Time `bson:"processedAt"`
	ExpiresAt   time.Time `bson:"expiresAt"` // TTL index

	CorrelationID string `bson:"correlationId,omitempty"`
	OrderID       string `bson:"orderId,omitempty"`
}
