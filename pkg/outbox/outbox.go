package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/wms-platform/replenishment-service/pkg/cloudevents"
)

// DefaultMaxRetries bounds how often the relay retries one event.
const DefaultMaxRetries = 10

// OutboxEvent is a CloudEvent parked in MongoDB until the relay hands it to Kafka.
type OutboxEvent struct {
	ID          string          `bson:"_id" json:"id"`
	AggregateID string          `bson:"aggregateId" json:"aggregateId"`
	EventType   string          `bson:"eventType" json:"eventType"`
	Topic       string          `bson:"topic" json:"topic"`
	Payload     json.RawMessage `bson:"payload" json:"payload"`
	CreatedAt   time.Time       `bson:"createdAt" json:"createdAt"`
	PublishedAt *time.Time      `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	RetryCount  int             `bson:"retryCount" json:"retryCount"`
	LastError   string          `bson:"lastError,omitempty" json:"lastError,omitempty"`
	MaxRetries  int             `bson:"maxRetries" json:"maxRetries"`
}

// NewOutboxEvent serializes a CloudEvent for later relay to topic.
// Extension attributes are carried in the payload so the relayed message
// keeps its partition key and trace context.
func NewOutboxEvent(topic string, event *cloudevents.CloudEvent) (*OutboxEvent, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	aggregateID := event.OrderID
	if aggregateID == "" {
		aggregateID = event.Subject
	}

	return &OutboxEvent{
		ID:          uuid.NewString(),
		AggregateID: aggregateID,
		EventType:   event.Type,
		Topic:       topic,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
		MaxRetries:  DefaultMaxRetries,
	}, nil
}

// IsPublished checks if the event has been published
func (e *OutboxEvent) IsPublished() bool {
	return e.PublishedAt != nil
}

// ShouldRetry checks if the event should be retried
func (e *OutboxEvent) ShouldRetry() bool {
	return !e.IsPublished() && e.RetryCount < e.MaxRetries
}

// ToCloudEvent decodes the stored envelope.
func (e *OutboxEvent) ToCloudEvent() (*cloudevents.CloudEvent, error) {
	var event cloudevents.CloudEvent
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
