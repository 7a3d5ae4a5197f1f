package idempotency

import (
	"context"
	"sync"
	"time"
)

// MessageRepository manages processed messages for Kafka consumers
type MessageRepository interface {
	// MarkProcessed records msg. Returns ErrMessageAlreadyProcessed when the
	// triple was recorded before.
	MarkProcessed(ctx context.Context, msg *ProcessedMessage) error

	// IsProcessed checks if a message has been processed
	IsProcessed(ctx context.Context, messageID, topic, consumerGroup string) (bool, error)

	// EnsureIndexes ensures that all required indexes are created
	EnsureIndexes(ctx context.Context) error
}

type messageKey struct {
	messageID     string
	topic         string
	consumerGroup string
}

// MemoryMessageRepository keeps the ledger in process memory. Entries are
// lost on restart.
type MemoryMessageRepository struct {
	mu       sync.Mutex
	messages map[messageKey]time.Time
}

// NewMemoryMessageRepository returns an empty in-memory ledger.
func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{messages: make(map[messageKey]time.Time)}
}

func (r *MemoryMessageRepository) MarkProcessed(_ context.Context, msg *ProcessedMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := messageKey{msg.MessageID, msg.Topic, msg.ConsumerGroup}
	if _, ok := r.messages[key]; ok {
		return ErrMessageAlreadyProcessed
	}
	r.messages[key] = msg.ExpiresAt
	return nil
}

func (r *MemoryMessageRepository) IsProcessed(_ context.Context, messageID, topic, consumerGroup string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	expiresAt, ok := r.messages[messageKey{messageID, topic, consumerGroup}]
	if !ok {
		return false, nil
	}
	if !expiresAt.IsZero() && time.Now().After(expiresAt) {
		delete(r.messages, messageKey{messageID, topic, consumerGroup})
		return false, nil
	}
	return true, nil
}

func (r *MemoryMessageRepository) EnsureIndexes(context.Context) error { return nil }
