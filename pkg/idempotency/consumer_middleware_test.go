package idempotency_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wms-platform/replenishment-service/pkg/cloudevents"
	"github.com/wms-platform/replenishment-service/pkg/idempotency"
)

func alertEvent(id string) *cloudevents.CloudEvent {
	return &cloudevents.CloudEvent{
		SpecVersion: cloudevents.SpecVersion,
		ID:          id,
		Type:        "replenishment.alert.raised",
		Source:      "/inventory",
	}
}

func TestDeduplicatingHandler_SkipsRedelivery(t *testing.T) {
	repo := idempotency.NewMemoryMessageRepository()
	cfg := idempotency.DefaultConsumerConfig("replenishment-service", "replenishment.low-stock-alerts", "replenishment-lowstock-group", repo)

	calls := 0
	handler := idempotency.DeduplicatingHandler(cfg, func(context.Context, *cloudevents.CloudEvent) error {
		calls++
		return nil
	})

	ctx := context.Background()
	require.NoError(t, handler(ctx, alertEvent("evt-1")))
	require.NoError(t, handler(ctx, alertEvent("evt-1")))
	require.NoError(t, handler(ctx, alertEvent("evt-2")))

	assert.Equal(t, 2, calls)
}

func TestDeduplicatingHandler_FailedEventIsRetried(t *testing.T) {
	repo := idempotency.NewMemoryMessageRepository()
	cfg := idempotency.DefaultConsumerConfig("replenishment-service", "replenishment.low-stock-alerts", "replenishment-lowstock-group", repo)

	fail := true
	calls := 0
	handler := idempotency.DeduplicatingHandler(cfg, func(context.Context, *cloudevents.CloudEvent) error {
		calls++
		if fail {
			return errors.New("store unavailable")
		}
		return nil
	})

	ctx := context.Background()
	assert.Error(t, handler(ctx, alertEvent("evt-1")))

	processed, err := repo.IsProcessed(ctx, "evt-1", cfg.Topic, cfg.ConsumerGroup)
	require.NoError(t, err)
	assert.False(t, processed)

	fail = false
	require.NoError(t, handler(ctx, alertEvent("evt-1")))
	assert.Equal(t, 2, calls)
}

func TestDeduplicatingHandler_ScopedByConsumerGroup(t *testing.T) {
	repo := idempotency.NewMemoryMessageRepository()
	calls := 0
	count := func(context.Context, *cloudevents.CloudEvent) error {
		calls++
		return nil
	}

	a := idempotency.DeduplicatingHandler(idempotency.DefaultConsumerConfig("svc", "t", "group-a", repo), count)
	b := idempotency.DeduplicatingHandler(idempotency.DefaultConsumerConfig("svc", "t", "group-b", repo), count)

	require.NoError(t, a(context.Background(), alertEvent("evt-1")))
	require.NoError(t, b(context.Background(), alertEvent("evt-1")))
	assert.Equal(t, 2, calls)
}

func TestMemoryMessageRepository_MarkTwice(t *testing.T) {
	repo := idempotency.NewMemoryMessageRepository()
	msg := &idempotency.ProcessedMessage{MessageID: "m", Topic: "t", ConsumerGroup: "g"}

	require.NoError(t, repo.MarkProcessed(context.Background(), msg))
	assert.ErrorIs(t, repo.MarkProcessed(context.Background(), msg), idempotency.ErrMessageAlreadyProcessed)
}
