package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wms-platform/replenishment-service/pkg/cloudevents"
	"github.com/wms-platform/replenishment-service/pkg/logging"
)

const alertsTopic = "replenishment.low-stock-alerts"

// scriptedReader serves a fixed list of messages and records handling and
// commits in one ordered log.
type scriptedReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	log       []string
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
		r.log = append(r.log, fmt.Sprintf("commit:%d", m.Offset))
	}
	return nil
}

func (r *scriptedReader) Close() error { return nil }

func (r *scriptedReader) record(entry string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, entry)
}

func (r *scriptedReader) snapshot() (log []string, committed []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.log...), append([]int64(nil), r.committed...)
}

func alertMessage(t *testing.T, orderID string, offset int64) kafka.Message {
	t.Helper()
	factory := cloudevents.NewEventFactory("/replenishment-service")
	event := factory.CreateOrderEvent(context.Background(), "replenishment.alert.raised", orderID, "S1", map[string]interface{}{
		"orderId":           orderID,
		"storeId":           "S1",
		"productId":         "P1",
		"requestedQuantity": 5,
	})
	msg, err := buildMessage(event)
	require.NoError(t, err)
	msg.Topic = alertsTopic
	msg.Offset = offset
	return msg
}

func newScriptedConsumer(reader *scriptedReader, handler EventHandler) *Consumer {
	c := NewConsumer(&Config{
		ConsumerGroup:            "replenishment-lowstock-group",
		HandlerRetryInitialDelay: time.Millisecond,
		HandlerRetryMaxDelay:     2 * time.Millisecond,
	}, logging.NewNop())
	c.SubscribeAll(alertsTopic, handler)
	c.readers[alertsTopic] = reader
	return c
}

func TestConsumer_RetriesFailedMessageBeforeCommittingLaterOffsets(t *testing.T) {
	reader := &scriptedReader{pending: []kafka.Message{
		alertMessage(t, "REP-10", 10),
		alertMessage(t, "REP-11", 11),
	}}

	failures := 2
	c := newScriptedConsumer(reader, func(ctx context.Context, event *cloudevents.CloudEvent) error {
		reader.record("handle:" + event.OrderID)
		if event.OrderID == "REP-10" && failures > 0 {
			failures--
			return errors.New("ledger unavailable")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool {
		_, committed := reader.snapshot()
		return len(committed) == 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	log, committed := reader.snapshot()
	assert.Equal(t, []int64{10, 11}, committed)
	assert.Equal(t, []string{
		"handle:REP-10",
		"handle:REP-10",
		"handle:REP-10",
		"commit:10",
		"handle:REP-11",
		"commit:11",
	}, log)
}

func TestConsumer_ShutdownLeavesFailingMessageUncommitted(t *testing.T) {
	reader := &scriptedReader{pending: []kafka.Message{
		alertMessage(t, "REP-10", 10),
		alertMessage(t, "REP-11", 11),
	}}

	var mu sync.Mutex
	attempts := 0
	c := newScriptedConsumer(reader, func(ctx context.Context, event *cloudevents.CloudEvent) error {
		reader.record("handle:" + event.OrderID)
		if event.OrderID == "REP-10" {
			mu.Lock()
			attempts++
			mu.Unlock()
			return errors.New("ledger unavailable")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 3
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	log, committed := reader.snapshot()
	assert.Empty(t, committed)
	assert.NotContains(t, log, "handle:REP-11")
}

func TestConsumer_CommitsUnparseableMessage(t *testing.T) {
	reader := &scriptedReader{pending: []kafka.Message{
		{Topic: alertsTopic, Offset: 7, Value: []byte("not json")},
		alertMessage(t, "REP-8", 8),
	}}
	c := newScriptedConsumer(reader, func(ctx context.Context, event *cloudevents.CloudEvent) error {
		reader.record("handle:" + event.OrderID)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool {
		_, committed := reader.snapshot()
		return len(committed) == 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	log, _ := reader.snapshot()
	assert.Equal(t, []string{"commit:7", "handle:REP-8", "commit:8"}, log)
}
