package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wms-platform/replenishment-service/pkg/cloudevents"
	"github.com/wms-platform/replenishment-service/pkg/logging"
	"github.com/wms-platform/replenishment-service/pkg/resilience"
)

// EventHandler is a function that handles a CloudEvent
type EventHandler func(ctx context.Context, event *cloudevents.CloudEvent) error

// messageReader is the part of *kafka.Reader the consume loop uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads CloudEvents from Kafka topics within one consumer group.
// A message is committed only after its handler returns nil. A failing
// handler is retried on the same message with capped backoff, so no later
// offset of the partition is committed past it. On shutdown the message
// stays uncommitted and is redelivered to the next group member.
type Consumer struct {
	config   *Config
	mu       sync.Mutex
	readers  map[string]messageReader
	handlers map[string]map[string]EventHandler // topic -> eventType -> handler
	logger   *logging.Logger
	wg       sync.WaitGroup
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(config *Config, logger *logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Consumer{
		config:   config,
		readers:  make(map[string]messageReader),
		handlers: make(map[string]map[string]EventHandler),
		logger:   logger.WithComponent("kafka-consumer"),
	}
}

// GroupID returns the consumer group the consumer commits offsets for.
func (c *Consumer) GroupID() string {
	return c.config.ConsumerGroup
}

// Subscribe subscribes to a topic with a handler for a specific event type
func (c *Consumer) Subscribe(topic string, eventType string, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.handlers[topic]; !exists {
		c.handlers[topic] = make(map[string]EventHandler)
	}
	c.handlers[topic][eventType] = handler
}

// SubscribeAll subscribes to all event types on a topic with a single handler
func (c *Consumer) SubscribeAll(topic string, handler EventHandler) {
	c.Subscribe(topic, "*", handler)
}

func (c *Consumer) getReader(topic string) messageReader {
	c.mu.Lock()
	defer c.mu.Unlock()

	if reader, exists := c.readers[topic]; exists {
		return reader
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.config.Brokers,
		GroupID:        c.config.ConsumerGroup,
		Topic:          topic,
		Dialer:         c.config.Dialer(),
		MinBytes:       c.config.MinBytes,
		MaxBytes:       c.config.MaxBytes,
		MaxWait:        c.config.MaxWait,
		CommitInterval: c.config.CommitInterval,
		StartOffset:    c.config.StartOffset,
	})

	c.readers[topic] = reader
	return reader
}

// Start consumes every subscribed topic until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}
	c.mu.Unlock()

	for _, topic := range topics {
		reader := c.getReader(topic)
		c.wg.Add(1)
		go func(topic string) {
			defer c.wg.Done()
			c.consumeTopic(ctx, topic, reader)
		}(topic)
	}

	<-ctx.Done()
	c.wg.Wait()
	return ctx.Err()
}

func (c *Consumer) consumeTopic(ctx context.Context, topic string, reader messageReader) {
	c.logger.Info("Starting consumer for topic", "topic", topic, "group", c.config.ConsumerGroup)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Stopping consumer for topic", "topic", topic)
				return
			}
			c.logger.Error("Error fetching message", "topic", topic, "error", err)
			continue
		}

		event, err := ParseMessage(msg)
		if err != nil {
			c.logger.Error("Error parsing message", "topic", topic, "offset", msg.Offset, "error", err)
			// Poison messages are committed so they do not block the partition.
			if commitErr := reader.CommitMessages(ctx, msg); commitErr != nil {
				c.logger.Error("Error committing message", "topic", topic, "error", commitErr)
			}
			continue
		}

		c.logger.KafkaConsume(ctx, topic, event.Type, msg.Partition, msg.Offset)

		if err := resilience.Retry(ctx, c.handlerRetry(topic, event), func() error {
			return c.handleEvent(ctx, topic, event)
		}); err != nil {
			c.logger.Info("Stopping consumer for topic, message left uncommitted",
				"topic", topic,
				"eventId", event.ID,
				"offset", msg.Offset,
			)
			return
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Error committing message", "topic", topic, "error", err)
		}
	}
}

// handlerRetry retries until the handler succeeds or ctx is done.
func (c *Consumer) handlerRetry(topic string, event *cloudevents.CloudEvent) *resilience.RetryConfig {
	initial := c.config.HandlerRetryInitialDelay
	if initial <= 0 {
		initial = resilience.DefaultRetryInitialDelay
	}
	maxDelay := c.config.HandlerRetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = resilience.DefaultRetryMaxDelay
	}
	return &resilience.RetryConfig{
		MaxAttempts:   0,
		InitialDelay:  initial,
		MaxDelay:      maxDelay,
		BackoffFactor: resilience.DefaultRetryBackoffFactor,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			c.logger.Error("Error handling event, retrying",
				"topic", topic,
				"eventType", event.Type,
				"eventId", event.ID,
				"attempt", attempt,
				"retryIn", delay.String(),
				"error", err,
			)
		},
	}
}

// ParseMessage parses a Kafka message into a CloudEvent. Extension headers
// win over the members embedded in the JSON body.
func ParseMessage(msg kafka.Message) (*cloudevents.CloudEvent, error) {
	var event cloudevents.CloudEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	for _, header := range msg.Headers {
		switch header.Key {
		case "ce-" + cloudevents.ExtCorrelationID:
			event.CorrelationID = string(header.Value)
		case "ce-" + cloudevents.ExtOrderID:
			event.OrderID = string(header.Value)
		case "ce-" + cloudevents.ExtStoreID:
			event.StoreID = string(header.Value)
		case "ce-" + cloudevents.ExtTraceParent:
			event.TraceParent = string(header.Value)
		case "ce-" + cloudevents.ExtTraceState:
			event.TraceState = string(header.Value)
		}
	}

	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *Consumer) handleEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	c.mu.Lock()
	handlers, exists := c.handlers[topic]
	var handler EventHandler
	if exists {
		handler = handlers[event.Type]
		if handler == nil {
			handler = handlers["*"]
		}
	}
	c.mu.Unlock()

	if !exists {
		return fmt.Errorf("no handlers registered for topic %s", topic)
	}
	if handler == nil {
		c.logger.Warn("No handler found for event type", "topic", topic, "eventType", event.Type)
		return nil
	}

	ctx = logging.ContextWithEventID(ctx, event.ID)
	if event.CorrelationID != "" {
		ctx = logging.ContextWithCorrelationID(ctx, event.CorrelationID)
		ctx = cloudevents.ContextWithCorrelationID(ctx, event.CorrelationID)
	}

	return handler(ctx, event)
}

// Close closes all readers
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for topic, reader := range c.readers {
		if err := reader.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close reader for topic %s: %w", topic, err)
		}
	}
	return lastErr
}
