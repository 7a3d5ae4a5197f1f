package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wms-platform/replenishment-service/pkg/cloudevents"
)

// Producer handles publishing messages to Kafka topics
type Producer struct {
	mu      sync.Mutex
	writers map[string]*kafka.Writer
	config  *Config
}

// NewProducer creates a new Kafka producer
func NewProducer(config *Config) *Producer {
	return &Producer{
		writers: make(map[string]*kafka.Writer),
		config:  config,
	}
}

// getWriter returns a writer for the specified topic, creating one if necessary
func (p *Producer) getWriter(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, exists := p.writers[topic]; exists {
		return writer
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.config.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              p.config.BatchSize,
		BatchTimeout:           p.config.BatchTimeout,
		WriteTimeout:           p.config.WriteTimeout,
		RequiredAcks:           kafka.RequiredAcks(p.config.RequiredAcks),
		Transport:              p.config.Transport(),
		AllowAutoTopicCreation: true,
	}

	p.writers[topic] = writer
	return writer
}

// buildMessage turns an envelope into a Kafka message. The order id is the
// key so every event of one order lands on the same partition.
func buildMessage(event *cloudevents.CloudEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	key := event.OrderID
	if key == "" {
		key = event.Subject
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "ce-specversion", Value: []byte(event.SpecVersion)},
			{Key: "ce-type", Value: []byte(event.Type)},
			{Key: "ce-source", Value: []byte(event.Source)},
			{Key: "ce-id", Value: []byte(event.ID)},
			{Key: "ce-time", Value: []byte(event.Time.Format(time.RFC3339Nano))},
			{Key: "content-type", Value: []byte(event.DataContentType)},
		},
		Time: event.Time,
	}

	optional := []struct {
		name  string
		value string
	}{
		{cloudevents.ExtCorrelationID, event.CorrelationID},
		{cloudevents.ExtOrderID, event.OrderID},
		{cloudevents.ExtStoreID, event.StoreID},
		{cloudevents.ExtTraceParent, event.TraceParent},
		{cloudevents.ExtTraceState, event.TraceState},
	}
	for _, h := range optional {
		if h.value != "" {
			msg.Headers = append(msg.Headers, kafka.Header{Key: "ce-" + h.name, Value: []byte(h.value)})
		}
	}

	return msg, nil
}

// PublishEvent publishes a CloudEvent to the specified topic
func (p *Producer) PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	msg, err := buildMessage(event)
	if err != nil {
		return err
	}

	if err := p.getWriter(topic).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event to topic %s: %w", topic, err)
	}
	return nil
}

// PublishBatch publishes multiple events to a topic
func (p *Producer) PublishBatch(ctx context.Context, topic string, events []*cloudevents.CloudEvent) error {
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		msg, err := buildMessage(event)
		if err != nil {
			return fmt.Errorf("event %s: %w", event.ID, err)
		}
		messages = append(messages, msg)
	}

	if err := p.getWriter(topic).WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to publish batch to topic %s: %w", topic, err)
	}
	return nil
}

// Close closes all writers
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close writer for topic %s: %w", topic, err)
		}
	}
	return lastErr
}
