package kafka

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// Config holds Kafka configuration
type Config struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string

	// Producer settings
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int // 0: no ack, 1: leader ack, -1: all replicas ack
	WriteTimeout time.Duration

	// Consumer settings
	MinBytes       int
	MaxBytes       int
	MaxWait        time.Duration
	CommitInterval time.Duration
	StartOffset    int64

	// Backoff between handler retries on the same message
	HandlerRetryInitialDelay time.Duration
	HandlerRetryMaxDelay     time.Duration

	// TLS settings
	TLSEnabled            bool
	TLSInsecureSkipVerify bool

	// SASL settings
	SASLEnabled  bool
	SASLUsername string
	SASLPassword string

	DialTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Brokers:       []string{"localhost:9092"},
		ConsumerGroup: "replenishment-lowstock-group",
		ClientID:      "replenishment-service",

		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,
		WriteTimeout: 10 * time.Second,

		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,

		HandlerRetryInitialDelay: 500 * time.Millisecond,
		HandlerRetryMaxDelay:     30 * time.Second,

		DialTimeout: 10 * time.Second,
	}
}

// Validate reports configuration that would make every connection fail.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka: at least one broker is required")
	}
	if c.SASLEnabled && (c.SASLUsername == "" || c.SASLPassword == "") {
		return fmt.Errorf("kafka: SASL enabled without credentials")
	}
	return nil
}

func (c *Config) saslMechanism() sasl.Mechanism {
	if !c.SASLEnabled {
		return nil
	}
	return plain.Mechanism{Username: c.SASLUsername, Password: c.SASLPassword}
}

func (c *Config) tlsConfig() *tls.Config {
	if !c.TLSEnabled {
		return nil
	}
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.TLSInsecureSkipVerify, //nolint:gosec // opt-in for local brokers
	}
}

// Transport builds the writer transport carrying SASL and TLS settings.
func (c *Config) Transport() *kafka.Transport {
	return &kafka.Transport{
		ClientID:    c.ClientID,
		DialTimeout: c.DialTimeout,
		SASL:        c.saslMechanism(),
		TLS:         c.tlsConfig(),
	}
}

// Dialer builds the reader dialer carrying SASL and TLS settings.
func (c *Config) Dialer() *kafka.Dialer {
	return &kafka.Dialer{
		ClientID:      c.ClientID,
		Timeout:       c.DialTimeout,
		DualStack:     true,
		SASLMechanism: c.saslMechanism(),
		TLS:           c.tlsConfig(),
	}
}

// Topics contains the replenishment topic names.
var Topics = struct {
	LowStockAlerts string
	TransferOrders string
	Shipments      string
	Receipts       string
}{
	LowStockAlerts: "replenishment.low-stock-alerts",
	TransferOrders: "replenishment.transfer-orders",
	Shipments:      "replenishment.shipments",
	Receipts:       "replenishment.receipts",
}

// TopicConfig holds configuration for a Kafka topic
type TopicConfig struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	RetentionMs       int64
}

// DefaultTopicConfigs returns default configurations for replenishment topics
func DefaultTopicConfigs() []TopicConfig {
	week := int64(7 * 24 * 60 * 60 * 1000)
	return []TopicConfig{
		{Name: Topics.LowStockAlerts, Partitions: 6, ReplicationFactor: 3, RetentionMs: week},
		{Name: Topics.TransferOrders, Partitions: 6, ReplicationFactor: 3, RetentionMs: week},
		{Name: Topics.Shipments, Partitions: 6, ReplicationFactor: 3, RetentionMs: week},
		{Name: Topics.Receipts, Partitions: 6, ReplicationFactor: 3, RetentionMs: 4 * week},
	}
}
