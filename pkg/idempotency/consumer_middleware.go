package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/wms-platform/replenishment-service/pkg/cloudevents"
	"github.com/wms-platform/replenishment-service/pkg/kafka"
	"github.com/wms-platform/replenishment-service/pkg/logging"
)

// DeduplicatingHandler skips events whose id was already recorded for the
// consumer group. A handler error leaves the event unrecorded so the
// redelivery is processed again.
func DeduplicatingHandler(config *ConsumerConfig, handler kafka.EventHandler) kafka.EventHandler {
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithComponent("dedup").WithFields(map[string]any{
		"topic":         config.Topic,
		"consumerGroup": config.ConsumerGroup,
	})

	return func(ctx context.Context, event *cloudevents.CloudEvent) error {
		log := logger.WithContext(ctx).WithFields(map[string]any{
			"messageId": event.ID,
			"eventType": event.Type,
		})

		processed, err := config.Repository.IsProcessed(ctx, event.ID, config.Topic, config.ConsumerGroup)
		if err != nil {
			log.WithError(err).Error("Failed to check processed-message ledger")
			return err
		}

		if processed {
			log.Info("Duplicate message skipped")
			if config.Metrics != nil {
				config.Metrics.RecordDuplicateEvent(config.Topic)
			}
			return nil
		}

		if err := handler(ctx, event); err != nil {
			return err
		}

		now := time.Now().UTC()
		msg := &ProcessedMessage{
			MessageID:     event.ID,
			Topic:         config.Topic,
			EventType:     event.Type,
			ConsumerGroup: config.ConsumerGroup,
			ServiceID:     config.ServiceName,
			ProcessedAt:   now,
			ExpiresAt:     now.Add(config.RetentionPeriod),
			CorrelationID: event.CorrelationID,
			OrderID:       event.OrderID,
		}

		if err := config.Repository.MarkProcessed(ctx, msg); err != nil {
			if errors.Is(err, ErrMessageAlreadyProcessed) {
				log.Warn("Message was processed concurrently")
				return nil
			}
			// The work is done; a failed record only means a redelivery
			// would be handled again.
			log.WithError(err).Error("Failed to mark message as processed")
			return err
		}

		return nil
	}
}
