package mongodb

import (
	"context"
	"sync"
	"time"

	"github.com/wms-platform/replenishment-service/pkg/logging"
	"github.com/wms-platform/replenishment-service/pkg/metrics"
	"go.mongodb.org/mongo-driver/event"
)

// commandMonitor feeds driver command events into metrics and debug logs.
// Started events are keyed by request id so the collection name is known
// when the command finishes.
type commandMonitor struct {
	metrics *metrics.Metrics
	logger  *logging.Logger
	pending sync.Map // requestID -> collection
}

func newCommandMonitor(m *metrics.Metrics, logger *logging.Logger) *event.CommandMonitor {
	cm := &commandMonitor{metrics: m, logger: logger}
	return &event.CommandMonitor{
		Started:   cm.started,
		Succeeded: cm.succeeded,
		Failed:    cm.failed,
	}
}

var monitoredCommands = map[string]bool{
	"find":          true,
	"insert":        true,
	"update":        true,
	"delete":        true,
	"findAndModify": true,
	"aggregate":     true,
	"count":         true,
	"createIndexes": true,
}

func (cm *commandMonitor) started(_ context.Context, evt *event.CommandStartedEvent) {
	if !monitoredCommands[evt.CommandName] {
		return
	}
	collection, _ := evt.Command.Lookup(evt.CommandName).StringValueOK()
	cm.pending.Store(evt.RequestID, collection)
}

func (cm *commandMonitor) finish(ctx context.Context, requestID int64, command string, duration time.Duration, success bool) {
	v, ok := cm.pending.LoadAndDelete(requestID)
	if !ok {
		return
	}
	collection, _ := v.(string)

	if cm.metrics != nil {
		cm.metrics.RecordMongoDBOperation(collection, command, success, duration)
	}
	if cm.logger != nil {
		cm.logger.DatabaseQuery(ctx, collection, command, duration, success, 0)
	}
}

func (cm *commandMonitor) succeeded(ctx context.Context, evt *event.CommandSucceededEvent) {
	cm.finish(ctx, evt.RequestID, evt.CommandName, evt.Duration, true)
}

func (cm *commandMonitor) failed(ctx context.Context, evt *event.CommandFailedEvent) {
	cm.finish(ctx, evt.RequestID, evt.CommandName, evt.Duration, false)
}
