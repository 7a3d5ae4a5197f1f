package cloudevents

import (
	"encoding/json"
	"fmt"
	"time"
)

// SpecVersion is the CloudEvents version every envelope is stamped with.
const SpecVersion = "1.0"

// Extension attribute names carried as Kafka headers and JSON members.
const (
	ExtCorrelationID = "correlationid"
	ExtOrderID       = "replorderid"
	ExtStoreID       = "replstoreid"
	ExtTraceParent   = "traceparent"
	ExtTraceState    = "tracestate"
)

// CloudEvent is a CloudEvents v1.0 structured-mode envelope.
type CloudEvent struct {
	SpecVersion     string                 `json:"specversion"`
	Type            string                 `json:"type"`
	Source          string                 `json:"source"`
	Subject         string                 `json:"subject,omitempty"`
	ID              string                 `json:"id"`
	Time            time.Time              `json:"time"`
	DataContentType string                 `json:"datacontenttype"`
	Data            interface{}            `json:"data"`
	Extensions      map[string]interface{} `json:"-"`

	CorrelationID string `json:"correlationid,omitempty"`
	OrderID       string `json:"replorderid,omitempty"`
	StoreID       string `json:"replstoreid,omitempty"`
	TraceParent   string `json:"traceparent,omitempty"`
	TraceState    string `json:"tracestate,omitempty"`
}

// DecodeData unmarshals the event payload into v. Events read off the wire
// carry Data as a generic map, so the payload is round-tripped through JSON.
func (e *CloudEvent) DecodeData(v interface{}) error {
	if e.Data == nil {
		return fmt.Errorf("event %s has no data", e.ID)
	}

	var raw []byte
	switch d := e.Data.(type) {
	case json.RawMessage:
		raw = d
	case []byte:
		raw = d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		raw = b
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode data of event %s: %w", e.ID, err)
	}
	return nil
}

// Validate checks the attributes required by the CloudEvents spec.
func (e *CloudEvent) Validate() error {
	switch {
	case e.SpecVersion != SpecVersion:
		return fmt.Errorf("unsupported specversion %q", e.SpecVersion)
	case e.ID == "":
		return fmt.Errorf("event id is required")
	case e.Type == "":
		return fmt.Errorf("event type is required")
	case e.Source == "":
		return fmt.Errorf("event source is required")
	}
	return nil
}
