package asyncapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/wms-platform/replenishment-service/pkg/cloudevents"
	"gopkg.in/yaml.v3"
)

// EventValidator checks CloudEvent payloads against the message schemas of
// an AsyncAPI document.
type EventValidator struct {
	schemas  map[string]*jsonschema.Schema
	channels map[string]string // event type -> channel address
}

// Spec is the subset of an AsyncAPI 3 document the validator reads.
type Spec struct {
	AsyncAPI   string             `yaml:"asyncapi"`
	Info       Info               `yaml:"info"`
	Channels   map[string]Channel `yaml:"channels"`
	Components Components         `yaml:"components"`
}

// Info contains AsyncAPI info section.
type Info struct {
	Title   string `yaml:"title"`
	Version string `yaml:"version"`
}

// Channel is one topic and the messages it carries, keyed by event type.
type Channel struct {
	Address  string                `yaml:"address"`
	Messages map[string]MessageRef `yaml:"messages"`
}

// MessageRef names the payload schema of a message. The key under
// channels.<name>.messages is the CloudEvent type.
type MessageRef struct {
	Payload string `yaml:"x-payload-schema"`
}

// Components contains reusable schemas.
type Components struct {
	Schemas map[string]interface{} `yaml:"schemas"`
}

// NewEventValidator creates a new event validator from an AsyncAPI specification file.
func NewEventValidator(path string) (*EventValidator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read AsyncAPI spec: %w", err)
	}
	return NewEventValidatorFromBytes(data)
}

// NewEventValidatorFromBytes compiles one schema per declared event type.
func NewEventValidatorFromBytes(specBytes []byte) (*EventValidator, error) {
	var spec Spec
	if err := yaml.Unmarshal(specBytes, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse AsyncAPI spec: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	for name, schema := range spec.Components.Schemas {
		doc, err := toJSONValue(schema)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		if err := compiler.AddResource(schemaURI(name), doc); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", name, err)
		}
	}

	v := &EventValidator{
		schemas:  make(map[string]*jsonschema.Schema),
		channels: make(map[string]string),
	}
	for _, channel := range spec.Channels {
		for eventType, msg := range channel.Messages {
			compiled, err := compiler.Compile(schemaURI(msg.Payload))
			if err != nil {
				return nil, fmt.Errorf("failed to compile schema %s for %s: %w", msg.Payload, eventType, err)
			}
			v.schemas[eventType] = compiled
			v.channels[eventType] = channel.Address
		}
	}

	return v, nil
}

func schemaURI(name string) string {
	return "asyncapi://schemas/" + name
}

// toJSONValue converts a YAML-decoded value into the representation the
// schema library expects.
func toJSONValue(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}

// ValidateEvent validates the envelope attributes and the data payload.
func (v *EventValidator) ValidateEvent(event *cloudevents.CloudEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	schema, ok := v.schemas[event.Type]
	if !ok {
		return fmt.Errorf("no schema found for event type: %s", event.Type)
	}
	if event.Data == nil {
		return fmt.Errorf("event data is required")
	}

	data, err := toJSONValue(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	if err := schema.Validate(data); err != nil {
		return fmt.Errorf("event data validation failed for type %s: %w", event.Type, err)
	}
	return nil
}

// ValidateEventJSON validates a structured-mode CloudEvent.
func (v *EventValidator) ValidateEventJSON(eventJSON []byte) error {
	var event cloudevents.CloudEvent
	if err := json.Unmarshal(eventJSON, &event); err != nil {
		return fmt.Errorf("failed to parse CloudEvent: %w", err)
	}
	return v.ValidateEvent(&event)
}

// Channel returns the topic an event type is declared on.
func (v *EventValidator) Channel(eventType string) (string, bool) {
	address, ok := v.channels[eventType]
	return address, ok
}

// GetSupportedEventTypes returns all event types that have registered schemas.
func (v *EventValidator) GetSupportedEventTypes() []string {
	types := make([]string, 0, len(v.schemas))
	for eventType := range v.schemas {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}

// HasSchema checks if a schema exists for the given event type.
func (v *EventValidator) HasSchema(eventType string) bool {
	_, ok := v.schemas[eventType]
	return ok
}
