package eventflow

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WorkflowEvent is an immutable domain event published through a registry.
//
// EventID is the producer-supplied global deduplication key: publishing the
// same id twice is a no-op. EventType is a hierarchical dotted string used for
// broad subscription (for example "order.created"); EventName is an optional
// exact-match alias. Payload and Metadata are opaque JSON-encodable mappings;
// constructors copy them so a stored event never aliases caller state.
type WorkflowEvent struct {
	EventID    string
	EventType  string
	EventName  string
	Payload    map[string]any
	Source     string
	OccurredAt time.Time
	Metadata   map[string]any
}

// EventOption customizes optional WorkflowEvent fields at construction.
type EventOption func(*WorkflowEvent)

// WithEventName sets the exact-match alias for the event.
func WithEventName(name string) EventOption {
	return func(event *WorkflowEvent) {
		event.EventName = strings.TrimSpace(name)
	}
}

// WithPayload sets the event payload mapping.
func WithPayload(payload map[string]any) EventOption {
	return func(event *WorkflowEvent) {
		event.Payload = payload
	}
}

// WithSource sets the logical producer of the event.
func WithSource(source string) EventOption {
	return func(event *WorkflowEvent) {
		event.Source = strings.TrimSpace(source)
	}
}

// WithOccurredAt overrides the event occurrence time.
func WithOccurredAt(occurredAt time.Time) EventOption {
	return func(event *WorkflowEvent) {
		event.OccurredAt = occurredAt.UTC()
	}
}

// WithMetadata sets the opaque event metadata mapping.
func WithMetadata(metadata map[string]any) EventOption {
	return func(event *WorkflowEvent) {
		event.Metadata = metadata
	}
}

// NewWorkflowEvent creates a valid workflow event with OccurredAt defaulting
// to the current time.
func NewWorkflowEvent(eventID, eventType string, opts ...EventOption) (WorkflowEvent, error) {
	event := WorkflowEvent{
		EventID:   strings.TrimSpace(eventID),
		EventType: strings.TrimSpace(eventType),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&event)
		}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if err := event.Validate(); err != nil {
		return WorkflowEvent{}, err
	}

	event.Payload = copyMapping(event.Payload)
	event.Metadata = copyMapping(event.Metadata)

	return event, nil
}

// Validate checks the event invariants shared by all registries.
func (event WorkflowEvent) Validate() error {
	if strings.TrimSpace(event.EventID) == "" {
		return ErrEventIDRequired
	}

	if strings.TrimSpace(event.EventType) == "" {
		return ErrEventTypeRequired
	}

	if event.OccurredAt.IsZero() {
		return ErrOccurredAtZero
	}

	if err := validateEncodable(event.Payload); err != nil {
		return fmt.Errorf("event payload: %w", err)
	}

	if err := validateEncodable(event.Metadata); err != nil {
		return fmt.Errorf("event metadata: %w", err)
	}

	return nil
}

func validateEncodable(mapping map[string]any) error {
	if len(mapping) == 0 {
		return nil
	}

	if _, err := json.Marshal(mapping); err != nil {
		return fmt.Errorf("%w: %w", ErrEventPayloadNotJSON, err)
	}

	return nil
}

func copyMapping(mapping map[string]any) map[string]any {
	if mapping == nil {
		return nil
	}

	copied := make(map[string]any, len(mapping))
	for key, value := range mapping {
		copied[key] = value
	}

	return copied
}
