package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskRequestEvent asks for a unit of background work of a given type.
type TaskRequestEvent struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into v.
// An empty payload leaves v untouched.
func (e *TaskRequestEvent) UnmarshalPayload(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// NewTaskRequestEvent creates an event of the given type with a JSON-encoded payload.
// A nil payload produces an event without payload.
func NewTaskRequestEvent(eventType, description string, payload any) (*TaskRequestEvent, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode event payload: %w", err)
		}
		raw = b
	}

	return &TaskRequestEvent{
		ID:          uuid.New(),
		Type:        eventType,
		Description: description,
		Payload:     raw,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// EventHandler is implemented by components that act on task requests.
type EventHandler interface {
	// HandleEvent processes the event. Handlers ignore event types they do
	// not understand and return nil for them.
	HandleEvent(ctx context.Context, event *TaskRequestEvent) error
}

// EventEmitter publishes task requests to interested handlers.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event *TaskRequestEvent) error
}
