package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/phrazzld/opcore/internal/events"
)

// WorkFactory builds a unit of work from a task request payload. Errors are
// reported to callers wrapped in ErrInvalidPayload.
type WorkFactory func(payload json.RawMessage) (Work, error)

// Submitter accepts units of work for asynchronous execution.
type Submitter interface {
	Submit(work Work, description string) (string, error)
}

// FactoryEventHandler implements the events.EventHandler interface.
// It maps task request types to work factories and submits the resulting
// work to the registry.
type FactoryEventHandler struct {
	mu        sync.RWMutex
	factories map[string]WorkFactory
	submitter Submitter
	logger    *slog.Logger
}

// NewFactoryEventHandler creates a handler that submits work to submitter.
func NewFactoryEventHandler(submitter Submitter, logger *slog.Logger) *FactoryEventHandler {
	return &FactoryEventHandler{
		factories: make(map[string]WorkFactory),
		submitter: submitter,
		logger:    logger.With("component", "task_factory_event_handler"),
	}
}

// Register associates a task type with the factory that builds its work.
// Registering the same type twice replaces the previous factory.
func (h *FactoryEventHandler) Register(taskType string, factory WorkFactory) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.factories[taskType] = factory
}

// Types returns the registered task types in sorted order.
func (h *FactoryEventHandler) Types() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	types := make([]string, 0, len(h.factories))
	for t := range h.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Dispatch builds the work for event and submits it, returning the task ID.
func (h *FactoryEventHandler) Dispatch(ctx context.Context, event *events.TaskRequestEvent) (string, error) {
	h.mu.RLock()
	factory, ok := h.factories[event.Type]
	h.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedTaskType, event.Type)
	}

	work, err := factory(event.Payload)
	if err != nil {
		h.logger.Error("failed to create task",
			"error", err,
			"event_type", event.Type,
			"event_id", event.ID)
		return "", fmt.Errorf("failed to create task: %w: %w", ErrInvalidPayload, err)
	}

	description := event.Description
	if description == "" {
		description = event.Type
	}

	taskID, err := h.submitter.Submit(work, description)
	if err != nil {
		h.logger.Error("failed to submit task",
			"error", err,
			"event_type", event.Type,
			"event_id", event.ID)
		return "", fmt.Errorf("failed to submit task: %w", err)
	}

	h.logger.Info("task created and submitted successfully",
		"task_id", taskID,
		"event_type", event.Type,
		"event_id", event.ID)
	return taskID, nil
}

// HandleEvent processes events by creating and submitting tasks.
// Events with an unregistered type are ignored.
func (h *FactoryEventHandler) HandleEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	h.mu.RLock()
	_, ok := h.factories[event.Type]
	h.mu.RUnlock()
	if !ok {
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	_, err := h.Dispatch(ctx, event)
	return err
}

// Ensure FactoryEventHandler implements events.EventHandler
var _ events.EventHandler = (*FactoryEventHandler)(nil)
