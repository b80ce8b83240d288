package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/opcore/internal/api/shared"
	"github.com/phrazzld/opcore/internal/events"
	"github.com/phrazzld/opcore/internal/platform/logger"
	"github.com/phrazzld/opcore/internal/task"
)

// CreateTaskRequest represents the request body for submitting a task
type CreateTaskRequest struct {
	Type        string          `json:"type" validate:"required,max=64"`
	Description string          `json:"description" validate:"max=256"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// CreateTaskResponse is returned once a task has been accepted
type CreateTaskResponse struct {
	TaskID string `json:"task_id"`
}

// TaskDispatcher builds and submits the work for a task request.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, event *events.TaskRequestEvent) (string, error)
}

// TaskRegistry is the read and cancel side of the task registry.
type TaskRegistry interface {
	Get(id string) (task.Task, bool)
	List() []task.Task
	Cancel(id string) bool
	Stats() task.Stats
}

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	dispatcher TaskDispatcher
	registry   TaskRegistry
	logger     *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(dispatcher TaskDispatcher, registry TaskRegistry, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}

	return &TaskHandler{
		dispatcher: dispatcher,
		registry:   registry,
		logger:     logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTask handles POST /api/tasks requests. The task runs asynchronously,
// so a successful submission answers 202 Accepted with the task ID.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	event, err := events.NewTaskRequestEvent(req.Type, req.Description, nil)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}
	event.Payload = req.Payload

	taskID, err := h.dispatcher.Dispatch(r.Context(), event)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("task accepted",
		"task_id", taskID,
		"task_type", req.Type,
		"event_id", event.ID)
	shared.RespondWithJSON(w, r, http.StatusAccepted, CreateTaskResponse{TaskID: taskID})
}

// ListTasks handles GET /api/tasks requests, optionally filtered by ?status=.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	status, filter, err := parseStatus(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	tasks := h.registry.List()
	if filter {
		matching := make([]task.Task, 0, len(tasks))
		for _, t := range tasks {
			if t.Status == status {
				matching = append(matching, t)
			}
		}
		tasks = matching
	}

	shared.RespondWithJSON(w, r, http.StatusOK, tasks)
}

// GetTask handles GET /api/tasks/{id} requests
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, ok := h.registry.Get(id)
	if !ok {
		HandleAPIError(w, r, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id), "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// CancelTask handles DELETE /api/tasks/{id} requests. Only pending tasks
// can be cancelled; anything else answers 409 Conflict.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, ok := h.registry.Get(id)
	if !ok {
		HandleAPIError(w, r, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id), "")
		return
	}

	if !h.registry.Cancel(id) {
		HandleAPIError(w, r, fmt.Errorf("%w: %s is %s", ErrTaskNotPending, id, t.Status), "")
		return
	}

	t, _ = h.registry.Get(id)
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// Stats handles GET /api/tasks/stats requests
func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.registry.Stats())
}
