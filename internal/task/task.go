package task

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status represents the current state of a task
type Status string

// Possible task status values
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether a task may move from one status to another.
// The lifecycle only moves forward:
//
//	pending -> processing -> completed | failed
//	pending -> cancelled
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCancelled
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Common errors returned by the Registry
var (
	ErrCapacityExceeded    = errors.New("task capacity exceeded")
	ErrRegistryClosed      = errors.New("task registry is closed")
	ErrTaskNotFound        = errors.New("task not found")
	ErrNilWork             = errors.New("unit of work is nil")
	ErrUnsupportedTaskType = errors.New("unsupported task type")
	ErrInvalidPayload      = errors.New("invalid task payload")
)

// Task is a snapshot of one submitted unit of work and its lifecycle.
// Values returned by the Registry are copies; mutating them has no effect
// on the tracked task.
type Task struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Progress    float64    `json:"progress"`
}

// Duration returns the time spent processing, or zero if the task never started.
func (t Task) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

// Work is a unit of computation executed by the worker pool.
// The registry has no knowledge of what it computes.
type Work interface {
	// Execute runs the work. The context is cancelled when the task deadline
	// (if configured) passes or the registry is forced to shut down.
	Execute(ctx context.Context) (any, error)
}

// WorkFunc adapts an ordinary function to the Work interface.
type WorkFunc func(ctx context.Context) (any, error)

// Execute calls f(ctx).
func (f WorkFunc) Execute(ctx context.Context) (any, error) {
	return f(ctx)
}

// ExecutionError records a failure raised inside a unit of work.
type ExecutionError struct {
	TaskID   string
	Err      error
	Panicked bool
}

func (e *ExecutionError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("task %s panicked: %v", e.TaskID, e.Err)
	}
	return fmt.Sprintf("task %s failed: %v", e.TaskID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
