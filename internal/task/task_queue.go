package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Common errors returned by the TaskQueue
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// Job is a queued unit of work waiting for a worker.
type Job struct {
	TaskID string
	Work   Work
}

// TaskQueueReader provides read-only access to the job channel
// allowing workers to consume jobs without the ability to enqueue
type TaskQueueReader interface {
	// GetChannel returns a read-only channel for consuming jobs.
	// The channel is closed once the queue is closed and drained.
	GetChannel() <-chan Job
}

// TaskQueue implements a bounded job queue. Enqueue never blocks: a full
// queue is reported to the caller instead.
type TaskQueue struct {
	mu     sync.Mutex
	jobs   chan Job
	logger *slog.Logger
	closed bool
}

// NewTaskQueue creates a new task queue with the specified buffer size
func NewTaskQueue(size int, logger *slog.Logger) *TaskQueue {
	if size <= 0 {
		size = 1
	}
	return &TaskQueue{
		jobs:   make(chan Job, size),
		logger: logger,
	}
}

// Enqueue adds a job to the queue for processing
// Returns an error if the queue is full or closed
func (q *TaskQueue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		q.logger.Debug("job enqueued",
			"task_id", job.TaskID,
			"queue_len", len(q.jobs),
			"queue_cap", cap(q.jobs))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.jobs))
	}
}

// Close closes the task queue, preventing further submission.
// Jobs already queued remain readable until drained.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.jobs)
		q.logger.Info("task queue closed", "pending_jobs", len(q.jobs))
	}
}

// Len returns the number of queued jobs.
func (q *TaskQueue) Len() int {
	return len(q.jobs)
}

// GetChannel returns a read-only channel for consuming jobs
func (q *TaskQueue) GetChannel() <-chan Job {
	return q.jobs
}
