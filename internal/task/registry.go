package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/opcore/internal/redact"
)

// Config holds configuration for the task registry
type Config struct {
	// WorkerCount determines how many tasks execute concurrently
	WorkerCount int

	// MaxTasks bounds the number of tracked tasks, in any status, until
	// the reaper removes them
	MaxTasks int

	// MaxTaskAge is how long a finished task is kept before it is reaped
	MaxTaskAge time.Duration

	// ReapInterval defines how often old finished tasks are removed
	// If zero, defaults to one hour
	ReapInterval time.Duration

	// TaskTimeout is the deadline applied to each unit of work.
	// Zero means no deadline.
	TaskTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		WorkerCount:  4,
		MaxTasks:     100,
		MaxTaskAge:   24 * time.Hour,
		ReapInterval: time.Hour,
	}
}

// Stats summarizes the registry state.
type Stats struct {
	Total       int            `json:"total"`
	MaxCapacity int            `json:"max_capacity"`
	WorkerCount int            `json:"worker_count"`
	Queued      int            `json:"queued"`
	ByStatus    map[Status]int `json:"by_status"`
}

// Registry accepts units of work, executes them on a fixed-size worker pool
// and tracks each task through its lifecycle. A background reaper removes
// old finished tasks.
//
// All task fields are read and written under mu, and mu is never held while
// a unit of work runs.
type Registry struct {
	mu     sync.Mutex
	tasks  map[string]*Task
	closed bool

	// queued holds IDs whose job is still in the queue. Every queued job
	// stays tracked, so the queue never fills before MaxTasks is reached.
	queued map[string]struct{}

	queue  *TaskQueue
	pool   *WorkerPool
	config Config
	logger *slog.Logger
	now    func() time.Time

	// workCtx is passed to every unit of work; it is cancelled only when a
	// shutdown deadline expires
	workCtx    context.Context
	cancelWork context.CancelFunc

	// reaperCtx stops the reaper goroutine
	reaperCtx    context.Context
	cancelReaper context.CancelFunc
	reaperDone   chan struct{}

	errHandler func(task Task, err error)
	onFinish   func(task Task)
}

// NewRegistry creates a Registry and starts its workers and reaper.
func NewRegistry(config Config, logger *slog.Logger) *Registry {
	defaults := DefaultConfig()
	if config.MaxTasks <= 0 {
		logger.Warn("invalid max tasks specified, using default",
			"specified_max", config.MaxTasks,
			"default_max", defaults.MaxTasks)
		config.MaxTasks = defaults.MaxTasks
	}
	if config.MaxTaskAge <= 0 {
		config.MaxTaskAge = defaults.MaxTaskAge
	}
	if config.ReapInterval <= 0 {
		config.ReapInterval = defaults.ReapInterval
	}

	logger = logger.With("component", "task_registry")
	workCtx, cancelWork := context.WithCancel(context.Background())
	reaperCtx, cancelReaper := context.WithCancel(context.Background())

	r := &Registry{
		tasks:        make(map[string]*Task),
		queued:       make(map[string]struct{}),
		queue:        NewTaskQueue(config.MaxTasks, logger),
		config:       config,
		logger:       logger,
		now:          time.Now,
		workCtx:      workCtx,
		cancelWork:   cancelWork,
		reaperCtx:    reaperCtx,
		cancelReaper: cancelReaper,
		reaperDone:   make(chan struct{}),
		errHandler: func(task Task, err error) {
			// Default error handler just logs the error
			logger.Error("task execution failed",
				"task_id", task.ID,
				"description", task.Description,
				"error", redact.Error(err))
		},
	}

	r.pool = NewWorkerPool(r.queue, WorkerPoolConfig{WorkerCount: config.WorkerCount}, r.execute, logger)
	r.config.WorkerCount = r.pool.WorkerCount()
	r.pool.SetErrorHandler(func(job Job, err error) {
		r.finish(job.TaskID, nil, &ExecutionError{TaskID: job.TaskID, Err: err, Panicked: true})
	})

	r.pool.Start()
	go r.reaper()

	logger.Info("task registry started",
		"worker_count", r.config.WorkerCount,
		"max_tasks", r.config.MaxTasks,
		"max_task_age", r.config.MaxTaskAge)
	return r
}

// SetErrorHandler allows setting a custom error handler function. It is
// called from the worker goroutine after the task is marked failed.
func (r *Registry) SetErrorHandler(handler func(task Task, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errHandler = handler
}

// OnFinish registers a callback invoked with a snapshot of every task that
// reaches a terminal status. It runs outside the registry lock.
func (r *Registry) OnFinish(fn func(task Task)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFinish = fn
}

// Submit enqueues work for asynchronous execution and returns the task ID.
// It never waits for a free worker: when the registry already tracks
// MaxTasks tasks it fails immediately with ErrCapacityExceeded.
func (r *Registry) Submit(work Work, description string) (string, error) {
	if work == nil {
		return "", ErrNilWork
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", ErrRegistryClosed
	}
	if len(r.tasks) >= r.config.MaxTasks {
		return "", fmt.Errorf("%w: %d of %d tasks tracked", ErrCapacityExceeded, len(r.tasks), r.config.MaxTasks)
	}

	id := uuid.NewString()
	if err := r.queue.Enqueue(Job{TaskID: id, Work: work}); err != nil {
		if errors.Is(err, ErrQueueFull) {
			return "", fmt.Errorf("%w: %w", ErrCapacityExceeded, err)
		}
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	r.queued[id] = struct{}{}
	r.tasks[id] = &Task{
		ID:          id,
		Description: description,
		Status:      StatusPending,
		CreatedAt:   r.now(),
	}

	r.logger.Info("task submitted", "task_id", id, "description", description)
	return id, nil
}

// Get returns a snapshot of the task with the given ID.
func (r *Registry) Get(id string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.snapshot(), true
}

// List returns snapshots of all tracked tasks, oldest first.
func (r *Registry) List() []Task {
	r.mu.Lock()
	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.snapshot())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Cancel cancels a task that has not started yet. It returns false if the
// task does not exist or is in any status other than pending; running work
// is never interrupted.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok || !CanTransition(t.Status, StatusCancelled) {
		r.mu.Unlock()
		return false
	}

	now := r.now()
	t.Status = StatusCancelled
	t.CompletedAt = &now
	snap := t.snapshot()
	onFinish := r.onFinish
	r.mu.Unlock()

	r.logger.Info("task cancelled", "task_id", id)
	if onFinish != nil {
		onFinish(snap)
	}
	return true
}

// Stats returns task counts by status together with capacity figures.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	byStatus := make(map[Status]int, len(AllStatuses))
	for _, t := range r.tasks {
		byStatus[t.Status]++
	}

	return Stats{
		Total:       len(r.tasks),
		MaxCapacity: r.config.MaxTasks,
		WorkerCount: r.config.WorkerCount,
		Queued:      r.queue.Len(),
		ByStatus:    byStatus,
	}
}

// Reap removes finished tasks created more than MaxTaskAge before now and
// returns how many were removed. Pending and processing tasks are kept
// regardless of age, as are cancelled tasks whose job is still queued.
func (r *Registry) Reap(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, t := range r.tasks {
		if _, inQueue := r.queued[id]; inQueue {
			continue
		}
		if t.Status.Terminal() && now.Sub(t.CreatedAt) > r.config.MaxTaskAge {
			delete(r.tasks, id)
			removed++
		}
	}

	if removed > 0 {
		r.logger.Info("reaped old tasks", "count", removed, "remaining", len(r.tasks))
	}
	return removed
}

// Shutdown stops accepting work, waits for queued and in-flight work to
// finish and stops the reaper. If ctx expires first, running work is
// signalled through its context and ctx's error is returned.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.queue.Close()
	r.mu.Unlock()

	r.logger.Info("shutting down task registry")

	r.cancelReaper()
	<-r.reaperDone

	done := make(chan struct{})
	go func() {
		r.pool.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancelWork()
		r.logger.Info("task registry stopped")
		return nil
	case <-ctx.Done():
		r.cancelWork()
		r.logger.Warn("task registry shutdown deadline exceeded", "error", ctx.Err())
		return fmt.Errorf("task registry shutdown: %w", ctx.Err())
	}
}

// execute handles one job on a worker goroutine
func (r *Registry) execute(job Job, workerID int) {
	logger := r.logger.With("task_id", job.TaskID, "worker_id", workerID)

	if !r.markProcessing(job.TaskID) {
		logger.Debug("skipping task that is no longer pending")
		return
	}
	logger.Info("processing task")

	ctx := withProgress(withTaskID(r.workCtx, job.TaskID), func(pct float64) {
		r.setProgress(job.TaskID, pct)
	})
	if r.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.TaskTimeout)
		defer cancel()
	}

	result, err := run(ctx, job)
	r.finish(job.TaskID, result, err)
}

// run executes the unit of work, converting panics into execution errors
func run(ctx context.Context, job Job) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = &ExecutionError{TaskID: job.TaskID, Err: fmt.Errorf("%v", rec), Panicked: true}
		}
	}()

	result, err = job.Work.Execute(ctx)
	if err != nil {
		err = &ExecutionError{TaskID: job.TaskID, Err: err}
	}
	return result, err
}

// markProcessing releases the task's queue slot and moves it from pending
// to processing. It returns false if the task was cancelled while queued.
func (r *Registry) markProcessing(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.queued, id)

	t, ok := r.tasks[id]
	if !ok || !CanTransition(t.Status, StatusProcessing) {
		return false
	}
	now := r.now()
	t.Status = StatusProcessing
	t.StartedAt = &now
	return true
}

// finish records the outcome of a processing task
func (r *Registry) finish(id string, result any, err error) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok || t.Status != StatusProcessing {
		r.mu.Unlock()
		return
	}

	now := r.now()
	t.CompletedAt = &now
	if err != nil {
		t.Status = StatusFailed
		t.Error = failureMessage(err)
	} else {
		t.Status = StatusCompleted
		t.Result = result
		t.Progress = 100
	}
	snap := t.snapshot()
	errHandler, onFinish := r.errHandler, r.onFinish
	r.mu.Unlock()

	if err != nil {
		if errHandler != nil {
			errHandler(snap, err)
		}
	} else {
		r.logger.Info("task completed successfully",
			"task_id", id,
			"duration_ms", snap.Duration().Milliseconds())
	}
	if onFinish != nil {
		onFinish(snap)
	}
}

// failureMessage returns the message stored on a failed task. It is never empty.
func failureMessage(err error) string {
	var execErr *ExecutionError
	if errors.As(err, &execErr) && execErr.Err != nil {
		if msg := execErr.Err.Error(); msg != "" {
			if execErr.Panicked {
				return "panic: " + msg
			}
			return msg
		}
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "unknown error"
}

// setProgress updates the progress of a processing task
func (r *Registry) setProgress(id string, pct float64) {
	pct = clampProgress(pct)

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.Status != StatusProcessing || pct < t.Progress {
		return
	}
	t.Progress = pct
}

// reaper periodically removes old finished tasks
func (r *Registry) reaper() {
	defer close(r.reaperDone)

	ticker := time.NewTicker(r.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.reaperCtx.Done():
			return
		case <-ticker.C:
			r.reapOnce()
		}
	}
}

// reapOnce runs one reaper pass, logging instead of propagating any panic
func (r *Registry) reapOnce() {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("task reaper failed", "error", fmt.Sprintf("%v", rec))
		}
	}()
	r.Reap(r.now())
}

// snapshot returns a copy of the task safe to hand to callers
func (t *Task) snapshot() Task {
	c := *t
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	return c
}
