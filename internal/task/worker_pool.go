package task

import (
	"fmt"
	"log/slog"
	"sync"
)

// JobHandler processes one job on behalf of a worker.
type JobHandler func(job Job, workerID int)

// WorkerPool manages a fixed set of worker goroutines that process jobs
// from a task queue. Workers exit once the queue is closed and drained.
type WorkerPool struct {
	// taskQueue provides read access to the jobs to be processed
	taskQueue TaskQueueReader

	// workerCount is the number of concurrent workers to start
	workerCount int

	// handler runs each job
	handler JobHandler

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	startOnce sync.Once

	logger *slog.Logger

	// errorHandler is called when a handler panics.
	// If nil, panics are only logged
	errorHandler func(job Job, err error)
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: 4,
	}
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(taskQueue TaskQueueReader, config WorkerPoolConfig, handler JobHandler, logger *slog.Logger) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	return &WorkerPool{
		taskQueue:   taskQueue,
		workerCount: workerCount,
		handler:     handler,
		logger:      logger,
	}
}

// SetErrorHandler allows setting a custom handler for jobs whose handler panicked
func (p *WorkerPool) SetErrorHandler(handler func(job Job, err error)) {
	p.errorHandler = handler
}

// WorkerCount returns the number of workers in the pool.
func (p *WorkerPool) WorkerCount() int {
	return p.workerCount
}

// Start launches the workers. Calling Start more than once has no effect.
func (p *WorkerPool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workerCount; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
		p.logger.Info("worker pool started", "worker_count", p.workerCount)
	})
}

// Wait blocks until every worker has exited. Workers exit only after the
// queue is closed and every queued job has been handled.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// worker processes jobs from the queue until it is closed
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)
	for job := range p.taskQueue.GetChannel() {
		p.process(job, id)
	}
	p.logger.Debug("task channel closed, stopping worker", "worker_id", id)
}

// process runs a single job, keeping the worker alive if the handler panics
func (p *WorkerPool) process(job Job, workerID int) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("job handler panicked: %v", rec)
			p.logger.Error("worker recovered from panic",
				"task_id", job.TaskID,
				"worker_id", workerID,
				"error", err)
			if p.errorHandler != nil {
				p.errorHandler(job, err)
			}
		}
	}()

	p.handler(job, workerID)
}
