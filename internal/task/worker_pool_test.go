package task

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTaskQueue implements TaskQueueReader for testing
type mockTaskQueue struct {
	ch chan Job
}

func newMockTaskQueue() *mockTaskQueue {
	return &mockTaskQueue{
		ch: make(chan Job, 10),
	}
}

func (m *mockTaskQueue) GetChannel() <-chan Job {
	return m.ch
}

func TestNewWorkerPool(t *testing.T) {
	logger := setupTestLogger()
	taskQueue := newMockTaskQueue()
	handler := func(job Job, workerID int) {}

	pool := NewWorkerPool(taskQueue, WorkerPoolConfig{WorkerCount: 5}, handler, logger)
	require.NotNil(t, pool)
	assert.Equal(t, 5, pool.WorkerCount())
	assert.Equal(t, taskQueue, pool.taskQueue)
	assert.Nil(t, pool.errorHandler)

	// Invalid worker counts fall back to one worker
	pool = NewWorkerPool(taskQueue, WorkerPoolConfig{WorkerCount: 0}, handler, logger)
	assert.Equal(t, 1, pool.WorkerCount())

	pool = NewWorkerPool(taskQueue, WorkerPoolConfig{WorkerCount: -5}, handler, logger)
	assert.Equal(t, 1, pool.WorkerCount())
}

func TestDefaultWorkerPoolConfig(t *testing.T) {
	assert.Equal(t, 4, DefaultWorkerPoolConfig().WorkerCount)
}

func TestWorkerPool_ProcessesAndDrains(t *testing.T) {
	taskQueue := newMockTaskQueue()

	var mu sync.Mutex
	seen := make([]string, 0, 3)
	pool := NewWorkerPool(taskQueue, WorkerPoolConfig{WorkerCount: 2}, func(job Job, workerID int) {
		mu.Lock()
		seen = append(seen, job.TaskID)
		mu.Unlock()
	}, setupTestLogger())

	pool.Start()
	pool.Start() // second Start is a no-op

	for _, id := range []string{"a", "b", "c"} {
		taskQueue.ch <- Job{TaskID: id, Work: noopWork()}
	}
	close(taskQueue.ch)

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for workers to drain the queue")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, seen)
}

func TestWorkerPool_BoundedConcurrency(t *testing.T) {
	taskQueue := newMockTaskQueue()

	var active, maxActive atomic.Int32
	pool := NewWorkerPool(taskQueue, WorkerPoolConfig{WorkerCount: 2}, func(job Job, workerID int) {
		n := active.Add(1)
		for {
			prev := maxActive.Load()
			if n <= prev || maxActive.CompareAndSwap(prev, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
	}, setupTestLogger())
	pool.Start()

	for i := 0; i < 6; i++ {
		taskQueue.ch <- Job{TaskID: "job", Work: noopWork()}
	}
	close(taskQueue.ch)
	pool.Wait()

	assert.LessOrEqual(t, maxActive.Load(), int32(2))
	assert.GreaterOrEqual(t, maxActive.Load(), int32(1))
}

func TestWorkerPool_HandlerPanic(t *testing.T) {
	taskQueue := newMockTaskQueue()
	errorHandled := make(chan error, 1)
	processed := make(chan string, 1)

	pool := NewWorkerPool(taskQueue, WorkerPoolConfig{WorkerCount: 1}, func(job Job, workerID int) {
		if job.TaskID == "bad" {
			panic("test panic")
		}
		processed <- job.TaskID
	}, setupTestLogger())
	pool.SetErrorHandler(func(job Job, err error) {
		errorHandled <- err
	})
	pool.Start()

	taskQueue.ch <- Job{TaskID: "bad", Work: noopWork()}
	taskQueue.ch <- Job{TaskID: "good", Work: noopWork()}

	select {
	case err := <-errorHandled:
		assert.Contains(t, err.Error(), "panic")
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Timed out waiting for error handler after panic")
	}

	// The worker survives the panic and keeps consuming
	select {
	case id := <-processed:
		assert.Equal(t, "good", id)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Worker did not survive the panic")
	}

	close(taskQueue.ch)
	pool.Wait()
}
