package task

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func noopWork() Work {
	return WorkFunc(func(ctx context.Context) (any, error) { return nil, nil })
}

func TestNewTaskQueue(t *testing.T) {
	q := NewTaskQueue(3, setupTestLogger())
	require.NotNil(t, q)
	assert.Equal(t, 3, cap(q.jobs))
	assert.False(t, q.closed)

	// Non-positive sizes fall back to a single slot
	q = NewTaskQueue(0, setupTestLogger())
	assert.Equal(t, 1, cap(q.jobs))
}

func TestTaskQueue_Enqueue(t *testing.T) {
	q := NewTaskQueue(2, setupTestLogger())

	require.NoError(t, q.Enqueue(Job{TaskID: "a", Work: noopWork()}))
	require.NoError(t, q.Enqueue(Job{TaskID: "b", Work: noopWork()}))
	assert.Equal(t, 2, q.Len())

	t.Run("full queue", func(t *testing.T) {
		err := q.Enqueue(Job{TaskID: "c", Work: noopWork()})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrQueueFull)
		assert.Contains(t, err.Error(), "queue capacity 2 reached")
	})

	t.Run("jobs come out in order", func(t *testing.T) {
		ch := q.GetChannel()
		assert.Equal(t, "a", (<-ch).TaskID)
		assert.Equal(t, "b", (<-ch).TaskID)
	})
}

func TestTaskQueue_Close(t *testing.T) {
	q := NewTaskQueue(2, setupTestLogger())
	require.NoError(t, q.Enqueue(Job{TaskID: "queued", Work: noopWork()}))

	q.Close()
	q.Close() // closing twice must not panic

	err := q.Enqueue(Job{TaskID: "late", Work: noopWork()})
	assert.ErrorIs(t, err, ErrQueueClosed)

	// Already queued jobs remain readable, then the channel reports closed
	job, ok := <-q.GetChannel()
	assert.True(t, ok)
	assert.Equal(t, "queued", job.TaskID)

	_, ok = <-q.GetChannel()
	assert.False(t, ok)
}
