package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/phrazzld/opcore/internal/events"
	"github.com/phrazzld/opcore/internal/task"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockDispatcher records dispatched events
type MockDispatcher struct {
	DispatchFn func(ctx context.Context, event *events.TaskRequestEvent) (string, error)
	LastEvent  *events.TaskRequestEvent
}

func (m *MockDispatcher) Dispatch(ctx context.Context, event *events.TaskRequestEvent) (string, error) {
	m.LastEvent = event
	return m.DispatchFn(ctx, event)
}

// fakeRegistry is an in-memory TaskRegistry
type fakeRegistry struct {
	mu    sync.Mutex
	tasks map[string]task.Task
	order []string
}

func newFakeRegistry(tasks ...task.Task) *fakeRegistry {
	r := &fakeRegistry{tasks: make(map[string]task.Task)}
	for _, t := range tasks {
		r.tasks[t.ID] = t
		r.order = append(r.order, t.ID)
	}
	return r
}

func (r *fakeRegistry) Get(id string) (task.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	return t, ok
}

func (r *fakeRegistry) List() []task.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]task.Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tasks[id])
	}
	return out
}

func (r *fakeRegistry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || !task.CanTransition(t.Status, task.StatusCancelled) {
		return false
	}
	t.Status = task.StatusCancelled
	r.tasks[id] = t
	return true
}

func (r *fakeRegistry) Stats() task.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := task.Stats{Total: len(r.tasks), MaxCapacity: 10, WorkerCount: 2, ByStatus: make(map[task.Status]int)}
	for _, t := range r.tasks {
		stats.ByStatus[t.Status]++
	}
	return stats
}

func serve(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}
