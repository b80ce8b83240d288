package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/opcore/internal/api/shared"
	"github.com/phrazzld/opcore/internal/cache"
	"github.com/phrazzld/opcore/internal/task"
)

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"task not found", task.ErrTaskNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", task.ErrTaskNotFound), http.StatusNotFound},
		{"not pending", ErrTaskNotPending, http.StatusConflict},
		{"capacity", task.ErrCapacityExceeded, http.StatusServiceUnavailable},
		{"closed", task.ErrRegistryClosed, http.StatusServiceUnavailable},
		{"unsupported type", task.ErrUnsupportedTaskType, http.StatusBadRequest},
		{"invalid payload", task.ErrInvalidPayload, http.StatusBadRequest},
		{"cache key", cache.ErrUnserializableKey, http.StatusBadRequest},
		{"empty body", shared.ErrEmptyBody, http.StatusBadRequest},
		{"window", ErrInvalidWindow, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
	assert.Equal(t, "Task not found", GetSafeErrorMessage(fmt.Errorf("x: %w", task.ErrTaskNotFound)))

	leaky := errors.New("open /var/lib/opcore/state.json: permission denied")
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(leaky))
}

func TestSanitizeValidationError(t *testing.T) {
	err := shared.ValidateRequest(&CreateTaskRequest{})
	require.Error(t, err)
	assert.Equal(t, "Invalid type: required field", SanitizeValidationError(err))

	long := make([]byte, 65)
	for i := range long {
		long[i] = 'x'
	}
	err = shared.ValidateRequest(&CreateTaskRequest{Type: string(long)})
	assert.Equal(t, "Invalid type: too long", SanitizeValidationError(err))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("other")))
}

func TestHandleAPIError(t *testing.T) {
	t.Run("default message replaces generic 500 text", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		HandleAPIError(rec, req, errors.New("token=supersecretvalue leaked"), "Failed to load tasks")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decodeBody[shared.ErrorResponse](t, rec)
		assert.Equal(t, "Failed to load tasks", body.Error)
		assert.NotContains(t, rec.Body.String(), "supersecret")
	})

	t.Run("mapped errors keep their message", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(shared.SetTraceID(req.Context()))

		HandleAPIError(rec, req, task.ErrTaskNotFound, "ignored")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeBody[shared.ErrorResponse](t, rec)
		assert.Equal(t, "Task not found", body.Error)
		assert.Equal(t, shared.GetTraceID(req.Context()), body.TraceID)
	})
}
