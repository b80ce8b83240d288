package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/opcore/internal/api/shared"
	"github.com/phrazzld/opcore/internal/cache"
	"github.com/phrazzld/opcore/internal/task"
)

// Request errors raised by the handlers themselves
var (
	ErrInvalidWindow  = errors.New("invalid window")
	ErrInvalidStatus  = errors.New("invalid task status")
	ErrTaskNotPending = errors.New("task is not pending")
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		return http.StatusNotFound

	case errors.Is(err, ErrTaskNotPending):
		return http.StatusConflict

	case errors.Is(err, task.ErrCapacityExceeded),
		errors.Is(err, task.ErrRegistryClosed):
		return http.StatusServiceUnavailable

	case errors.Is(err, task.ErrUnsupportedTaskType),
		errors.Is(err, task.ErrInvalidPayload),
		errors.Is(err, cache.ErrUnserializableKey),
		errors.Is(err, shared.ErrEmptyBody),
		errors.Is(err, ErrInvalidWindow),
		errors.Is(err, ErrInvalidStatus),
		errors.As(err, &validationErrs):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, ErrTaskNotPending):
		return "Only pending tasks can be cancelled"
	case errors.Is(err, task.ErrCapacityExceeded):
		return "Task capacity exceeded, try again later"
	case errors.Is(err, task.ErrRegistryClosed):
		return "Task registry is shutting down"
	case errors.Is(err, task.ErrUnsupportedTaskType):
		return "Unsupported task type"
	case errors.Is(err, task.ErrInvalidPayload):
		return "Invalid task payload"
	case errors.Is(err, cache.ErrUnserializableKey):
		return "Invalid cache key"
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"
	case errors.Is(err, ErrInvalidWindow):
		return "Invalid window, expected a positive duration such as 5m"
	case errors.Is(err, ErrInvalidStatus):
		return "Invalid task status"
	case errors.As(err, &validationErrs):
		return SanitizeValidationError(err)
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "Validation error"
	}

	first := validationErrs[0]
	return fmt.Sprintf("Invalid %s: %s", strings.ToLower(first.Field()), getValidationTagMessage(first.Tag()))
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the error response for err. defaultMsg replaces the
// generic message for errors that map to 500.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)

	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		message = defaultMsg
	}

	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
