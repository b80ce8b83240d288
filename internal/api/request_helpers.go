package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/phrazzld/opcore/internal/task"
)

// defaultWindow applies when a request does not specify ?window=
const defaultWindow = 5 * time.Minute

// parseWindow reads the window query parameter as a positive duration.
func parseWindow(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return defaultWindow, nil
	}

	window, err := time.ParseDuration(raw)
	if err != nil || window <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, raw)
	}
	return window, nil
}

// parseStatus reads the optional status query parameter.
// ok is false when no filter was requested.
func parseStatus(r *http.Request) (status task.Status, ok bool, err error) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return "", false, nil
	}

	for _, s := range task.AllStatuses {
		if string(s) == raw {
			return s, true, nil
		}
	}
	return "", false, fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}
