package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/opcore/internal/api/shared"
	"github.com/phrazzld/opcore/internal/metrics"
	"github.com/phrazzld/opcore/internal/monitoring"
	"github.com/phrazzld/opcore/internal/platform/logger"
)

// MetricSummaryResponse is the summary of one metric over a window
type MetricSummaryResponse struct {
	Name    string          `json:"name"`
	Window  string          `json:"window"`
	Summary metrics.Summary `json:"summary"`
}

// MonitoringHandler serves health, status and metric summaries
type MonitoringHandler struct {
	system *monitoring.System
	logger *slog.Logger
}

// NewMonitoringHandler creates a new MonitoringHandler
func NewMonitoringHandler(system *monitoring.System, logger *slog.Logger) *MonitoringHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for MonitoringHandler")
	}

	return &MonitoringHandler{
		system: system,
		logger: logger.With(slog.String("component", "monitoring_handler")),
	}
}

// Health handles GET /health requests. Anything other than a healthy
// result answers 503 so load balancers take the instance out of rotation.
func (h *MonitoringHandler) Health(w http.ResponseWriter, r *http.Request) {
	result := h.system.Health().Check(r.Context())

	status := http.StatusOK
	if result.Status != monitoring.HealthHealthy {
		status = http.StatusServiceUnavailable
		logger.FromContextOrDefault(r.Context(), h.logger).Warn("health check not passing",
			"status", result.Status,
			"error", result.Error)
	}
	shared.RespondWithJSON(w, r, status, result)
}

// Status handles GET /api/status requests
func (h *MonitoringHandler) Status(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.system.Status(r.Context()))
}

// MetricSummary handles GET /api/metrics/{name} requests
func (h *MonitoringHandler) MetricSummary(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	window, err := parseWindow(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	summary, ok := h.system.Collector().Summary(name, window)
	if !ok {
		shared.RespondWithError(w, r, http.StatusNotFound, "No samples for metric in window")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, MetricSummaryResponse{
		Name:    name,
		Window:  window.String(),
		Summary: summary,
	})
}
