package api

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/opcore/internal/metrics"
	"github.com/phrazzld/opcore/internal/monitoring"
)

type stubHost struct {
	mu    sync.Mutex
	stats metrics.HostStats
}

func (s *stubHost) Sample(ctx context.Context) (metrics.HostStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, nil
}

func (s *stubHost) set(stats metrics.HostStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
}

func newMonitoringFixture(t *testing.T) (*monitoring.System, *stubHost, http.Handler) {
	t.Helper()

	host := &stubHost{stats: metrics.HostStats{CPUPercent: 12, MemoryPercent: 30, DiskPercent: 40}}
	collector := metrics.NewCollector(metrics.WithSampler(host))
	system := monitoring.NewSystem(collector, discardLogger(), monitoring.WithThresholds(map[string]float64{
		"cpu_percent":    80,
		"memory_percent": 85,
	}))

	h := NewMonitoringHandler(system, discardLogger())
	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Get("/api/status", h.Status)
	r.Get("/api/metrics/{name}", h.MetricSummary)
	return system, host, r
}

func TestMonitoringHandler_Health(t *testing.T) {
	_, host, router := newMonitoringFixture(t)

	rec := serve(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[monitoring.HealthResult](t, rec)
	assert.Equal(t, monitoring.HealthHealthy, result.Status)
	assert.Equal(t, monitoring.CheckPass, result.Checks["cpu_percent"].Status)

	host.set(metrics.HostStats{CPUPercent: 99, MemoryPercent: 30})
	rec = serve(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	result = decodeBody[monitoring.HealthResult](t, rec)
	assert.Equal(t, monitoring.HealthUnhealthy, result.Status)
	assert.Equal(t, monitoring.CheckFail, result.Checks["cpu_percent"].Status)
}

func TestMonitoringHandler_Status(t *testing.T) {
	system, _, router := newMonitoringFixture(t)
	system.CreateTracker("task-1", []monitoring.ProgressStep{{Name: "only"}})

	rec := serve(t, router, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	status := decodeBody[monitoring.SystemStatus](t, rec)
	assert.Equal(t, monitoring.HealthHealthy, status.Health.Status)
	assert.Equal(t, 1, status.ActiveTrackers)
	assert.False(t, status.MonitoringActive)
}

func TestMonitoringHandler_MetricSummary(t *testing.T) {
	system, _, router := newMonitoringFixture(t)
	collector := system.Collector()
	collector.RecordHistogram("job_seconds", 1, nil)
	collector.RecordHistogram("job_seconds", 3, nil)

	rec := serve(t, router, http.MethodGet, "/api/metrics/job_seconds?window=1m", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[MetricSummaryResponse](t, rec)
	assert.Equal(t, "job_seconds", got.Name)
	assert.Equal(t, "1m0s", got.Window)
	assert.Equal(t, metrics.Summary{Count: 2, Min: 1, Max: 3, Avg: 2, Latest: 3}, got.Summary)

	rec = serve(t, router, http.MethodGet, "/api/metrics/job_seconds", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5m0s", decodeBody[MetricSummaryResponse](t, rec).Window)

	rec = serve(t, router, http.MethodGet, "/api/metrics/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for _, bad := range []string{"soon", "-1m", "0s"} {
		rec = serve(t, router, http.MethodGet, "/api/metrics/job_seconds?window="+bad, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}
