package monitoring

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/phrazzld/opcore/internal/metrics"
	"github.com/phrazzld/opcore/internal/redact"
)

// HealthStatus is the overall result of a health check.
type HealthStatus string

// Overall health statuses
const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthError     HealthStatus = "error"
)

// Individual check outcomes
const (
	CheckPass = "pass"
	CheckFail = "fail"
)

// ResponseTimeThreshold names the threshold applied to the average endpoint
// response time in milliseconds.
const ResponseTimeThreshold = "response_time_ms"

// responseTimeWindow is the window averaged for the response time check
const responseTimeWindow = 5 * time.Minute

// CheckResult is the outcome of comparing one metric with its threshold.
type CheckResult struct {
	Status    string  `json:"status"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// HealthResult is the report produced by HealthChecker.Check.
type HealthResult struct {
	Status    HealthStatus           `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Error     string                 `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// HealthChecker compares current metric values with static thresholds.
type HealthChecker struct {
	metrics *metrics.Collector
	now     func() time.Time

	mu         sync.RWMutex
	thresholds map[string]float64
}

// NewHealthChecker creates a checker with a copy of thresholds.
func NewHealthChecker(collector *metrics.Collector, thresholds map[string]float64) *HealthChecker {
	return &HealthChecker{
		metrics:    collector,
		now:        time.Now,
		thresholds: maps.Clone(thresholds),
	}
}

// SetThreshold adds or replaces the threshold for name.
func (h *HealthChecker) SetThreshold(name string, value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.thresholds == nil {
		h.thresholds = make(map[string]float64)
	}
	h.thresholds[name] = value
}

// Thresholds returns a copy of the configured thresholds.
func (h *HealthChecker) Thresholds() map[string]float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return maps.Clone(h.thresholds)
}

// Check evaluates every threshold. A host metric of the same name is used
// when available, response_time_ms is the five minute average of endpoint
// response times, and any other name is read from the gauge of that name.
// Thresholds without a current value are skipped. A check passes when the
// value is strictly below its threshold.
func (h *HealthChecker) Check(ctx context.Context) HealthResult {
	result := HealthResult{
		Status:    HealthHealthy,
		Checks:    make(map[string]CheckResult),
		Timestamp: h.now().UTC(),
	}

	thresholds := h.Thresholds()

	system, err := h.metrics.SystemMetrics(ctx)
	if err != nil {
		result.Status = HealthError
		result.Error = redact.Error(err)
		return result
	}

	for name, threshold := range thresholds {
		value, ok := h.value(name, system)
		if !ok {
			continue
		}

		check := CheckResult{Status: CheckPass, Value: value, Threshold: threshold}
		if value >= threshold {
			check.Status = CheckFail
			result.Status = HealthUnhealthy
		}
		result.Checks[name] = check
	}

	return result
}

func (h *HealthChecker) value(name string, system map[string]float64) (float64, bool) {
	if v, ok := system[name]; ok {
		return v, true
	}
	if name == ResponseTimeThreshold {
		summary, ok := h.metrics.Summary(EndpointResponseTime, responseTimeWindow)
		if !ok {
			return 0, false
		}
		return summary.Avg * 1000, true
	}
	return h.metrics.Gauge(name)
}
