package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/phrazzld/opcore/internal/metrics"
)

// Tag values recorded on duration metrics
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrorsMetric is the counter incremented for every failure observed by the
// performance monitor.
const ErrorsMetric = "errors"

// PerformanceSummary reports in-flight and failed calls per instrumented name.
type PerformanceSummary struct {
	Active      map[string]int `json:"active_requests"`
	Errors      map[string]int `json:"error_counts"`
	TotalActive int            `json:"total_active"`
	TotalErrors int            `json:"total_errors"`
}

// PanicError is recorded when an instrumented function panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// PerformanceMonitor measures durations, in-flight counts and failures of
// instrumented functions and records them in a metrics.Collector.
type PerformanceMonitor struct {
	metrics *metrics.Collector
	now     func() time.Time

	mu     sync.Mutex
	active map[string]int
	errors map[string]int
}

// NewPerformanceMonitor creates a monitor recording into collector.
func NewPerformanceMonitor(collector *metrics.Collector) *PerformanceMonitor {
	return &PerformanceMonitor{
		metrics: collector,
		now:     time.Now,
		active:  make(map[string]int),
		errors:  make(map[string]int),
	}
}

// Track marks the start of a call to name and returns the function that
// ends it. The returned function records the duration under
// function_duration_<name> and, when err is non-nil, counts the failure.
// Only the first call of the returned function has any effect.
func (m *PerformanceMonitor) Track(name string) func(err error) {
	start := m.now()
	m.adjustActive(name, 1)

	var once sync.Once
	return func(err error) {
		once.Do(func() {
			elapsed := m.now().Sub(start).Seconds()
			m.adjustActive(name, -1)
			m.observe(name, elapsed, err)
		})
	}
}

// Wrap instruments fn under name. Errors are returned unchanged and panics
// are re-raised after the call is recorded as failed.
func (m *PerformanceMonitor) Wrap(name string, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) (err error) {
		done := m.Track(name)
		defer func() {
			if rec := recover(); rec != nil {
				done(&PanicError{Value: rec})
				panic(rec)
			}
			done(err)
		}()
		return fn(ctx)
	}
}

// WrapValue instruments a function returning a value, like Wrap.
func WrapValue[T any](m *PerformanceMonitor, name string, fn func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (result T, err error) {
		done := m.Track(name)
		defer func() {
			if rec := recover(); rec != nil {
				done(&PanicError{Value: rec})
				panic(rec)
			}
			done(err)
		}()
		return fn(ctx)
	}
}

// Summary returns a copy of the in-flight and error counts.
func (m *PerformanceMonitor) Summary() PerformanceSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := PerformanceSummary{
		Active: make(map[string]int, len(m.active)),
		Errors: make(map[string]int, len(m.errors)),
	}
	for name, n := range m.active {
		s.Active[name] = n
		s.TotalActive += n
	}
	for name, n := range m.errors {
		s.Errors[name] = n
		s.TotalErrors += n
	}
	return s
}

func (m *PerformanceMonitor) adjustActive(name string, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active[name] += delta
	if m.active[name] <= 0 {
		delete(m.active, name)
	}
}

// observe records one finished call of name
func (m *PerformanceMonitor) observe(name string, seconds float64, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.metrics.RecordHistogram("function_duration_"+name, seconds, map[string]string{"status": status})

	if err == nil {
		return
	}

	m.mu.Lock()
	m.errors[name]++
	m.mu.Unlock()

	m.metrics.IncrementCounter("function_errors_"+name, 1, map[string]string{"error_type": errorType(err)})
	m.metrics.IncrementCounter(ErrorsMetric, 1, map[string]string{"source": name})
}

func errorType(err error) string {
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return "panic"
	}
	return fmt.Sprintf("%T", err)
}
