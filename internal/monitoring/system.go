package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/opcore/internal/metrics"
	"github.com/phrazzld/opcore/internal/redact"
)

// Defaults applied by NewSystem
const (
	DefaultInterval    = 30 * time.Second
	DefaultStopTimeout = 5 * time.Second
)

// SystemStatus is the combined view returned by System.Status.
type SystemStatus struct {
	Health           HealthResult       `json:"health"`
	Performance      PerformanceSummary `json:"performance"`
	Metrics          metrics.Counts     `json:"metrics_summary"`
	ActiveTrackers   int                `json:"active_trackers"`
	MonitoringActive bool               `json:"monitoring_active"`
}

// TickHook runs on every monitoring tick after alerts are checked.
type TickHook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   TickHook
}

// SystemOption configures a System.
type SystemOption func(*System)

// WithThresholds sets the health check thresholds. Without thresholds the
// health checker reports no individual checks.
func WithThresholds(thresholds map[string]float64) SystemOption {
	return func(s *System) {
		s.thresholds = thresholds
	}
}

// WithStopTimeout bounds how long Stop waits for the loop to exit.
func WithStopTimeout(d time.Duration) SystemOption {
	return func(s *System) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// WithAlertLogger sends alert log lines to logger instead of the main logger.
func WithAlertLogger(logger *slog.Logger) SystemOption {
	return func(s *System) {
		s.alertLogger = logger
	}
}

// System owns the performance monitor, health checker and alert manager for
// one collector, and runs the periodic monitoring loop.
type System struct {
	collector   *metrics.Collector
	performance *PerformanceMonitor
	health      *HealthChecker
	alerts      *AlertManager
	logger      *slog.Logger

	thresholds  map[string]float64
	stopTimeout time.Duration
	alertLogger *slog.Logger

	mu       sync.Mutex
	trackers map[string]*ProgressTracker
	hooks    []namedHook
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSystem creates a System whose alert manager carries the default rules.
func NewSystem(collector *metrics.Collector, logger *slog.Logger, opts ...SystemOption) *System {
	s := &System{
		collector:   collector,
		logger:      logger.With("component", "monitoring"),
		stopTimeout: DefaultStopTimeout,
		trackers:    make(map[string]*ProgressTracker),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.performance = NewPerformanceMonitor(collector)
	s.health = NewHealthChecker(collector, s.thresholds)
	s.alerts = NewAlertManager(collector, logger, s.alertLogger)
	s.alerts.AddDefaultRules()
	return s
}

// Collector returns the underlying metrics collector.
func (s *System) Collector() *metrics.Collector { return s.collector }

// Performance returns the performance monitor.
func (s *System) Performance() *PerformanceMonitor { return s.performance }

// Health returns the health checker.
func (s *System) Health() *HealthChecker { return s.health }

// Alerts returns the alert manager.
func (s *System) Alerts() *AlertManager { return s.alerts }

// AddTickHook registers fn to run on every tick. Errors and panics from fn
// are logged and do not affect other hooks or later ticks.
func (s *System) AddTickHook(name string, fn TickHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, namedHook{name: name, fn: fn})
}

// Start launches the monitoring loop, ticking every interval. Starting a
// running System only logs a warning.
func (s *System) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		if s.cancel == nil {
			s.logger.Warn("monitoring loop still stopping")
			return
		}
		s.logger.Warn("monitoring already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.loop(ctx, interval, done)
	s.logger.Info("monitoring started", "interval", interval)
}

// Stop signals the loop to exit and waits for it, at most StopTimeout.
// A loop that outlives the timeout still counts as running until it
// returns, and Start refuses to launch another one meanwhile.
func (s *System) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if done == nil {
		return
	}
	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
		s.logger.Info("monitoring stopped")
	case <-time.After(s.stopTimeout):
		s.logger.Warn("monitoring loop did not stop in time", "timeout", s.stopTimeout)
	}
}

// Running reports whether a monitoring loop goroutine is alive.
func (s *System) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

func (s *System) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		if s.done == done {
			s.cancel, s.done = nil, nil
		}
		s.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one monitoring pass: sample the host, check alerts, run hooks.
// Each step is isolated; a failure is logged and the next step still runs.
func (s *System) Tick(ctx context.Context) {
	s.safely("collect_system_metrics", func() error {
		_, err := s.collector.SystemMetrics(ctx)
		return err
	})
	s.safely("check_alerts", func() error {
		s.alerts.CheckAlerts(time.Now())
		return nil
	})

	s.mu.Lock()
	hooks := append([]namedHook(nil), s.hooks...)
	s.mu.Unlock()

	for _, hook := range hooks {
		s.safely(hook.name, func() error { return hook.fn(ctx) })
	}
}

func (s *System) safely(step string, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("monitoring step panicked",
				"step", step,
				"error", fmt.Sprintf("%v", rec))
		}
	}()

	if err := fn(); err != nil {
		s.logger.Error("monitoring step failed",
			"step", step,
			"error", redact.Error(err))
	}
}

// CreateTracker creates and registers a progress tracker for taskID,
// replacing any existing tracker for it.
func (s *System) CreateTracker(taskID string, steps []ProgressStep) *ProgressTracker {
	tracker := NewProgressTracker(taskID, steps, s.logger)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackers[taskID] = tracker
	return tracker
}

// Tracker returns the tracker registered for taskID.
func (s *System) Tracker(taskID string) (*ProgressTracker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[taskID]
	return t, ok
}

// RemoveTracker unregisters the tracker for taskID.
func (s *System) RemoveTracker(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trackers, taskID)
}

// Status returns health, performance and metric counts in one report.
func (s *System) Status(ctx context.Context) SystemStatus {
	health := s.health.Check(ctx)

	s.mu.Lock()
	trackers := len(s.trackers)
	active := s.done != nil
	s.mu.Unlock()

	return SystemStatus{
		Health:           health,
		Performance:      s.performance.Summary(),
		Metrics:          s.collector.Snapshot(),
		ActiveTrackers:   trackers,
		MonitoringActive: active,
	}
}
