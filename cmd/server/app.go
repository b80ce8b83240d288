package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/phrazzld/opcore/internal/cache"
	"github.com/phrazzld/opcore/internal/config"
	"github.com/phrazzld/opcore/internal/events"
	"github.com/phrazzld/opcore/internal/metrics"
	"github.com/phrazzld/opcore/internal/monitoring"
	"github.com/phrazzld/opcore/internal/task"
)

// Metric names recorded by the application wiring
const (
	metricTaskDuration   = "task_duration_seconds"
	metricTaskQueueDepth = "task_queue_depth"
	metricTasksTracked   = "tasks_tracked"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	collector *metrics.Collector
	cache     *cache.Cache
	registry  *task.Registry
	monitor   *monitoring.System

	// Event system
	emitter    *events.InMemoryEventEmitter
	dispatcher *task.FactoryEventHandler

	prometheus *prometheus.Registry
	alertLog   io.Closer
}

// newApplicationOption adjusts dependencies before they are wired, e.g. to
// inject a host sampler in tests.
type newApplicationOption func(*[]metrics.Option)

func withSampler(s metrics.SystemSampler) newApplicationOption {
	return func(opts *[]metrics.Option) {
		*opts = append(*opts, metrics.WithSampler(s))
	}
}

// newApplication creates a new application instance with all dependencies
// initialized. The task registry is running on return; the monitoring loop
// starts in Run.
func newApplication(cfg *config.Config, logger *slog.Logger, opts ...newApplicationOption) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	metricOpts := []metrics.Option{metrics.WithHistoryLimit(cfg.Monitoring.HistoryLimit)}
	for _, opt := range opts {
		opt(&metricOpts)
	}
	app.collector = metrics.NewCollector(metricOpts...)

	app.cache = cache.New(cfg.Cache.MaxSize, cfg.Cache.DefaultTTL)

	app.registry = task.NewRegistry(task.Config{
		WorkerCount:  cfg.Task.WorkerCount,
		MaxTasks:     cfg.Task.MaxTasks,
		MaxTaskAge:   cfg.Task.MaxTaskAge,
		ReapInterval: cfg.Task.ReapInterval,
		TaskTimeout:  cfg.Task.TaskTimeout,
	}, logger)
	app.registry.OnFinish(app.recordTaskOutcome)

	alertLogger, alertLog, err := openAlertLogger(cfg.Monitoring.AlertLogPath)
	if err != nil {
		app.shutdownRegistry()
		return nil, err
	}
	app.alertLog = alertLog

	monitorOpts := []monitoring.SystemOption{
		monitoring.WithThresholds(cfg.Monitoring.Thresholds),
		monitoring.WithStopTimeout(cfg.Monitoring.StopTimeout),
	}
	if alertLogger != nil {
		monitorOpts = append(monitorOpts, monitoring.WithAlertLogger(alertLogger))
	}
	app.monitor = monitoring.NewSystem(app.collector, logger, monitorOpts...)
	app.monitor.AddTickHook("cache_cleanup", newCleanupHook(app.cache, cfg.Cache.CleanupInterval))
	app.monitor.AddTickHook("task_stats", app.recordTaskStats)
	app.monitor.Alerts().AddHandler(app.onAlert)

	// Initialize event emitter and the task factories behind it
	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.dispatcher = task.NewFactoryEventHandler(app.registry, logger)
	app.registerJobs()
	app.emitter.RegisterHandler(app.dispatcher)

	app.prometheus = prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		app.collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := app.prometheus.Register(c); err != nil {
			app.cleanup()
			return nil, fmt.Errorf("failed to register prometheus collector: %w", err)
		}
	}

	logger.Info("Application initialized successfully",
		"task_types", app.dispatcher.Types())
	return app, nil
}

// Run starts the monitoring loop and the HTTP server, and cleans up once the
// server has shut down.
func (app *application) Run(ctx context.Context) error {
	app.monitor.Start(app.config.Monitoring.Interval)
	defer app.cleanup()

	router := app.setupRouter()
	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// recordTaskOutcome feeds every finished task into the metrics collector
func (app *application) recordTaskOutcome(t task.Task) {
	status := string(t.Status)
	app.collector.IncrementCounter("tasks_"+status, 1, nil)
	if t.Status != task.StatusCancelled {
		app.collector.RecordHistogram(metricTaskDuration, t.Duration().Seconds(), map[string]string{"status": status})
	}
	if t.Status == task.StatusFailed {
		app.collector.IncrementCounter(monitoring.ErrorsMetric, 1, map[string]string{"source": "task"})
	}
}

// recordTaskStats publishes registry occupancy as gauges on every tick
func (app *application) recordTaskStats(ctx context.Context) error {
	stats := app.registry.Stats()
	app.collector.SetGauge(metricTaskQueueDepth, float64(stats.Queued), nil)
	app.collector.SetGauge(metricTasksTracked, float64(stats.Total), nil)
	for _, status := range task.AllStatuses {
		app.collector.SetGauge("task_status_"+string(status), float64(stats.ByStatus[status]), nil)
	}
	return nil
}

// onAlert reacts to memory pressure by requesting a sweep of expired cache entries
func (app *application) onAlert(rule, message string) error {
	if rule != "high_memory" {
		return nil
	}

	event, err := events.NewTaskRequestEvent(jobCacheSweep, "cache sweep on memory pressure", nil)
	if err != nil {
		return err
	}
	return app.emitter.EmitEvent(context.Background(), event)
}

func (app *application) shutdownRegistry() {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()

	if err := app.registry.Shutdown(ctx); err != nil {
		app.logger.Error("Task registry shutdown incomplete", "error", err)
	}
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.monitor != nil {
		app.monitor.Stop()
	}
	if app.registry != nil {
		app.shutdownRegistry()
	}
	if app.alertLog != nil {
		if err := app.alertLog.Close(); err != nil {
			app.logger.Error("Error closing alert log", "error", err)
		}
		app.alertLog = nil
	}

	app.logger.Info("Application shutdown completed")
}
