package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/opcore/internal/cache"
	"github.com/phrazzld/opcore/internal/metrics"
	"github.com/phrazzld/opcore/internal/monitoring"
	"github.com/phrazzld/opcore/internal/task"
)

// Built-in task types
const (
	jobCacheSweep     = "cache_sweep"
	jobSystemSnapshot = "system_snapshot"
)

const (
	// snapshotTTL is how long a computed snapshot is served from the cache
	snapshotTTL = 15 * time.Second

	defaultSnapshotWindow = 5 * time.Minute
)

// snapshotMetrics are summarized in every system snapshot
var snapshotMetrics = []string{
	monitoring.EndpointResponseTime,
	metricTaskDuration,
	monitoring.ErrorsMetric,
}

type cacheSweepPayload struct {
	// Prefix limits the sweep to keys starting with it. Without a prefix
	// only expired entries are removed.
	Prefix string `json:"prefix"`
}

type cacheSweepResult struct {
	Prefix  string `json:"prefix,omitempty"`
	Removed int    `json:"removed"`
}

type systemSnapshotPayload struct {
	Window string `json:"window"`
}

// SystemSnapshot is the result of a system_snapshot task.
type SystemSnapshot struct {
	TakenAt time.Time                  `json:"taken_at"`
	Window  string                     `json:"window"`
	Host    map[string]float64         `json:"host"`
	Metrics map[string]metrics.Summary `json:"metrics"`
	Tasks   task.Stats                 `json:"tasks"`
	Cache   cache.Stats                `json:"cache"`
}

// registerJobs registers the built-in task types with the dispatcher.
func (app *application) registerJobs() {
	app.dispatcher.Register(jobCacheSweep, app.cacheSweepFactory)
	app.dispatcher.Register(jobSystemSnapshot, app.systemSnapshotFactory())
}

// decodePayload strictly decodes payload into v. An empty payload leaves v untouched.
func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// instrument wraps fn with the performance monitor under job_<name>
func (app *application) instrument(name string, fn func(ctx context.Context) (any, error)) task.Work {
	return task.WorkFunc(monitoring.WrapValue(app.monitor.Performance(), "job_"+name, fn))
}

func (app *application) cacheSweepFactory(payload json.RawMessage) (task.Work, error) {
	var p cacheSweepPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}

	return app.instrument(jobCacheSweep, func(ctx context.Context) (any, error) {
		if p.Prefix != "" {
			return cacheSweepResult{Prefix: p.Prefix, Removed: app.cache.DeletePrefix(p.Prefix)}, nil
		}
		return cacheSweepResult{Removed: app.cache.CleanupExpired()}, nil
	}), nil
}

// systemSnapshotFactory returns the factory for system_snapshot tasks.
// Snapshots are memoized per window for snapshotTTL.
func (app *application) systemSnapshotFactory() task.WorkFactory {
	snapshot := cache.Memoize(app.cache, jobSystemSnapshot, snapshotTTL, app.buildSnapshot)

	return func(payload json.RawMessage) (task.Work, error) {
		var p systemSnapshotPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}

		window := defaultSnapshotWindow
		if p.Window != "" {
			d, err := time.ParseDuration(p.Window)
			if err != nil || d <= 0 {
				return nil, fmt.Errorf("invalid window %q", p.Window)
			}
			window = d
		}

		return app.instrument(jobSystemSnapshot, func(ctx context.Context) (any, error) {
			return snapshot(ctx, window)
		}), nil
	}
}

// buildSnapshot samples the host and summarizes metrics, tasks and cache,
// reporting progress per step.
func (app *application) buildSnapshot(ctx context.Context, window time.Duration) (SystemSnapshot, error) {
	trackerID, ok := task.IDFromContext(ctx)
	if !ok {
		trackerID = uuid.NewString()
	}
	tracker := app.monitor.CreateTracker(trackerID, []monitoring.ProgressStep{
		{Name: "sample_host", Weight: 2},
		{Name: "summarize_metrics", Weight: 2},
		{Name: "collect_stats", Weight: 1},
	})
	defer app.monitor.RemoveTracker(trackerID)
	tracker.OnProgress(func(pct float64) { task.ReportProgress(ctx, pct) })

	snap := SystemSnapshot{
		TakenAt: time.Now().UTC(),
		Window:  window.String(),
		Metrics: make(map[string]metrics.Summary),
	}

	err := runStep(tracker, "sample_host", func() error {
		host, err := app.collector.SystemMetrics(ctx)
		snap.Host = host
		return err
	})
	if err != nil {
		return SystemSnapshot{}, err
	}

	err = runStep(tracker, "summarize_metrics", func() error {
		for _, name := range snapshotMetrics {
			if summary, ok := app.collector.Summary(name, window); ok {
				snap.Metrics[name] = summary
			}
		}
		return nil
	})
	if err != nil {
		return SystemSnapshot{}, err
	}

	err = runStep(tracker, "collect_stats", func() error {
		snap.Tasks = app.registry.Stats()
		snap.Cache = app.cache.Stats()
		return nil
	})
	if err != nil {
		return SystemSnapshot{}, err
	}

	return snap, nil
}

// runStep runs fn as the named tracker step. Tracker errors fail the step
// before or after fn runs.
func runStep(tracker *monitoring.ProgressTracker, name string, fn func() error) error {
	if err := tracker.StartStep(name); err != nil {
		return fmt.Errorf("failed to start step: %w", err)
	}
	err := fn()
	if cerr := tracker.CompleteStep(name, err); cerr != nil {
		return fmt.Errorf("failed to complete step: %w", cerr)
	}
	return err
}

// newCleanupHook returns a tick hook removing expired cache entries at most
// once per interval.
func newCleanupHook(c *cache.Cache, interval time.Duration) monitoring.TickHook {
	var (
		mu   sync.Mutex
		last time.Time
	)

	return func(ctx context.Context) error {
		mu.Lock()
		now := time.Now()
		due := last.IsZero() || now.Sub(last) >= interval
		if due {
			last = now
		}
		mu.Unlock()

		if due {
			c.CleanupExpired()
		}
		return nil
	}
}
