package monitoring

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/opcore/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// hostSampler returns a fixed reading, or err when set
type hostSampler struct {
	mu    sync.Mutex
	stats metrics.HostStats
	err   error
}

func (s *hostSampler) Sample(ctx context.Context) (metrics.HostStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, s.err
}

func (s *hostSampler) set(stats metrics.HostStats, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats, s.err = stats, err
}

func healthyHost() *hostSampler {
	return &hostSampler{stats: metrics.HostStats{CPUPercent: 10, MemoryPercent: 20, DiskPercent: 30}}
}

func newTestCollector(sampler metrics.SystemSampler) *metrics.Collector {
	return metrics.NewCollector(metrics.WithSampler(sampler))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testThresholds() map[string]float64 {
	return map[string]float64{
		"cpu_percent":         80,
		"memory_percent":      85,
		"disk_percent":        90,
		ResponseTimeThreshold: 5000,
	}
}
