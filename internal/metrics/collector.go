package metrics

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sync"
	"time"
)

// DefaultHistoryLimit bounds the samples kept per metric name.
const DefaultHistoryLimit = 1000

// Sample is one recorded value of a metric.
type Sample struct {
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Summary aggregates the samples of one metric over a time window.
type Summary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	Latest float64 `json:"latest"`
}

// Counts reports how many distinct metrics of each kind are tracked.
type Counts struct {
	Metrics    int `json:"metrics"`
	Counters   int `json:"counters"`
	Gauges     int `json:"gauges"`
	Histograms int `json:"histograms"`
}

// Option configures a Collector.
type Option func(*Collector)

// WithHistoryLimit sets how many samples are kept per metric name.
func WithHistoryLimit(limit int) Option {
	return func(c *Collector) {
		if limit > 0 {
			c.historyLimit = limit
		}
	}
}

// WithSampler replaces the host sampler used by SystemMetrics.
func WithSampler(s SystemSampler) Option {
	return func(c *Collector) {
		c.sampler = s
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// Collector stores metrics in memory. All state is guarded by one mutex and
// recording never performs I/O.
type Collector struct {
	mu           sync.Mutex
	historyLimit int
	samples      map[string]*ring[Sample]
	counters     map[string]float64
	gauges       map[string]float64
	histograms   map[string]*ring[float64]

	sampler SystemSampler
	now     func() time.Time
}

// NewCollector creates an empty collector that samples the local host.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		historyLimit: DefaultHistoryLimit,
		samples:      make(map[string]*ring[Sample]),
		counters:     make(map[string]float64),
		gauges:       make(map[string]float64),
		histograms:   make(map[string]*ring[float64]),
		sampler:      NewHostSampler("/"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IncrementCounter adds delta to the named counter and records the running
// total as a sample.
func (c *Collector) IncrementCounter(name string, delta float64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counters[name] += delta
	c.appendLocked(name, c.counters[name], tags)
}

// SetGauge sets the named gauge and records the value as a sample.
func (c *Collector) SetGauge(name string, value float64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gauges[name] = value
	c.appendLocked(name, value, tags)
}

// RecordHistogram adds value to the named histogram and records it as a sample.
func (c *Collector) RecordHistogram(name string, value float64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.histograms[name]
	if !ok {
		h = newRing[float64](c.historyLimit)
		c.histograms[name] = h
	}
	h.push(value)
	c.appendLocked(name, value, tags)
}

// RecordMetric appends a raw sample without touching any aggregate.
func (c *Collector) RecordMetric(name string, value float64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(name, value, tags)
}

func (c *Collector) appendLocked(name string, value float64, tags map[string]string) {
	buf, ok := c.samples[name]
	if !ok {
		buf = newRing[Sample](c.historyLimit)
		c.samples[name] = buf
	}
	buf.push(Sample{Value: value, Timestamp: c.now(), Tags: maps.Clone(tags)})
}

// Counter returns the current value of the named counter.
func (c *Collector) Counter(name string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[name]
}

// Gauge returns the last value set on the named gauge.
func (c *Collector) Gauge(name string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.gauges[name]
	return v, ok
}

// Latest returns the most recent sample recorded under name.
func (c *Collector) Latest(name string) (Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, ok := c.samples[name]
	if !ok {
		return Sample{}, false
	}
	return buf.last()
}

// Samples returns the samples recorded under name within window of now,
// oldest first.
func (c *Collector) Samples(name string, window time.Duration) []Sample {
	c.mu.Lock()
	buf, ok := c.samples[name]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	all := buf.values()
	now := c.now()
	c.mu.Unlock()

	from := now.Add(-window)
	out := make([]Sample, 0, len(all))
	for _, s := range all {
		if !s.Timestamp.Before(from) && !s.Timestamp.After(now) {
			out = append(out, s)
		}
	}
	return out
}

// Summary aggregates the samples of name whose timestamp lies in
// [now-window, now]. It reports false when there are none.
func (c *Collector) Summary(name string, window time.Duration) (Summary, bool) {
	samples := c.Samples(name, window)
	if len(samples) == 0 {
		return Summary{}, false
	}

	s := Summary{
		Count:  len(samples),
		Min:    math.Inf(1),
		Max:    math.Inf(-1),
		Latest: samples[len(samples)-1].Value,
	}
	var sum float64
	for _, sample := range samples {
		s.Min = math.Min(s.Min, sample.Value)
		s.Max = math.Max(s.Max, sample.Value)
		sum += sample.Value
	}
	s.Avg = sum / float64(len(samples))
	return s, true
}

// Snapshot returns how many metrics of each kind are tracked.
func (c *Collector) Snapshot() Counts {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Counts{
		Metrics:    len(c.samples),
		Counters:   len(c.counters),
		Gauges:     len(c.gauges),
		Histograms: len(c.histograms),
	}
}

// SystemMetrics samples the host and returns cpu_percent, memory_percent,
// memory_used_gb, memory_available_gb, disk_percent, disk_used_gb and
// disk_free_gb. Each value is also stored as a system_<name> gauge.
func (c *Collector) SystemMetrics(ctx context.Context) (map[string]float64, error) {
	stats, err := c.sampler.Sample(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sample system metrics: %w", err)
	}

	values := stats.Map()
	for name, v := range values {
		c.SetGauge("system_"+name, v, nil)
	}
	return values, nil
}
