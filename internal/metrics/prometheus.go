package metrics

import (
	"maps"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every exported Prometheus metric name.
const Namespace = "opcore"

var _ prometheus.Collector = (*Collector)(nil)

// Describe implements prometheus.Collector. Metric names are only known at
// collection time, so the collector registers as unchecked.
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector. Counters are exported as
// opcore_<name>_total, gauges as opcore_<name> and histograms as summaries
// with 0.5, 0.9 and 0.99 quantiles over the retained values.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	counters := maps.Clone(c.counters)
	gauges := maps.Clone(c.gauges)
	histograms := make(map[string][]float64, len(c.histograms))
	for name, h := range c.histograms {
		histograms[name] = h.values()
	}
	c.mu.Unlock()

	seen := make(map[string]bool)
	emit := func(name string, build func(fqName string) prometheus.Metric) {
		if seen[name] {
			return
		}
		seen[name] = true
		ch <- build(name)
	}

	for name, v := range counters {
		emit(promName(name)+"_total", func(fq string) prometheus.Metric {
			return prometheus.MustNewConstMetric(
				prometheus.NewDesc(fq, "Counter "+name, nil, nil), prometheus.CounterValue, v)
		})
	}
	for name, v := range gauges {
		emit(promName(name), func(fq string) prometheus.Metric {
			return prometheus.MustNewConstMetric(
				prometheus.NewDesc(fq, "Gauge "+name, nil, nil), prometheus.GaugeValue, v)
		})
	}
	for name, values := range histograms {
		emit(promName(name), func(fq string) prometheus.Metric {
			count, sum, quantiles := summarize(values)
			return prometheus.MustNewConstSummary(
				prometheus.NewDesc(fq, "Histogram "+name, nil, nil), count, sum, quantiles)
		})
	}
}

// promName converts a metric name to a valid Prometheus name in Namespace
func promName(name string) string {
	var b strings.Builder
	b.WriteString(Namespace)
	b.WriteByte('_')
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func summarize(values []float64) (uint64, float64, map[float64]float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	quantiles := make(map[float64]float64, 3)
	if len(sorted) > 0 {
		for _, q := range []float64{0.5, 0.9, 0.99} {
			quantiles[q] = sorted[int(q*float64(len(sorted)-1))]
		}
	}
	return uint64(len(sorted)), sum, quantiles
}
