package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, c *Collector) map[string]*dto.MetricFamily {
	t.Helper()

	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(c))

	families, err := registry.Gather()
	require.NoError(t, err)

	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestCollector_Prometheus(t *testing.T) {
	c := NewCollector()
	c.IncrementCounter("endpoint_requests", 3, nil)
	c.SetGauge("system_cpu_percent", 12.5, nil)
	for _, v := range []float64{1, 2, 3, 4} {
		c.RecordHistogram("function_duration_score.repo", v, nil)
	}

	families := gather(t, c)

	counter := families["opcore_endpoint_requests_total"]
	require.NotNil(t, counter)
	assert.Equal(t, dto.MetricType_COUNTER, counter.GetType())
	assert.Equal(t, 3.0, counter.GetMetric()[0].GetCounter().GetValue())

	gauge := families["opcore_system_cpu_percent"]
	require.NotNil(t, gauge)
	assert.Equal(t, 12.5, gauge.GetMetric()[0].GetGauge().GetValue())

	summary := families["opcore_function_duration_score_repo"]
	require.NotNil(t, summary, "invalid characters are replaced")
	assert.Equal(t, uint64(4), summary.GetMetric()[0].GetSummary().GetSampleCount())
	assert.Equal(t, 10.0, summary.GetMetric()[0].GetSummary().GetSampleSum())
}

func TestCollector_PrometheusNameCollision(t *testing.T) {
	c := NewCollector()
	c.SetGauge("load", 1, nil)
	c.RecordHistogram("load", 2, nil)

	// Gathering must not fail on the duplicate name
	families := gather(t, c)
	assert.Contains(t, families, "opcore_load")
}

func TestSummarize(t *testing.T) {
	count, sum, quantiles := summarize([]float64{5, 1, 3, 2, 4})
	assert.Equal(t, uint64(5), count)
	assert.Equal(t, 15.0, sum)
	assert.Equal(t, 3.0, quantiles[0.5])

	count, _, quantiles = summarize(nil)
	assert.Equal(t, uint64(0), count)
	assert.Empty(t, quantiles)
}
