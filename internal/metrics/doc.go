// Package metrics records counters, gauges, histogram values and raw tagged
// samples in memory and answers time-windowed summary queries over them.
//
// Every metric name keeps a bounded history of raw samples; once the limit is
// reached the oldest samples are dropped. Counters and gauges are tracked as
// scalar aggregates alongside that history. Host CPU, memory and disk usage
// are pulled on demand through a SystemSampler, and the whole collector can
// be registered with a Prometheus registry.
package metrics
