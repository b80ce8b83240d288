// Package monitoring builds operational views on top of a metrics.Collector:
// instrumentation of functions and HTTP endpoints, threshold-based health
// checks, rate-limited alert rules, weighted progress tracking for long
// tasks and a background loop that ties them together.
package monitoring
