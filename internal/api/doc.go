// Package api exposes the operational core over HTTP: health and status,
// metric summaries, task submission and inspection, and cache management.
// Handlers translate HTTP concerns into calls on the task registry, the
// monitoring system and the cache, and map their errors to status codes.
package api
