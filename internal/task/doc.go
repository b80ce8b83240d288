// Package task runs opaque units of work off the request path.
// It provides a fixed-size worker pool fed by a bounded queue, a registry that
// tracks every task through a forward-only status lifecycle, and a background
// reaper that bounds memory by removing old finished tasks.
package task
