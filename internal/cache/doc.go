// Package cache provides a capacity- and time-bounded in-memory key/value
// store with combined TTL and least-recently-used eviction, deterministic
// cache key derivation and a compute-or-fetch wrapper that collapses
// concurrent misses on the same key.
//
// A Cache has no background goroutines. Expired entries are removed lazily
// on Get, or eagerly by CleanupExpired, which callers may schedule.
package cache
