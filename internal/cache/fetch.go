package cache

import (
	"context"
	"fmt"
	"time"
)

// Fetch returns the value cached under key, or calls compute, stores its
// result for ttl and returns it. Concurrent misses on the same key share a
// single compute call, which runs with the context of the first caller.
// Errors from compute are returned to every waiting caller and are not cached.
func (c *Cache) Fetch(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Another caller may have filled the key while we waited for the group
		if v, ok := c.peekValid(key); ok {
			return v, nil
		}

		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v, ttl)
		return v, nil
	})
	return v, err
}

// peekValid returns an unexpired value without touching counters or recency
func (c *Cache) peekValid(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Peek(key)
	if !ok || e.expired(c.now()) {
		return nil, false
	}
	return e.Value, true
}

// Memoize wraps fn so that results are cached per argument for ttl. The cache
// key is derived from name and arg with Key; an arg implementing Keyer
// supplies its own key. Arguments that cannot be serialized make the
// wrapped function fail with ErrUnserializableKey without calling fn.
func Memoize[A, T any](c *Cache, name string, ttl time.Duration, fn func(ctx context.Context, arg A) (T, error)) func(ctx context.Context, arg A) (T, error) {
	return func(ctx context.Context, arg A) (T, error) {
		var zero T

		key, err := Key(name, []any{arg}, nil)
		if err != nil {
			return zero, err
		}

		v, err := c.Fetch(ctx, key, ttl, func(ctx context.Context) (any, error) {
			return fn(ctx, arg)
		})
		if err != nil {
			return zero, err
		}
		if v == nil {
			return zero, nil
		}

		result, ok := v.(T)
		if !ok {
			return zero, fmt.Errorf("cached value for %s has type %T, want %T", key, v, zero)
		}
		return result, nil
	}
}
