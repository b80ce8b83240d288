package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Fetch(t *testing.T) {
	c, clock := newTestCache(10, time.Hour)
	ctx := context.Background()

	var calls int
	compute := func(ctx context.Context) (any, error) {
		calls++
		return calls, nil
	}

	v, err := c.Fetch(ctx, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = c.Fetch(ctx, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v, "second call is served from the cache")

	clock.Advance(time.Minute)
	v, err = c.Fetch(ctx, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, v, "expired value is recomputed")
}

func TestCache_FetchErrorsAreNotCached(t *testing.T) {
	c, _ := newTestCache(10, time.Hour)
	ctx := context.Background()

	fail := errors.New("backend unavailable")
	_, err := c.Fetch(ctx, "k", 0, func(ctx context.Context) (any, error) {
		return nil, fail
	})
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, 0, c.Len())

	v, err := c.Fetch(ctx, "k", 0, func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCache_FetchCollapsesConcurrentMisses(t *testing.T) {
	c := New(10, time.Hour)
	ctx := context.Background()

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "value", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 10)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = c.Fetch(ctx, "cold", 0, compute)
	}()
	<-started

	for i := 1; i < len(results); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Fetch(ctx, "cold", 0, compute)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "a cold key is computed once")
	for _, r := range results {
		assert.Equal(t, "value", r)
	}
}

func TestMemoize(t *testing.T) {
	c, _ := newTestCache(10, time.Hour)
	ctx := context.Background()

	var calls int
	score := Memoize(c, "score", time.Minute, func(ctx context.Context, repo string) (int, error) {
		calls++
		return len(repo), nil
	})

	v, err := score(ctx, "opcore")
	require.NoError(t, err)
	assert.Equal(t, 6, v)

	v, err = score(ctx, "opcore")
	require.NoError(t, err)
	assert.Equal(t, 6, v)
	assert.Equal(t, 1, calls)

	v, err = score(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, calls)
}

func TestMemoize_Keyer(t *testing.T) {
	c, _ := newTestCache(10, time.Hour)

	var calls int
	lookup := Memoize(c, "lookup", 0, func(ctx context.Context, ref repoRef) (string, error) {
		calls++
		return ref.CacheKey(), nil
	})

	_, err := lookup(context.Background(), repoRef{Owner: "acme", Name: "api", fetchedBy: "alice"})
	require.NoError(t, err)
	_, err = lookup(context.Background(), repoRef{Owner: "acme", Name: "api", fetchedBy: "bob"})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestMemoize_UnserializableArgument(t *testing.T) {
	c, _ := newTestCache(10, time.Hour)

	var called bool
	fn := Memoize(c, "callback", 0, func(ctx context.Context, cb func()) (int, error) {
		called = true
		return 1, nil
	})

	_, err := fn(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrUnserializableKey)
	assert.False(t, called, "computation must not run without a key")
}

func TestMemoize_TypeMismatch(t *testing.T) {
	c, _ := newTestCache(10, time.Hour)
	ctx := context.Background()

	asInt := Memoize(c, "shared", 0, func(ctx context.Context, s string) (int, error) { return 1, nil })
	asString := Memoize(c, "shared", 0, func(ctx context.Context, s string) (string, error) { return "one", nil })

	_, err := asInt(ctx, "x")
	require.NoError(t, err)

	_, err = asString(ctx, "x")
	assert.Error(t, err)
}
