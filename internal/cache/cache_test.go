package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrComputeCachesWithinTTL(t *testing.T) {
	c := New()
	calls := 0

	for i := 0; i < 3; i++ {
		v, err := c.GetOrCompute("k", time.Minute, func() (any, error) {
			calls++
			return "value", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "value", v)
	}

	assert.Equal(t, 1, calls, "fresh entries must not recompute")
}

func TestGetOrComputeExpiry(t *testing.T) {
	c := New()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	calls := 0
	compute := func() (any, error) {
		calls++
		return calls, nil
	}

	v, err := c.GetOrCompute("k", 30*time.Second, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// Still fresh just inside the TTL.
	now = now.Add(29 * time.Second)
	v, err = c.GetOrCompute("k", 30*time.Second, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// Expired: the next caller recomputes.
	now = now.Add(2 * time.Second)
	v, err = c.GetOrCompute("k", 30*time.Second, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

// N concurrent callers on a cold key trigger exactly one computation
// and all observe its value.
func TestGetOrComputeSingleFlight(t *testing.T) {
	c := New()

	var calls atomic.Int32
	release := make(chan struct{})

	const n = 20
	results := make([]any, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCompute("k", time.Minute, func() (any, error) {
				calls.Add(1)
				<-release
				return "shared", nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Let the goroutines pile up on the flight before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "expected exactly one computation")
	for i := 0; i < n; i++ {
		assert.Equal(t, "shared", results[i])
	}
}

func TestGetOrComputeFailurePreservesValue(t *testing.T) {
	c := New()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.GetOrCompute("k", 10*time.Second, func() (any, error) {
		return "good", nil
	})
	require.NoError(t, err)

	// Expire, then fail the recomputation. The error propagates but
	// the stored value must survive for stale-preferred readers.
	now = now.Add(time.Minute)
	_, err = c.GetOrCompute("k", 10*time.Second, func() (any, error) {
		return nil, errors.New("feed down")
	})
	assert.Error(t, err)

	// Rewind freshness by re-reading the raw entry.
	v, ok := c.get("k")
	assert.False(t, ok, "entry is expired")
	assert.Nil(t, v)

	c.mu.RLock()
	e, exists := c.entries["k"]
	c.mu.RUnlock()
	require.True(t, exists, "failed computation must not evict the old value")
	assert.Equal(t, "good", e.value)
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	c := New()
	calls := 0

	for i := 0; i < 2; i++ {
		_, err := c.GetOrCompute("cold", time.Minute, func() (any, error) {
			calls++
			return nil, errors.New("boom")
		})
		assert.Error(t, err)
	}
	assert.Equal(t, 2, calls, "errors must not populate the cache")
}

func TestClear(t *testing.T) {
	c := New()
	seed := func(key string) {
		_, err := c.GetOrCompute(key, time.Minute, func() (any, error) { return key, nil })
		require.NoError(t, err)
	}
	seed("a")
	seed("b")
	seed("c")

	c.Clear("a")
	_, ok := c.get("a")
	assert.False(t, ok)
	_, ok = c.get("b")
	assert.True(t, ok)

	c.Clear()
	_, ok = c.get("b")
	assert.False(t, ok)
	_, ok = c.get("c")
	assert.False(t, ok)
}

func TestFeedTimestamps(t *testing.T) {
	c := New()

	_, ok := c.FeedTimestamp("irt")
	assert.False(t, ok, "unknown group has no timestamp")

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.SetFeedTimestamp("irt", ts)

	got, ok := c.FeedTimestamp("irt")
	require.True(t, ok)
	assert.Equal(t, ts, got)

	all := c.FeedTimestamps()
	assert.Len(t, all, 1)
	assert.Equal(t, ts, all["irt"])

	// The returned map is a copy; mutating it must not leak back.
	all["bmt"] = ts
	_, ok = c.FeedTimestamp("bmt")
	assert.False(t, ok)
}
