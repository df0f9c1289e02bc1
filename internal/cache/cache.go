// Package cache provides the TTL result cache and per-feed-group
// freshness tracking that sit between the derivation pipeline and its
// consumers.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache memoizes computed results per key with a TTL and guarantees
// at most one in-flight computation per key: concurrent callers that
// miss share the same computation instead of duplicating it. Failed
// computations never evict a previously stored value.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	timestamps map[string]time.Time // feed group -> last successful poll

	group singleflight.Group
	now   func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries:    make(map[string]entry),
		timestamps: make(map[string]time.Time),
		now:        time.Now,
	}
}

// GetOrCompute returns the cached value for key when it is fresher
// than ttl, otherwise runs fn (once across concurrent callers) and
// stores its result. On error the previous value, if any, is left
// untouched and the error is returned.
func (c *Cache) GetOrCompute(key string, ttl time.Duration, fn func() (any, error)) (any, error) {
	if v, ok := c.get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A caller that queued behind the flight may find the entry
		// already populated.
		if v, ok := c.get(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		c.set(key, v, ttl)
		return v, nil
	})
	return v, err
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
}

// Clear evicts the named keys, or every entry when called with none.
// The nightly cleanup uses the latter to bound memory from keyed
// per-station caches.
func (c *Cache) Clear(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(keys) == 0 {
		c.entries = make(map[string]entry)
		return
	}
	for _, k := range keys {
		delete(c.entries, k)
	}
}

// SetFeedTimestamp records the last successful poll time for a feed
// group.
func (c *Cache) SetFeedTimestamp(groupID string, t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timestamps[groupID] = t
}

// FeedTimestamp returns the last successful poll time for a feed
// group; ok is false when the group has never succeeded.
func (c *Cache) FeedTimestamp(groupID string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.timestamps[groupID]
	return t, ok
}

// FeedTimestamps returns a copy of every recorded group timestamp.
func (c *Cache) FeedTimestamps() map[string]time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]time.Time, len(c.timestamps))
	for k, v := range c.timestamps {
		out[k] = v
	}
	return out
}
