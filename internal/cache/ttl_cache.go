// Package cache provides a thread-safe map whose entries expire after a
// period without use.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	lastUsed time.Time
}

// TTLCache is a thread-safe cache with per-entry expiration. An entry
// expires when it has not been set or read for the TTL.
type TTLCache[K comparable, V any] struct {
	mu      sync.Mutex
	data    map[K]*entry[V]
	ttl     time.Duration
	now     func() time.Time
	onEvict func(K, V)
}

// New creates an empty TTLCache with the given TTL duration.
func New[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		data: make(map[K]*entry[V]),
		ttl:  ttl,
		now:  time.Now,
	}
}

// OnEvict registers fn to be called with every entry that expires or is
// deleted. fn runs without the cache lock held.
func (c *TTLCache[K, V]) OnEvict(fn func(K, V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get returns the value for key and renews its lifetime. An expired entry
// is evicted and reported as missing.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	e, ok := c.data[key]
	if !ok {
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	now := c.now()
	if c.expiredLocked(e, now) {
		delete(c.data, key)
		fn := c.onEvict
		c.mu.Unlock()
		if fn != nil {
			fn(key, e.value)
		}
		var zero V
		return zero, false
	}
	e.lastUsed = now
	c.mu.Unlock()
	return e.value, true
}

// Set stores a value and starts its lifetime. A replaced value is not
// reported to the eviction callback.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = &entry[V]{value: value, lastUsed: c.now()}
}

// Delete removes key and reports whether it was present.
func (c *TTLCache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	e, ok := c.data[key]
	if ok {
		delete(c.data, key)
	}
	fn := c.onEvict
	c.mu.Unlock()
	if ok && fn != nil {
		fn(key, e.value)
	}
	return ok
}

// Sweep evicts every expired entry and returns how many were removed.
func (c *TTLCache[K, V]) Sweep() int {
	c.mu.Lock()
	now := c.now()
	var keys []K
	var values []V
	for k, e := range c.data {
		if c.expiredLocked(e, now) {
			keys = append(keys, k)
			values = append(values, e.value)
			delete(c.data, k)
		}
	}
	fn := c.onEvict
	c.mu.Unlock()
	if fn != nil {
		for i := range keys {
			fn(keys[i], values[i])
		}
	}
	return len(keys)
}

// Len returns the number of entries, expired or not.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Keys returns the keys of live entries in no particular order.
func (c *TTLCache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	keys := make([]K, 0, len(c.data))
	for k, e := range c.data {
		if !c.expiredLocked(e, now) {
			keys = append(keys, k)
		}
	}
	return keys
}

// must be called with the lock held.
func (c *TTLCache[K, V]) expiredLocked(e *entry[V], now time.Time) bool {
	return now.Sub(e.lastUsed) >= c.ttl
}
