// Package cache provides an LRU cache bounded by entry count and by bytes,
// and a resource cache built on it that sits in front of Book.Load.
package cache

import (
	"container/list"
	"context"
	"sync"

	"github.com/FocuswithJustin/JuniperReader/core/book"
	"github.com/FocuswithJustin/JuniperReader/core/loader"
)

// Stats contains cache statistics.
type Stats struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	Size       int   `json:"size"`
	MaxSize    int   `json:"maxSize"`
	TotalBytes int64 `json:"totalBytes"`
	MaxBytes   int64 `json:"maxBytes"`
}

// Config contains cache configuration options.
type Config struct {
	// MaxSize is the maximum number of entries (0 = unlimited).
	MaxSize int
	// MaxBytes is the maximum total size of the values (0 = unlimited).
	MaxBytes int64
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxSize:  256,
		MaxBytes: 64 << 20,
	}
}

type entry[K comparable, V any] struct {
	key   K
	value V
	size  int64
}

// LRU is a thread-safe least-recently-used cache.
type LRU[K comparable, V any] struct {
	mu        sync.Mutex
	config    Config
	sizeOf    func(V) int64
	entries   map[K]*list.Element
	evictList *list.List
	bytes     int64
	stats     Stats
}

// NewLRU creates a cache. sizeOf measures a value for the byte limit; when
// nil every value counts as zero bytes.
func NewLRU[K comparable, V any](config Config, sizeOf func(V) int64) *LRU[K, V] {
	if config.MaxSize < 0 {
		config.MaxSize = 0
	}
	if sizeOf == nil {
		sizeOf = func(V) int64 { return 0 }
	}
	return &LRU[K, V]{
		config:    config,
		sizeOf:    sizeOf,
		entries:   make(map[K]*list.Element),
		evictList: list.New(),
	}
}

// Get retrieves a value and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.evictList.MoveToFront(ent)
	c.stats.Hits++
	return ent.Value.(*entry[K, V]).value, true
}

// Put stores a value, evicting least recently used entries until both
// limits hold. A value larger than MaxBytes on its own is not stored.
func (c *LRU[K, V]) Put(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.sizeOf(value)
	if c.config.MaxBytes > 0 && size > c.config.MaxBytes {
		return false
	}
	if ent, ok := c.entries[key]; ok {
		c.removeElement(ent)
	}
	ent := c.evictList.PushFront(&entry[K, V]{key: key, value: value, size: size})
	c.entries[key] = ent
	c.bytes += size

	for c.overLimit() {
		oldest := c.evictList.Back()
		if oldest == nil || oldest == ent {
			break
		}
		c.removeElement(oldest)
		c.stats.Evictions++
	}
	return true
}

func (c *LRU[K, V]) overLimit() bool {
	if c.config.MaxSize > 0 && c.evictList.Len() > c.config.MaxSize {
		return true
	}
	return c.config.MaxBytes > 0 && c.bytes > c.config.MaxBytes
}

// Remove removes a value from the cache.
func (c *LRU[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ent, ok := c.entries[key]; ok {
		c.removeElement(ent)
	}
}

// RemoveFunc removes every entry whose key matches and returns the count.
func (c *LRU[K, V]) RemoveFunc(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, ent := range c.entries {
		if match(key) {
			c.removeElement(ent)
			n++
		}
	}
	return n
}

// Clear removes all entries from the cache.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*list.Element)
	c.evictList.Init()
	c.bytes = 0
}

// Len returns the number of entries in the cache.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Stats returns cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.evictList.Len()
	s.MaxSize = c.config.MaxSize
	s.TotalBytes = c.bytes
	s.MaxBytes = c.config.MaxBytes
	return s
}

func (c *LRU[K, V]) removeElement(ent *list.Element) {
	c.evictList.Remove(ent)
	e := ent.Value.(*entry[K, V])
	delete(c.entries, e.key)
	c.bytes -= e.size
}

// ResourceKey identifies one resource of one book.
type ResourceKey struct {
	Fingerprint string
	Href        string
}

// Resources caches book resources by fingerprint and href.
type Resources struct {
	lru *LRU[ResourceKey, *loader.Blob]
}

// NewResources creates a resource cache.
func NewResources(config Config) *Resources {
	return &Resources{lru: NewLRU[ResourceKey, *loader.Blob](config, (*loader.Blob).Size)}
}

// Load returns the resource at href, loading it from b on a miss. The
// fragment of href is ignored. Failed loads are not cached.
func (r *Resources) Load(ctx context.Context, b book.Book, fingerprint, href string) (*loader.Blob, error) {
	key := ResourceKey{Fingerprint: fingerprint, Href: book.StripFragment(href)}
	if blob, ok := r.lru.Get(key); ok {
		return blob, nil
	}
	blob, err := b.Load(ctx, key.Href)
	if err != nil {
		return nil, err
	}
	r.lru.Put(key, blob)
	return blob, nil
}

// Forget drops every cached resource of a book.
func (r *Resources) Forget(fingerprint string) int {
	return r.lru.RemoveFunc(func(k ResourceKey) bool { return k.Fingerprint == fingerprint })
}

// Stats returns cache statistics.
func (r *Resources) Stats() Stats {
	return r.lru.Stats()
}
