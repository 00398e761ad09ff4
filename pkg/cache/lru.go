// Package cache provides a bounded, thread-safe LRU map.
//
// The client keeps one graph handle per graph name in an LRU so that every
// SelectGraph call for the same name shares one schema cache, while the
// number of handles stays bounded.
//
// Features:
// - LRU eviction for bounded memory
// - Atomic get-or-create for shared handles
// - Eviction callback
// - Cache hit/miss statistics
//
// Usage:
//
//	graphs := cache.NewLRU[string, *Graph](64)
//
//	g, _ := graphs.GetOrAdd(name, func() *Graph {
//		return newGraph(name)
//	})
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// DefaultMaxSize is used when NewLRU is given a non-positive size.
const DefaultMaxSize = 64

// LRU is a thread-safe least-recently-used map.
//
// The cache uses:
// - Hash map for O(1) lookups
// - Doubly-linked list for LRU ordering
type LRU[K comparable, V any] struct {
	mu sync.Mutex

	maxSize int
	onEvict func(K, V)

	// LRU list and map
	list  *list.List
	items map[K]*list.Element

	// Statistics
	hits   atomic.Uint64
	misses atomic.Uint64
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// NewLRU creates a cache holding at most maxSize entries.
func NewLRU[K comparable, V any](maxSize int) *LRU[K, V] {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &LRU[K, V]{
		maxSize: maxSize,
		list:    list.New(),
		items:   make(map[K]*list.Element, maxSize),
	}
}

// OnEvict registers fn to be called for every entry pushed out by capacity.
// fn runs with the cache lock held and must not call back into the cache.
func (c *LRU[K, V]) OnEvict(fn func(K, V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.list.MoveToFront(elem)
	c.hits.Add(1)
	return elem.Value.(*entry[K, V]).value, true
}

// Put stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*entry[K, V]).value = value
		c.list.MoveToFront(elem)
		return
	}
	c.insert(key, value)
}

// GetOrAdd returns the value for key, creating it with create if absent.
// create runs at most once per missing key, under the cache lock. The
// boolean reports whether the value already existed.
func (c *LRU[K, V]) GetOrAdd(key K, create func() V) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.list.MoveToFront(elem)
		c.hits.Add(1)
		return elem.Value.(*entry[K, V]).value, true
	}
	c.misses.Add(1)
	v := create()
	c.insert(key, v)
	return v, false
}

// insert adds a new entry. Caller must hold the lock.
func (c *LRU[K, V]) insert(key K, value V) {
	for c.list.Len() >= c.maxSize {
		c.evictOldest()
	}
	c.items[key] = c.list.PushFront(&entry[K, V]{key: key, value: value})
}

// Remove deletes key and reports whether it was present. The eviction
// callback is not called.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if ok {
		c.removeElement(elem)
	}
	return ok
}

// Keys returns the keys from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, c.list.Len())
	for e := c.list.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*entry[K, V]).key)
	}
	return keys
}

// Clear removes all entries without calling the eviction callback.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.list.Init()
	c.items = make(map[K]*list.Element, c.maxSize)
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}

// Stats returns cache statistics.
func (c *LRU[K, V]) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return CacheStats{
		Size:    c.Len(),
		MaxSize: c.maxSize,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
	}
}

// CacheStats holds cache performance statistics.
type CacheStats struct {
	Size    int     // Current number of entries
	MaxSize int     // Maximum capacity
	Hits    uint64  // Number of cache hits
	Misses  uint64  // Number of cache misses
	HitRate float64 // Hit rate percentage (0-100)
}

// evictOldest removes the least recently used entry.
// Caller must hold the lock.
func (c *LRU[K, V]) evictOldest() {
	elem := c.list.Back()
	if elem == nil {
		return
	}
	c.removeElement(elem)
	if c.onEvict != nil {
		e := elem.Value.(*entry[K, V])
		c.onEvict(e.key, e.value)
	}
}

// removeElement removes an element from the cache.
// Caller must hold the lock.
func (c *LRU[K, V]) removeElement(elem *list.Element) {
	c.list.Remove(elem)
	delete(c.items, elem.Value.(*entry[K, V]).key)
}
