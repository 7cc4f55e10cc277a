// Package lru provides a generic fixed-capacity LRU cache with deterministic
// eviction callbacks, used to bound the number of open storage handles.
package lru

import (
	"sync"
	"sync/atomic"
)

// DefaultMaxEntries is the capacity used when WithMaxEntries is not given.
const DefaultMaxEntries = 256

// entry is a doubly-linked list node holding a key-value pair.
type entry[K comparable, V any] struct {
	key   K
	value V
	prev  *entry[K, V]
	next  *entry[K, V]
}

// Cache is a thread-safe generic LRU cache.
//
// When an insertion exceeds the capacity, the least recently used entry is
// removed and handed to the eviction callback. Callbacks run after the cache
// lock is released, in eviction order.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[K, V]
	head    *entry[K, V] // Most recently used.
	tail    *entry[K, V] // Least recently used.

	maxEntries int
	onEvict    func(K, V)

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithMaxEntries sets the maximum number of entries. Values below one are ignored.
func WithMaxEntries[K comparable, V any](n int) Option[K, V] {
	return func(c *Cache[K, V]) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithOnEvict sets the callback invoked for entries evicted by capacity or Purge.
func WithOnEvict[K comparable, V any](fn func(K, V)) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.onEvict = fn
	}
}

// New creates a new LRU cache.
func New[K comparable, V any](opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		entries:    make(map[K]*entry[K, V]),
		maxEntries: DefaultMaxEntries,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Len returns the number of entries in the cache.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Cap returns the configured capacity.
func (c *Cache[K, V]) Cap() int {
	return c.maxEntries
}

// Get retrieves a value and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)

		var zero V

		return zero, false
	}

	c.hits.Add(1)
	c.moveToFront(ent)

	return ent.value, true
}

// Peek retrieves a value without touching recency or statistics.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.entries[key]; ok {
		return ent.value, true
	}

	var zero V

	return zero, false
}

// Put adds or replaces a value. Replacing does not invoke the eviction callback.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()

	if ent, ok := c.entries[key]; ok {
		ent.value = value
		c.moveToFront(ent)
		c.mu.Unlock()

		return
	}

	var evicted []*entry[K, V]
	for len(c.entries) >= c.maxEntries && c.tail != nil {
		evicted = append(evicted, c.removeTail())
	}

	ent := &entry[K, V]{key: key, value: value}
	c.entries[key] = ent
	c.addToFront(ent)
	c.mu.Unlock()

	c.evictions.Add(int64(len(evicted)))
	c.notify(evicted)
}

// Remove deletes key without invoking the eviction callback and returns the
// removed value.
func (c *Cache[K, V]) Remove(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		var zero V

		return zero, false
	}

	c.unlink(ent)
	delete(c.entries, key)

	return ent.value, true
}

// Purge removes every entry, invoking the eviction callback from least to most
// recently used.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	evicted := make([]*entry[K, V], 0, len(c.entries))
	for c.tail != nil {
		evicted = append(evicted, c.removeTail())
	}
	c.mu.Unlock()

	c.notify(evicted)
}

// Keys returns the cached keys from most to least recently used.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.entries))
	for ent := c.head; ent != nil; ent = ent.next {
		keys = append(keys, ent.key)
	}

	return keys
}

func (c *Cache[K, V]) notify(evicted []*entry[K, V]) {
	if c.onEvict == nil {
		return
	}
	for _, ent := range evicted {
		c.onEvict(ent.key, ent.value)
	}
}

// removeTail unlinks and returns the least recently used entry. Caller holds mu.
func (c *Cache[K, V]) removeTail() *entry[K, V] {
	ent := c.tail
	c.unlink(ent)
	delete(c.entries, ent.key)

	return ent
}

func (c *Cache[K, V]) addToFront(ent *entry[K, V]) {
	ent.prev = nil
	ent.next = c.head
	if c.head != nil {
		c.head.prev = ent
	}
	c.head = ent
	if c.tail == nil {
		c.tail = ent
	}
}

func (c *Cache[K, V]) unlink(ent *entry[K, V]) {
	if ent.prev != nil {
		ent.prev.next = ent.next
	} else {
		c.head = ent.next
	}
	if ent.next != nil {
		ent.next.prev = ent.prev
	} else {
		c.tail = ent.prev
	}
	ent.prev = nil
	ent.next = nil
}

func (c *Cache[K, V]) moveToFront(ent *entry[K, V]) {
	if c.head == ent {
		return
	}
	c.unlink(ent)
	c.addToFront(ent)
}
