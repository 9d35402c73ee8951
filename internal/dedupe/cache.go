// ABOUTME: Thread-safe TTL cache of recently seen message ids.
// ABOUTME: Guards the archive against double-writes from reconnect replays.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache remembers which message ids were recently processed. Entries expire
// after the TTL and the oldest are evicted past maxEntries, so a long-lived
// session cannot grow it without bound.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	order      *list.List // ids in insertion order, oldest first
	ttl        time.Duration
	maxEntries int
	done       chan struct{}
	closed     bool
}

// NewCache creates a cache and starts a background sweep of expired entries.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	c := &Cache{
		entries:    make(map[string]*entry),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		done:       make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Seen atomically checks whether id was processed within the TTL and marks
// it if not. Returns true for a duplicate.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok && time.Since(e.seenAt) < c.ttl {
		e.seenAt = time.Now()
		c.order.MoveToBack(e.element)
		return true
	}

	if len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}

	elem := c.order.PushBack(id)
	c.entries[id] = &entry{seenAt: time.Now(), element: elem}
	return false
}

// Check reports whether id was processed within the TTL, without marking it
// or refreshing its recency.
func (c *Cache) Check(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	return ok && time.Since(e.seenAt) < c.ttl
}

// evictOldestLocked removes the oldest id. Must be called with mu held.
func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, id)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for id, e := range c.entries {
		if now.Sub(e.seenAt) > c.ttl {
			c.order.Remove(e.element)
			delete(c.entries, id)
		}
	}
}

// Close stops the background sweep. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
