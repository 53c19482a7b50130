// Aperture - AI-Assisted Recommendations for Your Personal Media Server
// Copyright 2026 dgruhin-hrizn
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dgruhin-hrizn/aperture

// Package cache provides a small thread-safe LRU cache with TTL support.
// It backs process-local lookups that are expensive to recompute, such as
// collection sizes during similarity graph expansion. The cache is an
// explicitly constructed value injected into the components that need it,
// so tests can substitute a fresh instance per case.
package cache

import (
	"sync"
	"time"
)

// entry is a node in the doubly-linked LRU list.
type entry struct {
	key       string
	value     interface{}
	prev      *entry
	next      *entry
	expiresAt time.Time
}

// LRU implements a thread-safe least-recently-used cache with TTL.
// Get, Set and eviction are all O(1).
type LRU struct {
	mu sync.Mutex

	capacity int
	ttl      time.Duration

	items map[string]*entry

	// head.next is most recently used, tail.prev least recently used.
	head *entry
	tail *entry

	hits   int64
	misses int64
}

// NewLRU creates an LRU cache with the given capacity and TTL.
func NewLRU(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 1024
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	c := &LRU{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*entry, capacity),
		head:     &entry{},
		tail:     &entry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get retrieves a value. Found entries are moved to the front.
func (c *LRU) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.remove(e)
		c.misses++
		return nil, false
	}

	c.moveToFront(e)
	c.hits++
	return e.value, true
}

// Set stores a value with the default TTL, evicting the least recently
// used entry when at capacity.
func (c *LRU) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.value = value
		e.expiresAt = time.Now().Add(c.ttl)
		c.moveToFront(e)
		return
	}

	if len(c.items) >= c.capacity {
		if lru := c.tail.prev; lru != c.head {
			c.remove(lru)
		}
	}

	e := &entry{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}
	c.items[key] = e
	c.insertFront(e)
}

// Delete removes a key if present.
func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.remove(e)
	}
}

// Len returns the number of live entries (including not-yet-expired ones).
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns hit and miss counters.
func (c *LRU) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *LRU) remove(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(c.items, e.key)
}

func (c *LRU) moveToFront(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	c.insertFront(e)
}

func (c *LRU) insertFront(e *entry) {
	e.next = c.head.next
	e.prev = c.head
	c.head.next.prev = e
	c.head.next = e
}
