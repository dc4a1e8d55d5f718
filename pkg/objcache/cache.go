// Package objcache holds resolved chat and tracker objects for the lifetime
// of the process. Entries never expire and are never evicted; they leave
// only through an explicit clear. Repeated fetches for the same key simply
// overwrite, so last write wins and the value is identical either way.
package objcache

import (
	"sync"
	"sync/atomic"

	"threadlens/pkg/model"
)

// Store is a concurrency-safe map from string keys to immutable values.
type Store[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewStore creates an empty store.
func NewStore[V any]() *Store[V] {
	return &Store[V]{entries: make(map[string]V)}
}

// Get returns the cached value for key. O(1).
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	v, ok := s.entries[key]
	s.mu.RUnlock()

	if ok {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return v, ok
}

// Set stores value under key, replacing any previous entry.
func (s *Store[V]) Set(key string, value V) {
	s.mu.Lock()
	s.entries[key] = value
	s.mu.Unlock()
}

// Has reports whether key is cached without touching the hit counters.
func (s *Store[V]) Has(key string) bool {
	s.mu.RLock()
	_, ok := s.entries[key]
	s.mu.RUnlock()
	return ok
}

// Delete removes key if present.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len returns the number of cached entries.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear drops every entry in one lock pass. Counters survive; they describe
// the process, not the current contents.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]V)
	s.mu.Unlock()
}

// StoreStats describes a store for the status surface.
type StoreStats struct {
	Size   int
	Hits   int64
	Misses int64
}

// Stats returns current counters.
func (s *Store[V]) Stats() StoreStats {
	s.mu.RLock()
	size := len(s.entries)
	s.mu.RUnlock()
	return StoreStats{Size: size, Hits: s.hits.Load(), Misses: s.misses.Load()}
}

// MessageKey builds the message store key, "channelID:timestamp".
func MessageKey(channelID, ts string) string {
	return channelID + ":" + ts
}

// Cache bundles the five object stores. Messages are keyed by
// MessageKey, users and channels by ID, threads by root timestamp, and
// issues by their human identifier ("ENG-123").
type Cache struct {
	Messages *Store[model.Message]
	Users    *Store[model.User]
	Channels *Store[model.Channel]
	Threads  *Store[model.Thread]
	Issues   *Store[model.Issue]
}

// New creates an empty cache bundle.
func New() *Cache {
	return &Cache{
		Messages: NewStore[model.Message](),
		Users:    NewStore[model.User](),
		Channels: NewStore[model.Channel](),
		Threads:  NewStore[model.Thread](),
		Issues:   NewStore[model.Issue](),
	}
}

// ClearAll empties every store. Each store clears atomically; callers see
// either the old contents or nothing, never a partially cleared store.
func (c *Cache) ClearAll() {
	c.Messages.Clear()
	c.Users.Clear()
	c.Channels.Clear()
	c.Threads.Clear()
	c.Issues.Clear()
}

// Sizes reports per-store entry counts.
type Sizes struct {
	Messages int
	Users    int
	Channels int
	Threads  int
	Issues   int
}

// Sizes returns the current entry count of each store.
func (c *Cache) Sizes() Sizes {
	return Sizes{
		Messages: c.Messages.Len(),
		Users:    c.Users.Len(),
		Channels: c.Channels.Len(),
		Threads:  c.Threads.Len(),
		Issues:   c.Issues.Len(),
	}
}

// Total returns the summed entry count across stores.
func (z Sizes) Total() int {
	return z.Messages + z.Users + z.Channels + z.Threads + z.Issues
}
