package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries bounds the memory cache when no size is given.
const DefaultMaxEntries = 10000

// MemoryCache is a bounded in-process cache. Least recently used entries
// are evicted first; expired entries are dropped when read.
type MemoryCache[V any] struct {
	lru *lru.Cache[string, envelope[V]]
	now func() time.Time
}

var _ Cache[struct{}] = (*MemoryCache[struct{}])(nil)

// NewMemoryCache creates a memory cache holding up to maxEntries.
func NewMemoryCache[V any](maxEntries int) *MemoryCache[V] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c, _ := lru.New[string, envelope[V]](maxEntries)
	return &MemoryCache[V]{lru: c, now: time.Now}
}

// Get returns a copy of the live value for query.
func (m *MemoryCache[V]) Get(_ context.Context, query string) (*V, bool) {
	key := Key(query)
	e, ok := m.lru.Get(key)
	if !ok {
		return nil, false
	}
	if e.expired(m.now()) {
		m.lru.Remove(key)
		return nil, false
	}
	v := clone(e.Value)
	return &v, true
}

// Put stores a copy of v. Values implementing Cloner are deep-copied.
func (m *MemoryCache[V]) Put(_ context.Context, query string, v *V, ttl time.Duration) {
	if v == nil {
		return
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.lru.Add(Key(query), envelope[V]{Value: clone(*v), ExpiresAt: m.now().Add(ttl)})
}

// Len counts live entries.
func (m *MemoryCache[V]) Len(_ context.Context) int {
	now := m.now()
	n := 0
	for _, key := range m.lru.Keys() {
		if e, ok := m.lru.Peek(key); ok && !e.expired(now) {
			n++
		}
	}
	return n
}

// Invalidate drops every entry.
func (m *MemoryCache[V]) Invalidate(context.Context) {
	m.lru.Purge()
}

// Close is a no-op.
func (m *MemoryCache[V]) Close() error {
	return nil
}
