package store

import (
	"context"
	"sync"
	"time"

	"perfmetrics/internal/domain"
)

// Compile-time interface checks.
var _ CacheStore = (*MemoryCache)(nil)
var _ Sweeper = (*MemoryCache)(nil)

type memoryItem struct {
	entry     *domain.CacheEntry
	expiresAt time.Time
}

// MemoryCache is an in-process CacheStore. Entries are shared, not copied;
// callers must treat returned entries as read-only.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// Get returns the entry for symbol unless it is missing or expired.
func (m *MemoryCache) Get(_ context.Context, symbol string) (*domain.CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[symbol]
	if !ok || !m.now().Before(item.expiresAt) {
		return nil, nil
	}
	return item.entry, nil
}

// Put stores entry under symbol, replacing any previous entry.
func (m *MemoryCache) Put(_ context.Context, symbol string, entry *domain.CacheEntry, ttl time.Duration) error {
	m.mu.Lock()
	m.items[symbol] = memoryItem{entry: entry, expiresAt: expiresAt(m.now(), ttl)}
	m.mu.Unlock()
	return nil
}

// DeleteExpired drops every expired entry.
func (m *MemoryCache) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var n int64
	for sym, item := range m.items {
		if !now.Before(item.expiresAt) {
			delete(m.items, sym)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
