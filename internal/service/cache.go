package service

import (
	"slices"
	"sync"
	"time"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
)

type cacheEntry struct {
	items      []catalog.Item
	source     Source
	capturedAt time.Time
}

// catalogCache holds at most one catalog snapshot. Concurrent population is
// allowed; the last writer wins.
type catalogCache struct {
	mu    sync.RWMutex
	entry *cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

func newCatalogCache(ttl time.Duration, now func() time.Time) *catalogCache {
	return &catalogCache{ttl: ttl, now: now}
}

// get returns the entry and whether it is still within the TTL.
func (c *catalogCache) get() (cacheEntry, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return cacheEntry{}, false, false
	}
	fresh := c.now().Sub(c.entry.capturedAt) < c.ttl
	return *c.entry, fresh, true
}

func (c *catalogCache) set(items []catalog.Item, source Source) time.Time {
	now := c.now()
	c.mu.Lock()
	c.entry = &cacheEntry{items: slices.Clone(items), source: source, capturedAt: now}
	c.mu.Unlock()
	return now
}

func (c *catalogCache) clear() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

func (c *catalogCache) info() CacheInfo {
	e, fresh, ok := c.get()
	info := CacheInfo{TTL: c.ttl}
	if !ok {
		return info
	}
	info.Populated = true
	info.Items = len(e.items)
	info.Source = e.source
	info.CapturedAt = e.capturedAt
	info.Age = c.now().Sub(e.capturedAt)
	info.Expired = !fresh
	return info
}
