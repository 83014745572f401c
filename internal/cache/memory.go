package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/directory"
)

// MemoryEntryCache is an EntryCache held in process memory.
type MemoryEntryCache struct {
	lru *expirable.LRU[string, *directory.Entry]
}

// NewMemoryEntryCache creates an entry cache holding at most size entries
// for ttl each. A non-positive size is unbounded and a non-positive ttl
// never expires.
func NewMemoryEntryCache(size int, ttl time.Duration) *MemoryEntryCache {
	return &MemoryEntryCache{lru: expirable.NewLRU[string, *directory.Entry](size, nil, ttl)}
}

// Get returns a copy of the cached entry.
func (c *MemoryEntryCache) Get(_ context.Context, dn string) (*directory.Entry, bool, error) {
	e, ok := c.lru.Get(data.NormalizeDN(dn))
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

// Put stores a copy of entry.
func (c *MemoryEntryCache) Put(_ context.Context, entry *directory.Entry) error {
	c.lru.Add(data.NormalizeDN(entry.DN), entry.Clone())
	return nil
}

// Remove drops the entry cached for dn.
func (c *MemoryEntryCache) Remove(_ context.Context, dn string) error {
	c.lru.Remove(data.NormalizeDN(dn))
	return nil
}

// Purge drops every entry.
func (c *MemoryEntryCache) Purge(context.Context) error {
	c.lru.Purge()
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryEntryCache) Len() int {
	return c.lru.Len()
}

// MemoryFilterCache is a FilterCache held in process memory.
type MemoryFilterCache struct {
	lru *expirable.LRU[FilterKey, []data.Row]
}

// NewMemoryFilterCache creates a filter cache with the same bounds as
// NewMemoryEntryCache.
func NewMemoryFilterCache(size int, ttl time.Duration) *MemoryFilterCache {
	return &MemoryFilterCache{lru: expirable.NewLRU[FilterKey, []data.Row](size, nil, ttl)}
}

func normalizeKey(key FilterKey) FilterKey {
	return FilterKey{Mapping: key.Mapping, Filter: key.String()}
}

// Get returns the rows cached for key.
func (c *MemoryFilterCache) Get(_ context.Context, key FilterKey) ([]data.Row, bool, error) {
	rows, ok := c.lru.Get(normalizeKey(key))
	if !ok {
		return nil, false, nil
	}
	return append([]data.Row(nil), rows...), true, nil
}

// Put stores rows for key.
func (c *MemoryFilterCache) Put(_ context.Context, key FilterKey, rows []data.Row) error {
	c.lru.Add(normalizeKey(key), append([]data.Row(nil), rows...))
	return nil
}

// Invalidate drops every filter cached for mapping.
func (c *MemoryFilterCache) Invalidate(_ context.Context, mapping string) error {
	for _, k := range c.lru.Keys() {
		if k.Mapping == mapping {
			c.lru.Remove(k)
		}
	}
	return nil
}

// Purge drops every filter.
func (c *MemoryFilterCache) Purge(context.Context) error {
	c.lru.Purge()
	return nil
}

// Len returns the number of cached filters.
func (c *MemoryFilterCache) Len() int {
	return c.lru.Len()
}

var (
	_ EntryCache  = (*MemoryEntryCache)(nil)
	_ FilterCache = (*MemoryFilterCache)(nil)
)
