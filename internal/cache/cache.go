// Package cache defines the entry and filter caches consulted by the
// engine, with an in-memory LRU implementation. Both caches are invalidated
// by the engine whenever a write completes against a contributing source.
package cache

import (
	"context"
	"strings"

	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/directory"
)

// EntryCache caches merged entries by DN.
type EntryCache interface {
	Get(ctx context.Context, dn string) (*directory.Entry, bool, error)
	Put(ctx context.Context, entry *directory.Entry) error
	Remove(ctx context.Context, dn string) error
	Purge(ctx context.Context) error
}

// FilterKey addresses the primary keys discovered for one filter of one
// entry mapping.
type FilterKey struct {
	Mapping string
	Filter  string
}

func (k FilterKey) String() string {
	return k.Mapping + "|" + strings.ToLower(k.Filter)
}

// FilterCache caches candidate primary keys per mapping and filter.
type FilterCache interface {
	Get(ctx context.Context, key FilterKey) ([]data.Row, bool, error)
	Put(ctx context.Context, key FilterKey, rows []data.Row) error
	// Invalidate drops every filter cached for the mapping.
	Invalidate(ctx context.Context, mapping string) error
	Purge(ctx context.Context) error
}

// Nop caches nothing.
type Nop struct{}

func (Nop) Get(context.Context, string) (*directory.Entry, bool, error) { return nil, false, nil }
func (Nop) Put(context.Context, *directory.Entry) error                { return nil }
func (Nop) Remove(context.Context, string) error                        { return nil }
func (Nop) Purge(context.Context) error                                 { return nil }

// NopFilter caches no filters.
type NopFilter struct{}

func (NopFilter) Get(context.Context, FilterKey) ([]data.Row, bool, error) { return nil, false, nil }
func (NopFilter) Put(context.Context, FilterKey, []data.Row) error         { return nil }
func (NopFilter) Invalidate(context.Context, string) error                 { return nil }
func (NopFilter) Purge(context.Context) error                              { return nil }

var (
	_ EntryCache  = Nop{}
	_ FilterCache = NopFilter{}
)
