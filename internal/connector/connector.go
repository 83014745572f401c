// Package connector defines how the engine reaches physical sources.
//
// A Connector executes filtered reads and single-row writes against the
// sources it serves. Filters and values use the source's field names;
// rows are addressed by their primary key. Failures are reported as
// *result.Error values so that NoSuchObject can be told apart from other
// backend failures:
//
//	it, err := conn.Search(ctx, src, filter.MustParse("(id=1)"))
//	if err != nil {
//	    return err
//	}
//	defer it.Close()
//	for it.Next() {
//	    row := it.Row()
//	    ...
//	}
//	return it.Err()
package connector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/filter"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
	"github.com/KilimcininKorOglu/vdx/internal/result"
)

// Connector reads and writes rows of physical sources.
type Connector interface {
	// Search returns the rows of src matching f. A nil filter matches all.
	Search(ctx context.Context, src *mapping.Source, f *filter.Filter) (Iterator, error)

	// Add inserts a row.
	Add(ctx context.Context, src *mapping.Source, fields *data.AttributeValues) error

	// Modify replaces the listed fields of the row addressed by key. A
	// field listed with no values is cleared.
	Modify(ctx context.Context, src *mapping.Source, key data.Row, fields *data.AttributeValues) error

	// Delete removes the row addressed by key.
	Delete(ctx context.Context, src *mapping.Source, key data.Row) error

	// Bind verifies password against the row addressed by key.
	Bind(ctx context.Context, src *mapping.Source, key data.Row, password string) error

	// Close releases connector resources.
	Close() error
}

// Iterator streams the rows of a search.
type Iterator interface {
	Next() bool
	Row() *data.AttributeValues
	Err() error
	Close() error
}

// SliceIterator iterates over rows held in memory.
type SliceIterator struct {
	rows []*data.AttributeValues
	pos  int
}

// NewSliceIterator creates an iterator over rows.
func NewSliceIterator(rows []*data.AttributeValues) *SliceIterator {
	return &SliceIterator{rows: rows, pos: -1}
}

func (it *SliceIterator) Next() bool {
	if it.pos+1 >= len(it.rows) {
		it.pos = len(it.rows)
		return false
	}
	it.pos++
	return true
}

func (it *SliceIterator) Row() *data.AttributeValues {
	if it.pos < 0 || it.pos >= len(it.rows) {
		return nil
	}
	return it.rows[it.pos]
}

func (it *SliceIterator) Err() error   { return nil }
func (it *SliceIterator) Close() error { return nil }

// Collect drains it and closes it.
func Collect(ctx context.Context, it Iterator) (rows []*data.AttributeValues, err error) {
	defer func() {
		err = multierr.Append(err, it.Close())
	}()
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows = append(rows, it.Row())
	}
	return rows, it.Err()
}

// NotFound reports a missing row.
func NotFound(op string, src *mapping.Source, key data.Row) error {
	return result.Errorf(result.NoSuchObject, op, "", "%s: no row %s", src.Name, key)
}

// AlreadyExists reports a duplicate row.
func AlreadyExists(op string, src *mapping.Source, key data.Row) error {
	return result.Errorf(result.EntryAlreadyExists, op, "", "%s: row %s exists", src.Name, key)
}

// InvalidCredentials reports a failed bind.
func InvalidCredentials(src *mapping.Source, key data.Row) error {
	return result.Errorf(result.InvalidCredentials, "bind", "", "%s: invalid credentials for %s", src.Name, key)
}

// Failure wraps a backend error as an Other-coded result error.
func Failure(op string, src *mapping.Source, err error) error {
	if err == nil {
		return nil
	}
	var re *result.Error
	if errors.As(err, &re) {
		return err
	}
	return result.New(result.Other, op, "", fmt.Errorf("%s: %w", src.Name, err))
}

// Set holds the connectors of an engine by name.
type Set struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{connectors: make(map[string]Connector)}
}

// Register adds or replaces a connector.
func (s *Set) Register(name string, c Connector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectors[name] = c
}

// Get returns the connector registered under name.
func (s *Set) Get(name string) (Connector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connectors[name]
	return c, ok
}

// For returns the connector serving src.
func (s *Set) For(src *mapping.Source) (Connector, error) {
	if src == nil {
		return nil, result.Errorf(result.UnwillingToPerform, "", "", "connector: unresolved source")
	}
	c, ok := s.Get(src.Connector)
	if !ok {
		return nil, result.Errorf(result.Unavailable, "", "", "connector: %q not registered for source %s", src.Connector, src.Name)
	}
	return c, nil
}

// Names returns the registered names in order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.connectors))
	for name := range s.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every connector.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs error
	for name, c := range s.connectors {
		if err := c.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("connector %s: %w", name, err))
		}
	}
	return errs
}
