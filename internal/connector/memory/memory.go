// Package memory implements an in-process connector holding rows per
// source. Every call is recorded, and a hook may delay or fail calls, so
// the connector doubles as a test backend.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/KilimcininKorOglu/vdx/internal/connector"
	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/filter"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
)

// DefaultPasswordField is the field compared by Bind unless the source
// sets the "passwordField" parameter.
const DefaultPasswordField = "password"

// Op names a connector operation.
type Op string

// Recorded operations.
const (
	OpSearch Op = "search"
	OpAdd    Op = "add"
	OpModify Op = "modify"
	OpDelete Op = "delete"
	OpBind   Op = "bind"
)

// Call is one recorded connector call.
type Call struct {
	Op     Op
	Source string
	Key    data.Row
	Filter string
	Fields *data.AttributeValues
}

// Hook runs before a call is performed. A non-nil error fails the call.
type Hook func(ctx context.Context, call Call) error

// Connector is an in-memory connector.
type Connector struct {
	mu     sync.RWMutex
	tables map[string][]*data.AttributeValues
	calls  []Call
	hook   Hook
}

var _ connector.Connector = (*Connector)(nil)

// New creates an empty connector.
func New() *Connector {
	return &Connector{tables: make(map[string][]*data.AttributeValues)}
}

// Seed appends rows to the named source without recording calls.
func (c *Connector) Seed(source string, rows ...*data.AttributeValues) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range rows {
		c.tables[source] = append(c.tables[source], r.Clone())
	}
}

// SetHook installs h, replacing any previous hook.
func (c *Connector) SetHook(h Hook) {
	c.mu.Lock()
	c.hook = h
	c.mu.Unlock()
}

// Calls returns the recorded calls in order.
func (c *Connector) Calls() []Call {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Call(nil), c.calls...)
}

// CallsOf returns the recorded calls of op.
func (c *Connector) CallsOf(op Op) []Call {
	var out []Call
	for _, call := range c.Calls() {
		if call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (c *Connector) Reset() {
	c.mu.Lock()
	c.calls = nil
	c.mu.Unlock()
}

// Rows returns copies of the rows of source.
func (c *Connector) Rows(source string) []*data.AttributeValues {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*data.AttributeValues, 0, len(c.tables[source]))
	for _, r := range c.tables[source] {
		out = append(out, r.Clone())
	}
	return out
}

func (c *Connector) record(ctx context.Context, call Call) error {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		return hook(ctx, call)
	}
	return nil
}

// Search returns copies of the rows of src matching f.
func (c *Connector) Search(ctx context.Context, src *mapping.Source, f *filter.Filter) (connector.Iterator, error) {
	if err := c.record(ctx, Call{Op: OpSearch, Source: src.Name, Filter: f.String()}); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var rows []*data.AttributeValues
	for _, r := range c.tables[src.Name] {
		if f == nil || filter.Matches(f, r) {
			rows = append(rows, r.Clone())
		}
	}
	return connector.NewSliceIterator(rows), nil
}

// Add inserts fields as a new row.
func (c *Connector) Add(ctx context.Context, src *mapping.Source, fields *data.AttributeValues) error {
	key := keyOf(src, fields)
	if err := c.record(ctx, Call{Op: OpAdd, Source: src.Name, Key: key, Fields: fields.Clone()}); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !key.IsZero() && c.find(src.Name, key) >= 0 {
		return connector.AlreadyExists("add", src, key)
	}
	c.tables[src.Name] = append(c.tables[src.Name], fields.Clone())
	return nil
}

// Modify replaces the listed fields of the row addressed by key.
func (c *Connector) Modify(ctx context.Context, src *mapping.Source, key data.Row, fields *data.AttributeValues) error {
	if err := c.record(ctx, Call{Op: OpModify, Source: src.Name, Key: key, Fields: fields.Clone()}); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.find(src.Name, key)
	if i < 0 {
		return connector.NotFound("modify", src, key)
	}
	row := c.tables[src.Name][i]
	for _, name := range fields.Names() {
		if values := fields.Get(name); len(values) > 0 {
			row.Set(name, values...)
		} else {
			row.Remove(name)
		}
	}
	return nil
}

// Delete removes the row addressed by key.
func (c *Connector) Delete(ctx context.Context, src *mapping.Source, key data.Row) error {
	if err := c.record(ctx, Call{Op: OpDelete, Source: src.Name, Key: key}); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.find(src.Name, key)
	if i < 0 {
		return connector.NotFound("delete", src, key)
	}
	rows := c.tables[src.Name]
	c.tables[src.Name] = append(rows[:i:i], rows[i+1:]...)
	return nil
}

// Bind compares password with the password field of the addressed row.
func (c *Connector) Bind(ctx context.Context, src *mapping.Source, key data.Row, password string) error {
	if err := c.record(ctx, Call{Op: OpBind, Source: src.Name, Key: key}); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.find(src.Name, key)
	if i < 0 {
		return connector.NotFound("bind", src, key)
	}
	field := src.Param("passwordField", DefaultPasswordField)
	for _, stored := range c.tables[src.Name][i].Get(field) {
		if stored == password {
			return nil
		}
	}
	return connector.InvalidCredentials(src, key)
}

// Close is a no-op.
func (c *Connector) Close() error {
	return nil
}

func (c *Connector) find(source string, key data.Row) int {
	for i, row := range c.tables[source] {
		if matchesKey(row, key) {
			return i
		}
	}
	return -1
}

func matchesKey(row *data.AttributeValues, key data.Row) bool {
	if key.IsZero() {
		return false
	}
	for _, name := range key.Names() {
		want, _ := key.Get(name)
		found := false
		for _, v := range row.GetFold(name) {
			if strings.EqualFold(v, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// keyOf returns the first primary key row of fields, zero when a key
// field is missing.
func keyOf(src *mapping.Source, fields *data.AttributeValues) data.Row {
	key := data.NewRow()
	for _, name := range src.PrimaryKeys() {
		v, ok := fields.GetOne(name)
		if !ok {
			return data.Row{}
		}
		key = key.With(name, v)
	}
	return key
}
