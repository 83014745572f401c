// Package engine provides the source writers behind add, modify and delete.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KilimcininKorOglu/vdx/internal/changes"
	"github.com/KilimcininKorOglu/vdx/internal/connector"
	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/directory"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
	"github.com/KilimcininKorOglu/vdx/internal/result"
	"github.com/KilimcininKorOglu/vdx/internal/transform"
)

// writer issues the backend calls of one write operation and remembers
// which physical sources it touched.
type writer struct {
	e       *Engine
	op      *operation
	touched []string
}

func (w *writer) touch(sm *mapping.SourceMapping) {
	for _, name := range w.touched {
		if name == sm.Source {
			return
		}
	}
	w.touched = append(w.touched, sm.Source)
}

// call runs one connector call. A missing row is logged and ignored: the
// source is already consistent with the requested state.
func (w *writer) call(sm *mapping.SourceMapping, opName string, key data.Row, fn func(conn connector.Connector, src *mapping.Source) error) error {
	src := sm.Definition()
	conn, err := w.e.conns.For(src)
	if err != nil {
		return err
	}
	w.touch(sm)
	err = fn(conn, src)
	if err == nil {
		return nil
	}
	if result.IsNotFound(err) {
		w.op.log.Debug("source row already absent", "source", src.Name, "key", key.String(), "call", opName)
		return nil
	}
	return backendError(opName, src, err)
}

func (w *writer) add(ctx context.Context, sm *mapping.SourceMapping, row *data.AttributeValues) error {
	return w.call(sm, "add", data.Row{}, func(conn connector.Connector, src *mapping.Source) error {
		return conn.Add(ctx, src, row)
	})
}

func (w *writer) modify(ctx context.Context, sm *mapping.SourceMapping, key data.Row, fields *data.AttributeValues) error {
	return w.call(sm, "modify", key, func(conn connector.Connector, src *mapping.Source) error {
		return conn.Modify(ctx, src, key, fields)
	})
}

func (w *writer) delete(ctx context.Context, sm *mapping.SourceMapping, key data.Row) error {
	return w.call(sm, "delete", key, func(conn connector.Connector, src *mapping.Source) error {
		return conn.Delete(ctx, src, key)
	})
}

// expandRows returns one row per primary key: fields with the key fields
// narrowed to the key's values.
func expandRows(fields *data.AttributeValues, keys []data.Row) []*data.AttributeValues {
	out := make([]*data.AttributeValues, 0, len(keys))
	for _, k := range keys {
		row := fields.Clone()
		for _, name := range k.Names() {
			v, _ := k.Get(name)
			row.Set(name, v)
		}
		out = append(out, row)
	}
	return out
}

// propagate copies the values of "=" relationships from whichever operand
// holds them into the other until nothing changes.
func propagate(values *data.AttributeValues, rels []mapping.Relationship) {
	for changed := true; changed; {
		changed = false
		for _, rel := range rels {
			if rel.Op != mapping.OpEqual || rel.IsLiteral() {
				continue
			}
			l, r := rel.LHS.Name(), rel.RHS.Name()
			switch {
			case len(values.Get(l)) == 0 && len(values.Get(r)) > 0:
				values.Set(l, values.Get(r)...)
				changed = true
			case len(values.Get(r)) == 0 && len(values.Get(l)) > 0:
				values.Set(r, values.Get(l)...)
				changed = true
			}
		}
	}
}

// inherited copies the parent values named by the connecting relationships
// of an entry into its own sources' fields.
func inherited(values, parent *data.AttributeValues, connecting []mapping.Relationship) {
	for _, rel := range connecting {
		if rel.Op != mapping.OpEqual || len(values.Get(rel.LHS.Name())) > 0 {
			continue
		}
		if vs := parent.Get(rel.RHS.Name()); len(vs) > 0 {
			values.Set(rel.LHS.Name(), vs...)
		}
	}
}

// literals fills fields fixed by literal relationships such as
// "users.status = 'active'" when the entry does not set them.
func literals(values *data.AttributeValues, rels []mapping.Relationship) {
	for _, rel := range rels {
		if rel.Op != mapping.OpEqual || rel.LHS.IsLiteral || !rel.RHS.IsLiteral {
			continue
		}
		if len(values.Get(rel.LHS.Name())) == 0 {
			values.Set(rel.LHS.Name(), rel.RHS.Literal)
		}
	}
}

// withRDN returns attrs completed with the naming values of dn.
func withRDN(attrs *data.AttributeValues, dn string) (*data.AttributeValues, error) {
	rdn, err := data.LeafRDN(dn)
	if err != nil {
		return nil, result.New(result.InvalidDNSyntax, "", dn, err)
	}
	out := attrs.Clone()
	for _, name := range rdn.Names() {
		v, _ := rdn.Get(name)
		current := out.GetFold(name)
		found := false
		for _, c := range current {
			if strings.EqualFold(c, v) {
				found = true
				break
			}
		}
		if !found {
			stored := name
			for _, n := range out.Names() {
				if strings.EqualFold(n, name) {
					stored = n
					break
				}
			}
			out.Add(stored, v)
		}
	}
	return out, nil
}

// validAttributes rejects modifications of attributes em does not map.
// Object classes are fixed by the mapping.
func validAttributes(em *mapping.EntryMapping, mods []directory.Modification) error {
	for _, mod := range mods {
		if strings.EqualFold(mod.Attribute, transform.ObjectClassAttribute) {
			return result.Errorf(result.UnwillingToPerform, "", "", "object classes of %s entries are fixed", em.ID)
		}
		if em.Attribute(mod.Attribute) == nil {
			return result.Errorf(result.UndefinedAttributeType, "", "", "attribute %s is not mapped by %s", mod.Attribute, em.ID)
		}
	}
	return nil
}

// applyChanges writes the difference between rec and the entry attributes
// attrs into the sources accepted by include, in execution order. Rows
// whose key survives are modified, vanished rows deleted and new rows
// added. Changed join values flow forward into later sources.
func (w *writer) applyChanges(ctx context.Context, st *state, rec *record, attrs *data.AttributeValues, include func(*mapping.SourceMapping) bool) error {
	em := rec.Mapping
	plan := st.execution.Plan(em)
	connecting := st.analyzer.Get(em).Connecting
	next := data.NewAttributeValues()

	for _, alias := range plan.Order {
		sm := em.Source(alias)
		fields, _, err := w.e.transform.TranslateToSource(sm, attrs)
		if err != nil {
			if sm.Required {
				return result.Expression("", "", err)
			}
			fields = data.NewAttributeValues()
		}

		qualified := fields.Prefixed(alias)
		for _, rel := range plan.Joins {
			if oriented, ok := rel.Oriented(alias); ok && oriented.Op == mapping.OpEqual && !oriented.RHS.IsLiteral {
				name := oriented.LHS.Name()
				if len(qualified.Get(name)) > 0 {
					continue
				}
				vs := next.Get(oriented.RHS.Name())
				if len(vs) == 0 {
					vs = rec.Context.Get(oriented.RHS.Name())
				}
				if len(vs) > 0 {
					qualified.Set(name, vs...)
				}
			}
		}
		inherited(qualified, rec.Context, connecting)
		literals(qualified, plan.Literals(alias))
		fields = qualified.Strip(alias)
		next.AddAll(qualified)

		if !include(sm) || sm.ReadOnly {
			continue
		}
		if err := w.diff(ctx, sm, rec.Rows[alias], fields); err != nil {
			return err
		}
	}
	return nil
}

// diff turns the old rows of sm into rows derived from fields.
func (w *writer) diff(ctx context.Context, sm *mapping.SourceMapping, old []*data.AttributeValues, fields *data.AttributeValues) error {
	managed := fields.Names()
	for _, fm := range sm.Fields {
		if !fields.Contains(fm.Name) {
			managed = append(managed, fm.Name)
		}
	}

	newKeys := transform.PrimaryKeys(sm, fields)
	if len(newKeys) == 0 && sm.Required && len(old) > 0 {
		return result.Expression("", "", fmt.Errorf("%w: %s", transform.ErrMissingKey, sm.Alias))
	}
	newRows := expandRows(fields, newKeys)

	type keyed struct {
		key data.Row
		row *data.AttributeValues
	}
	index := func(rows []*data.AttributeValues) (map[string]keyed, []string) {
		m := make(map[string]keyed)
		var order []string
		for _, row := range rows {
			for _, k := range transform.PrimaryKeys(sm, row) {
				if _, ok := m[k.Key()]; !ok {
					order = append(order, k.Key())
				}
				m[k.Key()] = keyed{key: k, row: row}
			}
		}
		return m, order
	}
	before, beforeOrder := index(old)
	after, afterOrder := index(newRows)

	changed := func(from, to *data.AttributeValues) *data.AttributeValues {
		out := data.NewAttributeValues()
		for _, name := range managed {
			if !data.SameValues(from.Get(name), to.Get(name)) {
				out.Set(name, to.Get(name)...)
			}
		}
		return out
	}

	// A single row whose key changed is renamed in place.
	if len(before) == 1 && len(after) == 1 {
		b, a := before[beforeOrder[0]], after[afterOrder[0]]
		if !b.key.Equal(a.key) {
			if c := changed(b.row, a.row); c.Len() > 0 {
				return w.modify(ctx, sm, b.key, c)
			}
			return nil
		}
	}

	for _, k := range beforeOrder {
		b := before[k]
		a, ok := after[k]
		if !ok {
			if err := w.delete(ctx, sm, b.key); err != nil {
				return err
			}
			continue
		}
		if c := changed(b.row, a.row); c.Len() > 0 {
			if err := w.modify(ctx, sm, b.key, c); err != nil {
				return err
			}
		}
	}
	for _, k := range afterOrder {
		if _, ok := before[k]; ok {
			continue
		}
		if err := w.add(ctx, sm, after[k].row); err != nil {
			return err
		}
	}
	return nil
}

// abort invalidates caches for the sources written before a failure.
func (e *Engine) abort(ctx context.Context, st *state, w *writer, em *mapping.EntryMapping, dns ...string) {
	if len(w.touched) > 0 {
		e.invalidate(ctx, st, em, w.touched, dns...)
	}
}

// finish invalidates caches and publishes the change of a successful write.
func (e *Engine) finish(ctx context.Context, st *state, w *writer, em *mapping.EntryMapping, event changes.ChangeEvent, dns ...string) {
	e.invalidate(ctx, st, em, w.touched, dns...)
	event.Mapping = em.ID
	event.Sources = append([]string(nil), w.touched...)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.publish(event)
}

var errStatic = errors.New("static entries are defined by the mapping")
