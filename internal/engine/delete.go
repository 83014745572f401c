package engine

import (
	"context"
	"strings"

	"github.com/KilimcininKorOglu/vdx/internal/changes"
	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
	"github.com/KilimcininKorOglu/vdx/internal/result"
	"github.com/KilimcininKorOglu/vdx/internal/transform"
)

// Delete removes a leaf entry. When every mapping able to hold dn declares
// child mappings the request is refused before any backend call; otherwise
// the entry is resolved first and refused if its own mapping has children.
// Sources are deleted in reverse execution order; rows already gone are
// skipped.
func (e *Engine) Delete(ctx context.Context, req *DeleteRequest) error {
	dn := req.DN
	ctx, op := e.begin(ctx, OpDelete.String(), dn)
	if err := e.ready(); err != nil {
		return op.end(ctx, err)
	}
	if data.DNDepth(dn) < 0 {
		return op.end(ctx, result.Errorf(result.InvalidDNSyntax, "", "", "invalid DN"))
	}

	st := e.state.Load()
	mappings := st.registry.MappingsFor(dn)
	if len(mappings) == 0 {
		return op.end(ctx, result.Errorf(result.NoSuchObject, "", "", "no entry mapping matches"))
	}
	var dynamic []*mapping.EntryMapping
	leaf := false
	for _, em := range mappings {
		if em.IsStatic() {
			continue
		}
		dynamic = append(dynamic, em)
		if !em.HasChildren() {
			leaf = true
		}
	}
	if len(dynamic) == 0 {
		return op.end(ctx, result.New(result.UnwillingToPerform, "", "", errStatic))
	}
	if !leaf {
		return op.end(ctx, nonLeaf(dynamic[0]))
	}

	r := e.newResolver(st)
	for _, em := range dynamic {
		release, err := e.acquire(ctx, "", dn, writeLocks(em, dn))
		if err != nil {
			return op.end(ctx, err)
		}
		rec, err := r.lookup(ctx, em, dn)
		if err != nil || rec == nil {
			release()
			if err != nil {
				return op.end(ctx, err)
			}
			continue
		}
		if em.HasChildren() {
			release()
			return op.end(ctx, nonLeaf(em))
		}

		w := &writer{e: e, op: op}
		err = w.remove(ctx, st, rec)
		if err != nil {
			e.abort(ctx, st, w, em, dn)
		} else {
			event := changes.NewEvent(changes.OpDelete, dn)
			event.Entry = rec.Entry.Clone()
			e.finish(ctx, st, w, em, event, dn)
			op.log.Info("entry deleted", "mapping", em.ID, "sources", strings.Join(w.touched, ","))
		}
		release()
		return op.end(ctx, err)
	}
	return op.end(ctx, result.Errorf(result.NoSuchObject, "", "", "entry does not exist"))
}

func nonLeaf(em *mapping.EntryMapping) error {
	return result.Errorf(result.NotAllowedOnNonLeaf, "", "", "entries of %s have children", em.ID)
}

// remove deletes the rows of rec from its writable sources, last source
// in execution order first.
func (w *writer) remove(ctx context.Context, st *state, rec *record) error {
	plan := st.execution.Plan(rec.Mapping)
	for i := len(plan.Order) - 1; i >= 0; i-- {
		sm := rec.Mapping.Source(plan.Order[i])
		if sm == nil || sm.ReadOnly {
			continue
		}
		for _, row := range rec.Rows[sm.Alias] {
			for _, key := range transform.PrimaryKeys(sm, row) {
				if err := w.delete(ctx, sm, key); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
