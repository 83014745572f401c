package engine

import (
	"context"

	"github.com/KilimcininKorOglu/vdx/internal/connector"
	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/directory"
	"github.com/KilimcininKorOglu/vdx/internal/lock"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
	"github.com/KilimcininKorOglu/vdx/internal/result"
	"github.com/KilimcininKorOglu/vdx/internal/transform"
)

// Bind verifies password against the primary source row of the entry dn.
// Unknown entries and rows report InvalidCredentials.
func (e *Engine) Bind(ctx context.Context, dn, password string) error {
	ctx, op := e.begin(ctx, "bind", dn)
	if err := e.ready(); err != nil {
		return op.end(ctx, err)
	}
	if password == "" {
		return op.end(ctx, result.Errorf(result.UnwillingToPerform, "", "", "unauthenticated bind"))
	}
	if data.DNDepth(dn) < 0 {
		return op.end(ctx, result.Errorf(result.InvalidDNSyntax, "", "", "invalid DN"))
	}

	st := e.state.Load()
	r := e.newResolver(st)
	for _, em := range st.registry.MappingsFor(dn) {
		if em.IsStatic() {
			continue
		}
		rec, err := e.resolveLocked(ctx, r, em, dn)
		if err != nil {
			return op.end(ctx, err)
		}
		if rec == nil {
			continue
		}
		return op.end(ctx, e.bindRecord(ctx, st, rec, password))
	}
	return op.end(ctx, result.Errorf(result.InvalidCredentials, "", "", "unknown entry"))
}

func (e *Engine) bindRecord(ctx context.Context, st *state, rec *record, password string) error {
	plan := st.execution.Plan(rec.Mapping)
	sm := rec.Mapping.Source(plan.Primary)
	if sm == nil || len(rec.Rows[sm.Alias]) == 0 {
		return result.Errorf(result.InvalidCredentials, "", "", "entry has no primary row")
	}
	keys := transform.PrimaryKeys(sm, rec.Rows[sm.Alias][0])
	if len(keys) == 0 {
		return result.Errorf(result.InvalidCredentials, "", "", "entry has no primary key")
	}

	src := sm.Definition()
	conn, err := e.conns.For(src)
	if err != nil {
		return err
	}
	err = conn.Bind(ctx, src, keys[0], password)
	switch {
	case err == nil:
		return nil
	case result.IsNotFound(err):
		return connector.InvalidCredentials(src, keys[0])
	case result.CodeOf(err) == result.InvalidCredentials:
		return err
	default:
		return backendError("bind", src, err)
	}
}

// Find returns the entry named dn. Cached entries are served without
// touching the sources.
func (e *Engine) Find(ctx context.Context, dn string) (*directory.Entry, error) {
	ctx, op := e.begin(ctx, "find", dn)
	if err := e.ready(); err != nil {
		return nil, op.end(ctx, err)
	}
	if data.DNDepth(dn) < 0 {
		return nil, op.end(ctx, result.Errorf(result.InvalidDNSyntax, "", "", "invalid DN"))
	}

	if entry, ok, err := e.entries.Get(ctx, dn); err != nil {
		op.log.Warn("entry cache read failed", "error", err)
	} else if ok {
		op.log.Debug("entry served from cache")
		return entry.Clone(), op.end(ctx, nil)
	}

	st := e.state.Load()
	r := e.newResolver(st)
	for _, em := range st.registry.MappingsFor(dn) {
		rec, err := e.resolveLocked(ctx, r, em, dn)
		if err != nil {
			return nil, op.end(ctx, err)
		}
		if rec != nil {
			return rec.Entry.Clone(), op.end(ctx, nil)
		}
	}
	return nil, op.end(ctx, result.Errorf(result.NoSuchObject, "", "", "entry does not exist"))
}

// resolveLocked looks up dn as an entry of em under read locks and caches
// the result.
func (e *Engine) resolveLocked(ctx context.Context, r *resolver, em *mapping.EntryMapping, dn string) (*record, error) {
	reqs := append(readLocks(em), lock.Request{Key: lock.EntryKey(dn), Mode: lock.Read})
	release, err := e.acquire(ctx, "", dn, reqs)
	if err != nil {
		return nil, err
	}
	defer release()
	rec, err := r.lookup(ctx, em, dn)
	if err != nil || rec == nil {
		return nil, err
	}
	e.cacheRecords(ctx, []*record{rec})
	return rec, nil
}
