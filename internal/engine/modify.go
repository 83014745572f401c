package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/KilimcininKorOglu/vdx/internal/changes"
	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/directory"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
	"github.com/KilimcininKorOglu/vdx/internal/result"
)

// Modify applies attribute changes to an entry and writes the resulting
// differences into its sources.
func (e *Engine) Modify(ctx context.Context, req *ModifyRequest) error {
	dn := req.DN
	ctx, op := e.begin(ctx, OpModify.String(), dn)
	if err := e.ready(); err != nil {
		return op.end(ctx, err)
	}

	st := e.state.Load()
	r := e.newResolver(st)
	rec, release, err := e.locate(ctx, st, r, dn)
	if err != nil {
		return op.end(ctx, err)
	}
	defer release()
	em := rec.Mapping

	if err := validAttributes(em, req.Changes); err != nil {
		return op.end(ctx, err)
	}
	updated, err := directory.Apply(rec.Entry, req.Changes)
	if err != nil {
		if errors.Is(err, directory.ErrNotAllowedOnRDN) {
			return op.end(ctx, result.New(result.NotAllowedOnRDN, "", "", err))
		}
		return op.end(ctx, result.New(result.UnwillingToPerform, "", "", err))
	}

	w := &writer{e: e, op: op}
	if err := w.applyChanges(ctx, st, rec, updated.Attributes, func(sm *mapping.SourceMapping) bool {
		return sm.IncludeOnModify
	}); err != nil {
		e.abort(ctx, st, w, em, rec.DN)
		return op.end(ctx, err)
	}

	event := changes.NewEvent(changes.OpUpdate, rec.DN)
	event.Entry = updated
	e.finish(ctx, st, w, em, event, rec.DN)
	op.log.Info("entry modified", "mapping", em.ID, "changes", len(req.Changes), "sources", strings.Join(w.touched, ","))
	return op.end(ctx, nil)
}

// ModRdn renames an entry below its current parent.
func (e *Engine) ModRdn(ctx context.Context, req *ModRdnRequest) error {
	dn := req.DN
	ctx, op := e.begin(ctx, OpModRdn.String(), dn)
	if err := e.ready(); err != nil {
		return op.end(ctx, err)
	}
	if len(req.NewRDN.Names()) == 0 {
		return op.end(ctx, result.Errorf(result.InvalidDNSyntax, "", "", "empty new RDN"))
	}
	parentDN, err := data.ParentDN(dn)
	if err != nil {
		return op.end(ctx, result.New(result.InvalidDNSyntax, "", "", err))
	}
	newDN := data.AppendRDN(req.NewRDN, parentDN)

	st := e.state.Load()
	r := e.newResolver(st)
	rec, release, err := e.locate(ctx, st, r, dn, newDN)
	if err != nil {
		return op.end(ctx, err)
	}
	defer release()
	em := rec.Mapping

	if !em.Matches(newDN) {
		return op.end(ctx, result.Errorf(result.NamingViolation, "", "", "%s does not fit mapping %s", newDN, em.ID))
	}
	existing, err := r.find(ctx, newDN)
	if err != nil {
		return op.end(ctx, err)
	}
	if existing != nil {
		return op.end(ctx, result.Errorf(result.EntryAlreadyExists, "", "", "entry %s exists", newDN))
	}

	renamed, err := directory.Rename(rec.Entry, req.NewRDN, req.DeleteOldRDN)
	if err != nil {
		return op.end(ctx, result.New(result.InvalidDNSyntax, "", "", err))
	}
	// Naming attributes carry key fields; a kept old value would fork the
	// source row instead of renaming it.
	for _, name := range req.NewRDN.Names() {
		v, _ := req.NewRDN.Get(name)
		renamed.SetAttribute(name, v)
	}

	w := &writer{e: e, op: op}
	if err := w.applyChanges(ctx, st, rec, renamed.Attributes, func(sm *mapping.SourceMapping) bool {
		return sm.IncludeOnModRdn
	}); err != nil {
		e.abort(ctx, st, w, em, rec.DN, renamed.DN)
		return op.end(ctx, err)
	}

	event := changes.NewEvent(changes.OpModifyDN, renamed.DN)
	event.OldDN = rec.DN
	event.Entry = renamed
	e.finish(ctx, st, w, em, event, rec.DN, renamed.DN)
	op.log.Info("entry renamed", "mapping", em.ID, "new_dn", renamed.DN, "sources", strings.Join(w.touched, ","))
	return op.end(ctx, nil)
}

// locate finds the dynamic entry named dn and returns it holding the write
// locks of its mapping and of dns. The caller must call release.
func (e *Engine) locate(ctx context.Context, st *state, r *resolver, dn string, dns ...string) (*record, func(), error) {
	if data.DNDepth(dn) < 0 {
		return nil, nil, result.Errorf(result.InvalidDNSyntax, "", "", "invalid DN")
	}
	static := false
	for _, em := range st.registry.MappingsFor(dn) {
		if em.IsStatic() {
			static = true
			continue
		}
		release, err := e.acquire(ctx, "", dn, writeLocks(em, append([]string{dn}, dns...)...))
		if err != nil {
			return nil, nil, err
		}
		rec, err := r.lookup(ctx, em, dn)
		if err != nil {
			release()
			return nil, nil, err
		}
		if rec != nil {
			return rec, release, nil
		}
		release()
	}
	if static {
		return nil, nil, result.New(result.UnwillingToPerform, "", "", errStatic)
	}
	return nil, nil, result.Errorf(result.NoSuchObject, "", "", "entry does not exist")
}
