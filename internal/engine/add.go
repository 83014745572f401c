package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/KilimcininKorOglu/vdx/internal/changes"
	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/graph"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
	"github.com/KilimcininKorOglu/vdx/internal/result"
	"github.com/KilimcininKorOglu/vdx/internal/transform"
)

// Add creates an entry. The entry's sources are written from the primary
// source outwards; join values travel along the graph edges. A source
// failure stops the traversal without undoing earlier writes.
func (e *Engine) Add(ctx context.Context, req *AddRequest) error {
	ctx, op := e.begin(ctx, OpAdd.String(), req.TargetDN())
	if err := e.ready(); err != nil {
		return op.end(ctx, err)
	}
	if req.Entry == nil {
		return op.end(ctx, result.Errorf(result.UnwillingToPerform, "", "", "no entry"))
	}
	dn := req.Entry.DN
	parentDN, err := data.ParentDN(dn)
	if err != nil {
		return op.end(ctx, result.New(result.InvalidDNSyntax, "", dn, err))
	}
	attrs, err := withRDN(req.Entry.Attributes, dn)
	if err != nil {
		return op.end(ctx, err)
	}

	st := e.state.Load()
	em, err := chooseMapping(st.registry, dn, attrs)
	if err != nil {
		return op.end(ctx, err)
	}

	release, err := e.acquire(ctx, "", dn, writeLocks(em, dn))
	if err != nil {
		return op.end(ctx, err)
	}
	defer release()

	r := e.newResolver(st)
	parent, _, ok, err := r.pin(ctx, em, parentDN)
	if err != nil {
		return op.end(ctx, err)
	}
	if !ok {
		return op.end(ctx, result.Errorf(result.NoSuchObject, "", "", "parent %s does not exist", parentDN))
	}
	existing, err := r.find(ctx, dn)
	if err != nil {
		return op.end(ctx, err)
	}
	if existing != nil {
		return op.end(ctx, result.Errorf(result.EntryAlreadyExists, "", "", "entry exists"))
	}

	w := &writer{e: e, op: op}
	if err := w.insert(ctx, st, em, attrs, parent); err != nil {
		e.abort(ctx, st, w, em, dn)
		return op.end(ctx, err)
	}

	event := changes.NewEvent(changes.OpInsert, dn)
	event.Entry = req.Entry.Clone()
	event.Entry.Attributes = attrs
	e.finish(ctx, st, w, em, event, dn)
	op.log.Info("entry added", "mapping", em.ID, "sources", strings.Join(w.touched, ","))
	return op.end(ctx, nil)
}

// chooseMapping picks the dynamic mapping able to hold dn, preferring one
// whose object classes the entry carries.
func chooseMapping(reg *mapping.Registry, dn string, attrs *data.AttributeValues) (*mapping.EntryMapping, error) {
	var dynamic []*mapping.EntryMapping
	static := false
	for _, em := range reg.MappingsFor(dn) {
		if em.IsStatic() {
			static = true
			continue
		}
		dynamic = append(dynamic, em)
	}
	if len(dynamic) == 0 {
		if static {
			return nil, result.New(result.UnwillingToPerform, "", "", errStatic)
		}
		return nil, result.Errorf(result.NamingViolation, "", "", "no entry mapping accepts this name")
	}

	classes := attrs.GetFold(transform.ObjectClassAttribute)
	for _, em := range dynamic {
		if carries(classes, em.ObjectClasses) {
			return em, nil
		}
	}
	return dynamic[0], nil
}

func carries(have, want []string) bool {
	if len(want) == 0 || len(have) == 0 {
		return false
	}
	for _, w := range want {
		found := false
		for _, h := range have {
			if strings.EqualFold(h, w) {
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

// addVisitor writes one source per visited node and propagates join
// values across each edge before descending.
type addVisitor struct {
	graph.BaseVisitor
	ctx    context.Context
	w      *writer
	values *data.AttributeValues
	own    map[string]bool
	done   map[string]bool
	err    error
}

func (v *addVisitor) PreVisitNode(sm *mapping.SourceMapping) bool {
	v.done[sm.Alias] = true
	if v.err != nil {
		return false
	}
	v.err = v.w.insertSource(v.ctx, sm, v.values, v.own[sm.Alias])
	return v.err == nil
}

func (v *addVisitor) PreVisitEdge(_, _ *mapping.SourceMapping, e *graph.Edge) bool {
	if v.err != nil {
		return false
	}
	propagate(v.values, e.Relationships)
	return true
}

// insert writes the sources of em for an entry with attributes attrs below
// parent.
func (w *writer) insert(ctx context.Context, st *state, em *mapping.EntryMapping, attrs *data.AttributeValues, parent *parentRef) error {
	analysis := st.analyzer.Get(em)
	plan := st.execution.Plan(em)

	values := data.NewAttributeValues()
	own := make(map[string]bool)
	for _, sm := range em.Sources {
		fields, _, err := w.e.transform.TranslateToSource(sm, attrs)
		if err != nil {
			if sm.Required {
				return result.Expression("", "", err)
			}
			w.op.log.Debug("optional source skipped", "source", sm.Alias, "error", err)
			continue
		}
		own[sm.Alias] = fields.Len() > 0
		values.AddAll(fields.Prefixed(sm.Alias))
	}
	inherited(values, parent.Context, analysis.Connecting)
	for _, alias := range plan.Order {
		literals(values, plan.Literals(alias))
	}
	propagate(values, plan.Joins)

	v := &addVisitor{ctx: ctx, w: w, values: values, own: own, done: make(map[string]bool)}
	graph.Traverse(analysis.Graph, plan.Primary, v)
	for _, alias := range plan.Order {
		if v.err != nil {
			break
		}
		if !v.done[alias] {
			v.PreVisitNode(em.Source(alias))
		}
	}
	return v.err
}

// insertSource adds the rows of sm held in values.
func (w *writer) insertSource(ctx context.Context, sm *mapping.SourceMapping, values *data.AttributeValues, own bool) error {
	if !sm.IncludeOnAdd || sm.ReadOnly {
		return nil
	}
	if !own && !sm.Required {
		return nil
	}
	fields := values.Strip(sm.Alias)
	keys := transform.PrimaryKeys(sm, fields)
	if len(keys) == 0 {
		return result.Expression("", "", fmt.Errorf("%w: no key for source %s", transform.ErrMissingKey, sm.Alias))
	}
	for _, row := range expandRows(fields, keys) {
		if err := w.add(ctx, sm, row); err != nil {
			return err
		}
	}
	return nil
}
