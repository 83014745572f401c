package engine

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/KilimcininKorOglu/vdx/internal/cache"
	"github.com/KilimcininKorOglu/vdx/internal/connector"
	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/directory"
	"github.com/KilimcininKorOglu/vdx/internal/filter"
	"github.com/KilimcininKorOglu/vdx/internal/graph"
	"github.com/KilimcininKorOglu/vdx/internal/join"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
	"github.com/KilimcininKorOglu/vdx/internal/planner"
	"github.com/KilimcininKorOglu/vdx/internal/result"
	"github.com/KilimcininKorOglu/vdx/internal/transform"
)

// record is a resolved entry together with the source data it was merged
// from. Parents are referenced by DN only.
type record struct {
	DN      string
	Mapping *mapping.EntryMapping
	Entry   *directory.Entry
	// Sources holds the merged source-qualified values of the entry.
	Sources *data.AttributeValues
	// Rows holds the distinct rows of each source alias, unqualified.
	Rows map[string][]*data.AttributeValues
	// Context is Sources followed by the values inherited from ancestors.
	Context  *data.AttributeValues
	ParentDN string
}

// parentRef addresses the parent of an entry being resolved.
type parentRef struct {
	DN      string
	Context *data.AttributeValues
}

// seeds restricts source queries by alias. They carry the values of a
// pinned parent into the sources holding connecting relationships.
type seeds map[string]*filter.Filter

func (s seeds) String() string {
	if len(s) == 0 {
		return ""
	}
	aliases := make([]string, 0, len(s))
	for alias := range s {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	var sb strings.Builder
	for _, alias := range aliases {
		sb.WriteString("|" + alias + ":" + s[alias].String())
	}
	return sb.String()
}

// seedsFor derives the seeds selecting the rows that satisfy rels against
// row. rels are oriented with the seeded sources on the LHS. ok is false
// when row lacks a value some relationship needs, so nothing can match.
func seedsFor(rels []mapping.Relationship, row *data.AttributeValues) (seeds, bool) {
	if len(rels) == 0 {
		return nil, true
	}
	byAlias := make(map[string][]mapping.Relationship)
	var order []string
	for _, rel := range rels {
		alias := rel.LHS.Source
		if _, ok := byAlias[alias]; !ok {
			order = append(order, alias)
		}
		byAlias[alias] = append(byAlias[alias], rel)
	}
	out := make(seeds, len(order))
	for _, alias := range order {
		f := planner.JoinFilter(alias, byAlias[alias], []*data.AttributeValues{row})
		if f == nil {
			return nil, false
		}
		out[alias] = f
	}
	return out, true
}

// inherit returns own followed by the names of parent own does not hold.
func inherit(own, parent *data.AttributeValues) *data.AttributeValues {
	out := own.Clone()
	for _, name := range parent.Names() {
		if !out.Contains(name) {
			out.Add(name, parent.Get(name)...)
		}
	}
	return out
}

// step is one edge crossed by a traversal, relationships oriented with
// the far source on the LHS.
type step struct {
	from, to string
	rels     []mapping.Relationship
}

type stepRecorder struct {
	graph.BaseVisitor
	steps []step
}

func (v *stepRecorder) PreVisitEdge(from, to *mapping.SourceMapping, e *graph.Edge) bool {
	s := step{from: from.Alias, to: to.Alias}
	for _, rel := range e.Relationships {
		if oriented, ok := rel.Oriented(to.Alias); ok {
			s.rels = append(s.rels, oriented)
		}
	}
	v.steps = append(v.steps, s)
	return true
}

// walk returns the edges crossed depth-first from start.
func walk(g *graph.Graph, start string) []step {
	v := &stepRecorder{}
	graph.Traverse(g, start, v)
	return v.steps
}

// combine joins target into rows, as an outer join unless sm is required.
func combine(rows, target []*data.AttributeValues, sm *mapping.SourceMapping, rels []mapping.Relationship) []*data.AttributeValues {
	if sm.Required {
		return join.Join(rows, target, rels)
	}
	return join.LeftJoin(rows, target, rels)
}

// postFilter keeps the rows satisfying every relationship whose operands
// they hold. Operands of unmatched optional sources are absent.
func postFilter(rows []*data.AttributeValues, rels []mapping.Relationship) []*data.AttributeValues {
	if len(rels) == 0 {
		return rows
	}
	out := rows[:0:0]
	for _, row := range rows {
		ok := true
		for _, rel := range rels {
			if !holdsOperands(row, rel) {
				continue
			}
			if !join.EvaluateOne(rel, row, row) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, row)
		}
	}
	return out
}

func holdsOperands(row *data.AttributeValues, rel mapping.Relationship) bool {
	for _, o := range rel.Operands() {
		if !o.IsLiteral && !row.Contains(o.Name()) {
			return false
		}
	}
	return true
}

// resolver turns entry mappings into records. One resolver serves one
// operation; it memoizes ancestor lookups so that siblings share their
// parent's resolution. Callers hold the source locks.
type resolver struct {
	e  *Engine
	st *state

	mu   sync.Mutex
	memo map[string][]*record
}

func (e *Engine) newResolver(st *state) *resolver {
	return &resolver{e: e, st: st, memo: make(map[string][]*record)}
}

func (r *resolver) remembered(key string) ([]*record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recs, ok := r.memo[key]
	return recs, ok
}

func (r *resolver) remember(key string, recs []*record) {
	r.mu.Lock()
	r.memo[key] = recs
	r.mu.Unlock()
}

// query searches the physical source of sm and qualifies the rows with
// its alias.
func (r *resolver) query(ctx context.Context, sm *mapping.SourceMapping, f *filter.Filter) ([]*data.AttributeValues, error) {
	src := sm.Definition()
	conn, err := r.e.conns.For(src)
	if err != nil {
		return nil, err
	}
	it, err := conn.Search(ctx, src, f)
	if err != nil {
		return nil, backendError("search", src, err)
	}
	rows, err := connector.Collect(ctx, it)
	if err != nil {
		return nil, backendError("search", src, err)
	}
	out := make([]*data.AttributeValues, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Prefixed(sm.Alias))
	}
	return out, nil
}

func backendError(op string, src *mapping.Source, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return connector.Failure(op, src, err)
}

// discover returns the primary keys of the entries of plan's mapping
// whose source rows satisfy the plan filters and sd.
func (r *resolver) discover(ctx context.Context, plan *planner.SearchPlan, sd seeds) ([]data.Row, error) {
	em := plan.Mapping
	primary := em.Source(plan.Primary)
	if primary == nil {
		return nil, nil
	}

	key := cache.FilterKey{Mapping: em.ID, Filter: plan.Filter.String() + sd.String()}
	if keys, ok, err := r.e.filters.Get(ctx, key); err != nil {
		r.e.log.Warn("filter cache read failed", "mapping", em.ID, "error", err)
	} else if ok {
		return keys, nil
	}

	start := plan.Start
	if len(sd) > 0 && sd[start] == nil {
		for _, alias := range plan.Order {
			if sd[alias] != nil && plan.Source(alias).Depth < len(em.Sources) {
				start = alias
				break
			}
		}
	}

	steps := walk(plan.Graph, start)
	rows, err := r.query(ctx, em.Source(start), filter.And(plan.Source(start).Effective(), sd[start]))
	if err != nil {
		return nil, err
	}
	for _, s := range steps {
		if len(rows) == 0 {
			break
		}
		sm := em.Source(s.to)
		var target []*data.AttributeValues
		if jf := planner.JoinFilter(s.to, s.rels, rows); jf != nil {
			sp := plan.Source(s.to)
			narrow := sp.Local
			if sm.Required {
				narrow = sp.Effective()
			}
			if target, err = r.query(ctx, sm, filter.And(jf, narrow, sd[s.to])); err != nil {
				return nil, err
			}
		}
		rows = combine(rows, target, sm, s.rels)
	}
	rows = postFilter(rows, plan.PostFiltersFrom(start))

	set := data.NewRowSet()
	for _, row := range rows {
		for _, k := range transform.PrimaryKeys(primary, row.Strip(primary.Alias)) {
			set.Add(k)
		}
	}
	keys := set.Rows()
	if err := r.e.filters.Put(ctx, key, keys); err != nil {
		r.e.log.Warn("filter cache write failed", "mapping", em.ID, "error", err)
	}
	return keys, nil
}

// load fetches the complete source rows of the entries addressed by keys.
func (r *resolver) load(ctx context.Context, plan *planner.SearchPlan, keys []data.Row) ([]*data.AttributeValues, error) {
	em := plan.Mapping
	primary := em.Source(plan.Primary)
	kf := planner.KeyFilter(keys)
	if primary == nil || kf == nil {
		return nil, nil
	}

	rows, err := r.query(ctx, primary, filter.And(kf, plan.Source(primary.Alias).Local))
	if err != nil {
		return nil, err
	}

	steps := walk(plan.Graph, primary.Alias)
	reached := map[string]bool{primary.Alias: true}
	for _, s := range steps {
		reached[s.to] = true
		if len(rows) == 0 {
			continue
		}
		sm := em.Source(s.to)
		var target []*data.AttributeValues
		if jf := planner.JoinFilter(s.to, s.rels, rows); jf != nil {
			if target, err = r.query(ctx, sm, filter.And(jf, plan.Source(s.to).Local)); err != nil {
				return nil, err
			}
		}
		rows = combine(rows, target, sm, s.rels)
	}

	for _, sm := range em.Sources {
		if reached[sm.Alias] || len(rows) == 0 {
			continue
		}
		target, err := r.query(ctx, sm, plan.Source(sm.Alias).Local)
		if err != nil {
			return nil, err
		}
		rows = combine(rows, target, sm, nil)
	}
	return postFilter(rows, plan.PostFiltersFrom(primary.Alias)), nil
}

// group gathers the rows sharing one primary key.
type group struct {
	merged *data.AttributeValues
	rows   map[string][]*data.AttributeValues
}

func (g *group) add(em *mapping.EntryMapping, row *data.AttributeValues) {
	g.merged.AddAll(row)
	for _, sm := range em.Sources {
		stripped := row.Strip(sm.Alias)
		if stripped.Len() == 0 {
			continue
		}
		dup := false
		for _, existing := range g.rows[sm.Alias] {
			if existing.Equal(stripped) {
				dup = true
				break
			}
		}
		if !dup {
			g.rows[sm.Alias] = append(g.rows[sm.Alias], stripped)
		}
	}
}

// merge folds joined rows into records, one per primary key, RDN value and
// parent. pinned fixes the parent; otherwise parents are resolved through
// the connecting relationships.
func (r *resolver) merge(ctx context.Context, plan *planner.SearchPlan, rows []*data.AttributeValues, pinned *parentRef) ([]*record, error) {
	em := plan.Mapping
	primary := em.Source(plan.Primary)
	if primary == nil {
		return nil, nil
	}

	groups := make(map[string]*group)
	var order []string
	for _, row := range rows {
		keys := transform.PrimaryKeys(primary, row.Strip(primary.Alias))
		if len(keys) == 0 {
			continue
		}
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k.Key()
		}
		id := strings.Join(parts, "\x01")
		g, ok := groups[id]
		if !ok {
			g = &group{merged: data.NewAttributeValues(), rows: make(map[string][]*data.AttributeValues)}
			groups[id] = g
			order = append(order, id)
		}
		g.add(em, row)
	}

	cleaner := planner.NewSearchCleaner(plan)
	var out []*record
	for _, id := range order {
		g := groups[id]
		var parents []parentRef
		if pinned != nil {
			parents = []parentRef{*pinned}
		} else {
			var err error
			cleaned := cleaner.Clean([]*data.AttributeValues{g.merged})[0]
			if parents, err = r.parents(ctx, em, em, cleaned); err != nil {
				return nil, err
			}
		}

		for _, p := range parents {
			values := inherit(g.merged, p.Context)
			attrs, rdns, err := r.e.transform.TranslateToEntry(em, values)
			if err != nil {
				return nil, result.Expression("", "", err)
			}
			if len(rdns) == 0 {
				r.e.log.Debug("row without naming value skipped", "mapping", em.ID, "row", g.merged.String())
				continue
			}
			for _, rdn := range rdns {
				dn := data.AppendRDN(rdn, p.DN)
				out = append(out, &record{
					DN:       dn,
					Mapping:  em,
					Entry:    directory.NewEntryWith(dn, attrs.Clone()),
					Sources:  g.merged,
					Rows:     g.rows,
					Context:  values,
					ParentDN: p.DN,
				})
			}
		}
	}
	return out, nil
}

// resolve discovers, loads and merges the entries of plan's mapping in
// batches.
func (r *resolver) resolve(ctx context.Context, plan *planner.SearchPlan, sd seeds, pinned *parentRef) ([]*record, error) {
	keys, err := r.discover(ctx, plan, sd)
	if err != nil {
		return nil, err
	}
	var out []*record
	for _, batch := range batches(keys, r.e.batchSize) {
		recs, err := r.batch(ctx, plan, batch, pinned)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (r *resolver) batch(ctx context.Context, plan *planner.SearchPlan, keys []data.Row, pinned *parentRef) ([]*record, error) {
	rows, err := r.load(ctx, plan, keys)
	if err != nil {
		return nil, err
	}
	return r.merge(ctx, plan, rows, pinned)
}

func batches(keys []data.Row, size int) [][]data.Row {
	var out [][]data.Row
	for len(keys) > 0 {
		n := size
		if n <= 0 || n > len(keys) {
			n = len(keys)
		}
		out = append(out, keys[:n])
		keys = keys[n:]
	}
	return out
}

// parents resolves the parent entries of child for an entry of owner whose
// cleaned merged values are row. owner differs from child while climbing
// through static levels, which carry no sources of their own.
func (r *resolver) parents(ctx context.Context, owner, child *mapping.EntryMapping, row *data.AttributeValues) ([]parentRef, error) {
	level := child.Parent()
	if level == nil {
		return []parentRef{{DN: child.ParentDN, Context: data.NewAttributeValues()}}, nil
	}

	if level.IsStatic() {
		above, err := r.parents(ctx, owner, level, row)
		if err != nil {
			return nil, err
		}
		out := make([]parentRef, 0, len(above))
		for _, p := range above {
			rec, err := r.static(level, p)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				out = append(out, parentRef{DN: rec.DN, Context: rec.Context})
			}
		}
		return out, nil
	}

	connecting := r.st.analyzer.Get(owner).Connecting
	var rels []mapping.Relationship
	for _, rel := range connecting {
		if anc, _ := owner.AncestorSource(rel.RHS.Source); anc == level {
			rels = append(rels, rel.Flip())
		}
	}
	sd, ok := seedsFor(rels, row)
	if !ok {
		return nil, nil
	}

	recs, err := r.all(ctx, level, sd)
	if err != nil {
		return nil, err
	}
	var out []parentRef
	for _, rec := range recs {
		if join.Evaluate(connecting, row, rec.Context) {
			out = append(out, parentRef{DN: rec.DN, Context: rec.Context})
		}
	}
	return out, nil
}

// all returns every entry of em whose sources satisfy sd.
func (r *resolver) all(ctx context.Context, em *mapping.EntryMapping, sd seeds) ([]*record, error) {
	key := "all|" + em.ID + sd.String()
	if recs, ok := r.remembered(key); ok {
		return recs, nil
	}

	var recs []*record
	if em.IsStatic() {
		parents, err := r.parents(ctx, em, em, data.NewAttributeValues())
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			rec, err := r.static(em, p)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				recs = append(recs, rec)
			}
		}
	} else {
		var err error
		if recs, err = r.resolve(ctx, r.st.search.Plan(em, nil), sd, nil); err != nil {
			return nil, err
		}
	}
	r.remember(key, recs)
	return recs, nil
}

// static builds the entry of a static mapping below p.
func (r *resolver) static(em *mapping.EntryMapping, p parentRef) (*record, error) {
	attrs, rdns, err := r.e.transform.TranslateToEntry(em, p.Context)
	if err != nil {
		return nil, result.Expression("", "", err)
	}
	if len(rdns) == 0 {
		return nil, nil
	}
	dn := data.AppendRDN(rdns[0], p.DN)
	return &record{
		DN:       dn,
		Mapping:  em,
		Entry:    directory.NewEntryWith(dn, attrs),
		Sources:  data.NewAttributeValues(),
		Rows:     make(map[string][]*data.AttributeValues),
		Context:  p.Context,
		ParentDN: p.DN,
	}, nil
}

// pin resolves the parent DN of an entry of em. It returns the parent and
// the seeds restricting em's sources to that parent's children; ok is
// false when no entry of em can live there.
func (r *resolver) pin(ctx context.Context, em *mapping.EntryMapping, parentDN string) (p *parentRef, sd seeds, ok bool, err error) {
	level := em.Parent()
	if level == nil {
		if !data.EqualDN(parentDN, em.ParentDN) {
			return nil, nil, false, nil
		}
		return &parentRef{DN: em.ParentDN, Context: data.NewAttributeValues()}, nil, true, nil
	}

	parent, err := r.lookup(ctx, level, parentDN)
	if err != nil || parent == nil {
		return nil, nil, false, err
	}
	p = &parentRef{DN: parent.DN, Context: parent.Context}
	if em.IsStatic() {
		return p, nil, true, nil
	}
	sd, ok = seedsFor(r.st.analyzer.Get(em).Connecting, parent.Context)
	return p, sd, ok, nil
}

// children returns the entries of em directly below parentDN.
func (r *resolver) children(ctx context.Context, em *mapping.EntryMapping, parentDN string, f *filter.Filter) ([]*record, error) {
	p, sd, ok, err := r.pin(ctx, em, parentDN)
	if err != nil || !ok {
		return nil, err
	}
	if em.IsStatic() {
		rec, err := r.static(em, *p)
		if err != nil || rec == nil {
			return nil, err
		}
		return []*record{rec}, nil
	}
	return r.resolve(ctx, r.st.search.Plan(em, f), sd, p)
}

// lookup returns the entry of em named dn, or nil.
func (r *resolver) lookup(ctx context.Context, em *mapping.EntryMapping, dn string) (*record, error) {
	if !em.Matches(dn) {
		return nil, nil
	}
	key := "dn|" + em.ID + "|" + data.NormalizeDN(dn)
	if recs, ok := r.remembered(key); ok {
		if len(recs) == 0 {
			return nil, nil
		}
		return recs[0], nil
	}

	parentDN, err := data.ParentDN(dn)
	if err != nil {
		return nil, result.New(result.InvalidDNSyntax, "", dn, err)
	}
	f, err := rdnFilter(dn)
	if err != nil {
		return nil, err
	}
	recs, err := r.children(ctx, em, parentDN, f)
	if err != nil {
		return nil, err
	}

	var found []*record
	for _, rec := range recs {
		if data.EqualDN(rec.DN, dn) {
			found = append(found, rec)
			break
		}
	}
	r.remember(key, found)
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

// find returns the entry named dn under any mapping, or nil.
func (r *resolver) find(ctx context.Context, dn string) (*record, error) {
	for _, em := range r.st.registry.MappingsFor(dn) {
		rec, err := r.lookup(ctx, em, dn)
		if err != nil || rec != nil {
			return rec, err
		}
	}
	return nil, nil
}

// rdnFilter selects the entry named by the leaf RDN of dn.
func rdnFilter(dn string) (*filter.Filter, error) {
	rdn, err := data.LeafRDN(dn)
	if err != nil {
		return nil, result.New(result.InvalidDNSyntax, "", dn, err)
	}
	var conds []*filter.Filter
	for _, name := range rdn.Names() {
		v, _ := rdn.Get(name)
		conds = append(conds, filter.NewEqualityFilter(name, v))
	}
	return filter.And(conds...), nil
}
