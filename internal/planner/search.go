// Package planner provides search plans for entry mappings.
package planner

import (
	"github.com/KilimcininKorOglu/vdx/internal/filter"
	"github.com/KilimcininKorOglu/vdx/internal/graph"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
)

// SourcePlan is the search plan of one source.
type SourcePlan struct {
	Source *mapping.SourceMapping
	// Depth is the distance from the primary source along the traversal.
	Depth int
	// Filter is the search filter rewritten for the source, nil when the
	// filter says nothing about it.
	Filter *filter.Filter
	// Exact reports whether Filter is equivalent to the search filter.
	Exact bool
	// Local is the filter always applied to the source: its configured
	// filter plus literal relationships.
	Local *filter.Filter
}

// Effective returns Filter combined with Local.
func (sp *SourcePlan) Effective() *filter.Filter {
	return filter.And(sp.Filter, sp.Local)
}

// Connecting is a connecting relationship with the depth of its local side.
type Connecting struct {
	Relationship mapping.Relationship
	Source       string
	Depth        int
}

// SearchPlan describes how to find the entries of one mapping.
type SearchPlan struct {
	Mapping *mapping.EntryMapping
	Graph   *graph.Graph
	Filter  *filter.Filter
	Primary string
	// Start is the source queried first.
	Start   string
	Sources map[string]*SourcePlan
	// Order lists sources in traversal order from the primary source.
	Order []string
	// Connecting relationships lead to ancestor entries.
	Connecting []Connecting
	// PostFilters are join relationships not used as traversal edges.
	// They are checked on merged rows.
	PostFilters []mapping.Relationship
}

// Source returns the plan of alias.
func (p *SearchPlan) Source(alias string) *SourcePlan {
	return p.Sources[alias]
}

// PostFiltersFrom returns the relationships left unchecked by a traversal
// starting at start instead of Start.
func (p *SearchPlan) PostFiltersFrom(start string) []mapping.Relationship {
	if start == p.Start {
		return p.PostFilters
	}
	return postFilters(p.Mapping, p.Graph, start)
}

// SearchPlanner builds search plans.
type SearchPlanner struct {
	analyzer *graph.Analyzer
}

// NewSearchPlanner creates a search planner.
func NewSearchPlanner(analyzer *graph.Analyzer) *SearchPlanner {
	return &SearchPlanner{analyzer: analyzer}
}

// Plan computes the search plan of em for an entry-level filter f.
// The start source is the primary source when the filter restricts it;
// otherwise the first source whose filter implies the source row exists,
// so that starting there cannot lose entries; otherwise the primary.
func (sp *SearchPlanner) Plan(em *mapping.EntryMapping, f *filter.Filter) *SearchPlan {
	analysis := sp.analyzer.Get(em)
	plan := &SearchPlan{
		Mapping: em,
		Graph:   analysis.Graph,
		Filter:  f,
		Sources: make(map[string]*SourcePlan, len(em.Sources)),
	}
	if analysis.Primary == nil {
		return plan
	}
	plan.Primary = analysis.Primary.Alias

	depths := make(map[string]int)
	graph.TraverseWithContext(analysis.Graph, plan.Primary, 0,
		func(node *mapping.SourceMapping, depth int) bool {
			depths[node.Alias] = depth
			plan.Order = append(plan.Order, node.Alias)
			return true
		},
		func(_, _ *mapping.SourceMapping, _ *graph.Edge, depth int) (int, bool) {
			return depth + 1, true
		},
	)

	for _, sm := range em.Sources {
		depth, reached := depths[sm.Alias]
		if !reached {
			// Unconnected sources are appended after the traversal.
			depth = len(em.Sources)
			plan.Order = append(plan.Order, sm.Alias)
		}
		sf, exact := SourceFilter(em, sm, f)
		plan.Sources[sm.Alias] = &SourcePlan{
			Source: sm,
			Depth:  depth,
			Filter: filter.Simplify(sf),
			Exact:  exact,
			Local:  filter.And(sm.Filter, LiteralFilter(sm, em.Relationships)),
		}
	}

	plan.Start = plan.Primary
	if plan.Sources[plan.Primary].Filter == nil {
		for _, alias := range plan.Order {
			s := plan.Sources[alias]
			if _, reached := depths[alias]; !reached || s.Filter == nil {
				continue
			}
			if s.Source.Required || Positive(s.Filter) {
				plan.Start = alias
				break
			}
		}
	}

	for _, rel := range analysis.Connecting {
		plan.Connecting = append(plan.Connecting, Connecting{
			Relationship: rel,
			Source:       rel.LHS.Source,
			Depth:        plan.Sources[rel.LHS.Source].Depth,
		})
	}

	plan.PostFilters = postFilters(em, analysis.Graph, plan.Start)
	return plan
}

// postFilters returns the join relationships that the traversal from
// start does not use as edges: edges closing a cycle, relationships
// within one source and relationships of unreachable sources.
func postFilters(em *mapping.EntryMapping, g *graph.Graph, start string) []mapping.Relationship {
	used := make(map[*graph.Edge]bool)
	graph.Traverse(g, start, &edgeRecorder{used: used})

	var out []mapping.Relationship
	for _, e := range g.Edges() {
		if !used[e] {
			out = append(out, e.Relationships...)
		}
	}
	for _, rel := range em.Relationships {
		sources := rel.Sources()
		if !rel.IsLiteral() && len(sources) == 1 && em.Defines(sources[0]) {
			out = append(out, rel)
		}
	}
	return out
}

type edgeRecorder struct {
	graph.BaseVisitor
	used map[*graph.Edge]bool
}

func (r *edgeRecorder) PreVisitEdge(_, _ *mapping.SourceMapping, e *graph.Edge) bool {
	r.used[e] = true
	return true
}
