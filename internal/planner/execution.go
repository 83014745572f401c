// Package planner provides the execution order of mapping sources.
package planner

import (
	"github.com/KilimcininKorOglu/vdx/internal/graph"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
)

// ExecutionPlan classifies the relationships of a mapping and orders its
// sources for writes.
type ExecutionPlan struct {
	Mapping *mapping.EntryMapping
	Primary string
	// Joins have at least two operands resolving to sources of the entry.
	Joins []mapping.Relationship
	// Filters are every other relationship: literals, single-operand
	// relationships and connecting relationships.
	Filters []mapping.Relationship
	// Order is the traversal order from the primary source followed by
	// unconnected sources in declaration order.
	Order []string

	dependsOn map[string]string
}

// DependsOn returns the source that must be written before alias: the
// source it is reached from during traversal. It is empty for the primary
// source and unconnected sources.
func (p *ExecutionPlan) DependsOn(alias string) string {
	return p.dependsOn[alias]
}

// Literals returns the literal relationships of alias oriented with alias
// on the LHS.
func (p *ExecutionPlan) Literals(alias string) []mapping.Relationship {
	var out []mapping.Relationship
	for _, rel := range p.Filters {
		if !rel.IsLiteral() {
			continue
		}
		if oriented, ok := rel.Oriented(alias); ok {
			out = append(out, oriented)
		}
	}
	return out
}

// ExecutionPlanner builds execution plans.
type ExecutionPlanner struct {
	analyzer *graph.Analyzer
}

// NewExecutionPlanner creates an execution planner.
func NewExecutionPlanner(analyzer *graph.Analyzer) *ExecutionPlanner {
	return &ExecutionPlanner{analyzer: analyzer}
}

// Plan computes the execution plan of em.
func (ep *ExecutionPlanner) Plan(em *mapping.EntryMapping) *ExecutionPlan {
	analysis := ep.analyzer.Get(em)
	plan := &ExecutionPlan{
		Mapping:   em,
		dependsOn: make(map[string]string),
	}

	for _, rel := range em.Relationships {
		local := 0
		for _, o := range rel.Operands() {
			if !o.IsLiteral && em.Defines(o.Source) {
				local++
			}
		}
		if local >= 2 {
			plan.Joins = append(plan.Joins, rel)
		} else {
			plan.Filters = append(plan.Filters, rel)
		}
	}

	if analysis.Primary == nil {
		return plan
	}
	plan.Primary = analysis.Primary.Alias

	seen := make(map[string]bool)
	graph.Traverse(analysis.Graph, plan.Primary, &orderVisitor{plan: plan, seen: seen})
	for _, sm := range em.Sources {
		if !seen[sm.Alias] {
			plan.Order = append(plan.Order, sm.Alias)
		}
	}
	return plan
}

type orderVisitor struct {
	graph.BaseVisitor
	plan *ExecutionPlan
	seen map[string]bool
}

func (v *orderVisitor) PreVisitNode(node *mapping.SourceMapping) bool {
	v.seen[node.Alias] = true
	v.plan.Order = append(v.plan.Order, node.Alias)
	return true
}

func (v *orderVisitor) PreVisitEdge(from, to *mapping.SourceMapping, _ *graph.Edge) bool {
	v.plan.dependsOn[to.Alias] = from.Alias
	return true
}
