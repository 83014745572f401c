// Package graph builds the join graph of an entry mapping, chooses its
// primary source and provides the depth-first traversal used by every
// operation engine.
package graph

import (
	"strings"

	"github.com/KilimcininKorOglu/vdx/internal/mapping"
)

// Edge links two sources of one entry mapping. Several relationships may
// connect the same pair.
type Edge struct {
	A, B          string
	Relationships []mapping.Relationship
}

// Other returns the alias at the far end of the edge from alias.
func (e *Edge) Other(alias string) string {
	if e.A == alias {
		return e.B
	}
	return e.A
}

// Connects reports whether the edge joins a and b in either direction.
func (e *Edge) Connects(a, b string) bool {
	return (e.A == a && e.B == b) || (e.A == b && e.B == a)
}

func (e *Edge) String() string {
	parts := make([]string, len(e.Relationships))
	for i, r := range e.Relationships {
		parts[i] = r.String()
	}
	return e.A + " -- " + e.B + " [" + strings.Join(parts, ", ") + "]"
}

// Graph is the join graph of one entry mapping: one node per source
// mapping, one edge per pair of sources linked by relationships.
type Graph struct {
	nodes     []*mapping.SourceMapping
	byAlias   map[string]*mapping.SourceMapping
	edges     []*Edge
	adjacency map[string][]*Edge
}

// New builds the graph of em. Relationships whose operands do not both
// resolve to distinct sources of em are not edges.
func New(em *mapping.EntryMapping) *Graph {
	g := &Graph{
		byAlias:   make(map[string]*mapping.SourceMapping, len(em.Sources)),
		adjacency: make(map[string][]*Edge),
	}
	for _, sm := range em.Sources {
		g.nodes = append(g.nodes, sm)
		g.byAlias[sm.Alias] = sm
	}
	for _, rel := range em.Relationships {
		sources := rel.Sources()
		if len(sources) != 2 || g.byAlias[sources[0]] == nil || g.byAlias[sources[1]] == nil {
			continue
		}
		if e := g.Edge(sources[0], sources[1]); e != nil {
			e.Relationships = append(e.Relationships, rel)
			continue
		}
		e := &Edge{A: sources[0], B: sources[1], Relationships: []mapping.Relationship{rel}}
		g.edges = append(g.edges, e)
		g.adjacency[e.A] = append(g.adjacency[e.A], e)
		g.adjacency[e.B] = append(g.adjacency[e.B], e)
	}
	return g
}

// Nodes returns the source mappings in declaration order.
func (g *Graph) Nodes() []*mapping.SourceMapping {
	return g.nodes
}

// Node returns the source mapping with the given alias.
func (g *Graph) Node(alias string) *mapping.SourceMapping {
	return g.byAlias[alias]
}

// Edges returns every edge in declaration order.
func (g *Graph) Edges() []*Edge {
	return g.edges
}

// EdgesOf returns the edges touching alias in declaration order.
func (g *Graph) EdgesOf(alias string) []*Edge {
	return g.adjacency[alias]
}

// Edge returns the edge between a and b, if any.
func (g *Graph) Edge(a, b string) *Edge {
	for _, e := range g.adjacency[a] {
		if e.Connects(a, b) {
			return e
		}
	}
	return nil
}

// Neighbors returns the aliases adjacent to alias in edge order.
func (g *Graph) Neighbors(alias string) []string {
	var out []string
	for _, e := range g.adjacency[alias] {
		out = append(out, e.Other(alias))
	}
	return out
}

// Reachable returns the aliases reachable from start, start included, in
// depth-first order.
func (g *Graph) Reachable(start string) []string {
	var out []string
	Traverse(g, start, &NodeFunc{Fn: func(sm *mapping.SourceMapping) bool {
		out = append(out, sm.Alias)
		return true
	}})
	return out
}
