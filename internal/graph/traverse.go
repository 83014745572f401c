package graph

import (
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
)

// Visitor receives depth-first traversal callbacks. Returning false from
// PreVisitNode skips the node's edges; returning false from PreVisitEdge
// skips descending through that edge. Post hooks run for every pre hook
// that returned true.
type Visitor interface {
	PreVisitNode(node *mapping.SourceMapping) bool
	PostVisitNode(node *mapping.SourceMapping)
	PreVisitEdge(from, to *mapping.SourceMapping, edge *Edge) bool
	PostVisitEdge(from, to *mapping.SourceMapping, edge *Edge)
}

// BaseVisitor descends everywhere and does nothing. Embed it to implement
// only some hooks.
type BaseVisitor struct{}

// PreVisitNode implements Visitor.
func (BaseVisitor) PreVisitNode(*mapping.SourceMapping) bool { return true }

// PostVisitNode implements Visitor.
func (BaseVisitor) PostVisitNode(*mapping.SourceMapping) {}

// PreVisitEdge implements Visitor.
func (BaseVisitor) PreVisitEdge(_, _ *mapping.SourceMapping, _ *Edge) bool { return true }

// PostVisitEdge implements Visitor.
func (BaseVisitor) PostVisitEdge(_, _ *mapping.SourceMapping, _ *Edge) {}

// NodeFunc is a Visitor calling Fn on every node.
type NodeFunc struct {
	BaseVisitor
	Fn func(node *mapping.SourceMapping) bool
}

// PreVisitNode implements Visitor.
func (v *NodeFunc) PreVisitNode(node *mapping.SourceMapping) bool {
	return v.Fn(node)
}

// Traverse walks g depth-first from start, visiting every reachable node
// once. Edges of a node are visited in declaration order; edges leading
// to an already visited node are not offered to the visitor.
func Traverse(g *Graph, start string, v Visitor) {
	node := g.Node(start)
	if node == nil {
		return
	}
	visited := map[string]bool{start: true}
	traverse(g, node, v, visited)
}

func traverse(g *Graph, node *mapping.SourceMapping, v Visitor, visited map[string]bool) {
	if !v.PreVisitNode(node) {
		return
	}
	for _, e := range g.EdgesOf(node.Alias) {
		next := e.Other(node.Alias)
		if visited[next] {
			continue
		}
		to := g.Node(next)
		if !v.PreVisitEdge(node, to, e) {
			continue
		}
		visited[next] = true
		traverse(g, to, v, visited)
		v.PostVisitEdge(node, to, e)
	}
	v.PostVisitNode(node)
}

// Stack is a LIFO of traversal contexts. Visitors push a derived context
// in PreVisitEdge and pop it in PostVisitEdge so that the top of the stack
// is always the context of the node being visited.
type Stack[T any] struct {
	items []T
}

// NewStack creates a stack holding root.
func NewStack[T any](root T) *Stack[T] {
	return &Stack[T]{items: []T{root}}
}

// Push adds v on top.
func (s *Stack[T]) Push(v T) {
	s.items = append(s.items, v)
}

// Pop removes and returns the top value.
func (s *Stack[T]) Pop() T {
	var zero T
	if len(s.items) == 0 {
		return zero
	}
	v := s.items[len(s.items)-1]
	s.items[len(s.items)-1] = zero
	s.items = s.items[:len(s.items)-1]
	return v
}

// Peek returns the top value without removing it.
func (s *Stack[T]) Peek() T {
	var zero T
	if len(s.items) == 0 {
		return zero
	}
	return s.items[len(s.items)-1]
}

// Len returns the number of values.
func (s *Stack[T]) Len() int {
	return len(s.items)
}

// ContextVisitor visits nodes with a context derived along the path from
// the start node.
type ContextVisitor[C any] struct {
	stack *Stack[C]
	// Visit handles a node with its context. Returning false stops descent
	// from the node.
	Visit func(node *mapping.SourceMapping, ctx C) bool
	// Derive computes the context of to from the context of from. Returning
	// false skips the edge.
	Derive func(from, to *mapping.SourceMapping, edge *Edge, ctx C) (C, bool)
}

// PreVisitNode implements Visitor.
func (v *ContextVisitor[C]) PreVisitNode(node *mapping.SourceMapping) bool {
	if v.Visit == nil {
		return true
	}
	return v.Visit(node, v.stack.Peek())
}

// PostVisitNode implements Visitor.
func (v *ContextVisitor[C]) PostVisitNode(*mapping.SourceMapping) {}

// PreVisitEdge implements Visitor.
func (v *ContextVisitor[C]) PreVisitEdge(from, to *mapping.SourceMapping, edge *Edge) bool {
	next := v.stack.Peek()
	if v.Derive != nil {
		var ok bool
		if next, ok = v.Derive(from, to, edge, next); !ok {
			return false
		}
	}
	v.stack.Push(next)
	return true
}

// PostVisitEdge implements Visitor.
func (v *ContextVisitor[C]) PostVisitEdge(_, _ *mapping.SourceMapping, _ *Edge) {
	v.stack.Pop()
}

// TraverseWithContext walks g from start passing each node the context
// derived along the edges leading to it. root is the start node's context.
func TraverseWithContext[C any](
	g *Graph,
	start string,
	root C,
	visit func(node *mapping.SourceMapping, ctx C) bool,
	derive func(from, to *mapping.SourceMapping, edge *Edge, ctx C) (C, bool),
) {
	Traverse(g, start, &ContextVisitor[C]{
		stack:  NewStack(root),
		Visit:  visit,
		Derive: derive,
	})
}
