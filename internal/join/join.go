// Package join implements in-memory nested-loop joins of source-qualified
// attribute value sets under relationship predicates.
package join

import (
	"strings"

	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
)

// Join returns a ∪ b for every pair (a, b) satisfying all relationships.
func Join(left, right []*data.AttributeValues, rels []mapping.Relationship) []*data.AttributeValues {
	var out []*data.AttributeValues
	for _, a := range left {
		for _, b := range right {
			if Evaluate(rels, a, b) {
				out = append(out, union(a, b))
			}
		}
	}
	return out
}

// LeftJoin is Join plus every unmatched left value set, unchanged.
func LeftJoin(left, right []*data.AttributeValues, rels []mapping.Relationship) []*data.AttributeValues {
	var out []*data.AttributeValues
	for _, a := range left {
		matched := false
		for _, b := range right {
			if Evaluate(rels, a, b) {
				out = append(out, union(a, b))
				matched = true
			}
		}
		if !matched {
			out = append(out, a)
		}
	}
	return out
}

func union(a, b *data.AttributeValues) *data.AttributeValues {
	u := a.Clone()
	u.AddAll(b)
	return u
}

// Evaluate reports whether every relationship holds between a and b.
// Operands are looked up in a first and then in b, so either side may
// carry either operand. A relationship holds when any pair of values
// satisfies its operator. An empty list holds.
func Evaluate(rels []mapping.Relationship, a, b *data.AttributeValues) bool {
	for _, rel := range rels {
		if !EvaluateOne(rel, a, b) {
			return false
		}
	}
	return true
}

// EvaluateOne evaluates a single relationship.
func EvaluateOne(rel mapping.Relationship, a, b *data.AttributeValues) bool {
	lhs := operandValues(rel.LHS, a, b)
	rhs := operandValues(rel.RHS, a, b)
	for _, l := range lhs {
		for _, r := range rhs {
			if Compare(rel.Op, l, r) {
				return true
			}
		}
	}
	return false
}

func operandValues(o mapping.Operand, a, b *data.AttributeValues) []string {
	if o.IsLiteral {
		return []string{o.Literal}
	}
	name := o.Name()
	if a.Contains(name) {
		return a.Get(name)
	}
	return b.Get(name)
}

// Compare applies op to two values compared as strings ignoring case.
// "007" and "7" differ, as they do for a backend matching the pushed-down
// join filter.
func Compare(op mapping.Operator, l, r string) bool {
	c := strings.Compare(strings.ToLower(l), strings.ToLower(r))
	switch op {
	case mapping.OpEqual:
		return c == 0
	case mapping.OpNotEqual:
		return c != 0
	case mapping.OpLess:
		return c < 0
	case mapping.OpLessEqual:
		return c <= 0
	case mapping.OpGreater:
		return c > 0
	case mapping.OpGreaterEqual:
		return c >= 0
	}
	return false
}
