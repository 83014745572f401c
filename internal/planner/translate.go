// Package planner computes how an operation reaches the sources of an
// entry mapping: per-source search filters and depths, join filters
// derived from intermediate rows, relationship classification and the
// order in which sources are written.
package planner

import (
	"strings"

	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/filter"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
)

// SourceFilter rewrites an entry-level filter into the field vocabulary of
// sm. An attribute is expressible on sm when its expression is a plain
// "alias.field" variable of sm, or when a field of sm is a plain copy of
// the attribute. The result is nil when nothing restricts sm. exact
// reports whether the rewritten filter is equivalent to f rather than
// only implied by it.
func SourceFilter(em *mapping.EntryMapping, sm *mapping.SourceMapping, f *filter.Filter) (out *filter.Filter, exact bool) {
	if f == nil {
		return nil, true
	}

	switch f.Type {
	case filter.FilterAnd:
		var children []*filter.Filter
		exact = true
		for _, c := range f.Children {
			tc, cexact := SourceFilter(em, sm, c)
			if tc == nil {
				exact = false
				continue
			}
			exact = exact && cexact
			children = append(children, tc)
		}
		return filter.And(children...), exact && len(children) == len(f.Children)

	case filter.FilterOr:
		var children []*filter.Filter
		exact = true
		for _, c := range f.Children {
			tc, cexact := SourceFilter(em, sm, c)
			if tc == nil {
				return nil, false
			}
			exact = exact && cexact
			children = append(children, tc)
		}
		return filter.Or(children...), exact

	case filter.FilterNot:
		tc, cexact := SourceFilter(em, sm, f.Child)
		if tc == nil || !cexact {
			return nil, false
		}
		return filter.NewNotFilter(tc), true

	default:
		field, ok := FieldFor(em, sm, f.Attribute)
		if !ok {
			return nil, false
		}
		return f.WithAttribute(field), true
	}
}

// FieldFor returns the field of sm holding the values of attribute.
func FieldFor(em *mapping.EntryMapping, sm *mapping.SourceMapping, attribute string) (string, bool) {
	if am := em.Attribute(attribute); am != nil && am.Expression.IsVariable() && !am.Expression.IsForeach() {
		source, field, ok := strings.Cut(am.Expression.Variable, ".")
		if ok && source == sm.Alias {
			return field, true
		}
		if ok {
			return "", false
		}
	}
	for _, fm := range sm.Fields {
		if fm.Expression.IsVariable() && !fm.Expression.IsForeach() && strings.EqualFold(fm.Expression.Variable, attribute) {
			return fm.Name, true
		}
	}
	return "", false
}

// JoinFilter derives the filter selecting the rows of target that can join
// the given rows. rels must be oriented with target on the LHS. Each row
// contributes the AND of its relationship constraints; rows are ORed.
// The result is nil when no row constrains target.
func JoinFilter(target string, rels []mapping.Relationship, rows []*data.AttributeValues) *filter.Filter {
	var alternatives []*filter.Filter
	seen := make(map[string]bool)
	for _, row := range rows {
		var conds []*filter.Filter
		complete := true
		for _, rel := range rels {
			if rel.LHS.IsLiteral || rel.LHS.Source != target {
				continue
			}
			values := operandValues(rel.RHS, row)
			if len(values) == 0 {
				complete = false
				break
			}
			var anyOf []*filter.Filter
			for _, v := range values {
				anyOf = append(anyOf, Comparison(rel.LHS.Field, rel.Op, v))
			}
			conds = append(conds, filter.Or(anyOf...))
		}
		if !complete || len(conds) == 0 {
			continue
		}
		f := filter.And(conds...)
		if key := f.String(); !seen[key] {
			seen[key] = true
			alternatives = append(alternatives, f)
		}
	}
	return filter.Or(alternatives...)
}

func operandValues(o mapping.Operand, row *data.AttributeValues) []string {
	if o.IsLiteral {
		return []string{o.Literal}
	}
	return row.Get(o.Name())
}

// Comparison builds the filter "field op value".
func Comparison(field string, op mapping.Operator, value string) *filter.Filter {
	eq := filter.NewEqualityFilter(field, value)
	switch op {
	case mapping.OpNotEqual:
		return filter.NewNotFilter(eq)
	case mapping.OpGreaterEqual:
		return filter.NewGreaterOrEqualFilter(field, value)
	case mapping.OpLessEqual:
		return filter.NewLessOrEqualFilter(field, value)
	case mapping.OpGreater:
		return filter.NewAndFilter(filter.NewGreaterOrEqualFilter(field, value), filter.NewNotFilter(eq))
	case mapping.OpLess:
		return filter.NewAndFilter(filter.NewLessOrEqualFilter(field, value), filter.NewNotFilter(eq))
	default:
		return eq
	}
}

// LiteralFilter returns the filter imposed on sm by literal relationships
// such as "users.status = 'active'".
func LiteralFilter(sm *mapping.SourceMapping, rels []mapping.Relationship) *filter.Filter {
	var conds []*filter.Filter
	for _, rel := range rels {
		if !rel.IsLiteral() {
			continue
		}
		oriented, ok := rel.Oriented(sm.Alias)
		if !ok || !oriented.RHS.IsLiteral {
			continue
		}
		conds = append(conds, Comparison(oriented.LHS.Field, oriented.Op, oriented.RHS.Literal))
	}
	return filter.And(conds...)
}

// KeyFilter selects the rows addressed by the given primary keys.
func KeyFilter(keys []data.Row) *filter.Filter {
	var alternatives []*filter.Filter
	for _, k := range keys {
		var conds []*filter.Filter
		for _, name := range k.Names() {
			v, _ := k.Get(name)
			conds = append(conds, filter.NewEqualityFilter(name, v))
		}
		alternatives = append(alternatives, filter.And(conds...))
	}
	return filter.Or(alternatives...)
}

// Positive reports whether f can only match rows holding some value, so
// that a source matching it must exist for the entry to match.
func Positive(f *filter.Filter) bool {
	if f == nil {
		return false
	}
	switch f.Type {
	case filter.FilterNot:
		return false
	case filter.FilterAnd:
		for _, c := range f.Children {
			if Positive(c) {
				return true
			}
		}
		return false
	case filter.FilterOr:
		for _, c := range f.Children {
			if !Positive(c) {
				return false
			}
		}
		return len(f.Children) > 0
	default:
		return true
	}
}
