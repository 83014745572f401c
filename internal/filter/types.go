// Package filter provides LDAP search filter structures.
package filter

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// FilterType represents the type of filter operation.
type FilterType int

const (
	// FilterAnd represents an AND filter (&).
	FilterAnd FilterType = iota
	// FilterOr represents an OR filter (|).
	FilterOr
	// FilterNot represents a NOT filter (!).
	FilterNot
	// FilterEquality represents an equality filter (attr=value).
	FilterEquality
	// FilterSubstring represents a substring filter (attr=*value*).
	FilterSubstring
	// FilterGreaterOrEqual represents a greater-or-equal filter (attr>=value).
	FilterGreaterOrEqual
	// FilterLessOrEqual represents a less-or-equal filter (attr<=value).
	FilterLessOrEqual
	// FilterPresent represents a presence filter (attr=*).
	FilterPresent
	// FilterApproxMatch represents an approximate match filter (attr~=value).
	FilterApproxMatch
)

// String returns the string representation of the FilterType.
func (ft FilterType) String() string {
	switch ft {
	case FilterAnd:
		return "AND"
	case FilterOr:
		return "OR"
	case FilterNot:
		return "NOT"
	case FilterEquality:
		return "EQUALITY"
	case FilterSubstring:
		return "SUBSTRING"
	case FilterGreaterOrEqual:
		return "GREATER_OR_EQUAL"
	case FilterLessOrEqual:
		return "LESS_OR_EQUAL"
	case FilterPresent:
		return "PRESENT"
	case FilterApproxMatch:
		return "APPROX_MATCH"
	default:
		return "UNKNOWN"
	}
}

// IsSimple reports whether the type is a leaf (attribute, operator, value) node.
func (ft FilterType) IsSimple() bool {
	return ft != FilterAnd && ft != FilterOr && ft != FilterNot
}

// Filter represents a search filter.
type Filter struct {
	Type      FilterType
	Attribute string
	Value     string
	Children  []*Filter        // For AND/OR filters
	Child     *Filter          // For NOT filter
	Substring *SubstringFilter // For substring filters
}

// SubstringFilter represents the components of a substring filter.
type SubstringFilter struct {
	Attribute string
	Initial   string   // Initial substring (before first *)
	Any       []string // Middle substrings (between *s)
	Final     string   // Final substring (after last *)
}

// NewAndFilter creates a new AND filter with the given children.
func NewAndFilter(children ...*Filter) *Filter {
	return &Filter{
		Type:     FilterAnd,
		Children: children,
	}
}

// NewOrFilter creates a new OR filter with the given children.
func NewOrFilter(children ...*Filter) *Filter {
	return &Filter{
		Type:     FilterOr,
		Children: children,
	}
}

// NewNotFilter creates a new NOT filter with the given child.
func NewNotFilter(child *Filter) *Filter {
	return &Filter{
		Type:  FilterNot,
		Child: child,
	}
}

// NewEqualityFilter creates a new equality filter.
func NewEqualityFilter(attribute, value string) *Filter {
	return &Filter{
		Type:      FilterEquality,
		Attribute: attribute,
		Value:     value,
	}
}

// NewSubstringFilter creates a new substring filter.
func NewSubstringFilter(sf *SubstringFilter) *Filter {
	return &Filter{
		Type:      FilterSubstring,
		Attribute: sf.Attribute,
		Substring: sf,
	}
}

// NewPresentFilter creates a new presence filter.
func NewPresentFilter(attribute string) *Filter {
	return &Filter{
		Type:      FilterPresent,
		Attribute: attribute,
	}
}

// NewGreaterOrEqualFilter creates a new greater-or-equal filter.
func NewGreaterOrEqualFilter(attribute, value string) *Filter {
	return &Filter{
		Type:      FilterGreaterOrEqual,
		Attribute: attribute,
		Value:     value,
	}
}

// NewLessOrEqualFilter creates a new less-or-equal filter.
func NewLessOrEqualFilter(attribute, value string) *Filter {
	return &Filter{
		Type:      FilterLessOrEqual,
		Attribute: attribute,
		Value:     value,
	}
}

// NewApproxMatchFilter creates a new approximate match filter.
func NewApproxMatchFilter(attribute, value string) *Filter {
	return &Filter{
		Type:      FilterApproxMatch,
		Attribute: attribute,
		Value:     value,
	}
}

// Clone returns a deep copy of the filter.
func (f *Filter) Clone() *Filter {
	if f == nil {
		return nil
	}
	clone := &Filter{
		Type:      f.Type,
		Attribute: f.Attribute,
		Value:     f.Value,
		Child:     f.Child.Clone(),
	}
	for _, c := range f.Children {
		clone.Children = append(clone.Children, c.Clone())
	}
	if f.Substring != nil {
		sf := *f.Substring
		sf.Any = append([]string(nil), f.Substring.Any...)
		clone.Substring = &sf
	}
	return clone
}

// WithAttribute returns a copy of a simple filter bound to another attribute.
func (f *Filter) WithAttribute(attribute string) *Filter {
	clone := f.Clone()
	clone.Attribute = attribute
	if clone.Substring != nil {
		clone.Substring.Attribute = attribute
	}
	return clone
}

// Attributes returns the distinct attribute names referenced by the filter.
func (f *Filter) Attributes() []string {
	var names []string
	seen := make(map[string]bool)
	f.walk(func(n *Filter) {
		if n.Type.IsSimple() && !seen[strings.ToLower(n.Attribute)] {
			seen[strings.ToLower(n.Attribute)] = true
			names = append(names, n.Attribute)
		}
	})
	return names
}

func (f *Filter) walk(fn func(*Filter)) {
	if f == nil {
		return
	}
	fn(f)
	for _, c := range f.Children {
		c.walk(fn)
	}
	f.Child.walk(fn)
}

// String renders the filter in RFC 4515 syntax with escaped values.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	var sb strings.Builder
	f.render(&sb)
	return sb.String()
}

func (f *Filter) render(sb *strings.Builder) {
	sb.WriteByte('(')
	switch f.Type {
	case FilterAnd, FilterOr:
		if f.Type == FilterAnd {
			sb.WriteByte('&')
		} else {
			sb.WriteByte('|')
		}
		for _, c := range f.Children {
			c.render(sb)
		}
	case FilterNot:
		sb.WriteByte('!')
		if f.Child != nil {
			f.Child.render(sb)
		}
	case FilterEquality:
		sb.WriteString(f.Attribute + "=" + ldap.EscapeFilter(f.Value))
	case FilterGreaterOrEqual:
		sb.WriteString(f.Attribute + ">=" + ldap.EscapeFilter(f.Value))
	case FilterLessOrEqual:
		sb.WriteString(f.Attribute + "<=" + ldap.EscapeFilter(f.Value))
	case FilterApproxMatch:
		sb.WriteString(f.Attribute + "~=" + ldap.EscapeFilter(f.Value))
	case FilterPresent:
		sb.WriteString(f.Attribute + "=*")
	case FilterSubstring:
		sb.WriteString(f.Attribute + "=")
		if f.Substring != nil {
			sb.WriteString(ldap.EscapeFilter(f.Substring.Initial))
			sb.WriteByte('*')
			for _, a := range f.Substring.Any {
				sb.WriteString(ldap.EscapeFilter(a))
				sb.WriteByte('*')
			}
			sb.WriteString(ldap.EscapeFilter(f.Substring.Final))
		}
	}
	sb.WriteByte(')')
}
