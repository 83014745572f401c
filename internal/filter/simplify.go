package filter

// Simplify returns an equivalent filter with nested AND/OR nodes of the
// same type flattened, duplicate children removed, single-child groups
// unwrapped and double negation eliminated. The input is not modified.
func Simplify(f *Filter) *Filter {
	if f == nil {
		return nil
	}

	switch f.Type {
	case FilterAnd, FilterOr:
		return simplifyGroup(f)
	case FilterNot:
		child := Simplify(f.Child)
		if child != nil && child.Type == FilterNot {
			return child.Child
		}
		return NewNotFilter(child)
	default:
		return f.Clone()
	}
}

func simplifyGroup(f *Filter) *Filter {
	var children []*Filter
	seen := make(map[string]bool)

	var collect func(*Filter)
	collect = func(node *Filter) {
		for _, c := range node.Children {
			sc := Simplify(c)
			if sc == nil {
				continue
			}
			if sc.Type == f.Type {
				collect(sc)
				continue
			}
			key := sc.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			children = append(children, sc)
		}
	}
	collect(f)

	if len(children) == 1 {
		return children[0]
	}
	return &Filter{Type: f.Type, Children: children}
}

// And combines filters with AND, ignoring nil operands. It returns nil
// when no operand remains.
func And(filters ...*Filter) *Filter {
	return combine(FilterAnd, filters)
}

// Or combines filters with OR, ignoring nil operands. It returns nil when
// no operand remains.
func Or(filters ...*Filter) *Filter {
	return combine(FilterOr, filters)
}

func combine(t FilterType, filters []*Filter) *Filter {
	var children []*Filter
	for _, f := range filters {
		if f != nil {
			children = append(children, f)
		}
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return Simplify(&Filter{Type: t, Children: children})
}
