// Package filter provides search filter data structures, parsing and
// evaluation for the virtual directory engine.
//
// # Overview
//
// Filters follow RFC 4515 syntax and support every standard filter type:
//
//   - AND (&): Logical conjunction of filters
//   - OR (|): Logical disjunction of filters
//   - NOT (!): Logical negation of a filter
//   - Equality (=): Attribute value match ignoring case
//   - Substring (*): Pattern matching with wildcards
//   - Greater-or-Equal (>=) and Less-or-Equal (<=): Ordering filters
//   - Present (=*): Attribute existence check
//   - Approximate (~=): Whitespace-insensitive match
//
// Ordering filters compare numerically when both operands are numbers and
// lexicographically otherwise.
//
// # Filter Construction
//
//	// (&(objectClass=person)(uid=alice))
//	f := filter.NewAndFilter(
//	    filter.NewEqualityFilter("objectClass", "person"),
//	    filter.NewEqualityFilter("uid", "alice"),
//	)
//
//	// or from text
//	f, err := filter.Parse("(&(objectClass=person)(uid=alice))")
//
// String renders a filter back to RFC 4515 text with values escaped, so a
// parsed filter round-trips through String and Parse.
//
// # Filter Evaluation
//
// Filters are evaluated against data.AttributeValues. The same evaluator is
// used on merged entries (plain attribute names) and on source rows
// (qualified "source.field" names):
//
//	values := data.NewAttributeValues()
//	values.Add("uid", "alice")
//	if filter.Matches(f, values) {
//	    // values match
//	}
//
// # Simplification
//
// Simplify flattens nested AND/OR nodes, removes duplicate children and
// unwraps single-child groups. The planner simplifies every filter it
// derives so that equal filters render to equal cache keys.
package filter
