package filter

import (
	"github.com/KilimcininKorOglu/vdx/internal/data"
)

// Evaluator evaluates search filters against attribute value maps.
// Attribute names are matched exactly first and then ignoring case.
type Evaluator struct{}

// NewEvaluator creates a new filter evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Matches is a shorthand for NewEvaluator().Evaluate.
func Matches(f *Filter, values *data.AttributeValues) bool {
	return (&Evaluator{}).Evaluate(f, values)
}

// Evaluate tests whether values match a filter.
// A nil filter matches everything; nil values match nothing.
func (e *Evaluator) Evaluate(filter *Filter, values *data.AttributeValues) bool {
	if values == nil {
		return false
	}
	if filter == nil {
		return true
	}

	switch filter.Type {
	case FilterAnd:
		return e.evaluateAnd(filter, values)
	case FilterOr:
		return e.evaluateOr(filter, values)
	case FilterNot:
		if filter.Child == nil {
			return false
		}
		return !e.Evaluate(filter.Child, values)
	case FilterEquality:
		return anyValue(values.GetFold(filter.Attribute), func(v string) bool {
			return matchEquality(v, filter.Value)
		})
	case FilterSubstring:
		sf := filter.Substring
		if sf == nil {
			return false
		}
		return anyValue(values.GetFold(sf.Attribute), func(v string) bool {
			return matchSubstring(v, sf.Initial, sf.Any, sf.Final)
		})
	case FilterPresent:
		return len(values.GetFold(filter.Attribute)) > 0
	case FilterGreaterOrEqual:
		return anyValue(values.GetFold(filter.Attribute), func(v string) bool {
			return matchGreaterOrEqual(v, filter.Value)
		})
	case FilterLessOrEqual:
		return anyValue(values.GetFold(filter.Attribute), func(v string) bool {
			return matchLessOrEqual(v, filter.Value)
		})
	case FilterApproxMatch:
		return anyValue(values.GetFold(filter.Attribute), func(v string) bool {
			return matchApprox(v, filter.Value)
		})
	default:
		return false
	}
}

// evaluateAnd returns true only if all children match.
// An empty AND matches everything (vacuous truth).
func (e *Evaluator) evaluateAnd(filter *Filter, values *data.AttributeValues) bool {
	for _, child := range filter.Children {
		if !e.Evaluate(child, values) {
			return false
		}
	}
	return true
}

// evaluateOr returns true if any child matches. An empty OR matches nothing.
func (e *Evaluator) evaluateOr(filter *Filter, values *data.AttributeValues) bool {
	for _, child := range filter.Children {
		if e.Evaluate(child, values) {
			return true
		}
	}
	return false
}

func anyValue(values []string, match func(string) bool) bool {
	for _, v := range values {
		if match(v) {
			return true
		}
	}
	return false
}
