package planner

import (
	"strings"

	"github.com/KilimcininKorOglu/vdx/internal/data"
)

// SearchCleaner strips from merged rows the values of sources that lie
// deeper than the source carrying a connecting relationship, so that data
// joined far from the primary source does not leak into parent lookups.
type SearchCleaner struct {
	plan *SearchPlan
}

// NewSearchCleaner creates a cleaner for plan.
func NewSearchCleaner(plan *SearchPlan) *SearchCleaner {
	return &SearchCleaner{plan: plan}
}

// MaxDepth returns the depth bound used by Clean: the deepest source
// carrying a connecting relationship, or -1 without connecting
// relationships.
func (c *SearchCleaner) MaxDepth() int {
	max := -1
	for _, conn := range c.plan.Connecting {
		if conn.Depth > max {
			max = conn.Depth
		}
	}
	return max
}

// Clean returns copies of rows without the values of local sources deeper
// than MaxDepth. Names not qualified by a local source are kept.
func (c *SearchCleaner) Clean(rows []*data.AttributeValues) []*data.AttributeValues {
	max := c.MaxDepth()
	out := make([]*data.AttributeValues, 0, len(rows))
	for _, row := range rows {
		cleaned := row.Clone()
		cleaned.Retain(func(name string) bool {
			source, _, ok := strings.Cut(name, ".")
			if !ok {
				return true
			}
			sp := c.plan.Sources[source]
			return sp == nil || sp.Depth <= max
		})
		out = append(out, cleaned)
	}
	return out
}
