package directory

import (
	"fmt"
	"strings"

	"github.com/KilimcininKorOglu/vdx/internal/data"
)

// Scope is the extent of a search below its base DN.
type Scope int

const (
	// ScopeBase matches the base entry only.
	ScopeBase Scope = iota
	// ScopeOneLevel matches immediate children of the base.
	ScopeOneLevel
	// ScopeSubtree matches the base and all of its descendants.
	ScopeSubtree
)

func (s Scope) String() string {
	switch s {
	case ScopeBase:
		return "base"
	case ScopeOneLevel:
		return "one"
	case ScopeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

// ParseScope accepts base, one/onelevel and sub/subtree.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "base":
		return ScopeBase, nil
	case "one", "onelevel", "single":
		return ScopeOneLevel, nil
	case "sub", "subtree", "":
		return ScopeSubtree, nil
	}
	return ScopeSubtree, fmt.Errorf("directory: unknown scope %q", s)
}

// Contains reports whether dn lies within the scope rooted at base.
func (s Scope) Contains(base, dn string) bool {
	switch s {
	case ScopeBase:
		return data.EqualDN(base, dn)
	case ScopeOneLevel:
		return data.IsChildOf(dn, base)
	default:
		return data.IsUnder(dn, base)
	}
}
