package changes

import (
	"github.com/KilimcininKorOglu/vdx/internal/directory"
)

// WatchFilter selects the events a subscriber receives.
type WatchFilter struct {
	// BaseDN is the watched DN. Empty matches every DN.
	BaseDN string
	Scope  directory.Scope
	// Operations restricts the kinds of writes. Empty matches all.
	Operations []Operation
}

// Matches reports whether the event passes the filter. A rename matches
// when either its old or new DN is in scope.
func (f WatchFilter) Matches(event *ChangeEvent) bool {
	if event == nil {
		return false
	}
	if len(f.Operations) > 0 {
		matched := false
		for _, op := range f.Operations {
			if event.Operation == op {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.BaseDN == "" {
		return true
	}
	if f.Scope.Contains(f.BaseDN, event.DN) {
		return true
	}
	return event.OldDN != "" && f.Scope.Contains(f.BaseDN, event.OldDN)
}

// MatchAll returns a filter that matches all events.
func MatchAll() WatchFilter {
	return WatchFilter{}
}

// MatchDN returns a filter that matches events of one DN.
func MatchDN(dn string) WatchFilter {
	return WatchFilter{BaseDN: dn, Scope: directory.ScopeBase}
}

// MatchSubtree returns a filter that matches events below baseDN.
func MatchSubtree(baseDN string) WatchFilter {
	return WatchFilter{BaseDN: baseDN, Scope: directory.ScopeSubtree}
}
