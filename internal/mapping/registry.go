// Package mapping provides the registry of sources and entry mappings.
package mapping

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/KilimcininKorOglu/vdx/internal/data"
)

// Registry errors.
var (
	// ErrDuplicateSource is returned when two sources share a name.
	ErrDuplicateSource = errors.New("mapping: duplicate source")
	// ErrDuplicateEntry is returned when two entry mappings share an id.
	ErrDuplicateEntry = errors.New("mapping: duplicate entry mapping")
	// ErrUnknownSource is returned when a source mapping names an unknown source.
	ErrUnknownSource = errors.New("mapping: unknown source")
	// ErrUnknownParent is returned when an entry mapping names an unknown parent.
	ErrUnknownParent = errors.New("mapping: unknown parent")
	// ErrParentCycle is returned when parent links form a cycle.
	ErrParentCycle = errors.New("mapping: parent cycle")
	// ErrInvalidMapping is returned for structurally invalid entry mappings.
	ErrInvalidMapping = errors.New("mapping: invalid entry mapping")
)

// Provider supplies entry mapping definitions. The engine treats the
// returned registry as read-only.
type Provider interface {
	Load(ctx context.Context) (*Registry, error)
}

// Registry is an immutable, linked set of sources and entry mappings.
type Registry struct {
	sources     map[string]*Source
	sourceNames []string
	entries     []*EntryMapping
	byID        map[string]*EntryMapping
}

// NewRegistry links entry mappings to their parents and sources and
// validates the result. Every problem found is reported.
func NewRegistry(sources []*Source, entries []*EntryMapping) (*Registry, error) {
	r := &Registry{
		sources: make(map[string]*Source, len(sources)),
		byID:    make(map[string]*EntryMapping, len(entries)),
	}

	var errs error
	for _, s := range sources {
		if _, ok := r.sources[s.Name]; ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s", ErrDuplicateSource, s.Name))
			continue
		}
		r.sources[s.Name] = s
		r.sourceNames = append(r.sourceNames, s.Name)
	}

	for _, em := range entries {
		if em.ID == "" {
			errs = multierr.Append(errs, fmt.Errorf("%w: missing id", ErrInvalidMapping))
			continue
		}
		if _, ok := r.byID[em.ID]; ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s", ErrDuplicateEntry, em.ID))
			continue
		}
		em.parent = nil
		em.children = nil
		r.byID[em.ID] = em
		r.entries = append(r.entries, em)
	}

	for _, em := range r.entries {
		if em.ParentID != "" {
			parent, ok := r.byID[em.ParentID]
			if !ok {
				errs = multierr.Append(errs, fmt.Errorf("%w: %s (parent of %s)", ErrUnknownParent, em.ParentID, em.ID))
			} else {
				em.parent = parent
				parent.children = append(parent.children, em)
			}
		}
		errs = multierr.Append(errs, r.linkSources(em))
		errs = multierr.Append(errs, validateEntry(em))
	}

	for _, em := range r.entries {
		if hasCycle(em) {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s", ErrParentCycle, em.ID))
		}
	}

	if errs != nil {
		return nil, errs
	}
	return r, nil
}

func (r *Registry) linkSources(em *EntryMapping) error {
	var errs error
	seen := make(map[string]bool)
	for _, sm := range em.Sources {
		if seen[sm.Alias] {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s: duplicate source alias %s", ErrInvalidMapping, em.ID, sm.Alias))
		}
		seen[sm.Alias] = true
		s, ok := r.sources[sm.Source]
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s (in %s as %s)", ErrUnknownSource, sm.Source, em.ID, sm.Alias))
			continue
		}
		sm.source = s
	}
	return errs
}

func validateEntry(em *EntryMapping) error {
	var errs error
	if len(em.RDNAttributes()) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: %s: no RDN attribute", ErrInvalidMapping, em.ID))
	}
	if em.ParentID == "" && em.ParentDN != "" {
		if _, err := data.ParseDN(em.ParentDN); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s: %v", ErrInvalidMapping, em.ID, err))
		}
	}
	if em.IsStatic() {
		for _, am := range em.RDNAttributes() {
			if !am.Expression.IsConstant() {
				errs = multierr.Append(errs, fmt.Errorf("%w: %s: static entry RDN attribute %s must be constant", ErrInvalidMapping, em.ID, am.Name))
			}
		}
	}
	for _, rel := range em.Relationships {
		if !rel.Op.Valid() {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s: relationship %s", ErrInvalidMapping, em.ID, rel))
		}
	}
	return errs
}

func hasCycle(em *EntryMapping) bool {
	seen := map[*EntryMapping]bool{em: true}
	for p := em.parent; p != nil; p = p.parent {
		if seen[p] {
			return true
		}
		seen[p] = true
	}
	return false
}

// Source returns the source with the given name.
func (r *Registry) Source(name string) *Source {
	return r.sources[name]
}

// Sources returns the sources in declaration order.
func (r *Registry) Sources() []*Source {
	out := make([]*Source, 0, len(r.sourceNames))
	for _, name := range r.sourceNames {
		out = append(out, r.sources[name])
	}
	return out
}

// Entry returns the entry mapping with the given id.
func (r *Registry) Entry(id string) *EntryMapping {
	return r.byID[id]
}

// Entries returns the entry mappings in declaration order.
func (r *Registry) Entries() []*EntryMapping {
	out := make([]*EntryMapping, len(r.entries))
	copy(out, r.entries)
	return out
}

// Roots returns the mappings without parent.
func (r *Registry) Roots() []*EntryMapping {
	var out []*EntryMapping
	for _, em := range r.entries {
		if em.parent == nil {
			out = append(out, em)
		}
	}
	return out
}

// MappingsFor returns the mappings whose entries could carry dn.
func (r *Registry) MappingsFor(dn string) []*EntryMapping {
	rdns, err := data.ParseDN(dn)
	if err != nil {
		return nil
	}
	var out []*EntryMapping
	for _, em := range r.entries {
		if em.matchRDNs(rdns) {
			out = append(out, em)
		}
	}
	return out
}

// UsingSource returns the mappings that read from the named physical source.
func (r *Registry) UsingSource(source string) []*EntryMapping {
	var out []*EntryMapping
	for _, em := range r.entries {
		for _, sm := range em.Sources {
			if sm.Source == source {
				out = append(out, em)
				break
			}
		}
	}
	return out
}

// Connectors returns the distinct connector names referenced by sources.
func (r *Registry) Connectors() []string {
	var out []string
	seen := make(map[string]bool)
	for _, name := range r.sourceNames {
		c := r.sources[name].Connector
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// StaticProvider serves a fixed registry.
type StaticProvider struct {
	Registry *Registry
}

// Load returns the registry.
func (p StaticProvider) Load(context.Context) (*Registry, error) {
	if p.Registry == nil {
		return nil, fmt.Errorf("%w: no registry", ErrInvalidMapping)
	}
	return p.Registry, nil
}
