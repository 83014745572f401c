package config

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/KilimcininKorOglu/vdx/internal/filter"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
)

// ToRegistry builds the mapping registry declared by cfg. Every
// conversion problem is reported, followed by the registry's own
// validation.
func ToRegistry(cfg *Config) (*mapping.Registry, error) {
	sources := make([]*mapping.Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources = append(sources, toSource(s))
	}

	var errs error
	entries := make([]*mapping.EntryMapping, 0, len(cfg.Entries))
	for _, e := range cfg.Entries {
		em, err := toEntryMapping(e)
		errs = multierr.Append(errs, err)
		entries = append(entries, em)
	}
	if errs != nil {
		return nil, errs
	}

	return mapping.NewRegistry(sources, entries)
}

func toSource(s SourceConfig) *mapping.Source {
	src := &mapping.Source{
		Name:      s.Name,
		Connector: s.Connector,
		Params:    s.Params,
	}
	for _, f := range s.Fields {
		src.Fields = append(src.Fields, mapping.SourceField{Name: f.Name, PrimaryKey: f.PrimaryKey})
	}
	return src
}

func toEntryMapping(e EntryConfig) (*mapping.EntryMapping, error) {
	em := &mapping.EntryMapping{
		ID:            e.ID,
		ParentID:      e.Parent,
		ParentDN:      e.ParentDN,
		ObjectClasses: e.ObjectClasses,
	}
	for _, a := range e.Attributes {
		em.Attributes = append(em.Attributes, &mapping.AttributeMapping{
			Name:       a.Name,
			Expression: a.expression(),
			RDN:        a.RDN,
		})
	}

	var errs error
	for _, s := range e.Sources {
		sm, err := toSourceMapping(s)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("entry %s: %w", e.ID, err))
			continue
		}
		em.Sources = append(em.Sources, sm)
	}
	for _, expr := range e.Relationships {
		rel, err := mapping.ParseRelationship(expr)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("entry %s: %w", e.ID, err))
			continue
		}
		em.Relationships = append(em.Relationships, rel)
	}
	return em, errs
}

func toSourceMapping(s EntrySourceConfig) (*mapping.SourceMapping, error) {
	alias := s.Alias
	if alias == "" {
		alias = s.Source
	}
	sm := mapping.NewSourceMapping(alias, s.Source)
	for _, f := range s.Fields {
		sm.Fields = append(sm.Fields, &mapping.FieldMapping{
			Name:       f.Name,
			Expression: f.expression(),
			PrimaryKey: f.PrimaryKey,
		})
	}
	if s.Filter != "" {
		f, err := filter.Parse(s.Filter)
		if err != nil {
			return nil, fmt.Errorf("source %s: invalid filter %q: %w", alias, s.Filter, err)
		}
		sm.Filter = f
	}
	sm.IncludeOnAdd = flag(s.IncludeOnAdd)
	sm.IncludeOnModify = flag(s.IncludeOnModify)
	sm.IncludeOnModRdn = flag(s.IncludeOnModRdn)
	sm.Required = flag(s.Required)
	sm.ReadOnly = s.ReadOnly
	return sm, nil
}

func (e ExpressionConfig) expression() mapping.Expression {
	return mapping.Expression{
		Constant: e.Constant,
		Variable: e.Variable,
		Script:   e.Script,
		Foreach:  e.Foreach,
		Var:      e.Var,
	}
}

// flag reads an optional boolean that defaults to true.
func flag(b *bool) bool {
	return b == nil || *b
}
