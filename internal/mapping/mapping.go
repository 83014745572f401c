// Package mapping defines the declarative model of the virtual directory:
// physical sources, entry mappings with their per-source field expressions,
// attribute expressions and join relationships, and the registry that links
// them into a tree.
package mapping

import (
	"strings"

	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/filter"
)

// SourceField describes one field of a physical source.
type SourceField struct {
	Name       string
	PrimaryKey bool
}

// Source is a physical backend data set reachable through a connector:
// a table, an LDAP subtree or an in-memory collection.
type Source struct {
	Name      string
	Connector string
	Params    map[string]string
	Fields    []SourceField
}

// Param returns a connector parameter or def when unset.
func (s *Source) Param(name, def string) string {
	if v, ok := s.Params[name]; ok && v != "" {
		return v
	}
	return def
}

// PrimaryKeys returns the names of the primary key fields.
func (s *Source) PrimaryKeys() []string {
	var keys []string
	for _, f := range s.Fields {
		if f.PrimaryKey {
			keys = append(keys, f.Name)
		}
	}
	return keys
}

// FieldMapping computes one source field from entry attribute values.
type FieldMapping struct {
	Name       string
	Expression Expression
	PrimaryKey bool
}

// SourceMapping binds an entry mapping to one physical source under an alias.
type SourceMapping struct {
	// Alias names the source inside the entry mapping. Qualified names and
	// relationships use the alias.
	Alias  string
	Source string
	Fields []*FieldMapping

	// Filter is an optional source-local filter always applied on search.
	Filter *filter.Filter

	IncludeOnAdd    bool
	IncludeOnModify bool
	IncludeOnModRdn bool
	Required        bool
	ReadOnly        bool

	source *Source
}

// NewSourceMapping creates a source mapping with every include flag set
// and Required on.
func NewSourceMapping(alias, source string, fields ...*FieldMapping) *SourceMapping {
	return &SourceMapping{
		Alias:           alias,
		Source:          source,
		Fields:          fields,
		IncludeOnAdd:    true,
		IncludeOnModify: true,
		IncludeOnModRdn: true,
		Required:        true,
	}
}

// Definition returns the physical source resolved by the registry.
func (sm *SourceMapping) Definition() *Source {
	return sm.source
}

// Field returns the field mapping with the given name.
func (sm *SourceMapping) Field(name string) *FieldMapping {
	for _, f := range sm.Fields {
		if strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}

// PrimaryKeys returns the fields addressing one source row: fields flagged
// on the mapping, else primary keys of the source, else every mapped field.
func (sm *SourceMapping) PrimaryKeys() []string {
	var keys []string
	for _, f := range sm.Fields {
		if f.PrimaryKey {
			keys = append(keys, f.Name)
		}
	}
	if len(keys) > 0 {
		return keys
	}
	if sm.source != nil {
		if keys = sm.source.PrimaryKeys(); len(keys) > 0 {
			return keys
		}
	}
	for _, f := range sm.Fields {
		keys = append(keys, f.Name)
	}
	return keys
}

// AttributeMapping computes one entry attribute from source field values.
type AttributeMapping struct {
	Name       string
	Expression Expression
	// RDN marks the attribute as part of the entry's relative name.
	RDN bool
}

// EntryMapping is the template of a virtual entry.
type EntryMapping struct {
	ID string
	// ParentID names the parent entry mapping. Root mappings use ParentDN.
	ParentID string
	// ParentDN is the fixed DN under which root mapping entries live.
	ParentDN      string
	ObjectClasses []string
	Attributes    []*AttributeMapping
	Sources       []*SourceMapping
	Relationships []Relationship

	parent   *EntryMapping
	children []*EntryMapping
}

// Parent returns the parent mapping, nil for roots.
func (em *EntryMapping) Parent() *EntryMapping {
	return em.parent
}

// Children returns the child mappings.
func (em *EntryMapping) Children() []*EntryMapping {
	return em.children
}

// HasChildren reports whether child mappings are declared.
func (em *EntryMapping) HasChildren() bool {
	return len(em.children) > 0
}

// IsStatic reports whether the mapping has no sources. Static mappings
// produce one entry per parent entry from constant attributes.
func (em *EntryMapping) IsStatic() bool {
	return len(em.Sources) == 0
}

// Source returns the source mapping with the given alias.
func (em *EntryMapping) Source(alias string) *SourceMapping {
	for _, sm := range em.Sources {
		if sm.Alias == alias {
			return sm
		}
	}
	return nil
}

// Defines reports whether alias is one of the entry's own sources.
func (em *EntryMapping) Defines(alias string) bool {
	return em.Source(alias) != nil
}

// Attribute returns the attribute mapping with the given name ignoring case.
func (em *EntryMapping) Attribute(name string) *AttributeMapping {
	for _, am := range em.Attributes {
		if strings.EqualFold(am.Name, name) {
			return am
		}
	}
	return nil
}

// RDNAttributes returns the attributes forming the relative name.
func (em *EntryMapping) RDNAttributes() []*AttributeMapping {
	var out []*AttributeMapping
	for _, am := range em.Attributes {
		if am.RDN {
			out = append(out, am)
		}
	}
	return out
}

// Ancestors returns the parent chain, closest first.
func (em *EntryMapping) Ancestors() []*EntryMapping {
	var out []*EntryMapping
	for p := em.parent; p != nil; p = p.parent {
		out = append(out, p)
	}
	return out
}

// Root returns the topmost ancestor, or em itself.
func (em *EntryMapping) Root() *EntryMapping {
	root := em
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// AncestorSource resolves alias among the ancestors' sources, closest first.
func (em *EntryMapping) AncestorSource(alias string) (*EntryMapping, *SourceMapping) {
	for _, a := range em.Ancestors() {
		if sm := a.Source(alias); sm != nil {
			return a, sm
		}
	}
	return nil, nil
}

// Depth returns the number of RDN components of the entries produced by
// the mapping.
func (em *EntryMapping) Depth() int {
	root := em.Root()
	d := data.DNDepth(root.ParentDN)
	if d < 0 {
		d = 0
	}
	return d + len(em.Ancestors()) + 1
}

// SuffixDN returns the fixed DN under which every entry of the tree lives.
func (em *EntryMapping) SuffixDN() string {
	return em.Root().ParentDN
}

// StaticDN returns the DN of a static mapping whose ancestors are all
// static. ok is false otherwise.
func (em *EntryMapping) StaticDN() (string, bool) {
	if !em.IsStatic() {
		return "", false
	}
	rdn := data.NewRow()
	for _, am := range em.RDNAttributes() {
		if !am.Expression.IsConstant() {
			return "", false
		}
		rdn = rdn.With(am.Name, am.Expression.Constant)
	}
	if rdn.IsZero() {
		return "", false
	}
	parent := em.ParentDN
	if em.parent != nil {
		var ok bool
		if parent, ok = em.parent.StaticDN(); !ok {
			return "", false
		}
	}
	return data.AppendRDN(rdn, parent), true
}

// Matches reports whether dn has the shape of the entries of the mapping:
// leaf RDN types equal to the RDN attributes, constant RDN values equal,
// and the parent DN matching the parent mapping or the fixed ParentDN.
func (em *EntryMapping) Matches(dn string) bool {
	rdns, err := data.ParseDN(dn)
	if err != nil {
		return false
	}
	return em.matchRDNs(rdns)
}

func (em *EntryMapping) matchRDNs(rdns []data.RDN) bool {
	if len(rdns) == 0 {
		return false
	}
	if !em.rdnFits(rdns[0]) {
		return false
	}
	rest := rdns[1:]
	if em.parent != nil {
		return em.parent.matchRDNs(rest)
	}
	return data.EqualDN(data.FormatDN(rest), em.ParentDN)
}

func (em *EntryMapping) rdnFits(rdn data.RDN) bool {
	attrs := em.RDNAttributes()
	if len(attrs) == 0 || len(attrs) != len(rdn.Types) {
		return false
	}
	for _, am := range attrs {
		found := false
		for i, t := range rdn.Types {
			if !strings.EqualFold(t, am.Name) {
				continue
			}
			found = true
			if am.Expression.IsConstant() && !strings.EqualFold(rdn.Values[i], am.Expression.Constant) {
				return false
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (em *EntryMapping) String() string {
	return em.ID
}
