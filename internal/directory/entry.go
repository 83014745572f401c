// Package directory holds the runtime shapes a virtual directory hands to its
// callers: entries, modifications and search scopes.
package directory

import (
	"sort"
	"strings"

	"github.com/KilimcininKorOglu/vdx/internal/data"
)

// Entry is a virtual directory entry with multi-valued attributes.
// Attribute lookups ignore case; stored names keep the case of the mapping.
type Entry struct {
	// DN is the distinguished name of the entry.
	DN string

	// Attributes contains the entry's attribute values.
	Attributes *data.AttributeValues
}

// NewEntry creates a new Entry with the given DN.
func NewEntry(dn string) *Entry {
	return &Entry{
		DN:         dn,
		Attributes: data.NewAttributeValues(),
	}
}

// NewEntryWith creates an entry holding attrs.
func NewEntryWith(dn string, attrs *data.AttributeValues) *Entry {
	if attrs == nil {
		attrs = data.NewAttributeValues()
	}
	return &Entry{DN: dn, Attributes: attrs}
}

// GetAttribute returns the values for the given attribute name.
func (e *Entry) GetAttribute(name string) []string {
	return e.Attributes.GetFold(name)
}

// GetFirstAttribute returns the first value for the given attribute name.
// Returns an empty string if the attribute does not exist or has no values.
func (e *Entry) GetFirstAttribute(name string) string {
	values := e.GetAttribute(name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// HasAttribute returns true if the entry has a value for the given attribute.
func (e *Entry) HasAttribute(name string) bool {
	return len(e.GetAttribute(name)) > 0
}

// SetAttribute replaces the values of name.
func (e *Entry) SetAttribute(name string, values ...string) {
	e.Attributes.Set(e.resolve(name), values...)
}

// AddAttributeValue adds values to the given attribute.
func (e *Entry) AddAttributeValue(name string, values ...string) {
	e.Attributes.Add(e.resolve(name), values...)
}

// DeleteAttribute removes an attribute from the entry.
func (e *Entry) DeleteAttribute(name string) {
	e.Attributes.Remove(e.resolve(name))
}

// DeleteAttributeValue removes specific values from an attribute.
// If the attribute has no more values after removal, the attribute is deleted.
func (e *Entry) DeleteAttributeValue(name string, values ...string) {
	e.Attributes.RemoveValues(e.resolve(name), values...)
}

// resolve maps name to the stored spelling when one exists.
func (e *Entry) resolve(name string) string {
	for _, n := range e.Attributes.Names() {
		if strings.EqualFold(n, name) {
			return n
		}
	}
	return name
}

// AttributeNames returns the attribute names in mapping order.
func (e *Entry) AttributeNames() []string {
	return e.Attributes.Names()
}

// Clone creates a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	return &Entry{DN: e.DN, Attributes: e.Attributes.Clone()}
}

// Select returns a copy limited to the requested attribute names.
// No names, or "*", keeps every attribute. "1.1" keeps none.
func (e *Entry) Select(names []string) *Entry {
	if len(names) == 0 {
		return e.Clone()
	}
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "*" {
			return e.Clone()
		}
		keep[strings.ToLower(n)] = true
	}
	out := e.Clone()
	out.Attributes.Retain(func(name string) bool {
		return keep[strings.ToLower(name)]
	})
	return out
}

// Equal reports whether both entries share a DN and attribute values.
func (e *Entry) Equal(other *Entry) bool {
	if e == nil || other == nil {
		return e == other
	}
	return data.EqualDN(e.DN, other.DN) && e.Attributes.Equal(other.Attributes)
}

// LDIF renders the entry as an LDIF content record.
func (e *Entry) LDIF() string {
	var sb strings.Builder
	sb.WriteString("dn: " + e.DN + "\n")
	for _, name := range e.Attributes.Names() {
		values := append([]string(nil), e.Attributes.Get(name)...)
		sort.Strings(values)
		for _, v := range values {
			sb.WriteString(name + ": " + v + "\n")
		}
	}
	return sb.String()
}

func containsFold(values []string, v string) bool {
	for _, existing := range values {
		if strings.EqualFold(existing, v) {
			return true
		}
	}
	return false
}
