// Package data provides the value containers that flow through the
// virtual directory engine: multi-valued attribute maps, single-valued
// rows used as join and primary keys, and distinguished name helpers.
package data

import (
	"sort"
	"strings"
)

// AttributeValues is a multi-valued attribute map that keeps names in
// insertion order. Names are case-sensitive. Values of one name form a set:
// duplicates are dropped while the first-seen order is preserved.
//
// Two namespaces share this type. While traversing a join graph names are
// source-local ("sourceName.fieldName"); at the merged entry level names are
// plain attribute names.
type AttributeValues struct {
	names  []string
	values map[string][]string
}

// NewAttributeValues creates an empty AttributeValues.
func NewAttributeValues() *AttributeValues {
	return &AttributeValues{
		values: make(map[string][]string),
	}
}

// FromMap creates an AttributeValues from a map. Names are inserted in
// sorted order so that the result is deterministic.
func FromMap(m map[string][]string) *AttributeValues {
	av := NewAttributeValues()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		av.Add(name, m[name]...)
	}
	return av
}

// Add adds values to the set held under name (set-union).
// Adding with no values registers the name with an empty set.
func (av *AttributeValues) Add(name string, values ...string) {
	current, ok := av.values[name]
	if !ok {
		av.names = append(av.names, name)
	}
	for _, v := range values {
		if !containsValue(current, v) {
			current = append(current, v)
		}
	}
	if current == nil {
		current = []string{}
	}
	av.values[name] = current
}

// Set replaces the values held under name (set-replace).
func (av *AttributeValues) Set(name string, values ...string) {
	if _, ok := av.values[name]; ok {
		av.values[name] = []string{}
	}
	av.Add(name, values...)
}

// AddAll merges every name of other into av using set-union.
func (av *AttributeValues) AddAll(other *AttributeValues) {
	if other == nil {
		return
	}
	for _, name := range other.names {
		av.Add(name, other.values[name]...)
	}
}

// SetAll replaces every name present in other with other's values.
func (av *AttributeValues) SetAll(other *AttributeValues) {
	if other == nil {
		return
	}
	for _, name := range other.names {
		av.Set(name, other.values[name]...)
	}
}

// Get returns the values held under name. The returned slice must not be modified.
func (av *AttributeValues) Get(name string) []string {
	if av == nil {
		return nil
	}
	return av.values[name]
}

// GetFold returns the values held under name. When name itself is absent
// the first name equal to it ignoring case is used.
func (av *AttributeValues) GetFold(name string) []string {
	if av == nil {
		return nil
	}
	if values, ok := av.values[name]; ok {
		return values
	}
	for _, n := range av.names {
		if strings.EqualFold(n, name) {
			return av.values[n]
		}
	}
	return nil
}

// GetOne returns the first value held under name.
func (av *AttributeValues) GetOne(name string) (string, bool) {
	values := av.Get(name)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Contains reports whether name is present, even with an empty value set.
func (av *AttributeValues) Contains(name string) bool {
	if av == nil {
		return false
	}
	_, ok := av.values[name]
	return ok
}

// Remove deletes name and its values.
func (av *AttributeValues) Remove(name string) {
	if _, ok := av.values[name]; !ok {
		return
	}
	delete(av.values, name)
	for i, n := range av.names {
		if n == name {
			av.names = append(av.names[:i], av.names[i+1:]...)
			break
		}
	}
}

// RemoveValues removes the given values from name. The name is dropped
// when no values remain.
func (av *AttributeValues) RemoveValues(name string, values ...string) {
	current, ok := av.values[name]
	if !ok {
		return
	}
	kept := make([]string, 0, len(current))
	for _, v := range current {
		if !containsValue(values, v) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		av.Remove(name)
		return
	}
	av.values[name] = kept
}

// Names returns the names in insertion order.
func (av *AttributeValues) Names() []string {
	if av == nil {
		return nil
	}
	names := make([]string, len(av.names))
	copy(names, av.names)
	return names
}

// Len returns the number of names.
func (av *AttributeValues) Len() int {
	if av == nil {
		return 0
	}
	return len(av.names)
}

// IsEmpty reports whether no name holds a value.
func (av *AttributeValues) IsEmpty() bool {
	if av == nil {
		return true
	}
	for _, values := range av.values {
		if len(values) > 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (av *AttributeValues) Clone() *AttributeValues {
	clone := NewAttributeValues()
	if av == nil {
		return clone
	}
	for _, name := range av.names {
		values := make([]string, len(av.values[name]))
		copy(values, av.values[name])
		clone.names = append(clone.names, name)
		clone.values[name] = values
	}
	return clone
}

// Prefixed returns a copy whose names are qualified as "prefix.name".
func (av *AttributeValues) Prefixed(prefix string) *AttributeValues {
	out := NewAttributeValues()
	if av == nil {
		return out
	}
	for _, name := range av.names {
		out.Add(prefix+"."+name, av.values[name]...)
	}
	return out
}

// Strip returns the names qualified with "prefix." with the qualifier removed.
func (av *AttributeValues) Strip(prefix string) *AttributeValues {
	out := NewAttributeValues()
	if av == nil {
		return out
	}
	p := prefix + "."
	for _, name := range av.names {
		if strings.HasPrefix(name, p) {
			out.Add(name[len(p):], av.values[name]...)
		}
	}
	return out
}

// RemovePrefix drops every name qualified with "prefix.".
func (av *AttributeValues) RemovePrefix(prefix string) {
	p := prefix + "."
	for _, name := range av.Names() {
		if strings.HasPrefix(name, p) {
			av.Remove(name)
		}
	}
}

// Retain keeps only the names accepted by keep.
func (av *AttributeValues) Retain(keep func(name string) bool) {
	for _, name := range av.Names() {
		if !keep(name) {
			av.Remove(name)
		}
	}
}

// Equal reports whether both maps hold the same names with the same value
// sets. Value order is ignored.
func (av *AttributeValues) Equal(other *AttributeValues) bool {
	if av.Len() != other.Len() {
		return false
	}
	for _, name := range av.Names() {
		if !other.Contains(name) {
			return false
		}
		if !SameValues(av.Get(name), other.Get(name)) {
			return false
		}
	}
	return true
}

// ToMap returns a plain map copy.
func (av *AttributeValues) ToMap() map[string][]string {
	m := make(map[string][]string, av.Len())
	for _, name := range av.Names() {
		values := make([]string, len(av.values[name]))
		copy(values, av.values[name])
		m[name] = values
	}
	return m
}

// String renders the map as "name=[v1 v2] name2=[v]".
func (av *AttributeValues) String() string {
	var sb strings.Builder
	for i, name := range av.Names() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(name)
		sb.WriteString("=[")
		sb.WriteString(strings.Join(av.values[name], " "))
		sb.WriteByte(']')
	}
	return sb.String()
}

// SameValues reports whether a and b hold the same set of values.
func SameValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, v := range a {
		if !containsValue(b, v) {
			return false
		}
	}
	return true
}

func containsValue(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
