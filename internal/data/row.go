package data

import (
	"sort"
	"strings"
)

// Row is a single-valued tuple used as a join key, a primary key or a
// relative distinguished name. Names are kept sorted so that two rows with
// the same content compare equal regardless of construction order.
// Value comparison ignores case, matching directory string semantics.
type Row struct {
	names  []string
	values map[string]string
}

// NewRow creates an empty Row.
func NewRow() Row {
	return Row{values: make(map[string]string)}
}

// RowOf builds a Row from alternating name/value pairs.
func RowOf(pairs ...string) Row {
	r := NewRow()
	for i := 0; i+1 < len(pairs); i += 2 {
		r = r.With(pairs[i], pairs[i+1])
	}
	return r
}

// With returns a copy of the row with name set to value.
func (r Row) With(name, value string) Row {
	out := Row{
		names:  make([]string, 0, len(r.names)+1),
		values: make(map[string]string, len(r.values)+1),
	}
	for _, n := range r.names {
		out.names = append(out.names, n)
		out.values[n] = r.values[n]
	}
	if _, ok := out.values[name]; !ok {
		out.names = append(out.names, name)
		sort.Strings(out.names)
	}
	out.values[name] = value
	return out
}

// Get returns the value held under name.
func (r Row) Get(name string) (string, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Names returns the sorted names.
func (r Row) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// Len returns the number of names.
func (r Row) Len() int {
	return len(r.names)
}

// IsZero reports whether the row has no names.
func (r Row) IsZero() bool {
	return len(r.names) == 0
}

// Compare orders rows by names then values, values compared without case.
// It returns -1, 0 or 1.
func (r Row) Compare(other Row) int {
	n := len(r.names)
	if len(other.names) < n {
		n = len(other.names)
	}
	for i := 0; i < n; i++ {
		if c := strings.Compare(r.names[i], other.names[i]); c != 0 {
			return c
		}
		a := strings.ToLower(r.values[r.names[i]])
		b := strings.ToLower(other.values[other.names[i]])
		if c := strings.Compare(a, b); c != 0 {
			return c
		}
	}
	switch {
	case len(r.names) < len(other.names):
		return -1
	case len(r.names) > len(other.names):
		return 1
	}
	return 0
}

// Equal reports whether both rows hold the same content.
func (r Row) Equal(other Row) bool {
	return r.Compare(other) == 0
}

// Key returns a canonical string usable as a map key.
func (r Row) Key() string {
	var sb strings.Builder
	for i, n := range r.names {
		if i > 0 {
			sb.WriteByte(0)
		}
		sb.WriteString(n)
		sb.WriteByte('=')
		sb.WriteString(strings.ToLower(r.values[n]))
	}
	return sb.String()
}

// AttributeValues converts the row into a multi-valued map.
func (r Row) AttributeValues() *AttributeValues {
	av := NewAttributeValues()
	for _, n := range r.names {
		av.Add(n, r.values[n])
	}
	return av
}

// ToMap returns a plain map copy.
func (r Row) ToMap() map[string]string {
	m := make(map[string]string, len(r.values))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// RowFromMap builds a Row from a map.
func RowFromMap(m map[string]string) Row {
	r := NewRow()
	for k, v := range m {
		r = r.With(k, v)
	}
	return r
}

// String renders the row as "name=value+name2=value2".
func (r Row) String() string {
	parts := make([]string, 0, len(r.names))
	for _, n := range r.names {
		parts = append(parts, n+"="+r.values[n])
	}
	return strings.Join(parts, "+")
}

// RowSet is a deduplicated, ordered collection of rows.
type RowSet struct {
	rows map[string]Row
}

// NewRowSet creates an empty RowSet holding the given rows.
func NewRowSet(rows ...Row) *RowSet {
	s := &RowSet{rows: make(map[string]Row)}
	for _, r := range rows {
		s.Add(r)
	}
	return s
}

// Add inserts r and reports whether it was not already present.
func (s *RowSet) Add(r Row) bool {
	k := r.Key()
	if _, ok := s.rows[k]; ok {
		return false
	}
	s.rows[k] = r
	return true
}

// Contains reports whether r is present.
func (s *RowSet) Contains(r Row) bool {
	_, ok := s.rows[r.Key()]
	return ok
}

// Remove deletes r.
func (s *RowSet) Remove(r Row) {
	delete(s.rows, r.Key())
}

// Len returns the number of rows.
func (s *RowSet) Len() int {
	return len(s.rows)
}

// Rows returns the rows in Compare order.
func (s *RowSet) Rows() []Row {
	out := make([]Row, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Compare(out[j]) < 0
	})
	return out
}
