package data

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrInvalidDN is returned when a distinguished name cannot be parsed.
var ErrInvalidDN = errors.New("data: invalid DN")

// RDN is one component of a parsed DN. Multi-valued RDNs ("cn=a+sn=b")
// hold more than one type/value pair.
type RDN struct {
	Types  []string
	Values []string
}

// Row converts the RDN into a Row keyed by attribute type.
func (r RDN) Row() Row {
	row := NewRow()
	for i, t := range r.Types {
		row = row.With(t, r.Values[i])
	}
	return row
}

// String renders the RDN with escaped values.
func (r RDN) String() string {
	parts := make([]string, len(r.Types))
	for i, t := range r.Types {
		parts[i] = t + "=" + EscapeDNValue(r.Values[i])
	}
	return strings.Join(parts, "+")
}

// ParseDN splits a DN into its RDN components, leaf first.
// The empty DN yields no components.
func ParseDN(dn string) ([]RDN, error) {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return nil, nil
	}
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDN, dn, err)
	}
	rdns := make([]RDN, 0, len(parsed.RDNs))
	for _, rdn := range parsed.RDNs {
		var r RDN
		for _, attr := range rdn.Attributes {
			r.Types = append(r.Types, attr.Type)
			r.Values = append(r.Values, attr.Value)
		}
		rdns = append(rdns, r)
	}
	return rdns, nil
}

// FormatDN joins RDN components back into a DN string.
func FormatDN(rdns []RDN) string {
	parts := make([]string, len(rdns))
	for i, r := range rdns {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// NormalizeDN returns a canonical lower-case form used for comparisons and
// cache keys. Unparseable input is lower-cased and trimmed.
func NormalizeDN(dn string) string {
	rdns, err := ParseDN(dn)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(dn))
	}
	for i := range rdns {
		for j := range rdns[i].Types {
			rdns[i].Types[j] = strings.ToLower(rdns[i].Types[j])
			rdns[i].Values[j] = strings.ToLower(rdns[i].Values[j])
		}
	}
	return FormatDN(rdns)
}

// EqualDN compares two DNs ignoring case and insignificant spacing.
func EqualDN(a, b string) bool {
	return NormalizeDN(a) == NormalizeDN(b)
}

// ParentDN returns the DN without its leaf RDN.
func ParentDN(dn string) (string, error) {
	rdns, err := ParseDN(dn)
	if err != nil {
		return "", err
	}
	if len(rdns) == 0 {
		return "", nil
	}
	return FormatDN(rdns[1:]), nil
}

// LeafRDN returns the leaf RDN of dn as a Row.
func LeafRDN(dn string) (Row, error) {
	rdns, err := ParseDN(dn)
	if err != nil {
		return Row{}, err
	}
	if len(rdns) == 0 {
		return Row{}, fmt.Errorf("%w: empty DN has no RDN", ErrInvalidDN)
	}
	return rdns[0].Row(), nil
}

// AppendRDN builds "rdn,parent". An empty parent yields the RDN alone.
func AppendRDN(rdn Row, parent string) string {
	r := RDN{}
	for _, name := range rdn.Names() {
		v, _ := rdn.Get(name)
		r.Types = append(r.Types, name)
		r.Values = append(r.Values, v)
	}
	if strings.TrimSpace(parent) == "" {
		return r.String()
	}
	return r.String() + "," + parent
}

// DNDepth returns the number of RDN components, or -1 when dn is invalid.
func DNDepth(dn string) int {
	rdns, err := ParseDN(dn)
	if err != nil {
		return -1
	}
	return len(rdns)
}

// IsUnder reports whether dn equals base or is one of its descendants.
func IsUnder(dn, base string) bool {
	d := NormalizeDN(dn)
	b := NormalizeDN(base)
	if b == "" {
		return true
	}
	return d == b || strings.HasSuffix(d, ","+b)
}

// IsChildOf reports whether dn is an immediate child of parent.
func IsChildOf(dn, parent string) bool {
	p, err := ParentDN(dn)
	if err != nil {
		return false
	}
	return EqualDN(p, parent) && DNDepth(dn) > 0
}

// EscapeDNValue escapes an attribute value for use inside a DN (RFC 4514).
func EscapeDNValue(value string) string {
	if value == "" {
		return value
	}
	var sb strings.Builder
	sb.Grow(len(value) + 4)
	for i, r := range value {
		switch r {
		case ',', '+', '"', '\\', '<', '>', ';', '=':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case '#':
			if i == 0 {
				sb.WriteByte('\\')
			}
			sb.WriteRune(r)
		case ' ':
			if i == 0 || i == len(value)-1 {
				sb.WriteByte('\\')
			}
			sb.WriteRune(r)
		case 0:
			sb.WriteString("\\00")
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
