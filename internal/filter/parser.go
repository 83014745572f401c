// Package filter provides parsing of the LDAP filter string form.
package filter

import (
	"encoding/hex"
	"errors"
	"strings"
)

// Parse errors.
var (
	ErrEmptyFilter      = errors.New("empty filter")
	ErrInvalidFilter    = errors.New("invalid filter syntax")
	ErrUnbalancedParens = errors.New("unbalanced parentheses")
	ErrMissingAttribute = errors.New("missing attribute name")
	ErrInvalidEscape    = errors.New("invalid escape sequence")
)

// Parse reads an RFC 4515 string filter. A single item may omit its
// parentheses ("uid=alice"). Literal parentheses, asterisks and
// backslashes in values must be written as \28, \29, \2a and \5c.
func Parse(text string) (*Filter, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyFilter
	}
	return parseFilter(text)
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level constants.
func MustParse(filterStr string) *Filter {
	f, err := Parse(filterStr)
	if err != nil {
		panic(err)
	}
	return f
}

// parser is a recursive-descent reader over one filter string.
type parser struct {
	in  string
	pos int
}

func parseFilter(s string) (*Filter, error) {
	if s[0] != '(' {
		if strings.ContainsAny(s, "()") {
			return nil, ErrInvalidFilter
		}
		s = "(" + s + ")"
	}

	p := &parser{in: s}
	f, err := p.filter()
	if err != nil {
		return nil, err
	}
	if p.skipSpace(); !p.eof() {
		return nil, ErrInvalidFilter
	}
	return f, nil
}

func (p *parser) eof() bool { return p.pos >= len(p.in) }

func (p *parser) peek() byte { return p.in[p.pos] }

func (p *parser) skipSpace() {
	for !p.eof() && p.peek() == ' ' {
		p.pos++
	}
}

// filter reads one parenthesized filter starting at the cursor.
func (p *parser) filter() (*Filter, error) {
	if p.eof() {
		return nil, ErrUnbalancedParens
	}
	if p.peek() != '(' {
		return nil, ErrInvalidFilter
	}
	p.pos++
	if p.eof() {
		return nil, ErrUnbalancedParens
	}

	var (
		f   *Filter
		err error
	)
	switch p.peek() {
	case ')':
		return nil, ErrEmptyFilter
	case '&', '|':
		op := p.peek()
		p.pos++
		var children []*Filter
		if children, err = p.list(); err != nil {
			return nil, err
		}
		if op == '&' {
			f = NewAndFilter(children...)
		} else {
			f = NewOrFilter(children...)
		}
	case '!':
		p.pos++
		p.skipSpace()
		var child *Filter
		if child, err = p.filter(); err != nil {
			return nil, err
		}
		f = NewNotFilter(child)
		p.skipSpace()
	default:
		end := strings.IndexByte(p.in[p.pos:], ')')
		if end < 0 {
			return nil, ErrUnbalancedParens
		}
		item := p.in[p.pos : p.pos+end]
		p.pos += end
		if f, err = parseItem(item); err != nil {
			return nil, err
		}
	}

	if p.eof() {
		return nil, ErrUnbalancedParens
	}
	if p.peek() != ')' {
		return nil, ErrInvalidFilter
	}
	p.pos++
	return f, nil
}

// list reads the operands of an AND or OR up to, not including, the
// closing parenthesis. At least one operand is required.
func (p *parser) list() ([]*Filter, error) {
	var out []*Filter
	for {
		p.skipSpace()
		if p.eof() {
			return nil, ErrUnbalancedParens
		}
		if p.peek() == ')' {
			break
		}
		f, err := p.filter()
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, ErrInvalidFilter
	}
	return out, nil
}

// parseItem reads attr OP value where OP is one of = >= <= ~=.
func parseItem(s string) (*Filter, error) {
	eq := strings.IndexByte(s, '=')
	if eq < 0 {
		return nil, ErrInvalidFilter
	}

	attrEnd := eq
	var build func(attr, value string) *Filter
	if eq > 0 {
		switch s[eq-1] {
		case '>':
			build = NewGreaterOrEqualFilter
		case '<':
			build = NewLessOrEqualFilter
		case '~':
			build = NewApproxMatchFilter
		}
		if build != nil {
			attrEnd--
		}
	}

	attr := strings.TrimSpace(s[:attrEnd])
	if attr == "" {
		return nil, ErrMissingAttribute
	}
	raw := s[eq+1:]

	switch {
	case build != nil:
		value, err := unescapeValue(raw)
		if err != nil {
			return nil, err
		}
		return build(attr, value), nil
	case raw == "*":
		return NewPresentFilter(attr), nil
	case strings.Contains(raw, "*"):
		return parseSubstringFilter(attr, raw)
	}

	value, err := unescapeValue(raw)
	if err != nil {
		return nil, err
	}
	return NewEqualityFilter(attr, value), nil
}

func parseSubstringFilter(attr, raw string) (*Filter, error) {
	parts := strings.Split(raw, "*")
	sf := &SubstringFilter{Attribute: attr}
	for i, part := range parts {
		if part == "" {
			continue
		}
		value, err := unescapeValue(part)
		if err != nil {
			return nil, err
		}
		switch i {
		case 0:
			sf.Initial = value
		case len(parts) - 1:
			sf.Final = value
		default:
			sf.Any = append(sf.Any, value)
		}
	}

	return NewSubstringFilter(sf), nil
}

// unescapeValue decodes RFC 4515 \XX escapes.
func unescapeValue(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			sb.WriteByte(s[i])
			continue
		}
		if i+3 > len(s) {
			return "", ErrInvalidEscape
		}
		b, err := hex.DecodeString(s[i+1 : i+3])
		if err != nil {
			return "", ErrInvalidEscape
		}
		sb.Write(b)
		i += 2
	}
	return sb.String(), nil
}
