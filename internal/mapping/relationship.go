package mapping

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidRelationship is returned when a relationship cannot be parsed.
var ErrInvalidRelationship = errors.New("mapping: invalid relationship")

// Operator is a relationship comparison operator.
type Operator string

// Relationship operators.
const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "<>"
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
)

// operatorsByLength lists two-character operators first so that scanning
// never splits "<=" into "<" and "=".
var operatorsByLength = []Operator{OpNotEqual, OpLessEqual, OpGreaterEqual, OpEqual, OpLess, OpGreater}

// Flip returns the operator that holds when both sides are swapped.
func (o Operator) Flip() Operator {
	switch o {
	case OpLess:
		return OpGreater
	case OpLessEqual:
		return OpGreaterEqual
	case OpGreater:
		return OpLess
	case OpGreaterEqual:
		return OpLessEqual
	default:
		return o
	}
}

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	for _, op := range operatorsByLength {
		if op == o {
			return true
		}
	}
	return false
}

// Operand is one side of a relationship: either a qualified field
// reference "source.field" or a literal value.
type Operand struct {
	Source  string
	Field   string
	Literal string
	// IsLiteral distinguishes the empty literal from an unset reference.
	IsLiteral bool
}

// FieldOperand builds a "source.field" operand.
func FieldOperand(source, field string) Operand {
	return Operand{Source: source, Field: field}
}

// LiteralOperand builds a literal operand.
func LiteralOperand(value string) Operand {
	return Operand{Literal: value, IsLiteral: true}
}

// ParseOperand parses "source.field", a quoted literal or a number.
func ParseOperand(s string) (Operand, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Operand{}, fmt.Errorf("%w: empty operand", ErrInvalidRelationship)
	}
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return LiteralOperand(s[1 : len(s)-1]), nil
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return LiteralOperand(s), nil
	}
	idx := strings.IndexByte(s, '.')
	if idx <= 0 || idx == len(s)-1 {
		return Operand{}, fmt.Errorf("%w: operand %q is not source.field", ErrInvalidRelationship, s)
	}
	return FieldOperand(s[:idx], s[idx+1:]), nil
}

// Name returns the qualified "source.field" name. Literals have no name.
func (o Operand) Name() string {
	if o.IsLiteral {
		return ""
	}
	return o.Source + "." + o.Field
}

func (o Operand) String() string {
	if o.IsLiteral {
		if _, err := strconv.ParseFloat(o.Literal, 64); err == nil {
			return o.Literal
		}
		return "'" + o.Literal + "'"
	}
	return o.Name()
}

// Relationship is a predicate "lhs op rhs" linking two source fields, or a
// source field and a literal.
type Relationship struct {
	LHS Operand
	Op  Operator
	RHS Operand
}

// NewRelationship builds an equality relationship between two fields given
// as "source.field".
func NewRelationship(lhs, rhs string) Relationship {
	return Relationship{LHS: splitOperand(lhs), Op: OpEqual, RHS: splitOperand(rhs)}
}

func splitOperand(name string) Operand {
	source, field, _ := strings.Cut(name, ".")
	return FieldOperand(source, field)
}

// ParseRelationship parses expressions like "users.id = emails.user_id" or
// "users.status <> 'disabled'".
func ParseRelationship(expr string) (Relationship, error) {
	quote := byte(0)
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			continue
		}
		for _, op := range operatorsByLength {
			if !strings.HasPrefix(expr[i:], string(op)) {
				continue
			}
			lhs, err := ParseOperand(expr[:i])
			if err != nil {
				return Relationship{}, err
			}
			rhs, err := ParseOperand(expr[i+len(op):])
			if err != nil {
				return Relationship{}, err
			}
			if lhs.IsLiteral && rhs.IsLiteral {
				return Relationship{}, fmt.Errorf("%w: %q compares two literals", ErrInvalidRelationship, expr)
			}
			return Relationship{LHS: lhs, Op: op, RHS: rhs}, nil
		}
	}
	return Relationship{}, fmt.Errorf("%w: no operator in %q", ErrInvalidRelationship, expr)
}

// Flip returns the equivalent relationship with sides swapped.
func (r Relationship) Flip() Relationship {
	return Relationship{LHS: r.RHS, Op: r.Op.Flip(), RHS: r.LHS}
}

// Operands returns both sides.
func (r Relationship) Operands() []Operand {
	return []Operand{r.LHS, r.RHS}
}

// Sources returns the distinct source names referenced by field operands.
func (r Relationship) Sources() []string {
	var out []string
	for _, o := range r.Operands() {
		if o.IsLiteral {
			continue
		}
		if len(out) == 1 && out[0] == o.Source {
			continue
		}
		out = append(out, o.Source)
	}
	return out
}

// References reports whether one of the sides is a field of source.
func (r Relationship) References(source string) bool {
	return (!r.LHS.IsLiteral && r.LHS.Source == source) || (!r.RHS.IsLiteral && r.RHS.Source == source)
}

// Oriented returns the relationship rewritten so that its LHS is a field of
// source. ok is false when source is not referenced.
func (r Relationship) Oriented(source string) (Relationship, bool) {
	switch {
	case !r.LHS.IsLiteral && r.LHS.Source == source:
		return r, true
	case !r.RHS.IsLiteral && r.RHS.Source == source:
		return r.Flip(), true
	}
	return r, false
}

// IsLiteral reports whether one side is a literal value.
func (r Relationship) IsLiteral() bool {
	return r.LHS.IsLiteral || r.RHS.IsLiteral
}

func (r Relationship) String() string {
	return r.LHS.String() + " " + string(r.Op) + " " + r.RHS.String()
}
