// Package interpreter evaluates mapping expressions. Scripts are CEL
// expressions evaluated against attribute values: plain names bind to
// identifiers and qualified "source.field" names bind to fields of a map
// named after the source.
package interpreter

import (
	"errors"

	"github.com/KilimcininKorOglu/vdx/internal/data"
)

// Interpreter errors.
var (
	// ErrParse is returned when a script cannot be parsed.
	ErrParse = errors.New("interpreter: parse error")
	// ErrEval is returned when a script fails to evaluate, including
	// references to unbound variables.
	ErrEval = errors.New("interpreter: evaluation error")
)

// Interpreter evaluates scripts and reports the variables they reference.
type Interpreter interface {
	// Eval evaluates script with vars bound and returns its values.
	// A null result yields no values.
	Eval(script string, vars *data.AttributeValues) ([]string, error)

	// ParseVariables returns the free variables referenced by script in
	// order of first appearance. Qualified references are returned as
	// "source.field".
	ParseVariables(script string) ([]string, error)
}
