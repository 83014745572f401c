package mapping

import "strings"

// Expression computes a value. Exactly one of Constant, Variable or Script
// is expected to be set; a Script takes precedence over a Variable, which
// takes precedence over a Constant.
//
// A Foreach expression iterates over the values of the named input,
// binds each one to Var and evaluates once per element.
type Expression struct {
	Constant string
	Variable string
	Script   string
	Foreach  string
	Var      string
}

// Constant returns an expression producing a fixed value.
func Constant(value string) Expression {
	return Expression{Constant: value}
}

// Variable returns an expression copying the values of a bound name.
func Variable(name string) Expression {
	return Expression{Variable: name}
}

// Script returns an interpreted expression.
func Script(script string) Expression {
	return Expression{Script: script}
}

// IsScript reports whether the expression needs the interpreter.
func (e Expression) IsScript() bool {
	return strings.TrimSpace(e.Script) != ""
}

// IsVariable reports whether the expression is a plain variable reference.
func (e Expression) IsVariable() bool {
	return !e.IsScript() && e.Variable != ""
}

// IsConstant reports whether the expression yields a fixed value.
func (e Expression) IsConstant() bool {
	return !e.IsScript() && e.Variable == "" && e.Foreach == ""
}

// IsForeach reports whether the expression iterates over a multi-valued input.
func (e Expression) IsForeach() bool {
	return e.Foreach != ""
}

// IsEmpty reports whether the expression yields nothing.
func (e Expression) IsEmpty() bool {
	return e == Expression{}
}

func (e Expression) String() string {
	var s string
	switch {
	case e.IsScript():
		s = e.Script
	case e.Variable != "":
		s = e.Variable
	default:
		s = "'" + e.Constant + "'"
	}
	if e.IsForeach() {
		return "foreach " + e.Var + " in " + e.Foreach + ": " + s
	}
	return s
}
