// Package transform translates between merged entry attribute values and
// per-source field values by evaluating mapping expressions.
package transform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/interpreter"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
)

// ErrMissingKey is returned when a primary key or RDN expression fails to
// evaluate, leaving the row or entry unaddressable.
var ErrMissingKey = errors.New("transform: key expression failed")

// ObjectClassAttribute is the attribute filled from EntryMapping.ObjectClasses.
const ObjectClassAttribute = "objectClass"

// Engine evaluates field and attribute expressions.
type Engine struct {
	interp interpreter.Interpreter
}

// New creates a transform engine using interp for scripts.
func New(interp interpreter.Interpreter) *Engine {
	return &Engine{interp: interp}
}

// Interpreter returns the interpreter used for scripts.
func (e *Engine) Interpreter() interpreter.Interpreter {
	return e.interp
}

// Evaluate computes the values of expr with vars bound. Foreach expressions
// evaluate once per value of the iterated input with Var bound to it.
func (e *Engine) Evaluate(expr mapping.Expression, vars *data.AttributeValues) ([]string, error) {
	if !expr.IsForeach() {
		return e.evaluateOnce(expr, vars)
	}

	var out []string
	seen := make(map[string]bool)
	for _, item := range lookup(vars, expr.Foreach) {
		scoped := vars.Clone()
		scoped.Set(expr.Var, item)
		values, err := e.evaluateOnce(expr, scoped)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out, nil
}

func (e *Engine) evaluateOnce(expr mapping.Expression, vars *data.AttributeValues) ([]string, error) {
	switch {
	case expr.IsScript():
		if e.interp == nil {
			return nil, fmt.Errorf("%w: no interpreter for %q", interpreter.ErrEval, expr.Script)
		}
		return e.interp.Eval(expr.Script, vars)
	case expr.Variable != "":
		return append([]string(nil), lookup(vars, expr.Variable)...), nil
	case expr.IsForeach():
		return append([]string(nil), lookup(vars, expr.Var)...), nil
	case expr.Constant != "":
		return []string{expr.Constant}, nil
	}
	return nil, nil
}

func lookup(vars *data.AttributeValues, name string) []string {
	if values := vars.Get(name); values != nil {
		return values
	}
	return vars.GetFold(name)
}

// TranslateToSource computes the fields of sm from merged entry attribute
// values. Keys lists the primary key rows addressed by the result and is
// nil when a key field has no value. Only a failing primary key expression
// is reported as an error; other failures leave the field without values.
func (e *Engine) TranslateToSource(sm *mapping.SourceMapping, attrs *data.AttributeValues) (*data.AttributeValues, []data.Row, error) {
	fields := data.NewAttributeValues()
	keyNames := sm.PrimaryKeys()

	for _, fm := range sm.Fields {
		values, err := e.Evaluate(fm.Expression, attrs)
		if err != nil {
			if containsFold(keyNames, fm.Name) {
				return nil, nil, fmt.Errorf("%w: %s.%s: %v", ErrMissingKey, sm.Alias, fm.Name, err)
			}
			continue
		}
		if len(values) > 0 {
			fields.Add(fm.Name, values...)
		}
	}

	return fields, PrimaryKeys(sm, fields), nil
}

// TranslateToEntry computes the attributes of em from source-qualified
// values ("alias.field"). RDNs lists the relative names the values address
// and is nil when an RDN attribute has no value.
func (e *Engine) TranslateToEntry(em *mapping.EntryMapping, sourceValues *data.AttributeValues) (*data.AttributeValues, []data.Row, error) {
	attrs := data.NewAttributeValues()
	if len(em.ObjectClasses) > 0 {
		attrs.Add(ObjectClassAttribute, em.ObjectClasses...)
	}

	for _, am := range em.Attributes {
		values, err := e.Evaluate(am.Expression, sourceValues)
		if err != nil {
			if am.RDN {
				return nil, nil, fmt.Errorf("%w: %s.%s: %v", ErrMissingKey, em.ID, am.Name, err)
			}
			continue
		}
		if len(values) > 0 {
			attrs.Add(am.Name, values...)
		}
	}

	return attrs, RDNs(em, attrs), nil
}

// PrimaryKeys expands the primary key fields of sm held in fields into
// rows. It returns nil when a key field has no value.
func PrimaryKeys(sm *mapping.SourceMapping, fields *data.AttributeValues) []data.Row {
	return keyRows(sm.PrimaryKeys(), fields)
}

// RDNs expands the RDN attributes of em held in attrs into rows.
func RDNs(em *mapping.EntryMapping, attrs *data.AttributeValues) []data.Row {
	var names []string
	for _, am := range em.RDNAttributes() {
		names = append(names, am.Name)
	}
	return keyRows(names, attrs)
}

func keyRows(names []string, values *data.AttributeValues) []data.Row {
	if len(names) == 0 {
		return nil
	}
	keys := data.NewAttributeValues()
	for _, name := range names {
		v := lookup(values, name)
		if len(v) == 0 {
			return nil
		}
		keys.Add(name, v...)
	}
	return Convert(keys)
}

// Convert expands multi-valued attribute values into the cartesian product
// of single-valued rows. A name with no values is absent from every row
// rather than producing zero rows. No names yields one empty row. The
// result has exactly the product of max(1, len(values)) rows.
func Convert(values *data.AttributeValues) []data.Row {
	rows := []data.Row{data.NewRow()}
	for _, name := range values.Names() {
		vs := values.Get(name)
		if len(vs) == 0 {
			continue
		}
		next := make([]data.Row, 0, len(rows)*len(vs))
		for _, r := range rows {
			for _, v := range vs {
				next = append(next, r.With(name, v))
			}
		}
		rows = next
	}
	return rows
}

// ConvertSize returns the number of rows Convert would produce without
// expanding them.
func ConvertSize(values *data.AttributeValues) int {
	n := 1
	for _, name := range values.Names() {
		if k := len(values.Get(name)); k > 1 {
			n *= k
		}
	}
	return n
}

func containsFold(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
