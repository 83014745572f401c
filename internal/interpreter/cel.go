package interpreter

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/google/cel-go/ext"

	"github.com/KilimcininKorOglu/vdx/internal/data"
)

// CEL is an Interpreter backed by cel-go. Parsed programs are cached per
// script text; CEL is safe for concurrent use.
type CEL struct {
	env      *cel.Env
	programs sync.Map // script -> cel.Program
	asts     sync.Map // script -> *cel.Ast
}

// NewCEL creates a CEL interpreter with the string extension library.
func NewCEL() (*CEL, error) {
	env, err := cel.NewEnv(ext.Strings())
	if err != nil {
		return nil, fmt.Errorf("interpreter: create environment: %w", err)
	}
	return &CEL{env: env}, nil
}

// MustCEL is like NewCEL but panics on error.
func MustCEL() *CEL {
	c, err := NewCEL()
	if err != nil {
		panic(err)
	}
	return c
}

func (c *CEL) parse(script string) (*cel.Ast, error) {
	if cached, ok := c.asts.Load(script); ok {
		return cached.(*cel.Ast), nil
	}
	ast, iss := c.env.Parse(script)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrParse, script, iss.Err())
	}
	c.asts.Store(script, ast)
	return ast, nil
}

func (c *CEL) program(script string) (cel.Program, error) {
	if cached, ok := c.programs.Load(script); ok {
		return cached.(cel.Program), nil
	}
	ast, err := c.parse(script)
	if err != nil {
		return nil, err
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrParse, script, err)
	}
	c.programs.Store(script, prg)
	return prg, nil
}

// Eval evaluates script against vars.
func (c *CEL) Eval(script string, vars *data.AttributeValues) ([]string, error) {
	prg, err := c.program(script)
	if err != nil {
		return nil, err
	}
	out, _, err := prg.Eval(Activation(vars))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrEval, script, err)
	}
	return toStrings(out), nil
}

// ParseVariables walks the parsed expression and collects free identifiers.
func (c *CEL) ParseVariables(script string) ([]string, error) {
	ast, err := c.parse(script)
	if err != nil {
		return nil, err
	}
	w := &variableWalker{seen: make(map[string]bool)}
	w.walk(ast.NativeRep().Expr(), nil)
	return w.names, nil
}

// Activation converts attribute values into CEL bindings. A name holding
// one value binds a string, several values bind a list. Qualified names
// "source.field" are grouped under a map named source.
func Activation(vars *data.AttributeValues) map[string]any {
	out := make(map[string]any, vars.Len())
	for _, name := range vars.Names() {
		values := vars.Get(name)
		var v any
		switch len(values) {
		case 0:
			continue
		case 1:
			v = values[0]
		default:
			v = append([]string(nil), values...)
		}

		source, field, qualified := strings.Cut(name, ".")
		if !qualified {
			if _, taken := out[name].(map[string]any); !taken {
				out[name] = v
			}
			continue
		}
		group, ok := out[source].(map[string]any)
		if !ok {
			group = make(map[string]any)
			out[source] = group
		}
		group[field] = v
	}
	return out
}

func toStrings(v ref.Val) []string {
	if v == nil || v.Type() == types.NullType {
		return nil
	}
	if l, ok := v.(traits.Lister); ok {
		size, _ := l.Size().(types.Int)
		var out []string
		for i := types.Int(0); i < size; i++ {
			out = append(out, toStrings(l.Get(i))...)
		}
		return out
	}
	switch tv := v.(type) {
	case types.String:
		return []string{string(tv)}
	case types.Int:
		return []string{strconv.FormatInt(int64(tv), 10)}
	case types.Uint:
		return []string{strconv.FormatUint(uint64(tv), 10)}
	case types.Double:
		return []string{strconv.FormatFloat(float64(tv), 'f', -1, 64)}
	case types.Bool:
		return []string{strconv.FormatBool(bool(tv))}
	case types.Bytes:
		return []string{string(tv)}
	default:
		return []string{fmt.Sprint(v.Value())}
	}
}

type variableWalker struct {
	names []string
	seen  map[string]bool
}

func (w *variableWalker) add(name string, bound map[string]bool) {
	root, _, _ := strings.Cut(name, ".")
	if bound[root] || w.seen[name] {
		return
	}
	w.seen[name] = true
	w.names = append(w.names, name)
}

func (w *variableWalker) walk(e celast.Expr, bound map[string]bool) {
	if e == nil {
		return
	}
	switch e.Kind() {
	case celast.IdentKind:
		w.add(e.AsIdent(), bound)
	case celast.SelectKind:
		if name, ok := qualifiedName(e); ok {
			w.add(name, bound)
			return
		}
		w.walk(e.AsSelect().Operand(), bound)
	case celast.CallKind:
		call := e.AsCall()
		if call.IsMemberFunction() {
			w.walk(call.Target(), bound)
		}
		for _, arg := range call.Args() {
			w.walk(arg, bound)
		}
	case celast.ListKind:
		for _, el := range e.AsList().Elements() {
			w.walk(el, bound)
		}
	case celast.MapKind:
		for _, entry := range e.AsMap().Entries() {
			me := entry.AsMapEntry()
			w.walk(me.Key(), bound)
			w.walk(me.Value(), bound)
		}
	case celast.StructKind:
		for _, field := range e.AsStruct().Fields() {
			w.walk(field.AsStructField().Value(), bound)
		}
	case celast.ComprehensionKind:
		comp := e.AsComprehension()
		w.walk(comp.IterRange(), bound)
		inner := make(map[string]bool, len(bound)+2)
		for k := range bound {
			inner[k] = true
		}
		inner[comp.IterVar()] = true
		inner[comp.AccuVar()] = true
		w.walk(comp.AccuInit(), inner)
		w.walk(comp.LoopCondition(), inner)
		w.walk(comp.LoopStep(), inner)
		w.walk(comp.Result(), inner)
	}
}

// qualifiedName renders a select chain rooted at an identifier as a dotted
// name. Presence tests (has(a.b)) are included.
func qualifiedName(e celast.Expr) (string, bool) {
	var parts []string
	for e.Kind() == celast.SelectKind {
		sel := e.AsSelect()
		parts = append(parts, sel.FieldName())
		e = sel.Operand()
	}
	if e.Kind() != celast.IdentKind {
		return "", false
	}
	parts = append(parts, e.AsIdent())
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "."), true
}
