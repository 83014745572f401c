package graph

import (
	"strings"
	"sync"

	"github.com/KilimcininKorOglu/vdx/internal/interpreter"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
)

// Analysis is the cached result of analyzing one entry mapping.
type Analysis struct {
	Graph   *Graph
	Primary *mapping.SourceMapping
	// Connecting lists relationships linking the entry to an ancestor
	// entry's source, oriented with the local source on the LHS.
	Connecting []mapping.Relationship
	// Dropped lists relationships naming sources that resolve nowhere.
	Dropped []mapping.Relationship
}

// Analyzer computes and caches the graph and primary source of entry
// mappings. It is safe for concurrent use.
type Analyzer struct {
	interp interpreter.Interpreter

	mu       sync.RWMutex
	analyses map[*mapping.EntryMapping]*Analysis
}

// NewAnalyzer creates an analyzer. interp resolves script variables when
// choosing primary sources and may be nil when no script is used there.
func NewAnalyzer(interp interpreter.Interpreter) *Analyzer {
	return &Analyzer{
		interp:   interp,
		analyses: make(map[*mapping.EntryMapping]*Analysis),
	}
}

// AnalyzeAll analyzes every mapping of the registry, replacing previous
// results.
func (a *Analyzer) AnalyzeAll(reg *mapping.Registry) {
	a.mu.Lock()
	a.analyses = make(map[*mapping.EntryMapping]*Analysis)
	a.mu.Unlock()
	for _, root := range reg.Roots() {
		a.Analyze(root)
	}
}

// Analyze computes the analysis of em and of its descendants.
func (a *Analyzer) Analyze(em *mapping.EntryMapping) {
	analysis := a.compute(em)
	a.mu.Lock()
	a.analyses[em] = analysis
	a.mu.Unlock()
	for _, child := range em.Children() {
		a.Analyze(child)
	}
}

// Get returns the analysis of em, computing it on first use.
func (a *Analyzer) Get(em *mapping.EntryMapping) *Analysis {
	a.mu.RLock()
	analysis, ok := a.analyses[em]
	a.mu.RUnlock()
	if ok {
		return analysis
	}
	analysis = a.compute(em)
	a.mu.Lock()
	a.analyses[em] = analysis
	a.mu.Unlock()
	return analysis
}

// Graph returns the join graph of em.
func (a *Analyzer) Graph(em *mapping.EntryMapping) *Graph {
	return a.Get(em).Graph
}

// PrimarySource returns the primary source of em, nil for static mappings.
func (a *Analyzer) PrimarySource(em *mapping.EntryMapping) *mapping.SourceMapping {
	return a.Get(em).Primary
}

func (a *Analyzer) compute(em *mapping.EntryMapping) *Analysis {
	analysis := &Analysis{
		Graph:   New(em),
		Primary: a.primarySource(em),
	}
	for _, rel := range em.Relationships {
		local, remote := 0, 0
		unresolved := false
		for _, o := range rel.Operands() {
			if o.IsLiteral {
				continue
			}
			switch {
			case em.Defines(o.Source):
				local++
			case ancestorDefines(em, o.Source):
				remote++
			default:
				unresolved = true
			}
		}
		switch {
		case unresolved:
			analysis.Dropped = append(analysis.Dropped, rel)
		case local == 1 && remote == 1:
			for _, o := range rel.Operands() {
				if !o.IsLiteral && em.Defines(o.Source) {
					oriented, _ := rel.Oriented(o.Source)
					analysis.Connecting = append(analysis.Connecting, oriented)
					break
				}
			}
		}
	}
	return analysis
}

func ancestorDefines(em *mapping.EntryMapping, alias string) bool {
	_, sm := em.AncestorSource(alias)
	return sm != nil
}

// primarySource picks the source the RDN attributes are computed from: the
// only source they reference, else the first declared source they
// reference, else the first declared source.
func (a *Analyzer) primarySource(em *mapping.EntryMapping) *mapping.SourceMapping {
	if len(em.Sources) == 0 {
		return nil
	}

	referenced := make(map[string]bool)
	for _, am := range em.RDNAttributes() {
		for _, name := range a.variables(am.Expression) {
			source, _, ok := strings.Cut(name, ".")
			if ok && em.Defines(source) {
				referenced[source] = true
			}
		}
	}

	if len(referenced) == 1 {
		for alias := range referenced {
			return em.Source(alias)
		}
	}
	for _, sm := range em.Sources {
		if referenced[sm.Alias] {
			return sm
		}
	}
	return em.Sources[0]
}

func (a *Analyzer) variables(expr mapping.Expression) []string {
	var names []string
	if expr.IsForeach() {
		names = append(names, expr.Foreach)
	}
	switch {
	case expr.IsScript():
		if a.interp == nil {
			return names
		}
		vars, err := a.interp.ParseVariables(expr.Script)
		if err != nil {
			return names
		}
		names = append(names, vars...)
	case expr.Variable != "":
		names = append(names, expr.Variable)
	}
	return names
}
