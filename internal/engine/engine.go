// Package engine provides the virtual directory engine and its lifecycle.
package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/KilimcininKorOglu/vdx/internal/cache"
	"github.com/KilimcininKorOglu/vdx/internal/changes"
	"github.com/KilimcininKorOglu/vdx/internal/connector"
	"github.com/KilimcininKorOglu/vdx/internal/filter"
	"github.com/KilimcininKorOglu/vdx/internal/graph"
	"github.com/KilimcininKorOglu/vdx/internal/interpreter"
	"github.com/KilimcininKorOglu/vdx/internal/lock"
	"github.com/KilimcininKorOglu/vdx/internal/logging"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
	"github.com/KilimcininKorOglu/vdx/internal/planner"
	"github.com/KilimcininKorOglu/vdx/internal/result"
	"github.com/KilimcininKorOglu/vdx/internal/transform"
)

// Defaults applied by New.
const (
	DefaultWorkers     = 4
	DefaultBatchSize   = 100
	DefaultLockTimeout = 5 * time.Second
)

// Engine errors.
var (
	// ErrNoRegistry is returned when no mapping registry is configured.
	ErrNoRegistry = errors.New("engine: no mapping registry")
	// ErrNoConnectors is returned when no connector set is configured.
	ErrNoConnectors = errors.New("engine: no connectors")
	// ErrNotStarted is returned by operations issued before Start.
	ErrNotStarted = errors.New("engine: not started")
)

// Options configures an Engine. Registry and Connectors are required.
type Options struct {
	Registry   *mapping.Registry
	Connectors *connector.Set

	// Interpreter evaluates script expressions. Defaults to CEL.
	Interpreter interpreter.Interpreter

	// Entries and Filters default to caches that store nothing.
	Entries cache.EntryCache
	Filters cache.FilterCache

	// Locks defaults to a manager with DefaultLockTimeout.
	Locks *lock.Manager

	// Changes receives an event after every successful write.
	Changes changes.Publisher

	Logger logging.Logger

	// Workers is the size of the search worker pool.
	Workers int
	// BatchSize is the number of primary keys loaded per backend query.
	BatchSize int

	// TracerProvider and MeterProvider default to the otel globals.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// state is the part of the engine swapped by Reload.
type state struct {
	registry  *mapping.Registry
	analyzer  *graph.Analyzer
	search    *planner.SearchPlanner
	execution *planner.ExecutionPlanner
}

func newState(reg *mapping.Registry, interp interpreter.Interpreter) *state {
	analyzer := graph.NewAnalyzer(interp)
	analyzer.AnalyzeAll(reg)
	return &state{
		registry:  reg,
		analyzer:  analyzer,
		search:    planner.NewSearchPlanner(analyzer),
		execution: planner.NewExecutionPlanner(analyzer),
	}
}

// Engine resolves directory operations against the entry mappings of a
// registry. It owns a worker pool running search pipelines; call Start
// before issuing operations and Close when done.
type Engine struct {
	state atomic.Pointer[state]

	conns     *connector.Set
	interp    interpreter.Interpreter
	transform *transform.Engine
	entries   cache.EntryCache
	filters   cache.FilterCache
	locks     *lock.Manager
	changes   changes.Publisher
	pool      *Pool
	log       logging.Logger
	tel       *telemetry
	batchSize int
	started   atomic.Bool
}

// New creates an engine and analyzes every entry mapping of the registry.
func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, ErrNoRegistry
	}
	if opts.Connectors == nil {
		return nil, ErrNoConnectors
	}
	if opts.Interpreter == nil {
		cel, err := interpreter.NewCEL()
		if err != nil {
			return nil, err
		}
		opts.Interpreter = cel
	}
	if opts.Entries == nil {
		opts.Entries = cache.Nop{}
	}
	if opts.Filters == nil {
		opts.Filters = cache.NopFilter{}
	}
	if opts.Locks == nil {
		opts.Locks = lock.NewManager(DefaultLockTimeout)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	tel, err := newTelemetry(opts.TracerProvider, opts.MeterProvider)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		conns:     opts.Connectors,
		interp:    opts.Interpreter,
		transform: transform.New(opts.Interpreter),
		entries:   opts.Entries,
		filters:   opts.Filters,
		locks:     opts.Locks,
		changes:   opts.Changes,
		pool:      NewPool(opts.Workers, opts.Logger),
		log:       opts.Logger,
		tel:       tel,
		batchSize: opts.BatchSize,
	}
	e.state.Store(newState(opts.Registry, opts.Interpreter))
	return e, nil
}

// Start launches the worker pool.
func (e *Engine) Start() {
	e.pool.Start()
	e.started.Store(true)
	e.log.Info("engine started", "mappings", len(e.Registry().Entries()))
}

// Close stops the worker pool, waiting for running pipelines until ctx
// ends, and closes the connectors.
func (e *Engine) Close(ctx context.Context) error {
	e.started.Store(false)
	err := e.pool.Stop(ctx)
	err = multierr.Append(err, e.conns.Close())
	e.log.Info("engine stopped")
	return err
}

// Registry returns the active registry.
func (e *Engine) Registry() *mapping.Registry {
	return e.state.Load().registry
}

// Analysis returns the join graph and primary source of em.
func (e *Engine) Analysis(em *mapping.EntryMapping) *graph.Analysis {
	return e.state.Load().analyzer.Get(em)
}

// Plan returns the search plan of em for an entry-level filter.
func (e *Engine) Plan(em *mapping.EntryMapping, f *filter.Filter) *planner.SearchPlan {
	return e.state.Load().search.Plan(em, f)
}

// Reload swaps the registry, re-runs the analyzer and purges both caches.
// Operations already running keep the registry they started with.
func (e *Engine) Reload(ctx context.Context, reg *mapping.Registry) error {
	ctx, op := e.begin(ctx, "reload", "")
	if reg == nil {
		return op.end(ctx, result.New(result.UnwillingToPerform, "reload", "", ErrNoRegistry))
	}
	e.state.Store(newState(reg, e.interp))
	err := multierr.Combine(e.entries.Purge(ctx), e.filters.Purge(ctx))
	if err != nil {
		op.log.Warn("cache purge failed after reload", "error", err)
	}
	op.log.Info("mappings reloaded", "mappings", len(reg.Entries()))
	return op.end(ctx, nil)
}

// acquire takes locks and maps a timeout to the retryable Busy code.
func (e *Engine) acquire(ctx context.Context, opName, dn string, reqs []lock.Request) (func(), error) {
	release, err := e.locks.AcquireAll(ctx, reqs)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return nil, result.New(result.Busy, opName, dn, err)
		}
		return nil, err
	}
	return release, nil
}

// readLocks covers the physical sources of em and of its ancestors, which
// is every source a resolution of em may query.
func readLocks(em *mapping.EntryMapping) []lock.Request {
	var reqs []lock.Request
	for _, level := range append([]*mapping.EntryMapping{em}, em.Ancestors()...) {
		for _, sm := range level.Sources {
			reqs = append(reqs, lock.Request{Key: lock.SourceKey(sm.Source), Mode: lock.Read})
		}
	}
	return reqs
}

// writeLocks returns the locks held by a write on em addressing dns: the
// sources of em and the entry keys exclusively, ancestor sources shared.
func writeLocks(em *mapping.EntryMapping, dns ...string) []lock.Request {
	reqs := readLocks(em)
	for _, sm := range em.Sources {
		reqs = append(reqs, lock.Request{Key: lock.SourceKey(sm.Source), Mode: lock.Write})
	}
	for _, dn := range dns {
		reqs = append(reqs, lock.Request{Key: lock.EntryKey(dn), Mode: lock.Write})
	}
	return reqs
}

// invalidate drops cached data made stale by a write of em against the
// given physical sources. Entries of other mappings reading the same
// sources, and descendants of renamed or removed entries, are not
// addressable by DN, so the entry cache is purged in those cases.
func (e *Engine) invalidate(ctx context.Context, st *state, em *mapping.EntryMapping, sources []string, dns ...string) {
	shared := em.HasChildren()
	var err error
	seen := make(map[string]bool)
	for _, src := range sources {
		for _, m := range st.registry.UsingSource(src) {
			if m != em {
				shared = true
			}
			if !seen[m.ID] {
				seen[m.ID] = true
				err = multierr.Append(err, e.filters.Invalidate(ctx, m.ID))
			}
		}
	}
	if shared {
		err = multierr.Append(err, e.entries.Purge(ctx))
	} else {
		for _, dn := range dns {
			err = multierr.Append(err, e.entries.Remove(ctx, dn))
		}
	}
	if err != nil {
		e.log.Warn("cache invalidation failed", "mapping", em.ID, "error", err)
	}
}

func (e *Engine) publish(event changes.ChangeEvent) {
	if e.changes != nil {
		e.changes.Publish(event)
	}
}

// ready rejects operations issued before Start or after Close.
func (e *Engine) ready() error {
	if !e.started.Load() {
		return result.New(result.Unavailable, "", "", ErrNotStarted)
	}
	return nil
}
