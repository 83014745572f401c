// Package engine provides search execution over mapped sources.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/directory"
	"github.com/KilimcininKorOglu/vdx/internal/filter"
	"github.com/KilimcininKorOglu/vdx/internal/mapping"
	"github.com/KilimcininKorOglu/vdx/internal/planner"
	"github.com/KilimcininKorOglu/vdx/internal/result"
)

// candidate is an entry mapping whose entries may fall in a search scope.
type candidate struct {
	em *mapping.EntryMapping
	// exact is set when the base entry itself belongs to em.
	exact bool
	// below is set when the base entry is the parent of em's entries.
	below bool
}

// candidates selects the mappings able to produce entries within scope of
// base, comparing entry depths and the fixed parts of their DN patterns.
func candidates(reg *mapping.Registry, base string, scope directory.Scope) []candidate {
	bd := data.DNDepth(base)
	var out []candidate
	for _, em := range reg.Entries() {
		d := em.Depth()
		switch scope {
		case directory.ScopeBase:
			if d != bd {
				continue
			}
		case directory.ScopeOneLevel:
			if d != bd+1 {
				continue
			}
		default:
			if d < bd {
				continue
			}
		}

		switch {
		case d == bd:
			if em.Matches(base) {
				out = append(out, candidate{em: em, exact: true})
			}
		case d == bd+1:
			if parentMatches(em, base) {
				out = append(out, candidate{em: em, below: true})
			}
		default:
			if reaches(em, base, bd) {
				out = append(out, candidate{em: em})
			}
		}
	}
	return out
}

func parentMatches(em *mapping.EntryMapping, dn string) bool {
	if em.Parent() == nil {
		return data.EqualDN(dn, em.ParentDN)
	}
	return em.Parent().Matches(dn)
}

// reaches reports whether entries of em may lie below base, bd levels deep.
func reaches(em *mapping.EntryMapping, base string, bd int) bool {
	suffix := em.SuffixDN()
	if bd <= data.DNDepth(suffix) {
		return data.IsUnder(suffix, base)
	}
	for _, a := range em.Ancestors() {
		if a.Depth() == bd {
			return a.Matches(base)
		}
	}
	return false
}

// search is one running search pipeline. Discovery tasks find candidate
// keys per mapping and spawn one task per batch of keys, which loads,
// merges and delivers the entries.
type search struct {
	e   *Engine
	st  *state
	r   *resolver
	req *SearchRequest
	res *Results
	ctx context.Context
	wg  sync.WaitGroup
}

// Search starts a search and returns its result stream. Entries are
// produced in the background; the returned error only reports requests
// rejected before any work started.
func (e *Engine) Search(ctx context.Context, req *SearchRequest) (*Results, error) {
	ctx, op := e.begin(ctx, OpSearch.String(), req.BaseDN)
	if err := e.ready(); err != nil {
		return nil, op.end(ctx, err)
	}
	if data.DNDepth(req.BaseDN) < 0 {
		return nil, op.end(ctx, result.Errorf(result.InvalidDNSyntax, "", req.BaseDN, "invalid base DN"))
	}

	st := e.state.Load()
	s := &search{
		e:   e,
		st:  st,
		r:   e.newResolver(st),
		req: req,
		res: newResults(req.SizeLimit, e.batchSize),
		ctx: ctx,
	}

	cands := candidates(st.registry, req.BaseDN, req.Scope)
	op.log.Debug("search started",
		"scope", req.Scope.String(),
		"filter", req.Filter.String(),
		"candidates", len(cands),
	)
	for _, c := range cands {
		s.spawn(func(ctx context.Context) { s.discover(ctx, c) })
	}

	go func() {
		s.wg.Wait()
		s.res.finish()
		op.end(ctx, s.res.Err())
	}()
	return s.res, nil
}

// spawn runs task on the worker pool. Tasks are skipped once the stream
// stopped, which is the batch-boundary cancellation point.
func (s *search) spawn(task func(ctx context.Context)) {
	s.wg.Add(1)
	err := s.e.pool.Submit(func(poolCtx context.Context) {
		defer s.wg.Done()
		if s.res.stopped() {
			return
		}
		ctx, cancel := context.WithCancel(s.ctx)
		defer cancel()
		stop := context.AfterFunc(poolCtx, cancel)
		defer stop()

		defer func() {
			if p := recover(); p != nil {
				s.res.fail(fmt.Errorf("search task panic: %v", p))
			}
		}()
		task(ctx)
	})
	if err != nil {
		s.wg.Done()
		s.res.fail(result.New(result.Unavailable, "", "", err))
	}
}

func (s *search) discover(ctx context.Context, c candidate) {
	base := s.req.BaseDN
	release, err := s.e.acquire(ctx, "", base, readLocks(c.em))
	if err != nil {
		s.res.fail(err)
		return
	}

	var recs []*record
	switch {
	case c.exact:
		var rec *record
		if rec, err = s.r.lookup(ctx, c.em, base); rec != nil {
			recs = append(recs, rec)
		}

	case c.em.IsStatic() && c.below:
		recs, err = s.r.children(ctx, c.em, base, nil)

	case c.em.IsStatic():
		recs, err = s.r.all(ctx, c.em, nil)

	default:
		plan := s.st.search.Plan(c.em, s.req.Filter)
		var (
			sd     seeds
			pinned *parentRef
			ok     = true
		)
		if c.below {
			pinned, sd, ok, err = s.r.pin(ctx, c.em, base)
		}
		var keys []data.Row
		if err == nil && ok {
			keys, err = s.r.discover(ctx, plan, sd)
		}
		release()
		if err != nil {
			s.res.fail(err)
			return
		}
		for _, batch := range batches(keys, s.e.batchSize) {
			s.spawn(func(ctx context.Context) { s.batch(ctx, plan, batch, pinned) })
		}
		return
	}

	if err == nil {
		s.e.cacheRecords(ctx, recs)
	}
	release()
	if err != nil {
		s.res.fail(err)
		return
	}
	s.deliver(ctx, recs)
}

func (s *search) batch(ctx context.Context, plan *planner.SearchPlan, keys []data.Row, pinned *parentRef) {
	release, err := s.e.acquire(ctx, "", s.req.BaseDN, readLocks(plan.Mapping))
	if err != nil {
		s.res.fail(err)
		return
	}
	recs, err := s.r.batch(ctx, plan, keys, pinned)
	if err == nil {
		s.e.cacheRecords(ctx, recs)
	}
	release()
	if err != nil {
		s.res.fail(err)
		return
	}
	s.deliver(ctx, recs)
}

func (s *search) deliver(ctx context.Context, recs []*record) {
	for _, rec := range recs {
		if !s.req.Scope.Contains(s.req.BaseDN, rec.DN) {
			continue
		}
		if !filter.Matches(s.req.Filter, rec.Entry.Attributes) {
			continue
		}
		if !s.res.emit(ctx, rec.Entry.Select(s.req.Attributes)) {
			return
		}
	}
}

// cacheRecords stores resolved entries. Callers hold the read locks of the
// entries' sources so that no write invalidates in between.
func (e *Engine) cacheRecords(ctx context.Context, recs []*record) {
	for _, rec := range recs {
		if err := e.entries.Put(ctx, rec.Entry.Clone()); err != nil {
			e.log.Warn("entry cache write failed", "dn", rec.DN, "error", err)
			return
		}
	}
}
