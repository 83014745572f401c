package engine

import (
	"context"
	"sync"

	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/directory"
	"github.com/KilimcininKorOglu/vdx/internal/result"
)

// Results streams the entries of a search. It is fulfilled by background
// tasks; Next blocks until an entry is available or production ends.
// Closing the stream early stops production at the next batch boundary.
//
//	res, err := eng.Search(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer res.Close()
//	for res.Next() {
//	    fmt.Println(res.Entry().DN)
//	}
//	return res.Err()
type Results struct {
	ch   chan *directory.Entry
	done chan struct{}

	closeOnce  sync.Once
	finishOnce sync.Once

	mu        sync.Mutex
	err       *result.Error
	seen      map[string]bool
	sent      int
	sizeLimit int
	halted    bool

	cur *directory.Entry
}

func newResults(sizeLimit, buffer int) *Results {
	return &Results{
		ch:        make(chan *directory.Entry, buffer),
		done:      make(chan struct{}),
		seen:      make(map[string]bool),
		sizeLimit: sizeLimit,
	}
}

// Next advances to the next entry and reports whether there is one.
func (r *Results) Next() bool {
	e, ok := <-r.ch
	r.cur = e
	return ok
}

// Entry returns the current entry.
func (r *Results) Entry() *directory.Entry {
	return r.cur
}

// Err returns the final status of the search once Next returned false.
// It is nil on success and when the consumer closed the stream early.
func (r *Results) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		return nil
	}
	return r.err
}

// Code returns the final status code.
func (r *Results) Code() result.Code {
	return result.CodeOf(r.Err())
}

// Close stops production and discards undelivered entries.
func (r *Results) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	for range r.ch {
	}
	return nil
}

// All drains the stream into a slice and closes it.
func (r *Results) All() ([]*directory.Entry, error) {
	var out []*directory.Entry
	for r.Next() {
		out = append(out, r.Entry())
	}
	err := r.Err()
	r.Close()
	return out, err
}

// stopped reports whether producers should stop: the consumer closed the
// stream, a failure was recorded or the size limit was exceeded.
func (r *Results) stopped() bool {
	select {
	case <-r.done:
		return true
	default:
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.halted
}

// emit delivers e unless another entry with the same DN was delivered.
// It returns false when production must stop.
func (r *Results) emit(ctx context.Context, e *directory.Entry) bool {
	key := data.NormalizeDN(e.DN)
	r.mu.Lock()
	if r.halted {
		r.mu.Unlock()
		return false
	}
	if r.seen[key] {
		r.mu.Unlock()
		return true
	}
	if r.sizeLimit > 0 && r.sent >= r.sizeLimit {
		r.halted = true
		if r.err == nil {
			r.err = result.Errorf(result.SizeLimitExceeded, "search", "", "more than %d entries", r.sizeLimit)
		}
		r.mu.Unlock()
		return false
	}
	r.seen[key] = true
	r.sent++
	r.mu.Unlock()

	select {
	case r.ch <- e:
		return true
	case <-r.done:
		return false
	case <-ctx.Done():
		r.fail(ctx.Err())
		return false
	}
}

// fail records the first failure and halts production.
func (r *Results) fail(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.halted = true
	if r.err == nil {
		r.err = result.From("search", "", err)
	}
}

// finish ends the stream. No emit may follow.
func (r *Results) finish() {
	r.finishOnce.Do(func() { close(r.ch) })
}
