package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/multierr"

	"github.com/KilimcininKorOglu/vdx/internal/logging"
)

// Pool errors.
var (
	// ErrPoolStopped is returned when submitting to a stopped pool.
	ErrPoolStopped = errors.New("engine: worker pool stopped")
	// ErrPoolNotStarted is returned when submitting before Start.
	ErrPoolNotStarted = errors.New("engine: worker pool not started")
)

// Task is a unit of background work. ctx is cancelled when the pool is
// stopped without draining.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed number of workers. The queue is unbounded so
// that a task may submit follow-up tasks without blocking.
type Pool struct {
	workers int
	log     logging.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	started bool
	stopped bool
	running int
	panics  error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool of n workers. n below 1 means 1.
func NewPool(n int, log logging.Logger) *Pool {
	if n < 1 {
		n = 1
	}
	if log == nil {
		log = logging.NewNop()
	}
	p := &Pool{workers: n, log: log}
	p.cond = sync.NewCond(&p.mu)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// Start launches the workers. Starting twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
}

// Submit queues task.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.stopped:
		return ErrPoolStopped
	case !p.started:
		return ErrPoolNotStarted
	}
	p.queue = append(p.queue, task)
	p.cond.Signal()
	return nil
}

// Stop refuses new tasks and waits for queued and running tasks to
// finish. When ctx ends first, the context passed to tasks is cancelled
// and the remaining tasks run against it. Stop returns the panics
// recovered from tasks.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		p.cancel()
		<-done
		err = ctx.Err()
	}
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return multierr.Append(err, p.panics)
}

// Pending returns the number of queued and running tasks.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) + p.running
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.running++
		p.mu.Unlock()

		p.run(task)

		p.mu.Lock()
		p.running--
		p.mu.Unlock()
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("task panicked", "panic", r, "stack", string(debug.Stack()))
			p.mu.Lock()
			p.panics = multierr.Append(p.panics, fmt.Errorf("engine: task panic: %v", r))
			p.mu.Unlock()
		}
	}()
	task(p.ctx)
}
