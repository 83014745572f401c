package changes

import (
	"sync"
	"sync/atomic"
	"time"
)

// SubscriberID identifies a subscription within a broker.
type SubscriberID uint64

// Subscriber receives matching events on C. Events that do not fit in the
// buffer are dropped and counted.
type Subscriber struct {
	ID      SubscriberID
	Filter  WatchFilter
	C       <-chan ChangeEvent
	Created time.Time

	ch      chan ChangeEvent
	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

func newSubscriber(id SubscriberID, filter WatchFilter, bufferSize int) *Subscriber {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	ch := make(chan ChangeEvent, bufferSize)
	return &Subscriber{ID: id, Filter: filter, C: ch, ch: ch, Created: time.Now()}
}

// send delivers event without blocking and reports whether it was queued.
func (s *Subscriber) send(event ChangeEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- event:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Dropped returns the number of events lost to a full buffer.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}
