package changes

import "sync"

// ringBuffer keeps the most recent events for resumption.
type ringBuffer struct {
	mu     sync.RWMutex
	events []ChangeEvent
	head   int
	size   int
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = ReplayBufferSize
	}
	return &ringBuffer{events: make([]ChangeEvent, capacity)}
}

// push appends an event, overwriting the oldest one when full.
func (rb *ringBuffer) push(event ChangeEvent) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	capacity := len(rb.events)
	tail := (rb.head + rb.size) % capacity
	rb.events[tail] = event
	if rb.size < capacity {
		rb.size++
	} else {
		rb.head = (rb.head + 1) % capacity
	}
}

// since returns the events with a token above token. ok is false when
// events after token have already been overwritten.
func (rb *ringBuffer) since(token uint64) (events []ChangeEvent, ok bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.size == 0 {
		return nil, true
	}
	if oldest := rb.events[rb.head].Token; token > 0 && token+1 < oldest {
		return nil, false
	}
	for i := 0; i < rb.size; i++ {
		e := rb.events[(rb.head+i)%len(rb.events)]
		if e.Token > token {
			events = append(events, e)
		}
	}
	return events, true
}

func (rb *ringBuffer) len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// minToken returns the oldest held token, 0 when empty.
func (rb *ringBuffer) minToken() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.size == 0 {
		return 0
	}
	return rb.events[rb.head].Token
}
