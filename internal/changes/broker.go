// Package changes provides the broker fanning change events out to subscribers.
package changes

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Buffer sizes.
const (
	DefaultBufferSize = 256
	ReplayBufferSize  = 4096
)

// Broker errors.
var (
	ErrTokenTooOld  = errors.New("changes: resume token too old")
	ErrBrokerClosed = errors.New("changes: broker is closed")
)

// Publisher is the side of a broker the engine writes to.
type Publisher interface {
	Publish(event ChangeEvent)
}

// Broker fans change events out to subscribers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[SubscriberID]*Subscriber
	closed      bool

	nextID     atomic.Uint64
	nextToken  atomic.Uint64
	replay     *ringBuffer
	bufferSize int
}

var _ Publisher = (*Broker)(nil)

// NewBroker creates a broker keeping replayCapacity events for resumption
// and giving each subscriber bufferSize slots. Non-positive sizes use the
// defaults.
func NewBroker(replayCapacity, bufferSize int) *Broker {
	return &Broker{
		subscribers: make(map[SubscriberID]*Subscriber),
		replay:      newRingBuffer(replayCapacity),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a subscriber for events matching filter.
func (b *Broker) Subscribe(filter WatchFilter) (*Subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	sub := newSubscriber(SubscriberID(b.nextID.Add(1)), filter, b.bufferSize)
	b.subscribers[sub.ID] = sub
	return sub, nil
}

// SubscribeFrom registers a subscriber and first replays the held events
// published after token. ErrTokenTooOld means events were lost.
func (b *Broker) SubscribeFrom(filter WatchFilter, token uint64) (*Subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	events, ok := b.replay.since(token)
	if !ok {
		return nil, ErrTokenTooOld
	}
	sub := newSubscriber(SubscriberID(b.nextID.Add(1)), filter, b.bufferSize)
	for i := range events {
		if filter.Matches(&events[i]) {
			sub.send(events[i].Clone())
		}
	}
	b.subscribers[sub.ID] = sub
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id SubscriberID) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	delete(b.subscribers, id)
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Publish stamps the event and delivers it to matching subscribers.
// Publishing on a closed broker is a no-op.
func (b *Broker) Publish(event ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	event.Token = b.nextToken.Add(1)
	event.Timestamp = time.Now()
	b.replay.push(event)

	for _, sub := range b.subscribers {
		if sub.Filter.Matches(&event) {
			sub.send(event.Clone())
		}
	}
}

// CurrentToken returns the last assigned token.
func (b *Broker) CurrentToken() uint64 {
	return b.nextToken.Load()
}

// Stats reports broker state.
func (b *Broker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		Subscribers:    len(b.subscribers),
		CurrentToken:   b.nextToken.Load(),
		ReplayLen:      b.replay.len(),
		MinReplayToken: b.replay.minToken(),
	}
}

// Close closes every subscriber. Further publishes are dropped.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		sub.close()
		delete(b.subscribers, id)
	}
}

// Stats contains broker statistics.
type Stats struct {
	Subscribers    int
	CurrentToken   uint64
	ReplayLen      int
	MinReplayToken uint64
}
