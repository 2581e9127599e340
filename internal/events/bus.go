package events

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls more than this far behind starts losing events.
const subscriberBuffer = 64

// storeTimeout bounds how long a best-effort event store write may take.
const storeTimeout = 5 * time.Second

// Bus fans healing events out to subscribers and optionally persists
// them to an EventStore. Publishing is always best-effort and never
// blocks the healing pipeline: slow subscribers drop events, and store
// writes happen asynchronously.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan *HealingEvent
	nextID int
	store  EventStore
	closed bool
	wg     sync.WaitGroup
}

// NewBus creates a new event bus. The store may be nil, in which case
// events are only fanned out to live subscribers.
func NewBus(store EventStore) *Bus {
	return &Bus{
		subs:  make(map[int]chan *HealingEvent),
		store: store,
	}
}

// Publish delivers the event to all subscribers and the store.
// A full subscriber channel drops the event with a warning. Store
// failures are logged but never surfaced to the caller.
func (b *Bus) Publish(event *HealingEvent) {
	if event == nil {
		return
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			fmt.Fprintf(os.Stderr, "warning: dropping %s event for slow subscriber\n", event.Type)
		}
	}
	b.mu.RUnlock()

	if b.store != nil {
		// Store event asynchronously to avoid blocking the publisher
		b.wg.Add(1)
		go func(evt *HealingEvent) {
			defer b.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			if err := b.store.StoreEvent(ctx, evt); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to store %s event: %v\n", evt.Type, err)
			}
		}(event)
	}
}

// Subscribe registers a new subscriber and returns its channel along
// with a cancel function. The channel is closed on cancel or bus close.
func (b *Bus) Subscribe() (<-chan *HealingEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan *HealingEvent, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close shuts down the bus, closes all subscriber channels, and waits
// for in-flight store writes to finish.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()

	b.wg.Wait()
}
