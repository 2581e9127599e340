package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

// recordingStore is an in-memory EventStore for bus tests.
type recordingStore struct {
	mu     sync.Mutex
	events []*HealingEvent
}

func (s *recordingStore) StoreEvent(ctx context.Context, event *HealingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingStore) GetEvents(ctx context.Context, filter EventFilter) ([]*HealingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*HealingEvent(nil), s.events...), nil
}

func (s *recordingStore) GetEventsByIncident(ctx context.Context, incidentID string) ([]*HealingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*HealingEvent
	for _, e := range s.events {
		if e.IncidentID == incidentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *recordingStore) GetRecentEvents(ctx context.Context, limit int) ([]*HealingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.events) {
		limit = len(s.events)
	}
	return append([]*HealingEvent(nil), s.events[len(s.events)-limit:]...), nil
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	published := NewSimpleEvent(EventTypeHealingStarted, "inc-1", "sess-1", SeverityInfo, "started")
	bus.Publish(published)

	select {
	case got := <-ch:
		if got.ID != published.ID {
			t.Errorf("received event ID = %s, want %s", got.ID, published.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusSlowSubscriberDropsEvents(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	// Never drain the channel; overflow past the buffer must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer+10; i++ {
			bus.Publish(NewSimpleEvent(EventTypeHealingComplete, "inc", "sess", SeverityInfo, "done"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	if got := len(ch); got != subscriberBuffer {
		t.Errorf("buffered events = %d, want %d", got, subscriberBuffer)
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}

	// Publishing after cancel must not panic.
	bus.Publish(NewSimpleEvent(EventTypeHealingStarted, "inc", "sess", SeverityInfo, "started"))
}

func TestBusStoresEvents(t *testing.T) {
	store := &recordingStore{}
	bus := NewBus(store)

	bus.Publish(NewSimpleEvent(EventTypeHealingStarted, "inc-1", "sess-1", SeverityInfo, "started"))
	bus.Publish(NewSimpleEvent(EventTypeHealingComplete, "inc-1", "sess-1", SeverityInfo, "done"))

	// Close waits for in-flight store writes.
	bus.Close()

	if got := store.count(); got != 2 {
		t.Errorf("stored events = %d, want 2", got)
	}
}

func TestBusCloseIsIdempotent(t *testing.T) {
	bus := NewBus(nil)
	ch, _ := bus.Subscribe()

	bus.Close()
	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed after bus close")
	}

	// Subscribing after close yields a closed channel.
	ch2, cancel := bus.Subscribe()
	defer cancel()
	if _, ok := <-ch2; ok {
		t.Error("subscribe after close should return a closed channel")
	}
}
