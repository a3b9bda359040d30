package queue

import (
	"encoding/json"
	"sync"
	"time"
)

type EventType string

const (
	EventWaiting   EventType = "waiting"
	EventActive    EventType = "active"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is a job lifecycle notification. A failed attempt that will be
// retried is reported as EventWaiting with Error set; EventFailed is only
// emitted once attempts are exhausted.
type Event struct {
	Type      EventType
	JobID     string
	WorkerID  string
	Progress  int
	Result    json.RawMessage
	Error     string
	Attempt   int
	Timestamp time.Time
}

// Terminal reports whether no further events follow for this attempt cycle.
func (e Event) Terminal() bool {
	return e.Type == EventCompleted || e.Type == EventFailed
}

const subscriberBuffer = 256

type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// broadcaster fans events out to subscribers. Sends block until the
// subscriber reads or unsubscribes, so lifecycle events are never dropped.
type broadcaster struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	s := &subscriber{
		ch:   make(chan Event, subscriberBuffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[*subscriber]struct{})
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		s.once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
			close(s.done)
		})
	}
	return s.ch, cancel
}

func (b *broadcaster) publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, e := range events {
		for _, s := range subs {
			select {
			case s.ch <- e:
			case <-s.done:
			}
		}
	}
}
