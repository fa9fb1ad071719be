package planning

import (
	"sync"
)

// StreamEvent is a planner event tagged with the run that produced it.
type StreamEvent struct {
	RunID string `json:"run_id"`
	Event
}

// Broadcaster fans planner events out to live subscribers. Slow subscribers
// lose events instead of blocking the planner.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[int]chan StreamEvent
	next    int
	buffer  int
	dropped int64
}

// NewBroadcaster returns a broadcaster whose subscribers buffer up to buffer
// events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &Broadcaster{subs: make(map[int]chan StreamEvent), buffer: buffer}
}

// Subscribe registers a subscriber. The returned cancel function closes the
// channel and must be called once.
func (b *Broadcaster) Subscribe() (<-chan StreamEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan StreamEvent, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many events were discarded for full subscribers.
func (b *Broadcaster) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Publish delivers e to every subscriber without blocking.
func (b *Broadcaster) Publish(e StreamEvent) {
	b.mu.RLock()
	var dropped int64
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			dropped++
		}
	}
	b.mu.RUnlock()
	if dropped > 0 {
		b.mu.Lock()
		b.dropped += dropped
		b.mu.Unlock()
	}
}

// Observer returns an Observer that tags events with runID and publishes them.
func (b *Broadcaster) Observer(runID string) Observer {
	return ObserverFunc(func(e Event) {
		b.Publish(StreamEvent{RunID: runID, Event: e})
	})
}
