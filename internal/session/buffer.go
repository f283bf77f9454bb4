package session

import "sync"

// buffer accumulates activity events between flushes. It is bounded: at
// capacity the oldest event is dropped first. Events are removed only after
// a successful flush acknowledges them, so a failed flush re-sends nothing
// it already sent and loses nothing it has not.
type buffer struct {
	mu       sync.Mutex
	capacity int
	events   []ActivityEvent
}

func newBuffer(capacity int) *buffer {
	return &buffer{capacity: capacity}
}

func (b *buffer) add(ev ActivityEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) >= b.capacity {
		drop := len(b.events) - b.capacity + 1
		b.events = append(b.events[:0], b.events[drop:]...)
	}
	b.events = append(b.events, ev)
}

// pending snapshots the current contents for a flush attempt.
func (b *buffer) pending() []ActivityEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ActivityEvent(nil), b.events...)
}

// ack removes the first n events after a successful flush. Events added
// while the flush was in flight stay queued.
func (b *buffer) ack(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.events) {
		n = len(b.events)
	}
	b.events = append(b.events[:0], b.events[n:]...)
}

func (b *buffer) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

func (b *buffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
