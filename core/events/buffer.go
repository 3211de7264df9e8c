package events

import (
	"sync"
)

// Buffer holds events until the surrounding operation commits. Nothing is
// forwarded until Flush is called.
type Buffer struct {
	pending []Event
}

func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.pending = append(b.pending, evt)
}

// Flush forwards the buffered events in emission order and empties the buffer.
func (b *Buffer) Flush(dst Emitter) int {
	n := len(b.pending)
	if dst != nil {
		for _, evt := range b.pending {
			dst.Emit(evt)
		}
	}
	b.pending = nil
	return n
}

// Reset drops buffered events.
func (b *Buffer) Reset() { b.pending = nil }

// Pending returns a copy of the buffered events.
func (b *Buffer) Pending() []Event {
	return append([]Event(nil), b.pending...)
}

// Multi fans an event out to every emitter in order.
type Multi []Emitter

func (m Multi) Emit(evt Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(evt)
		}
	}
}

// Feed is an in-process publish/subscribe hub. Slow subscribers drop events
// rather than block the publisher.
type Feed struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan Event)}
}

// Emit implements Emitter.
func (f *Feed) Emit(evt Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel function must be called to release the subscription.
func (f *Feed) Subscribe(size int) (<-chan Event, func()) {
	if size <= 0 {
		size = 16
	}
	ch := make(chan Event, size)
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports the number of active subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
