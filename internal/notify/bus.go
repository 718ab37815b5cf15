package notify

import (
	"sync"

	"github.com/datallboy/gotube/internal/domain"
)

const defaultBuffer = 64

// Bus fans job events out to in-process subscribers. Notify never blocks:
// a subscriber that falls behind loses progress events, and one whose buffer
// is still full when a status, done or error event arrives is evicted and its
// channel closed. Consumers resubscribe and reload job state when that happens.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan domain.Event
	nextID int
	buffer int
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{
		subs:   make(map[int]chan domain.Event),
		buffer: buffer,
	}
}

// Subscribe returns a channel of events and a function that closes it.
func (b *Bus) Subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, b.buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		// Already gone if it was evicted
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
}

func (b *Bus) Notify(ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			if ev.Kind == domain.EventProgress {
				// Slow subscriber, the next progress event supersedes this one
				continue
			}
			delete(b.subs, id)
			close(ch)
		}
	}
}

// Subscribers reports the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Multi forwards each event to every notifier in order.
type Multi []domain.Notifier

func (m Multi) Notify(ev domain.Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ev)
		}
	}
}
