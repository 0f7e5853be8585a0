package event

import (
	"log/slog"
	"sync"
)

const defaultSubscriberBuffer = 64

// Bus fans events out to subscribers. Channel subscribers that fall behind
// lose events rather than blocking the controller.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber
}

type subscriber struct {
	deskID string
	sink   Sink
	ch     chan Event
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe returns a channel receiving events for deskID ("" for all desks)
// and a function that closes it.
func (b *Bus) Subscribe(deskID string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)
	id := b.add(&subscriber{deskID: deskID, ch: ch})
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.remove(id)
			close(ch)
		})
	}
}

// Attach registers a synchronous sink for deskID ("" for all desks).
func (b *Bus) Attach(deskID string, sink Sink) func() {
	id := b.add(&subscriber{deskID: deskID, sink: sink})
	return func() { b.remove(id) }
}

func (b *Bus) add(s *subscriber) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[b.nextID] = s
	return b.nextID
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.deskID != "" && s.deskID != e.DeskID {
			continue
		}
		if s.sink != nil {
			s.sink.Emit(e)
			continue
		}
		select {
		case s.ch <- e:
		default:
			slog.Warn("event subscriber is full; dropping event", "desk_id", e.DeskID, "kind", e.Kind)
		}
	}
}
