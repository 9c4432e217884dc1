package service

import "sync"

// EventType names the messages pushed to the UI.
type EventType string

const (
	EventTick      EventType = "tick"
	EventQuestion  EventType = "question"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
)

// Event is one message for UI subscribers.
type Event struct {
	Type EventType   `json:"event"`
	Data interface{} `json:"data,omitempty"`
}

// Hub fans events out to subscribers. Slow subscribers miss events instead
// of blocking the timer.
type Hub struct {
	mu   sync.Mutex
	subs map[uint64]chan Event
	next uint64
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan Event)}
}

// Subscribe returns a channel of events and a function that unsubscribes and
// closes it.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber with room in its buffer.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
