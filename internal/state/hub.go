// Package state publishes change events so consumers can re-render from the
// core's state whenever one of its slices is replaced.
package state

import (
	"sync"
	"time"
)

// Topic names the slice of state that changed
type Topic string

const (
	TopicSession Topic = "session"
	TopicCart    Topic = "cart"
	TopicCatalog Topic = "catalog"
	TopicFilter  Topic = "filter"
	TopicNotice  Topic = "notice"
)

// Change is delivered to subscribers after a slice was replaced
type Change struct {
	Topic   Topic     `json:"topic"`
	Version uint64    `json:"version"`
	At      time.Time `json:"at"`
}

// Publisher is implemented by anything that accepts change events
type Publisher interface {
	Publish(topic Topic)
}

// Discard is a Publisher that drops every event
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Topic) {}

// Hub fans change events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event, and should re-read the
// whole state on the next one it receives.
type Hub struct {
	mu      sync.RWMutex
	version uint64
	nextID  int
	subs    map[int]chan Change
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Change)}
}

// Publish bumps the state version and notifies subscribers
func (h *Hub) Publish(topic Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.version++
	c := Change{Topic: topic, Version: h.version, At: time.Now()}
	for _, ch := range h.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// Version returns the number of changes published so far
func (h *Hub) Version() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
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
