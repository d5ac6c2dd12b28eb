package rpc

import (
	"sync"

	"communitymint/core/events"
	"communitymint/core/types"
)

const subscriberBuffer = 64

// Hub fans committed events out to websocket subscribers. Slow subscribers
// drop events instead of blocking the engine.
type Hub struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]*subscription
	dropped uint64
}

type subscription struct {
	types map[string]struct{}
	ch    chan *types.Event
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*subscription)}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	typed, ok := evt.(events.Typed)
	if !ok || h == nil {
		return
	}
	rendered := typed.Event()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if len(sub.types) > 0 {
			if _, want := sub.types[rendered.Type]; !want {
				continue
			}
		}
		select {
		case sub.ch <- rendered:
		default:
			h.dropped++
		}
	}
}

// Subscribe registers a listener for the given event types; no types means
// every event. The returned cancel func closes the channel.
func (h *Hub) Subscribe(eventTypes ...string) (<-chan *types.Event, func()) {
	sub := &subscription{ch: make(chan *types.Event, subscriberBuffer)}
	if len(eventTypes) > 0 {
		sub.types = make(map[string]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			sub.types[t] = struct{}{}
		}
	}
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many events were discarded for slow subscribers.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
