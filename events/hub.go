// Package events distributes modem events to live subscribers and message
// brokers.
package events

import (
	"encoding/json"
	"sync"

	"i4.energy/across/celldial/modem"
)

// Hub fans encoded events out to subscribers such as websocket clients.
type Hub struct {
	mu   sync.RWMutex
	pool map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{pool: make(map[chan []byte]struct{})}
}

// Broadcast delivers msg to every subscriber without blocking. A subscriber
// whose buffer is full misses the message.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.pool {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribe registers a new subscriber and returns its channel together with
// the function that cancels the subscription and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan []byte, func()) {
	if buffer <= 0 {
		buffer = 100
	}
	ch := make(chan []byte, buffer)

	h.mu.Lock()
	h.pool[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.pool[ch]; ok {
			delete(h.pool, ch)
			close(ch)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pool)
}

// Observe implements modem.Observer by broadcasting the JSON encoded event.
func (h *Hub) Observe(e modem.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	h.Broadcast(data)
}
