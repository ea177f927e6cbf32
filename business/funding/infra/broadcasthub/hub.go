// Package broadcasthub is the default in-process app.Publisher: a
// channel-keyed fan-out of byte payloads to any number of subscribers. It is
// the transport the Broadcaster (business/funding/app/broadcast.go) writes
// to; a dashboard or WebSocket gateway would subscribe to it out-of-process,
// but that consumer lives outside this core (spec §1, §6).
package broadcasthub

import (
	"sync"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/app"
)

// subscriberBuffer bounds how many unconsumed messages a slow subscriber can
// accumulate before new publishes are dropped for it rather than blocking
// the Broadcaster's tick.
const subscriberBuffer = 64

// Hub is a minimal in-process publish/subscribe fan-out.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[int]chan []byte
	nextID      int
}

// New constructs an empty Hub.
func New() *Hub {
	return &Hub{subscribers: make(map[string]map[int]chan []byte)}
}

// Publish implements app.Publisher: it fans payload out to every current
// subscriber of channel, non-blocking.
func (h *Hub) Publish(channel string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subscribers[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
}

// SubscriberCount implements app.Publisher.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[channel])
}

// Subscribe registers a new receiver on channel and returns it plus an
// unsubscribe func the caller must invoke when done.
func (h *Hub) Subscribe(channel string) (<-chan []byte, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan []byte, subscriberBuffer)

	if h.subscribers[channel] == nil {
		h.subscribers[channel] = make(map[int]chan []byte)
	}
	h.subscribers[channel][id] = ch

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subscribers[channel], id)
		close(ch)
	}
	return ch, unsubscribe
}

var _ app.Publisher = (*Hub)(nil)
