package bridge

import (
	"sync"
)

// subscriberBuffer bounds each session's broadcast queue. A session that falls this far behind starts missing
// intermediate updates rather than stalling the producer.
const subscriberBuffer = 64

// Hub fans server messages out to every connected session. One producer side (state changes, dispatcher outcomes),
// many consumers, lossy towards slow consumers.
type Hub struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

// Subscriber is one session's receive end of the hub.
type Subscriber struct {
	C   chan ServerMessage
	hub *Hub
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers a new consumer.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{C: make(chan ServerMessage, subscriberBuffer), hub: h}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Close removes the subscriber from the hub and closes its channel.
func (s *Subscriber) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.subs[s]; !ok {
		return
	}
	delete(s.hub.subs, s)
	close(s.C)
}

// Broadcast delivers the message to every subscriber without ever blocking: a full subscriber queue drops the
// message for that subscriber only.
func (h *Hub) Broadcast(m ServerMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.C <- m:
		default:
			droppedBroadcasts.Inc()
		}
	}
}
