package bridge

import (
	"testing"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()

	h.Broadcast(NewCurrentPrice(55))

	for _, sub := range []*Subscriber{a, b} {
		select {
		case m := <-sub.C:
			if p, ok := m.(CurrentPriceMsg); !ok || p.Price != 55 {
				t.Errorf("got %+v, want price 55", m)
			}
		default:
			t.Error("subscriber did not receive the broadcast")
		}
	}
}

// TestHubSlowSubscriber fills one subscriber's queue and checks broadcasting never blocks and other subscribers
// keep receiving.
func TestHubSlowSubscriber(t *testing.T) {
	h := NewHub()
	slow := h.Subscribe()
	fast := h.Subscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		h.Broadcast(NewCurrentBlockHeight(uint64(i)))
	}

	if got := len(slow.C); got != subscriberBuffer {
		t.Errorf("slow subscriber holds %d messages, want full buffer of %d", got, subscriberBuffer)
	}
	// drain fast to prove it got everything up to its buffer too
	if got := len(fast.C); got != subscriberBuffer {
		t.Errorf("fast subscriber holds %d messages, want %d", got, subscriberBuffer)
	}
}

func TestSubscriberClose(t *testing.T) {
	h := NewHub()
	s := h.Subscribe()
	s.Close()
	s.Close() // idempotent

	if _, ok := <-s.C; ok {
		t.Error("channel still open after Close")
	}

	// a broadcast after close must not panic
	h.Broadcast(NewGameEnded())
}
