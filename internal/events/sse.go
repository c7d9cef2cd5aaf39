package events

import (
	"sync"
	"sync/atomic"

	"github.com/kelindar/event"
)

// SubscribeToChannel bridges kelindar/event callback-based subscriptions to channels
// This is needed for SSE integration where Huma expects a channel-based select loop.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full (non-blocking)
		}
	})
}

// Tap is a bounded per-subscriber channel that counts what it had to drop,
// so a slow viewer can be told how many events it missed.
type Tap struct {
	ch      chan any
	dropped atomic.Uint64

	mu     sync.Mutex
	unsubs []func()
}

// NewTap returns a tap buffering up to size events.
func NewTap(size int) *Tap {
	return &Tap{ch: make(chan any, size)}
}

// Listen attaches tap to every event of type T on bus.
func Listen[T Event](bus *Bus, tap *Tap) {
	unsub := event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case tap.ch <- e:
		default:
			tap.dropped.Add(1)
		}
	})

	tap.mu.Lock()
	tap.unsubs = append(tap.unsubs, unsub)
	tap.mu.Unlock()
}

// C returns the receive side of the tap.
func (t *Tap) C() <-chan any {
	return t.ch
}

// TakeDropped returns the number of events dropped since the last call.
func (t *Tap) TakeDropped() uint64 {
	return t.dropped.Swap(0)
}

// Close detaches the tap from the bus.
func (t *Tap) Close() {
	t.mu.Lock()
	unsubs := t.unsubs
	t.unsubs = nil
	t.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}
