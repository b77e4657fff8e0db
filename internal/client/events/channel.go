package events

import (
	"sync"

	"wirevpn/internal/vpn"
)

// Subscriber is anything that accepts a listener, e.g. vpn.Client.
type Subscriber interface {
	Subscribe(l vpn.Listener) (unsubscribe func())
}

// Channel subscribes to src and forwards events into a buffered channel.
// Delivery is non-blocking: if the buffer is full, the event is dropped.
// The returned cancel func unsubscribes and closes the channel.
func Channel(src Subscriber, bufferSize int) (<-chan vpn.Event, func()) {
	if bufferSize <= 0 {
		bufferSize = 100
	}

	ch := make(chan vpn.Event, bufferSize)
	var (
		mu     sync.Mutex
		closed bool
	)

	unsubscribe := src.Subscribe(func(e vpn.Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
			// Subscriber buffer full, drop event
		}
	})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
	return ch, cancel
}
