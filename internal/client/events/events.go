package events

import (
	"sync"

	"wirevpn/internal/vpn"
)

type subscription struct {
	id       uint64
	listener vpn.Listener
}

// Bus is a synchronous fan-out of VPN events to listeners, in subscription order.
// Transports use the OnActive/OnIdle hooks to start and stop their backend
// resources exactly when the listener set goes from empty to non-empty and back.
type Bus struct {
	mu          sync.Mutex
	subscribers []subscription
	nextID      uint64
	closed      bool

	onActive func()
	onIdle   func()
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make([]subscription, 0),
	}
}

// OnActive sets the hook run when the first listener subscribes.
// Hooks run with the bus lock held and must not call back into the bus.
func (b *Bus) OnActive(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onActive = fn
}

// OnIdle sets the hook run when the last listener unsubscribes.
func (b *Bus) OnIdle(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onIdle = fn
}

// Subscribe adds a listener and returns a func that removes it.
// The returned func is safe to call more than once.
func (b *Bus) Subscribe(l vpn.Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || l == nil {
		return func() {}
	}

	b.nextID++
	id := b.nextID
	b.subscribers = append(b.subscribers, subscription{id: id, listener: l})
	if len(b.subscribers) == 1 && b.onActive != nil {
		b.onActive()
	}

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub.id == id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			if len(b.subscribers) == 0 && b.onIdle != nil {
				b.onIdle()
			}
			return
		}
	}
}

// Publish delivers an event to every current listener.
// Listeners are called outside the lock so they may unsubscribe themselves.
func (b *Bus) Publish(event vpn.Event) {
	b.PublishIf(event, nil)
}

// PublishIf delivers event only if ok reports true. ok runs with the bus lock
// held, so it sees the same listener set the event is delivered to and is
// ordered against the OnActive/OnIdle hooks. A nil ok always publishes.
func (b *Bus) PublishIf(event vpn.Event, ok func() bool) bool {
	b.mu.Lock()
	if b.closed || (ok != nil && !ok()) {
		b.mu.Unlock()
		return false
	}
	snapshot := make([]vpn.Listener, len(b.subscribers))
	for i, sub := range b.subscribers {
		snapshot[i] = sub.listener
	}
	b.mu.Unlock()

	for _, l := range snapshot {
		l(event)
	}
	return true
}

// PublishState is a convenience method to publish a state_change event.
func (b *Bus) PublishState(s vpn.State) {
	b.Publish(vpn.StateChange(s))
}

// PublishError publishes an error event.
func (b *Bus) PublishError(err error) {
	if err == nil {
		return
	}
	b.Publish(vpn.ErrorEvent(err.Error()))
}

// Reset drops every listener without running the idle hook. The bus stays usable.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = b.subscribers[:0]
}

// Close drops every listener; later subscriptions are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.subscribers = nil
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
