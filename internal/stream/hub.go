// Package stream fans committed appliance changes out to live subscribers.
//
// Delivery is best effort: there is no replay, and a subscriber whose buffer
// is full misses the message instead of slowing the publisher down.
package stream

import (
	"sync"
	"sync/atomic"

	"smarthome/internal/models"
)

const defaultBuffer = 16

// Notifier receives every committed change. Implementations must not block.
type Notifier interface {
	Publish(msg models.StreamMessage)
}

// Subscription is a single live consumer.
type Subscription struct {
	id      uint64
	ch      chan models.StreamMessage
	dropped atomic.Uint64
	once    sync.Once
}

// C yields messages until the subscription is closed.
func (s *Subscription) C() <-chan models.StreamMessage { return s.ch }

// Dropped counts messages skipped because the buffer was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Hub is an in-process pub/sub registry. The zero value is not usable; use NewHub.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*Subscription)}
}

var _ Notifier = (*Hub)(nil)

// Subscribe registers a consumer with the given channel buffer.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	sub := &Subscription{ch: make(chan models.StreamMessage, buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.nextID++
	sub.id = h.nextID
	h.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	delete(h.subs, sub.id)
	h.mu.Unlock()
	sub.once.Do(func() { close(sub.ch) })
}

// Publish delivers msg to every subscriber without blocking.
func (h *Hub) Publish(msg models.StreamMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		select {
		case sub.ch <- msg:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Len reports the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unsubscribes everyone; later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*Subscription)
	h.closed = true
	h.mu.Unlock()
	for _, sub := range subs {
		sub.once.Do(func() { close(sub.ch) })
	}
}

// Fanout publishes to several notifiers in order.
type Fanout []Notifier

func (f Fanout) Publish(msg models.StreamMessage) {
	for _, n := range f {
		if n != nil {
			n.Publish(msg)
		}
	}
}
