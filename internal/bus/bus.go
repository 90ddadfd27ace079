// Package bus implements the Event Bus: an ordered, multi-consumer
// broadcast of run events, closeable with a terminal reason.
package bus

import (
	"sync"

	"github.com/emmett08/unified-agent-sdk/pkg/events"
)

// Hook is a best-effort subscriber. Hooks must not destabilise the run:
// panics and errors are swallowed by the bus.
type Hook func(events.AgentEvent)

// Bus is a single-producer-friendly, multi-consumer broadcast of
// AgentEvents. Emit is non-blocking from the producer's point of view:
// each consumer gets its own buffered channel, sized generously, and a
// slow consumer only risks dropping if it never drains — the core itself
// never blocks waiting for a consumer.
type Bus struct {
	mu        sync.Mutex
	hooks     []Hook
	consumers []chan events.AgentEvent
	closed    bool
	reason    string
	history   []events.AgentEvent // replayed to iterators that subscribe before close
}

// consumerBuffer is generous enough that ordinary runs never drop; it only
// protects the bus from an abandoned consumer holding memory forever.
const consumerBuffer = 4096

// New creates an empty Event Bus.
func New() *Bus {
	return &Bus{}
}

// Emit appends ev to every live consumer channel and invokes every
// subscribed hook, in subscription order, before queuing for iteration
// delivery (spec §4.B: "hook callbacks fire before iteration delivery").
// Events emitted after Close are dropped.
func (b *Bus) Emit(ev events.AgentEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	hooks := append([]Hook(nil), b.hooks...)
	consumers := append([]chan events.AgentEvent(nil), b.consumers...)
	b.history = append(b.history, ev)
	b.mu.Unlock()

	for _, h := range hooks {
		callHookSafely(h, ev)
	}
	for _, ch := range consumers {
		select {
		case ch <- ev:
		default:
			// Consumer too slow to keep up; never block the producer.
		}
	}
}

func callHookSafely(h Hook, ev events.AgentEvent) {
	defer func() { _ = recover() }()
	h(ev)
}

// Subscribe registers a best-effort hook, invoked synchronously (but
// panic-isolated) from Emit.
func (b *Bus) Subscribe(h Hook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h != nil {
		b.hooks = append(b.hooks, h)
	}
}

// Iterate returns a channel that receives every event emitted after this
// call (subsequent Emits), closed once Close() is observed and any
// remaining buffered events are drained.
func (b *Bus) Iterate() <-chan events.AgentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan events.AgentEvent, consumerBuffer)
	if b.closed {
		for _, ev := range b.history {
			ch <- ev
		}
		close(ch)
		return ch
	}
	b.consumers = append(b.consumers, ch)
	return ch
}

// Close marks the bus terminal with an optional reason; no further Emit
// calls have effect, and every consumer channel is closed once drained.
func (b *Bus) Close(reason string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.reason = reason
	consumers := b.consumers
	b.consumers = nil
	b.mu.Unlock()

	for _, ch := range consumers {
		close(ch)
	}
}

// Closed reports whether Close has already been called.
func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Reason returns the reason passed to Close, if any.
func (b *Bus) Reason() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}
