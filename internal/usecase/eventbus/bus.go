// Package eventbus fans agent and scheduler events out to in-process
// subscribers.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"devspace/internal/domain"
	"devspace/internal/infra/logger"
)

// filter selects events. Empty fields match anything.
type filter struct {
	eventType domain.EventType
	agentID   string
}

func (f filter) accepts(ev domain.Event) bool {
	return (f.eventType == "" || f.eventType == ev.Type) &&
		(f.agentID == "" || f.agentID == ev.AgentID)
}

type subscriber struct {
	filter
	handler domain.EventHandler
}

// Stats counts bus activity since New.
type Stats struct {
	Published   uint64
	Delivered   uint64
	Panics      uint64
	Subscribers int
}

// Bus delivers each published event to every matching subscriber on its own
// goroutine. Close waits for those goroutines.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]subscriber
	nextID uint64

	published atomic.Uint64
	delivered atomic.Uint64
	panics    atomic.Uint64

	inflight sync.WaitGroup
	closed   atomic.Bool
	log      *slog.Logger
}

var _ domain.EventBus = (*Bus)(nil)

// New creates an event bus. A nil logger discards handler panics.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = logger.Discard()
	}
	return &Bus{subs: make(map[uint64]subscriber), log: log}
}

// Publish hands event to every matching subscriber. Events published after
// Close are dropped.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}
	b.published.Add(1)

	b.mu.RLock()
	for _, sub := range b.subs {
		if sub.accepts(event) {
			b.deliver(ctx, event, sub.handler)
		}
	}
	b.mu.RUnlock()
}

// Emit builds and publishes an event in one call.
func (b *Bus) Emit(ctx context.Context, t domain.EventType, agentID string, payload any) {
	b.Publish(ctx, domain.NewEvent(t, agentID, payload))
}

func (b *Bus) deliver(ctx context.Context, event domain.Event, handler domain.EventHandler) {
	b.inflight.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				b.panics.Add(1)
				b.log.Error("event handler panicked",
					"event", string(event.Type), "agent_id", event.AgentID, "panic", r)
			}
		}()
		handler(ctx, event)
		b.delivered.Add(1)
	})
}

func (b *Bus) add(f filter, handler domain.EventHandler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = subscriber{filter: f, handler: handler}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Subscribe registers handler for one event type and returns its
// unsubscribe func.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(filter{eventType: eventType}, handler)
}

// SubscribeAll registers handler for every event.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add(filter{}, handler)
}

// SubscribeAgent registers handler for every event about agentID. An empty
// agentID behaves like SubscribeAll.
func (b *Bus) SubscribeAgent(agentID string, handler domain.EventHandler) func() {
	return b.add(filter{agentID: agentID}, handler)
}

// Stats returns a snapshot of the counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return Stats{
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Panics:      b.panics.Load(),
		Subscribers: n,
	}
}

// Close stops accepting events and blocks until running handlers return.
// Calling it again is a no-op.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.inflight.Wait()
	st := b.Stats()
	b.log.Debug("event bus closed",
		"published", st.Published, "delivered", st.Delivered, "panics", st.Panics)
}
