// Package eventbus provides the synchronous priority-ordered
// publish/subscribe fabric connecting the resilience components.
package eventbus

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/duongvq/homelink/internal/core/domain"
)

// Handler consumes one event. Handlers run synchronously with the
// publisher and must not perform unbounded work.
type Handler = func(domain.Event)

// Unsubscribe removes the matching subscription. Safe to call more
// than once.
type Unsubscribe = func()

type subscription struct {
	id       uint64
	priority domain.EventPriority
	handler  Handler
}

// Bus delivers events to subscribers ordered by priority (highest
// first), then subscription order. Publish returns only after all
// matching handlers of that call have run.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[domain.EventType][]subscription
	log    *slog.Logger
}

// New creates an empty bus.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		subs: make(map[domain.EventType][]subscription),
		log:  log,
	}
}

// Subscribe registers handler for events of type t. The returned
// Unsubscribe removes the registration.
func (b *Bus) Subscribe(t domain.EventType, handler Handler, priority domain.EventPriority) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscription{id: b.nextID, priority: priority, handler: handler}
	b.subs[t] = append(b.subs[t], sub)

	// Keep the slice delivery-ordered so Publish is a plain scan.
	sort.SliceStable(b.subs[t], func(i, j int) bool {
		return b.subs[t][i].priority > b.subs[t][j].priority
	})

	id := sub.id
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[t]
		for i := range list {
			if list[i].id == id {
				b.subs[t] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers event synchronously to all matching handlers. A
// panicking handler is logged and does not block delivery to the
// remaining handlers.
func (b *Bus) Publish(event domain.Event) {
	b.mu.RLock()
	list := make([]subscription, len(b.subs[event.Type]))
	copy(list, b.subs[event.Type])
	b.mu.RUnlock()

	for _, sub := range list {
		b.dispatch(sub, event)
	}
}

// PublishBatch delivers a burst of events grouped by type. Per-type
// ordering of the input is preserved.
func (b *Bus) PublishBatch(events []domain.Event) {
	grouped := make(map[domain.EventType][]domain.Event)
	order := make([]domain.EventType, 0, len(events))
	for _, ev := range events {
		if _, seen := grouped[ev.Type]; !seen {
			order = append(order, ev.Type)
		}
		grouped[ev.Type] = append(grouped[ev.Type], ev)
	}

	for _, t := range order {
		for _, ev := range grouped[t] {
			b.Publish(ev)
		}
	}
}

func (b *Bus) dispatch(sub subscription, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Event handler panicked",
				"type", event.Type,
				"priority", sub.priority,
				"panic", r,
			)
		}
	}()
	sub.handler(event)
}
