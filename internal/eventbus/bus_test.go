package eventbus

import (
	"testing"

	"github.com/duongvq/homelink/internal/core/domain"
)

func TestPriorityOrdering(t *testing.T) {
	bus := New(nil)

	var got []string
	bus.Subscribe(domain.EventClientStateChanged, func(domain.Event) {
		got = append(got, "normal")
	}, domain.PriorityNormal)
	bus.Subscribe(domain.EventClientStateChanged, func(domain.Event) {
		got = append(got, "low")
	}, domain.PriorityLow)
	// Registered last, must still run first.
	bus.Subscribe(domain.EventClientStateChanged, func(domain.Event) {
		got = append(got, "critical")
	}, domain.PriorityCritical)

	bus.Publish(domain.NewEvent(domain.EventClientStateChanged, domain.PriorityNormal, nil))

	want := []string{"critical", "normal", "low"}
	if len(got) != len(want) {
		t.Fatalf("expected %d deliveries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestSamePrioritySubscriptionOrder(t *testing.T) {
	bus := New(nil)

	var got []int
	for i := 0; i < 5; i++ {
		n := i
		bus.Subscribe(domain.EventConnectionChanged, func(domain.Event) {
			got = append(got, n)
		}, domain.PriorityNormal)
	}

	bus.Publish(domain.NewEvent(domain.EventConnectionChanged, domain.PriorityNormal, nil))

	for i := 0; i < 5; i++ {
		if got[i] != i {
			t.Fatalf("expected subscription order, got %v", got)
		}
	}
}

func TestPanickingHandlerDoesNotBlockDelivery(t *testing.T) {
	bus := New(nil)

	delivered := false
	bus.Subscribe(domain.EventBreakerStateChanged, func(domain.Event) {
		panic("boom")
	}, domain.PriorityHigh)
	bus.Subscribe(domain.EventBreakerStateChanged, func(domain.Event) {
		delivered = true
	}, domain.PriorityNormal)

	bus.Publish(domain.NewEvent(domain.EventBreakerStateChanged, domain.PriorityNormal, nil))

	if !delivered {
		t.Error("later handler should still run after a panic")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := New(nil)

	count := 0
	unsub := bus.Subscribe(domain.EventRecoveryProgress, func(domain.Event) {
		count++
	}, domain.PriorityNormal)

	ev := domain.NewEvent(domain.EventRecoveryProgress, domain.PriorityNormal, nil)
	bus.Publish(ev)
	unsub()
	bus.Publish(ev)
	unsub() // second call is a no-op

	if count != 1 {
		t.Errorf("expected 1 delivery, got %d", count)
	}
}

func TestPublishBatchGroupsByType(t *testing.T) {
	bus := New(nil)

	var types []domain.EventType
	record := func(ev domain.Event) {
		types = append(types, ev.Type)
	}
	bus.Subscribe(domain.EventClientStateChanged, record, domain.PriorityNormal)
	bus.Subscribe(domain.EventConnectionChanged, record, domain.PriorityNormal)

	bus.PublishBatch([]domain.Event{
		domain.NewEvent(domain.EventClientStateChanged, domain.PriorityNormal, 1),
		domain.NewEvent(domain.EventConnectionChanged, domain.PriorityNormal, 2),
		domain.NewEvent(domain.EventClientStateChanged, domain.PriorityNormal, 3),
	})

	want := []domain.EventType{
		domain.EventClientStateChanged,
		domain.EventClientStateChanged,
		domain.EventConnectionChanged,
	}
	if len(types) != len(want) {
		t.Fatalf("expected %d deliveries, got %d", len(want), len(types))
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("delivery %d: expected %s, got %s", i, want[i], types[i])
		}
	}
}
