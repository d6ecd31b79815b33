package recovery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/duongvq/homelink/internal/core/domain"
)

// SubscribingBus is the bus surface the manager needs.
type SubscribingBus interface {
	Publisher
	Subscribe(t domain.EventType, handler func(domain.Event), priority domain.EventPriority) func()
}

// Manager owns one coordinator per configured interface, keyed in an
// explicit map with lifecycle tied to interface configuration. It
// listens for connection-lost and breaker-tripped signals and starts
// the owning coordinator's recovery run.
type Manager struct {
	bus SubscribingBus
	log *slog.Logger

	mu           sync.Mutex
	coordinators map[domain.InterfaceID]*Coordinator
	unsubscribe  func()
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewManager creates an empty manager.
func NewManager(bus SubscribingBus, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		bus:          bus,
		log:          log,
		coordinators: make(map[domain.InterfaceID]*Coordinator),
	}
}

// Register adds the coordinator for one interface. Called at interface
// configuration time.
func (m *Manager) Register(c *Coordinator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coordinators[c.Interface()] = c
}

// Deregister removes an interface's coordinator at teardown.
func (m *Manager) Deregister(id domain.InterfaceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.coordinators, id)
}

// Start subscribes to connection-change events. Recovery runs are
// scheduled on their own goroutines so bus delivery stays short.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.unsubscribe = m.bus.Subscribe(
		domain.EventConnectionChanged,
		func(ev domain.Event) { m.onConnectionChanged(runCtx, ev) },
		domain.PriorityHigh,
	)
}

// Stop cancels all in-flight recovery runs and waits for them to
// settle.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	unsub := m.unsubscribe
	m.cancel = nil
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *Manager) onConnectionChanged(ctx context.Context, ev domain.Event) {
	change, ok := ev.Payload.(domain.ConnectionChange)
	if !ok || change.Connected {
		return
	}

	switch change.Kind {
	case domain.IssueConnectionLost, domain.IssueBreakerOpen, domain.IssueCallbackDead:
	default:
		return
	}

	m.mu.Lock()
	coord := m.coordinators[change.Interface]
	m.mu.Unlock()
	if coord == nil || coord.Running() {
		return
	}

	trigger := domain.FailureNetwork
	if change.Kind == domain.IssueBreakerOpen {
		trigger = domain.FailureCircuitBreaker
	}

	m.log.Info("Starting recovery", "interface", change.Interface, "kind", change.Kind)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		coord.Recover(ctx, trigger)
	}()
}
