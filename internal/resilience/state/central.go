package state

import (
	"log/slog"
	"sync"

	"github.com/duongvq/homelink/internal/core/domain"
)

// SubscribingBus is the bus surface the central machine needs: it both
// publishes its own changes and subscribes to client transitions.
type SubscribingBus interface {
	Publisher
	Subscribe(t domain.EventType, handler func(domain.Event), priority domain.EventPriority) func()
}

// CentralMachine aggregates all tracked client machines into one
// system-wide state. It recomputes on every observed client transition
// and publishes its own event only when the computed state changes.
type CentralMachine struct {
	bus SubscribingBus
	log *slog.Logger

	mu           sync.Mutex
	clients      map[domain.InterfaceID]*ClientMachine
	state        domain.CentralState
	failure      domain.FailureReason
	failureIface domain.InterfaceID
	unsubscribe  func()
}

// NewCentralMachine creates a machine in STARTING with no tracked
// clients.
func NewCentralMachine(bus SubscribingBus, log *slog.Logger) *CentralMachine {
	if log == nil {
		log = slog.Default()
	}
	return &CentralMachine{
		bus:     bus,
		log:     log,
		clients: make(map[domain.InterfaceID]*ClientMachine),
		state:   domain.CentralStarting,
		failure: domain.FailureNone,
	}
}

// Start subscribes to client transitions. Runs at CRITICAL priority so
// the aggregate is already consistent when ordinary consumers observe
// the same publish.
func (c *CentralMachine) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil {
		return
	}
	c.unsubscribe = c.bus.Subscribe(
		domain.EventClientStateChanged,
		c.onClientTransition,
		domain.PriorityCritical,
	)
}

// Stop drops the bus subscription.
func (c *CentralMachine) Stop() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Track adds a client machine to the aggregate and recomputes.
func (c *CentralMachine) Track(m *ClientMachine) {
	c.mu.Lock()
	c.clients[m.ID()] = m
	c.mu.Unlock()
	c.recompute(domain.ClientStateChange{Interface: m.ID()})
}

// Untrack removes a client machine at interface teardown.
func (c *CentralMachine) Untrack(id domain.InterfaceID) {
	c.mu.Lock()
	delete(c.clients, id)
	c.mu.Unlock()
	c.recompute(domain.ClientStateChange{Interface: id})
}

// State returns the current aggregate state.
func (c *CentralMachine) State() domain.CentralState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FailureInfo returns the failure reason and triggering interface
// recorded when entering FAILED. Both are zero outside FAILED.
func (c *CentralMachine) FailureInfo() (domain.FailureReason, domain.InterfaceID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure, c.failureIface
}

func (c *CentralMachine) onClientTransition(ev domain.Event) {
	change, ok := ev.Payload.(domain.ClientStateChange)
	if !ok {
		return
	}
	c.recompute(change)
}

func (c *CentralMachine) recompute(trigger domain.ClientStateChange) {
	c.mu.Lock()

	computed := aggregate(c.clients)

	// While FAILED, every further exhausted client refreshes the
	// recorded trigger, so diagnostics always name the most recent
	// negative transition.
	if computed == domain.CentralFailed && trigger.New == domain.ClientFailed {
		c.failure = trigger.Failure
		c.failureIface = trigger.Interface
	}

	if computed == c.state {
		c.mu.Unlock()
		return
	}

	old := c.state
	c.state = computed

	if computed != domain.CentralFailed {
		c.failure = domain.FailureNone
		c.failureIface = ""
	}
	failure := c.failure
	iface := c.failureIface
	c.mu.Unlock()

	c.log.Info("Central state transition",
		"from", old, "to", computed, "failure", failure, "interface", iface)

	c.bus.Publish(domain.NewEvent(
		domain.EventCentralStateChanged,
		domain.PriorityHigh,
		domain.CentralStateChange{
			Old:       old,
			New:       computed,
			Failure:   failure,
			Interface: iface,
		},
	))
}

// aggregate derives the central state from a snapshot of all client
// states. RUNNING iff every client is CONNECTED; DEGRADED iff some but
// not all are CONNECTED with no terminal failures; FAILED as soon as
// any client exhausted its recovery budget.
func aggregate(clients map[domain.InterfaceID]*ClientMachine) domain.CentralState {
	if len(clients) == 0 {
		return domain.CentralStarting
	}

	var connected, failed, recovering, stopping, startup int
	for _, m := range clients {
		switch m.State() {
		case domain.ClientConnected:
			connected++
		case domain.ClientFailed:
			failed++
		case domain.ClientDisconnected, domain.ClientReconnecting:
			recovering++
		case domain.ClientStopping, domain.ClientStopped:
			stopping++
		default: // CREATED, INITIALIZING, INITIALIZED, CONNECTING
			startup++
		}
	}
	total := len(clients)

	switch {
	case stopping == total:
		return domain.CentralStopped
	case failed > 0:
		return domain.CentralFailed
	case connected == total:
		return domain.CentralRunning
	case connected > 0:
		return domain.CentralDegraded
	case recovering > 0:
		return domain.CentralRecovering
	default:
		return domain.CentralInitializing
	}
}
