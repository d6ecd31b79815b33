// Package state holds the per-interface client state machine and the
// central aggregate state machine.
package state

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/duongvq/homelink/internal/core/domain"
)

// ErrIllegalTransition is returned when a requested transition is not
// in the legality table. The machine is left unchanged.
var ErrIllegalTransition = errors.New("illegal state transition")

// Publisher is the slice of the event bus the machines need.
type Publisher interface {
	Publish(domain.Event)
}

// legalTransitions is the per-state set of allowed successor states.
// FAILED is terminal except for the explicit restart into INITIALIZING.
var legalTransitions = map[domain.ClientState][]domain.ClientState{
	domain.ClientCreated:      {domain.ClientInitializing},
	domain.ClientInitializing: {domain.ClientInitialized, domain.ClientFailed},
	domain.ClientInitialized:  {domain.ClientConnecting, domain.ClientStopping},
	domain.ClientConnecting:   {domain.ClientConnected, domain.ClientFailed},
	domain.ClientConnected:    {domain.ClientDisconnected, domain.ClientStopping},
	domain.ClientDisconnected: {domain.ClientReconnecting, domain.ClientStopping},
	domain.ClientReconnecting: {domain.ClientConnected, domain.ClientFailed, domain.ClientStopping},
	domain.ClientFailed:       {domain.ClientInitializing, domain.ClientStopping},
	domain.ClientStopping:     {domain.ClientStopped},
	domain.ClientStopped:      {},
}

// ClientMachine owns the connection lifecycle state of one interface.
// It is created at interface configuration and destroyed at teardown.
type ClientMachine struct {
	id  domain.InterfaceID
	bus Publisher
	log *slog.Logger

	mu          sync.Mutex
	state       domain.ClientState
	lastFailure domain.FailureReason
	lastMessage string
}

// NewClientMachine creates a machine in CREATED for the given
// interface.
func NewClientMachine(id domain.InterfaceID, bus Publisher, log *slog.Logger) *ClientMachine {
	if log == nil {
		log = slog.Default()
	}
	return &ClientMachine{
		id:          id,
		bus:         bus,
		log:         log,
		state:       domain.ClientCreated,
		lastFailure: domain.FailureNone,
	}
}

// TransitionTo moves the machine to target and publishes a
// client-state-changed event. An illegal transition returns
// ErrIllegalTransition without mutating anything.
func (m *ClientMachine) TransitionTo(target domain.ClientState, reason string, failure domain.FailureReason) error {
	m.mu.Lock()

	if !isLegal(m.state, target) {
		from := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s (interface %s)", ErrIllegalTransition, from, target, m.id)
	}

	old := m.state
	m.state = target
	m.lastFailure = failure
	m.lastMessage = reason
	m.mu.Unlock()

	m.log.Info("Client state transition",
		"interface", m.id, "from", old, "to", target,
		"reason", reason, "failure", failure)

	if m.bus != nil {
		m.bus.Publish(domain.NewEvent(
			domain.EventClientStateChanged,
			domain.PriorityHigh,
			domain.ClientStateChange{
				Interface: m.id,
				Old:       old,
				New:       target,
				Reason:    reason,
				Failure:   failure,
			},
		))
	}
	return nil
}

// ID returns the interface this machine belongs to.
func (m *ClientMachine) ID() domain.InterfaceID {
	return m.id
}

// State returns the current state.
func (m *ClientMachine) State() domain.ClientState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Failure returns the last recorded failure reason and message.
func (m *ClientMachine) Failure() (domain.FailureReason, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFailure, m.lastMessage
}

// IsAvailable reports whether the interface is usable for requests:
// CONNECTED, or RECONNECTING with the session still warm.
func (m *ClientMachine) IsAvailable() bool {
	s := m.State()
	return s == domain.ClientConnected || s == domain.ClientReconnecting
}

// CanReconnect reports whether recovery may drive this machine:
// not stopping or stopped, and not terminally failed.
func (m *ClientMachine) CanReconnect() bool {
	switch m.State() {
	case domain.ClientStopping, domain.ClientStopped, domain.ClientFailed:
		return false
	}
	return true
}

func isLegal(from, to domain.ClientState) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
