package domain

import "time"

// EventType identifies a bus message type.
type EventType string

const (
	EventClientStateChanged  EventType = "client_state_changed"
	EventCentralStateChanged EventType = "central_state_changed"
	EventConnectionChanged   EventType = "connection_changed"
	EventBreakerStateChanged EventType = "breaker_state_changed"
	EventRecoveryProgress    EventType = "recovery_progress"
)

// EventPriority orders handler delivery within one publish call.
// Higher priorities run first; ties break on subscription order.
type EventPriority int

const (
	PriorityLow      EventPriority = 0
	PriorityNormal   EventPriority = 10
	PriorityHigh     EventPriority = 20
	PriorityCritical EventPriority = 30
)

// Event is an immutable bus record. Payload holds one of the typed
// payload structs below, matched by Type.
type Event struct {
	Type      EventType
	Priority  EventPriority
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, priority EventPriority, payload any) Event {
	return Event{Type: t, Priority: priority, Timestamp: time.Now(), Payload: payload}
}

// ClientStateChange is the payload of EventClientStateChanged.
type ClientStateChange struct {
	Interface InterfaceID
	Old       ClientState
	New       ClientState
	Reason    string
	Failure   FailureReason
}

// CentralStateChange is the payload of EventCentralStateChanged.
// Interface is set only on negative transitions and names the client
// whose transition triggered them.
type CentralStateChange struct {
	Old       CentralState
	New       CentralState
	Failure   FailureReason
	Interface InterfaceID
}

// ConnectionChange is the payload of EventConnectionChanged. It tracks
// coarse interface availability for external consumers.
type ConnectionChange struct {
	Interface InterfaceID
	Kind      IssueKind
	Connected bool
}

// BreakerStateChange is the payload of EventBreakerStateChanged.
type BreakerStateChange struct {
	Channel InterfaceID
	Old     BreakerState
	New     BreakerState
}

// RecoveryProgress is the payload of EventRecoveryProgress. AttemptID
// correlates all stages of one recovery attempt.
type RecoveryProgress struct {
	Interface InterfaceID
	AttemptID string
	Stage     RecoveryStage
	Retry     int
	Err       string
}
