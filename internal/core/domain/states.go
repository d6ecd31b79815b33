package domain

// InterfaceID identifies one logical communication path to a backend.
// A backend may expose several interfaces concurrently.
type InterfaceID string

// ClientState is the per-interface connection lifecycle state. Exactly
// one ClientStateMachine owns the state for each configured interface.
type ClientState string

const (
	ClientCreated      ClientState = "CREATED"
	ClientInitializing ClientState = "INITIALIZING"
	ClientInitialized  ClientState = "INITIALIZED"
	ClientConnecting   ClientState = "CONNECTING"
	ClientConnected    ClientState = "CONNECTED"
	ClientDisconnected ClientState = "DISCONNECTED"
	ClientReconnecting ClientState = "RECONNECTING"
	ClientFailed       ClientState = "FAILED"
	ClientStopping     ClientState = "STOPPING"
	ClientStopped      ClientState = "STOPPED"
)

// CentralState is the system-wide state aggregated over all tracked
// client state machines.
type CentralState string

const (
	CentralStarting     CentralState = "STARTING"
	CentralInitializing CentralState = "INITIALIZING"
	CentralRunning      CentralState = "RUNNING"
	CentralDegraded     CentralState = "DEGRADED"
	CentralRecovering   CentralState = "RECOVERING"
	CentralFailed       CentralState = "FAILED"
	CentralStopped      CentralState = "STOPPED"
)

// BreakerState is the tri-state of a per-channel circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// RecoveryStage marks progress of one staged recovery attempt. A stage
// value is transient: created on connection-lost, discarded at
// RECOVERED or retry exhaustion.
type RecoveryStage string

const (
	StageIdle           RecoveryStage = "IDLE"
	StageDetecting      RecoveryStage = "DETECTING"
	StageCooldown       RecoveryStage = "COOLDOWN"
	StageTCPChecking    RecoveryStage = "TCP_CHECKING"
	StageRPCChecking    RecoveryStage = "RPC_CHECKING"
	StageWarmingUp      RecoveryStage = "WARMING_UP"
	StageStabilityCheck RecoveryStage = "STABILITY_CHECK"
	StageReconnecting   RecoveryStage = "RECONNECTING"
	StageDataLoading    RecoveryStage = "DATA_LOADING"
	StageRecovered      RecoveryStage = "RECOVERED"
	StageFailed         RecoveryStage = "FAILED"
)
