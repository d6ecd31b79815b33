// Package recovery drives staged reconnection for lost interfaces and
// defensive validation of first-ever connections.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/duongvq/homelink/internal/core/domain"
	"github.com/duongvq/homelink/internal/resilience/classify"
	"github.com/duongvq/homelink/internal/resilience/state"
)

// Session is the collaborator surface recovery drives. Errors returned
// from it are already classified.
type Session interface {
	Reconnect(ctx context.Context) error
	Probe(ctx context.Context) error
	Reload(ctx context.Context) error
}

// TCPProbe checks raw reachability of host:port within timeout.
type TCPProbe func(ctx context.Context, host string, port int, timeout time.Duration) bool

// IssueReporter mirrors the central connection state surface recovery
// needs.
type IssueReporter interface {
	AddIssue(id domain.InterfaceID, kind domain.IssueKind)
	RemoveIssue(id domain.InterfaceID, kind domain.IssueKind)
}

// Publisher is the slice of the event bus recovery publishes progress
// on.
type Publisher interface {
	Publish(domain.Event)
}

// Coordinator runs staged recovery for exactly one interface. Each
// interface owns its own coordinator; runs on different interfaces
// proceed concurrently and independently.
type Coordinator struct {
	iface    domain.InterfaceID
	host     string
	port     int
	caps     domain.Capability
	cfg      Config
	session  Session
	tcpReady TCPProbe
	machine  *state.ClientMachine
	issues   IssueReporter
	bus      Publisher
	log      *slog.Logger

	running atomic.Bool
}

// NewCoordinator wires a coordinator for one interface.
func NewCoordinator(
	iface domain.InterfaceID,
	host string,
	port int,
	caps domain.Capability,
	cfg Config,
	session Session,
	tcpReady TCPProbe,
	machine *state.ClientMachine,
	issues IssueReporter,
	bus Publisher,
	log *slog.Logger,
) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		iface:    iface,
		host:     host,
		port:     port,
		caps:     caps,
		cfg:      cfg.withDefaults(),
		session:  session,
		tcpReady: tcpReady,
		machine:  machine,
		issues:   issues,
		bus:      bus,
		log:      log,
	}
}

// Interface returns the interface this coordinator owns.
func (c *Coordinator) Interface() domain.InterfaceID {
	return c.iface
}

// Running reports whether a recovery run is in flight.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// Recover runs staged recovery until the interface is back to
// CONNECTED, the retry budget is exhausted, or ctx is cancelled. At
// most one run is active per coordinator; concurrent triggers are
// absorbed.
func (c *Coordinator) Recover(ctx context.Context, trigger domain.FailureReason) {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	defer c.running.Store(false)

	if !c.machine.CanReconnect() {
		c.log.Debug("Recovery skipped, client cannot reconnect",
			"interface", c.iface, "state", c.machine.State())
		return
	}

	// Leave CONNECTED before driving the recovery path.
	if c.machine.State() == domain.ClientConnected {
		_ = c.machine.TransitionTo(domain.ClientDisconnected, "connection lost", trigger)
	}
	if c.machine.State() == domain.ClientDisconnected {
		_ = c.machine.TransitionTo(domain.ClientReconnecting, "recovery started", domain.FailureNone)
	}

	// A client still in its startup path has nothing to recover to;
	// cold start owns it until it reaches CONNECTED once.
	if c.machine.State() != domain.ClientReconnecting {
		c.log.Debug("Recovery skipped, client has not reached a recoverable state",
			"interface", c.iface, "state", c.machine.State())
		return
	}

	attemptID := uuid.New().String()
	c.publishStage(attemptID, domain.StageDetecting, 0, nil)

	retries := 0
	lastReason := trigger
	for {
		cooldown := c.cfg.Cooldown
		if retries > 0 {
			cooldown = Delay(retries, c.cfg.BackoffBase, c.cfg.BackoffMax)
		}

		err := c.runAttempt(ctx, attemptID, retries, cooldown)
		if err == nil {
			c.publishStage(attemptID, domain.StageRecovered, retries, nil)
			c.log.Info("Interface recovered", "interface", c.iface, "retries", retries)
			return
		}
		if ctx.Err() != nil {
			// Shutdown owns the state machine now; leave it alone.
			c.log.Debug("Recovery cancelled", "interface", c.iface)
			return
		}

		reason := classify.Classify(err)
		if reason != domain.FailureNone {
			lastReason = reason
		}

		// A steady-state AUTH failure means the backend is up but the
		// credentials are wrong. Neither backoff nor heartbeat can fix
		// that; the consumer has to re-authenticate.
		if reason == domain.FailureAuth {
			c.log.Error("Authentication failed during recovery, giving up",
				"interface", c.iface, "error", err)
			c.issues.AddIssue(c.iface, domain.IssueAuthFailed)
			c.fail(attemptID, retries, domain.FailureAuth, err)
			return
		}

		retries++
		c.log.Warn("Recovery attempt failed",
			"interface", c.iface, "retries", retries, "error", err)

		if retries >= c.cfg.MaxAttempts {
			c.fail(attemptID, retries, lastReason, err)
			c.heartbeatLoop(ctx, attemptID)
			return
		}
		c.publishStage(attemptID, domain.StageFailed, retries, err)
	}
}

// runAttempt executes one full stage sequence. Any error aborts the
// attempt; the caller decides whether another cycle follows.
func (c *Coordinator) runAttempt(ctx context.Context, attemptID string, retries int, cooldown time.Duration) error {
	c.publishStage(attemptID, domain.StageCooldown, retries, nil)
	if err := sleep(ctx, cooldown); err != nil {
		return err
	}

	// No RPC without confirmed TCP.
	c.publishStage(attemptID, domain.StageTCPChecking, retries, nil)
	if err := c.waitTCPReady(ctx); err != nil {
		return err
	}

	c.publishStage(attemptID, domain.StageRPCChecking, retries, nil)
	if err := c.session.Probe(ctx); err != nil {
		return err
	}

	c.publishStage(attemptID, domain.StageWarmingUp, retries, nil)
	if err := sleep(ctx, c.cfg.WarmupDelay); err != nil {
		return err
	}

	// Repeat the probe to rule out a fluke.
	c.publishStage(attemptID, domain.StageStabilityCheck, retries, nil)
	if err := c.session.Probe(ctx); err != nil {
		return err
	}

	c.publishStage(attemptID, domain.StageReconnecting, retries, nil)
	if err := c.session.Reconnect(ctx); err != nil {
		return err
	}
	if err := c.machine.TransitionTo(domain.ClientConnected, "recovered", domain.FailureNone); err != nil {
		return err
	}

	if c.caps.Has(domain.CapReload) {
		c.publishStage(attemptID, domain.StageDataLoading, retries, nil)
		if err := c.session.Reload(ctx); err != nil {
			// The reconnect did not stick; fall back into the cycle.
			_ = c.machine.TransitionTo(domain.ClientDisconnected, "reload failed", classify.Classify(err))
			_ = c.machine.TransitionTo(domain.ClientReconnecting, "recovery resumed", domain.FailureNone)
			return err
		}
	}

	c.issues.RemoveIssue(c.iface, domain.IssueConnectionLost)
	c.issues.RemoveIssue(c.iface, domain.IssueAuthFailed)
	return nil
}

// waitTCPReady polls reachability every TCPInterval up to the
// TCPTimeout bound. Failure is fatal for the current attempt.
func (c *Coordinator) waitTCPReady(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.TCPTimeout)
	for {
		if c.tcpReady(ctx, c.host, c.port, c.cfg.TCPInterval) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().Add(c.cfg.TCPInterval).After(deadline) {
			return domain.NewClassifiedError(
				domain.FailureNetwork,
				fmt.Errorf("%s:%d not reachable within %s", c.host, c.port, c.cfg.TCPTimeout),
			)
		}
		if err := sleep(ctx, c.cfg.TCPInterval); err != nil {
			return err
		}
	}
}

// fail pushes the interface to FAILED after budget exhaustion or a
// non-retryable failure.
func (c *Coordinator) fail(attemptID string, retries int, reason domain.FailureReason, err error) {
	c.publishStage(attemptID, domain.StageFailed, retries, err)
	if c.machine.State() == domain.ClientReconnecting {
		msg := "recovery budget exhausted"
		if err != nil {
			msg = err.Error()
		}
		_ = c.machine.TransitionTo(domain.ClientFailed, msg, reason)
	}
}

// heartbeatLoop replaces backoff after exhaustion: a slow fixed-pace
// probe that drives the explicit restart path once the backend answers
// again.
func (c *Coordinator) heartbeatLoop(ctx context.Context, attemptID string) {
	c.log.Info("Switching to heartbeat retry",
		"interface", c.iface, "interval", c.cfg.HeartbeatInterval)

	for {
		if err := sleep(ctx, c.cfg.HeartbeatInterval); err != nil {
			return
		}
		if c.machine.State() != domain.ClientFailed {
			return
		}

		if !c.tcpReady(ctx, c.host, c.port, c.cfg.TCPInterval) {
			continue
		}
		if err := c.session.Probe(ctx); err != nil {
			c.log.Debug("Heartbeat probe failed", "interface", c.iface, "error", err)
			continue
		}

		if err := c.restart(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("Heartbeat restart failed", "interface", c.iface, "error", err)
			continue
		}

		c.publishStage(attemptID, domain.StageRecovered, 0, nil)
		c.log.Info("Interface recovered via heartbeat", "interface", c.iface)
		return
	}
}

// restart walks the explicit FAILED -> INITIALIZING -> ... -> CONNECTED
// path after a successful heartbeat probe.
func (c *Coordinator) restart(ctx context.Context) error {
	steps := []struct {
		target domain.ClientState
		reason string
	}{
		{domain.ClientInitializing, "heartbeat restart"},
		{domain.ClientInitialized, "heartbeat restart"},
		{domain.ClientConnecting, "heartbeat restart"},
	}
	for _, s := range steps {
		if err := c.machine.TransitionTo(s.target, s.reason, domain.FailureNone); err != nil {
			return err
		}
	}

	if err := c.session.Reconnect(ctx); err != nil {
		_ = c.machine.TransitionTo(domain.ClientFailed, "restart reconnect failed", classify.Classify(err))
		return err
	}
	if err := c.machine.TransitionTo(domain.ClientConnected, "recovered", domain.FailureNone); err != nil {
		return err
	}
	if c.caps.Has(domain.CapReload) {
		if err := c.session.Reload(ctx); err != nil {
			c.log.Warn("Reload after heartbeat restart failed", "interface", c.iface, "error", err)
		}
	}
	c.issues.RemoveIssue(c.iface, domain.IssueConnectionLost)
	return nil
}

func (c *Coordinator) publishStage(attemptID string, stage domain.RecoveryStage, retries int, err error) {
	if c.bus == nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	c.bus.Publish(domain.NewEvent(
		domain.EventRecoveryProgress,
		domain.PriorityNormal,
		domain.RecoveryProgress{
			Interface: c.iface,
			AttemptID: attemptID,
			Stage:     stage,
			Retry:     retries,
			Err:       msg,
		},
	))
}
