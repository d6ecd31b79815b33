package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/duongvq/homelink/internal/core/domain"
	"github.com/duongvq/homelink/internal/resilience/classify"
	"github.com/duongvq/homelink/internal/resilience/state"
)

// ColdStartValidator validates the first-ever connection to an
// interface. Unlike steady-state recovery, AUTH failures ARE retried
// here: a backend fresh out of reboot often rejects credentials while
// its auth subsystem is still loading.
type ColdStartValidator struct {
	iface    domain.InterfaceID
	host     string
	port     int
	cfg      ColdStartConfig
	session  Session
	tcpReady TCPProbe
	machine  *state.ClientMachine
	log      *slog.Logger
}

// NewColdStartValidator wires a validator for one interface.
func NewColdStartValidator(
	iface domain.InterfaceID,
	host string,
	port int,
	cfg ColdStartConfig,
	session Session,
	tcpReady TCPProbe,
	machine *state.ClientMachine,
	log *slog.Logger,
) *ColdStartValidator {
	if log == nil {
		log = slog.Default()
	}
	return &ColdStartValidator{
		iface:    iface,
		host:     host,
		port:     port,
		cfg:      cfg.withDefaults(),
		session:  session,
		tcpReady: tcpReady,
		machine:  machine,
		log:      log,
	}
}

// Validate walks the client from CREATED to CONNECTED. A TCP timeout is
// immediately fatal (NETWORK); handshake failures other than AUTH are
// not retried; AUTH is retried with backoff up to the attempt budget,
// and only after exhaustion propagates as a true failure.
func (v *ColdStartValidator) Validate(ctx context.Context) error {
	if err := v.machine.TransitionTo(domain.ClientInitializing, "cold start", domain.FailureNone); err != nil {
		return err
	}

	// One reachability check, no polling. A silent backend at cold
	// start is a wiring problem, not a transient.
	if !v.tcpReady(ctx, v.host, v.port, v.cfg.TCPTimeout) {
		err := domain.NewClassifiedError(
			domain.FailureNetwork,
			fmt.Errorf("%s:%d not reachable within %s", v.host, v.port, v.cfg.TCPTimeout),
		)
		_ = v.machine.TransitionTo(domain.ClientFailed, err.Error(), domain.FailureNetwork)
		return err
	}

	if err := v.machine.TransitionTo(domain.ClientInitialized, "tcp reachable", domain.FailureNone); err != nil {
		return err
	}
	if err := v.machine.TransitionTo(domain.ClientConnecting, "handshake", domain.FailureNone); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= v.cfg.MaxAttempts; attempt++ {
		err := v.session.Reconnect(ctx)
		if err == nil {
			return v.machine.TransitionTo(domain.ClientConnected, "cold start complete", domain.FailureNone)
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}

		reason := classify.Classify(err)
		if reason != domain.FailureAuth {
			_ = v.machine.TransitionTo(domain.ClientFailed, err.Error(), reason)
			return err
		}

		if attempt == v.cfg.MaxAttempts {
			break
		}

		delay := Delay(attempt, v.cfg.BackoffBase, v.cfg.BackoffMax)
		v.log.Warn("Cold start handshake rejected, auth service may still be booting",
			"interface", v.iface, "attempt", attempt, "retry_in", delay)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	// Budget exhausted: now it is a real credential problem.
	_ = v.machine.TransitionTo(domain.ClientFailed, "authentication failed after retries", domain.FailureAuth)
	return lastErr
}
