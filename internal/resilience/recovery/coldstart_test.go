package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/duongvq/homelink/internal/core/domain"
	"github.com/duongvq/homelink/internal/resilience/state"
)

func fastColdStart(maxAttempts int) ColdStartConfig {
	return ColdStartConfig{
		MaxAttempts: maxAttempts,
		BackoffBase: time.Millisecond,
		BackoffMax:  4 * time.Millisecond,
		TCPTimeout:  5 * time.Millisecond,
	}
}

func newValidator(t *testing.T, cfg ColdStartConfig, session Session, tcp TCPProbe) (*ColdStartValidator, *state.ClientMachine) {
	t.Helper()
	machine := state.NewClientMachine("IF1", nil, nil)
	v := NewColdStartValidator("IF1", "ccu.local", 2010, cfg, session, tcp, machine, nil)
	return v, machine
}

func TestColdStartRetriesAuthThenConnects(t *testing.T) {
	authErr := domain.NewClassifiedError(domain.FailureAuth, errors.New("unauthorized"))
	// Backend rejects the handshake twice while its auth service boots,
	// then accepts on the third attempt.
	session := &fakeSession{reconnectErrs: []error{authErr, authErr}}
	v, machine := newValidator(t, fastColdStart(5), session, tcpAlways(true))

	if err := v.Validate(context.Background()); err != nil {
		t.Fatalf("expected cold start to succeed, got %v", err)
	}

	if machine.State() != domain.ClientConnected {
		t.Fatalf("expected CONNECTED, got %s", machine.State())
	}
	reason, _ := machine.Failure()
	if reason != domain.FailureNone {
		t.Errorf("no AUTH failure may be surfaced, got %s", reason)
	}
	_, reconnect, _ := session.calls()
	if reconnect != 3 {
		t.Errorf("expected 3 handshake attempts (2 retries), got %d", reconnect)
	}
}

func TestColdStartAuthExhaustionPropagates(t *testing.T) {
	authErr := domain.NewClassifiedError(domain.FailureAuth, errors.New("unauthorized"))
	session := &fakeSession{reconnectErrs: []error{authErr, authErr, authErr}}
	v, machine := newValidator(t, fastColdStart(3), session, tcpAlways(true))

	err := v.Validate(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting handshake attempts")
	}

	if machine.State() != domain.ClientFailed {
		t.Fatalf("expected FAILED, got %s", machine.State())
	}
	reason, _ := machine.Failure()
	if reason != domain.FailureAuth {
		t.Errorf("expected true AUTH failure after exhaustion, got %s", reason)
	}
}

func TestColdStartNonAuthFailureIsNotRetried(t *testing.T) {
	intErr := domain.NewClassifiedError(domain.FailureInternal, errors.New("internal error"))
	session := &fakeSession{reconnectErrs: []error{intErr}}
	v, machine := newValidator(t, fastColdStart(5), session, tcpAlways(true))

	if err := v.Validate(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	_, reconnect, _ := session.calls()
	if reconnect != 1 {
		t.Errorf("non-AUTH cold start failures must not be retried, got %d attempts", reconnect)
	}
	if machine.State() != domain.ClientFailed {
		t.Errorf("expected FAILED, got %s", machine.State())
	}
}

func TestColdStartTCPTimeoutIsFatalNetwork(t *testing.T) {
	session := &fakeSession{}
	v, machine := newValidator(t, fastColdStart(5), session, tcpAlways(false))

	err := v.Validate(context.Background())
	if err == nil {
		t.Fatal("expected error for unreachable backend")
	}

	var ce *domain.ClassifiedError
	if !errors.As(err, &ce) || ce.Reason != domain.FailureNetwork {
		t.Errorf("expected classified NETWORK error, got %v", err)
	}
	_, reconnect, _ := session.calls()
	if reconnect != 0 {
		t.Error("no handshake may run without TCP reachability")
	}
	if machine.State() != domain.ClientFailed {
		t.Errorf("expected FAILED, got %s", machine.State())
	}
}
