package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/duongvq/homelink/internal/core/config"
	"github.com/duongvq/homelink/internal/core/domain"
	"github.com/duongvq/homelink/internal/resilience/breaker"
)

// testConfig points at a port nothing listens on so cold start fails
// fast and deterministically.
func testConfig() config.AppConfig {
	return config.AppConfig{
		Server: config.ServerConfig{Port: 0},
		Interfaces: []config.InterfaceConfig{
			{
				ID:           "hmip",
				Host:         "127.0.0.1",
				Port:         1,
				Target:       "127.0.0.1:1",
				Capabilities: []string{"probe"},
			},
		},
		Breaker: config.BreakerConfig{
			FailureThreshold: 2,
			RecoveryTimeout:  config.Duration(time.Minute),
			SuccessThreshold: 1,
		},
		ColdStart: config.ColdStartConfig{
			MaxAttempts: 1,
			BackoffBase: config.Duration(time.Millisecond),
			BackoffMax:  config.Duration(time.Millisecond),
			TCPTimeout:  config.Duration(50 * time.Millisecond),
		},
	}
}

func TestHubColdStartFailureIsReflected(t *testing.T) {
	hub, err := NewHub(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewHub failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := hub.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer hub.Stop(context.Background())

	clientState, failure := hub.ClientState("hmip")
	if clientState != domain.ClientFailed {
		t.Errorf("Expected client state FAILED, got %s", clientState)
	}
	if failure != domain.FailureNetwork {
		t.Errorf("Expected failure NETWORK, got %s", failure)
	}
	if hub.CentralState() != domain.CentralFailed {
		t.Errorf("Expected central state FAILED, got %s", hub.CentralState())
	}
	if hub.IsAvailable("hmip") {
		t.Error("Expected interface to be unavailable")
	}
}

func TestHubExecuteFeedsBreaker(t *testing.T) {
	hub, err := NewHub(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewHub failed: %v", err)
	}

	boom := errors.New("backend exploded")
	fail := func(ctx context.Context) error { return boom }

	// Threshold is 2; the third call must be rejected by the breaker.
	for i := 0; i < 2; i++ {
		if err := hub.Execute(context.Background(), "hmip", fail); !errors.Is(err, boom) {
			t.Fatalf("Expected backend error, got %v", err)
		}
	}
	if hub.BreakerState("hmip") != domain.BreakerOpen {
		t.Fatalf("Expected breaker OPEN, got %s", hub.BreakerState("hmip"))
	}
	if err := hub.Execute(context.Background(), "hmip", fail); !errors.Is(err, breaker.ErrOpen) {
		t.Errorf("Expected ErrOpen, got %v", err)
	}
	if hub.BreakersAllClosed() {
		t.Error("Expected BreakersAllClosed to report false")
	}
}

func TestHubExecuteUnknownInterface(t *testing.T) {
	hub, err := NewHub(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewHub failed: %v", err)
	}

	err = hub.Execute(context.Background(), "nope", func(ctx context.Context) error { return nil })
	if err == nil {
		t.Fatal("Expected error for unknown interface")
	}
}

func TestHubConnectionLostOpensIssue(t *testing.T) {
	hub, err := NewHub(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewHub failed: %v", err)
	}

	hub.ReportConnectionLost("hmip")

	issues := hub.OpenIssues()
	if len(issues) != 1 {
		t.Fatalf("Expected 1 open issue, got %d", len(issues))
	}
	if issues[0].Kind != domain.IssueConnectionLost {
		t.Errorf("Expected connection_lost issue, got %s", issues[0].Kind)
	}
}

func TestHubCallbackDeadOpensIssue(t *testing.T) {
	hub, err := NewHub(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewHub failed: %v", err)
	}

	hub.ReportCallbackDead("hmip")

	issues := hub.OpenIssues()
	if len(issues) != 1 {
		t.Fatalf("Expected 1 open issue, got %d", len(issues))
	}
	if issues[0].Kind != domain.IssueCallbackDead {
		t.Errorf("Expected callback_dead issue, got %s", issues[0].Kind)
	}
}

func TestHubStopWalksShutdownPath(t *testing.T) {
	hub, err := NewHub(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewHub failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	if err := hub.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	clientState, _ := hub.ClientState("hmip")
	if clientState != domain.ClientStopped {
		t.Errorf("Expected client state STOPPED, got %s", clientState)
	}
	if hub.CentralState() != domain.CentralStopped {
		t.Errorf("Expected central state STOPPED, got %s", hub.CentralState())
	}
}
