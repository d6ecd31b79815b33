package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/duongvq/homelink/internal/core/domain"
	"github.com/duongvq/homelink/internal/eventbus"
	"github.com/duongvq/homelink/internal/resilience/state"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeSession struct {
	mu             sync.Mutex
	probeErrs      []error
	reconnectErrs  []error
	reloadErrs     []error
	probeCalls     int
	reconnectCalls int
	reloadCalls    int
}

func pop(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (s *fakeSession) Probe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probeCalls++
	return pop(&s.probeErrs)
}

func (s *fakeSession) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnectCalls++
	return pop(&s.reconnectErrs)
}

func (s *fakeSession) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadCalls++
	return pop(&s.reloadErrs)
}

func (s *fakeSession) calls() (probe, reconnect, reload int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probeCalls, s.reconnectCalls, s.reloadCalls
}

type fakeIssues struct {
	mu      sync.Mutex
	removed []domain.Issue
}

func (f *fakeIssues) AddIssue(id domain.InterfaceID, kind domain.IssueKind) {}

func (f *fakeIssues) RemoveIssue(id domain.InterfaceID, kind domain.IssueKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, domain.Issue{Interface: id, Kind: kind})
}

func tcpAlways(ok bool) TCPProbe {
	return func(context.Context, string, int, time.Duration) bool { return ok }
}

func fastConfig(maxAttempts int) Config {
	return Config{
		Cooldown:          time.Millisecond,
		TCPTimeout:        5 * time.Millisecond,
		TCPInterval:       time.Millisecond,
		WarmupDelay:       time.Millisecond,
		BackoffBase:       time.Millisecond,
		BackoffMax:        4 * time.Millisecond,
		MaxAttempts:       maxAttempts,
		HeartbeatInterval: time.Millisecond,
	}
}

func connectedMachine(t *testing.T, bus *eventbus.Bus) *state.ClientMachine {
	t.Helper()
	m := state.NewClientMachine("IF1", bus, nil)
	steps := []domain.ClientState{
		domain.ClientInitializing, domain.ClientInitialized,
		domain.ClientConnecting, domain.ClientConnected,
	}
	for _, s := range steps {
		if err := m.TransitionTo(s, "setup", domain.FailureNone); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func newCoordinator(
	t *testing.T,
	cfg Config,
	session Session,
	tcp TCPProbe,
	caps domain.Capability,
) (*Coordinator, *state.ClientMachine, *fakeIssues, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New(nil)
	machine := connectedMachine(t, bus)
	reg := &fakeIssues{}
	coord := NewCoordinator("IF1", "ccu.local", 2010, caps, cfg, session, tcp, machine, reg, bus, nil)
	return coord, machine, reg, bus
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// =============================================================================
// Tests
// =============================================================================

func TestRecoverRunsFullStageSequence(t *testing.T) {
	session := &fakeSession{}
	coord, machine, reg, bus := newCoordinator(t, fastConfig(3), session, tcpAlways(true), domain.CapProbe|domain.CapReload)

	var mu sync.Mutex
	var stages []domain.RecoveryStage
	bus.Subscribe(domain.EventRecoveryProgress, func(ev domain.Event) {
		mu.Lock()
		defer mu.Unlock()
		stages = append(stages, ev.Payload.(domain.RecoveryProgress).Stage)
	}, domain.PriorityNormal)

	coord.Recover(context.Background(), domain.FailureNetwork)

	if got := machine.State(); got != domain.ClientConnected {
		t.Fatalf("expected CONNECTED after recovery, got %s", got)
	}

	want := []domain.RecoveryStage{
		domain.StageDetecting,
		domain.StageCooldown,
		domain.StageTCPChecking,
		domain.StageRPCChecking,
		domain.StageWarmingUp,
		domain.StageStabilityCheck,
		domain.StageReconnecting,
		domain.StageDataLoading,
		domain.StageRecovered,
	}
	mu.Lock()
	defer mu.Unlock()
	if len(stages) != len(want) {
		t.Fatalf("expected stages %v, got %v", want, stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage %d: expected %s, got %s", i, want[i], stages[i])
		}
	}

	probe, reconnect, reload := session.calls()
	if probe != 2 || reconnect != 1 || reload != 1 {
		t.Errorf("unexpected call counts: probe=%d reconnect=%d reload=%d", probe, reconnect, reload)
	}
	if len(reg.removed) != 2 || reg.removed[0].Kind != domain.IssueConnectionLost || reg.removed[1].Kind != domain.IssueAuthFailed {
		t.Errorf("expected connection_lost and auth_failed issue removals, got %v", reg.removed)
	}
}

func TestRecoverySkipsClientStillStartingUp(t *testing.T) {
	session := &fakeSession{}
	bus := eventbus.New(nil)
	machine := state.NewClientMachine("IF1", bus, nil)
	if err := machine.TransitionTo(domain.ClientInitializing, "setup", domain.FailureNone); err != nil {
		t.Fatal(err)
	}
	reg := &fakeIssues{}
	coord := NewCoordinator("IF1", "ccu.local", 2010, domain.CapProbe,
		fastConfig(8), session, tcpAlways(true), machine, reg, bus, nil)

	coord.Recover(context.Background(), domain.FailureNetwork)

	if got := machine.State(); got != domain.ClientInitializing {
		t.Fatalf("expected INITIALIZING to be untouched, got %s", got)
	}
	probe, reconnect, _ := session.calls()
	if probe != 0 || reconnect != 0 {
		t.Errorf("startup-state client must not be driven through recovery, probe=%d reconnect=%d", probe, reconnect)
	}
}

func TestSteadyStateAuthFailureIsNotRetried(t *testing.T) {
	authErr := domain.NewClassifiedError(domain.FailureAuth, errors.New("unauthorized"))
	session := &fakeSession{probeErrs: []error{authErr}}
	coord, machine, _, _ := newCoordinator(t, fastConfig(8), session, tcpAlways(true), domain.CapProbe)

	coord.Recover(context.Background(), domain.FailureNetwork)

	if got := machine.State(); got != domain.ClientFailed {
		t.Fatalf("expected FAILED, got %s", got)
	}
	probe, _, _ := session.calls()
	if probe != 1 {
		t.Errorf("AUTH during RPC_CHECKING must not be retried, probe called %d times", probe)
	}
	reason, _ := machine.Failure()
	if reason != domain.FailureAuth {
		t.Errorf("expected AUTH failure recorded, got %s", reason)
	}
}

func TestBudgetExhaustionThenHeartbeatRecovery(t *testing.T) {
	netErr := domain.NewClassifiedError(domain.FailureNetwork, errors.New("connection refused"))
	// Two failed cycles exhaust the budget; the heartbeat probe then
	// succeeds and drives the restart path.
	session := &fakeSession{probeErrs: []error{netErr, netErr}}
	coord, machine, _, _ := newCoordinator(t, fastConfig(2), session, tcpAlways(true), domain.CapProbe)

	coord.Recover(context.Background(), domain.FailureNetwork)

	if got := machine.State(); got != domain.ClientConnected {
		t.Fatalf("expected CONNECTED after heartbeat restart, got %s", got)
	}
	_, reconnect, _ := session.calls()
	if reconnect != 1 {
		t.Errorf("expected one reconnect during restart, got %d", reconnect)
	}
}

func TestTCPFailureIsFatalForAttemptWithoutProbing(t *testing.T) {
	session := &fakeSession{}
	coord, machine, _, _ := newCoordinator(t, fastConfig(1), session, tcpAlways(false), domain.CapProbe)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		coord.Recover(ctx, domain.FailureNetwork)
	}()

	waitFor(t, time.Second, func() bool {
		return machine.State() == domain.ClientFailed
	})
	cancel()
	<-done

	probe, _, _ := session.calls()
	if probe != 0 {
		t.Error("no RPC probe may run without confirmed TCP reachability")
	}
	reason, _ := machine.Failure()
	if reason != domain.FailureNetwork {
		t.Errorf("expected NETWORK failure, got %s", reason)
	}
}

func TestCancellationStopsRecoveryCleanly(t *testing.T) {
	cfg := fastConfig(8)
	cfg.Cooldown = time.Minute // cancel lands inside the cooldown
	session := &fakeSession{}
	coord, machine, _, _ := newCoordinator(t, cfg, session, tcpAlways(true), domain.CapProbe)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		coord.Recover(ctx, domain.FailureNetwork)
	}()

	waitFor(t, time.Second, func() bool { return coord.Running() })
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("recovery did not stop on cancellation")
	}

	// Shutdown can now drive the machine to STOPPING without fighting
	// a dangling run.
	if err := machine.TransitionTo(domain.ClientStopping, "shutdown", domain.FailureNone); err != nil {
		t.Errorf("expected STOPPING to be reachable after cancel: %v", err)
	}
}

func TestConcurrentTriggersAreAbsorbed(t *testing.T) {
	cfg := fastConfig(8)
	cfg.Cooldown = 100 * time.Millisecond
	session := &fakeSession{}
	coord, _, _, _ := newCoordinator(t, cfg, session, tcpAlways(true), domain.CapProbe)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coord.Recover(ctx, domain.FailureNetwork)
		}()
	}
	wg.Wait()

	_, reconnect, _ := session.calls()
	if reconnect != 1 {
		t.Errorf("expected a single recovery run, got %d reconnects", reconnect)
	}
}
