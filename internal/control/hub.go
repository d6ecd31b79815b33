// Package control wires the resilience components into one runnable
// hub and exposes the queries consumers ask of it.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/duongvq/homelink/internal/core/config"
	"github.com/duongvq/homelink/internal/core/domain"
	"github.com/duongvq/homelink/internal/eventbus"
	"github.com/duongvq/homelink/internal/infra/journal"
	"github.com/duongvq/homelink/internal/infra/redisq"
	"github.com/duongvq/homelink/internal/infra/transport"
	"github.com/duongvq/homelink/internal/resilience/breaker"
	"github.com/duongvq/homelink/internal/resilience/classify"
	"github.com/duongvq/homelink/internal/resilience/health"
	"github.com/duongvq/homelink/internal/resilience/issues"
	"github.com/duongvq/homelink/internal/resilience/recovery"
	"github.com/duongvq/homelink/internal/resilience/state"
)

// managedInterface bundles everything the hub holds per configured
// backend interface.
type managedInterface struct {
	cfg     config.InterfaceConfig
	session *transport.GRPCSession
	machine *state.ClientMachine
	brk     *breaker.Breaker
	coord   *recovery.Coordinator
}

// Hub is the composition root. It owns the event bus, the per-interface
// clients with their breakers and coordinators, the aggregate state
// machine, and the diagnostics surface.
type Hub struct {
	cfg config.AppConfig
	log *slog.Logger

	bus          *eventbus.Bus
	registry     *issues.Registry
	central      *state.CentralMachine
	manager      *recovery.Manager
	healthServer *health.Server
	mirror       *redisq.Mirror
	journal      *journal.Journal

	mu     sync.RWMutex
	ifaces map[domain.InterfaceID]*managedInterface
	order  []domain.InterfaceID

	metricUnsubs []func()
}

// NewHub builds the hub from configuration. Optional sinks (Redis
// mirror, transition journal) degrade to disabled with a warning when
// their backend is unreachable; the resilience core never depends on
// them.
func NewHub(cfg config.AppConfig, log *slog.Logger) (*Hub, error) {
	if log == nil {
		log = slog.Default()
	}

	bus := eventbus.New(log)
	registry := issues.New(bus, log)
	central := state.NewCentralMachine(bus, log)
	manager := recovery.NewManager(bus, log)

	h := &Hub{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		registry: registry,
		central:  central,
		manager:  manager,
		ifaces:   make(map[domain.InterfaceID]*managedInterface),
	}

	breakerCfg := breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout.Std(),
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
	}
	recoveryCfg := recovery.Config{
		Cooldown:          cfg.Recovery.Cooldown.Std(),
		TCPTimeout:        cfg.Recovery.TCPTimeout.Std(),
		TCPInterval:       cfg.Recovery.TCPInterval.Std(),
		WarmupDelay:       cfg.Recovery.WarmupDelay.Std(),
		BackoffBase:       cfg.Recovery.BackoffBase.Std(),
		BackoffMax:        cfg.Recovery.BackoffMax.Std(),
		MaxAttempts:       cfg.Recovery.MaxAttempts,
		HeartbeatInterval: cfg.Recovery.HeartbeatInterval.Std(),
	}

	for _, ifaceCfg := range cfg.Interfaces {
		id := ifaceCfg.ID
		caps := ifaceCfg.CapabilityFlags()

		session := transport.NewGRPCSession(transport.Endpoint{
			Interface: id,
			Host:      ifaceCfg.Host,
			Port:      ifaceCfg.Port,
			Target:    ifaceCfg.Target,
		}, 10*time.Second, nil, log)

		machine := state.NewClientMachine(id, bus, log)
		central.Track(machine)

		brk := breaker.New(id, breakerCfg,
			breaker.WithIssueReporter(registry),
			breaker.WithOnChange(func(old, new domain.BreakerState) {
				bus.Publish(domain.NewEvent(
					domain.EventBreakerStateChanged,
					domain.PriorityNormal,
					domain.BreakerStateChange{Channel: id, Old: old, New: new},
				))
			}),
		)

		coord := recovery.NewCoordinator(
			id, ifaceCfg.Host, ifaceCfg.Port, caps,
			recoveryCfg, session, transport.TCPReady,
			machine, registry, bus, log,
		)
		manager.Register(coord)

		h.ifaces[id] = &managedInterface{
			cfg:     ifaceCfg,
			session: session,
			machine: machine,
			brk:     brk,
			coord:   coord,
		}
		h.order = append(h.order, id)
	}

	h.healthServer = health.NewServer(health.NewMonitor(h), cfg.Server.Port)

	if cfg.Redis.URL != "" {
		mirror, err := redisq.NewMirror(cfg.Redis, log)
		if err != nil {
			log.Warn("Failed to connect to Redis, event mirror disabled", "error", err)
		} else {
			h.mirror = mirror
		}
	}

	if cfg.Journal.URL != "" {
		jnl, err := journal.Open(context.Background(), cfg.Journal, log)
		if err != nil {
			log.Warn("Failed to open transition journal, disabled", "error", err)
		} else {
			h.journal = jnl
		}
	}

	h.wireMetrics()
	return h, nil
}

// Start brings the hub up: sinks and subscribers first so cold start
// transitions are observed, then connection validation for every
// interface, then the recovery manager and the diagnostics server.
func (h *Hub) Start(ctx context.Context) error {
	h.central.Start()
	if h.mirror != nil {
		h.mirror.Start(ctx, h.bus)
	}
	if h.journal != nil {
		h.journal.Start(ctx, h.bus)
	}

	// Interfaces validate concurrently; one failed interface does not
	// block the others, the aggregate state reflects it instead.
	var wg sync.WaitGroup
	for _, id := range h.order {
		m := h.ifaces[id]
		validator := recovery.NewColdStartValidator(
			id, m.cfg.Host, m.cfg.Port,
			recovery.ColdStartConfig{
				MaxAttempts: h.cfg.ColdStart.MaxAttempts,
				BackoffBase: h.cfg.ColdStart.BackoffBase.Std(),
				BackoffMax:  h.cfg.ColdStart.BackoffMax.Std(),
				TCPTimeout:  h.cfg.ColdStart.TCPTimeout.Std(),
			},
			m.session, transport.TCPReady, m.machine, h.log,
		)

		wg.Add(1)
		go func(id domain.InterfaceID) {
			defer wg.Done()
			if err := validator.Validate(ctx); err != nil {
				h.log.Error("Cold start validation failed", "interface", id, "error", err)
				if classify.Classify(err) == domain.FailureAuth {
					h.registry.AddIssue(id, domain.IssueAuthFailed)
				}
			}
		}(id)
	}
	wg.Wait()

	h.manager.Start(ctx)

	go func() {
		if err := h.healthServer.Start(); err != nil && ctx.Err() == nil {
			h.log.Error("Health server failed", "error", err)
		}
	}()

	h.log.Info("Hub started",
		"interfaces", len(h.order), "central_state", h.central.State())
	return nil
}

// Stop drives every client through the STOPPING path, halts recovery,
// and closes the sinks. Safe to call once after Start.
func (h *Hub) Stop(ctx context.Context) error {
	h.log.Info("Stopping hub")

	h.manager.Stop()

	h.mu.Lock()
	for _, id := range h.order {
		m := h.ifaces[id]
		if err := m.machine.TransitionTo(domain.ClientStopping, "shutdown", domain.FailureNone); err == nil {
			_ = m.machine.TransitionTo(domain.ClientStopped, "shutdown", domain.FailureNone)
		}
		if err := m.session.Close(); err != nil {
			h.log.Warn("Failed to close session", "interface", id, "error", err)
		}
	}
	h.mu.Unlock()

	h.central.Stop()

	for _, unsub := range h.metricUnsubs {
		unsub()
	}

	if h.mirror != nil {
		if err := h.mirror.Close(); err != nil {
			h.log.Warn("Failed to close Redis mirror", "error", err)
		}
	}
	if h.journal != nil {
		if err := h.journal.Close(); err != nil {
			h.log.Warn("Failed to close journal", "error", err)
		}
	}

	return h.healthServer.Stop(ctx)
}

// Execute runs one guarded RPC against an interface: the breaker gates
// admission, the outcome feeds back into it, and errors reach the
// caller already classified.
func (h *Hub) Execute(ctx context.Context, id domain.InterfaceID, fn func(ctx context.Context) error) error {
	m := h.lookup(id)
	if m == nil {
		return fmt.Errorf("unknown interface %q", id)
	}

	if !m.brk.Allow() {
		return breaker.ErrOpen
	}

	if err := fn(ctx); err != nil {
		m.brk.RecordFailure()
		return err
	}
	m.brk.RecordSuccess()
	return nil
}

// ReportConnectionLost marks an interface's connection as lost, which
// triggers staged recovery for it. Called by the inbound receiver when
// the backend goes silent.
func (h *Hub) ReportConnectionLost(id domain.InterfaceID) {
	h.registry.AddIssue(id, domain.IssueConnectionLost)
}

// ReportCallbackDead marks an interface's event callback channel as
// dead, which triggers recovery for it.
func (h *Hub) ReportCallbackDead(id domain.InterfaceID) {
	h.registry.AddIssue(id, domain.IssueCallbackDead)
}

// Bus exposes the event bus for consumer subscriptions.
func (h *Hub) Bus() *eventbus.Bus {
	return h.bus
}

// Journal returns the transition journal, or nil when disabled.
func (h *Hub) Journal() *journal.Journal {
	return h.journal
}

func (h *Hub) lookup(id domain.InterfaceID) *managedInterface {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ifaces[id]
}

// ====== health.Source ======

// CentralState returns the aggregate state.
func (h *Hub) CentralState() domain.CentralState {
	return h.central.State()
}

// CentralFailure returns the failure details behind a FAILED aggregate.
func (h *Hub) CentralFailure() (domain.FailureReason, domain.InterfaceID) {
	return h.central.FailureInfo()
}

// InterfaceIDs returns the configured interfaces in configuration
// order.
func (h *Hub) InterfaceIDs() []domain.InterfaceID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.InterfaceID, len(h.order))
	copy(out, h.order)
	return out
}

// ClientState returns the current state and failure reason of one
// client.
func (h *Hub) ClientState(id domain.InterfaceID) (domain.ClientState, domain.FailureReason) {
	m := h.lookup(id)
	if m == nil {
		return "", domain.FailureNone
	}
	reason, _ := m.machine.Failure()
	return m.machine.State(), reason
}

// BreakerState returns the current breaker state of one interface.
func (h *Hub) BreakerState(id domain.InterfaceID) domain.BreakerState {
	m := h.lookup(id)
	if m == nil {
		return ""
	}
	return m.brk.State()
}

// IsAvailable reports whether the interface accepts requests.
func (h *Hub) IsAvailable(id domain.InterfaceID) bool {
	m := h.lookup(id)
	return m != nil && m.machine.IsAvailable()
}

// CanReconnect reports whether recovery may be attempted for the
// interface.
func (h *Hub) CanReconnect(id domain.InterfaceID) bool {
	m := h.lookup(id)
	return m != nil && m.machine.CanReconnect()
}

// OpenIssues returns the currently open connection issues.
func (h *Hub) OpenIssues() []domain.Issue {
	return h.registry.Open()
}

// BreakersAllClosed reports whether every breaker is CLOSED.
func (h *Hub) BreakersAllClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.ifaces {
		if m.brk.State() != domain.BreakerClosed {
			return false
		}
	}
	return true
}
