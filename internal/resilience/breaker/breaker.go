// Package breaker implements the per-channel request gate. A breaker
// counts consecutive failures, opens at a threshold, and probes for
// recovery after a timeout. Callers never retry an open rejection.
package breaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/duongvq/homelink/internal/core/domain"
)

// ErrOpen is the fast-fail returned while the breaker is OPEN. It
// already carries the CIRCUIT_BREAKER reason, so callers propagate it
// without re-classification.
var ErrOpen = domain.NewClassifiedError(
	domain.FailureCircuitBreaker,
	errors.New("circuit breaker is open"),
)

// Config controls breaker behavior.
type Config struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
	SuccessThreshold int           `yaml:"success_threshold"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = d.RecoveryTimeout
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	return c
}

// IssueReporter receives open/close notifications. The hub wires it to
// the central connection state.
type IssueReporter interface {
	AddIssue(id domain.InterfaceID, kind domain.IssueKind)
	RemoveIssue(id domain.InterfaceID, kind domain.IssueKind)
}

// Breaker is the tri-state gate for one logical request channel. State
// lives for the channel's lifetime and is mutated only by that
// channel's call sites.
type Breaker struct {
	channel domain.InterfaceID
	cfg     Config

	mu            sync.Mutex
	state         domain.BreakerState
	failures      int
	successes     int
	probeInFlight bool
	probeStarted  time.Time
	changedAt     time.Time

	now      func() time.Time
	reporter IssueReporter
	onChange func(old, new domain.BreakerState)
	log      *slog.Logger
}

// Option customizes a Breaker.
type Option func(*Breaker)

// WithIssueReporter wires open/close reporting to reg.
func WithIssueReporter(reg IssueReporter) Option {
	return func(b *Breaker) { b.reporter = reg }
}

// WithOnChange registers a transition callback, invoked after the
// state has changed.
func WithOnChange(fn func(old, new domain.BreakerState)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New creates a CLOSED breaker for the given channel.
func New(channel domain.InterfaceID, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		channel: channel,
		cfg:     cfg.withDefaults(),
		state:   domain.BreakerClosed,
		now:     time.Now,
		log:     slog.Default(),
	}
	b.changedAt = b.now()
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a request may proceed. While OPEN it returns
// false until the recovery timeout has elapsed, at which point the
// breaker moves to HALF_OPEN and grants one probe slot.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case domain.BreakerClosed:
		return true
	case domain.BreakerOpen:
		if b.now().Sub(b.changedAt) >= b.cfg.RecoveryTimeout {
			b.transition(domain.BreakerHalfOpen)
			b.probeInFlight = true
			b.probeStarted = b.now()
			return true
		}
		return false
	case domain.BreakerHalfOpen:
		// A probe whose outcome was never recorded (the caller
		// panicked or was lost) expires after the recovery timeout so
		// the slot cannot stay occupied forever.
		if !b.probeInFlight || b.now().Sub(b.probeStarted) >= b.cfg.RecoveryTimeout {
			b.probeInFlight = true
			b.probeStarted = b.now()
			return true
		}
		return false
	}
	return false
}

// RecordSuccess notes a successful call on this channel.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case domain.BreakerClosed:
		b.failures = 0
	case domain.BreakerHalfOpen:
		b.probeInFlight = false
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(domain.BreakerClosed)
		}
	}
}

// RecordFailure notes a failed call on this channel. Consecutive
// failures from CLOSED trip the breaker; any HALF_OPEN failure reopens
// it immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case domain.BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(domain.BreakerOpen)
		}
	case domain.BreakerHalfOpen:
		b.probeInFlight = false
		b.transition(domain.BreakerOpen)
	}
}

// State returns the current breaker state. Read-only diagnostics.
func (b *Breaker) State() domain.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Channel returns the channel this breaker guards.
func (b *Breaker) Channel() domain.InterfaceID {
	return b.channel
}

// transition must be called with the lock held.
func (b *Breaker) transition(target domain.BreakerState) {
	old := b.state
	if old == target {
		return
	}
	b.state = target
	b.changedAt = b.now()
	b.failures = 0
	b.successes = 0

	b.log.Debug("Circuit breaker transition",
		"channel", b.channel, "from", old, "to", target)

	if b.reporter != nil {
		switch {
		case target == domain.BreakerOpen && old == domain.BreakerClosed:
			b.reporter.AddIssue(b.channel, domain.IssueBreakerOpen)
		case target == domain.BreakerClosed:
			b.reporter.RemoveIssue(b.channel, domain.IssueBreakerOpen)
		}
	}
	if b.onChange != nil {
		b.onChange(old, target)
	}
}
