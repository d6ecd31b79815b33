package breaker

import (
	"testing"
	"time"

	"github.com/duongvq/homelink/internal/core/domain"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeReporter struct {
	added   []domain.Issue
	removed []domain.Issue
}

func (r *fakeReporter) AddIssue(id domain.InterfaceID, kind domain.IssueKind) {
	r.added = append(r.added, domain.Issue{Interface: id, Kind: kind})
}

func (r *fakeReporter) RemoveIssue(id domain.InterfaceID, kind domain.IssueKind) {
	r.removed = append(r.removed, domain.Issue{Interface: id, Kind: kind})
}

func newTestBreaker(cfg Config) (*Breaker, *fakeClock, *fakeReporter) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	reporter := &fakeReporter{}
	b := New("IF1", cfg, WithClock(clock.now), WithIssueReporter(reporter))
	return b, clock, reporter
}

// =============================================================================
// Tests
// =============================================================================

func TestOpensAtFailureThreshold(t *testing.T) {
	b, _, reporter := newTestBreaker(Config{FailureThreshold: 5})

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		if b.State() != domain.BreakerClosed {
			t.Fatalf("breaker opened after %d failures", i+1)
		}
	}
	b.RecordFailure()

	if b.State() != domain.BreakerOpen {
		t.Fatal("expected OPEN after threshold failures")
	}
	if b.Allow() {
		t.Error("OPEN breaker must reject requests")
	}
	if len(reporter.added) != 1 || reporter.added[0].Kind != domain.IssueBreakerOpen {
		t.Errorf("expected one breaker_open issue, got %v", reporter.added)
	}
}

func TestSuccessResetsConsecutiveCount(t *testing.T) {
	b, _, _ := newTestBreaker(Config{FailureThreshold: 3})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if b.State() != domain.BreakerClosed {
		t.Error("non-consecutive failures must not trip the breaker")
	}
}

func TestHalfOpenProbeAfterRecoveryTimeout(t *testing.T) {
	b, clock, _ := newTestBreaker(Config{FailureThreshold: 1, RecoveryTimeout: 30 * time.Second})

	b.RecordFailure()
	if b.Allow() {
		t.Fatal("expected rejection right after opening")
	}

	clock.advance(29 * time.Second)
	if b.Allow() {
		t.Fatal("expected rejection before recovery timeout")
	}

	clock.advance(1 * time.Second)
	if !b.Allow() {
		t.Fatal("expected one probe slot after recovery timeout")
	}
	if b.State() != domain.BreakerHalfOpen {
		t.Fatalf("expected HALF_OPEN, got %s", b.State())
	}
	if b.Allow() {
		t.Error("second probe must wait for the first to finish")
	}
}

func TestAbandonedProbeSlotExpires(t *testing.T) {
	b, clock, _ := newTestBreaker(Config{FailureThreshold: 1, RecoveryTimeout: 30 * time.Second})

	b.RecordFailure()
	clock.advance(30 * time.Second)
	if !b.Allow() {
		t.Fatal("expected probe slot after recovery timeout")
	}

	// The probe's outcome is never recorded. The slot stays occupied
	// for one recovery timeout, then a new probe is admitted.
	if b.Allow() {
		t.Fatal("expected rejection while probe is in flight")
	}
	clock.advance(29 * time.Second)
	if b.Allow() {
		t.Fatal("expected rejection before the probe slot expires")
	}
	clock.advance(1 * time.Second)
	if !b.Allow() {
		t.Fatal("expected a fresh probe slot after the stale one expired")
	}
	if b.State() != domain.BreakerHalfOpen {
		t.Fatalf("expected HALF_OPEN, got %s", b.State())
	}
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	b, clock, reporter := newTestBreaker(Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Second,
		SuccessThreshold: 2,
	})

	b.RecordFailure()
	clock.advance(time.Second)

	if !b.Allow() {
		t.Fatal("expected probe slot")
	}
	b.RecordSuccess()
	if b.State() != domain.BreakerHalfOpen {
		t.Fatal("one success must not close the breaker yet")
	}

	if !b.Allow() {
		t.Fatal("expected second probe slot after first success")
	}
	b.RecordSuccess()
	if b.State() != domain.BreakerClosed {
		t.Fatal("expected CLOSED after success threshold")
	}
	if len(reporter.removed) != 1 {
		t.Errorf("expected breaker_open issue removal, got %v", reporter.removed)
	}
}

func TestHalfOpenFailureReopensImmediately(t *testing.T) {
	b, clock, _ := newTestBreaker(Config{FailureThreshold: 1, RecoveryTimeout: time.Second})

	b.RecordFailure()
	clock.advance(time.Second)
	if !b.Allow() {
		t.Fatal("expected probe slot")
	}

	b.RecordFailure()
	if b.State() != domain.BreakerOpen {
		t.Fatal("expected OPEN after half-open failure")
	}
	if b.Allow() {
		t.Error("expected rejection after reopening")
	}
}

func TestOnChangeCallback(t *testing.T) {
	var transitions [][2]domain.BreakerState
	b := New("IF1", Config{FailureThreshold: 1},
		WithOnChange(func(old, new domain.BreakerState) {
			transitions = append(transitions, [2]domain.BreakerState{old, new})
		}),
	)

	b.RecordFailure()

	if len(transitions) != 1 ||
		transitions[0][0] != domain.BreakerClosed ||
		transitions[0][1] != domain.BreakerOpen {
		t.Errorf("unexpected transitions: %v", transitions)
	}
}
