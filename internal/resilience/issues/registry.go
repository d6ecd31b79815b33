// Package issues tracks open (interface, kind) health problems and
// suppresses duplicate notifications.
package issues

import (
	"log/slog"
	"sync"

	"github.com/duongvq/homelink/internal/core/domain"
)

// Publisher is the slice of the event bus the registry needs.
type Publisher interface {
	Publish(domain.Event)
}

// Callback fires on actual issue-set transitions. connected is false
// when the issue was added and true when it was removed.
type Callback func(id domain.InterfaceID, kind domain.IssueKind, connected bool)

// Registry is the central connection state: a de-duplicated open-issue
// set. Re-adding an open issue and removing an absent issue are no-ops
// for notification purposes.
type Registry struct {
	mu        sync.Mutex
	open      map[domain.Issue]struct{}
	callbacks []Callback
	bus       Publisher
	log       *slog.Logger
}

// New creates an empty registry. bus may be nil when no event mirror is
// wanted (tests).
func New(bus Publisher, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		open: make(map[domain.Issue]struct{}),
		bus:  bus,
		log:  log,
	}
}

// OnChange registers a state-change callback. Callbacks fire only on
// actual set transitions.
func (r *Registry) OnChange(cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// AddIssue records an open issue. A duplicate add is silent.
func (r *Registry) AddIssue(id domain.InterfaceID, kind domain.IssueKind) {
	key := domain.Issue{Interface: id, Kind: kind}

	r.mu.Lock()
	if _, exists := r.open[key]; exists {
		r.mu.Unlock()
		return
	}
	r.open[key] = struct{}{}
	callbacks := append([]Callback(nil), r.callbacks...)
	r.mu.Unlock()

	r.log.Warn("Connection issue opened", "interface", id, "kind", kind)
	r.notify(callbacks, key, false)
}

// RemoveIssue clears an open issue. Removing an absent issue is silent.
func (r *Registry) RemoveIssue(id domain.InterfaceID, kind domain.IssueKind) {
	key := domain.Issue{Interface: id, Kind: kind}

	r.mu.Lock()
	if _, exists := r.open[key]; !exists {
		r.mu.Unlock()
		return
	}
	delete(r.open, key)
	callbacks := append([]Callback(nil), r.callbacks...)
	r.mu.Unlock()

	r.log.Info("Connection issue cleared", "interface", id, "kind", kind)
	r.notify(callbacks, key, true)
}

// HasIssue reports whether the given issue is currently open.
func (r *Registry) HasIssue(id domain.InterfaceID, kind domain.IssueKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.open[domain.Issue{Interface: id, Kind: kind}]
	return ok
}

// Open returns a snapshot of all open issues.
func (r *Registry) Open() []domain.Issue {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Issue, 0, len(r.open))
	for issue := range r.open {
		out = append(out, issue)
	}
	return out
}

func (r *Registry) notify(callbacks []Callback, issue domain.Issue, connected bool) {
	for _, cb := range callbacks {
		cb(issue.Interface, issue.Kind, connected)
	}
	if r.bus != nil {
		r.bus.Publish(domain.NewEvent(
			domain.EventConnectionChanged,
			domain.PriorityHigh,
			domain.ConnectionChange{
				Interface: issue.Interface,
				Kind:      issue.Kind,
				Connected: connected,
			},
		))
	}
}
