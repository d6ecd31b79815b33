package health

import (
	"github.com/duongvq/homelink/internal/core/domain"
)

// Source is the read-only view of the hub the monitor reports on.
type Source interface {
	CentralState() domain.CentralState
	CentralFailure() (domain.FailureReason, domain.InterfaceID)
	InterfaceIDs() []domain.InterfaceID
	ClientState(id domain.InterfaceID) (domain.ClientState, domain.FailureReason)
	BreakerState(id domain.InterfaceID) domain.BreakerState
	IsAvailable(id domain.InterfaceID) bool
	OpenIssues() []domain.Issue
	BreakersAllClosed() bool
}

// Monitor builds health reports from a Source snapshot.
type Monitor struct {
	source Source
}

// NewMonitor creates a monitor over the given source.
func NewMonitor(source Source) *Monitor {
	return &Monitor{source: source}
}

// CheckHealth assembles the full report.
func (m *Monitor) CheckHealth() Report {
	central := m.source.CentralState()
	failure, failedOn := m.source.CentralFailure()
	issues := m.source.OpenIssues()

	byInterface := make(map[domain.InterfaceID][]domain.IssueKind)
	for _, issue := range issues {
		byInterface[issue.Interface] = append(byInterface[issue.Interface], issue.Kind)
	}

	report := Report{
		Status:       statusOf(central),
		CentralState: central,
		Failure:      failure,
		FailedOn:     failedOn,
		Interfaces:   make(map[string]InterfaceHealth),
		OpenIssues:   len(issues),
		AllClosed:    m.source.BreakersAllClosed(),
	}

	for _, id := range m.source.InterfaceIDs() {
		clientState, clientFailure := m.source.ClientState(id)
		report.Interfaces[string(id)] = InterfaceHealth{
			Interface:    id,
			ClientState:  clientState,
			BreakerState: m.source.BreakerState(id),
			Available:    m.source.IsAvailable(id),
			Failure:      clientFailure,
			Issues:       byInterface[id],
		}
	}

	return report
}
