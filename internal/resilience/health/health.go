// Package health provides aggregate status reporting and the HTTP
// diagnostics surface.
package health

import "github.com/duongvq/homelink/internal/core/domain"

// SystemStatus represents the overall health of the system or one
// interface.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
	StatusStopped  SystemStatus = "stopped"
)

// InterfaceHealth contains health details for one interface.
type InterfaceHealth struct {
	Interface    domain.InterfaceID   `json:"interface"`
	ClientState  domain.ClientState   `json:"client_state"`
	BreakerState domain.BreakerState  `json:"breaker_state"`
	Available    bool                 `json:"available"`
	Failure      domain.FailureReason `json:"failure,omitempty"`
	Issues       []domain.IssueKind   `json:"issues,omitempty"`
}

// Report is the full health report served by the diagnostics endpoint.
type Report struct {
	Status       SystemStatus               `json:"status"`
	CentralState domain.CentralState        `json:"central_state"`
	Failure      domain.FailureReason       `json:"failure,omitempty"`
	FailedOn     domain.InterfaceID         `json:"failed_interface,omitempty"`
	Interfaces   map[string]InterfaceHealth `json:"interfaces"`
	OpenIssues   int                        `json:"open_issues"`
	AllClosed    bool                       `json:"breakers_all_closed"`
}

// statusOf maps the aggregate central state onto the coarse system
// status.
func statusOf(s domain.CentralState) SystemStatus {
	switch s {
	case domain.CentralRunning:
		return StatusHealthy
	case domain.CentralFailed:
		return StatusCritical
	case domain.CentralStopped:
		return StatusStopped
	default:
		return StatusDegraded
	}
}
