package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClientTransitions tracks client state machine transitions.
	ClientTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homelink_client_transitions_total",
			Help: "Total number of client state transitions",
		},
		[]string{"interface", "from", "to"},
	)

	// BreakerTrips tracks circuit breaker openings per channel.
	BreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homelink_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"channel"},
	)

	// BreakerState exposes the current breaker state per channel
	// (0=CLOSED, 1=HALF_OPEN, 2=OPEN).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "homelink_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"channel"},
	)

	// RecoveryStages tracks recovery stage entries per interface.
	RecoveryStages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homelink_recovery_stages_total",
			Help: "Total number of recovery stage entries",
		},
		[]string{"interface", "stage"},
	)

	// OpenIssues exposes the number of currently open connection
	// issues.
	OpenIssues = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "homelink_open_issues",
			Help: "Number of currently open connection issues",
		},
	)

	// EventsPublished tracks bus traffic by event type.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homelink_events_published_total",
			Help: "Total number of events published on the bus",
		},
		[]string{"type"},
	)
)
