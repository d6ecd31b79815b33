package control

import (
	"github.com/duongvq/homelink/internal/core/domain"
	"github.com/duongvq/homelink/internal/resilience/metrics"
)

// breakerStateValue maps breaker states onto the gauge encoding.
func breakerStateValue(s domain.BreakerState) float64 {
	switch s {
	case domain.BreakerHalfOpen:
		return 1
	case domain.BreakerOpen:
		return 2
	default:
		return 0
	}
}

// wireMetrics subscribes the Prometheus collectors to the bus. All
// subscriptions run at low priority so instrumentation never delays
// reactive handlers.
func (h *Hub) wireMetrics() {
	allTypes := []domain.EventType{
		domain.EventClientStateChanged,
		domain.EventCentralStateChanged,
		domain.EventConnectionChanged,
		domain.EventBreakerStateChanged,
		domain.EventRecoveryProgress,
	}
	for _, t := range allTypes {
		h.metricUnsubs = append(h.metricUnsubs, h.bus.Subscribe(t, func(ev domain.Event) {
			metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()
		}, domain.PriorityLow))
	}

	h.metricUnsubs = append(h.metricUnsubs,
		h.bus.Subscribe(domain.EventClientStateChanged, func(ev domain.Event) {
			change, ok := ev.Payload.(domain.ClientStateChange)
			if !ok {
				return
			}
			metrics.ClientTransitions.WithLabelValues(
				string(change.Interface), string(change.Old), string(change.New),
			).Inc()
		}, domain.PriorityLow),

		h.bus.Subscribe(domain.EventBreakerStateChanged, func(ev domain.Event) {
			change, ok := ev.Payload.(domain.BreakerStateChange)
			if !ok {
				return
			}
			metrics.BreakerState.WithLabelValues(string(change.Channel)).Set(breakerStateValue(change.New))
			if change.New == domain.BreakerOpen {
				metrics.BreakerTrips.WithLabelValues(string(change.Channel)).Inc()
			}
		}, domain.PriorityLow),

		h.bus.Subscribe(domain.EventRecoveryProgress, func(ev domain.Event) {
			progress, ok := ev.Payload.(domain.RecoveryProgress)
			if !ok {
				return
			}
			metrics.RecoveryStages.WithLabelValues(
				string(progress.Interface), string(progress.Stage),
			).Inc()
		}, domain.PriorityLow),

		h.bus.Subscribe(domain.EventConnectionChanged, func(ev domain.Event) {
			metrics.OpenIssues.Set(float64(len(h.registry.Open())))
		}, domain.PriorityLow),
	)
}
