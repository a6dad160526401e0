// Package metrics exports the broker's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/helixagent/eventbroker/internal/breaker"
)

// Metrics bundles the instruments the publish and streaming cores update.
type Metrics struct {
	// Consumers is the number of open streaming connections per event type.
	Consumers *prometheus.GaugeVec
	// EventsPublished is labelled by topic and final publishing status. It is
	// registered but nothing in the publish path increments it.
	EventsPublished *prometheus.CounterVec
	// BreakerState reports each broker's circuit breaker state (0 closed,
	// 1 half-open, 2 open).
	BreakerState *prometheus.GaugeVec
}

// New registers the broker's instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Consumers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "eventbroker",
			Name:      "consumers",
			Help:      "Open streaming connections per event type.",
		}, []string{"event_type"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventbroker",
			Name:      "events_published_total",
			Help:      "Batch items by final publishing status.",
		}, []string{"topic", "status"}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "eventbroker",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per broker id (0 closed, 1 half-open, 2 open).",
		}, []string{"broker_id"}),
	}
}

// ObserveBreakers refreshes the breaker-state gauge from a registry
// snapshot.
func (m *Metrics) ObserveBreakers(states map[string]breaker.State) {
	for id, state := range states {
		var v float64
		switch state {
		case breaker.StateHalfOpen:
			v = 1
		case breaker.StateOpen:
			v = 2
		}
		m.BreakerState.WithLabelValues(id).Set(v)
	}
}
