// Package metrics holds the Prometheus collectors for the signaling
// coordinator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	messagesTotal   *prometheus.CounterVec
	framesDropped   prometheus.Counter
	relayErrors     prometheus.Counter
	connectionsOpen prometheus.Gauge
	roomsActive     prometheus.Gauge
	sessionsActive  prometheus.Gauge
}

// New creates and registers the coordinator collectors on a private
// registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	messagesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_messages_total",
		Help: "Inbound signaling messages by type",
	}, []string{"type"})
	framesDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signaling_frames_dropped_total",
		Help: "Outbound frames skipped because the connection was closed or backpressured",
	})
	relayErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signaling_relay_errors_total",
		Help: "Internal relay failures (e.g. outbound marshal errors)",
	})
	connectionsOpen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_connections_open",
		Help: "Currently registered transport connections",
	})
	roomsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_rooms_active",
		Help: "Rooms with at least one member",
	})
	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_sessions_active",
		Help: "Active streaming sessions",
	})

	registry.MustRegister(
		messagesTotal,
		framesDropped,
		relayErrors,
		connectionsOpen,
		roomsActive,
		sessionsActive,
	)

	return &Metrics{
		registry:        registry,
		messagesTotal:   messagesTotal,
		framesDropped:   framesDropped,
		relayErrors:     relayErrors,
		connectionsOpen: connectionsOpen,
		roomsActive:     roomsActive,
		sessionsActive:  sessionsActive,
	}
}

// IncMessage counts one inbound message of the given type.
func (m *Metrics) IncMessage(msgType string) {
	m.messagesTotal.WithLabelValues(msgType).Inc()
}

func (m *Metrics) IncFramesDropped() {
	m.framesDropped.Inc()
}

func (m *Metrics) IncRelayErrors() {
	m.relayErrors.Inc()
}

// SetRegistrySizes refreshes the gauges, typically right before a scrape.
func (m *Metrics) SetRegistrySizes(conns, rooms, sessions int) {
	m.connectionsOpen.Set(float64(conns))
	m.roomsActive.Set(float64(rooms))
	m.sessionsActive.Set(float64(sessions))
}

// Handler returns the scrape endpoint. updateGauges is called before
// each scrape to refresh gauge values from the live registries.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
