// Package metrics exposes relay counters and gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taktrelay"

// Metrics holds the relay's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	connections prometheus.Gauge
	messages    *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	relayed     prometheus.Counter
	rateLimited prometheus.Counter
}

// New creates the collectors on a private Prometheus registry. registered
// reports the current number of registered client identifiers.
func New(registered func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Decoded inbound envelopes by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Inbound envelopes dropped, by reason.",
		}, []string{"kind"}),
		relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "takt_alerts_relayed_total",
			Help:      "Takt alerts delivered to a registered client.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Inbound frames discarded by the per-connection rate limit.",
		}),
	}

	m.registry.MustRegister(
		m.connections,
		m.messages,
		m.dropped,
		m.relayed,
		m.rateLimited,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_clients",
			Help:      "Client identifiers currently registered.",
		}, func() float64 {
			if registered == nil {
				return 0
			}
			return float64(registered())
		}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ConnectionOpened records a new websocket connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// ConnectionClosed records a websocket connection going away.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// MessageReceived counts a decoded envelope of the given type. Types the relay
// does not handle are folded into "unknown" to bound label cardinality.
func (m *Metrics) MessageReceived(msgType string, known bool) {
	if m == nil {
		return
	}
	if !known {
		msgType = "unknown"
	}
	m.messages.WithLabelValues(msgType).Inc()
}

// Dropped counts an envelope dropped for the given reason.
func (m *Metrics) Dropped(kind string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(kind).Inc()
}

// Relayed counts a delivered takt alert.
func (m *Metrics) Relayed() {
	if m == nil {
		return
	}
	m.relayed.Inc()
}

// RateLimited counts a frame discarded by the rate limiter.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
