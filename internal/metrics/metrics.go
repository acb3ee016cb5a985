// Package metrics exposes prometheus collectors for presence, fanout and
// message status transitions. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "duochat"

type Metrics struct {
	registry *prometheus.Registry

	onlineUsers  prometheus.Gauge
	connections  prometheus.Gauge
	messagesSent *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	deliveries   prometheus.Counter
	skipped      prometheus.Counter
}

// New builds a Metrics instance on its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Users with at least one live connection.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open websocket connections.",
		}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Persisted messages by initial status.",
		}, []string{"status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Applied message status transitions by target status.",
		}, []string{"to"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_deliveries_total",
			Help:      "Frames handed to a channel.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_skipped_total",
			Help:      "Frames skipped because the channel was gone or saturated.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.onlineUsers,
		m.connections,
		m.messagesSent,
		m.transitions,
		m.deliveries,
		m.skipped,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SetOnlineUsers(n int) {
	if m == nil {
		return
	}
	m.onlineUsers.Set(float64(n))
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) MessageSent(status string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(status).Inc()
}

func (m *Metrics) StatusTransitions(to string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.transitions.WithLabelValues(to).Add(float64(n))
}

func (m *Metrics) Fanout(delivered, skipped int) {
	if m == nil {
		return
	}
	if delivered > 0 {
		m.deliveries.Add(float64(delivered))
	}
	if skipped > 0 {
		m.skipped.Add(float64(skipped))
	}
}
