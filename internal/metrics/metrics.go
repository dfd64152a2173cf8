// Package metrics holds the Prometheus collectors for the miniaccounts
// server. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "miniaccounts"

// Handshake outcomes.
const (
	HandshakeAccepted    = "accepted"
	HandshakeRejected    = "rejected"
	HandshakeOrigin      = "origin_denied"
	HandshakeRateLimited = "rate_limited"
)

// Metrics bundles the server collectors with the registry they live in.
type Metrics struct {
	Registry *prometheus.Registry

	connections  prometheus.Gauge
	accounts     prometheus.Gauge
	handshakes   *prometheus.CounterVec
	packetsIn    *prometheus.CounterVec
	packetsOut   *prometheus.CounterVec
	rejects      *prometheus.CounterVec
	callDuration prometheus.Histogram
}

// New creates the collectors and registers them, together with the Go and
// process collectors, in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open client WebSocket connections.",
		}),
		accounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accounts",
			Help:      "Accounts with at least one open connection.",
		}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "WebSocket handshakes by outcome.",
		}, []string{"outcome"}),
		packetsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_in_total",
			Help:      "BTP frames received from clients by type.",
		}, []string{"type"}),
		packetsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_out_total",
			Help:      "ILP packets forwarded to clients by result.",
		}, []string{"result"}),
		rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejects_total",
			Help:      "ILP rejects generated locally by code.",
		}, []string{"code"}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "client_call_duration_seconds",
			Help:      "Time from sending a frame to a client until its reply.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.Registry.MustRegister(
		m.connections,
		m.accounts,
		m.handshakes,
		m.packetsIn,
		m.packetsOut,
		m.rejects,
		m.callDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetConnections(conns, accounts int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(conns))
	m.accounts.Set(float64(accounts))
}

func (m *Metrics) Handshake(outcome string) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PacketIn(typ string) {
	if m == nil {
		return
	}
	m.packetsIn.WithLabelValues(typ).Inc()
}

func (m *Metrics) PacketOut(result string) {
	if m == nil {
		return
	}
	m.packetsOut.WithLabelValues(result).Inc()
}

func (m *Metrics) Reject(code string) {
	if m == nil {
		return
	}
	m.rejects.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveCall(seconds float64) {
	if m == nil {
		return
	}
	m.callDuration.Observe(seconds)
}
