// Package metrics exposes relay counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the relay's collectors. A nil *Metrics is valid and records
// nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	reg *prometheus.Registry

	connections prometheus.Gauge
	messages    *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	dropped     prometheus.Counter
	reaped      prometheus.Counter
}

// New registers the relay collectors on a fresh registry. roomCount and
// participantCount back gauges evaluated at scrape time.
func New(roomCount, participantCount func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wavy",
			Name:      "connections_active",
			Help:      "Open relay WebSocket connections.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wavy",
			Name:      "messages_total",
			Help:      "Inbound relay messages accepted, by type.",
		}, []string{"type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wavy",
			Name:      "messages_rejected_total",
			Help:      "Inbound relay messages dropped, by reason.",
		}, []string{"reason"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wavy",
			Name:      "frames_dropped_total",
			Help:      "Outbound frames not queued because the connection was closed or full.",
		}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wavy",
			Name:      "rooms_reaped_total",
			Help:      "Idle rooms evicted by the reaper.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections, m.messages, m.rejected, m.dropped, m.reaped,
	)
	if roomCount != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "wavy",
			Name:      "rooms",
			Help:      "Live rooms.",
		}, roomCount))
	}
	if participantCount != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "wavy",
			Name:      "participants",
			Help:      "Joined participants across all rooms.",
		}, participantCount))
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) MessageAccepted(kind string) {
	if m != nil {
		m.messages.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) MessageRejected(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) FrameDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) RoomsReaped(n int) {
	if m != nil {
		m.reaped.Add(float64(n))
	}
}
