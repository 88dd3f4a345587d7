package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bridge collectors on a private registry so tests
// can build as many instances as they like.
type Metrics struct {
	ForwardTotal    *prometheus.CounterVec
	ForwardDuration prometheus.Histogram
	ActiveSessions  prometheus.Gauge

	registry *prometheus.Registry
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		ForwardTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skybridge_forward_requests_total",
			Help: "Forwarded HTTP requests by outcome",
		}, []string{"outcome"}),
		ForwardDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "skybridge_forward_duration_seconds",
			Help:    "Round-trip time of forwarded HTTP requests",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skybridge_passthrough_sessions",
			Help: "WebSocket passthrough sessions currently open",
		}),
		registry: registry,
	}

	registry.MustRegister(m.ForwardTotal, m.ForwardDuration, m.ActiveSessions)
	return m
}

// ObserveForward records one forwarded call.
func (m *Metrics) ObserveForward(outcome string, duration time.Duration) {
	m.ForwardTotal.WithLabelValues(outcome).Inc()
	m.ForwardDuration.Observe(duration.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
