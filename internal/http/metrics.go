package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

// Metrics holds the service's Prometheus metrics. Each server instance owns
// its registry so tests can construct servers freely without duplicate
// registration panics.
type Metrics struct {
	registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec

	// SyntheticTotal counts substitutions by surface (historical, predict,
	// compare). A rising rate means real data or models are degrading.
	SyntheticTotal *prometheus.CounterVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// NewMetrics creates and registers the full metric set.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "epitrack_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"route", "status"},
		),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epitrack_requests_total",
				Help: "Total HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),

		SyntheticTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epitrack_synthetic_substitutions_total",
				Help: "Responses served from synthetic generation instead of real data or models",
			},
			[]string{"surface"},
		),

		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "epitrack_cache_hits_total",
				Help: "Total history cache hits",
			},
		),

		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "epitrack_cache_misses_total",
				Help: "Total history cache misses",
			},
		),
	}

	m.registry.MustRegister(
		m.RequestDuration,
		m.RequestsTotal,
		m.SyntheticTotal,
		m.CacheHits,
		m.CacheMisses,
	)

	return m
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(route string, status int, duration time.Duration) {
	s := strconv.Itoa(status)
	m.RequestDuration.WithLabelValues(route, s).Observe(duration.Seconds())
	m.RequestsTotal.WithLabelValues(route, s).Inc()
}

// RecordSynthetic counts one synthetic substitution on a surface.
func (m *Metrics) RecordSynthetic(surface string) {
	m.SyntheticTotal.WithLabelValues(surface).Inc()
}

// CacheHit and CacheMiss satisfy the store cache observer.
func (m *Metrics) CacheHit()  { m.CacheHits.Inc() }
func (m *Metrics) CacheMiss() { m.CacheMisses.Inc() }

// Gather exposes the raw metric families for tests.
func (m *Metrics) Gather() ([]*io_prometheus_client.MetricFamily, error) {
	return m.registry.Gather()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
