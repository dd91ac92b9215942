package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for donor matching.
type Metrics struct {
	registry *prometheus.Registry

	// Evaluation outcomes by status and risk level
	EvaluationOutcome *prometheus.CounterVec

	// Latency of a full match page: donor fetch, scoring and assembly
	MatchPageLatency prometheus.Histogram

	// Donor source query latency by listing
	DonorQueryLatency *prometheus.HistogramVec

	// Page cache lookups by result ("memory", "redis", "miss")
	CacheLookups *prometheus.CounterVec

	// Donor source circuit breaker state (0 closed, 1 half-open, 2 open)
	BreakerState prometheus.Gauge

	// Clinician match record changes by operation
	MatchRecordOps *prometheus.CounterVec
}

// New creates a Metrics instance registered on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		EvaluationOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kidney_match_evaluations_total",
			Help: "Total compatibility evaluations by status and risk level",
		}, []string{"status", "risk_level"}),

		MatchPageLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kidney_match_page_duration_seconds",
			Help:    "Duration of building a scored donor page",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		DonorQueryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kidney_match_donor_query_duration_seconds",
			Help:    "Duration of donor source queries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"listing"}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kidney_match_page_cache_lookups_total",
			Help: "Match page cache lookups by result",
		}, []string{"result"}),

		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kidney_match_donor_source_breaker_state",
			Help: "Donor source circuit breaker state (0 closed, 1 half-open, 2 open)",
		}),

		MatchRecordOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kidney_match_records_total",
			Help: "Kidney match record operations by type",
		}, []string{"operation"}),
	}
}

// Registry returns the registry the metrics were registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncrementOutcome records an evaluation outcome.
func (m *Metrics) IncrementOutcome(status, riskLevel string) {
	if m != nil {
		m.EvaluationOutcome.WithLabelValues(status, riskLevel).Inc()
	}
}

// ObserveMatchPage records how long a match page took to build.
func (m *Metrics) ObserveMatchPage(d time.Duration) {
	if m != nil {
		m.MatchPageLatency.Observe(d.Seconds())
	}
}

// ObserveDonorQuery records the duration of a donor source query.
func (m *Metrics) ObserveDonorQuery(listing string, d time.Duration) {
	if m != nil {
		m.DonorQueryLatency.WithLabelValues(listing).Observe(d.Seconds())
	}
}

// IncrementCacheLookup records a cache lookup result.
func (m *Metrics) IncrementCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

// SetBreakerState records the breaker state.
func (m *Metrics) SetBreakerState(state float64) {
	if m != nil {
		m.BreakerState.Set(state)
	}
}

// IncrementMatchRecordOp records a match record operation.
func (m *Metrics) IncrementMatchRecordOp(op string) {
	if m != nil {
		m.MatchRecordOps.WithLabelValues(op).Inc()
	}
}
