package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementOutcome("EVALUATED", "Low Risk")
	m.IncrementOutcome("EVALUATED", "Low Risk")
	m.IncrementOutcome("REJECTED", "Very High")
	m.ObserveMatchPage(20 * time.Millisecond)
	m.ObserveDonorQuery("kidney", 5*time.Millisecond)
	m.IncrementCacheLookup("miss")
	m.SetBreakerState(2)
	m.IncrementMatchRecordOp("create")

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				byName[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				byName[mf.GetName()] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				byName[mf.GetName()] += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}

	assert.Equal(t, 3.0, byName["kidney_match_evaluations_total"])
	assert.Equal(t, 1.0, byName["kidney_match_page_duration_seconds"])
	assert.Equal(t, 1.0, byName["kidney_match_donor_query_duration_seconds"])
	assert.Equal(t, 1.0, byName["kidney_match_page_cache_lookups_total"])
	assert.Equal(t, 2.0, byName["kidney_match_donor_source_breaker_state"])
	assert.Equal(t, 1.0, byName["kidney_match_records_total"])
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.IncrementOutcome("EVALUATED", "High")
		m.ObserveMatchPage(time.Second)
		m.ObserveDonorQuery("blood", time.Second)
		m.IncrementCacheLookup("memory")
		m.SetBreakerState(0)
		m.IncrementMatchRecordOp("delete")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New(nil)
	m.IncrementOutcome("EVALUATED", "Moderate")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `kidney_match_evaluations_total{risk_level="Moderate",status="EVALUATED"} 1`)
}
