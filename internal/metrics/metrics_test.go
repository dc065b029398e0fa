package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CreditsCharged("pro", 5)
	m.CreditsCharged("pro", 12)
	m.CreditsCharged("pro", 0)
	m.CreditsRefunded("plus", 24)
	m.CacheHit("pro", "snapshot")
	m.AnalysisFinished("done", "deep")
	m.AIRequest("openai", "gpt-4o", nil, time.Second)
	m.AIRequest("openai", "gpt-4o", errors.New("boom"), time.Second)
	m.ReconciliationRequired()

	assert.Equal(t, float64(17), testutil.ToFloat64(m.creditsCharged.WithLabelValues("pro")))
	assert.Equal(t, float64(24), testutil.ToFloat64(m.creditsRefunded.WithLabelValues("plus")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cacheHits.WithLabelValues("pro", "snapshot")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.analyses.WithLabelValues("done", "deep")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.aiRequests.WithLabelValues("openai", "gpt-4o", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.reconciliation))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CreditsCharged("pro", 5)
		m.CacheHit("pro", "snapshot")
		m.AIRequest("openai", "gpt-4o", nil, time.Second)
		m.ReconciliationRequired()
	})
}
