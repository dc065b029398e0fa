package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the credit and analysis instrumentation. A nil *Metrics is
// valid and records nothing, which keeps tests free of registry setup.
type Metrics struct {
	creditsCharged  *prometheus.CounterVec
	creditsRefunded *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	analyses        *prometheus.CounterVec
	aiRequests      *prometheus.CounterVec
	aiLatency       *prometheus.HistogramVec
	reconciliation  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		creditsCharged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wingman",
				Subsystem: "ledger",
				Name:      "credits_charged_total",
				Help:      "Credits reserved for analyses by tier",
			},
			[]string{"tier"},
		),
		creditsRefunded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wingman",
				Subsystem: "ledger",
				Name:      "credits_refunded_total",
				Help:      "Credits returned after failed analyses by tier",
			},
			[]string{"tier"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wingman",
				Subsystem: "analysis",
				Name:      "cache_hits_total",
				Help:      "Analyses served from a prior identical request",
			},
			[]string{"tier", "mode"},
		),
		analyses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wingman",
				Subsystem: "analysis",
				Name:      "finished_total",
				Help:      "Analyses reaching a terminal status",
			},
			[]string{"status", "mode"},
		),
		aiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wingman",
				Subsystem: "ai",
				Name:      "requests_total",
				Help:      "Completion calls by provider, model and outcome",
			},
			[]string{"provider", "model", "status"},
		),
		aiLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "wingman",
				Subsystem: "ai",
				Name:      "request_duration_seconds",
				Help:      "Completion call latency",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
			},
			[]string{"provider", "model"},
		),
		reconciliation: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "wingman",
				Subsystem: "ledger",
				Name:      "reconciliation_required_total",
				Help:      "Compensations that failed and need manual reconciliation",
			},
		),
	}

	reg.MustRegister(
		m.creditsCharged,
		m.creditsRefunded,
		m.cacheHits,
		m.analyses,
		m.aiRequests,
		m.aiLatency,
		m.reconciliation,
	)
	return m
}

func (m *Metrics) CreditsCharged(tier string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.creditsCharged.WithLabelValues(tier).Add(float64(amount))
}

func (m *Metrics) CreditsRefunded(tier string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.creditsRefunded.WithLabelValues(tier).Add(float64(amount))
}

func (m *Metrics) CacheHit(tier, mode string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(tier, mode).Inc()
}

func (m *Metrics) AnalysisFinished(status, mode string) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(status, mode).Inc()
}

func (m *Metrics) AIRequest(provider, model string, err error, took time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.aiRequests.WithLabelValues(provider, model, status).Inc()
	m.aiLatency.WithLabelValues(provider, model).Observe(took.Seconds())
}

func (m *Metrics) ReconciliationRequired() {
	if m == nil {
		return
	}
	m.reconciliation.Inc()
}
