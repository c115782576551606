// Package metrics provides Prometheus metrics for the advisory engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	AdviceRequests     prometheus.Counter
	CrisisEscalations  prometheus.Counter
	BackendFallbacks   prometheus.Counter
	ReadingsRejected   prometheus.Counter
	KnowledgeQueries   prometheus.Counter
	SessionTurns       prometheus.Counter
	AuditEventsEmitted prometheus.Counter
	ProcessingDuration prometheus.Histogram
	ActiveSessions     prometheus.Gauge
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		AdviceRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "advice_requests_total",
			Help: "Total advisory requests processed",
		}),
		CrisisEscalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crisis_escalations_total",
			Help: "Total responses carrying the urgent-care escalation flag",
		}),
		BackendFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "generation_fallbacks_total",
			Help: "Total responses rendered from the template fallback",
		}),
		ReadingsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "readings_rejected_total",
			Help: "Total readings rejected by validation",
		}),
		KnowledgeQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "knowledge_queries_total",
			Help: "Total knowledge index searches",
		}),
		SessionTurns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "session_turns_total",
			Help: "Total conversation turns appended",
		}),
		AuditEventsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_events_emitted_total",
			Help: "Total clinical audit events published",
		}),
		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "advice_processing_duration_seconds",
			Help:    "Advisory pipeline duration excluding network handling",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conversation_sessions_active",
			Help: "Conversation sessions currently held in memory",
		}),
	}

	prometheus.MustRegister(
		m.AdviceRequests,
		m.CrisisEscalations,
		m.BackendFallbacks,
		m.ReadingsRejected,
		m.KnowledgeQueries,
		m.SessionTurns,
		m.AuditEventsEmitted,
		m.ProcessingDuration,
		m.ActiveSessions,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
