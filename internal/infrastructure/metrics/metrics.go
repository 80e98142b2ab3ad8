package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks vote outcomes, materialization, anchoring and recovery.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Votes              *prometheus.CounterVec
	Materialized       *prometheus.CounterVec
	AnchorAttempts     *prometheus.CounterVec
	AnchorDuration     prometheus.Histogram
	RecoveryCandidates *prometheus.CounterVec
}

// New registers all collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Votes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rcv_approval_votes_total",
			Help: "Approval votes by kind and outcome",
		}, []string{"kind", "outcome"}),
		Materialized: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rcv_entities_materialized_total",
			Help: "Entities created from approved certificates",
		}, []string{"entity_type", "outcome"}),
		AnchorAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rcv_ledger_anchor_attempts_total",
			Help: "Ledger anchoring attempts by outcome",
		}, []string{"outcome"}),
		AnchorDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rcv_ledger_anchor_duration_seconds",
			Help:    "Time from submission to confirmation of an anchoring transaction",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		RecoveryCandidates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rcv_recovery_candidates_total",
			Help: "Ledger certificates processed by recovery, by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) Vote(kind, outcome string) {
	if m == nil {
		return
	}
	m.Votes.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Materialize(entityType, outcome string) {
	if m == nil {
		return
	}
	m.Materialized.WithLabelValues(entityType, outcome).Inc()
}

// Anchor records one anchoring attempt. Call with time.Now() at the start.
func (m *Metrics) Anchor(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.AnchorAttempts.WithLabelValues(outcome).Inc()
	m.AnchorDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) Recovery(outcome string) {
	if m == nil {
		return
	}
	m.RecoveryCandidates.WithLabelValues(outcome).Inc()
}
