package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the proposal lifecycle.
type Metrics struct {
	// Proposals opened, by direction
	Created *prometheus.CounterVec

	// Create attempts rejected because a decision is already pending
	Conflicts prometheus.Counter

	// Decisions applied, by outcome (approved, rejected)
	Decisions *prometheus.CounterVec

	// Decide attempts retried after a transient store failure
	DecideRetries prometheus.Counter

	// Time from proposal creation to human decision
	TimeToDecision prometheus.Histogram

	// Store round-trip for Decide including retries
	DecideLatency prometheus.Histogram
}

// New registers proposal metrics with reg, or the default registerer when nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Created: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gradegate_proposals_created_total",
			Help: "Proposals opened by direction",
		}, []string{"direction"}),

		Conflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "gradegate_proposals_conflicts_total",
			Help: "Proposal creations rejected because one is already pending",
		}),

		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gradegate_proposal_decisions_total",
			Help: "Proposal decisions by outcome",
		}, []string{"outcome"}),

		DecideRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "gradegate_proposal_decide_retries_total",
			Help: "Decide attempts retried after a transient store failure",
		}),

		TimeToDecision: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gradegate_proposal_time_to_decision_seconds",
			Help:    "Time between proposal creation and decision",
			Buckets: []float64{60, 300, 900, 3600, 4 * 3600, 24 * 3600, 3 * 24 * 3600, 7 * 24 * 3600},
		}),

		DecideLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gradegate_proposal_decide_duration_seconds",
			Help:    "Duration of Decide including retries",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) IncCreated(direction string) {
	if m != nil {
		m.Created.WithLabelValues(direction).Inc()
	}
}

func (m *Metrics) IncConflict() {
	if m != nil {
		m.Conflicts.Inc()
	}
}

func (m *Metrics) IncDecision(outcome string) {
	if m != nil {
		m.Decisions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncDecideRetry() {
	if m != nil {
		m.DecideRetries.Inc()
	}
}

func (m *Metrics) ObserveTimeToDecision(d time.Duration) {
	if m != nil {
		m.TimeToDecision.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveDecideLatency(d time.Duration) {
	if m != nil {
		m.DecideLatency.Observe(d.Seconds())
	}
}
