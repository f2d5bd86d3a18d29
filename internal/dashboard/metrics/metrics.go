package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers dashboard subscriptions and their snapshot reads.
type Metrics struct {
	Subscriptions   prometheus.Gauge
	EventsSent      *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	TriggersMerged  prometheus.Counter
	SnapshotErrors  prometheus.Counter
	SnapshotLatency prometheus.Histogram
	BusMessages     *prometheus.CounterVec
}

// New registers dashboard metrics with reg, or the default registerer when nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Subscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gradegate_dashboard_subscriptions",
			Help: "Active dashboard subscriptions",
		}),
		EventsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gradegate_dashboard_events_sent_total",
			Help: "Events queued to subscribers by type",
		}, []string{"type"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "gradegate_dashboard_events_dropped_total",
			Help: "Events evicted from a full subscriber buffer",
		}),
		TriggersMerged: factory.NewCounter(prometheus.CounterOpts{
			Name: "gradegate_dashboard_triggers_merged_total",
			Help: "Change nudges merged into an already pending refresh",
		}),
		SnapshotErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "gradegate_dashboard_snapshot_errors_total",
			Help: "Snapshot builds that failed",
		}),
		SnapshotLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gradegate_dashboard_snapshot_duration_seconds",
			Help:    "Time to build one dashboard snapshot",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		BusMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gradegate_dashboard_bus_messages_total",
			Help: "Change bus messages by direction (published, received, dropped)",
		}, []string{"direction"}),
	}
}

func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.Subscriptions.Inc()
}

func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.Subscriptions.Dec()
}

func (m *Metrics) IncSent(eventType string) {
	if m == nil {
		return
	}
	m.EventsSent.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

func (m *Metrics) IncTriggerMerged() {
	if m == nil {
		return
	}
	m.TriggersMerged.Inc()
}

func (m *Metrics) IncSnapshotError() {
	if m == nil {
		return
	}
	m.SnapshotErrors.Inc()
}

func (m *Metrics) ObserveSnapshot(d time.Duration) {
	if m == nil {
		return
	}
	m.SnapshotLatency.Observe(d.Seconds())
}

func (m *Metrics) IncBus(direction string) {
	if m == nil {
		return
	}
	m.BusMessages.WithLabelValues(direction).Inc()
}
