package authguard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh outcomes used as metric labels.
const (
	outcomeSuccess   = "success"
	outcomeRejected  = "rejected"
	outcomeTransport = "transport_failure"
	outcomeCanceled  = "canceled"
)

// Metrics contains the Prometheus collectors of a Guard. A nil *Metrics
// records nothing.
type Metrics struct {
	Decisions       *prometheus.CounterVec
	Refreshes       *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
}

// NewMetrics creates and registers the guard metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authguard_decisions_total",
				Help: "Total number of navigation decisions by kind",
			},
			[]string{"decision"},
		),
		Refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authguard_refreshes_total",
				Help: "Total number of session refreshes by outcome",
			},
			[]string{"outcome"},
		),
		RefreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "authguard_refresh_duration_seconds",
				Help:    "Latency of session refreshes as seen by navigations",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(m.Decisions)
	reg.MustRegister(m.Refreshes)
	reg.MustRegister(m.RefreshDuration)

	return m
}

func (m *Metrics) observeDecision(d Decision) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(d.Kind.String()).Inc()
}

func (m *Metrics) observeRefresh(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(outcome).Inc()
	m.RefreshDuration.Observe(took.Seconds())
}
