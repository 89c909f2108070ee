package prefetch

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes decision and rebuild counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Decisions       *prometheus.CounterVec
	Rebuilds        *prometheus.CounterVec
	RebuildDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mvprefetch_decisions_total",
			Help: "Prefetch decisions by outcome reason.",
		}, []string{"reason", "prefetch"}),
		Rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mvprefetch_rebuilds_total",
			Help: "Artifact rebuilds by result.",
		}, []string{"artifact", "result"}),
		RebuildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mvprefetch_rebuild_duration_seconds",
			Help:    "Wall-clock duration of successful artifact rebuilds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"artifact"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mvprefetch_rebuilds_in_flight",
			Help: "Rebuilds currently running against the artifact store.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Decisions, m.Rebuilds, m.RebuildDuration, m.InFlight)
	}
	return m
}

func (m *Metrics) observeDecision(d Decision) {
	if m == nil {
		return
	}
	prefetch := "false"
	if d.ShouldPrefetch {
		prefetch = "true"
	}
	m.Decisions.WithLabelValues(d.Reason, prefetch).Inc()
}

func (m *Metrics) observeRebuild(r RefreshResult) {
	if m == nil {
		return
	}
	m.Rebuilds.WithLabelValues(r.Artifact, rebuildOutcome(r)).Inc()
	if r.Success {
		m.RebuildDuration.WithLabelValues(r.Artifact).Observe(r.Elapsed.Seconds())
	}
}

func (m *Metrics) rebuildStarted() {
	if m != nil {
		m.InFlight.Inc()
	}
}

func (m *Metrics) rebuildFinished() {
	if m != nil {
		m.InFlight.Dec()
	}
}

// rebuildOutcome is the "result" label value for r.
func rebuildOutcome(r RefreshResult) string {
	switch {
	case r.Success:
		return "ok"
	case errors.Is(r.Err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(r.Err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
