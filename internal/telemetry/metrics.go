// Package telemetry wires the process's Prometheus metrics and Redact,
// a helper that scrubs secret-like substrings from a string. Redact is
// not installed as a log hook; log lines are not scrubbed unless a
// caller passes them through it.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every counter/gauge/histogram the runtime exports.
type Metrics struct {
	SessionsStarted   prometheus.Counter
	SessionsActive    prometheus.Gauge
	OpsProcessed      *prometheus.CounterVec
	FlushLatency      prometheus.Histogram
	AssistantRestarts prometheus.Counter
}

// NewMetrics constructs and registers every metric against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "threadbridge",
			Name:      "sessions_started_total",
			Help:      "Number of chat sessions started.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "threadbridge",
			Name:      "sessions_active",
			Help:      "Number of sessions currently live (any non-absent state).",
		}),
		OpsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threadbridge",
			Name:      "ops_processed_total",
			Help:      "Number of dispatcher Ops processed, by kind.",
		}, []string{"kind"}),
		FlushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "threadbridge",
			Name:      "content_flush_latency_seconds",
			Help:      "Time between a content Op arriving and its post being written.",
			Buckets:   prometheus.DefBuckets,
		}),
		AssistantRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "threadbridge",
			Name:      "assistant_restarts_total",
			Help:      "Number of times an assistant subprocess was respawned after exiting unexpectedly.",
		}),
	}
	reg.MustRegister(m.SessionsStarted, m.SessionsActive, m.OpsProcessed, m.FlushLatency, m.AssistantRestarts)
	return m
}
