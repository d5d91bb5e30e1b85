// Package metrics contains the prometheus collectors exposed by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace shared by all the collectors.
const Namespace = "tokenreq"

// Results of applying an event, used as label values.
const (
	Applied  = "applied"  // state changed
	Ignored  = "ignored"  // unknown kind, state unchanged
	Dropped  = "dropped"  // creation could not be enriched or payload invalid
	Rejected = "rejected" // transition on unknown or terminal request, or duplicate creation
)

// Metrics groups the collectors.
type Metrics struct {
	Events      *prometheus.CounterVec
	Fallbacks   *prometheus.CounterVec
	Diagnostics *prometheus.CounterVec
	Requests    *prometheus.GaugeVec
	LastBlock   prometheus.Gauge
	Bootstrap   prometheus.Histogram
}

// New returns the collectors registered in reg. With a nil reg the collectors work but are not exported.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "reducer",
			Name:      "events_total",
			Help:      "Events read from the log by kind and result.",
		}, []string{"kind", "result"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "metadata",
			Name:      "fallbacks_total",
			Help:      "Token metadata fields taken from the fallback table or defaulted.",
		}, []string{"field"}),
		Diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "reducer",
			Name:      "diagnostics_total",
			Help:      "Diagnostics reported by severity and kind.",
		}, []string{"severity", "kind"}),
		Requests: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "state",
			Name:      "requests",
			Help:      "Token requests in the published state by status.",
		}, []string{"status"}),
		LastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "state",
			Name:      "last_block",
			Help:      "Block number of the last applied event.",
		}),
		Bootstrap: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "bootstrap",
			Name:      "duration_seconds",
			Help:      "Time taken to build the seed state.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Events, m.Fallbacks, m.Diagnostics, m.Requests, m.LastBlock, m.Bootstrap)
	}

	return m
}
