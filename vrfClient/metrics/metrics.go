// Package metrics exposes the oracle's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pvrf"

// Ingestion sources.
const (
	SourceLive     = "live"
	SourceBackfill = "backfill"
	SourceRetry    = "retry"
)

// Metrics holds the collectors of one node. All methods are safe on a nil
// receiver, which records nothing.
type Metrics struct {
	ingested        *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	anomalies       *prometheus.CounterVec
	inFlight        prometheus.Gauge
	processDuration *prometheus.HistogramVec
	retryBatch      prometheus.Histogram
	resubscribes    *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ingested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "transactions_total",
			Help:      "Observed request transactions by source and insert result.",
		}, []string{"source", "program", "result"}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "outcomes_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"source", "outcome"}),
		anomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "anomalies_total",
			Help:      "Conditional updates that affected no row.",
		}, []string{"operation"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "in_flight",
			Help:      "Pipeline tasks currently running.",
		}),
		processDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Duration of one pipeline run, claim to completion.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"outcome"}),
		retryBatch: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "batch_size",
			Help:      "Rows picked up per retry sweep.",
			Buckets:   prometheus.LinearBuckets(0, 5, 5),
		}),
		resubscribes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "resubscribes_total",
			Help:      "Log subscriptions reopened after the stream ended.",
		}, []string{"program"}),
	}
}

// ObserveIngested records one insert attempt.
func (m *Metrics) ObserveIngested(source, program string, inserted bool, err error) {
	if m == nil {
		return
	}
	result := "inserted"
	switch {
	case err != nil:
		result = "error"
	case !inserted:
		result = "duplicate"
	}
	m.ingested.WithLabelValues(source, program, result).Inc()
}

// ObserveOutcome records a finished pipeline run.
func (m *Metrics) ObserveOutcome(source, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(source, outcome).Inc()
	m.processDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
}

// ObserveAnomaly records a conditional update that matched no row.
func (m *Metrics) ObserveAnomaly(operation string) {
	if m == nil {
		return
	}
	m.anomalies.WithLabelValues(operation).Inc()
}

// TaskStarted and TaskDone track running pipeline tasks.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) TaskDone() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

// ObserveRetryBatch records the size of one retry sweep.
func (m *Metrics) ObserveRetryBatch(n int) {
	if m == nil {
		return
	}
	m.retryBatch.Observe(float64(n))
}

// ObserveResubscribe records a reopened log subscription.
func (m *Metrics) ObserveResubscribe(program string) {
	if m == nil {
		return
	}
	m.resubscribes.WithLabelValues(program).Inc()
}
