// Package reconcile implements the post-payment reconciliation controller:
// outcome classification, the idempotence guard, and the five settlement
// pipelines.
package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricPipelinesTotal    = "settlement_pipelines_total"
	MetricPipelineDuration  = "settlement_pipeline_duration_seconds"
	MetricSettlementGaps    = "settlement_gaps_total"
	MetricDuplicateAttempts = "settlement_duplicate_attempts_total"
)

// Metrics contains Prometheus metrics for pipeline execution. All
// operations are thread-safe.
type Metrics struct {
	pipelinesTotal    *prometheus.CounterVec
	pipelineDuration  *prometheus.HistogramVec
	settlementGaps    *prometheus.CounterVec
	duplicateAttempts prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		pipelinesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPipelinesTotal,
				Help: "Total number of settlement pipeline runs by payment type and final state",
			},
			[]string{"payment_type", "state"},
		),
		pipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricPipelineDuration,
				Help:    "Histogram of settlement pipeline duration in seconds by payment type",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"payment_type"},
		),
		settlementGaps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSettlementGaps,
				Help: "Total number of journaled settlement gaps by payment type and stage",
			},
			[]string{"payment_type", "stage"},
		),
		duplicateAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricDuplicateAttempts,
				Help: "Total number of pipeline invocations suppressed by the idempotence guard",
			},
		),
	}
}

// Register registers all metrics with the given registry. Returns an error
// if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.pipelinesTotal,
		m.pipelineDuration,
		m.settlementGaps,
		m.duplicateAttempts,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObservePipeline records one pipeline run.
func (m *Metrics) ObservePipeline(paymentType string, state State, seconds float64) {
	if m == nil {
		return
	}
	m.pipelinesTotal.WithLabelValues(paymentType, string(state)).Inc()
	m.pipelineDuration.WithLabelValues(paymentType).Observe(seconds)
}

// ObserveGap records one journaled settlement gap.
func (m *Metrics) ObserveGap(paymentType, stage string) {
	if m == nil {
		return
	}
	m.settlementGaps.WithLabelValues(paymentType, stage).Inc()
}

// ObserveDuplicate records a pipeline invocation suppressed by the guard.
func (m *Metrics) ObserveDuplicate() {
	if m == nil {
		return
	}
	m.duplicateAttempts.Inc()
}
