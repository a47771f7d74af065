package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics tracks recurring charge outcomes.
type BillingMetrics struct {
	charges *prometheus.CounterVec
	batch   prometheus.Histogram
	due     prometheus.Gauge
}

// NewBillingMetrics registers the billing metrics on the provided registerer.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	charges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "subscription_outcomes_total",
		Help:      "Per-subscription billing outcomes by provider.",
	}, []string{"provider", "outcome"})
	batch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "batch_duration_seconds",
		Help:      "Duration of a due-subscription billing batch.",
		Buckets:   prometheus.DefBuckets,
	})
	due := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "due_subscriptions",
		Help:      "Subscriptions selected by the last billing batch.",
	})
	reg.MustRegister(charges, batch, due)
	return &BillingMetrics{charges: charges, batch: batch, due: due}
}

// RecordOutcome counts one processed subscription.
func (b *BillingMetrics) RecordOutcome(provider, outcome string) {
	if b == nil || b.charges == nil {
		return
	}
	b.charges.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// ObserveBatch records batch duration and the number of selected rows.
func (b *BillingMetrics) ObserveBatch(duration time.Duration, candidates int) {
	if b == nil || b.batch == nil {
		return
	}
	b.batch.Observe(duration.Seconds())
	b.due.Set(float64(candidates))
}
