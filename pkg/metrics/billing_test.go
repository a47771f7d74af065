package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestBillingMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBillingMetrics(reg)
	m.RecordOutcome("stripe", "succeeded")
	m.RecordOutcome("stripe", "succeeded")
	m.RecordOutcome("", "skipped")
	m.ObserveBatch(40*time.Millisecond, 3)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	mf := findMetricFamily(mfs, "mats_billing_subscription_outcomes_total")
	if mf == nil {
		t.Fatalf("outcome counter not registered")
	}
	var succeeded, skipped float64
	for _, metric := range mf.GetMetric() {
		switch {
		case matchesLabel(metric.GetLabel(), "provider", "stripe") && matchesLabel(metric.GetLabel(), "outcome", "succeeded"):
			succeeded = metric.GetCounter().GetValue()
		case matchesLabel(metric.GetLabel(), "provider", "unknown") && matchesLabel(metric.GetLabel(), "outcome", "skipped"):
			skipped = metric.GetCounter().GetValue()
		}
	}
	if succeeded != 2 || skipped != 1 {
		t.Fatalf("unexpected counters succeeded=%v skipped=%v", succeeded, skipped)
	}

	gauge := findMetricFamily(mfs, "mats_billing_due_subscriptions")
	if gauge == nil || gaugeValue(gauge) != 3 {
		t.Fatalf("expected due gauge of 3")
	}
}

func TestNilBillingMetricsAreSafe(t *testing.T) {
	var m *BillingMetrics
	m.RecordOutcome("square", "failed")
	m.ObserveBatch(time.Second, 1)
	NewBillingMetrics(nil).RecordOutcome("square", "failed")
}

func gaugeValue(mf *dto.MetricFamily) float64 {
	if len(mf.GetMetric()) == 0 {
		return -1
	}
	return mf.GetMetric()[0].GetGauge().GetValue()
}
