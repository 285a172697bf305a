package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestDiffAppliedIncrementsLabeledCounter(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.DiffApplied("btcusdt")
	m.DiffApplied("btcusdt")
	m.DiffApplied("ethusdt")

	got := counterValue(t, reg, "orderbook_diffs_applied_total", "symbol", "btcusdt")
	if got != 2 {
		t.Errorf("btcusdt counter = %v, want 2", got)
	}
}

func TestSubscriberCountSetsGauge(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SubscriberCount(5)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "push_subscribers" {
			found = true
			if f.Metric[0].GetGauge().GetValue() != 5 {
				t.Errorf("gauge = %v, want 5", f.Metric[0].GetGauge().GetValue())
			}
		}
	}
	if !found {
		t.Fatal("push_subscribers metric not registered")
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, labelKey, labelVal string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.Metric {
			if labelMatches(metric, labelKey, labelVal) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s{%s=%s} not found", name, labelKey, labelVal)
	return 0
}

func labelMatches(m *dto.Metric, key, val string) bool {
	for _, lp := range m.Label {
		if lp.GetName() == key && lp.GetValue() == val {
			return true
		}
	}
	return false
}
