package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, name, label, value string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestCollectorsRegistered(t *testing.T) {
	before := counterValue(t, "agroguard_risk_classifications_total", "tier", "high")
	Classifications.WithLabelValues("high").Inc()
	if got := counterValue(t, "agroguard_risk_classifications_total", "tier", "high"); got != before+1 {
		t.Fatalf("got %v, want %v", got, before+1)
	}

	IngestedRows.WithLabelValues("mqtt").Add(3)
	if got := counterValue(t, "agroguard_ingested_rows_total", "source", "mqtt"); got < 3 {
		t.Fatalf("got %v, want at least 3", got)
	}
}
