package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marcbria/omp/payment"
	"github.com/marcbria/omp/types"
)

func TestPrometheusFactory(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := NewMetricsExtension(NewPrometheusFactory(reg))

	intent := payment.New("user_1", "pubf_a:file_b:r1", types.USD(2500))
	_ = m.OnIntentCreated(ctx, intent)
	_ = m.OnIntentCreated(ctx, intent)
	_ = m.OnIntentCompleted(ctx, intent)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	values := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[mf.GetName()] = c.GetValue()
			}
			if h := metric.GetHistogram(); h != nil {
				values[mf.GetName()] = float64(h.GetSampleCount())
			}
		}
	}

	checks := map[string]float64{
		"omp_intent_queued":             2,
		"omp_intent_completed":          1,
		"omp_intent_amount_minor_units": 2,
	}
	for name, want := range checks {
		if got := values[name]; got != want {
			t.Errorf("%s: got %v, want %v", name, got, want)
		}
	}
}
