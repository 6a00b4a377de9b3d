package observability

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusFactory adapts a prometheus Registerer to MetricFactory. Metric
// names are dotted internally and flattened to underscores for exposition.
type PrometheusFactory struct {
	reg prometheus.Registerer
}

var _ MetricFactory = (*PrometheusFactory)(nil)

// NewPrometheusFactory creates a factory registering on reg. Pass a fresh
// prometheus.NewRegistry per engine instance; names collide otherwise.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	return &PrometheusFactory{reg: reg}
}

func (f *PrometheusFactory) Counter(name string) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: promName(name),
		Help: name,
	})
	f.reg.MustRegister(c)
	return c
}

func (f *PrometheusFactory) Histogram(name string) Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: promName(name),
		Help: name,
	})
	f.reg.MustRegister(h)
	return h
}

func promName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}
