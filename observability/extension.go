// Package observability provides a metrics extension that records paywall
// lifecycle event counts through an injected MetricFactory.
package observability

import (
	"context"

	"github.com/marcbria/omp/access"
	"github.com/marcbria/omp/catalog"
	"github.com/marcbria/omp/entitlement"
	"github.com/marcbria/omp/payment"
	"github.com/marcbria/omp/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnAccessDecided       = (*MetricsExtension)(nil)
	_ plugin.OnIntentCreated       = (*MetricsExtension)(nil)
	_ plugin.OnIntentCompleted     = (*MetricsExtension)(nil)
	_ plugin.OnIntentAbandoned     = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementRecorded = (*MetricsExtension)(nil)
	_ plugin.OnCallbackRejected    = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a paywall plugin to automatically track access and
// settlement activity.
type MetricsExtension struct {
	factory MetricFactory

	// Access metrics
	AccessGranted      Counter
	AccessLoginNeeded  Counter
	AccessPaymentAsked Counter

	// Intent metrics
	IntentQueued    Counter
	IntentCompleted Counter
	IntentAbandoned Counter
	IntentAmount    Histogram

	// Entitlement metrics
	EntitlementRecorded Counter

	// Gateway metrics
	CallbackRejected Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Access metrics
		AccessGranted:      factory.Counter("omp.access.granted"),
		AccessLoginNeeded:  factory.Counter("omp.access.login_needed"),
		AccessPaymentAsked: factory.Counter("omp.access.payment_asked"),

		// Intent metrics
		IntentQueued:    factory.Counter("omp.intent.queued"),
		IntentCompleted: factory.Counter("omp.intent.completed"),
		IntentAbandoned: factory.Counter("omp.intent.abandoned"),
		IntentAmount:    factory.Histogram("omp.intent.amount_minor_units"),

		// Entitlement metrics
		EntitlementRecorded: factory.Counter("omp.entitlement.recorded"),

		// Gateway metrics
		CallbackRejected: factory.Counter("omp.callback.rejected"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// OnAccessDecided implements plugin.OnAccessDecided.
func (m *MetricsExtension) OnAccessDecided(_ context.Context, _ string, _ catalog.AssetRef, verdict *access.Verdict) error {
	switch verdict.Decision {
	case access.Grant:
		m.AccessGranted.Inc()
	case access.RequireAuthentication:
		m.AccessLoginNeeded.Inc()
	case access.RequirePayment:
		m.AccessPaymentAsked.Inc()
	}
	return nil
}

// OnIntentCreated implements plugin.OnIntentCreated.
func (m *MetricsExtension) OnIntentCreated(_ context.Context, intent *payment.Intent) error {
	m.IntentQueued.Inc()
	m.IntentAmount.Observe(float64(intent.Amount.Amount))
	return nil
}

// OnIntentCompleted implements plugin.OnIntentCompleted.
func (m *MetricsExtension) OnIntentCompleted(_ context.Context, _ *payment.Intent) error {
	m.IntentCompleted.Inc()
	return nil
}

// OnIntentAbandoned implements plugin.OnIntentAbandoned.
func (m *MetricsExtension) OnIntentAbandoned(_ context.Context, _ *payment.Intent) error {
	m.IntentAbandoned.Inc()
	return nil
}

// OnEntitlementRecorded implements plugin.OnEntitlementRecorded.
func (m *MetricsExtension) OnEntitlementRecorded(_ context.Context, _ *entitlement.Record) error {
	m.EntitlementRecorded.Inc()
	return nil
}

// OnCallbackRejected implements plugin.OnCallbackRejected.
func (m *MetricsExtension) OnCallbackRejected(_ context.Context, _ string, _ error) error {
	m.CallbackRejected.Inc()
	return nil
}
