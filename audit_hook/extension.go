// Package audithook bridges paywall lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any concrete audit store. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marcbria/omp/access"
	"github.com/marcbria/omp/catalog"
	"github.com/marcbria/omp/entitlement"
	"github.com/marcbria/omp/payment"
	"github.com/marcbria/omp/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnAccessDecided       = (*Extension)(nil)
	_ plugin.OnIntentCreated       = (*Extension)(nil)
	_ plugin.OnIntentCompleted     = (*Extension)(nil)
	_ plugin.OnIntentAbandoned     = (*Extension)(nil)
	_ plugin.OnEntitlementRecorded = (*Extension)(nil)
	_ plugin.OnCallbackRejected    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so that wiring a concrete backend stays a caller concern.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges paywall lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Access hooks
// ──────────────────────────────────────────────────

// OnAccessDecided implements plugin.OnAccessDecided.
func (e *Extension) OnAccessDecided(ctx context.Context, identityID string, ref catalog.AssetRef, verdict *access.Verdict) error {
	action := ActionAccessGranted
	switch verdict.Decision {
	case access.RequireAuthentication:
		action = ActionAccessLoginNeeded
	case access.RequirePayment:
		action = ActionAccessPaymentAsked
	}

	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceAsset, ref.Composite(), CategoryAccess, nil,
		"identity_id", identityID,
		"asset", ref.String(),
	)
}

// ──────────────────────────────────────────────────
// Intent lifecycle hooks
// ──────────────────────────────────────────────────

// OnIntentCreated implements plugin.OnIntentCreated.
func (e *Extension) OnIntentCreated(ctx context.Context, intent *payment.Intent) error {
	return e.record(ctx, ActionIntentQueued, SeverityInfo, OutcomeSuccess,
		ResourceIntent, intent.ID.String(), CategoryPayment, nil,
		"identity_id", intent.IdentityID,
		"asset_key", intent.AssetKey,
		"amount", intent.Amount.String(),
	)
}

// OnIntentCompleted implements plugin.OnIntentCompleted.
func (e *Extension) OnIntentCompleted(ctx context.Context, intent *payment.Intent) error {
	return e.record(ctx, ActionIntentCompleted, SeverityInfo, OutcomeSuccess,
		ResourceIntent, intent.ID.String(), CategoryPayment, nil,
		"identity_id", intent.IdentityID,
		"asset_key", intent.AssetKey,
		"provider_ref", intent.ProviderRef,
	)
}

// OnIntentAbandoned implements plugin.OnIntentAbandoned.
func (e *Extension) OnIntentAbandoned(ctx context.Context, intent *payment.Intent) error {
	return e.record(ctx, ActionIntentAbandoned, SeverityWarning, OutcomeFailure,
		ResourceIntent, intent.ID.String(), CategoryPayment, nil,
		"identity_id", intent.IdentityID,
		"asset_key", intent.AssetKey,
	)
}

// ──────────────────────────────────────────────────
// Entitlement and gateway hooks
// ──────────────────────────────────────────────────

// OnEntitlementRecorded implements plugin.OnEntitlementRecorded.
func (e *Extension) OnEntitlementRecorded(ctx context.Context, rec *entitlement.Record) error {
	return e.record(ctx, ActionEntitlementRecorded, SeverityInfo, OutcomeSuccess,
		ResourceEntitlement, rec.ID.String(), CategoryPayment, nil,
		"identity_id", rec.IdentityID,
		"asset_key", rec.AssetKey,
	)
}

// OnCallbackRejected implements plugin.OnCallbackRejected. Rejections are
// the security-relevant event of the gateway boundary.
func (e *Extension) OnCallbackRejected(ctx context.Context, provider string, err error) error {
	return e.record(ctx, ActionCallbackRejected, SeverityError, OutcomeFailure,
		ResourceGateway, provider, CategorySecurity, err,
		"provider", provider,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
