// Package plugin provides an extensible hook system for the paywall engine.
// Plugins can observe lifecycle events and contribute capabilities such as
// public-identifier assignment.
package plugin

import (
	"context"

	"github.com/marcbria/omp/access"
	"github.com/marcbria/omp/catalog"
	"github.com/marcbria/omp/entitlement"
	"github.com/marcbria/omp/payment"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. The engine is passed as an
// opaque value so plugin packages need not import the root package.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Access hooks
// ──────────────────────────────────────────────────

// OnAccessDecided is called after every access decision.
type OnAccessDecided interface {
	Plugin
	OnAccessDecided(ctx context.Context, identityID string, ref catalog.AssetRef, verdict *access.Verdict) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnIntentCreated is called when a payment intent is queued.
type OnIntentCreated interface {
	Plugin
	OnIntentCreated(ctx context.Context, intent *payment.Intent) error
}

// OnIntentCompleted is called exactly once per intent, when the first
// verified confirmation completes it.
type OnIntentCompleted interface {
	Plugin
	OnIntentCompleted(ctx context.Context, intent *payment.Intent) error
}

// OnIntentAbandoned is called when a queued intent is abandoned.
type OnIntentAbandoned interface {
	Plugin
	OnIntentAbandoned(ctx context.Context, intent *payment.Intent) error
}

// OnEntitlementRecorded is called when a completed purchase is recorded.
type OnEntitlementRecorded interface {
	Plugin
	OnEntitlementRecorded(ctx context.Context, rec *entitlement.Record) error
}

// OnCallbackRejected is called when a provider callback fails verification
// or parsing. It never fires for verified callbacks.
type OnCallbackRejected interface {
	Plugin
	OnCallbackRejected(ctx context.Context, provider string, err error) error
}

// ──────────────────────────────────────────────────
// Capabilities
// ──────────────────────────────────────────────────

// AssignsIdentifier contributes public identifiers (DOI, URN, ...) for
// publication formats. The engine invokes every registered assigner after
// publication for formats that lack an identifier of that type.
type AssignsIdentifier interface {
	Plugin

	// PubIDType names the identifier type this plugin assigns ("doi", ...).
	PubIDType() string

	// AssignPubID computes the identifier for a format.
	AssignPubID(ctx context.Context, f *catalog.Format) (string, error)
}
