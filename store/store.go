// Package store defines the durable storage interface for the engine.
//
// The two pieces of mutable shared state, payment intents and entitlement
// records, live behind this interface and must survive process restarts.
// Drivers provide per-key atomicity: intent status transitions are
// compare-and-set on the intent ID, and entitlement recording is an
// idempotent upsert on (identity, asset key).
package store

import (
	"context"
	"time"

	"github.com/marcbria/omp/entitlement"
	"github.com/marcbria/omp/id"
	"github.com/marcbria/omp/payment"
)

// Store is the unified storage interface for all engine state.
type Store interface {
	// Intent methods
	CreateIntent(ctx context.Context, intent *payment.Intent) error
	GetIntent(ctx context.Context, intentID id.IntentID) (*payment.Intent, error)

	// CompleteIntent transitions Queued→Completed atomically and returns
	// the updated intent. When the intent is already Completed it returns
	// ErrIntentCompleted; when Abandoned, ErrIntentAbandoned; when
	// unknown, ErrUnknownIntent. Two concurrent calls race safely: exactly
	// one observes the transition.
	CompleteIntent(ctx context.Context, intentID id.IntentID, providerRef string, at time.Time) (*payment.Intent, error)

	// AbandonIntent transitions Queued→Abandoned atomically. Abandoning an
	// already-abandoned intent is a no-op; a Completed intent returns
	// ErrIntentCompleted so callers can tolerate out-of-order callbacks.
	AbandonIntent(ctx context.Context, intentID id.IntentID, at time.Time) (*payment.Intent, error)

	// ListStaleIntents returns Queued intents created before the cutoff.
	ListStaleIntents(ctx context.Context, before time.Time) ([]*payment.Intent, error)

	// Entitlement methods
	HasPaid(ctx context.Context, identityID, assetKey string) (bool, error)

	// RecordEntitlement is idempotent: recording the same
	// (identity, asset key) pair again leaves exactly one record.
	RecordEntitlement(ctx context.Context, rec *entitlement.Record) error

	ListEntitlements(ctx context.Context, identityID string) ([]*entitlement.Record, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
