// Package payment defines payment intents and their lifecycle.
package payment

import (
	"time"

	"github.com/marcbria/omp/id"
	"github.com/marcbria/omp/types"
)

// Status is the lifecycle state of a payment intent.
//
// The only allowed transitions are Queued→Completed (provider confirms)
// and Queued→Abandoned (timeout or cancel). Both are terminal.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// CanTransition reports whether a status change is a legal edge of the
// intent state machine.
func (s Status) CanTransition(to Status) bool {
	return s == StatusQueued && (to == StatusCompleted || to == StatusAbandoned)
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Intent is one payment attempt for one asset by one identity. Intents are
// created Queued, one per access attempt that requires payment; several
// Queued intents for the same (identity, asset) may coexist. Only a verified
// provider confirmation completes one, and completion entitles the identity.
// Nothing but the status (and its timestamps) is ever mutated.
type Intent struct {
	types.Entity
	ID         id.IntentID `json:"id"`
	IdentityID string      `json:"identity_id"`
	AssetKey   string      `json:"asset_key"`
	Amount     types.Money `json:"amount"`
	Status     Status      `json:"status"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	AbandonedAt *time.Time `json:"abandoned_at,omitempty"`

	// ProviderRef is the settlement provider's reference for the completed
	// payment, recorded from the confirmation.
	ProviderRef string `json:"provider_ref,omitempty"`
}

// New creates a fresh Queued intent.
func New(identityID, assetKey string, amount types.Money) *Intent {
	return &Intent{
		Entity:     types.NewEntity(),
		ID:         id.NewIntentID(),
		IdentityID: identityID,
		AssetKey:   assetKey,
		Amount:     amount,
		Status:     StatusQueued,
	}
}
