// Package entitlement defines durable proof of completed purchases.
package entitlement

import (
	"time"

	"github.com/marcbria/omp/id"
)

// Record is durable proof that an identity paid for an asset. There is at
// most one record per (identity, asset key); recording the same pair again
// is a no-op because settlement callbacks are delivered at least once.
type Record struct {
	ID          id.EntitlementID `json:"id"`
	IdentityID  string           `json:"identity_id"`
	AssetKey    string           `json:"asset_key"`
	CompletedAt time.Time        `json:"completed_at"`
}

// NewRecord creates a record for a completed purchase.
func NewRecord(identityID, assetKey string, completedAt time.Time) *Record {
	return &Record{
		ID:          id.NewEntitlementID(),
		IdentityID:  identityID,
		AssetKey:    assetKey,
		CompletedAt: completedAt,
	}
}

// Key returns the uniqueness key of the record.
func (r *Record) Key() string {
	return r.IdentityID + "|" + r.AssetKey
}
