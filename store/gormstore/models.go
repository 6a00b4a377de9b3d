package gormstore

import (
	"time"

	"github.com/marcbria/omp/entitlement"
	"github.com/marcbria/omp/id"
	"github.com/marcbria/omp/payment"
	"github.com/marcbria/omp/types"
)

// intentRow is the relational shape of a payment intent. Money is stored
// as integer minor units next to its currency code.
type intentRow struct {
	ID         id.IntentID `gorm:"primaryKey;type:varchar(64)"`
	IdentityID string      `gorm:"index;type:varchar(128);not null"`
	AssetKey   string      `gorm:"index;type:varchar(256);not null"`
	Amount     int64       `gorm:"not null"`
	Currency   string      `gorm:"type:varchar(8);not null"`

	Status      payment.Status `gorm:"index;type:varchar(16);not null"`
	CompletedAt *time.Time
	AbandonedAt *time.Time
	ProviderRef string `gorm:"type:varchar(256)"`

	CreatedAt time.Time `gorm:"index;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (intentRow) TableName() string { return "payment_intents" }

func intentToRow(in *payment.Intent) *intentRow {
	return &intentRow{
		ID:          in.ID,
		IdentityID:  in.IdentityID,
		AssetKey:    in.AssetKey,
		Amount:      in.Amount.Amount,
		Currency:    in.Amount.Currency,
		Status:      in.Status,
		CompletedAt: in.CompletedAt,
		AbandonedAt: in.AbandonedAt,
		ProviderRef: in.ProviderRef,
		CreatedAt:   in.CreatedAt,
		UpdatedAt:   in.UpdatedAt,
	}
}

func (r *intentRow) toIntent() *payment.Intent {
	return &payment.Intent{
		Entity:      types.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		ID:          r.ID,
		IdentityID:  r.IdentityID,
		AssetKey:    r.AssetKey,
		Amount:      types.Money{Amount: r.Amount, Currency: r.Currency},
		Status:      r.Status,
		CompletedAt: r.CompletedAt,
		AbandonedAt: r.AbandonedAt,
		ProviderRef: r.ProviderRef,
	}
}

// entitlementRow is the relational shape of an entitlement record. The
// unique index on (identity_id, asset_key) is what makes recording
// idempotent under concurrent confirmations.
type entitlementRow struct {
	ID         id.EntitlementID `gorm:"primaryKey;type:varchar(64)"`
	IdentityID string           `gorm:"uniqueIndex:idx_entitlement_pair;type:varchar(128);not null"`
	AssetKey   string           `gorm:"uniqueIndex:idx_entitlement_pair;type:varchar(256);not null"`

	CompletedAt time.Time `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (entitlementRow) TableName() string { return "entitlements" }

func recordToRow(rec *entitlement.Record) *entitlementRow {
	return &entitlementRow{
		ID:          rec.ID,
		IdentityID:  rec.IdentityID,
		AssetKey:    rec.AssetKey,
		CompletedAt: rec.CompletedAt,
	}
}

func (r *entitlementRow) toRecord() *entitlement.Record {
	return &entitlement.Record{
		ID:          r.ID,
		IdentityID:  r.IdentityID,
		AssetKey:    r.AssetKey,
		CompletedAt: r.CompletedAt,
	}
}
