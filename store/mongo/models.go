package mongo

import (
	"time"

	"github.com/marcbria/omp/entitlement"
	"github.com/marcbria/omp/id"
	"github.com/marcbria/omp/payment"
	"github.com/marcbria/omp/types"
)

type intentModel struct {
	ID         string `bson:"_id"`
	IdentityID string `bson:"identity_id"`
	AssetKey   string `bson:"asset_key"`
	Amount     int64  `bson:"amount"`
	Currency   string `bson:"currency"`

	Status      string     `bson:"status"`
	CompletedAt *time.Time `bson:"completed_at,omitempty"`
	AbandonedAt *time.Time `bson:"abandoned_at,omitempty"`
	ProviderRef string     `bson:"provider_ref,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toIntentModel(in *payment.Intent) *intentModel {
	return &intentModel{
		ID:          in.ID.String(),
		IdentityID:  in.IdentityID,
		AssetKey:    in.AssetKey,
		Amount:      in.Amount.Amount,
		Currency:    in.Amount.Currency,
		Status:      string(in.Status),
		CompletedAt: in.CompletedAt,
		AbandonedAt: in.AbandonedAt,
		ProviderRef: in.ProviderRef,
		CreatedAt:   in.CreatedAt,
		UpdatedAt:   in.UpdatedAt,
	}
}

func fromIntentModel(m *intentModel) (*payment.Intent, error) {
	intentID, err := id.ParseIntentID(m.ID)
	if err != nil {
		return nil, err
	}

	return &payment.Intent{
		Entity:      types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          intentID,
		IdentityID:  m.IdentityID,
		AssetKey:    m.AssetKey,
		Amount:      types.Money{Amount: m.Amount, Currency: m.Currency},
		Status:      payment.Status(m.Status),
		CompletedAt: m.CompletedAt,
		AbandonedAt: m.AbandonedAt,
		ProviderRef: m.ProviderRef,
	}, nil
}

type entitlementModel struct {
	ID          string    `bson:"_id"`
	IdentityID  string    `bson:"identity_id"`
	AssetKey    string    `bson:"asset_key"`
	CompletedAt time.Time `bson:"completed_at"`
}

func toEntitlementModel(rec *entitlement.Record) *entitlementModel {
	return &entitlementModel{
		ID:          rec.ID.String(),
		IdentityID:  rec.IdentityID,
		AssetKey:    rec.AssetKey,
		CompletedAt: rec.CompletedAt,
	}
}

func fromEntitlementModel(m *entitlementModel) (*entitlement.Record, error) {
	recID, err := id.Parse(m.ID)
	if err != nil {
		return nil, err
	}

	return &entitlement.Record{
		ID:          recID,
		IdentityID:  m.IdentityID,
		AssetKey:    m.AssetKey,
		CompletedAt: m.CompletedAt,
	}, nil
}
