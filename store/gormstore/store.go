// Package gormstore provides the relational Store driver. It speaks
// PostgreSQL for production and SQLite for single-host deployments, both
// through the same GORM models.
//
// Atomicity model: intent transitions are a guarded UPDATE on the queued
// status (the row version is the status itself), and entitlement recording
// relies on the unique (identity, asset key) index with a do-nothing
// conflict clause. Neither path needs an explicit transaction.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/marcbria/omp"
	"github.com/marcbria/omp/entitlement"
	"github.com/marcbria/omp/id"
	"github.com/marcbria/omp/payment"
	"github.com/marcbria/omp/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	db *gorm.DB
}

// NewPostgres opens a PostgreSQL-backed store.
func NewPostgres(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("gormstore: open postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// NewSQLite opens a SQLite-backed store at the given path.
func NewSQLite(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("gormstore: open sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing gorm.DB. Useful when the host application already
// manages the connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
}

// Intent Store implementation

func (s *Store) CreateIntent(ctx context.Context, intent *payment.Intent) error {
	if err := s.db.WithContext(ctx).Create(intentToRow(intent)).Error; err != nil {
		return fmt.Errorf("%w: create intent: %v", omp.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) GetIntent(ctx context.Context, intentID id.IntentID) (*payment.Intent, error) {
	var row intentRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", intentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, omp.ErrUnknownIntent
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get intent: %v", omp.ErrStoreUnavailable, err)
	}
	return row.toIntent(), nil
}

func (s *Store) CompleteIntent(ctx context.Context, intentID id.IntentID, providerRef string, at time.Time) (*payment.Intent, error) {
	res := s.db.WithContext(ctx).
		Model(&intentRow{}).
		Where("id = ? AND status = ?", intentID, payment.StatusQueued).
		Updates(map[string]any{
			"status":       payment.StatusCompleted,
			"completed_at": at,
			"provider_ref": providerRef,
			"updated_at":   at,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("%w: complete intent: %v", omp.ErrStoreUnavailable, res.Error)
	}

	// RowsAffected == 1 means this call won the transition. Otherwise the
	// intent is terminal or missing; read it back to say which.
	if res.RowsAffected == 1 {
		return s.GetIntent(ctx, intentID)
	}
	return s.classifyTerminal(ctx, intentID, false)
}

func (s *Store) AbandonIntent(ctx context.Context, intentID id.IntentID, at time.Time) (*payment.Intent, error) {
	res := s.db.WithContext(ctx).
		Model(&intentRow{}).
		Where("id = ? AND status = ?", intentID, payment.StatusQueued).
		Updates(map[string]any{
			"status":       payment.StatusAbandoned,
			"abandoned_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("%w: abandon intent: %v", omp.ErrStoreUnavailable, res.Error)
	}

	if res.RowsAffected == 1 {
		return s.GetIntent(ctx, intentID)
	}
	return s.classifyTerminal(ctx, intentID, true)
}

// classifyTerminal maps a lost status transition to the sentinel the caller
// expects. abandonOK makes an already-abandoned intent a no-op instead of
// an error.
func (s *Store) classifyTerminal(ctx context.Context, intentID id.IntentID, abandonOK bool) (*payment.Intent, error) {
	intent, err := s.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	switch intent.Status {
	case payment.StatusCompleted:
		return intent, omp.ErrIntentCompleted
	case payment.StatusAbandoned:
		if abandonOK {
			return intent, nil
		}
		return intent, omp.ErrIntentAbandoned
	default:
		// Queued again can only mean a racing writer; the caller retries.
		return intent, fmt.Errorf("%w: lost transition race on %s", omp.ErrStoreUnavailable, intentID)
	}
}

func (s *Store) ListStaleIntents(ctx context.Context, before time.Time) ([]*payment.Intent, error) {
	var rows []intentRow
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", payment.StatusQueued, before).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list stale intents: %v", omp.ErrStoreUnavailable, err)
	}

	intents := make([]*payment.Intent, len(rows))
	for i := range rows {
		intents[i] = rows[i].toIntent()
	}
	return intents, nil
}

// Entitlement Store implementation

func (s *Store) HasPaid(ctx context.Context, identityID, assetKey string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&entitlementRow{}).
		Where("identity_id = ? AND asset_key = ?", identityID, assetKey).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: entitlement lookup: %v", omp.ErrStoreUnavailable, err)
	}
	return count > 0, nil
}

func (s *Store) RecordEntitlement(ctx context.Context, rec *entitlement.Record) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identity_id"}, {Name: "asset_key"}},
			DoNothing: true,
		}).
		Create(recordToRow(rec)).Error
	if err != nil {
		return fmt.Errorf("%w: record entitlement: %v", omp.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) ListEntitlements(ctx context.Context, identityID string) ([]*entitlement.Record, error) {
	var rows []entitlementRow
	err := s.db.WithContext(ctx).
		Where("identity_id = ?", identityID).
		Order("completed_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list entitlements: %v", omp.ErrStoreUnavailable, err)
	}

	recs := make([]*entitlement.Record, len(rows))
	for i := range rows {
		recs[i] = rows[i].toRecord()
	}
	return recs, nil
}

// Store management

func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&intentRow{}, &entitlementRow{}); err != nil {
		return fmt.Errorf("%w: migrate: %v", omp.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", omp.ErrStoreUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", omp.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
