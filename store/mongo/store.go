// Package mongo provides the MongoDB Store driver.
//
// Intent transitions use FindOneAndUpdate with a status filter so the
// Queued→terminal edge is taken exactly once, and entitlement recording is
// an upsert with $setOnInsert against a unique (identity, asset key) index.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/marcbria/omp"
	"github.com/marcbria/omp/entitlement"
	"github.com/marcbria/omp/id"
	"github.com/marcbria/omp/payment"
	"github.com/marcbria/omp/store"
)

// Collection name constants.
const (
	colIntents      = "omp_payment_intents"
	colEntitlements = "omp_entitlements"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New creates a MongoDB store on the given database.
func New(client *mongo.Client, database string) *Store {
	return &Store{
		client: client,
		db:     client.Database(database),
	}
}

// Connect dials the given MongoDB URI and returns a store on database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("omp/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("omp/mongo: ping: %w", err)
	}
	return New(client, database), nil
}

func (s *Store) intents() *mongo.Collection      { return s.db.Collection(colIntents) }
func (s *Store) entitlements() *mongo.Collection { return s.db.Collection(colEntitlements) }

// Intent Store implementation

func (s *Store) CreateIntent(ctx context.Context, intent *payment.Intent) error {
	if _, err := s.intents().InsertOne(ctx, toIntentModel(intent)); err != nil {
		return fmt.Errorf("%w: create intent: %v", omp.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) GetIntent(ctx context.Context, intentID id.IntentID) (*payment.Intent, error) {
	var m intentModel
	err := s.intents().FindOne(ctx, bson.M{"_id": intentID.String()}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, omp.ErrUnknownIntent
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get intent: %v", omp.ErrStoreUnavailable, err)
	}
	return fromIntentModel(&m)
}

func (s *Store) CompleteIntent(ctx context.Context, intentID id.IntentID, providerRef string, at time.Time) (*payment.Intent, error) {
	update := bson.M{"$set": bson.M{
		"status":       string(payment.StatusCompleted),
		"completed_at": at,
		"provider_ref": providerRef,
		"updated_at":   at,
	}}

	intent, err := s.transition(ctx, intentID, update)
	if err == nil || !errors.Is(err, errLostTransition) {
		return intent, err
	}
	return s.classifyTerminal(ctx, intentID, false)
}

func (s *Store) AbandonIntent(ctx context.Context, intentID id.IntentID, at time.Time) (*payment.Intent, error) {
	update := bson.M{"$set": bson.M{
		"status":       string(payment.StatusAbandoned),
		"abandoned_at": at,
		"updated_at":   at,
	}}

	intent, err := s.transition(ctx, intentID, update)
	if err == nil || !errors.Is(err, errLostTransition) {
		return intent, err
	}
	return s.classifyTerminal(ctx, intentID, true)
}

var errLostTransition = errors.New("omp/mongo: intent not queued")

// transition applies update to the intent only while it is still queued.
func (s *Store) transition(ctx context.Context, intentID id.IntentID, update bson.M) (*payment.Intent, error) {
	filter := bson.M{"_id": intentID.String(), "status": string(payment.StatusQueued)}

	var m intentModel
	err := s.intents().
		FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errLostTransition
	}
	if err != nil {
		return nil, fmt.Errorf("%w: intent transition: %v", omp.ErrStoreUnavailable, err)
	}
	return fromIntentModel(&m)
}

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
		return intent, fmt.Errorf("%w: lost transition race on %s", omp.ErrStoreUnavailable, intentID)
	}
}

func (s *Store) ListStaleIntents(ctx context.Context, before time.Time) ([]*payment.Intent, error) {
	filter := bson.M{
		"status":     string(payment.StatusQueued),
		"created_at": bson.M{"$lt": before},
	}

	cur, err := s.intents().Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: list stale intents: %v", omp.ErrStoreUnavailable, err)
	}
	defer cur.Close(ctx)

	var intents []*payment.Intent
	for cur.Next(ctx) {
		var m intentModel
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("%w: decode intent: %v", omp.ErrStoreUnavailable, err)
		}
		intent, err := fromIntentModel(&m)
		if err != nil {
			return nil, err
		}
		intents = append(intents, intent)
	}
	return intents, cur.Err()
}

// Entitlement Store implementation

func (s *Store) HasPaid(ctx context.Context, identityID, assetKey string) (bool, error) {
	count, err := s.entitlements().CountDocuments(ctx, bson.M{
		"identity_id": identityID,
		"asset_key":   assetKey,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("%w: entitlement lookup: %v", omp.ErrStoreUnavailable, err)
	}
	return count > 0, nil
}

func (s *Store) RecordEntitlement(ctx context.Context, rec *entitlement.Record) error {
	m := toEntitlementModel(rec)

	filter := bson.M{"identity_id": m.IdentityID, "asset_key": m.AssetKey}
	update := bson.M{"$setOnInsert": m}

	_, err := s.entitlements().UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: record entitlement: %v", omp.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) ListEntitlements(ctx context.Context, identityID string) ([]*entitlement.Record, error) {
	cur, err := s.entitlements().Find(ctx, bson.M{"identity_id": identityID},
		options.Find().SetSort(bson.D{{Key: "completed_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: list entitlements: %v", omp.ErrStoreUnavailable, err)
	}
	defer cur.Close(ctx)

	var recs []*entitlement.Record
	for cur.Next(ctx) {
		var m entitlementModel
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("%w: decode entitlement: %v", omp.ErrStoreUnavailable, err)
		}
		rec, err := fromEntitlementModel(&m)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, cur.Err()
}

// Store management

// Migrate creates the indexes both collections rely on. The unique
// entitlement index is load-bearing for idempotent recording.
func (s *Store) Migrate(ctx context.Context) error {
	intentIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "identity_id", Value: 1}, {Key: "asset_key", Value: 1}}},
	}
	if _, err := s.intents().Indexes().CreateMany(ctx, intentIndexes); err != nil {
		return fmt.Errorf("omp/mongo: migrate %s indexes: %w", colIntents, err)
	}

	entitlementIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "identity_id", Value: 1}, {Key: "asset_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := s.entitlements().Indexes().CreateMany(ctx, entitlementIndexes); err != nil {
		return fmt.Errorf("omp/mongo: migrate %s indexes: %w", colEntitlements, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}
