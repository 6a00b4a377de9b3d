// Package redis decorates another Store with a Redis-backed entitlement
// cache. HasPaid dominates read traffic on a catalog page and its answer
// only ever flips from no to yes, so positive answers are cached with a
// TTL and negatives always go to the inner store.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcbria/omp/entitlement"
	"github.com/marcbria/omp/id"
	"github.com/marcbria/omp/payment"
	"github.com/marcbria/omp/store"
)

var _ store.Store = (*Store)(nil)

const defaultTTL = 15 * time.Minute

// Store wraps an inner Store with a Redis entitlement cache. Every other
// operation passes straight through.
type Store struct {
	inner  store.Store
	client redis.UniversalClient
	ttl    time.Duration
}

// New decorates inner with an entitlement cache on client.
func New(inner store.Store, client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		inner:  inner,
		client: client,
		ttl:    defaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Option func(*Store)

// WithTTL sets the cache entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

func cacheKey(identityID, assetKey string) string {
	return "omp:paid:" + identityID + "|" + assetKey
}

// HasPaid serves cached positives and falls through to the inner store
// otherwise. Cache failures are treated as misses; the inner store stays
// authoritative and a broken cache never blocks or grants a download.
func (s *Store) HasPaid(ctx context.Context, identityID, assetKey string) (bool, error) {
	key := cacheKey(identityID, assetKey)

	if val, err := s.client.Get(ctx, key).Result(); err == nil && val == "1" {
		return true, nil
	}

	paid, err := s.inner.HasPaid(ctx, identityID, assetKey)
	if err != nil {
		return false, err
	}
	if paid {
		s.client.Set(ctx, key, "1", s.ttl)
	}
	return paid, nil
}

// RecordEntitlement writes through to the inner store and primes the cache
// on success.
func (s *Store) RecordEntitlement(ctx context.Context, rec *entitlement.Record) error {
	if err := s.inner.RecordEntitlement(ctx, rec); err != nil {
		return err
	}
	s.client.Set(ctx, cacheKey(rec.IdentityID, rec.AssetKey), "1", s.ttl)
	return nil
}

// Pass-through operations

func (s *Store) CreateIntent(ctx context.Context, intent *payment.Intent) error {
	return s.inner.CreateIntent(ctx, intent)
}

func (s *Store) GetIntent(ctx context.Context, intentID id.IntentID) (*payment.Intent, error) {
	return s.inner.GetIntent(ctx, intentID)
}

func (s *Store) CompleteIntent(ctx context.Context, intentID id.IntentID, providerRef string, at time.Time) (*payment.Intent, error) {
	return s.inner.CompleteIntent(ctx, intentID, providerRef, at)
}

func (s *Store) AbandonIntent(ctx context.Context, intentID id.IntentID, at time.Time) (*payment.Intent, error) {
	return s.inner.AbandonIntent(ctx, intentID, at)
}

func (s *Store) ListStaleIntents(ctx context.Context, before time.Time) ([]*payment.Intent, error) {
	return s.inner.ListStaleIntents(ctx, before)
}

func (s *Store) ListEntitlements(ctx context.Context, identityID string) ([]*entitlement.Record, error) {
	return s.inner.ListEntitlements(ctx, identityID)
}

func (s *Store) Migrate(ctx context.Context) error { return s.inner.Migrate(ctx) }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return err
	}
	return s.inner.Ping(ctx)
}

func (s *Store) Close() error {
	_ = s.client.Close()
	return s.inner.Close()
}
