// Package memory provides a mutex-guarded in-memory Store for embedding
// and tests. State does not survive restarts; production deployments use
// one of the durable drivers.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/marcbria/omp"
	"github.com/marcbria/omp/entitlement"
	"github.com/marcbria/omp/id"
	"github.com/marcbria/omp/payment"
	"github.com/marcbria/omp/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Intent storage
	intents map[string]*payment.Intent

	// Entitlement storage, keyed by identity|assetKey
	entitlements map[string]*entitlement.Record
}

func New() *Store {
	return &Store{
		intents:      make(map[string]*payment.Intent),
		entitlements: make(map[string]*entitlement.Record),
	}
}

// Intent Store implementation

func (s *Store) CreateIntent(_ context.Context, intent *payment.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *intent
	s.intents[intent.ID.String()] = &cp
	return nil
}

func (s *Store) GetIntent(_ context.Context, intentID id.IntentID) (*payment.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if in, ok := s.intents[intentID.String()]; ok {
		cp := *in
		return &cp, nil
	}
	return nil, omp.ErrUnknownIntent
}

func (s *Store) CompleteIntent(_ context.Context, intentID id.IntentID, providerRef string, at time.Time) (*payment.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.intents[intentID.String()]
	if !ok {
		return nil, omp.ErrUnknownIntent
	}

	switch in.Status {
	case payment.StatusCompleted:
		cp := *in
		return &cp, omp.ErrIntentCompleted
	case payment.StatusAbandoned:
		cp := *in
		return &cp, omp.ErrIntentAbandoned
	}

	in.Status = payment.StatusCompleted
	in.CompletedAt = &at
	in.ProviderRef = providerRef
	in.Touch()

	cp := *in
	return &cp, nil
}

func (s *Store) AbandonIntent(_ context.Context, intentID id.IntentID, at time.Time) (*payment.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.intents[intentID.String()]
	if !ok {
		return nil, omp.ErrUnknownIntent
	}

	switch in.Status {
	case payment.StatusCompleted:
		cp := *in
		return &cp, omp.ErrIntentCompleted
	case payment.StatusAbandoned:
		cp := *in
		return &cp, nil
	}

	in.Status = payment.StatusAbandoned
	in.AbandonedAt = &at
	in.Touch()

	cp := *in
	return &cp, nil
}

func (s *Store) ListStaleIntents(_ context.Context, before time.Time) ([]*payment.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.Intent, 0)
	for _, in := range s.intents {
		if in.Status == payment.StatusQueued && in.CreatedAt.Before(before) {
			cp := *in
			result = append(result, &cp)
		}
	}
	return result, nil
}

// Entitlement Store implementation

func (s *Store) HasPaid(_ context.Context, identityID, assetKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entitlements[identityID+"|"+assetKey]
	return ok, nil
}

func (s *Store) RecordEntitlement(_ context.Context, rec *entitlement.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	if _, exists := s.entitlements[key]; exists {
		// Idempotent: at-least-once callback delivery.
		return nil
	}

	cp := *rec
	s.entitlements[key] = &cp
	return nil
}

func (s *Store) ListEntitlements(_ context.Context, identityID string) ([]*entitlement.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*entitlement.Record, 0)
	for _, rec := range s.entitlements {
		if rec.IdentityID == identityID {
			cp := *rec
			result = append(result, &cp)
		}
	}
	return result, nil
}

// Store management

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}
