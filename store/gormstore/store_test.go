package gormstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marcbria/omp"
	"github.com/marcbria/omp/entitlement"
	"github.com/marcbria/omp/payment"
	"github.com/marcbria/omp/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestIntentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	in := payment.New("user_1", "pubf_a:file_b:r1", types.USD(2500))
	if err := s.CreateIntent(ctx, in); err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}

	got, err := s.GetIntent(ctx, in.ID)
	if err != nil {
		t.Fatalf("GetIntent failed: %v", err)
	}
	if got.Status != payment.StatusQueued {
		t.Errorf("status: got %s, want queued", got.Status)
	}
	if !got.Amount.Equal(types.USD(2500)) {
		t.Errorf("amount: got %s", got.Amount)
	}

	now := time.Now().UTC()
	completed, err := s.CompleteIntent(ctx, in.ID, "txn_1", now)
	if err != nil {
		t.Fatalf("CompleteIntent failed: %v", err)
	}
	if completed.Status != payment.StatusCompleted || completed.ProviderRef != "txn_1" {
		t.Errorf("completed: status=%s ref=%s", completed.Status, completed.ProviderRef)
	}

	// The guarded update loses on the second attempt.
	_, err = s.CompleteIntent(ctx, in.ID, "txn_2", now)
	if !errors.Is(err, omp.ErrIntentCompleted) {
		t.Fatalf("got %v, want ErrIntentCompleted", err)
	}

	_, err = s.AbandonIntent(ctx, in.ID, now)
	if !errors.Is(err, omp.ErrIntentCompleted) {
		t.Fatalf("abandon completed: got %v, want ErrIntentCompleted", err)
	}
}

func TestAbandonLifecycle(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	now := time.Now().UTC()

	in := payment.New("user_1", "pubf_a:file_b:r1", types.EUR(900))
	if err := s.CreateIntent(ctx, in); err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}

	got, err := s.AbandonIntent(ctx, in.ID, now)
	if err != nil {
		t.Fatalf("AbandonIntent failed: %v", err)
	}
	if got.Status != payment.StatusAbandoned || got.AbandonedAt == nil {
		t.Errorf("abandoned: status=%s at=%v", got.Status, got.AbandonedAt)
	}

	// Idempotent on already-abandoned.
	if _, err := s.AbandonIntent(ctx, in.ID, now); err != nil {
		t.Fatalf("repeat abandon failed: %v", err)
	}

	_, err = s.CompleteIntent(ctx, in.ID, "txn", now)
	if !errors.Is(err, omp.ErrIntentAbandoned) {
		t.Fatalf("complete abandoned: got %v, want ErrIntentAbandoned", err)
	}
}

func TestStaleIntents(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	old := payment.New("user_1", "pubf_a:file_b:r1", types.USD(100))
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	if err := s.CreateIntent(ctx, old); err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}

	fresh := payment.New("user_1", "pubf_a:file_b:r2", types.USD(100))
	if err := s.CreateIntent(ctx, fresh); err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}

	stale, err := s.ListStaleIntents(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ListStaleIntents failed: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Fatalf("stale: got %d rows", len(stale))
	}
}

func TestEntitlementIdempotence(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	rec := entitlement.NewRecord("user_1", "pubf_a:file_b:r1", time.Now().UTC())
	if err := s.RecordEntitlement(ctx, rec); err != nil {
		t.Fatalf("RecordEntitlement failed: %v", err)
	}

	// Same pair with a fresh record ID hits the unique index and no-ops.
	dup := entitlement.NewRecord("user_1", "pubf_a:file_b:r1", time.Now().UTC())
	if err := s.RecordEntitlement(ctx, dup); err != nil {
		t.Fatalf("duplicate RecordEntitlement failed: %v", err)
	}

	paid, err := s.HasPaid(ctx, "user_1", "pubf_a:file_b:r1")
	if err != nil || !paid {
		t.Fatalf("HasPaid: paid=%v err=%v", paid, err)
	}

	recs, err := s.ListEntitlements(ctx, "user_1")
	if err != nil {
		t.Fatalf("ListEntitlements failed: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("entitlements: got %d, want 1", len(recs))
	}
}
