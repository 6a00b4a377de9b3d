package audithook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marcbria/omp/access"
	"github.com/marcbria/omp/catalog"
	"github.com/marcbria/omp/entitlement"
	"github.com/marcbria/omp/id"
	"github.com/marcbria/omp/payment"
	"github.com/marcbria/omp/types"
)

type capture struct {
	events []*AuditEvent
}

func (c *capture) Record(_ context.Context, evt *AuditEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func TestAccessDecisionActions(t *testing.T) {
	ctx := context.Background()
	ref := catalog.AssetRef{
		WorkID:   id.NewWorkID(),
		FormatID: id.NewFormatID(),
		FileID:   id.NewFileID(),
		Revision: 1,
	}

	cases := map[access.Decision]string{
		access.Grant:                 ActionAccessGranted,
		access.RequireAuthentication: ActionAccessLoginNeeded,
		access.RequirePayment:        ActionAccessPaymentAsked,
	}

	for decision, want := range cases {
		rec := &capture{}
		ext := New(rec)

		err := ext.OnAccessDecided(ctx, "user_1", ref, &access.Verdict{Decision: decision})
		if err != nil {
			t.Fatalf("OnAccessDecided(%s) failed: %v", decision, err)
		}
		if len(rec.events) != 1 || rec.events[0].Action != want {
			t.Errorf("decision %s: got action %q, want %q", decision, rec.events[0].Action, want)
		}
	}
}

func TestCallbackRejectedIsSecurityEvent(t *testing.T) {
	rec := &capture{}
	ext := New(rec)

	err := ext.OnCallbackRejected(context.Background(), "manual-fee", errors.New("bad signature"))
	if err != nil {
		t.Fatalf("OnCallbackRejected failed: %v", err)
	}

	evt := rec.events[0]
	if evt.Category != CategorySecurity || evt.Severity != SeverityError {
		t.Errorf("got category=%s severity=%s", evt.Category, evt.Severity)
	}
	if evt.Reason == "" {
		t.Error("reason should carry the verification error")
	}
}

func TestDisabledActionsSkipped(t *testing.T) {
	rec := &capture{}
	ext := New(rec, WithDisabledActions(ActionIntentQueued))

	in := payment.New("user_1", "pubf_a:file_b:r1", types.USD(500))
	if err := ext.OnIntentCreated(context.Background(), in); err != nil {
		t.Fatalf("OnIntentCreated failed: %v", err)
	}
	if len(rec.events) != 0 {
		t.Errorf("disabled action emitted %d events", len(rec.events))
	}

	// Other actions still fire.
	r := entitlement.NewRecord("user_1", "pubf_a:file_b:r1", time.Now().UTC())
	if err := ext.OnEntitlementRecorded(context.Background(), r); err != nil {
		t.Fatalf("OnEntitlementRecorded failed: %v", err)
	}
	if len(rec.events) != 1 {
		t.Errorf("enabled action: got %d events, want 1", len(rec.events))
	}
}
