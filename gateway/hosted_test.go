package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/marcbria/omp/payment"
	"github.com/marcbria/omp/types"
)

func newHosted() *Hosted {
	return NewHosted("hosted", "https://pay.example.org/checkout", []byte("s3cret"))
}

func TestBeginCarriesIntentFields(t *testing.T) {
	ctx := context.Background()
	h := newHosted()

	intent := payment.New("user_1", "pubf_a:file_b:r1", types.USD(500))
	redirect, err := h.Begin(ctx, intent)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	if redirect.Params["intent"] != intent.ID.String() {
		t.Errorf("intent param: got %q", redirect.Params["intent"])
	}
	if redirect.Params["amount"] != "500" {
		t.Errorf("amount param: got %q", redirect.Params["amount"])
	}
	if redirect.Params["currency"] != "usd" {
		t.Errorf("currency param: got %q", redirect.Params["currency"])
	}
	if !strings.HasPrefix(redirect.URL, "https://pay.example.org/checkout?") {
		t.Errorf("unexpected redirect URL %q", redirect.URL)
	}
}

func TestBeginRejectsTerminalIntent(t *testing.T) {
	ctx := context.Background()
	h := newHosted()

	intent := payment.New("user_1", "pubf_a:file_b:r1", types.USD(500))
	intent.Status = payment.StatusCompleted

	if _, err := h.Begin(ctx, intent); err == nil {
		t.Error("expected error for completed intent")
	}
}

func TestParseCallback(t *testing.T) {
	ctx := context.Background()
	h := newHosted()

	intent := payment.New("user_1", "pubf_a:file_b:r1", types.USD(500))
	payload, _ := json.Marshal(map[string]string{
		"intent_id": intent.ID.String(),
		"reference": "txn-001",
		"status":    "paid",
	})

	conf, err := h.ParseCallback(ctx, payload, h.Sign(payload))
	if err != nil {
		t.Fatalf("ParseCallback failed: %v", err)
	}
	if conf.IntentID.String() != intent.ID.String() {
		t.Errorf("intent id: got %q, want %q", conf.IntentID, intent.ID)
	}
	if conf.Reference != "txn-001" {
		t.Errorf("reference: got %q", conf.Reference)
	}
}

func TestParseCallbackRejects(t *testing.T) {
	ctx := context.Background()
	h := newHosted()

	intent := payment.New("user_1", "pubf_a:file_b:r1", types.USD(500))
	valid, _ := json.Marshal(map[string]string{
		"intent_id": intent.ID.String(),
		"reference": "txn-001",
		"status":    "paid",
	})

	tests := []struct {
		name      string
		payload   []byte
		signature string
	}{
		{"bad signature", valid, "deadbeef"},
		{"signature not hex", valid, "zz"},
		{"tampered payload", append([]byte(" "), valid...), h.Sign(valid)},
		{"malformed json", []byte("{"), h.Sign([]byte("{"))},
		{"unpaid status", mustSignable(t, intent.ID.String(), "failed"), h.Sign(mustSignable(t, intent.ID.String(), "failed"))},
		{"bad intent id", mustSignable(t, "file_xyz", "paid"), h.Sign(mustSignable(t, "file_xyz", "paid"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.ParseCallback(ctx, tt.payload, tt.signature)
			if !errors.Is(err, ErrProtocol) {
				t.Errorf("expected ErrProtocol, got %v", err)
			}
		})
	}
}

func mustSignable(t *testing.T, intentID, status string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]string{
		"intent_id": intentID,
		"reference": "txn-001",
		"status":    status,
	})
	if err != nil {
		t.Fatal(err)
	}
	return payload
}
