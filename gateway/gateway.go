// Package gateway adapts the engine to external settlement providers.
//
// A provider hands the buyer off to an external checkout (Begin) and later
// posts a confirmation callback. Callbacks arrive over the open internet and
// are delivered at least once; every implementation must authenticate the
// payload before the engine will complete an intent. A parse or
// authentication failure is a protocol error, never a completed payment.
package gateway

import (
	"context"
	"errors"

	"github.com/marcbria/omp/id"
	"github.com/marcbria/omp/payment"
)

// ErrProtocol reports a malformed or unauthenticated provider callback.
var ErrProtocol = errors.New("gateway: protocol error")

// Redirect is the outbound handoff to the provider's checkout.
type Redirect struct {
	URL string `json:"url"`

	// Params carries the fields the provider form needs: intent id,
	// amount in minor units, and currency.
	Params map[string]string `json:"params,omitempty"`
}

// Confirmation is a verified provider callback, parsed down to the fields
// the engine needs to finalize an intent.
type Confirmation struct {
	IntentID id.IntentID `json:"intent_id"`

	// Reference is the provider-side transaction reference.
	Reference string `json:"reference"`
}

// Provider is the narrow interface to an external settlement system.
// Begin and ParseCallback are the only operations in the engine that may
// block on network I/O.
type Provider interface {
	Name() string

	// Begin prepares the handoff for a queued intent.
	Begin(ctx context.Context, intent *payment.Intent) (*Redirect, error)

	// ParseCallback authenticates and parses a provider callback.
	// It must return ErrProtocol (possibly wrapped) for anything it
	// cannot verify.
	ParseCallback(ctx context.Context, payload []byte, signature string) (*Confirmation, error)
}
