// Package access defines the outcome of an access decision.
package access

import (
	"github.com/marcbria/omp/catalog"
	"github.com/marcbria/omp/payment"
)

// Decision classifies the outcome of an access check.
type Decision string

const (
	// Grant means the caller may receive the asset bytes now.
	Grant Decision = "grant"

	// RequireAuthentication means the asset is priced and the caller is
	// anonymous. The verdict carries the original ref so the request can
	// be replayed after login.
	RequireAuthentication Decision = "require_authentication"

	// RequirePayment means the caller is known but has not paid. The
	// verdict carries a freshly queued payment intent to hand to the
	// settlement provider.
	RequirePayment Decision = "require_payment"
)

// Verdict is the result of deciding one access request.
// Authentication-required and payment-required are normal outcomes, not
// errors; failures (unknown asset, store outage) surface as errors instead.
type Verdict struct {
	Decision Decision `json:"decision"`

	// Continue is the ref to replay after authentication.
	// Set only for RequireAuthentication.
	Continue *catalog.AssetRef `json:"continue,omitempty"`

	// Intent is the queued payment intent to settle.
	// Set only for RequirePayment.
	Intent *payment.Intent `json:"intent,omitempty"`
}

// Granted reports whether the verdict releases the asset.
func (v *Verdict) Granted() bool { return v.Decision == Grant }
