package omp

import (
	"errors"

	"github.com/marcbria/omp/catalog"
	"github.com/marcbria/omp/gateway"
)

// Sentinel errors for common failure scenarios.
var (
	// Asset errors. Both are fatal to the request; there is nothing to
	// retry and no identity for which the outcome differs.
	ErrAssetNotFound       = errors.New("omp: asset not found")
	ErrAssetNotRetrievable = errors.New("omp: asset not approved or not available")

	// Payment-finalization errors. ErrIntentCompleted marks a duplicate
	// completion of the same intent, logged and treated as success
	// toward the caller, since the entitlement already exists.
	ErrUnknownIntent   = errors.New("omp: unknown payment intent")
	ErrIntentCompleted = errors.New("omp: intent already completed")
	ErrIntentAbandoned = errors.New("omp: intent abandoned")

	// ErrGatewayProtocol marks a malformed or unauthenticated provider
	// callback. It must never result in an entitlement.
	ErrGatewayProtocol = gateway.ErrProtocol

	// ErrStoreUnavailable marks a transient persistence failure. The
	// request fails loudly; access is never granted on a failed read.
	ErrStoreUnavailable = errors.New("omp: store unavailable")

	// ErrPaymentsNotConfigured is returned when a priced asset is
	// requested but the engine was built without a settlement provider.
	ErrPaymentsNotConfigured = errors.New("omp: payments not configured")
)

// IsInvalidAsset returns true if the error marks an asset that can never be
// served: unknown, unapproved, or unavailable.
func IsInvalidAsset(err error) bool {
	return errors.Is(err, ErrAssetNotFound) ||
		errors.Is(err, ErrAssetNotRetrievable) ||
		errors.Is(err, catalog.ErrAssetNotFound)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsGatewayError returns true if the error came from the settlement
// provider boundary and should surface as a retryable user-facing failure.
func IsGatewayError(err error) bool {
	return errors.Is(err, ErrGatewayProtocol)
}
