package audithook

// Action constants for audit events.
const (
	// Access actions
	ActionAccessGranted      = "access.granted"
	ActionAccessLoginNeeded  = "access.login_needed"
	ActionAccessPaymentAsked = "access.payment_asked"

	// Intent actions
	ActionIntentQueued    = "intent.queued"
	ActionIntentCompleted = "intent.completed"
	ActionIntentAbandoned = "intent.abandoned"

	// Entitlement actions
	ActionEntitlementRecorded = "entitlement.recorded"

	// Gateway actions
	ActionCallbackRejected = "callback.rejected"
)

// Resource constants for audit events.
const (
	ResourceAsset       = "asset"
	ResourceIntent      = "intent"
	ResourceEntitlement = "entitlement"
	ResourceGateway     = "gateway"
)

// Category constants for audit events.
const (
	CategoryAccess   = "access"
	CategoryPayment  = "payment"
	CategorySecurity = "security"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
