package audithook

// Action constants for audit events.
const (
	// Tier actions
	ActionTierUpgraded   = "tier.upgraded"
	ActionTierDowngraded = "tier.downgraded"

	// Usage actions
	ActionMessageRecorded  = "usage.message_recorded"
	ActionActionRecorded   = "usage.action_recorded"
	ActionLedgerRolledOver = "usage.rolled_over"

	// Entitlement actions
	ActionEntitlementDenied = "entitlement.denied"
	ActionUnknownFeature    = "entitlement.unknown_feature"

	// Store actions
	ActionStateLoaded   = "state.loaded"
	ActionPersistFailed = "state.persist_failed"
)

// Resource constants for audit events.
const (
	ResourceTier        = "tier"
	ResourceUsage       = "usage"
	ResourceEntitlement = "entitlement"
	ResourceStore       = "store"
)

// Category constants for audit events.
const (
	CategorySubscription = "subscription"
	CategoryUsage        = "usage"
	CategoryAccess       = "access"
	CategoryStorage      = "storage"
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
