// Package entitlement is the feature gate: a pure decision table mapping a
// feature key, the current tier and today's usage ledger to a verdict.
package entitlement

// Reason explains why a feature was denied.
type Reason string

const (
	// ReasonPremiumRequired marks a hard-locked feature.
	ReasonPremiumRequired Reason = "premium_required"
	// ReasonDailyActionCapReached marks an exhausted daily privileged-action quota.
	ReasonDailyActionCapReached Reason = "daily_action_cap_reached"
	// ReasonDailyMessageCapReached marks an exhausted daily message quota.
	ReasonDailyMessageCapReached Reason = "daily_message_cap_reached"
)

// Verdict is the outcome of a gate check. Reason is set iff Allowed is false.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Feature string `json:"feature"`
	Reason  Reason `json:"reason,omitempty"`
}

// Allow returns an allowing verdict for feature.
func Allow(feature string) Verdict {
	return Verdict{Allowed: true, Feature: feature}
}

// Deny returns a denying verdict for feature.
func Deny(feature string, reason Reason) Verdict {
	return Verdict{Feature: feature, Reason: reason}
}

// IsQuota reports whether the verdict was denied by a daily cap, as opposed to
// a hard lock. Quota denials clear at the next rollover.
func (v Verdict) IsQuota() bool {
	return v.Reason == ReasonDailyActionCapReached || v.Reason == ReasonDailyMessageCapReached
}
