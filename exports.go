package entitle

import (
	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/meter"
	"github.com/xraph/entitle/subscription"
	"github.com/xraph/entitle/types"
)

// Re-export common types for convenience so users don't have to import the
// domain packages for everyday calls.

// Verdict is re-exported from the entitlement package.
type Verdict = entitlement.Verdict

// Reason is re-exported from the entitlement package.
type Reason = entitlement.Reason

// Ledger is re-exported from the meter package.
type Ledger = meter.Ledger

// Tier is re-exported from the subscription package.
type Tier = subscription.Tier

// Entity is re-exported from the types package.
type Entity = types.Entity

// Re-export tier and reason constants.
const (
	TierFree    = subscription.TierFree
	TierPremium = subscription.TierPremium

	ReasonPremiumRequired        = entitlement.ReasonPremiumRequired
	ReasonDailyActionCapReached  = entitlement.ReasonDailyActionCapReached
	ReasonDailyMessageCapReached = entitlement.ReasonDailyMessageCapReached
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
