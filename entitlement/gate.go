package entitlement

import (
	"fmt"
	"slices"
	"strings"

	"github.com/xraph/entitle/meter"
	"github.com/xraph/entitle/plan"
	"github.com/xraph/entitle/subscription"
)

// Gate evaluates feature requests against a plan's decision table.
// A Gate is immutable and safe for concurrent use.
type Gate struct {
	plan *plan.Plan
}

var defaultGate = NewGate(plan.Free())

// NewGate creates a gate over a copy of p. A nil plan means plan.Free().
func NewGate(p *plan.Plan) *Gate {
	if p == nil {
		return &Gate{plan: plan.Free()}
	}
	cp := *p
	cp.Features = slices.Clone(p.Features)
	return &Gate{plan: &cp}
}

// Limits returns the gate's daily caps.
func (g *Gate) Limits() plan.Limits { return g.plan.Limits }

// Evaluate checks key against the default free plan.
func Evaluate(key string, tier subscription.Tier, l meter.Ledger) Verdict {
	return defaultGate.Evaluate(key, tier, l)
}

// Evaluate decides whether key may be used right now. l must already be
// rolled over to today; the gate does not look at dates.
//
// Premium is never gated. For the free tier, locked features are denied,
// metered features are denied once either daily cap is reached (the action
// cap is reported first), and anything else, including unknown keys, is
// allowed.
func (g *Gate) Evaluate(key string, tier subscription.Tier, l meter.Ledger) Verdict {
	if tier.IsPremium() {
		return Allow(key)
	}

	f := g.plan.FindFeature(key)
	if f == nil {
		return Allow(key)
	}

	switch f.Type {
	case plan.FeatureLocked:
		return Deny(key, ReasonPremiumRequired)
	case plan.FeatureMetered:
		if l.ActionCount >= g.plan.Limits.DailyActions {
			return Deny(key, ReasonDailyActionCapReached)
		}
		if l.MessageCount >= g.plan.Limits.DailyMessages {
			return Deny(key, ReasonDailyMessageCapReached)
		}
		return Allow(key)
	default:
		return Allow(key)
	}
}

// Known reports whether key appears in the decision table.
func (g *Gate) Known(key string) bool {
	return g.plan.FindFeature(key) != nil
}

// UnknownFeatureError lists keys missing from the decision table.
type UnknownFeatureError struct {
	Keys []string
}

func (e *UnknownFeatureError) Error() string {
	return fmt.Sprintf("entitlement: unknown feature keys: %s", strings.Join(e.Keys, ", "))
}

// ValidateKeys returns an *UnknownFeatureError naming every key the gate does
// not know. Hosts run it over the keys they actually use to catch typos that
// would otherwise silently fail open.
func (g *Gate) ValidateKeys(keys ...string) error {
	var unknown []string
	for _, k := range keys {
		if !g.Known(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		return &UnknownFeatureError{Keys: unknown}
	}
	return nil
}
