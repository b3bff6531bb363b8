// Package plugin provides an extensible plugin system for entitle.
// Plugins can hook into engine lifecycle, gating and usage events.
package plugin

import (
	"context"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/meter"
	"github.com/xraph/entitle/subscription"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// OnStateLoaded is called after the persisted tier and ledger are read.
type OnStateLoaded interface {
	Plugin
	OnStateLoaded(ctx context.Context, tier subscription.Tier, l meter.Ledger) error
}

// ──────────────────────────────────────────────────
// Gating hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked is called for every gate evaluation.
type OnEntitlementChecked interface {
	Plugin
	OnEntitlementChecked(ctx context.Context, v entitlement.Verdict) error
}

// OnFeatureDenied is called when a gate evaluation denies a feature.
type OnFeatureDenied interface {
	Plugin
	OnFeatureDenied(ctx context.Context, v entitlement.Verdict, l meter.Ledger) error
}

// OnUnknownFeature is called when a key that the plan does not declare is evaluated.
type OnUnknownFeature interface {
	Plugin
	OnUnknownFeature(ctx context.Context, key string) error
}

// ──────────────────────────────────────────────────
// Usage and tier hooks
// ──────────────────────────────────────────────────

// OnUsageRecorded is called after a message or action is counted.
type OnUsageRecorded interface {
	Plugin
	OnUsageRecorded(ctx context.Context, evt meter.UsageEvent) error
}

// OnLedgerRolledOver is called when a stale ledger is reset for a new day.
type OnLedgerRolledOver interface {
	Plugin
	OnLedgerRolledOver(ctx context.Context, prev, next meter.Ledger) error
}

// OnTierChanged is called after an upgrade or downgrade.
type OnTierChanged interface {
	Plugin
	OnTierChanged(ctx context.Context, change subscription.Change) error
}

// OnPersistFailed is called when writing state to the store fails.
// The engine keeps serving from memory.
type OnPersistFailed interface {
	Plugin
	OnPersistFailed(ctx context.Context, key string, err error) error
}
