// Package observability provides a metrics extension for entitle that records
// lifecycle event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/meter"
	"github.com/xraph/entitle/plugin"
	"github.com/xraph/entitle/subscription"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnStateLoaded        = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementChecked = (*MetricsExtension)(nil)
	_ plugin.OnFeatureDenied      = (*MetricsExtension)(nil)
	_ plugin.OnUnknownFeature     = (*MetricsExtension)(nil)
	_ plugin.OnUsageRecorded      = (*MetricsExtension)(nil)
	_ plugin.OnLedgerRolledOver   = (*MetricsExtension)(nil)
	_ plugin.OnTierChanged        = (*MetricsExtension)(nil)
	_ plugin.OnPersistFailed      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records entitlement metrics.
// Register it as an engine plugin to track gating and usage.
type MetricsExtension struct {
	factory MetricFactory

	// State metrics
	StateLoaded     Counter
	LedgerRollovers Counter

	// Tier metrics
	TierUpgraded   Counter
	TierDowngraded Counter

	// Gate metrics
	EntitlementChecks  Counter
	EntitlementDenied  Counter
	DeniedPremium      Counter
	DeniedMessageCap   Counter
	DeniedActionCap    Counter
	UnknownFeatureKeys Counter

	// Usage metrics
	MessagesRecorded Counter
	ActionsRecorded  Counter
	DailyMessages    Histogram
	DailyActions     Histogram

	// Error metrics
	StoreErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions, or NewPrometheusFactory elsewhere.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		StateLoaded:     factory.Counter("entitle.state.loaded"),
		LedgerRollovers: factory.Counter("entitle.ledger.rollovers"),

		TierUpgraded:   factory.Counter("entitle.tier.upgraded"),
		TierDowngraded: factory.Counter("entitle.tier.downgraded"),

		EntitlementChecks:  factory.Counter("entitle.entitlement.checks"),
		EntitlementDenied:  factory.Counter("entitle.entitlement.denied"),
		DeniedPremium:      factory.Counter("entitle.entitlement.denied.premium_required"),
		DeniedMessageCap:   factory.Counter("entitle.entitlement.denied.message_cap"),
		DeniedActionCap:    factory.Counter("entitle.entitlement.denied.action_cap"),
		UnknownFeatureKeys: factory.Counter("entitle.entitlement.unknown_feature"),

		MessagesRecorded: factory.Counter("entitle.usage.messages"),
		ActionsRecorded:  factory.Counter("entitle.usage.actions"),
		DailyMessages:    factory.Histogram("entitle.usage.daily_messages"),
		DailyActions:     factory.Histogram("entitle.usage.daily_actions"),

		StoreErrors: factory.Counter("entitle.store.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// OnStateLoaded implements plugin.OnStateLoaded.
func (m *MetricsExtension) OnStateLoaded(_ context.Context, _ subscription.Tier, _ meter.Ledger) error {
	m.StateLoaded.Inc()
	return nil
}

// OnLedgerRolledOver implements plugin.OnLedgerRolledOver.
func (m *MetricsExtension) OnLedgerRolledOver(_ context.Context, _, _ meter.Ledger) error {
	m.LedgerRollovers.Inc()
	return nil
}

// OnTierChanged implements plugin.OnTierChanged.
func (m *MetricsExtension) OnTierChanged(_ context.Context, c subscription.Change) error {
	if c.IsUpgrade() {
		m.TierUpgraded.Inc()
	} else {
		m.TierDowngraded.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Gate hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked implements plugin.OnEntitlementChecked.
func (m *MetricsExtension) OnEntitlementChecked(_ context.Context, _ entitlement.Verdict) error {
	m.EntitlementChecks.Inc()
	return nil
}

// OnFeatureDenied implements plugin.OnFeatureDenied.
func (m *MetricsExtension) OnFeatureDenied(_ context.Context, v entitlement.Verdict, _ meter.Ledger) error {
	m.EntitlementDenied.Inc()
	switch v.Reason {
	case entitlement.ReasonPremiumRequired:
		m.DeniedPremium.Inc()
	case entitlement.ReasonDailyMessageCapReached:
		m.DeniedMessageCap.Inc()
	case entitlement.ReasonDailyActionCapReached:
		m.DeniedActionCap.Inc()
	}
	return nil
}

// OnUnknownFeature implements plugin.OnUnknownFeature.
func (m *MetricsExtension) OnUnknownFeature(_ context.Context, _ string) error {
	m.UnknownFeatureKeys.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsageRecorded implements plugin.OnUsageRecorded.
func (m *MetricsExtension) OnUsageRecorded(_ context.Context, evt meter.UsageEvent) error {
	switch evt.Kind {
	case meter.KindMessage:
		m.MessagesRecorded.Inc()
		m.DailyMessages.Observe(float64(evt.Count))
	case meter.KindAction:
		m.ActionsRecorded.Inc()
		m.DailyActions.Observe(float64(evt.Count))
	}
	return nil
}

// OnPersistFailed implements plugin.OnPersistFailed.
func (m *MetricsExtension) OnPersistFailed(_ context.Context, _ string, _ error) error {
	m.StoreErrors.Inc()
	return nil
}
