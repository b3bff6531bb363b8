// Package audithook bridges entitle lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter that bridges
// to their trail at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/id"
	"github.com/xraph/entitle/meter"
	"github.com/xraph/entitle/plugin"
	"github.com/xraph/entitle/subscription"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Extension)(nil)
	_ plugin.OnStateLoaded      = (*Extension)(nil)
	_ plugin.OnTierChanged      = (*Extension)(nil)
	_ plugin.OnUsageRecorded    = (*Extension)(nil)
	_ plugin.OnLedgerRolledOver = (*Extension)(nil)
	_ plugin.OnFeatureDenied    = (*Extension)(nil)
	_ plugin.OnUnknownFeature   = (*Extension)(nil)
	_ plugin.OnPersistFailed    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	ID         id.AuditID     `json:"id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges entitle lifecycle events to an audit trail backend.
type Extension struct {
	recorder    Recorder
	enabled     map[string]bool // nil = all enabled
	minSeverity int
	now         func() time.Time
	logger      *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// OnStateLoaded implements plugin.OnStateLoaded.
func (e *Extension) OnStateLoaded(ctx context.Context, tier subscription.Tier, l meter.Ledger) error {
	return e.record(ctx, ActionStateLoaded, SeverityInfo, OutcomeSuccess,
		ResourceStore, "", CategoryStorage, nil,
		"tier", string(tier),
		"date", l.Date,
		"messages", l.MessageCount,
		"actions", l.ActionCount,
	)
}

// OnTierChanged implements plugin.OnTierChanged.
func (e *Extension) OnTierChanged(ctx context.Context, c subscription.Change) error {
	action := ActionTierDowngraded
	if c.IsUpgrade() {
		action = ActionTierUpgraded
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceTier, c.ID.String(), CategorySubscription, nil,
		"from", string(c.From),
		"to", string(c.To),
	)
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsageRecorded implements plugin.OnUsageRecorded.
func (e *Extension) OnUsageRecorded(ctx context.Context, evt meter.UsageEvent) error {
	action := ActionMessageRecorded
	if evt.Kind == meter.KindAction {
		action = ActionActionRecorded
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceUsage, evt.ID.String(), CategoryUsage, nil,
		"feature", evt.Feature,
		"date", evt.Date,
		"count", evt.Count,
	)
}

// OnLedgerRolledOver implements plugin.OnLedgerRolledOver.
func (e *Extension) OnLedgerRolledOver(ctx context.Context, prev, next meter.Ledger) error {
	return e.record(ctx, ActionLedgerRolledOver, SeverityInfo, OutcomeSuccess,
		ResourceUsage, next.Date, CategoryUsage, nil,
		"previous_date", prev.Date,
		"previous_messages", prev.MessageCount,
		"previous_actions", prev.ActionCount,
	)
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnFeatureDenied implements plugin.OnFeatureDenied.
func (e *Extension) OnFeatureDenied(ctx context.Context, v entitlement.Verdict, l meter.Ledger) error {
	return e.record(ctx, ActionEntitlementDenied, SeverityWarning, OutcomeFailure,
		ResourceEntitlement, v.Feature, CategoryAccess, nil,
		"feature", v.Feature,
		"reason", string(v.Reason),
		"messages", l.MessageCount,
		"actions", l.ActionCount,
	)
}

// OnUnknownFeature implements plugin.OnUnknownFeature.
func (e *Extension) OnUnknownFeature(ctx context.Context, key string) error {
	return e.record(ctx, ActionUnknownFeature, SeverityWarning, OutcomeSuccess,
		ResourceEntitlement, key, CategoryAccess, nil,
		"feature", key,
	)
}

// OnPersistFailed implements plugin.OnPersistFailed.
func (e *Extension) OnPersistFailed(ctx context.Context, key string, err error) error {
	return e.record(ctx, ActionPersistFailed, SeverityError, OutcomeFailure,
		ResourceStore, key, CategoryStorage, err,
		"key", key,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}
	if severityRank(severity) < e.minSeverity {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		ID:         id.NewAuditID(),
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
		Timestamp:  e.now().UTC(),
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
