package audithook

import (
	"log/slog"
	"time"
)

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger used when the recorder fails.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithEnabledActions restricts auditing to the given actions.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = actionSet(actions)
	}
}

// WithDisabledActions audits every known action except the given ones.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		if e.enabled == nil {
			e.enabled = actionSet(allActions())
		}
		for _, action := range actions {
			delete(e.enabled, action)
		}
	}
}

// WithMinSeverity drops events below severity (info < warning < error < critical).
func WithMinSeverity(severity string) Option {
	return func(e *Extension) {
		e.minSeverity = severityRank(severity)
	}
}

// WithClock sets the function used to timestamp events.
func WithClock(now func() time.Time) Option {
	return func(e *Extension) {
		if now != nil {
			e.now = now
		}
	}
}

func actionSet(actions []string) map[string]bool {
	set := make(map[string]bool, len(actions))
	for _, action := range actions {
		set[action] = true
	}
	return set
}

func severityRank(severity string) int {
	switch severity {
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

func allActions() []string {
	return []string{
		ActionTierUpgraded,
		ActionTierDowngraded,
		ActionMessageRecorded,
		ActionActionRecorded,
		ActionLedgerRolledOver,
		ActionEntitlementDenied,
		ActionUnknownFeature,
		ActionStateLoaded,
		ActionPersistFailed,
	}
}
