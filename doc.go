// Package entitle provides a freemium entitlement and usage-metering engine
// for Go applications.
//
// Entitle is designed as a library, not a service. It decides whether a
// feature may be used right now given the subscription tier and a per-day
// usage ledger, and keeps both durable across restarts. It provides:
//
//   - A pure feature gate over a declarative decision table
//   - Daily chat-message and privileged-action counters that reset at local midnight
//   - Pluggable persistence (memory, JSON file, SQLite, PostgreSQL, MongoDB, Redis)
//   - Atomic check-and-record on stores that support compare-and-swap
//   - Lifecycle hooks for metrics and audit trails
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/entitle"
//	    "github.com/xraph/entitle/store/file"
//	)
//
//	e := entitle.New(file.New(dataDir))
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
// # Gating
//
// Locked features require premium; the metered chat feature is capped per day:
//
//	v := e.Evaluate(ctx, plan.FeatureVetFinder)
//	if !v.Allowed {
//	    showPaywall(v.Reason) // premium_required
//	}
//
//	v, err := e.Consume(ctx, plan.FeatureAIChat, meter.KindMessage)
//	if err == nil && v.Allowed {
//	    // send the chat message
//	}
//
// Evaluate only reads. Callers that check first and record later use
// RecordMessage and RecordAction after the work succeeds; Consume does both
// at once.
//
// # Day boundaries
//
// The ledger is keyed by the local calendar date (YYYY-MM-DD). The stored date
// is only compared for equality with today, so the first read after midnight,
// or after a restart on a later day, starts from zero. Use WithClock with
// meter.InLocation to pin the time zone.
//
// # Failure policy
//
// The gate never errors. Unreadable or malformed persisted state falls back
// to the free tier and a fresh ledger, and failed writes are logged and
// reported to OnPersistFailed plugins while the in-memory state stays
// authoritative. Feature keys missing from the plan are allowed; enable
// WithDebugAssertions in development to turn them into panics.
package entitle
