package entitle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/id"
	"github.com/xraph/entitle/meter"
	"github.com/xraph/entitle/plan"
	"github.com/xraph/entitle/plugin"
	"github.com/xraph/entitle/store"
	"github.com/xraph/entitle/subscription"
)

// DefaultCASRetries bounds compare-and-swap attempts per ledger write.
const DefaultCASRetries = 8

// State is a snapshot of the cached entitlement state.
type State struct {
	Tier   subscription.Tier `json:"tier"`
	Ledger meter.Ledger      `json:"ledger"`
}

// Engine owns the subscription tier and the daily usage ledger, persists them
// through a store.Store and answers feature-gate queries.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   meter.Clock
	plan    *plan.Plan
	gate    *entitlement.Gate

	tierKey    string
	usageKey   string
	debug      bool
	migrate    bool
	casRetries int

	mu      sync.Mutex
	loaded  bool
	tier    subscription.Tier
	ledger  meter.Ledger
	pending []func()

	// Set while the stored value lags the cache because a write failed.
	// Reloads keep the cached value and compare-and-swap reads are skipped
	// until a write lands.
	tierStale  bool
	usageStale bool
}

// New creates a new Engine over s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:      s,
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
		clock:      meter.SystemClock{},
		plan:       plan.Free(),
		tierKey:    store.DefaultTierKey,
		usageKey:   store.DefaultUsageKey,
		casRetries: DefaultCASRetries,
		migrate:    true,
		tier:       subscription.TierFree,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.gate = entitlement.NewGate(e.plan)
	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithClock sets the clock used for day keys and timestamps.
func WithClock(c meter.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithPlan replaces the free-tier decision table.
func WithPlan(p *plan.Plan) Option {
	return func(e *Engine) {
		if p != nil {
			e.plan = p
		}
	}
}

// WithKeys overrides the store keys for the tier and the usage ledger.
// Empty values keep the defaults.
func WithKeys(tierKey, usageKey string) Option {
	return func(e *Engine) {
		if tierKey != "" {
			e.tierKey = tierKey
		}
		if usageKey != "" {
			e.usageKey = usageKey
		}
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithDebugAssertions makes Evaluate and Consume panic on feature keys the
// plan does not declare. Leave it off in release builds.
func WithDebugAssertions(enabled bool) Option {
	return func(e *Engine) {
		e.debug = enabled
	}
}

// WithAutoMigrate controls whether Start runs store migrations (default true).
func WithAutoMigrate(enabled bool) Option {
	return func(e *Engine) {
		e.migrate = enabled
	}
}

// WithCASRetries bounds compare-and-swap attempts on stores that support it.
func WithCASRetries(n int) Option {
	return func(e *Engine) {
		e.casRetries = max(0, n)
	}
}

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Gate returns the feature gate built from the engine's plan.
func (e *Engine) Gate() *entitlement.Gate { return e.gate }

// ValidateKeys reports feature keys the engine's plan does not declare.
func (e *Engine) ValidateKeys(keys ...string) error {
	if err := e.gate.ValidateKeys(keys...); err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownFeature, err)
	}
	return nil
}

// Start prepares the store, loads state and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.plan.Validate(); err != nil {
		return ValidationError{Field: "plan", Message: err.Error()}
	}

	if m, ok := e.store.(store.Migrator); ok && e.migrate {
		if err := m.Migrate(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
		}
	}
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreNotReady, err)
	}

	st := e.Load(ctx)

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("entitle started",
		"tier", st.Tier,
		"date", st.Ledger.Date,
		"daily_messages", e.plan.Limits.DailyMessages,
		"daily_actions", e.plan.Limits.DailyActions,
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// ──────────────────────────────────────────────────
// State
// ──────────────────────────────────────────────────

// Load reads the tier and ledger from the store and caches them. Missing or
// malformed values fall back to the free tier and a fresh ledger, and read
// errors are logged rather than returned. A ledger from an earlier day is
// rolled over and written back immediately.
func (e *Engine) Load(ctx context.Context) State {
	e.mu.Lock()
	e.loadLocked(ctx)
	st := State{Tier: e.tier, Ledger: e.ledger}
	e.unlock()
	return st
}

// State returns a snapshot of the cached state, loading it first if needed.
func (e *Engine) State() State {
	ctx := context.Background()
	e.mu.Lock()
	e.ensureLoaded(ctx)
	e.freshenLocked(ctx)
	st := State{Tier: e.tier, Ledger: e.ledger}
	e.unlock()
	return st
}

// IsPremium reports whether the cached tier is premium.
func (e *Engine) IsPremium() bool {
	e.mu.Lock()
	e.ensureLoaded(context.Background())
	premium := e.tier.IsPremium()
	e.unlock()
	return premium
}

// Upgrade switches to the premium tier and persists it immediately.
func (e *Engine) Upgrade(ctx context.Context) {
	e.setTier(ctx, subscription.TierPremium)
}

// Downgrade switches to the free tier and persists it immediately.
func (e *Engine) Downgrade(ctx context.Context) {
	e.setTier(ctx, subscription.TierFree)
}

// PeekLedger returns today's ledger, rolling the cached one over (and
// persisting the reset) if the day has changed.
func (e *Engine) PeekLedger(ctx context.Context) meter.Ledger {
	e.mu.Lock()
	e.ensureLoaded(ctx)
	e.freshenLocked(ctx)
	l := e.ledger
	e.unlock()
	return l
}

// ResetUsage clears today's counters.
func (e *Engine) ResetUsage(ctx context.Context) meter.Ledger {
	e.mu.Lock()
	e.ensureLoaded(ctx)
	e.ledger = meter.Fresh(e.clock)
	e.persistLedger(ctx)
	l := e.ledger
	e.unlock()

	e.logger.Info("entitle: usage reset", "date", l.Date)
	return l
}

// ──────────────────────────────────────────────────
// Metering
// ──────────────────────────────────────────────────

// RecordMessage counts one chat message for today.
func (e *Engine) RecordMessage(ctx context.Context) {
	e.record(ctx, meter.KindMessage)
}

// RecordAction counts one privileged action for today.
func (e *Engine) RecordAction(ctx context.Context) {
	e.record(ctx, meter.KindAction)
}

func (e *Engine) record(ctx context.Context, kind meter.Kind) {
	e.mu.Lock()
	e.ensureLoaded(ctx)
	l, err := e.updateLedger(ctx, func(cur meter.Ledger) (meter.Ledger, bool) {
		return meter.Record(cur, kind, e.clock), true
	})
	if err != nil {
		// Contention outlasted the retries; count locally and overwrite.
		e.logger.Warn("entitle: ledger contention, writing without compare-and-swap",
			"kind", kind,
			"error", err,
		)
		prev := e.ledger
		e.ledger = meter.Record(e.ledger, kind, e.clock)
		e.noteRollover(ctx, prev, e.ledger)
		e.persistLedger(ctx)
		l = e.ledger
	}
	e.noteUsage(ctx, kind, "", l)
	e.unlock()
}

// ──────────────────────────────────────────────────
// Gating
// ──────────────────────────────────────────────────

// Evaluate decides whether key may be used right now.
func (e *Engine) Evaluate(ctx context.Context, key string) entitlement.Verdict {
	e.assertKnown(key)

	e.mu.Lock()
	e.ensureLoaded(ctx)
	e.freshenLocked(ctx)
	v := e.gate.Evaluate(key, e.tier, e.ledger)
	e.noteVerdict(ctx, v, e.ledger)
	e.unlock()
	return v
}

// Consume evaluates key and, if allowed, records one unit of kind in the same
// critical section. On stores implementing store.CompareAndSwapper the ledger
// is re-read and swapped atomically, so concurrent processes cannot both pass
// a cap. ErrCASConflict is returned, with nothing recorded, when the retries
// are exhausted.
func (e *Engine) Consume(ctx context.Context, key string, kind meter.Kind) (entitlement.Verdict, error) {
	if !kind.Valid() {
		return entitlement.Verdict{Feature: key}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	e.assertKnown(key)

	e.mu.Lock()
	e.ensureLoaded(ctx)

	var v entitlement.Verdict
	l, err := e.updateLedger(ctx, func(cur meter.Ledger) (meter.Ledger, bool) {
		v = e.gate.Evaluate(key, e.tier, cur)
		if !v.Allowed {
			return cur, false
		}
		return meter.Record(cur, kind, e.clock), true
	})
	if err != nil {
		e.unlock()
		return v, err
	}

	e.noteVerdict(ctx, v, l)
	if v.Allowed {
		e.noteUsage(ctx, kind, key, l)
	}
	e.unlock()
	return v, nil
}

// ──────────────────────────────────────────────────
// Internals (callers hold e.mu)
// ──────────────────────────────────────────────────

// unlock releases e.mu and then runs the notifications queued while it was
// held, so plugins may call back into the engine.
func (e *Engine) unlock() {
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

func (e *Engine) after(fn func()) {
	e.pending = append(e.pending, fn)
}

func (e *Engine) ensureLoaded(ctx context.Context) {
	if !e.loaded {
		e.loadLocked(ctx)
	}
}

func (e *Engine) loadLocked(ctx context.Context) {
	tier := subscription.TierFree
	raw, found, err := e.store.Get(ctx, e.tierKey)
	switch {
	case err != nil:
		e.logger.Warn("entitle: read tier failed", "key", e.tierKey, "error", err)
	case found:
		t, ok := subscription.DecodeTier(raw)
		if !ok {
			e.logger.Warn("entitle: malformed tier, using free", "key", e.tierKey)
		}
		tier = t
	}

	l := meter.Fresh(e.clock)
	raw, found, err = e.store.Get(ctx, e.usageKey)
	switch {
	case err != nil:
		e.logger.Warn("entitle: read usage failed", "key", e.usageKey, "error", err)
	case found:
		decoded, ok := meter.Decode(raw, e.clock)
		if !ok {
			e.logger.Warn("entitle: malformed usage ledger, starting fresh", "key", e.usageKey)
		}
		l = decoded
	}

	if !e.loaded || !e.tierStale {
		e.tier = tier
	}
	if !e.loaded || !e.usageStale {
		e.ledger = l
	}
	e.loaded = true

	e.freshenLocked(ctx)

	st, led := e.tier, e.ledger
	e.after(func() { e.plugins.EmitStateLoaded(ctx, st, led) })

	e.logger.Debug("entitle: state loaded",
		"tier", st,
		"date", led.Date,
		"messages", led.MessageCount,
		"actions", led.ActionCount,
	)
}

// freshenLocked rolls the cached ledger over when the day has changed.
func (e *Engine) freshenLocked(ctx context.Context) {
	prev := e.ledger
	e.ledger = meter.EnsureFreshDay(prev, e.clock)
	if e.noteRollover(ctx, prev, e.ledger) {
		e.persistLedger(ctx)
	}
}

// updateLedger applies fn to today's ledger and commits the result. fn
// returns false to leave the ledger untouched. With a compare-and-swap store
// the current value is re-read from the store on every attempt; otherwise, or
// while the stored value is known to be stale, the cache is authoritative and
// the write is a plain Set.
func (e *Engine) updateLedger(ctx context.Context, fn func(meter.Ledger) (meter.Ledger, bool)) (meter.Ledger, error) {
	prev := e.ledger

	if cas, ok := e.store.(store.CompareAndSwapper); ok && !e.usageStale {
		if l, handled, err := e.swapLedger(ctx, cas, fn); handled {
			e.noteRollover(ctx, prev, e.ledger)
			return l, err
		}
	}

	cur := meter.EnsureFreshDay(e.ledger, e.clock)
	next, commit := fn(cur)
	e.ledger = next
	if e.noteRollover(ctx, prev, next) || commit {
		e.persistLedger(ctx)
	}
	return next, nil
}

// swapLedger is the compare-and-swap path of updateLedger. It reports false
// when the store could not be read and the caller should fall back to the
// cache.
func (e *Engine) swapLedger(ctx context.Context, cas store.CompareAndSwapper, fn func(meter.Ledger) (meter.Ledger, bool)) (meter.Ledger, bool, error) {
	for attempt := range e.casRetries + 1 {
		raw, found, err := e.store.Get(ctx, e.usageKey)
		if err != nil {
			e.logger.Warn("entitle: read usage failed", "key", e.usageKey, "error", err)
			return meter.Ledger{}, false, nil
		}
		if !found {
			raw = ""
		}

		cur, _ := meter.Decode(raw, e.clock)
		cur = meter.EnsureFreshDay(cur, e.clock)

		next, commit := fn(cur)
		if !commit {
			e.ledger = cur
			return cur, true, nil
		}

		encoded, err := meter.Encode(next)
		if err == nil {
			var swapped bool
			swapped, err = cas.CompareAndSwap(ctx, e.usageKey, raw, encoded)
			if err == nil && !swapped {
				e.logger.Debug("entitle: ledger changed concurrently, retrying",
					"key", e.usageKey,
					"attempt", attempt+1,
				)
				continue
			}
		}
		if err != nil {
			e.usageStale = true
			e.persistFailed(ctx, e.usageKey, err)
		}
		e.ledger = next
		return next, true, nil
	}
	return e.ledger, true, ErrCASConflict
}

func (e *Engine) setTier(ctx context.Context, to subscription.Tier) {
	e.mu.Lock()
	e.ensureLoaded(ctx)

	from := e.tier
	e.tier = to
	now := e.clock.Now()

	raw, err := subscription.EncodeTier(to, now)
	if err == nil {
		err = e.store.Set(ctx, e.tierKey, raw)
	}
	e.tierStale = err != nil
	if err != nil {
		e.persistFailed(ctx, e.tierKey, err)
	}

	if from != to {
		change := subscription.Change{
			ID:   id.NewTierChangeID(),
			From: from,
			To:   to,
			At:   now.UTC(),
		}
		e.after(func() { e.plugins.EmitTierChanged(ctx, change) })
		e.logger.Info("entitle: tier changed", "from", from, "to", to)
	}
	e.unlock()
}

func (e *Engine) persistLedger(ctx context.Context) {
	raw, err := meter.Encode(e.ledger)
	if err == nil {
		err = e.store.Set(ctx, e.usageKey, raw)
	}
	e.usageStale = err != nil
	if err != nil {
		e.persistFailed(ctx, e.usageKey, err)
	}
}

// persistFailed logs and reports a write failure. The cached state stays
// authoritative for the rest of the session.
func (e *Engine) persistFailed(ctx context.Context, key string, err error) {
	e.logger.Warn("entitle: persist failed", "key", key, "error", err)
	e.after(func() { e.plugins.EmitPersistFailed(ctx, key, err) })
}

func (e *Engine) noteRollover(ctx context.Context, prev, next meter.Ledger) bool {
	if prev.Date == next.Date {
		return false
	}
	e.after(func() { e.plugins.EmitLedgerRolledOver(ctx, prev, next) })
	e.logger.Debug("entitle: ledger rolled over", "from", prev.Date, "to", next.Date)
	return true
}

func (e *Engine) noteVerdict(ctx context.Context, v entitlement.Verdict, l meter.Ledger) {
	if !e.gate.Known(v.Feature) {
		e.logger.Warn("entitle: unknown feature key, allowing", "feature", v.Feature)
		e.after(func() { e.plugins.EmitUnknownFeature(ctx, v.Feature) })
	}
	e.after(func() { e.plugins.EmitEntitlementChecked(ctx, v) })
	if !v.Allowed {
		e.after(func() { e.plugins.EmitFeatureDenied(ctx, v, l) })
		e.logger.Debug("entitle: feature denied", "feature", v.Feature, "reason", v.Reason)
	}
}

func (e *Engine) noteUsage(ctx context.Context, kind meter.Kind, feature string, l meter.Ledger) {
	evt := meter.UsageEvent{
		ID:        id.NewUsageEventID(),
		Kind:      kind,
		Feature:   feature,
		Date:      l.Date,
		Count:     l.Count(kind),
		Timestamp: e.clock.Now().UTC(),
	}
	e.after(func() { e.plugins.EmitUsageRecorded(ctx, evt) })
}

// assertKnown panics on undeclared feature keys when debug assertions are on.
func (e *Engine) assertKnown(key string) {
	if e.debug && !e.gate.Known(key) {
		panic(&entitlement.UnknownFeatureError{Keys: []string{key}})
	}
}
