package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/meter"
	"github.com/xraph/entitle/subscription"
)

// DefaultTimeout bounds a single hook invocation.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit               []OnInit
	onShutdown           []OnShutdown
	onStateLoaded        []OnStateLoaded
	onEntitlementChecked []OnEntitlementChecked
	onFeatureDenied      []OnFeatureDenied
	onUnknownFeature     []OnUnknownFeature
	onUsageRecorded      []OnUsageRecorded
	onLedgerRolledOver   []OnLedgerRolledOver
	onTierChanged        []OnTierChanged
	onPersistFailed      []OnPersistFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout. Non-positive values are ignored.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnStateLoaded); ok {
		r.onStateLoaded = append(r.onStateLoaded, v)
	}
	if v, ok := p.(OnEntitlementChecked); ok {
		r.onEntitlementChecked = append(r.onEntitlementChecked, v)
	}
	if v, ok := p.(OnFeatureDenied); ok {
		r.onFeatureDenied = append(r.onFeatureDenied, v)
	}
	if v, ok := p.(OnUnknownFeature); ok {
		r.onUnknownFeature = append(r.onUnknownFeature, v)
	}
	if v, ok := p.(OnUsageRecorded); ok {
		r.onUsageRecorded = append(r.onUsageRecorded, v)
	}
	if v, ok := p.(OnLedgerRolledOver); ok {
		r.onLedgerRolledOver = append(r.onLedgerRolledOver, v)
	}
	if v, ok := p.(OnTierChanged); ok {
		r.onTierChanged = append(r.onTierChanged, v)
	}
	if v, ok := p.(OnPersistFailed); ok {
		r.onPersistFailed = append(r.onPersistFailed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnStateLoaded", reflect.TypeFor[OnStateLoaded]()},
	{"OnEntitlementChecked", reflect.TypeFor[OnEntitlementChecked]()},
	{"OnFeatureDenied", reflect.TypeFor[OnFeatureDenied]()},
	{"OnUnknownFeature", reflect.TypeFor[OnUnknownFeature]()},
	{"OnUsageRecorded", reflect.TypeFor[OnUsageRecorded]()},
	{"OnLedgerRolledOver", reflect.TypeFor[OnLedgerRolledOver]()},
	{"OnTierChanged", reflect.TypeFor[OnTierChanged]()},
	{"OnPersistFailed", reflect.TypeFor[OnPersistFailed]()},
}

// implementedInterfaces returns the hook names the plugin implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs call for every plugin in list, logging failures.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list []T, call func(T) error) {
	for _, p := range list {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	emit(ctx, r, "OnInit", plugins, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	emit(ctx, r, "OnShutdown", plugins, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitStateLoaded emits a state loaded event.
func (r *Registry) EmitStateLoaded(ctx context.Context, tier subscription.Tier, l meter.Ledger) {
	r.mu.RLock()
	plugins := r.onStateLoaded
	r.mu.RUnlock()

	emit(ctx, r, "OnStateLoaded", plugins, func(p OnStateLoaded) error {
		return p.OnStateLoaded(ctx, tier, l)
	})
}

// EmitEntitlementChecked emits an entitlement checked event.
func (r *Registry) EmitEntitlementChecked(ctx context.Context, v entitlement.Verdict) {
	r.mu.RLock()
	plugins := r.onEntitlementChecked
	r.mu.RUnlock()

	emit(ctx, r, "OnEntitlementChecked", plugins, func(p OnEntitlementChecked) error {
		return p.OnEntitlementChecked(ctx, v)
	})
}

// EmitFeatureDenied emits a feature denied event.
func (r *Registry) EmitFeatureDenied(ctx context.Context, v entitlement.Verdict, l meter.Ledger) {
	r.mu.RLock()
	plugins := r.onFeatureDenied
	r.mu.RUnlock()

	emit(ctx, r, "OnFeatureDenied", plugins, func(p OnFeatureDenied) error {
		return p.OnFeatureDenied(ctx, v, l)
	})
}

// EmitUnknownFeature emits an unknown feature event.
func (r *Registry) EmitUnknownFeature(ctx context.Context, key string) {
	r.mu.RLock()
	plugins := r.onUnknownFeature
	r.mu.RUnlock()

	emit(ctx, r, "OnUnknownFeature", plugins, func(p OnUnknownFeature) error {
		return p.OnUnknownFeature(ctx, key)
	})
}

// EmitUsageRecorded emits a usage recorded event.
func (r *Registry) EmitUsageRecorded(ctx context.Context, evt meter.UsageEvent) {
	r.mu.RLock()
	plugins := r.onUsageRecorded
	r.mu.RUnlock()

	emit(ctx, r, "OnUsageRecorded", plugins, func(p OnUsageRecorded) error {
		return p.OnUsageRecorded(ctx, evt)
	})
}

// EmitLedgerRolledOver emits a ledger rollover event.
func (r *Registry) EmitLedgerRolledOver(ctx context.Context, prev, next meter.Ledger) {
	r.mu.RLock()
	plugins := r.onLedgerRolledOver
	r.mu.RUnlock()

	emit(ctx, r, "OnLedgerRolledOver", plugins, func(p OnLedgerRolledOver) error {
		return p.OnLedgerRolledOver(ctx, prev, next)
	})
}

// EmitTierChanged emits a tier changed event.
func (r *Registry) EmitTierChanged(ctx context.Context, change subscription.Change) {
	r.mu.RLock()
	plugins := r.onTierChanged
	r.mu.RUnlock()

	emit(ctx, r, "OnTierChanged", plugins, func(p OnTierChanged) error {
		return p.OnTierChanged(ctx, change)
	})
}

// EmitPersistFailed emits a persist failure event.
func (r *Registry) EmitPersistFailed(ctx context.Context, key string, cause error) {
	r.mu.RLock()
	plugins := r.onPersistFailed
	r.mu.RUnlock()

	emit(ctx, r, "OnPersistFailed", plugins, func(p OnPersistFailed) error {
		return p.OnPersistFailed(ctx, key, cause)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block feature gating.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
