package extension

import (
	"github.com/xraph/grove"

	"github.com/xraph/entitle"
	"github.com/xraph/entitle/plugin"
	"github.com/xraph/entitle/store"
)

// Option configures the entitle Forge extension.
type Option func(*Extension)

// WithStore sets the store for the entitle engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDatabase builds the store on db. driver names the grove driver
// behind it ("sqlite", "postgres" or "mongo"); empty keeps the configured
// grove_driver. WithStore takes precedence.
func WithGroveDatabase(db *grove.DB, driver string) Option {
	return func(e *Extension) {
		e.groveDB = db
		if driver != "" {
			e.config.GroveDriver = driver
		}
	}
}

// WithEngineOption passes an entitle.Option through to the underlying engine.
func WithEngineOption(opt entitle.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an entitle plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, entitle.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithDailyLimits sets the free-tier message and action caps.
func WithDailyLimits(messages, actions int64) Option {
	return func(e *Extension) {
		e.config.DailyMessages = cap64(messages)
		e.config.DailyActions = cap64(actions)
	}
}

// WithKeys sets the store keys for the tier and the usage ledger.
func WithKeys(tierKey, usageKey string) Option {
	return func(e *Extension) {
		e.config.TierKey = tierKey
		e.config.UsageKey = usageKey
	}
}

// WithTimezone sets the IANA zone whose midnight resets the ledger.
func WithTimezone(name string) Option {
	return func(e *Extension) { e.config.Timezone = name }
}

// WithDebugAssertions panics on feature keys missing from the plan.
func WithDebugAssertions() Option {
	return func(e *Extension) { e.config.DebugAssertions = true }
}

// WithCASRetries bounds compare-and-swap attempts per ledger write.
func WithCASRetries(n int) Option {
	return func(e *Extension) { e.config.CASRetries = n }
}
