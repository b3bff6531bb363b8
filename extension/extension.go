// Package extension provides the Forge extension adapter for entitle.
//
// It implements the forge.Extension interface to integrate the entitlement
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.entitle" or "entitle" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/entitle"
	"github.com/xraph/entitle/meter"
	"github.com/xraph/entitle/plan"
	"github.com/xraph/entitle/store"
	"github.com/xraph/entitle/store/memory"
	"github.com/xraph/entitle/store/mongo"
	"github.com/xraph/entitle/store/postgres"
	"github.com/xraph/entitle/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "entitle"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Freemium entitlement and daily usage metering"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the entitle engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *entitle.Engine
	store      store.Store
	groveDB    *grove.DB
	engineOpts []entitle.Option
}

// New creates a new entitle Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *entitle.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	switch {
	case e.store != nil:
	case e.groveDB != nil:
		s, err := groveStore(e.groveDB, e.config.GroveDriver)
		if err != nil {
			return err
		}
		e.store = s
		e.Logger().Debug("entitle: using grove store", forge.F("driver", e.config.GroveDriver))
	default:
		e.store = memory.New()
	}

	opts, err := e.buildEngineOpts()
	if err != nil {
		return err
	}

	e.engine = entitle.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*entitle.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("entitle: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("entitle: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs entitle.Option values from the resolved config.
func (e *Extension) buildEngineOpts() ([]entitle.Option, error) {
	cfg := e.config
	opts := make([]entitle.Option, 0, len(e.engineOpts)+6)

	opts = append(opts,
		entitle.WithKeys(cfg.TierKey, cfg.UsageKey),
		entitle.WithAutoMigrate(!cfg.DisableMigrate),
		entitle.WithDebugAssertions(cfg.DebugAssertions),
		entitle.WithCASRetries(cfg.CASRetries),
	)

	p := plan.Free()
	messages, actions := cfg.limits()
	p.Limits = plan.Limits{DailyMessages: messages, DailyActions: actions}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("entitle: invalid limits: %w", err)
	}
	opts = append(opts, entitle.WithPlan(p))

	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("entitle: invalid timezone %q: %w", cfg.Timezone, err)
		}
		opts = append(opts, entitle.WithClock(meter.InLocation(loc)))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts, nil
}

// groveStore builds the store matching driver on db.
func groveStore(db *grove.DB, driver string) (store.Store, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return sqlite.New(db), nil
	case "postgres", "pg", "postgresql":
		return postgres.New(db), nil
	case "mongo", "mongodb":
		return mongo.New(db), nil
	case "":
		return nil, errors.New("entitle: grove_driver is required with a grove database")
	default:
		return nil, fmt.Errorf("entitle: unsupported grove driver %q", driver)
	}
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("entitle: configuration is required but not found in config files; " +
				"ensure 'extensions.entitle' or 'entitle' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	messages, actions := e.config.limits()
	e.Logger().Debug("entitle: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("daily_messages", messages),
		forge.F("daily_actions", actions),
		forge.F("tier_key", e.config.TierKey),
		forge.F("usage_key", e.config.UsageKey),
		forge.F("timezone", e.config.Timezone),
		forge.F("cas_retries", e.config.CASRetries),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.entitle" first (namespaced pattern).
	if cm.IsSet("extensions.entitle") {
		if err := cm.Bind("extensions.entitle", &cfg); err == nil {
			e.Logger().Debug("entitle: loaded config from file",
				forge.F("key", "extensions.entitle"),
			)
			return cfg, true
		}
		e.Logger().Warn("entitle: failed to bind extensions.entitle config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "entitle" key.
	if cm.IsSet("entitle") {
		if err := cm.Bind("entitle", &cfg); err == nil {
			e.Logger().Debug("entitle: loaded config from file",
				forge.F("key", "entitle"),
			)
			return cfg, true
		}
		e.Logger().Warn("entitle: failed to bind entitle config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills unset fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.DailyMessages == nil {
		cfg.DailyMessages = defaults.DailyMessages
	}
	if cfg.DailyActions == nil {
		cfg.DailyActions = defaults.DailyActions
	}
	if cfg.TierKey == "" {
		cfg.TierKey = defaults.TierKey
	}
	if cfg.UsageKey == "" {
		cfg.UsageKey = defaults.UsageKey
	}
	if cfg.CASRetries == 0 {
		cfg.CASRetries = defaults.CASRetries
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DebugAssertions {
		yamlConfig.DebugAssertions = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.TierKey == "" {
		yamlConfig.TierKey = programmaticConfig.TierKey
	}
	if yamlConfig.UsageKey == "" {
		yamlConfig.UsageKey = programmaticConfig.UsageKey
	}
	if yamlConfig.Timezone == "" {
		yamlConfig.Timezone = programmaticConfig.Timezone
	}
	if yamlConfig.GroveDriver == "" {
		yamlConfig.GroveDriver = programmaticConfig.GroveDriver
	}

	// Numeric fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.DailyMessages == nil {
		yamlConfig.DailyMessages = programmaticConfig.DailyMessages
	}
	if yamlConfig.DailyActions == nil {
		yamlConfig.DailyActions = programmaticConfig.DailyActions
	}
	if yamlConfig.CASRetries == 0 {
		yamlConfig.CASRetries = programmaticConfig.CASRetries
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
