package extension

// Config holds the entitle extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.entitle" or "entitle" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DailyMessages is the free-tier chat message cap per day (default: 10).
	// Nil means unset; 0 is a valid cap.
	DailyMessages *int64 `json:"daily_messages,omitempty" mapstructure:"daily_messages" yaml:"daily_messages,omitempty"`

	// DailyActions is the free-tier privileged action cap per day (default: 1).
	DailyActions *int64 `json:"daily_actions,omitempty" mapstructure:"daily_actions" yaml:"daily_actions,omitempty"`

	// TierKey is the store key holding the subscription tier
	// (default: "entitle:tier").
	TierKey string `json:"tier_key" mapstructure:"tier_key" yaml:"tier_key"`

	// UsageKey is the store key holding the daily usage ledger
	// (default: "entitle:usage").
	UsageKey string `json:"usage_key" mapstructure:"usage_key" yaml:"usage_key"`

	// Timezone is the IANA zone whose midnight resets the ledger.
	// Empty means the process's local zone.
	Timezone string `json:"timezone" mapstructure:"timezone" yaml:"timezone"`

	// DebugAssertions panics on feature keys missing from the plan.
	DebugAssertions bool `json:"debug_assertions" mapstructure:"debug_assertions" yaml:"debug_assertions"`

	// CASRetries bounds compare-and-swap attempts per ledger write (default: 8).
	CASRetries int `json:"cas_retries" mapstructure:"cas_retries" yaml:"cas_retries"`

	// GroveDriver selects the store built on a grove.DB passed with
	// WithGroveDatabase: "sqlite", "postgres" or "mongo".
	GroveDriver string `json:"grove_driver" mapstructure:"grove_driver" yaml:"grove_driver"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DailyMessages: cap64(10),
		DailyActions:  cap64(1),
		TierKey:       "entitle:tier",
		UsageKey:      "entitle:usage",
		CASRetries:    8,
	}
}

func cap64(n int64) *int64 { return &n }

// limits returns the configured caps, falling back to the defaults for
// unset fields.
func (c Config) limits() (messages, actions int64) {
	defaults := DefaultConfig()
	if c.DailyMessages == nil {
		c.DailyMessages = defaults.DailyMessages
	}
	if c.DailyActions == nil {
		c.DailyActions = defaults.DailyActions
	}
	return *c.DailyMessages, *c.DailyActions
}
