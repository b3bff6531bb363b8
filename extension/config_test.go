package extension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/entitle/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{DailyMessages: cap64(25)})

	assert.Equal(t, int64(25), *cfg.DailyMessages)
	assert.Equal(t, int64(1), *cfg.DailyActions)
	assert.Equal(t, "entitle:tier", cfg.TierKey)
	assert.Equal(t, "entitle:usage", cfg.UsageKey)
	assert.Equal(t, 8, cfg.CASRetries)
}

func TestMergeConfigurations(t *testing.T) {
	yamlCfg := Config{DailyMessages: cap64(20), Timezone: "Europe/Berlin"}
	progCfg := Config{
		DailyMessages:  cap64(5),
		DailyActions:   cap64(3),
		DisableMigrate: true,
		UsageKey:       "pets:usage",
	}

	cfg := mergeConfigurations(yamlCfg, progCfg)

	assert.Equal(t, int64(20), *cfg.DailyMessages)
	assert.Equal(t, int64(3), *cfg.DailyActions)
	assert.True(t, cfg.DisableMigrate)
	assert.Equal(t, "pets:usage", cfg.UsageKey)
	assert.Equal(t, "entitle:tier", cfg.TierKey)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
}

func TestBuildEngineOpts(t *testing.T) {
	e := New(WithStore(memory.New()))
	e.config = mergeWithDefaults(Config{Timezone: "UTC"})

	opts, err := e.buildEngineOpts()
	require.NoError(t, err)
	assert.NotEmpty(t, opts)

	e.config.Timezone = "Mars/Olympus_Mons"
	_, err = e.buildEngineOpts()
	require.Error(t, err)

	e.config.Timezone = ""
	e.config.DailyActions = cap64(-1)
	_, err = e.buildEngineOpts()
	require.Error(t, err)
}

func TestZeroCapsSurviveMerge(t *testing.T) {
	yamlCfg := Config{DailyMessages: cap64(0), DailyActions: cap64(0)}

	cfg := mergeConfigurations(yamlCfg, Config{DailyMessages: cap64(5)})
	messages, actions := cfg.limits()
	assert.Zero(t, messages)
	assert.Zero(t, actions)

	cfg = mergeWithDefaults(Config{DailyActions: cap64(0)})
	messages, actions = cfg.limits()
	assert.Equal(t, int64(10), messages)
	assert.Zero(t, actions)

	e := New(WithStore(memory.New()), WithDailyLimits(0, 0))
	e.config = mergeWithDefaults(e.config)
	_, err := e.buildEngineOpts()
	require.NoError(t, err)
}

func TestGroveStoreDriver(t *testing.T) {
	_, err := groveStore(nil, "")
	require.Error(t, err)

	_, err = groveStore(nil, "oracle")
	require.ErrorContains(t, err, `unsupported grove driver "oracle"`)

	cfg := mergeConfigurations(Config{}, Config{GroveDriver: "sqlite"})
	assert.Equal(t, "sqlite", cfg.GroveDriver)

	e := New(WithGroveDatabase(nil, "postgres"))
	assert.Equal(t, "postgres", e.config.GroveDriver)
}
