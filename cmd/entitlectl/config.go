package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/entitle"
	"github.com/xraph/entitle/meter"
	"github.com/xraph/entitle/plan"
	"github.com/xraph/entitle/store"
	"github.com/xraph/entitle/store/file"
	redisstore "github.com/xraph/entitle/store/redis"
)

// Store backends selectable from the CLI.
const (
	backendFile  = "file"
	backendRedis = "redis"
)

// Config is the on-disk CLI configuration.
type Config struct {
	Store         string             `yaml:"store"`
	DataDir       string             `yaml:"data_dir"`
	Redis         redisstore.Options `yaml:"redis"`
	Timezone      string             `yaml:"timezone"`
	DailyMessages int64              `yaml:"daily_messages"`
	DailyActions  int64              `yaml:"daily_actions"`
	TierKey       string             `yaml:"tier_key"`
	UsageKey      string             `yaml:"usage_key"`
}

func defaultConfig() Config {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	limits := plan.DefaultLimits()
	return Config{
		Store:         backendFile,
		DataDir:       filepath.Join(dir, "entitle"),
		Redis:         redisstore.Options{Addr: "localhost:6379", DialTimeout: 5 * time.Second},
		DailyMessages: limits.DailyMessages,
		DailyActions:  limits.DailyActions,
	}
}

// loadConfig overlays the YAML file at path (if any) on the defaults.
// A missing file is not an error unless the path was given explicitly.
func loadConfig(path string, explicit bool) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) openStore(ctx context.Context) (store.Store, error) {
	switch c.Store {
	case "", backendFile:
		return file.New(filepath.Join(c.DataDir, file.DefaultFileName)), nil
	case backendRedis:
		return redisstore.Open(ctx, c.Redis)
	default:
		return nil, fmt.Errorf("unknown store backend %q (want %s or %s)", c.Store, backendFile, backendRedis)
	}
}

func (c Config) engineOptions() ([]entitle.Option, error) {
	p := plan.Free()
	p.Limits = plan.Limits{DailyMessages: c.DailyMessages, DailyActions: c.DailyActions}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	opts := []entitle.Option{
		entitle.WithPlan(p),
		entitle.WithKeys(c.TierKey, c.UsageKey),
	}
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
		opts = append(opts, entitle.WithClock(meter.InLocation(loc)))
	}
	return opts, nil
}
