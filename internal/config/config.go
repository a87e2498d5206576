package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ibeckermayer/xsweep/internal/selectors"
	"github.com/ibeckermayer/xsweep/internal/types"
)

// AppName names the per-user config and cache directories
const AppName = "xsweep"

// EnvConfigPath overrides the config file location
const EnvConfigPath = "XSWEEP_CONFIG"

// Config holds all application configuration
type Config struct {
	Version   int               `toml:"version"`
	Browser   BrowserConfig     `toml:"browser"`
	Run       types.RunConfig   `toml:"run"`
	Pacing    PacingConfig      `toml:"pacing"`
	Selectors selectors.Catalog `toml:"selectors"`
	Schedule  ScheduleConfig    `toml:"schedule"`
	Control   ControlConfig     `toml:"control"`
	Logging   LoggingConfig     `toml:"logging"`
}

type BrowserConfig struct {
	Headless     bool   `toml:"headless"`
	StartURL     string `toml:"start_url"`
	UserAgent    string `toml:"user_agent"`
	WindowWidth  int    `toml:"window_width"`
	WindowHeight int    `toml:"window_height"`
	// Seconds to wait for the feed to render after navigation
	LoadTimeoutSec int `toml:"load_timeout_sec"`
}

// PacingConfig holds the click cadence. Durations are milliseconds.
type PacingConfig struct {
	StepMs              int `toml:"step_ms"`
	ItemMs              int `toml:"item_ms"`
	DismissMs           int `toml:"dismiss_ms"`
	ScrollSettleMs      int `toml:"scroll_settle_ms"`
	CooldownTickMs      int `toml:"cooldown_tick_ms"`
	ScrollChunk         int `toml:"scroll_chunk"`
	MaxActionsPerMinute int `toml:"max_actions_per_minute"`
}

type ScheduleConfig struct {
	Enabled bool `toml:"enabled"`
	// Standard five-field cron expression
	Cron        string `toml:"cron"`
	Timezone    string `toml:"timezone"`
	DurationMin int    `toml:"duration_min"`
}

type ControlConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // console or json
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Browser: BrowserConfig{
			Headless:       false,
			StartURL:       "https://x.com/home",
			WindowWidth:    1280,
			WindowHeight:   900,
			LoadTimeoutSec: 30,
		},
		Run: types.RunConfig{
			Mode:      types.ModeDelete,
			BatchSize: types.DefaultBatchSize,
			PauseMs:   types.DefaultPauseMs,
		},
		Pacing: PacingConfig{
			StepMs:         500,
			ItemMs:         800,
			DismissMs:      200,
			ScrollSettleMs: 1500,
			CooldownTickMs: 250,
			ScrollChunk:    1800,
		},
		Selectors: selectors.Default(),
		Schedule: ScheduleConfig{
			Cron:        "0 3 * * *",
			Timezone:    "Local",
			DurationMin: 30,
		},
		Control: ControlConfig{
			Enabled: true,
			Listen:  "127.0.0.1:7823",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Validate checks the values a run or the scheduler depends on
func (c *Config) Validate() error {
	if err := c.Run.Normalize().Validate(); err != nil {
		return fmt.Errorf("[run]: %w", err)
	}
	if c.Pacing.MaxActionsPerMinute < 0 {
		return errors.New("[pacing] max_actions_per_minute must not be negative")
	}
	if c.Schedule.Enabled && c.Schedule.DurationMin <= 0 {
		return errors.New("[schedule] duration_min must be positive when the schedule is enabled")
	}
	return nil
}

// Catalog returns the built-in selectors with any [selectors] overrides applied
func (c *Config) Catalog() selectors.Catalog {
	return selectors.Default().Merge(c.Selectors)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func (p PacingConfig) Step() time.Duration         { return ms(p.StepMs) }
func (p PacingConfig) Item() time.Duration         { return ms(p.ItemMs) }
func (p PacingConfig) Dismiss() time.Duration      { return ms(p.DismissMs) }
func (p PacingConfig) ScrollSettle() time.Duration { return ms(p.ScrollSettleMs) }
func (p PacingConfig) CooldownTick() time.Duration { return ms(p.CooldownTickMs) }

// Location resolves the schedule's timezone
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" || s.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

// Duration is how long a scheduled run is allowed to go on
func (s ScheduleConfig) Duration() time.Duration {
	return time.Duration(s.DurationMin) * time.Minute
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, AppName), nil
}

// DataDir holds cookies, run history and logs
func DataDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, AppName), nil
}

// ConfigPath returns the full path to the config file, honouring XSWEEP_CONFIG
func ConfigPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads config from disk. Keys absent from the file keep their defaults.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads the config at path over the defaults
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrCreate loads the config, writing the defaults first if there is none yet
func LoadOrCreate() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		if err := cfg.SaveFile(path); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return cfg, nil
	}
	return LoadFile(path)
}

// Save writes config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes config to path, creating its directory
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
