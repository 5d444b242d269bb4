package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ftahirops/xgov/model"
)

// Config holds user-configurable behavior of the engine.
type Config struct {
	SampleInterval     time.Duration `yaml:"sample_interval"`
	RefreshInterval    time.Duration `yaml:"refresh_interval"`
	ForegroundInterval time.Duration `yaml:"foreground_interval"`
	SettleInterval     time.Duration `yaml:"settle_interval"`
	SettleDelay        time.Duration `yaml:"settle_delay"` // wait before an effect is measured
	RulesInterval      time.Duration `yaml:"rules_interval"`

	GovernorEnabled  bool   `yaml:"governor_enabled"`
	GovernorTail     int    `yaml:"governor_tail"`
	FollowForeground bool   `yaml:"follow_foreground"`
	Profile          string `yaml:"profile,omitempty"`
	Sort             string `yaml:"sort"`

	Thresholds model.Thresholds `yaml:"thresholds"`
	Rules      []model.Rule     `yaml:"rules"`
	Whitelist  []string         `yaml:"custom_whitelist"`

	// ForegroundCommand prints the focused window's pid. Empty disables roles.
	ForegroundCommand []string `yaml:"foreground_command"`

	RuleActionsPerSec float64 `yaml:"rule_actions_per_sec"`
	RuleBurst         int     `yaml:"rule_burst"`
	LedgerCapacity    int     `yaml:"ledger_capacity"`
	HistorySize       int     `yaml:"history_size"`
	StateDir          string  `yaml:"state_dir,omitempty"`

	Prometheus PrometheusConfig `yaml:"prometheus"`
	Log        LogConfig        `yaml:"log"`
}

type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns a config with sensible defaults.
func Default() Config {
	return Config{
		SampleInterval:     time.Second,
		RefreshInterval:    3 * time.Second,
		ForegroundInterval: 2 * time.Second,
		SettleInterval:     6 * time.Second,
		SettleDelay:        2 * time.Second,
		RulesInterval:      5 * time.Second,
		GovernorTail:       25,
		Sort:               string(model.SortCPU),
		Thresholds:         model.DefaultThresholds(),
		Rules:              model.DefaultRules(),
		Whitelist:          []string{},
		ForegroundCommand:  []string{"xdotool", "getactivewindow", "getwindowpid"},
		RuleActionsPerSec:  20,
		RuleBurst:          40,
		LedgerCapacity:     4000,
		HistorySize:        500,
		Prometheus: PrometheusConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9101",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate clamps out-of-range values back to defaults and returns a note
// for each correction.
func (c *Config) Validate() []string {
	def := Default()
	var notes []string
	fix := func(field string, bad bool, apply func()) {
		if bad {
			apply()
			notes = append(notes, field+" out of range, using default")
		}
	}
	fix("sample_interval", c.SampleInterval < 100*time.Millisecond, func() { c.SampleInterval = def.SampleInterval })
	fix("refresh_interval", c.RefreshInterval < time.Second, func() { c.RefreshInterval = def.RefreshInterval })
	fix("foreground_interval", c.ForegroundInterval < 100*time.Millisecond, func() { c.ForegroundInterval = def.ForegroundInterval })
	fix("settle_interval", c.SettleInterval < time.Second, func() { c.SettleInterval = def.SettleInterval })
	fix("settle_delay", c.SettleDelay < 0, func() { c.SettleDelay = def.SettleDelay })
	fix("rules_interval", c.RulesInterval < time.Second, func() { c.RulesInterval = def.RulesInterval })
	fix("governor_tail", c.GovernorTail <= 0, func() { c.GovernorTail = def.GovernorTail })
	fix("thresholds", !c.Thresholds.Valid(), func() { c.Thresholds = def.Thresholds })
	fix("rule_actions_per_sec", c.RuleActionsPerSec <= 0, func() { c.RuleActionsPerSec = def.RuleActionsPerSec })
	fix("rule_burst", c.RuleBurst <= 0, func() { c.RuleBurst = def.RuleBurst })
	fix("ledger_capacity", c.LedgerCapacity <= 0, func() { c.LedgerCapacity = def.LedgerCapacity })
	fix("history_size", c.HistorySize <= 0, func() { c.HistorySize = def.HistorySize })
	c.Sort = string(model.ParseSortKey(c.Sort))
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Prometheus.Addr == "" {
		c.Prometheus.Addr = def.Prometheus.Addr
	}
	cleaned := c.Whitelist[:0]
	for _, n := range c.Whitelist {
		if n = strings.TrimSpace(n); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	c.Whitelist = cleaned
	return notes
}

// Path returns ~/.config/xgov/config.yaml (or XDG_CONFIG_HOME).
// Returns empty string if home directory cannot be determined.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "" // refuse to fall back to /tmp (security risk)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "xgov", "config.yaml")
}

// StateDir returns where effect history and the event log live:
// cfg.StateDir, else $XDG_STATE_HOME/xgov, else ~/.local/state/xgov.
func StateDir(cfg Config) string {
	if cfg.StateDir != "" {
		return cfg.StateDir
	}
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "xgov")
}

// Load reads the config at path. A missing file yields defaults. On a
// parse error the defaults are returned along with the error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Validate()
	return cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg Config) error {
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
