// Package config loads and hot-reloads the scheduling engine's YAML
// configuration, with environment-variable overrides and a watched
// file for live threshold/weight tuning.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config holds all scheduling engine configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Machines MachinesConfig `yaml:"machines"`
	Season   SeasonConfig   `yaml:"season"`
	Urgency  UrgencyConfig  `yaml:"urgency"`
	PathRule PathRuleConfig `yaml:"path_rule"`
	Campaign CampaignConfig `yaml:"campaign"`
	Draft    DraftConfig    `yaml:"draft"`
	Strategy StrategyConfig `yaml:"strategy"`
	Recalc   RecalcConfig   `yaml:"recalc"`
	Logging  LoggingConfig  `yaml:"logging"`

	DatabasePath string `yaml:"database_path"`
}

// MachinesConfig is the ordered list of rolling-finish machine codes and
// the default daily tonnage budget used to seed a machine/day's
// CapacityPool bucket when no prior version has one (spec.md §4.8's
// per-day loop needs a target/limit to gate against before any item has
// ever been placed on that bucket).
type MachinesConfig struct {
	Codes                  []string `yaml:"codes"`
	DefaultTargetCapacityT float64  `yaml:"default_target_capacity_t"`
	DefaultLimitCapacityT  float64  `yaml:"default_limit_capacity_t"`
}

// SeasonConfig controls the Eligibility Engine's temperature-maturity check.
type SeasonConfig struct {
	WinterMonths      []int `yaml:"winter_months"`
	MinTempDays       int   `yaml:"min_temp_days"`
	MinTempDaysSummer int   `yaml:"min_temp_days_summer"`
}

// UrgencyConfig sets the day thresholds separating L1/L2/L3.
type UrgencyConfig struct {
	N1Days int `yaml:"n1_days"`
	N2Days int `yaml:"n2_days"`
}

// PathRuleConfig controls the Path-Rule Engine's tolerance bands and
// anchor seeding.
type PathRuleConfig struct {
	WidthTolMM             float64  `yaml:"width_tol_mm"`
	ThicknessTolMM         float64  `yaml:"thickness_tol_mm"`
	AllowedOverrideUrgency []string `yaml:"allowed_override_urgency"`
	SeedS2Percentile       float64  `yaml:"seed_s2_percentile"`
	SmallSampleFallbackN   int      `yaml:"small_sample_fallback_n"`
}

// CampaignConfig sets the Roll-Campaign Tracker's tonnage thresholds.
type CampaignConfig struct {
	SuggestThresholdT float64 `yaml:"suggest_threshold_t"`
	HardLimitT        float64 `yaml:"hard_limit_t"`
	MinSchedulableT   float64 `yaml:"min_schedulable_t"`
}

// DraftConfig sets Strategy-Draft TTL, window, and diff preview limits.
type DraftConfig struct {
	TTL             string `yaml:"ttl"`
	MaxWindowDays   int    `yaml:"max_window_days"`
	DiffPreviewCap  int    `yaml:"diff_preview_cap"`
	DefaultKeepDays int    `yaml:"default_keep_days"`
	LockStaleAfter  string `yaml:"lock_stale_after"`
}

// StrategyWeights is one named linear scoring formula for the Priority Sorter.
type StrategyWeights struct {
	WU               float64 `yaml:"w_u"`
	WC               float64 `yaml:"w_c"`
	WS               float64 `yaml:"w_s"`
	WD               float64 `yaml:"w_d"`
	WR               float64 `yaml:"w_r"`
	ColdAgeThreshold int     `yaml:"cold_age_threshold_days"`
	ScoreScript      string  `yaml:"score_script"`
	// BasePreset is the preset order used as the tie-break when the
	// weighted score comes out equal for two candidates (spec.md §4.3).
	BasePreset string `yaml:"base_preset"`
}

// StrategyConfig holds named custom strategies keyed by strategy id.
type StrategyConfig struct {
	Custom map[string]StrategyWeights `yaml:"custom"`
}

// RecalcConfig sets the Recalc Engine's default frozen-zone width and
// recalc window when a request does not override them.
type RecalcConfig struct {
	FrozenDaysBeforeToday int `yaml:"frozen_days_before_today"`
	DefaultWindowDays     int `yaml:"default_window_days"`
}

// TTLDuration parses Draft.TTL, defaulting to 72h on a parse failure.
func (d DraftConfig) TTLDuration() time.Duration {
	dur, err := time.ParseDuration(d.TTL)
	if err != nil {
		return 72 * time.Hour
	}
	return dur
}

// LockStaleAfterDuration parses Draft.LockStaleAfter, defaulting to 10m.
func (d DraftConfig) LockStaleAfterDuration() time.Duration {
	dur, err := time.ParseDuration(d.LockStaleAfter)
	if err != nil {
		return 10 * time.Minute
	}
	return dur
}

// DefaultConfig returns the built-in configuration used when no file is
// present on disk.
func DefaultConfig() *Config {
	return &Config{
		Name:    "rollsched",
		Version: "1.0.0",

		Machines: MachinesConfig{
			Codes:                  []string{"H032", "H033", "H034"},
			DefaultTargetCapacityT: 2800,
			DefaultLimitCapacityT:  3200,
		},
		Season: SeasonConfig{
			WinterMonths:      []int{11, 12, 1, 2, 3},
			MinTempDays:       3,
			MinTempDaysSummer: 1,
		},
		Urgency: UrgencyConfig{
			N1Days: 2,
			N2Days: 5,
		},
		PathRule: PathRuleConfig{
			WidthTolMM:             25,
			ThicknessTolMM:         0.8,
			AllowedOverrideUrgency: []string{"L2", "L3"},
			SeedS2Percentile:       0.95,
			SmallSampleFallbackN:   5,
		},
		Campaign: CampaignConfig{
			SuggestThresholdT: 3000,
			HardLimitT:        3600,
			MinSchedulableT:   50,
		},
		Draft: DraftConfig{
			TTL:             "72h",
			MaxWindowDays:   60,
			DiffPreviewCap:  5000,
			DefaultKeepDays: 7,
			LockStaleAfter:  "10m",
		},
		Strategy: StrategyConfig{
			Custom: map[string]StrategyWeights{},
		},
		Recalc: RecalcConfig{
			FrozenDaysBeforeToday: 3,
			DefaultWindowDays:     14,
		},
		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},
		DatabasePath: "data/rollsched.db",
	}
}

// Load reads configuration from a YAML file, falling back to defaults
// when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes configuration to a YAML file, creating parent directories
// as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies ROLLSCHED_*-prefixed environment overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("ROLLSCHED_DB"); path != "" {
		c.DatabasePath = path
	}
	if v := os.Getenv("ROLLSCHED_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ROLLSCHED_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
	if v := os.Getenv("ROLLSCHED_SUGGEST_THRESHOLD_T"); v != "" {
		if f, err := parseFloat(v); err == nil {
			c.Campaign.SuggestThresholdT = f
		}
	}
	if v := os.Getenv("ROLLSCHED_HARD_LIMIT_T"); v != "" {
		if f, err := parseFloat(v); err == nil {
			c.Campaign.HardLimitT = f
		}
	}
}

func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	return f, err
}

// Watcher hot-reloads a Config from its backing YAML file on write events;
// the engine's CLI watch command uses it to rerun a partial recalc after
// each reload.
type Watcher struct {
	path     string
	mu       sync.RWMutex
	cur      *Config
	fsw      *fsnotify.Watcher
	onReload func(*Config, error)
}

// NewWatcher starts watching path for changes and reloads the Config on
// every write. Call Close to stop watching.
func NewWatcher(path string, onReload func(*Config, error)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}

	w := &Watcher{path: path, cur: cfg, fsw: fsw, onReload: onReload}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err == nil {
				w.mu.Lock()
				w.cur = cfg
				w.mu.Unlock()
			}
			if w.onReload != nil {
				w.onReload(cfg, err)
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
