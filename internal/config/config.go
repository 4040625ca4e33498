// Package config loads Zeus's daemon configuration: defaults, overridden
// by an optional YAML file, overridden by environment variables -- the
// same three-tier precedence original_source/zeus/settings.py applies to
// the dashboard's TOML config, adapted to this module's YAML + env
// conventions (gopkg.in/yaml.v3, matching the teacher's own config loader).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of tunables the dispatcher, resolver, and CLI
// need (spec.md §6 filesystem layout plus the tick/lease/TTL parameters
// named throughout §4).
type Config struct {
	// StateDir is the root every component's filesystem paths are relative
	// to (spec.md §6: "rooted under ${STATE_DIR}, default /tmp/zeus").
	StateDir string `yaml:"state_dir"`

	// MessageTmpDir is the only root --file payloads may be read from
	// (spec §4.6 traversal guard).
	MessageTmpDir string `yaml:"message_tmp_dir"`

	// FleetFile is the JSON fixture zeusd's fleet.FileProvider polls for
	// the live fleet view when no other collaborator has wired in its own
	// discovery-backed Provider (spec §4.7, "supplied by external
	// discovery" -- this is the degenerate/standalone case).
	FleetFile string `yaml:"fleet_file"`

	// TickInterval is how often the dispatcher loop runs absent an
	// on-demand wake-up from fsnotify (spec §4.5: "≈ every 0.5s").
	TickInterval time.Duration `yaml:"tick_interval"`

	// InflightLease is how long an envelope may sit in inflight/ before
	// ReclaimStaleInflight returns it to new/ (spec §4.1, default 60s).
	InflightLease time.Duration `yaml:"inflight_lease"`

	// CapabilityMaxAge is the heartbeat staleness threshold (spec §4.3,
	// default 30s).
	CapabilityMaxAge time.Duration `yaml:"capability_max_age"`

	// StaleUnresolvedThreshold is how long an envelope may remain
	// unresolvable before it is dropped with a final notice instead of
	// retried (spec §4.5b, default 24h).
	StaleUnresolvedThreshold time.Duration `yaml:"stale_unresolved_threshold"`

	// DedupeTTL is how long a recorded receipt stays valid before
	// ReceiptsDedupe forgets it (spec §3, ReceiptsDedupe).
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`

	// RequeueDelay is the short delay used when a pass blocks on at least
	// one recipient (spec §4.5e, default 2s).
	RequeueDelay time.Duration `yaml:"requeue_delay"`

	// BackoffBase and BackoffMax implement the
	// min(base * attempts, max) schedule spec §4.5 names.
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`

	Debug bool `yaml:"debug"`
}

// Defaults returns the built-in configuration before any file or
// environment override is applied.
func Defaults() Config {
	return Config{
		StateDir:                 "/tmp/zeus",
		MessageTmpDir:            "/tmp/zeus/message-tmp",
		FleetFile:                "/tmp/zeus/fleet.json",
		TickInterval:             500 * time.Millisecond,
		InflightLease:            60 * time.Second,
		CapabilityMaxAge:         30 * time.Second,
		StaleUnresolvedThreshold: 24 * time.Hour,
		DedupeTTL:                24 * time.Hour,
		RequeueDelay:             2 * time.Second,
		BackoffBase:              2 * time.Second,
		BackoffMax:               60 * time.Second,
		Debug:                    false,
	}
}

// Load builds a Config starting from Defaults, applying filename's YAML
// contents if it exists (a missing file is not an error -- an operator may
// run entirely off defaults and environment variables), then applying
// environment variable overrides, then validating.
func Load(filename string) (Config, error) {
	cfg := Defaults()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", filename, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", filename, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZEUS_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("ZEUS_MESSAGE_TMP_DIR"); v != "" {
		cfg.MessageTmpDir = v
	}
	if v := os.Getenv("ZEUS_FLEET_FILE"); v != "" {
		cfg.FleetFile = v
	}
	if v, ok := envDuration("ZEUS_TICK_INTERVAL"); ok {
		cfg.TickInterval = v
	}
	if v, ok := envDuration("ZEUS_INFLIGHT_LEASE"); ok {
		cfg.InflightLease = v
	}
	if v, ok := envDuration("ZEUS_CAPABILITY_MAX_AGE"); ok {
		cfg.CapabilityMaxAge = v
	}
	if v, ok := envDuration("ZEUS_STALE_UNRESOLVED_THRESHOLD"); ok {
		cfg.StaleUnresolvedThreshold = v
	}
	if v, ok := envDuration("ZEUS_DEDUPE_TTL"); ok {
		cfg.DedupeTTL = v
	}
	if v := os.Getenv("ZEUS_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
}

func envDuration(name string) (time.Duration, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return d, true
}

func (c *Config) validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("config: state_dir must not be empty")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("config: tick_interval must be positive, got %s", c.TickInterval)
	}
	if c.InflightLease <= 0 {
		return fmt.Errorf("config: inflight_lease must be positive, got %s", c.InflightLease)
	}
	if c.CapabilityMaxAge <= 0 {
		return fmt.Errorf("config: capability_max_age must be positive, got %s", c.CapabilityMaxAge)
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("config: backoff_base must be positive, got %s", c.BackoffBase)
	}
	if c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("config: backoff_max (%s) must be >= backoff_base (%s)", c.BackoffMax, c.BackoffBase)
	}
	return nil
}

// Backoff returns the requeue delay for the given attempt count, following
// min(backoff_base * attempts, backoff_max) (spec §4.5, "Backoff"); an
// attempt count of zero or less yields backoff_base.
func (c *Config) Backoff(attempts int) time.Duration {
	if attempts <= 0 {
		return c.BackoffBase
	}
	d := c.BackoffBase * time.Duration(attempts)
	if d > c.BackoffMax {
		return c.BackoffMax
	}
	return d
}
