package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StateDir != "/tmp/zeus" {
		t.Errorf("StateDir = %q, want default", cfg.StateDir)
	}
	if cfg.TickInterval != 500*time.Millisecond {
		t.Errorf("TickInterval = %s, want 500ms default", cfg.TickInterval)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zeus.yaml")
	content := "state_dir: /var/lib/zeus\ninflight_lease: 90s\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StateDir != "/var/lib/zeus" {
		t.Errorf("StateDir = %q, want /var/lib/zeus", cfg.StateDir)
	}
	if cfg.InflightLease != 90*time.Second {
		t.Errorf("InflightLease = %s, want 90s", cfg.InflightLease)
	}
	// Untouched fields should still carry their defaults.
	if cfg.CapabilityMaxAge != 30*time.Second {
		t.Errorf("CapabilityMaxAge = %s, want unchanged default", cfg.CapabilityMaxAge)
	}
}

func TestEnvOverridesTakePrecedenceOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zeus.yaml")
	if err := os.WriteFile(path, []byte("state_dir: /var/lib/zeus\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("ZEUS_STATE_DIR", "/env/override")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StateDir != "/env/override" {
		t.Errorf("StateDir = %q, want env override", cfg.StateDir)
	}
}

func TestFleetFileEnvOverride(t *testing.T) {
	t.Setenv("ZEUS_FLEET_FILE", "/env/fleet.json")
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FleetFile != "/env/fleet.json" {
		t.Errorf("FleetFile = %q, want env override", cfg.FleetFile)
	}
}

func TestValidateRejectsNonPositiveTickInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zeus.yaml")
	if err := os.WriteFile(path, []byte("tick_interval: 0s\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for zero tick_interval")
	}
}

func TestBackoffIsMonotonicUpToMax(t *testing.T) {
	cfg := Defaults()
	if got := cfg.Backoff(1); got != 2*time.Second {
		t.Errorf("Backoff(1) = %s, want 2s", got)
	}
	if got := cfg.Backoff(10); got != 20*time.Second {
		t.Errorf("Backoff(10) = %s, want 20s", got)
	}
	if got := cfg.Backoff(100); got != cfg.BackoffMax {
		t.Errorf("Backoff(100) = %s, want capped at %s", got, cfg.BackoffMax)
	}
}
