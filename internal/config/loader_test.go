package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadFromDir(t, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "auto" {
		t.Errorf("log defaults = %+v", cfg.Log)
	}
	if cfg.Scheduler.TickInterval != "5s" || cfg.Scheduler.RetryBudget != 3 {
		t.Errorf("scheduler defaults = %+v", cfg.Scheduler)
	}
	if cfg.State.Backend != "sqlite" {
		t.Errorf("state backend = %q, want sqlite", cfg.State.Backend)
	}
	if cfg.Server.Addr != ":8432" {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
}

// loadFromDir loads config from an isolated temp directory, optionally
// seeded with a .workcell.yaml.
func loadFromDir(t *testing.T, content string) (*Config, error) {
	t.Helper()
	dir := t.TempDir()
	if content == "" {
		// An empty valid file keeps the loader off the real CWD and home.
		content = "{}\n"
	}
	path := filepath.Join(dir, ".workcell.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return NewLoader().WithConfigFile(path).Load()
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	cfg, err := loadFromDir(t, `
log:
  level: debug
scheduler:
  tick_interval: 10s
state:
  backend: memory
`)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Scheduler.TickInterval != "10s" {
		t.Errorf("tick = %q, want 10s", cfg.Scheduler.TickInterval)
	}
	// Untouched keys keep their defaults.
	if cfg.Nodes.StatusInterval != "2s" {
		t.Errorf("status_interval = %q, want default 2s", cfg.Nodes.StatusInterval)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("WORKCELL_LOG_LEVEL", "error")
	cfg, err := loadFromDir(t, "log:\n  level: debug\n")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("level = %q, want env override error", cfg.Log.Level)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	_, err := loadFromDir(t, "log:\n  level: loud\n")
	if err == nil {
		t.Fatal("invalid log level accepted")
	}
}

func TestDefaultConfigYAMLIsValid(t *testing.T) {
	cfg, err := loadFromDir(t, DefaultConfigYAML)
	if err != nil {
		t.Fatalf("generated default config rejected: %v", err)
	}
	if cfg.Layout.Path != "workcell.yaml" || !cfg.Layout.Watch {
		t.Errorf("layout = %+v", cfg.Layout)
	}
}
