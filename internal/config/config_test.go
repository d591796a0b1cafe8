package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadParsesTrackingSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := []byte(`
server:
  port: "9090"
storage:
  driver: sqlite
  sqlitePath: /tmp/progress.db
tracking:
  scrollOffset: 72
  retryAttempts: 5
  retryDelay: 200ms
  unlockThreshold: 95
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Tracking.ScrollOffset == nil || *cfg.Tracking.ScrollOffset != 72 || cfg.Tracking.UnlockThreshold != 95 {
		t.Fatalf("unexpected tracking: %+v", cfg.Tracking)
	}
	if got := TTLDuration(cfg.Tracking.RetryDelay, time.Second); got != 200*time.Millisecond {
		t.Fatalf("expected 200ms retry delay, got %v", got)
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Storage.Driver != "" {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for empty, got %v", got)
	}
	if got := TTLDuration("nonsense", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for invalid, got %v", got)
	}
	if got := IntOr(0, 5); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
}

func TestLoadKeepsExplicitZeroOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte("tracking:\n  restoreOffset: 0\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tracking.RestoreOffset == nil || *cfg.Tracking.RestoreOffset != 0 {
		t.Fatalf("expected explicit zero restore offset, got %v", cfg.Tracking.RestoreOffset)
	}
	if cfg.Tracking.ScrollOffset != nil {
		t.Fatalf("expected unset scroll offset, got %d", *cfg.Tracking.ScrollOffset)
	}
}
