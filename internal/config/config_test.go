package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load(WithRoot(root))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Root != root {
		t.Fatalf("expected root %s, got %s", root, cfg.Root)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.Cache.Backend != "file" {
		t.Fatalf("expected file cache backend, got %s", cfg.Cache.Backend)
	}
	if cfg.Retention.TempMaxAge != 24*time.Hour {
		t.Fatalf("wrong temp max age: %v", cfg.Retention.TempMaxAge)
	}
	if cfg.Retention.ArchiveMaxAge != 720*time.Hour {
		t.Fatalf("wrong archive max age: %v", cfg.Retention.ArchiveMaxAge)
	}
	if cfg.Disk.ThresholdPercent != 80 {
		t.Fatalf("wrong disk threshold: %v", cfg.Disk.ThresholdPercent)
	}
}

func TestLoadParsesConfigFile(t *testing.T) {
	root := t.TempDir()
	configYAML := strings.TrimSpace(`
log:
  level: debug
  format: json
cache:
  backend: redis
  default_ttl: 30m
  redis:
    addr: cache.internal:6380
    db: 2
retention:
  temp_max_age: 48h
disk:
  threshold_percent: 92
`)
	if err := os.WriteFile(filepath.Join(root, "config.yaml"), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(WithRoot(root))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log settings not applied: %+v", cfg.Log)
	}
	if cfg.Cache.Backend != "redis" {
		t.Fatalf("expected redis backend, got %s", cfg.Cache.Backend)
	}
	if cfg.Cache.DefaultTTL != 30*time.Minute {
		t.Fatalf("wrong default ttl: %v", cfg.Cache.DefaultTTL)
	}
	if cfg.Cache.Redis.Addr != "cache.internal:6380" || cfg.Cache.Redis.DB != 2 {
		t.Fatalf("redis settings not applied: %+v", cfg.Cache.Redis)
	}
	if cfg.Retention.TempMaxAge != 48*time.Hour {
		t.Fatalf("wrong temp max age: %v", cfg.Retention.TempMaxAge)
	}
	// Unset sections keep their defaults.
	if cfg.Retention.ArchiveMaxAge != 720*time.Hour {
		t.Fatalf("archive max age should default, got %v", cfg.Retention.ArchiveMaxAge)
	}
	if cfg.Disk.ThresholdPercent != 92 {
		t.Fatalf("wrong disk threshold: %v", cfg.Disk.ThresholdPercent)
	}
}

func TestLoadRootFromEnvironment(t *testing.T) {
	root := t.TempDir()
	t.Setenv(EnvRoot, root)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Root != root {
		t.Fatalf("expected root from env %s, got %s", root, cfg.Root)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad log level", "log:\n  level: loud\n"},
		{"bad backend", "cache:\n  backend: memcache\n"},
		{"threshold too high", "disk:\n  threshold_percent: 150\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			if err := os.WriteFile(filepath.Join(root, "config.yaml"), []byte(tc.yaml), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(WithRoot(root)); err == nil {
				t.Fatal("expected validation error but got none")
			}
		})
	}
}

func TestEnsureConfigFile(t *testing.T) {
	root := t.TempDir()
	cfg := Default(root)

	if err := cfg.EnsureConfigFile(); err != nil {
		t.Fatalf("EnsureConfigFile returned error: %v", err)
	}
	data, err := os.ReadFile(cfg.ConfigPath())
	if err != nil {
		t.Fatalf("expected config file written: %v", err)
	}
	if !strings.Contains(string(data), "cache:") {
		t.Fatalf("template missing cache section: %s", data)
	}

	// A second call must not clobber edits.
	if err := os.WriteFile(cfg.ConfigPath(), []byte("log:\n  level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := cfg.EnsureConfigFile(); err != nil {
		t.Fatalf("EnsureConfigFile second call: %v", err)
	}
	data, _ = os.ReadFile(cfg.ConfigPath())
	if !strings.Contains(string(data), "debug") {
		t.Fatal("EnsureConfigFile overwrote an existing file")
	}
}
