package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Sync.ChunkSize != 500 {
		t.Errorf("ChunkSize = %d, want 500", cfg.Sync.ChunkSize)
	}
	if cfg.Sync.QueueSize != 1024 {
		t.Errorf("QueueSize = %d, want 1024", cfg.Sync.QueueSize)
	}
	if cfg.Sync.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %d, want 3", cfg.Sync.RetryAttempts)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if len(cfg.Store.Addresses) != 1 || cfg.Store.Addresses[0] != "http://localhost:9200" {
		t.Errorf("Addresses = %v", cfg.Store.Addresses)
	}
	if cfg.Watch.Interval.Std() != 5*time.Minute {
		t.Errorf("Watch.Interval = %v", cfg.Watch.Interval)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
logging:
  level: debug
  format: json
store:
  addresses: ["http://es1:9200", "http://es2:9200"]
  username: elastic
  compress: true
sync:
  chunk_size: 250
  retry_backoff: 2s
jobs:
  registry: /etc/syncer/jobs.yaml
watch:
  interval: 30s
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if len(cfg.Store.Addresses) != 2 || !cfg.Store.Compress {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Sync.ChunkSize != 250 || cfg.Sync.RetryBackoff.Std() != 2*time.Second {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Jobs.Registry != "/etc/syncer/jobs.yaml" {
		t.Errorf("registry = %q", cfg.Jobs.Registry)
	}
	if cfg.Watch.Interval.Std() != 30*time.Second {
		t.Errorf("interval = %v", cfg.Watch.Interval)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ELASTIC_ADDRESSES", "http://a:9200, http://b:9200")
	t.Setenv("ELASTIC_PASSWORD", "hunter2")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("SYNC_CHUNK_SIZE", "100")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Store.Addresses) != 2 || cfg.Store.Addresses[1] != "http://b:9200" {
		t.Errorf("Addresses = %v", cfg.Store.Addresses)
	}
	if cfg.Store.Password != "hunter2" {
		t.Errorf("Password = %q", cfg.Store.Password)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
	if cfg.Sync.ChunkSize != 100 {
		t.Errorf("ChunkSize = %d", cfg.Sync.ChunkSize)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
