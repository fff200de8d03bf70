// Package config loads the syncer configuration from a YAML file with
// environment-variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Store      StoreConfig      `yaml:"store"`
	Sync       SyncConfig       `yaml:"sync"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	History    HistoryConfig    `yaml:"history"`
	Notify     NotifyConfig     `yaml:"notify"`
	Watch      WatchConfig      `yaml:"watch"`
}

type LoggingConfig struct {
	Format string `yaml:"format"` // "json" | "text"
	Level  string `yaml:"level"`  // "debug" | "info" | "warn" | "error"
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type StoreConfig struct {
	Addresses    []string `yaml:"addresses"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	ScanPageSize int      `yaml:"scan_page_size"`
	Compress     bool     `yaml:"compress"`
}

type SyncConfig struct {
	ChunkSize     int      `yaml:"chunk_size"`
	QueueSize     int      `yaml:"queue_size"`
	RetryAttempts int      `yaml:"retry_attempts"`
	RetryBackoff  Duration `yaml:"retry_backoff"`
}

type JobsConfig struct {
	Registry string `yaml:"registry"` // path to the job registry YAML
}

type CheckpointConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type HistoryConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

type NotifyConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	BackupDir string `yaml:"backup_dir"`
}

type WatchConfig struct {
	Interval Duration `yaml:"interval"`
}

// Duration decodes YAML duration strings like "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to the standard duration type.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads the YAML file at path (optional), applies environment
// overrides, and fills defaults.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// MustLoad loads configuration from SYNCER_CONFIG (or the given path) and
// exits on failure.
func MustLoad(path string) Config {
	if path == "" {
		path = os.Getenv("SYNCER_CONFIG")
	}
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ELASTIC_ADDRESSES"); v != "" {
		c.Store.Addresses = splitList(v)
	}
	if v := os.Getenv("ELASTIC_USERNAME"); v != "" {
		c.Store.Username = v
	}
	if v := os.Getenv("ELASTIC_PASSWORD"); v != "" {
		c.Store.Password = v
	}
	if v := os.Getenv("HISTORY_DSN"); v != "" {
		c.History.PostgresDSN = v
	}
	if v := os.Getenv("JOB_REGISTRY"); v != "" {
		c.Jobs.Registry = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("METRICS_ADDRESS"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Address = v
	}
	if v := os.Getenv("SYNC_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sync.ChunkSize = n
		}
	}
	if v := os.Getenv("WATCH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Watch.Interval = Duration(d)
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if len(c.Store.Addresses) == 0 {
		c.Store.Addresses = []string{"http://localhost:9200"}
	}
	if c.Store.ScanPageSize < 1 {
		c.Store.ScanPageSize = 1000
	}
	if c.Sync.ChunkSize < 1 {
		c.Sync.ChunkSize = 500
	}
	if c.Sync.QueueSize < 1 {
		c.Sync.QueueSize = 1024
	}
	if c.Sync.RetryAttempts < 1 {
		c.Sync.RetryAttempts = 3
	}
	if c.Sync.RetryBackoff <= 0 {
		c.Sync.RetryBackoff = Duration(500 * time.Millisecond)
	}
	if c.Jobs.Registry == "" {
		c.Jobs.Registry = "jobs.yaml"
	}
	if c.Checkpoint.Dir == "" {
		c.Checkpoint.Dir = "./checkpoints"
	}
	if c.Watch.Interval <= 0 {
		c.Watch.Interval = Duration(5 * time.Minute)
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
