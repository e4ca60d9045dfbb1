package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all CodeSearch configuration.
type Config struct {
	Listen    string         `yaml:"listen"`
	LogDBPath string         `yaml:"log_db_path"`
	Redis     RedisConfig    `yaml:"redis"`
	Pipeline  PipelineConfig `yaml:"pipeline"`
	Metrics   MetricsConfig  `yaml:"metrics"`
	QueryLog  QueryLogConfig `yaml:"query_log"`
}

// RedisConfig controls the response cache backing store.
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"key_prefix"`
	TTL          time.Duration `yaml:"ttl"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

// BackendConfig identifies one answer-pipeline backend.
type BackendConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// PipelineConfig controls the answer pipeline client. Backends are tried
// in order until one succeeds.
type PipelineConfig struct {
	Backends []BackendConfig `yaml:"backends"`
	Timeout  time.Duration   `yaml:"timeout"`
}

// MetricsConfig controls the in-memory metrics recorder.
type MetricsConfig struct {
	HistorySize          int     `yaml:"history_size"`
	SlowThresholdSeconds float64 `yaml:"slow_threshold_seconds"`
}

// QueryLogConfig controls the persistent query log.
type QueryLogConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:    ":8080",
		LogDBPath: "codesearch.db",
		Redis: RedisConfig{
			Enabled:      true,
			Addr:         "localhost:6379",
			KeyPrefix:    "codesearch:",
			TTL:          24 * time.Hour,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
		},
		Pipeline: PipelineConfig{
			Timeout: 60 * time.Second,
		},
		Metrics: MetricsConfig{
			HistorySize:          100,
			SlowThresholdSeconds: 5.0,
		},
		QueryLog: QueryLogConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
	}
}

// Load reads a YAML config file, expands environment variables, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that must be present before serving requests.
// A Validate failure is fatal at startup; nothing here is recoverable
// per-request.
func (c *Config) Validate() error {
	if len(c.Pipeline.Backends) == 0 {
		return fmt.Errorf("config: at least one pipeline backend is required")
	}
	for i, b := range c.Pipeline.Backends {
		if b.URL == "" {
			return fmt.Errorf("config: pipeline backend %d (%s) has no URL", i, b.Name)
		}
	}
	if c.Pipeline.Timeout <= 0 {
		return fmt.Errorf("config: pipeline timeout must be positive")
	}
	if c.Redis.Enabled && c.Redis.TTL <= 0 {
		return fmt.Errorf("config: redis TTL must be positive")
	}
	if c.Metrics.HistorySize <= 0 {
		return fmt.Errorf("config: metrics history size must be positive")
	}
	return nil
}
