package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Listen)
	}
	if cfg.Redis.TTL != 24*time.Hour {
		t.Errorf("expected 24h TTL, got %v", cfg.Redis.TTL)
	}
	if cfg.Metrics.HistorySize != 100 {
		t.Errorf("expected history size 100, got %d", cfg.Metrics.HistorySize)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_REDIS_PASSWORD", "s3cret")

	content := `
listen: ":9090"
log_db_path: "test.db"
redis:
  enabled: true
  addr: "redis:6379"
  password: ${TEST_REDIS_PASSWORD}
  key_prefix: "docs:"
  ttl: 1h
pipeline:
  timeout: 10s
  backends:
    - name: primary
      url: http://rag:9000
    - name: fallback
      url: http://rag-standby:9000
metrics:
  history_size: 250
  slow_threshold_seconds: 2.5
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Listen)
	}
	if cfg.Redis.Password != "s3cret" {
		t.Errorf("env var not expanded: got %s", cfg.Redis.Password)
	}
	if cfg.Redis.TTL != time.Hour {
		t.Errorf("expected 1h TTL, got %v", cfg.Redis.TTL)
	}
	if len(cfg.Pipeline.Backends) != 2 {
		t.Fatalf("expected 2 backends, got %d", len(cfg.Pipeline.Backends))
	}
	if cfg.Pipeline.Backends[0].URL != "http://rag:9000" {
		t.Errorf("unexpected backend URL: %s", cfg.Pipeline.Backends[0].URL)
	}
	if cfg.Metrics.HistorySize != 250 {
		t.Errorf("expected history size 250, got %d", cfg.Metrics.HistorySize)
	}
	if cfg.Metrics.SlowThresholdSeconds != 2.5 {
		t.Errorf("expected slow threshold 2.5, got %v", cfg.Metrics.SlowThresholdSeconds)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no backends", func(c *Config) { c.Pipeline.Backends = nil }},
		{"backend without URL", func(c *Config) {
			c.Pipeline.Backends = []BackendConfig{{Name: "primary"}}
		}},
		{"zero pipeline timeout", func(c *Config) { c.Pipeline.Timeout = 0 }},
		{"zero redis TTL", func(c *Config) { c.Redis.TTL = 0 }},
		{"zero history size", func(c *Config) { c.Metrics.HistorySize = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Pipeline.Backends = []BackendConfig{{Name: "primary", URL: "http://rag:9000"}}
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
