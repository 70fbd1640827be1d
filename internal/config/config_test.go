package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate runs the test in an empty directory with no rankwatch variables set.
func isolate(t *testing.T) string {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "RANKWATCH_") || strings.HasPrefix(key, "NAVER_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PageSize != 5 || cfg.MaxDepth != 50 {
		t.Errorf("expected paging 5/50, got %d/%d", cfg.PageSize, cfg.MaxDepth)
	}
	if cfg.Pause != time.Second || cfg.Timeout != 10*time.Second {
		t.Errorf("expected pause 1s and timeout 10s, got %s and %s", cfg.Pause, cfg.Timeout)
	}
	if cfg.Interval != 10*time.Minute {
		t.Errorf("expected 10m interval, got %s", cfg.Interval)
	}
	if cfg.KeywordsPath != "keywords.csv" || cfg.OutputDir != "." || cfg.Concurrency != 1 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Endpoint != "https://openapi.naver.com/v1/search/local.json" {
		t.Errorf("unexpected endpoint %q", cfg.Endpoint)
	}
	if cfg.ClientID != "" || cfg.SQLiteDSN != "" {
		t.Errorf("expected empty optional settings, got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_Environment(t *testing.T) {
	isolate(t)
	t.Setenv("NAVER_CLIENT_ID", "id-from-env")
	t.Setenv("RANKWATCH_PAUSE", "1500ms")
	t.Setenv("RANKWATCH_CONCURRENCY", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ClientID != "id-from-env" {
		t.Errorf("expected client id from env, got %q", cfg.ClientID)
	}
	if cfg.Pause != 1500*time.Millisecond {
		t.Errorf("expected 1.5s pause, got %s", cfg.Pause)
	}
	if cfg.Concurrency != 3 {
		t.Errorf("expected concurrency 3, got %d", cfg.Concurrency)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	content := "NAVER_CLIENT_ID=file-id\nNAVER_CLIENT_SECRET=file-secret\nRANKWATCH_MAX_DEPTH=30\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Setenv("NAVER_CLIENT_SECRET", "env-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ClientID != "file-id" {
		t.Errorf("expected client id from .env, got %q", cfg.ClientID)
	}
	if cfg.ClientSecret != "env-secret" {
		t.Errorf("expected environment to override .env, got %q", cfg.ClientSecret)
	}
	if cfg.MaxDepth != 30 {
		t.Errorf("expected max depth 30, got %d", cfg.MaxDepth)
	}
}

func TestLoad_ExplicitFile(t *testing.T) {
	dir := isolate(t)

	if _, err := Load(filepath.Join(dir, "missing.env")); err == nil {
		t.Error("expected error for a missing explicit config file")
	}

	path := filepath.Join(dir, "prod.env")
	if err := os.WriteFile(path, []byte("RANKWATCH_OUTPUT_DIR=/var/lib/rankwatch\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OutputDir != "/var/lib/rankwatch" {
		t.Errorf("expected output dir from file, got %q", cfg.OutputDir)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			KeywordsPath: "keywords.csv",
			OutputDir:    ".",
			PageSize:     5,
			MaxDepth:     50,
			Pause:        time.Second,
			Timeout:      10 * time.Second,
			Concurrency:  1,
			Interval:     10 * time.Minute,
		}
	}

	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero pause allowed", func(c *Config) { c.Pause = 0 }, ""},
		{"page size", func(c *Config) { c.PageSize = 0 }, "RANKWATCH_PAGE_SIZE"},
		{"page size too large", func(c *Config) { c.PageSize = 101 }, "RANKWATCH_PAGE_SIZE"},
		{"depth", func(c *Config) { c.MaxDepth = 0 }, "RANKWATCH_MAX_DEPTH"},
		{"negative pause", func(c *Config) { c.Pause = -time.Second }, "RANKWATCH_PAUSE"},
		{"timeout", func(c *Config) { c.Timeout = 0 }, "RANKWATCH_TIMEOUT"},
		{"concurrency", func(c *Config) { c.Concurrency = 0 }, "RANKWATCH_CONCURRENCY"},
		{"interval", func(c *Config) { c.Interval = time.Millisecond }, "RANKWATCH_INTERVAL"},
		{"metrics port", func(c *Config) { c.MetricsPort = 70000 }, "RANKWATCH_METRICS_PORT"},
		{"keywords", func(c *Config) { c.KeywordsPath = "" }, "RANKWATCH_KEYWORDS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error mentioning %s, got %v", tc.wantErr, err)
			}
		})
	}
}
