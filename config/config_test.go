package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty universe file",
			mutate: func(cfg *Config) {
				cfg.UniverseFile = ""
			},
			wantErr: "universe file",
		},
		{
			name: "no servers",
			mutate: func(cfg *Config) {
				cfg.Servers = nil
			},
			wantErr: "server",
		},
		{
			name: "bad server port",
			mutate: func(cfg *Config) {
				cfg.Servers[0].Port = 0
			},
			wantErr: "invalid port",
		},
		{
			name: "zero max workers",
			mutate: func(cfg *Config) {
				cfg.MaxWorkers = 0
			},
			wantErr: "max workers",
		},
		{
			name: "floor above max",
			mutate: func(cfg *Config) {
				cfg.FloorWorkers = cfg.MaxWorkers + 1
			},
			wantErr: "floor workers",
		},
		{
			name: "negative max retry",
			mutate: func(cfg *Config) {
				cfg.MaxRetry = -1
			},
			wantErr: "max retry",
		},
		{
			name: "zero batch size",
			mutate: func(cfg *Config) {
				cfg.BatchSize = 0
			},
			wantErr: "batch size",
		},
		{
			name: "bad skip ratio",
			mutate: func(cfg *Config) {
				cfg.NoDataSkipRatio = 1.5
			},
			wantErr: "skip ratio",
		},
		{
			name: "bad compression",
			mutate: func(cfg *Config) {
				cfg.Compression = "zstd"
			},
			wantErr: "compression",
		},
		{
			name: "negative attempt timeout",
			mutate: func(cfg *Config) {
				cfg.AttemptTimeout = -time.Second
			},
			wantErr: "attempt timeout",
		},
		{
			name: "empty quote url",
			mutate: func(cfg *Config) {
				cfg.QuoteURL = ""
			},
			wantErr: "quote URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoadFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
max_workers: 20
batch_size: 500
compression: none
servers:
  - host: 10.0.0.1
    port: 7709
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("load config file: %v", err)
	}
	if cfg.MaxWorkers != 20 {
		t.Fatalf("max workers = %d, want 20", cfg.MaxWorkers)
	}
	if cfg.BatchSize != 500 {
		t.Fatalf("batch size = %d, want 500", cfg.BatchSize)
	}
	if cfg.Compression != "none" {
		t.Fatalf("compression = %q, want none", cfg.Compression)
	}
	if len(cfg.Servers) != 1 || cfg.Servers[0].Host != "10.0.0.1" {
		t.Fatalf("servers = %v, want single 10.0.0.1", cfg.Servers)
	}
	// Untouched keys keep their defaults.
	if cfg.MaxRetry != 3 {
		t.Fatalf("max retry = %d, want default 3", cfg.MaxRetry)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("overlaid config should validate, got %v", err)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("TICKFETCH_TEST_INT", "42")
	value, ok, err := EnvInt("TICKFETCH_TEST_INT")
	if err != nil || !ok || value != 42 {
		t.Fatalf("EnvInt = (%d, %t, %v), want (42, true, nil)", value, ok, err)
	}

	t.Setenv("TICKFETCH_TEST_INT", "nope")
	if _, _, err := EnvInt("TICKFETCH_TEST_INT"); err == nil {
		t.Fatalf("expected error for non-numeric value")
	}

	if _, ok, _ := EnvInt("TICKFETCH_TEST_UNSET"); ok {
		t.Fatalf("unset variable should report ok=false")
	}
}
