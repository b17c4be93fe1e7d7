package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/primus-os/primus/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Inference.Provider != "ollama" {
		t.Errorf("default inference provider = %s", cfg.Inference.Provider)
	}
	if cfg.Data.Backend != "sqlite" {
		t.Errorf("default backend = %s", cfg.Data.Backend)
	}
	if cfg.Approvals.Sweep != time.Minute {
		t.Errorf("default sweep = %s", cfg.Approvals.Sweep)
	}
	if cfg.HTTP.Addr != "127.0.0.1:8787" {
		t.Errorf("default http addr = %s", cfg.HTTP.Addr)
	}
	if cfg.Index.Enabled {
		t.Error("index enabled by default")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
log:
  level: debug
data:
  backend: memory
inference:
  model: llama3.1
approvals:
  sweep: 30s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %s", cfg.Log.Level)
	}
	if cfg.Data.Backend != "memory" {
		t.Errorf("backend = %s", cfg.Data.Backend)
	}
	if cfg.Inference.Model != "llama3.1" {
		t.Errorf("model = %s", cfg.Inference.Model)
	}
	if cfg.Approvals.Sweep != 30*time.Second {
		t.Errorf("sweep = %s", cfg.Approvals.Sweep)
	}
	// Untouched keys keep their defaults.
	if cfg.Inference.Provider != "ollama" {
		t.Errorf("provider = %s", cfg.Inference.Provider)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PRIMUS_LOG_LEVEL", "debug")
	t.Setenv("PRIMUS_INFERENCE_PROVIDER", "mock")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("env did not win: log level = %s", cfg.Log.Level)
	}
	if cfg.Inference.Provider != "mock" {
		t.Errorf("provider = %s", cfg.Inference.Provider)
	}
}

func TestLoadWithCLIOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("inference:\n  provider: ollama\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PRIMUS_INFERENCE_PROVIDER", "mock")

	cfg, err := LoadWithCLI([]string{
		"--config", path,
		"--set", "inference.provider=scripted",
		"--set", "index.enabled=true",
		"--set=approvals.sweep=45s",
		"serve", // unrelated argument, ignored
	})
	if err != nil {
		t.Fatalf("LoadWithCLI failed: %v", err)
	}
	if cfg.Inference.Provider != "scripted" {
		t.Errorf("--set did not win: provider = %s", cfg.Inference.Provider)
	}
	if !cfg.Index.Enabled {
		t.Error("index.enabled override lost")
	}
	if cfg.Approvals.Sweep != 45*time.Second {
		t.Errorf("sweep = %s", cfg.Approvals.Sweep)
	}
}

func TestParseCLIOverrideErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing config value", []string{"--config"}},
		{"missing set value", []string{"--set"}},
		{"set without equals", []string{"--set", "invalid"}},
		{"set empty key", []string{"--set", "=v"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := parseCLIOverrides(tt.args); !errors.HasCode(err, errors.CodeConfig) {
				t.Fatalf("expected CONFIG_ERROR, got %v", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"bad backend", func(c *Config) { c.Data.Backend = "postgres" }},
		{"sqlite without dir", func(c *Config) { c.Data.Dir = "" }},
		{"zero sweep", func(c *Config) { c.Approvals.Sweep = 0 }},
		{"empty http addr", func(c *Config) { c.HTTP.Addr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.HasCode(err, errors.CodeConfig) {
				t.Fatalf("expected CONFIG_ERROR, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); !errors.HasCode(err, errors.CodeConfig) {
		t.Fatalf("expected CONFIG_ERROR, got %v", err)
	}
}
