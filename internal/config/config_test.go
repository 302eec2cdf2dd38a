package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Test output defaults
	if cfg.Output.File != "autoreg_registry.go" {
		t.Errorf("expected output file 'autoreg_registry.go', got %s", cfg.Output.File)
	}
	if cfg.Output.Dir != "registry" {
		t.Errorf("expected output dir 'registry', got %s", cfg.Output.Dir)
	}

	if cfg.Output.Verify != "sha256" {
		t.Errorf("expected output verify 'sha256', got %s", cfg.Output.Verify)
	}

	// Test source defaults
	if cfg.Sources.Root != "." {
		t.Errorf("expected sources root '.', got %s", cfg.Sources.Root)
	}
	if len(cfg.Sources.Include) != 2 {
		t.Errorf("expected 2 include patterns, got %d", len(cfg.Sources.Include))
	}

	// Test pipeline defaults
	if cfg.Pipeline.Workers != 0 {
		t.Errorf("expected workers 0, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.MemoSize != 4096 {
		t.Errorf("expected memo_size 4096, got %d", cfg.Pipeline.MemoSize)
	}

	// Test state defaults
	if cfg.State.Backend != BackendNone {
		t.Errorf("expected state backend 'none', got %s", cfg.State.Backend)
	}
	if cfg.State.Table != "autoreg_discovery" {
		t.Errorf("expected state table 'autoreg_discovery', got %s", cfg.State.Table)
	}
	if cfg.State.Database.Port != 3306 {
		t.Errorf("expected state database port 3306, got %d", cfg.State.Database.Port)
	}

	// Test logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected logging level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("expected logging output 'stderr', got %s", cfg.Logging.Output)
	}
}

func TestPackageName(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		pkg       string
		expected  string
	}{
		{"last element", "github.com/acme/app/registry", "", "registry"},
		{"dashes replaced", "github.com/acme/app/plugin-registry", "", "plugin_registry"},
		{"dots replaced", "example.com/gen.v2", "", "gen_v2"},
		{"explicit package wins", "github.com/acme/app/registry", "plugins", "plugins"},
		{"bare namespace", "Ns", "", "Ns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Namespace: tt.namespace, Output: OutputConfig{Package: tt.pkg}}
			if got := cfg.PackageName(); got != tt.expected {
				t.Errorf("PackageName() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestOutputPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.Dir = "gen"
	if got := cfg.OutputPath(); got != filepath.Join("gen", "autoreg_registry.go") {
		t.Errorf("unexpected output path %q", got)
	}
}
