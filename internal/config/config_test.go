package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	apperrors "github.com/kingrea/agentpack/internal/errors"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	root := t.TempDir()
	v, err := NewViper(root)
	if err != nil {
		t.Fatalf("NewViper returned error: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Roles.Coordinator != "bmad-orchestrator" || cfg.Roles.SingleOperator != "bmad-master" || cfg.Roles.Wildcard != "*" {
		t.Fatalf("unexpected roles %+v", cfg.Roles)
	}
	if cfg.CoreDir() != filepath.Join(root, "core") {
		t.Fatalf("expected core dir below root, got %q", cfg.CoreDir())
	}
	if cfg.OutputDir() != filepath.Join(root, "dist") {
		t.Fatalf("expected output dir below root, got %q", cfg.OutputDir())
	}
	if len(cfg.Capabilities) != 1 || cfg.Capabilities[0].Resource != "data#bmad-kb" {
		t.Fatalf("expected default capability, got %+v", cfg.Capabilities)
	}
	if !reflect.DeepEqual(cfg.Identity.InstructionMarkers, []string{"IDE-FILE-RESOLUTION", "REQUEST-RESOLUTION"}) {
		t.Fatalf("unexpected instruction markers %v", cfg.Identity.InstructionMarkers)
	}
}

func TestLoadParsesFileAndEnv(t *testing.T) {
	root := t.TempDir()
	configYAML := strings.TrimSpace(`
source:
  core_dir: src/core
output:
  root_label: .team-root
  pack_root_label: .pack-{name}
validation:
  max_bundle_size: 500000
  section_severity: error
build:
  workers: 2
  strict: true
`)
	if err := os.WriteFile(filepath.Join(root, FileName), []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AGENTPACK_OUTPUT_DIR", "build-out")

	v, err := NewViper(root)
	if err != nil {
		t.Fatalf("NewViper returned error: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.CoreDir() != filepath.Join(root, "src", "core") {
		t.Fatalf("core dir = %q", cfg.CoreDir())
	}
	if cfg.OutputDir() != filepath.Join(root, "build-out") {
		t.Fatalf("env should override output dir, got %q", cfg.OutputDir())
	}
	if cfg.Output.RootLabel != ".team-root" || cfg.PackRootLabel("writers") != ".pack-writers" {
		t.Fatalf("unexpected labels %+v", cfg.Output)
	}
	if cfg.Validation.MaxBundleSize != 500000 || cfg.Validation.SectionSeverity != "blocking" {
		t.Fatalf("unexpected validation %+v", cfg.Validation)
	}
	if cfg.Build.Workers != 2 || !cfg.Build.Strict {
		t.Fatalf("unexpected build %+v", cfg.Build)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"placeholder in root label", func(c *Config) { c.Output.RootLabel = "{root}/x" }, "output.root_label"},
		{"missing coordinator", func(c *Config) { c.Roles.Coordinator = "" }, "roles.coordinator"},
		{"negative size", func(c *Config) { c.Validation.MaxBundleSize = -1 }, "validation.max_bundle_size"},
		{"unknown severity", func(c *Config) { c.Validation.BundleSeverity = "fatal" }, "validation.bundle_severity"},
		{"zero workers", func(c *Config) { c.Build.Workers = 0 }, "build.workers"},
		{"bad capability", func(c *Config) { c.Capabilities = []CapabilityConfig{{Resource: "kb", Agent: "x"}} }, "capabilities[0].resource"},
		{"unknown level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"absolute tier dir", func(c *Config) { c.Source.CommonDir = "/etc/common" }, "source.common_dir"},
		{"tier dir outside root", func(c *Config) { c.Source.PacksDir = "../packs" }, "source.packs_dir"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			cfg.normalize()
			err := cfg.validate()
			var cfgErr *apperrors.ConfigError
			if !apperrors.As(err, &cfgErr) {
				t.Fatalf("expected config error, got %v", err)
			}
			if cfgErr.Key != tc.key {
				t.Fatalf("expected key %q, got %q", tc.key, cfgErr.Key)
			}
		})
	}
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault returned error: %v", err)
	}
	if err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected error when the file already exists")
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}
	want := Default()
	want.Source.Root = filepath.Dir(path)
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("default file does not match defaults:\n got %+v\nwant %+v", cfg, want)
	}

	cfg.Build.Workers = 8
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	reloaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile after save: %v", err)
	}
	if reloaded.Build.Workers != 8 {
		t.Fatalf("expected saved workers, got %d", reloaded.Build.Workers)
	}
}
