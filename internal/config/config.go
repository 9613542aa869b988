// Package config holds agentpack's layered configuration: flags, then
// AGENTPACK_* environment variables, then agentpack.yaml in the source root,
// then the defaults below.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	apperrors "github.com/kingrea/agentpack/internal/errors"
	"github.com/kingrea/agentpack/internal/logging"
	"github.com/kingrea/agentpack/internal/resource"
)

const (
	// FileName is the config file looked up in the source root.
	FileName = "agentpack.yaml"
	// EnvPrefix prefixes environment overrides, e.g. AGENTPACK_OUTPUT_DIR.
	EnvPrefix = "AGENTPACK"
	// PackNameToken is replaced by the pack name in output.pack_root_label.
	PackNameToken = "{name}"
)

const defaultConfigYAML = `# agentpack configuration
source:
  # Directories below the source root.
  core_dir: core
  common_dir: common
  packs_dir: packs
  # Optional <variant>.md files replacing the built-in bundle preambles.
  preambles_dir: preambles

output:
  dir: dist
  root_label: .bmad-core
  # {name} is replaced by the pack name unless the pack sets root-label.
  pack_root_label: .{name}

roles:
  coordinator: bmad-orchestrator
  single_operator: bmad-master
  wildcard: "*"

# Only the designated agent may declare a capability resource.
capabilities:
  - resource: data#bmad-kb
    agent: bmad-orchestrator

validation:
  # Sizes are in characters; 0 disables the check.
  max_bundle_size: 0
  max_section_size: 0
  bundle_severity: blocking
  section_severity: advisory

build:
  workers: 4
  strict: false

logging:
  level: info
`

// Config is the complete agentpack configuration.
type Config struct {
	Source       SourceConfig       `mapstructure:"source" yaml:"source"`
	Output       OutputConfig       `mapstructure:"output" yaml:"output"`
	Roles        RolesConfig        `mapstructure:"roles" yaml:"roles"`
	Identity     IdentityConfig     `mapstructure:"identity" yaml:"identity"`
	Capabilities []CapabilityConfig `mapstructure:"capabilities" yaml:"capabilities"`
	Validation   ValidationConfig   `mapstructure:"validation" yaml:"validation"`
	Build        BuildConfig        `mapstructure:"build" yaml:"build"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

// SourceConfig locates the tiers.
type SourceConfig struct {
	// Root is the source tree; relative tier directories resolve against it.
	Root         string `mapstructure:"root" yaml:"root,omitempty"`
	CoreDir      string `mapstructure:"core_dir" yaml:"core_dir"`
	CommonDir    string `mapstructure:"common_dir" yaml:"common_dir"`
	PacksDir     string `mapstructure:"packs_dir" yaml:"packs_dir"`
	PreamblesDir string `mapstructure:"preambles_dir" yaml:"preambles_dir"`
}

// OutputConfig controls where bundles go and how {root} is rendered.
type OutputConfig struct {
	Dir           string `mapstructure:"dir" yaml:"dir"`
	RootLabel     string `mapstructure:"root_label" yaml:"root_label"`
	PackRootLabel string `mapstructure:"pack_root_label" yaml:"pack_root_label"`
}

// RolesConfig names agents with special team membership rules.
type RolesConfig struct {
	Coordinator    string `mapstructure:"coordinator" yaml:"coordinator"`
	SingleOperator string `mapstructure:"single_operator" yaml:"single_operator"`
	Wildcard       string `mapstructure:"wildcard" yaml:"wildcard"`
}

// IdentityConfig lists what is stripped from identity sections.
type IdentityConfig struct {
	ReservedKeys       []string `mapstructure:"reserved_keys" yaml:"reserved_keys,omitempty"`
	InstructionKey     string   `mapstructure:"instruction_key" yaml:"instruction_key,omitempty"`
	InstructionMarkers []string `mapstructure:"instruction_markers" yaml:"instruction_markers,omitempty"`
}

// CapabilityConfig binds an exclusive resource to its designated agent.
type CapabilityConfig struct {
	Resource string `mapstructure:"resource" yaml:"resource"`
	Agent    string `mapstructure:"agent" yaml:"agent"`
}

// ValidationConfig holds bundle size thresholds in characters.
type ValidationConfig struct {
	MaxBundleSize   int    `mapstructure:"max_bundle_size" yaml:"max_bundle_size"`
	MaxSectionSize  int    `mapstructure:"max_section_size" yaml:"max_section_size"`
	BundleSeverity  string `mapstructure:"bundle_severity" yaml:"bundle_severity"`
	SectionSeverity string `mapstructure:"section_severity" yaml:"section_severity"`
}

// BuildConfig tunes batch builds.
type BuildConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
	// Strict aborts a team build on the first missing member or resource.
	Strict bool `mapstructure:"strict" yaml:"strict"`
}

// LoggingConfig selects the log level and an optional log directory.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	// Dir enables JSON file logging; empty logs text to stderr.
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			CoreDir:      "core",
			CommonDir:    "common",
			PacksDir:     "packs",
			PreamblesDir: "preambles",
		},
		Output: OutputConfig{
			Dir:           "dist",
			RootLabel:     ".bmad-core",
			PackRootLabel: "." + PackNameToken,
		},
		Roles: RolesConfig{
			Coordinator:    "bmad-orchestrator",
			SingleOperator: "bmad-master",
			Wildcard:       "*",
		},
		Identity: IdentityConfig{
			ReservedKeys:       []string{"root", "IDE-FILE-RESOLUTION", "REQUEST-RESOLUTION"},
			InstructionKey:     "activation-instructions",
			InstructionMarkers: []string{"IDE-FILE-RESOLUTION", "REQUEST-RESOLUTION"},
		},
		Capabilities: []CapabilityConfig{
			{Resource: "data#bmad-kb", Agent: "bmad-orchestrator"},
		},
		Validation: ValidationConfig{
			BundleSeverity:  "blocking",
			SectionSeverity: "advisory",
		},
		Build: BuildConfig{
			Workers: 4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers default values with v.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("source.root", d.Source.Root)
	v.SetDefault("source.core_dir", d.Source.CoreDir)
	v.SetDefault("source.common_dir", d.Source.CommonDir)
	v.SetDefault("source.packs_dir", d.Source.PacksDir)
	v.SetDefault("source.preambles_dir", d.Source.PreamblesDir)

	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.root_label", d.Output.RootLabel)
	v.SetDefault("output.pack_root_label", d.Output.PackRootLabel)

	v.SetDefault("roles.coordinator", d.Roles.Coordinator)
	v.SetDefault("roles.single_operator", d.Roles.SingleOperator)
	v.SetDefault("roles.wildcard", d.Roles.Wildcard)

	v.SetDefault("identity.reserved_keys", d.Identity.ReservedKeys)
	v.SetDefault("identity.instruction_key", d.Identity.InstructionKey)
	v.SetDefault("identity.instruction_markers", d.Identity.InstructionMarkers)

	capabilities := make([]map[string]any, 0, len(d.Capabilities))
	for _, c := range d.Capabilities {
		capabilities = append(capabilities, map[string]any{"resource": c.Resource, "agent": c.Agent})
	}
	v.SetDefault("capabilities", capabilities)

	v.SetDefault("validation.max_bundle_size", d.Validation.MaxBundleSize)
	v.SetDefault("validation.max_section_size", d.Validation.MaxSectionSize)
	v.SetDefault("validation.bundle_severity", d.Validation.BundleSeverity)
	v.SetDefault("validation.section_severity", d.Validation.SectionSeverity)

	v.SetDefault("build.workers", d.Build.Workers)
	v.SetDefault("build.strict", d.Build.Strict)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.dir", d.Logging.Dir)
}

// NewViper returns a viper instance with defaults and environment bindings
// set. When root is not empty and holds FileName, that file is read.
func NewViper(root string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if root == "" {
		return v, nil
	}
	v.Set("source.root", root)
	path := filepath.Join(root, FileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		return nil, apperrors.NewConfigError("stat "+path, err)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, apperrors.NewConfigError("read "+path, err)
	}
	// The file may not override where it was found.
	v.Set("source.root", root)
	return v, nil
}

// Load unmarshals v, then normalizes and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.NewConfigError("decode configuration", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads a single config file over the defaults. Relative source
// paths resolve against the file's directory.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigError("read "+path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, apperrors.NewConfigError("parse "+path, err)
	}
	if cfg.Source.Root == "" {
		cfg.Source.Root = filepath.Dir(path)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteDefault writes the commented default configuration to path. An
// existing file is left alone unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return apperrors.NewConfigError(path+" already exists", nil)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: ensure dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Save encodes c to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// CoreDir returns the shared tier directory.
func (c *Config) CoreDir() string { return resolvePath(c.Source.Root, c.Source.CoreDir) }

// CommonDir returns the common tier directory.
func (c *Config) CommonDir() string { return resolvePath(c.Source.Root, c.Source.CommonDir) }

// PacksDir returns the directory holding expansion packs.
func (c *Config) PacksDir() string { return resolvePath(c.Source.Root, c.Source.PacksDir) }

// OutputDir returns the bundle output directory.
func (c *Config) OutputDir() string { return resolvePath(c.Source.Root, c.Output.Dir) }

// PackRootLabel returns the default root label for pack name.
func (c *Config) PackRootLabel(name string) string {
	return strings.ReplaceAll(c.Output.PackRootLabel, PackNameToken, name)
}

func (c *Config) normalize() {
	c.Source.Root = strings.TrimSpace(c.Source.Root)
	if c.Source.Root == "" {
		c.Source.Root = "."
	}
	c.Source.Root = filepath.Clean(c.Source.Root)
	c.Source.CoreDir = strings.TrimSpace(c.Source.CoreDir)
	c.Source.CommonDir = strings.TrimSpace(c.Source.CommonDir)
	c.Source.PacksDir = strings.TrimSpace(c.Source.PacksDir)
	c.Source.PreamblesDir = strings.TrimSpace(c.Source.PreamblesDir)
	c.Output.Dir = strings.TrimSpace(c.Output.Dir)
	c.Output.RootLabel = strings.TrimSpace(c.Output.RootLabel)
	c.Output.PackRootLabel = strings.TrimSpace(c.Output.PackRootLabel)
	if c.Output.PackRootLabel == "" {
		c.Output.PackRootLabel = "." + PackNameToken
	}
	c.Roles.Coordinator = strings.TrimSpace(c.Roles.Coordinator)
	c.Roles.SingleOperator = strings.TrimSpace(c.Roles.SingleOperator)
	c.Roles.Wildcard = strings.TrimSpace(c.Roles.Wildcard)
	for i := range c.Capabilities {
		c.Capabilities[i].Resource = strings.TrimSpace(c.Capabilities[i].Resource)
		c.Capabilities[i].Agent = strings.TrimSpace(c.Capabilities[i].Agent)
	}
	c.Validation.BundleSeverity = normalizeSeverity(c.Validation.BundleSeverity, "blocking")
	c.Validation.SectionSeverity = normalizeSeverity(c.Validation.SectionSeverity, "advisory")
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir != "" {
		c.Logging.Dir = resolvePath(c.Source.Root, c.Logging.Dir)
	}
}

func (c *Config) validate() error {
	switch {
	case c.Source.CoreDir == "":
		return apperrors.NewConfigError("core directory is required", nil).WithKey("source.core_dir")
	case c.Output.Dir == "":
		return apperrors.NewConfigError("output directory is required", nil).WithKey("output.dir")
	case c.Output.RootLabel == "":
		return apperrors.NewConfigError("root label is required", nil).WithKey("output.root_label")
	case strings.Contains(c.Output.RootLabel, "{root}"):
		return apperrors.NewConfigError("root label must not contain {root}", nil).WithKey("output.root_label")
	case strings.Contains(c.Output.PackRootLabel, "{root}"):
		return apperrors.NewConfigError("pack root label must not contain {root}", nil).WithKey("output.pack_root_label")
	case c.Roles.Coordinator == "":
		return apperrors.NewConfigError("coordinator is required", nil).WithKey("roles.coordinator")
	case c.Roles.Wildcard == "":
		return apperrors.NewConfigError("wildcard token is required", nil).WithKey("roles.wildcard")
	case c.Validation.MaxBundleSize < 0:
		return apperrors.NewConfigError("must be >= 0", nil).WithKey("validation.max_bundle_size")
	case c.Validation.MaxSectionSize < 0:
		return apperrors.NewConfigError("must be >= 0", nil).WithKey("validation.max_section_size")
	case c.Build.Workers < 1:
		return apperrors.NewConfigError("must be >= 1", nil).WithKey("build.workers")
	}
	for _, d := range []struct{ key, dir string }{
		{"source.core_dir", c.Source.CoreDir},
		{"source.common_dir", c.Source.CommonDir},
		{"source.packs_dir", c.Source.PacksDir},
		{"source.preambles_dir", c.Source.PreamblesDir},
	} {
		if filepath.IsAbs(d.dir) || strings.HasPrefix(filepath.Clean(d.dir), "..") {
			return apperrors.NewConfigError("must be relative to source.root", nil).WithKey(d.key)
		}
	}
	if !validSeverity(c.Validation.BundleSeverity) {
		return apperrors.NewConfigError(fmt.Sprintf("unknown severity %q", c.Validation.BundleSeverity), nil).WithKey("validation.bundle_severity")
	}
	if !validSeverity(c.Validation.SectionSeverity) {
		return apperrors.NewConfigError(fmt.Sprintf("unknown severity %q", c.Validation.SectionSeverity), nil).WithKey("validation.section_severity")
	}
	for i, capability := range c.Capabilities {
		if _, err := resource.ParseReference(capability.Resource); err != nil {
			return apperrors.NewConfigError(err.Error(), nil).WithKey(fmt.Sprintf("capabilities[%d].resource", i))
		}
		if capability.Agent == "" {
			return apperrors.NewConfigError("agent is required", nil).WithKey(fmt.Sprintf("capabilities[%d].agent", i))
		}
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return apperrors.NewConfigError(fmt.Sprintf("unknown level %q", c.Logging.Level), nil).WithKey("logging.level")
	}
	return nil
}

func normalizeSeverity(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "":
		return fallback
	case "error":
		return "blocking"
	case "warning", "warn":
		return "advisory"
	}
	return value
}

func validSeverity(value string) bool {
	return value == "blocking" || value == "advisory"
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
