// Package pack discovers expansion packs and reads their config.yaml.
package pack

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/kingrea/agentpack/internal/errors"
	"github.com/kingrea/agentpack/internal/tier"
)

// ConfigFile is read from the root of every pack directory.
const ConfigFile = "config.yaml"

// Config models a pack's config.yaml.
type Config struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version,omitempty"`
	ShortTitle  string `yaml:"short-title,omitempty"`
	Description string `yaml:"description,omitempty"`
	Author      string `yaml:"author,omitempty"`
	// RootLabel replaces {root} in the pack's bundles and installs.
	RootLabel string `yaml:"root-label,omitempty"`
}

// Pack is one directory below the packs dir.
type Pack struct {
	// Dir is the directory name, used as the pack context.
	Dir    string
	Path   string
	Config Config
}

// Name returns the display name from config.yaml, or the directory name.
func (p *Pack) Name() string {
	if p.Config.Name != "" {
		return p.Config.Name
	}
	return p.Dir
}

// Title returns the short title, falling back to the name.
func (p *Pack) Title() string {
	if p.Config.ShortTitle != "" {
		return p.Config.ShortTitle
	}
	return p.Name()
}

// RootLabel returns the configured root label or fallback.
func (p *Pack) RootLabel(fallback string) string {
	if p.Config.RootLabel != "" {
		return p.Config.RootLabel
	}
	return fallback
}

// Load reads the pack stored in dir below layout's packs directory. A pack
// without config.yaml is valid and named after its directory.
func Load(tree tier.Tree, layout tier.Layout, dir string) (*Pack, error) {
	p := &Pack{Dir: dir, Path: layout.PackDir(dir)}
	configPath := path.Join(p.Path, ConfigFile)
	data, err := tree.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		return nil, fmt.Errorf("pack: read %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(data, &p.Config); err != nil {
		return nil, apperrors.NewMalformedDefinitionError("decode pack config", err).WithSource(configPath)
	}
	if err := p.Config.validate(); err != nil {
		return nil, err.WithSource(configPath)
	}
	p.Config.normalize()
	return p, nil
}

func (cfg *Config) validate() *apperrors.MalformedDefinitionError {
	if strings.TrimSpace(cfg.Name) == "" {
		return apperrors.NewMalformedDefinitionError("pack name is required", nil).WithField("name")
	}
	if strings.Contains(cfg.RootLabel, "{root}") {
		return apperrors.NewMalformedDefinitionError("root-label must not contain {root}", nil).WithField("root-label")
	}
	return nil
}

func (cfg *Config) normalize() {
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Version = strings.TrimSpace(cfg.Version)
	cfg.ShortTitle = strings.TrimSpace(cfg.ShortTitle)
	cfg.Description = strings.TrimSpace(cfg.Description)
	cfg.Author = strings.TrimSpace(cfg.Author)
	cfg.RootLabel = strings.TrimSpace(cfg.RootLabel)
}
