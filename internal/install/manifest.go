package install

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	apperrors "github.com/kingrea/agentpack/internal/errors"
)

// ManifestFile is written at the root of every install directory.
const ManifestFile = "install-manifest.yaml"

// File is one installed file, relative to the install directory.
type File struct {
	Path   string `yaml:"path"`
	SHA256 string `yaml:"sha256"`
	Size   int    `yaml:"size"`
}

// Manifest records what has been installed into a directory.
type Manifest struct {
	Version     string    `yaml:"version"`
	InstalledAt time.Time `yaml:"installed_at"`
	Mode        Mode      `yaml:"mode"`
	Targets     []string  `yaml:"targets"`
	Files       []File    `yaml:"files"`
}

// ReadManifest loads the manifest in dir. It returns a NotFoundError when
// dir has none.
func ReadManifest(fsys afero.Fs, dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewNotFoundError("manifest", path)
		}
		return nil, fmt.Errorf("install: read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, apperrors.NewMalformedDefinitionError("invalid install manifest", err).WithSource(path)
	}
	return &m, nil
}

// Write stores the manifest in dir.
func (m *Manifest) Write(fsys afero.Fs, dir string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("install: encode manifest: %w", err)
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("install: create %s: %w", dir, err)
	}
	if err := afero.WriteFile(fsys, filepath.Join(dir, ManifestFile), data, 0o644); err != nil {
		return fmt.Errorf("install: write manifest: %w", err)
	}
	return nil
}

// File returns the manifest entry for rel.
func (m *Manifest) File(rel string) (File, bool) {
	for _, f := range m.Files {
		if f.Path == rel {
			return f, true
		}
	}
	return File{}, false
}

func (m *Manifest) merge(version string, mode Mode, at time.Time, targets []string, files []File) {
	m.Version = version
	m.Mode = mode
	m.InstalledAt = at.UTC()

	seen := map[string]struct{}{}
	for _, t := range m.Targets {
		seen[t] = struct{}{}
	}
	for _, t := range targets {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			m.Targets = append(m.Targets, t)
		}
	}
	sort.Strings(m.Targets)

	byPath := make(map[string]File, len(m.Files)+len(files))
	for _, f := range m.Files {
		byPath[f.Path] = f
	}
	for _, f := range files {
		byPath[f.Path] = f
	}
	m.Files = m.Files[:0]
	for _, f := range byPath {
		m.Files = append(m.Files, f)
	}
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Path < m.Files[j].Path })
}
