// Package install copies agents, teams and packs into a project directory,
// either as their source documents or as assembled bundles, and records
// what it wrote in a manifest.
package install

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/kingrea/agentpack/internal/artifact"
	"github.com/kingrea/agentpack/internal/build"
	"github.com/kingrea/agentpack/internal/bundle"
	"github.com/kingrea/agentpack/internal/deps"
	apperrors "github.com/kingrea/agentpack/internal/errors"
	"github.com/kingrea/agentpack/internal/logging"
	"github.com/kingrea/agentpack/internal/resource"
)

// Mode selects what gets installed.
type Mode string

const (
	// ModeSource installs the definition documents and every resolved
	// resource as individual files.
	ModeSource Mode = "source"
	// ModeBundle installs one assembled bundle per target.
	ModeBundle Mode = "bundle"
)

// BundleDir holds installed bundles below the target directory.
const BundleDir = "web-bundles"

// Options configure an Installer.
type Options struct {
	Builder *build.Builder
	// Fs is the filesystem of the target directory. Defaults to the OS.
	Fs      afero.Fs
	Dir     string
	Mode    Mode
	Version string
	Logger  *logging.Logger
	Now     func() time.Time
}

// Installer writes targets into Dir.
type Installer struct {
	opts Options
}

// New returns an installer for opts.
func New(opts Options) (*Installer, error) {
	if opts.Builder == nil {
		return nil, fmt.Errorf("install: a builder is required")
	}
	if opts.Dir == "" {
		return nil, apperrors.NewConfigError("install directory is required", nil)
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Mode == "" {
		opts.Mode = ModeSource
	}
	if opts.Mode != ModeSource && opts.Mode != ModeBundle {
		return nil, apperrors.NewConfigError(fmt.Sprintf("unknown install mode %q", opts.Mode), nil)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Installer{opts: opts}, nil
}

type pending struct {
	rel     string
	content string
}

// Install writes every target and merges the result into the manifest of
// the target directory. Nothing is written when any target fails to resolve.
func (in *Installer) Install(ctx context.Context, targets []build.Target) (*Manifest, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("install: nothing selected")
	}
	files := map[string]pending{}
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var (
			out []pending
			err error
		)
		if in.opts.Mode == ModeBundle {
			out, err = in.bundleFiles(t)
		} else {
			out, err = in.sourceFiles(t)
		}
		if err != nil {
			return nil, fmt.Errorf("install: %s: %w", t, err)
		}
		for _, f := range out {
			files[f.rel] = f
		}
	}

	manifest, err := ReadManifest(in.opts.Fs, in.opts.Dir)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	if manifest == nil {
		manifest = &Manifest{}
	}

	rels := make([]string, 0, len(files))
	for rel := range files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	written := make([]File, 0, len(rels))
	for _, rel := range rels {
		data := []byte(files[rel].content)
		full := filepath.Join(in.opts.Dir, filepath.FromSlash(rel))
		if err := in.opts.Fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return nil, fmt.Errorf("install: create dir for %s: %w", rel, err)
		}
		if err := afero.WriteFile(in.opts.Fs, full, data, 0o644); err != nil {
			return nil, fmt.Errorf("install: write %s: %w", rel, err)
		}
		written = append(written, File{Path: rel, SHA256: artifact.Checksum(data), Size: len(data)})
	}

	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.String())
	}
	manifest.merge(in.opts.Version, in.opts.Mode, in.opts.Now(), names, written)
	if err := manifest.Write(in.opts.Fs, in.opts.Dir); err != nil {
		return nil, err
	}
	in.opts.Logger.Info("installed", "dir", in.opts.Dir, "mode", string(in.opts.Mode), "targets", len(targets), "files", len(written))
	return manifest, nil
}

func (in *Installer) bundleFiles(t build.Target) ([]pending, error) {
	prepared, err := in.opts.Builder.Prepare(t)
	if err != nil {
		return nil, err
	}
	if !prepared.Validation.Valid {
		return nil, prepared.Validation.Err()
	}
	return []pending{{rel: path.Join(BundleDir, t.Ref().Path()), content: prepared.Bundle.Render()}}, nil
}

func (in *Installer) sourceFiles(t build.Target) ([]pending, error) {
	def, set, err := in.opts.Builder.Resolve(t)
	if err != nil {
		return nil, err
	}
	cat, err := in.opts.Builder.Catalog(t.Pack)
	if err != nil {
		return nil, err
	}
	label, err := in.opts.Builder.RootLabel(t.Pack)
	if err != nil {
		return nil, err
	}
	tiers := cat.Tiers()
	place := func(kind resource.Type, file, content string) pending {
		return pending{
			rel:     path.Join(label, kind.Dir(), file),
			content: bundle.SubstituteRoot(content, label),
		}
	}

	var out []pending
	if t.Kind == artifact.KindTeam {
		doc, err := tiers.Resolve(resource.NewReference(resource.KindTeam, t.ID))
		switch {
		case err == nil:
			out = append(out, place(resource.KindTeam, doc.FileName(), doc.Content))
		case apperrors.Is(err, apperrors.ErrNotFound):
			// Scripted teams have no document of their own.
			out = append(out, place(resource.KindTeam, t.ID+".yaml", def.Block()))
		default:
			return nil, err
		}
	}
	for _, agent := range set.Agents {
		doc, err := tiers.Resolve(resource.NewReference(resource.KindAgent, agent.ID))
		if err != nil {
			return nil, err
		}
		out = append(out, place(resource.KindAgent, doc.FileName(), doc.Content))
	}
	for _, res := range set.Resources {
		out = append(out, place(res.Ref.Type, res.FileName(), res.Content))
	}
	logSkipped(in.opts.Logger.WithTarget(t.String()), set)
	return out, nil
}

func logSkipped(log *logging.Logger, set *deps.Set) {
	for _, s := range set.Skipped {
		ref := s.Member
		if s.Ref.ID != "" {
			ref = s.Ref.String()
		}
		log.Warn("skipped during install", "ref", ref)
	}
}
