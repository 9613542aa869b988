package install

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/kingrea/agentpack/internal/artifact"
	"github.com/kingrea/agentpack/internal/build"
	apperrors "github.com/kingrea/agentpack/internal/errors"
	"github.com/kingrea/agentpack/internal/pack"
	"github.com/kingrea/agentpack/internal/testutil"
	"github.com/kingrea/agentpack/internal/tier"
)

func newBuilder(t *testing.T) *build.Builder {
	t.Helper()
	tree, _ := testutil.MemTree(t, map[string]string{
		"core/agents/bmad-orchestrator.md": testutil.AgentDoc("bmad-orchestrator", nil),
		"core/agents/writer.md": testutil.AgentDoc("writer", map[string][]string{
			"tasks":     {"draft"},
			"templates": {"outline"},
		}),
		"core/tasks/draft.md":             "load {root}/templates/outline.yaml",
		"core/templates/outline.yaml":     "outline",
		"core/agent-teams/team-docs.yaml": testutil.TeamDoc("Docs", []string{"writer"}),
		"packs/X/config.yaml":             "name: x-pack\n",
		"packs/X/tasks/draft.md":          "pack draft for {root}",
	})
	locator, err := pack.NewLocator(tree, tier.DefaultLayout(), 0)
	if err != nil {
		t.Fatalf("locator: %v", err)
	}
	t.Cleanup(locator.Close)
	b, err := build.New(build.Options{
		Tree:          tree,
		Packs:         locator,
		RootLabel:     ".bmad-core",
		PackRootLabel: func(p string) string { return ".pack-" + p },
	})
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	return b
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestInstallSource(t *testing.T) {
	fsys := afero.NewMemMapFs()
	in, err := New(Options{Builder: newBuilder(t), Fs: fsys, Dir: "/project", Version: "1.2.0", Now: fixedNow})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	manifest, err := in.Install(context.Background(), []build.Target{{Kind: artifact.KindTeam, ID: "team-docs"}})
	if err != nil {
		t.Fatalf("install: %v", err)
	}

	want := []string{
		".bmad-core/agent-teams/team-docs.yaml",
		".bmad-core/agents/bmad-orchestrator.md",
		".bmad-core/agents/writer.md",
		".bmad-core/tasks/draft.md",
		".bmad-core/templates/outline.yaml",
	}
	var got []string
	for _, f := range manifest.Files {
		got = append(got, f.Path)
		if f.SHA256 == "" {
			t.Fatalf("missing checksum for %s", f.Path)
		}
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
	task, err := afero.ReadFile(fsys, "/project/.bmad-core/tasks/draft.md")
	if err != nil {
		t.Fatalf("read task: %v", err)
	}
	if string(task) != "load .bmad-core/templates/outline.yaml" {
		t.Fatalf("root not substituted: %q", task)
	}
	agent, _ := afero.ReadFile(fsys, "/project/.bmad-core/agents/writer.md")
	if strings.Contains(string(agent), "{root}") {
		t.Fatalf("agent document still references {root}")
	}

	stored, err := ReadManifest(fsys, "/project")
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if stored.Version != "1.2.0" || stored.Mode != ModeSource || !stored.InstalledAt.Equal(fixedNow()) {
		t.Fatalf("unexpected manifest header %+v", stored)
	}
	if !reflect.DeepEqual(stored.Targets, []string{"team#team-docs"}) {
		t.Fatalf("targets = %v", stored.Targets)
	}
	entry, ok := stored.File(".bmad-core/tasks/draft.md")
	if !ok || entry.SHA256 != artifact.Checksum(task) {
		t.Fatalf("manifest checksum mismatch: %+v", entry)
	}
}

func TestInstallPackUsesPackRootLabel(t *testing.T) {
	fsys := afero.NewMemMapFs()
	in, err := New(Options{Builder: newBuilder(t), Fs: fsys, Dir: "/project", Now: fixedNow})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := in.Install(context.Background(), []build.Target{{Kind: artifact.KindAgent, ID: "writer", Pack: "X"}}); err != nil {
		t.Fatalf("install: %v", err)
	}
	data, err := afero.ReadFile(fsys, "/project/.pack-X/tasks/draft.md")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "pack draft for .pack-X" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestInstallBundleMergesManifest(t *testing.T) {
	fsys := afero.NewMemMapFs()
	b := newBuilder(t)
	source, err := New(Options{Builder: b, Fs: fsys, Dir: "/project", Now: fixedNow})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := source.Install(context.Background(), []build.Target{{Kind: artifact.KindAgent, ID: "writer"}}); err != nil {
		t.Fatalf("source install: %v", err)
	}
	bundled, err := New(Options{Builder: b, Fs: fsys, Dir: "/project", Mode: ModeBundle, Now: fixedNow})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	manifest, err := bundled.Install(context.Background(), []build.Target{{Kind: artifact.KindTeam, ID: "team-docs"}})
	if err != nil {
		t.Fatalf("bundle install: %v", err)
	}
	body, err := afero.ReadFile(fsys, "/project/web-bundles/teams/team-docs.txt")
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	if !strings.Contains(string(body), "==================== START: agent#writer ====================") {
		t.Fatalf("bundle is missing the writer section")
	}
	if !reflect.DeepEqual(manifest.Targets, []string{"agent#writer", "team#team-docs"}) {
		t.Fatalf("targets = %v", manifest.Targets)
	}
	if _, ok := manifest.File(".bmad-core/agents/writer.md"); !ok {
		t.Fatalf("earlier source files dropped from manifest")
	}
	if _, ok := manifest.File("web-bundles/teams/team-docs.txt"); !ok {
		t.Fatalf("bundle missing from manifest")
	}
}

func TestInstallFailsBeforeWriting(t *testing.T) {
	fsys := afero.NewMemMapFs()
	in, err := New(Options{Builder: newBuilder(t), Fs: fsys, Dir: "/project"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = in.Install(context.Background(), []build.Target{
		{Kind: artifact.KindAgent, ID: "writer"},
		{Kind: artifact.KindAgent, ID: "ghost"},
	})
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if exists, _ := afero.DirExists(fsys, "/project"); exists {
		t.Fatalf("nothing should be written when a target fails")
	}
}

func TestNewRejectsUnknownMode(t *testing.T) {
	if _, err := New(Options{Builder: newBuilder(t), Dir: "/x", Mode: "zip"}); !apperrors.Is(err, apperrors.ErrInvalidConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}
