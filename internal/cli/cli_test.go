package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	apperrors "github.com/kingrea/agentpack/internal/errors"
	"github.com/kingrea/agentpack/internal/install"
	"github.com/kingrea/agentpack/internal/testutil"
)

// executeCommand runs the command tree with args and returns captured output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return buf.String(), err
}

func sourceTree(t *testing.T, extra map[string]string) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"core/agents/bmad-orchestrator.md": testutil.AgentDoc("bmad-orchestrator", map[string][]string{"data": {"bmad-kb"}}),
		"core/agents/writer.md":            testutil.AgentDoc("writer", map[string][]string{"tasks": {"draft"}}),
		"core/data/bmad-kb.md":             "knowledge",
		"core/tasks/draft.md":              "see {root}/tasks/draft.md",
		"core/agent-teams/team-docs.yaml":  testutil.TeamDoc("Docs", []string{"writer"}),
		"packs/X/config.yaml":              "name: x-pack\nversion: 1.0.0\nshort-title: X Pack\n",
		"packs/X/agents/illustrator.md":    testutil.AgentDoc("illustrator", nil),
	}
	for k, v := range extra {
		files[k] = v
	}
	testutil.WriteFiles(t, afero.NewOsFs(), root, files)
	return root
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCommand()
	have := map[string]bool{}
	for _, cmd := range root.Commands() {
		have[cmd.Name()] = true
	}
	for _, name := range []string{"build", "validate", "list", "deps", "install", "init"} {
		if !have[name] {
			t.Errorf("expected subcommand %q", name)
		}
	}
}

func TestListCommand(t *testing.T) {
	root := sourceTree(t, nil)
	tests := []struct {
		args []string
		want []string
	}{
		{[]string{"list", "agents"}, []string{"bmad-orchestrator", "writer agent"}},
		{[]string{"list", "teams"}, []string{"team-docs", "Docs", "writer"}},
		{[]string{"list", "packs"}, []string{"x-pack", "1.0.0", "X Pack"}},
		{[]string{"list", "agents", "--pack", "X"}, []string{"illustrator", "writer"}},
	}
	for _, tc := range tests {
		t.Run(strings.Join(tc.args, " "), func(t *testing.T) {
			out, err := executeCommand(t, append([]string{"--root", root}, tc.args...)...)
			if err != nil {
				t.Fatalf("list: %v\n%s", err, out)
			}
			for _, want := range tc.want {
				if !strings.Contains(out, want) {
					t.Fatalf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
	if _, err := executeCommand(t, "--root", root, "list", "widgets"); err == nil {
		t.Fatalf("expected an error for an unknown listing")
	}
}

func TestBuildCommandWritesBundles(t *testing.T) {
	root := sourceTree(t, nil)
	out, err := executeCommand(t, "--root", root, "build")
	if err != nil {
		t.Fatalf("build: %v\n%s", err, out)
	}
	for _, rel := range []string{
		"dist/agents/writer.txt",
		"dist/agents/writer.meta.yaml",
		"dist/teams/team-docs.txt",
		"dist/packs/X/agents/illustrator.txt",
		"dist/builds.log",
	} {
		if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
			t.Fatalf("missing %s: %v", rel, err)
		}
	}
	if !strings.Contains(out, "4 built") {
		t.Fatalf("unexpected summary:\n%s", out)
	}

	out, err = executeCommand(t, "--root", root, "build", "--only", "agent#writer")
	if err != nil {
		t.Fatalf("rebuild: %v\n%s", err, out)
	}
	if !strings.Contains(out, "0 built, 1 unchanged") {
		t.Fatalf("expected writer to be unchanged:\n%s", out)
	}
}

func TestBuildCommandHonoursEnvironment(t *testing.T) {
	root := sourceTree(t, nil)
	t.Setenv("AGENTPACK_OUTPUT_DIR", "bundles")
	if out, err := executeCommand(t, "--root", root, "build", "--agent", "writer"); err != nil {
		t.Fatalf("build: %v\n%s", err, out)
	}
	if _, err := os.Stat(filepath.Join(root, "bundles", "agents", "writer.txt")); err != nil {
		t.Fatalf("environment output dir ignored: %v", err)
	}
	if out, err := executeCommand(t, "--root", root, "build", "--agent", "writer", "--out", "flagged"); err != nil {
		t.Fatalf("build: %v\n%s", err, out)
	}
	if _, err := os.Stat(filepath.Join(root, "flagged", "agents", "writer.txt")); err != nil {
		t.Fatalf("--out should win over the environment: %v", err)
	}
}

func TestValidateCommand(t *testing.T) {
	root := sourceTree(t, nil)
	if out, err := executeCommand(t, "--root", root, "validate"); err != nil {
		t.Fatalf("validate clean tree: %v\n%s", err, out)
	}
	if _, err := os.Stat(filepath.Join(root, "dist")); err == nil {
		t.Fatalf("validate must not write bundles")
	}

	rogue := sourceTree(t, map[string]string{
		"core/agents/rogue.md": testutil.AgentDoc("rogue", map[string][]string{"data": {"bmad-kb"}}),
	})
	out, err := executeCommand(t, "--root", rogue, "validate")
	if !apperrors.Is(err, apperrors.ErrSecurityInvariant) {
		t.Fatalf("expected security violation, got %v\n%s", err, out)
	}
	if !strings.Contains(out, "violation:") {
		t.Fatalf("violation not reported:\n%s", out)
	}

	missing := sourceTree(t, map[string]string{
		"core/agent-teams/team-docs.yaml": testutil.TeamDoc("Docs", []string{"writer", "ghost"}),
	})
	if _, err := executeCommand(t, "--root", missing, "validate"); err == nil {
		t.Fatalf("validate must fail on a missing team member")
	}

	broken := sourceTree(t, map[string]string{
		"core/agents/x.md": "# x\n\nno configuration here\n",
	})
	out, err = executeCommand(t, "--root", broken, "validate")
	if !apperrors.Is(err, apperrors.ErrMalformedDefinition) {
		t.Fatalf("expected a malformed definition error, got %v\n%s", err, out)
	}
	for _, want := range []string{"malformed: agent x", "agent#writer", "team#team-docs", "agent#x", "4 built", "1 failed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDepsCommand(t *testing.T) {
	root := sourceTree(t, nil)
	out, err := executeCommand(t, "--root", root, "deps", "team", "team-docs")
	if err != nil {
		t.Fatalf("deps: %v\n%s", err, out)
	}
	var got depsOutput
	if err := yaml.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not yaml: %v\n%s", err, out)
	}
	if got.Target != "team#team-docs" || strings.Join(got.Agents, ",") != "bmad-orchestrator,writer" {
		t.Fatalf("unexpected deps %+v", got)
	}
	var refs []string
	for _, r := range got.Resources {
		refs = append(refs, r.Ref)
	}
	if strings.Join(refs, ",") != "data#bmad-kb,task#draft" {
		t.Fatalf("resources = %v", refs)
	}
	if _, err := executeCommand(t, "--root", root, "deps", "widget", "x"); err == nil {
		t.Fatalf("expected an error for an unknown kind")
	}
}

func TestInstallCommand(t *testing.T) {
	root := sourceTree(t, nil)
	dest := t.TempDir()
	if _, err := executeCommand(t, "--root", root, "install", dest); err == nil {
		t.Fatalf("install without a selection must fail")
	}
	out, err := executeCommand(t, "--root", root, "install", dest, "--agent", "writer")
	if err != nil {
		t.Fatalf("install: %v\n%s", err, out)
	}
	data, err := os.ReadFile(filepath.Join(dest, ".bmad-core", "tasks", "draft.md"))
	if err != nil {
		t.Fatalf("read task: %v", err)
	}
	if string(data) != "see .bmad-core/tasks/draft.md" {
		t.Fatalf("unexpected task content %q", data)
	}
	manifest, err := install.ReadManifest(afero.NewOsFs(), dest)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if manifest.Version != Version || len(manifest.Files) != 2 {
		t.Fatalf("unexpected manifest %+v", manifest)
	}
}

func TestInitCommand(t *testing.T) {
	root := t.TempDir()
	out, err := executeCommand(t, "--root", root, "init")
	if err != nil {
		t.Fatalf("init: %v\n%s", err, out)
	}
	for _, rel := range []string{"agentpack.yaml", "core/agents", "core/agent-teams", "common", "packs"} {
		if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
			t.Fatalf("missing %s: %v", rel, err)
		}
	}
	if _, err := executeCommand(t, "--root", root, "init"); err == nil {
		t.Fatalf("second init without --force must fail")
	}
	if _, err := executeCommand(t, "--root", root, "init", "--force"); err != nil {
		t.Fatalf("init --force: %v", err)
	}
	if out, err := executeCommand(t, "--root", root, "validate"); err != nil {
		t.Fatalf("a fresh tree should validate: %v\n%s", err, out)
	}
}
