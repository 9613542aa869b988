// Package testutil builds in-memory source trees for agentpack tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/kingrea/agentpack/internal/tier"
)

// Root is where MemTree mounts the source tree.
const Root = "/src"

// MemTree writes files (slash paths relative to Root) to a fresh in-memory
// filesystem and returns a tree rooted at Root.
func MemTree(t *testing.T, files map[string]string) (*tier.FSTree, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	WriteFiles(t, fsys, Root, files)
	return tier.NewFSTree(fsys, Root), fsys
}

// WriteFiles writes files below root on fsys.
func WriteFiles(t *testing.T, fsys afero.Fs, root string, files map[string]string) {
	t.Helper()
	for p, content := range files {
		full := filepath.Join(root, filepath.FromSlash(p))
		if err := fsys.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", p, err)
		}
		if err := afero.WriteFile(fsys, full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
}

// AgentDoc renders a minimal agent document. deps maps a dependency key such
// as "tasks" to ids.
func AgentDoc(id string, deps map[string][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\nRead the configuration below.\n\n```yaml\n", id)
	b.WriteString("IDE-FILE-RESOLUTION:\n  - Dependencies map to {root}/{type}/{name}\n")
	b.WriteString("activation-instructions:\n  - Follow IDE-FILE-RESOLUTION when loading files\n  - Greet the user\n")
	fmt.Fprintf(&b, "agent:\n  name: %s\n  id: %s\n  title: %s agent\n", strings.ToUpper(id[:1])+id[1:], id, id)
	b.WriteString("commands:\n  - help: Show commands\n")
	if len(deps) > 0 {
		b.WriteString("dependencies:\n")
		keys := make([]string, 0, len(deps))
		for k := range deps {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s:\n", k)
			for _, v := range deps[k] {
				fmt.Fprintf(&b, "    - %s\n", v)
			}
		}
	}
	b.WriteString("```\n")
	return b.String()
}

// TeamDoc renders a team document.
func TeamDoc(name string, members []string, workflows ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "bundle:\n  name: %s\n  icon: 🧪\n  description: %s team\nagents:\n", name, name)
	for _, m := range members {
		fmt.Fprintf(&b, "  - %q\n", m)
	}
	if len(workflows) > 0 {
		b.WriteString("workflows:\n")
		for _, w := range workflows {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}
	return b.String()
}
