package build

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/kingrea/agentpack/internal/artifact"
	"github.com/kingrea/agentpack/internal/logging"
	"github.com/kingrea/agentpack/internal/testutil"
	"github.com/kingrea/agentpack/internal/tier"
)

func TestWatchRebuildsOnChange(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, afero.NewOsFs(), root, map[string]string{
		"core/agents/writer.md": testutil.AgentDoc("writer", map[string][]string{"tasks": {"draft"}}),
		"core/tasks/draft.md":   "first draft",
	})
	b, err := New(Options{
		Tree:      tier.OSTree(root),
		Store:     artifact.NewStore(afero.NewMemMapFs(), "/out"),
		RootLabel: ".bmad-core",
	})
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reports := make(chan *Report, 8)
	done := make(chan error, 1)
	go func() {
		done <- b.Watch(ctx, WatchOptions{
			Dirs:     []string{root},
			Debounce: 20 * time.Millisecond,
			Selector: Selector{Agent: "writer"},
			OnReport: func(r *Report, err error) {
				if err == nil {
					reports <- r
				}
			},
		})
	}()

	// The watcher registers asynchronously, so keep touching the file until a
	// rebuild is observed.
	task := filepath.Join(root, "core", "tasks", "draft.md")
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	var report *Report
	for report == nil {
		select {
		case report = <-reports:
		case <-tick.C:
			if err := os.WriteFile(task, []byte("second draft"), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
		case <-deadline:
			t.Fatalf("no rebuild observed")
		}
	}
	if len(report.Results) != 1 || report.Results[0].Target.ID != "writer" {
		t.Fatalf("unexpected report %+v", report.Results)
	}
	if status := report.Results[0].Status; status != StatusBuilt && status != StatusUnchanged {
		t.Fatalf("unexpected status %s: %v", status, report.Results[0].Err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watch did not stop after cancel")
	}
}

func TestWatchCreatedLogsFailure(t *testing.T) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	w.Close()
	var buf bytes.Buffer
	dir := t.TempDir()
	watchCreated(w, dir, func(string) bool { return false }, logging.NewWriter(&buf, "debug"))
	if !strings.Contains(buf.String(), "watch failed") || !strings.Contains(buf.String(), dir) {
		t.Fatalf("expected the failed watch to be logged, got %q", buf.String())
	}
}
