package logbook

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	book, err := New(afero.NewMemMapFs(), "/out/.agentpack/logs/builds.log")
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Append(LevelInfo, "entry-"+string(rune('0'+i)))
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestRecordLevels(t *testing.T) {
	book, err := New(afero.NewMemMapFs(), "/logs/builds.log")
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	book.Record("b1", "agent#pm", "built", "")
	book.Record("b1", "team#all", "failed", "not found [agent=ghost]")
	book.Record("b1", "team#x", "warned", "1 skipped")
	lines, _ := book.Tail(10)
	want := []string{
		"2026-01-02T03:04:05Z INFO  [b1] agent#pm built",
		"2026-01-02T03:04:05Z ERROR [b1] team#all failed: not found [agent=ghost]",
		"2026-01-02T03:04:05Z WARN  [b1] team#x warned: 1 skipped",
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestNilLogbookIsSafe(t *testing.T) {
	var book *Logbook
	book.Record("b", "agent#pm", "built", "")
	if lines, total := book.Tail(1); lines != nil || total != 0 {
		t.Fatalf("nil logbook should be empty")
	}
}
