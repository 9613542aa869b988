package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONToDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := New(dir, "debug")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.WithTarget("agent#pm").WithPack("X").Info("bundle written", "sections", 4)
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("decode entry %q: %v", data, err)
	}
	if entry["target"] != "agent#pm" || entry["pack"] != "X" || entry["msg"] != "bundle written" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.With("k", "v").Error("ignored")
	if err := logger.Close(); err != nil {
		t.Fatalf("close nil logger: %v", err)
	}
}

func TestValidLevel(t *testing.T) {
	for _, level := range []string{"debug", "INFO", " warn ", "Error"} {
		if !ValidLevel(level) {
			t.Fatalf("%q should be valid", level)
		}
	}
	if ValidLevel("verbose") {
		t.Fatalf("verbose should be invalid")
	}
}
