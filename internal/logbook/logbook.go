package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Level represents the outcome recorded for a build target.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// FileName is the journal kept next to the structured log.
const FileName = "builds.log"

// Logbook is an append-only, human-readable journal of build outcomes: one
// line per target per run.
type Logbook struct {
	fs   afero.Fs
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// New creates a logbook at path on fsys, creating parent directories.
func New(fsys afero.Fs, path string) (*Logbook, error) {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: ensure dir: %w", err)
	}
	return &Logbook{fs: fsys, path: path, now: time.Now}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf("%s %-5s %s\n",
		l.now().UTC().Format(time.RFC3339),
		string(level),
		strings.TrimSpace(message),
	)
	file, err := l.fs.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line)
}

// Record journals the outcome of one build target.
func (l *Logbook) Record(buildID, target, status, detail string) {
	level := LevelInfo
	switch status {
	case "failed":
		level = LevelError
	case "warned", "skipped":
		level = LevelWarn
	}
	msg := fmt.Sprintf("[%s] %s %s", buildID, target, status)
	if detail = strings.TrimSpace(detail); detail != "" {
		msg += ": " + detail
	}
	l.Append(level, msg)
}

// Tail returns up to maxLines of the most recent entries and the total
// number of entries.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := l.fs.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	total := len(lines)
	if total > maxLines {
		lines = lines[total-maxLines:]
	}
	return lines, total
}
