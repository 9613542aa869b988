package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kingrea/agentpack/internal/logging"
)

// DefaultDebounce collapses the burst of events editors emit for one save.
const DefaultDebounce = 200 * time.Millisecond

// WatchOptions configure Watch.
type WatchOptions struct {
	// Dirs are watched recursively.
	Dirs []string
	// Ignore lists directories whose events never trigger a rebuild,
	// typically the output directory.
	Ignore   []string
	Debounce time.Duration
	Selector Selector
	// OnReport receives the outcome of every rebuild.
	OnReport func(*Report, error)
}

// Watch rebuilds the selected targets whenever a file below opts.Dirs
// changes. It blocks until ctx is done.
func (b *Builder) Watch(ctx context.Context, opts WatchOptions) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	ignored := make([]string, 0, len(opts.Ignore))
	for _, dir := range opts.Ignore {
		if abs, err := filepath.Abs(dir); err == nil {
			ignored = append(ignored, abs)
		}
	}
	skip := func(path string) bool {
		abs, err := filepath.Abs(path)
		if err != nil {
			return true
		}
		for _, dir := range ignored {
			if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
				return true
			}
		}
		return strings.HasPrefix(filepath.Base(path), ".")
	}
	for _, dir := range opts.Dirs {
		if err := watchRecursive(watcher, dir, skip); err != nil {
			return err
		}
	}
	log := b.opts.Logger.With("watch", true)
	log.Info("watching for changes", "dirs", strings.Join(opts.Dirs, ","))

	debounce := time.NewTimer(opts.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := map[string]struct{}{}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if skip(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				watchCreated(watcher, event.Name, skip, log)
			}
			pending[event.Name] = struct{}{}
			debounce.Reset(opts.Debounce)

		case <-debounce.C:
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			pending = map[string]struct{}{}
			log.Info("sources changed", "files", len(changed))

			b.Reset()
			targets, err := b.Targets(opts.Selector)
			var report *Report
			if err == nil {
				report, err = b.Run(ctx, targets)
			}
			if err != nil {
				log.Error("rebuild failed", "error", err.Error())
			}
			if opts.OnReport != nil {
				opts.OnReport(report, err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "error", err.Error())
		}
	}
}

// watchCreated adds a directory created after Watch started. A failure leaves
// the directory unwatched and is logged.
func watchCreated(w *fsnotify.Watcher, path string, skip func(string) bool, log *logging.Logger) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := watchRecursive(w, path, skip); err != nil {
		log.Warn("watch failed", "dir", path, "error", err.Error())
	}
}

func watchRecursive(w *fsnotify.Watcher, root string, skip func(string) bool) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && skip(path) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
