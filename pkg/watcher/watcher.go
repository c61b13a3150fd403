// pkg/watcher/watcher.go

// Package watcher reports changes below a set of directories in debounced
// batches. `prov watch` uses it to reload the inventory and resync when the
// item store or the template overrides are edited behind its back.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the tree must stay quiet before a batch is
// handed over.
const DefaultDebounce = 500 * time.Millisecond

// Handler receives the sorted, de-duplicated paths changed in one batch. An
// error is logged; watching continues.
type Handler func(ctx context.Context, paths []string) error

// Watcher watches directory trees.
type Watcher struct {
	dirs     []string
	debounce time.Duration
	handler  Handler
	logger   *zap.Logger
}

// New returns a watcher over dirs. Empty entries are skipped.
func New(logger *zap.Logger, debounce time.Duration, handler Handler, dirs ...string) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	var keep []string
	for _, d := range dirs {
		if d != "" {
			keep = append(keep, d)
		}
	}
	return &Watcher{dirs: keep, debounce: debounce, handler: handler, logger: logger.Named("watcher")}
}

// ignored reports names the tools write transiently: atomic-write temp
// files, editor swap and backup files.
func ignored(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp")
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// vanished between listing and visiting
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && ignored(path) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

// Run watches until ctx is done. Directories that do not exist yet are
// created so that items saved later are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return cerr.Wrap(err, "create file watcher")
	}
	defer func() { _ = fw.Close() }()

	for _, dir := range w.dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return cerr.Wrapf(err, "create watched directory %s", dir)
		}
		if err := w.addTree(fw, dir); err != nil {
			return cerr.Wrapf(err, "watch %s", dir)
		}
	}
	w.logger.Info("Watching for changes",
		zap.Strings("dirs", w.dirs),
		zap.Duration("debounce", w.debounce))

	pending := map[string]bool{}
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ignored(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, ev.Name); err != nil {
						w.logger.Warn("Cannot watch new directory", zap.String("path", ev.Name), zap.Error(err))
					}
				}
			}
			pending[ev.Name] = true
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", zap.Error(err))

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			pending = map[string]bool{}

			start := time.Now()
			err := w.handler(ctx, paths)
			w.logger.Info("Changes handled",
				zap.Int("paths", len(paths)),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err))
		}
	}
}
