package workspace

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// Watcher feeds file system changes under the workspace root into a
// Scheduler. Directories excluded by the workspace filter are not watched,
// and events for excluded or non-source files are dropped.
type Watcher struct {
	ws        *Workspace
	scheduler *Scheduler
	watcher   *fsnotify.Watcher
	log       *slog.Logger

	stopOnce sync.Once
	done     chan struct{}
}

// NewWatcher creates a watcher. Call Start to begin watching.
func (w *Workspace) NewWatcher(s *Scheduler) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		ws:        w,
		scheduler: s,
		watcher:   fw,
		log:       w.log,
		done:      make(chan struct{}),
	}, nil
}

// Start adds the root and its subdirectories to the watch list and starts
// the event loop. The loop exits when ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.ws.root); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.ws.Rel(p); ok && w.ws.filter.skipDir(rel) {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", slog.String("err", err.Error()))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, ok := w.ws.Rel(ev.Name)
	if !ok {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.ws.filter.skipDir(rel) {
				return
			}
			if err := w.addRecursive(ev.Name); err != nil {
				w.log.Warn("watch new directory", slog.String("dir", rel), slog.String("err", err.Error()))
			}
			// Files may land in the directory before the watch is added.
			files, _ := discoverFrom(w.ws.root, ev.Name, w.ws.filter)
			w.scheduler.Request(files...)
			return
		}
	}

	if !graph.IsSourcePath(rel) {
		// A removed or moved-away directory takes its indexed files along.
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			w.dropDir(rel, ev.Name)
		}
		return
	}
	if w.ws.filter.skipFile(rel) {
		return
	}
	w.log.Debug("file changed", slog.String("file", rel), slog.String("op", ev.Op.String()))
	w.scheduler.Request(rel)
}

func (w *Watcher) dropDir(rel, name string) {
	files, err := w.ws.indexedUnder(context.Background(), rel)
	if err != nil {
		w.log.Warn("list indexed files", slog.String("dir", rel), slog.String("err", err.Error()))
		return
	}
	if len(files) == 0 {
		return
	}
	// A directory moved out of the root keeps its inotify watch.
	_ = w.watcher.Remove(name)
	w.log.Debug("directory gone", slog.String("dir", rel), slog.Int("files", len(files)))
	w.scheduler.Request(files...)
}
