// Package watch turns file system events in the sandbox into save and
// removal signals for edit sessions.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the bursts of events a single editor save emits.
const DefaultDebounce = 150 * time.Millisecond

// Handler receives scheme-relative paths ("/slug.mdx").
type Handler interface {
	HandleSave(ctx context.Context, path string) error
	HandleDeleted(path string)
}

// Watcher watches the sandbox root.
type Watcher struct {
	root     string
	ext      string
	debounce time.Duration
	handler  Handler
	logger   *slog.Logger
	ignore   func(name string) bool
}

// New creates a watcher for documents with extension ext under root.
// ignore, if non-nil, filters out file names such as in-flight temp files.
func New(root, ext string, h Handler, logger *slog.Logger, ignore func(string) bool) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		root:     root,
		ext:      "." + strings.TrimPrefix(ext, "."),
		debounce: DefaultDebounce,
		handler:  h,
		logger:   logger,
		ignore:   ignore,
	}
}

// SetDebounce changes the debounce window.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

func (w *Watcher) rel(abs string) (string, bool) {
	r, err := filepath.Rel(w.root, abs)
	if err != nil || r == "." || strings.HasPrefix(r, "..") {
		return "", false
	}
	return "/" + filepath.ToSlash(r), true
}

// Run processes events until ctx is cancelled. ready, if non-nil, is
// closed once the root is being watched.
func (w *Watcher) Run(ctx context.Context, ready chan<- struct{}) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("watcher: started", slog.String("root", w.root))
	if ready != nil {
		close(ready)
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]*time.Timer)
		wg      sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for path, t := range pending {
			if t.Stop() {
				delete(pending, path)
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
	}()

	// settle runs once a path has been quiet for the debounce window. Editors
	// that keep a backup move the original aside before writing the new
	// file, so a document only counts as deleted if it is still gone then.
	settle := func(path, abs string) {
		if ctx.Err() != nil {
			return
		}
		if _, err := os.Stat(abs); err != nil {
			w.logger.Debug("watcher: document removed", slog.String("path", path))
			w.handler.HandleDeleted(path)
			return
		}
		if err := w.handler.HandleSave(ctx, path); err != nil {
			w.logger.Warn("watcher: save failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}

	schedule := func(path, abs string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := pending[path]; ok && t.Stop() {
			t.Reset(w.debounce)
			return
		}
		wg.Add(1)
		var t *time.Timer
		t = time.AfterFunc(w.debounce, func() {
			defer wg.Done()
			mu.Lock()
			if pending[path] == t {
				delete(pending, path)
			}
			mu.Unlock()
			settle(path, abs)
		})
		pending[path] = t
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addDirsRecursive(fw, ev.Name); err != nil {
						w.logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", err.Error()))
					}
					continue
				}
			}
			base := filepath.Base(ev.Name)
			if !strings.HasSuffix(base, w.ext) || (w.ignore != nil && w.ignore(base)) {
				continue
			}
			path, ok := w.rel(ev.Name)
			if !ok {
				continue
			}

			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule(path, ev.Name)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
