package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"shiftstore/internal/fsutil"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must stay unchanged before it is submitted.
const DefaultSettle = 500 * time.Millisecond

// SubmitFunc hands a settled catalog to the run queue.
type SubmitFunc func(path string) error

// Watcher submits new or rewritten catalogs found in the watched directories.
type Watcher struct {
	watcher *fsnotify.Watcher
	dirs    []string
	exts    map[string]bool
	settle  time.Duration
	submit  SubmitFunc
	log     *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher for dirs. Only files whose extension appears in exts
// are considered; matching is case-insensitive.
func New(dirs, exts []string, settle time.Duration, submit SubmitFunc, log *slog.Logger) (*Watcher, error) {
	if len(dirs) == 0 {
		return nil, errors.New("no directories to watch")
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		extSet[strings.ToLower(e)] = true
	}
	return &Watcher{
		watcher: fw,
		dirs:    dirs,
		exts:    extSet,
		settle:  settle,
		submit:  submit,
		log:     log,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	for _, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.log.Info("watching directory", "dir", dir)
	}

	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("filesystem watcher error", "error", err)
		}
	}
}

func (w *Watcher) matches(path string) bool {
	if fsutil.IsHidden(path) {
		return false
	}
	return w.exts[strings.ToLower(filepath.Ext(path))]
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() { w.fire(path) })
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	if err := w.submit(path); err != nil {
		w.log.Error("failed to submit catalog", "path", path, "error", err)
		return
	}
	w.log.Info("catalog submitted", "path", path, "size", info.Size())
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
