package file

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"ggpostgres/internal/desired"
)

const (
	defaultDebounce = 250 * time.Millisecond
	eventSource     = "file"
)

// Watcher turns filesystem changes to watched files and directories into
// change notifications. Parent directories are watched so that editors and
// writers that replace files by rename are still observed.
type Watcher struct {
	files    map[string]struct{}
	dirs     map[string]struct{}
	debounce time.Duration
	log      *slog.Logger
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce coalesces bursts of filesystem events into one notification.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithWatchLogger sets the watcher logger.
func WithWatchLogger(l *slog.Logger) WatchOption {
	return func(w *Watcher) { w.log = l }
}

// WatchFile adds a single file to watch.
func WatchFile(path string) WatchOption {
	return func(w *Watcher) { w.files[filepath.Clean(path)] = struct{}{} }
}

// WatchDir adds every entry of a directory to watch.
func WatchDir(path string) WatchOption {
	return func(w *Watcher) { w.dirs[filepath.Clean(path)] = struct{}{} }
}

func NewWatcher(opts ...WatchOption) *Watcher {
	w := &Watcher{
		files:    make(map[string]struct{}),
		dirs:     make(map[string]struct{}),
		debounce: defaultDebounce,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With("component", "file-watch")
	return w
}

// Run delivers notifications on out until ctx is done.
func (w *Watcher) Run(ctx context.Context, out chan<- desired.ChangeEvent) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	for _, dir := range w.watchRoots() {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.log.Debug("Watching directory.", "dir", dir)
	}

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending desired.ChangeEvent
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.log.Debug("File changed.", "path", ev.Name, "op", ev.Op.String())
			pending = desired.ChangeEvent{Source: eventSource, KeyPath: []string{ev.Name}}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("File watcher error.", "err", err)
		case <-fire:
			fire = nil
			select {
			case out <- pending:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (w *Watcher) watchRoots() []string {
	seen := make(map[string]struct{})
	var roots []string
	add := func(dir string) {
		if _, ok := seen[dir]; ok {
			return
		}
		seen[dir] = struct{}{}
		roots = append(roots, dir)
	}
	for f := range w.files {
		add(filepath.Dir(f))
	}
	for d := range w.dirs {
		add(d)
	}
	return roots
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Clean(ev.Name)
	if _, ok := w.files[name]; ok {
		return true
	}
	_, ok := w.dirs[filepath.Dir(name)]
	return ok
}
