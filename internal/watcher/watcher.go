package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/blackwell-systems/simsnap/internal/paths"
)

// Op is the kind of a filesystem change.
type Op string

const (
	OpCreate Op = "create"
	OpRemove Op = "remove"
	OpRename Op = "rename"
	OpWrite  Op = "write"
)

// Change is one observed filesystem event.
type Change struct {
	Path     string
	DeviceID string // "" for events on the root itself
	Op       Op
}

// Handler receives a debounced batch of changes.
type Handler func(changes []Change)

// DefaultDebounce is the quiet period before a batch is delivered.
const DefaultDebounce = 500 * time.Millisecond

// Watcher observes a device root and its per-device container directories.
type Watcher struct {
	root     string
	fs       *fsnotify.Watcher
	handler  Handler
	debounce time.Duration
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a Watcher for root. handler is called from the watcher's
// goroutine and must not block for long.
func New(root string, handler Handler, opts ...Option) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	w := &Watcher{
		root:     root,
		fs:       fsw,
		handler:  handler,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches the root and every device currently under it.
func (w *Watcher) Start() error {
	if err := w.fs.Add(w.root); err != nil {
		w.fs.Close()
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		w.fs.Close()
		return fmt.Errorf("failed to read %s: %w", w.root, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			w.watchDevice(e.Name())
		}
	}

	w.wg.Add(1)
	go w.run()
	return nil
}

// Stop halts the watcher and delivers any pending changes.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	return w.fs.Close()
}

// Watched returns the directories currently observed.
func (w *Watcher) Watched() []string {
	return w.fs.WatchList()
}

// watchDevice adds the container directories of one device. Directories
// that do not exist yet are picked up by a later event.
func (w *Watcher) watchDevice(deviceID string) {
	dev := paths.DeviceDir(w.root, deviceID)
	for _, dir := range []string{paths.BundleContainers(dev), paths.DataContainers(dev)} {
		if err := w.fs.Add(dir); err != nil {
			w.logger.Debug("not watching", "path", dir, "error", err)
		}
	}
}

func (w *Watcher) run() {
	defer w.wg.Done()

	var pending []Change
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		w.handler(batch)
	}

	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				flush()
				return
			}
			change, ok := w.translate(ev)
			if !ok {
				continue
			}
			if (change.Op == OpCreate || change.Op == OpRename) && change.DeviceID != "" {
				w.watchDevice(change.DeviceID)
			}
			pending = append(pending, change)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				rearm(timer, w.debounce)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				flush()
				return
			}
			w.logger.Warn("watch error", "error", err)

		case <-timerC:
			timer, timerC = nil, nil
			batch := pending
			pending = nil
			if len(batch) > 0 {
				w.handler(batch)
			}

		case <-w.stopCh:
			flush()
			return
		}
	}
}

// rearm restarts t for d. A tick from the previous window that was not
// received yet is discarded, so it cannot end the new window early.
func rearm(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// translate maps an fsnotify event to a Change. Chmod-only events and
// paths outside the root are dropped.
func (w *Watcher) translate(ev fsnotify.Event) (Change, bool) {
	var op Op
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Remove):
		op = OpRemove
	case ev.Has(fsnotify.Rename):
		op = OpRename
	case ev.Has(fsnotify.Write):
		op = OpWrite
	default:
		return Change{}, false
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return Change{}, false
	}
	deviceID, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return Change{Path: ev.Name, DeviceID: deviceID, Op: op}, true
}
