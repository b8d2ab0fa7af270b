package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrClosed is returned by Watch after Close has been called. A closed
// watcher is never silently reinitialized.
var ErrClosed = errors.New("watch: watcher is closed")

// RegistrationError reports a Watch call that named one or more paths
// absent at registration time. Nothing from the failed call is registered.
type RegistrationError struct {
	Missing []string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("watch: paths do not exist: %s", strings.Join(e.Missing, ", "))
}

// registration is one Watch call: the paths it covers and the callback to
// invoke when any of them changes.
type registration struct {
	callback func()
	paths    []string
}

// directoryWatch is the bookkeeping for one OS-level directory watch.
// names maps relevant entry names to the registrations interested in them;
// all holds registrations for which every entry in the directory is
// relevant (the watched path is the directory itself).
type directoryWatch struct {
	names map[string]map[*registration]struct{}
	all   map[*registration]struct{}
}

func newDirectoryWatch() *directoryWatch {
	return &directoryWatch{
		names: make(map[string]map[*registration]struct{}),
		all:   make(map[*registration]struct{}),
	}
}

// FileWatcher notifies callers, within a bounded debounced latency, that
// watched locations changed, even when the change arrives through layered
// symlink indirection or whole directory-entry replacement.
//
// Watch and Close are safe to call concurrently from any goroutine.
type FileWatcher struct {
	quiet  time.Duration
	source EventSource
	trig   *trigger

	mu      sync.Mutex
	watches map[string]*directoryWatch
	closed  bool

	done     chan struct{}
	loopDone chan struct{}
}

// Option configures a FileWatcher.
type Option func(*FileWatcher)

// WithEventSource injects a specific notification backend. Without it the
// watcher uses fsnotify, falling back to polling if fsnotify cannot
// initialize.
func WithEventSource(src EventSource) Option {
	return func(w *FileWatcher) {
		w.source = src
	}
}

// New creates a FileWatcher with the given quiet period and starts its
// background event loop. A non-positive quiet period selects
// DefaultQuietPeriod.
func New(quietPeriod time.Duration, opts ...Option) (*FileWatcher, error) {
	if quietPeriod <= 0 {
		quietPeriod = DefaultQuietPeriod
	}

	w := &FileWatcher{
		quiet:    quietPeriod,
		watches:  make(map[string]*directoryWatch),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.source == nil {
		src, err := newNotifySource()
		if err != nil {
			slog.Warn("fsnotify unavailable, falling back to polling",
				slog.String("error", err.Error()))
			w.source = NewPollSource(DefaultPollInterval)
		} else {
			w.source = src
		}
	}

	w.trig = newTrigger(w.quiet)
	go w.run()
	return w, nil
}

// stagedWatch accumulates the relevant names for one directory while a
// Watch call is being validated, before anything is committed.
type stagedWatch struct {
	names map[string]struct{}
	all   bool
}

// Watch registers paths for change notification and arranges for callback
// to run, debounced, when any of them changes. All paths must exist: if any
// is missing the call fails with a *RegistrationError and installs nothing.
// Watch may be called repeatedly; directory watches are shared between
// calls and re-registering an already-watched location never duplicates OS
// resources.
func (w *FileWatcher) Watch(paths []string, callback func()) error {
	if callback == nil {
		return errors.New("watch: callback must not be nil")
	}
	if len(paths) == 0 {
		return nil
	}

	// Existence check first so the failure enumerates every missing path
	// instead of stopping at the first.
	var missing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &RegistrationError{Missing: missing}
	}

	reg := &registration{callback: callback, paths: slices.Clone(paths)}
	staged := make(map[string]*stagedWatch)
	for _, p := range paths {
		chain, err := resolveChain(p)
		if err != nil {
			return err
		}
		for _, hop := range chain.Hops {
			if hop.IsLink {
				stageName(staged, filepath.Dir(hop.Path), filepath.Base(hop.Path))
			}
		}
		if chain.IsDir {
			stageAll(staged, chain.Terminal)
		} else {
			stageName(staged, filepath.Dir(chain.Terminal), filepath.Base(chain.Terminal))
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	// Register new directories with the backend before touching the
	// relevance maps, rolling back on failure so the call is atomic.
	var added []string
	for dir := range staged {
		if _, ok := w.watches[dir]; ok {
			continue
		}
		if err := w.source.AddDirectory(dir); err != nil {
			for _, d := range added {
				_ = w.source.RemoveDirectory(d)
			}
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		added = append(added, dir)
	}

	for dir, sw := range staged {
		dw, ok := w.watches[dir]
		if !ok {
			dw = newDirectoryWatch()
			w.watches[dir] = dw
		}
		if sw.all {
			dw.all[reg] = struct{}{}
		}
		for name := range sw.names {
			set, ok := dw.names[name]
			if !ok {
				set = make(map[*registration]struct{})
				dw.names[name] = set
			}
			set[reg] = struct{}{}
		}
	}
	return nil
}

func stageName(staged map[string]*stagedWatch, dir, name string) {
	sw := staged[dir]
	if sw == nil {
		sw = &stagedWatch{names: make(map[string]struct{})}
		staged[dir] = sw
	}
	sw.names[name] = struct{}{}
}

func stageAll(staged map[string]*stagedWatch, dir string) {
	sw := staged[dir]
	if sw == nil {
		sw = &stagedWatch{names: make(map[string]struct{})}
		staged[dir] = sw
	}
	sw.all = true
}

// run consumes raw backend events until the watcher closes. Backend errors
// are contained here: a directory deleted out from under its watch must not
// stop watching of unaffected directories.
func (w *FileWatcher) run() {
	defer close(w.loopDone)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.source.Events():
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.source.Errors():
			if !ok {
				return
			}
			slog.Warn("watch source error",
				slog.String("error", err.Error()))
		}
	}
}

// handle filters one raw event down to the registrations it affects and
// marks them dirty. Events for entries nobody registered are discarded,
// which is what keeps unrelated files in a shared directory from
// triggering reloads.
func (w *FileWatcher) handle(ev Event) {
	w.mu.Lock()
	var affected map[*registration]struct{}
	if dw, ok := w.watches[ev.Dir]; ok {
		for r := range dw.all {
			if affected == nil {
				affected = make(map[*registration]struct{})
			}
			affected[r] = struct{}{}
		}
		for r := range dw.names[ev.Name] {
			if affected == nil {
				affected = make(map[*registration]struct{})
			}
			affected[r] = struct{}{}
		}
	}
	w.mu.Unlock()

	if len(affected) == 0 {
		return
	}
	regs := make([]*registration, 0, len(affected))
	for r := range affected {
		regs = append(regs, r)
	}
	w.trig.fire(regs)
}

// Close stops the background event loop, cancels any pending debounce
// timer and releases all directory watches. It is idempotent and safe to
// call concurrently; calls after the first are no-ops.
func (w *FileWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	w.mu.Unlock()

	w.trig.stop()
	err := w.source.Close()
	<-w.loopDone
	return err
}
