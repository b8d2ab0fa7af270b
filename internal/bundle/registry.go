package bundle

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/certwatch/certwatch/internal/pemfile"
	"github.com/certwatch/certwatch/internal/watch"
)

// ErrBundleUnknown is returned when a named bundle was never registered.
var ErrBundleUnknown = errors.New("bundle: unknown bundle")

// NotWatchableError reports a bundle location that reload-on-update cannot
// watch. Surfaced at registration time, before any watch is attempted.
type NotWatchableError struct {
	Bundle   string
	Location string
	Reason   string
}

func (e *NotWatchableError) Error() string {
	return fmt.Sprintf("bundle %q: location %q cannot be watched for updates (%s): use a local file path or set reload_on_update to false",
		e.Bundle, e.Location, e.Reason)
}

// Registry owns named TLS bundles and keeps them current as their source
// files change. Safe for concurrent use.
type Registry struct {
	quiet  time.Duration
	loader *pemfile.Loader

	mu      sync.RWMutex
	bundles map[string]*Bundle
	sources map[string]Source
	watcher *watch.FileWatcher
	closed  bool

	// newWatcher is swappable for tests.
	newWatcher func(quiet time.Duration) (*watch.FileWatcher, error)
}

// NewRegistry creates an empty registry. quietPeriod is the default
// debounce window applied to bundles that do not set their own; a
// non-positive value selects watch.DefaultQuietPeriod. The file watcher is
// created lazily, on the first reload-enabled registration.
func NewRegistry(quietPeriod time.Duration) *Registry {
	return &Registry{
		quiet:   quietPeriod,
		loader:  pemfile.NewLoader(),
		bundles: make(map[string]*Bundle),
		sources: make(map[string]Source),
		newWatcher: func(quiet time.Duration) (*watch.FileWatcher, error) {
			return watch.New(quiet)
		},
	}
}

// Register loads the bundle described by src and, when ReloadOnUpdate is
// set, starts watching its files. Registration is fail-fast: an unloadable
// bundle or an unwatchable location is reported immediately and nothing is
// installed.
func (r *Registry) Register(src Source) error {
	if src.Name == "" {
		return errors.New("bundle: name must not be empty")
	}
	if src.Certificate == "" || src.PrivateKey == "" {
		return fmt.Errorf("bundle %q: certificate and private key paths are required", src.Name)
	}

	if src.ReloadOnUpdate {
		for _, loc := range src.paths() {
			if err := checkWatchable(src.Name, loc); err != nil {
				return err
			}
		}
	}

	b, err := load(r.loader, src)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.New("bundle: registry is closed")
	}
	if _, dup := r.sources[src.Name]; dup {
		r.mu.Unlock()
		return fmt.Errorf("bundle %q: already registered", src.Name)
	}
	if src.ReloadOnUpdate && r.watcher == nil {
		quiet := src.QuietPeriod
		if quiet <= 0 {
			quiet = r.quiet
		}
		w, err := r.newWatcher(quiet)
		if err != nil {
			r.mu.Unlock()
			return fmt.Errorf("bundle %q: start watcher: %w", src.Name, err)
		}
		r.watcher = w
	}
	watcher := r.watcher
	r.sources[src.Name] = src
	r.bundles[src.Name] = b
	r.mu.Unlock()

	if src.ReloadOnUpdate {
		name := src.Name
		if err := watcher.Watch(src.paths(), func() { r.reload(name) }); err != nil {
			r.mu.Lock()
			delete(r.sources, name)
			delete(r.bundles, name)
			r.mu.Unlock()
			return fmt.Errorf("bundle %q: %w", name, err)
		}
	}

	slog.Info("bundle registered",
		slog.String("bundle", src.Name),
		slog.Bool("reload_on_update", src.ReloadOnUpdate))
	return nil
}

// reload rebuilds one bundle after its files changed. A failed rebuild
// keeps the previously active materials; the next change retries.
func (r *Registry) reload(name string) {
	r.mu.RLock()
	src, ok := r.sources[name]
	r.mu.RUnlock()
	if !ok {
		return
	}

	b, err := load(r.loader, src)
	if err != nil {
		slog.Error("bundle reload failed, keeping previous materials",
			slog.String("bundle", name),
			slog.String("error", err.Error()))
		return
	}

	r.mu.Lock()
	r.bundles[name] = b
	r.mu.Unlock()

	slog.Info("bundle reloaded",
		slog.String("bundle", name),
		slog.String("subject", b.Certificate.Leaf.Subject.String()),
		slog.Time("not_after", b.Certificate.Leaf.NotAfter))
}

// Bundle returns the current snapshot for name.
func (r *Registry) Bundle(name string) (*Bundle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bundles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBundleUnknown, name)
	}
	return b, nil
}

// Names returns the registered bundle names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.bundles))
	for name := range r.bundles {
		names = append(names, name)
	}
	return names
}

// TLSConfig returns a server TLS configuration backed by the named bundle.
// Certificates are resolved per handshake, so connections accepted after a
// reload present the republished materials without a listener restart.
func (r *Registry) TLSConfig(name string) (*tls.Config, error) {
	if _, err := r.Bundle(name); err != nil {
		return nil, err
	}
	return &tls.Config{
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			b, err := r.Bundle(name)
			if err != nil {
				return nil, err
			}
			return &b.Certificate, nil
		},
	}, nil
}

// Close stops watching. Registered bundles remain readable. Idempotent.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	watcher := r.watcher
	r.mu.Unlock()

	if watcher != nil {
		return watcher.Close()
	}
	return nil
}

// checkWatchable verifies that loc is a plain filesystem path that exists.
// URL-style locations cannot be watched; the error says so up front rather
// than letting the first watch attempt fail obscurely.
func checkWatchable(bundleName, loc string) error {
	if strings.Contains(loc, "://") {
		return &NotWatchableError{Bundle: bundleName, Location: loc, Reason: "not a filesystem path"}
	}
	if _, err := os.Stat(loc); err != nil {
		return &NotWatchableError{Bundle: bundleName, Location: loc, Reason: err.Error()}
	}
	return nil
}
