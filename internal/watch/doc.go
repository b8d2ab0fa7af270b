// Package watch provides directory-granularity filesystem change watching
// for hot-reloading TLS material.
//
// A FileWatcher resolves each requested path through its full symlink chain
// (including symlinked ancestors, as produced by Kubernetes Secret and
// ConfigMap mounts), watches every directory the chain passes through, and
// filters raw OS events down to the filenames that actually matter. Relevant
// events are coalesced by a single quiet-period timer so that a burst of
// changes produces exactly one callback invocation.
//
// The OS notification mechanism is hidden behind the EventSource interface:
//   - Primary: fsnotify (inotify/FSEvents/ReadDirectoryChangesW)
//   - Fallback: snapshot polling for filesystems where fsnotify fails
//     (network mounts, some container volumes)
//
// Usage:
//
//	w, err := watch.New(10 * time.Second)
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	err = w.Watch([]string{"/etc/tls/tls.crt", "/etc/tls/tls.key"}, func() {
//	    // Rebuild whatever was derived from the watched files.
//	})
package watch
