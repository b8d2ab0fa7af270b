package watch

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// entryState is the snapshot of one directory entry between scans.
type entryState struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// PollSource is an EventSource that detects changes by periodically
// re-reading registered directories and diffing against the previous
// snapshot. Used as a fallback when fsnotify is unavailable, and directly
// useful on filesystems that do not deliver change notification (network
// mounts, some container volumes).
type PollSource struct {
	interval time.Duration
	events   chan Event
	errors   chan error
	done     chan struct{}
	once     sync.Once

	mu   sync.Mutex
	dirs map[string]map[string]entryState
}

// NewPollSource creates a polling source scanning at the given interval.
// A non-positive interval selects DefaultPollInterval.
func NewPollSource(interval time.Duration) *PollSource {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	s := &PollSource{
		interval: interval,
		events:   make(chan Event, 64),
		errors:   make(chan error, 8),
		done:     make(chan struct{}),
		dirs:     make(map[string]map[string]entryState),
	}
	go s.loop()
	return s
}

// AddDirectory registers dir and takes its baseline snapshot. Registering
// an already-watched directory is a no-op.
func (s *PollSource) AddDirectory(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dirs[dir]; ok {
		return nil
	}
	snapshot, err := readSnapshot(dir)
	if err != nil {
		return err
	}
	s.dirs[dir] = snapshot
	return nil
}

func (s *PollSource) RemoveDirectory(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dirs, dir)
	return nil
}

func (s *PollSource) Events() <-chan Event {
	return s.events
}

func (s *PollSource) Errors() <-chan error {
	return s.errors
}

func (s *PollSource) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	return nil
}

func (s *PollSource) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.scan()
		}
	}
}

// scan diffs every registered directory against its previous snapshot and
// emits entry-level events. A directory that disappeared reports all of
// its previous entries as deleted and keeps being polled; it may come back
// (mount churn) and watching of other directories is unaffected.
func (s *PollSource) scan() {
	s.mu.Lock()
	dirs := make([]string, 0, len(s.dirs))
	for dir := range s.dirs {
		dirs = append(dirs, dir)
	}
	s.mu.Unlock()

	for _, dir := range dirs {
		current, err := readSnapshot(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				s.emitError(err)
			}
			current = map[string]entryState{}
		}

		s.mu.Lock()
		prev, ok := s.dirs[dir]
		if !ok {
			// Removed concurrently.
			s.mu.Unlock()
			continue
		}
		s.dirs[dir] = current
		s.mu.Unlock()

		for name, state := range current {
			old, existed := prev[name]
			switch {
			case !existed:
				s.emit(Event{Dir: dir, Name: name, Op: OpCreate})
			case old.modTime != state.modTime || old.size != state.size:
				s.emit(Event{Dir: dir, Name: name, Op: OpModify})
			}
		}
		for name := range prev {
			if _, still := current[name]; !still {
				s.emit(Event{Dir: dir, Name: name, Op: OpDelete})
			}
		}
	}
}

func (s *PollSource) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *PollSource) emitError(err error) {
	select {
	case s.errors <- err:
	default:
	}
}

// readSnapshot records name, size and mtime for every entry of dir.
// Entries that vanish mid-read are skipped.
func readSnapshot(dir string) (map[string]entryState, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]entryState, len(entries))
	for _, entry := range entries {
		info, err := os.Lstat(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		snapshot[entry.Name()] = entryState{
			modTime: info.ModTime(),
			size:    info.Size(),
			isDir:   info.IsDir(),
		}
	}
	return snapshot, nil
}
