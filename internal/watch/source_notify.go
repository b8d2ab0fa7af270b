package watch

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// notifySource adapts fsnotify to the EventSource interface. fsnotify
// reports full paths; events are split into (dir, name) so the relevance
// filtering upstream stays purely name-based.
type notifySource struct {
	fw     *fsnotify.Watcher
	events chan Event
	errors chan error
	done   chan struct{}
	once   sync.Once
}

func newNotifySource() (*notifySource, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	s := &notifySource{
		fw:     fw,
		events: make(chan Event, 64),
		errors: make(chan error, 8),
		done:   make(chan struct{}),
	}
	go s.translate()
	return s, nil
}

func (s *notifySource) AddDirectory(dir string) error {
	// fsnotify deduplicates internally; adding a watched directory again
	// is a no-op and consumes no additional OS resources.
	return s.fw.Add(dir)
}

func (s *notifySource) RemoveDirectory(dir string) error {
	return s.fw.Remove(dir)
}

func (s *notifySource) Events() <-chan Event {
	return s.events
}

func (s *notifySource) Errors() <-chan error {
	return s.errors
}

func (s *notifySource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.fw.Close()
	})
	return err
}

// translate forwards fsnotify events until the source closes. Sends select
// on done so a consumer that has already shut down cannot strand this
// goroutine.
func (s *notifySource) translate() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.fw.Events:
			if !ok {
				return
			}
			e, relevant := toEvent(ev)
			if !relevant {
				continue
			}
			select {
			case s.events <- e:
			case <-s.done:
				return
			}
		case err, ok := <-s.fw.Errors:
			if !ok {
				return
			}
			select {
			case s.errors <- err:
			case <-s.done:
				return
			}
		}
	}
}

// toEvent maps an fsnotify event to a directory-entry event. Chmod-only
// events are dropped; a rename away from a name is a delete of that entry.
func toEvent(ev fsnotify.Event) (Event, bool) {
	var op Op
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		return Event{}, false
	}
	return Event{
		Dir:  filepath.Dir(ev.Name),
		Name: filepath.Base(ev.Name),
		Op:   op,
	}, true
}
