package watch

import "time"

// Op represents a directory-entry change type.
type Op int

const (
	// OpCreate indicates a new entry appeared in a watched directory.
	OpCreate Op = iota
	// OpModify indicates an existing entry was written to.
	OpModify
	// OpDelete indicates an entry was removed or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is a raw directory-level change reported by an EventSource.
// Name is the bare entry name within Dir, never a path.
type Event struct {
	Dir  string
	Name string
	Op   Op
}

// EventSource is the platform notification capability a FileWatcher consumes.
// Implementations deliver entry-level events for registered directories.
// Backends are swappable without touching chain or debounce logic.
type EventSource interface {
	// AddDirectory registers dir for change notification.
	// Registering the same directory twice must be a cheap no-op.
	AddDirectory(dir string) error

	// RemoveDirectory releases the watch on dir. Used to roll back a
	// partially registered Watch call.
	RemoveDirectory(dir string) error

	// Events returns the channel of raw directory events.
	Events() <-chan Event

	// Errors returns the channel of non-fatal backend errors.
	Errors() <-chan error

	// Close releases all underlying OS resources.
	Close() error
}

const (
	// DefaultQuietPeriod is the debounce duration applied when the caller
	// passes a non-positive quiet period to New.
	DefaultQuietPeriod = 10 * time.Second

	// DefaultPollInterval is the scan interval of the polling fallback.
	DefaultPollInterval = 2 * time.Second
)
