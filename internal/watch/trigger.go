package watch

import (
	"sync"
	"time"
)

// trigger owns the single debounce timer of a FileWatcher and the dispatch
// goroutine that runs callbacks. Registrations marked dirty within one quiet
// period collapse into one invocation each. Callbacks never overlap: a
// trigger arriving while callbacks are running is queued (and coalesced)
// for exactly one further round.
type trigger struct {
	quiet time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending map[*registration]struct{}
	queued  map[*registration]struct{}
	stopped bool

	kick chan struct{}
	done chan struct{}
}

func newTrigger(quiet time.Duration) *trigger {
	t := &trigger{
		quiet:   quiet,
		pending: make(map[*registration]struct{}),
		queued:  make(map[*registration]struct{}),
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go t.dispatch()
	return t
}

// fire marks regs dirty and restarts the quiet-period timer. The callback
// round fires only once the timer elapses with no further fire calls.
func (t *trigger) fire(regs []*registration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	for _, r := range regs {
		t.pending[r] = struct{}{}
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.quiet, t.flush)
}

// flush moves the dirty set to the dispatch queue and wakes the dispatcher.
func (t *trigger) flush() {
	t.mu.Lock()
	if t.stopped || len(t.pending) == 0 {
		t.mu.Unlock()
		return
	}
	for r := range t.pending {
		t.queued[r] = struct{}{}
	}
	t.pending = make(map[*registration]struct{})
	t.mu.Unlock()

	select {
	case t.kick <- struct{}{}:
	default:
	}
}

// dispatch runs queued callbacks one at a time on a dedicated goroutine.
// The inner loop re-checks the queue after each round so a flush that
// landed mid-round is picked up without a second kick.
func (t *trigger) dispatch() {
	for {
		select {
		case <-t.done:
			return
		case <-t.kick:
		}

		for {
			t.mu.Lock()
			regs := make([]*registration, 0, len(t.queued))
			for r := range t.queued {
				regs = append(regs, r)
			}
			t.queued = make(map[*registration]struct{})
			t.mu.Unlock()

			if len(regs) == 0 {
				break
			}
			for _, r := range regs {
				r.callback()
			}
		}
	}
}

// stop cancels the pending timer and terminates the dispatch goroutine.
// Safe to call multiple times.
func (t *trigger) stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()

	close(t.done)
}
