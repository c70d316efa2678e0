package srv

import (
	"os/exec"
	"sync"
	"time"
)

// RunningProcess is a point-in-time snapshot of one registry entry. Get and
// List return copies, so readers never race with a start or stop in flight.
type RunningProcess struct {
	// Spec is the service definition this process was launched from
	Spec ServiceSpec
	// PID is the OS process ID, 0 until the spawn is confirmed
	PID int
	// StartedAt is when the OS confirmed the process existed
	StartedAt time.Time
	// State is the lifecycle state at snapshot time
	State State
	// Err is the launch or exit error when State is Failed
	Err error
}

// procEntry is the mutable record backing a RunningProcess. Entries are
// owned by the ProcessRegistry and mutated only under its lock.
type procEntry struct {
	spec       ServiceSpec
	pid        int
	startedAt  time.Time
	state      State
	lastErr    error
	executable string

	// cmd is nil for entries reattached from a state file
	cmd *exec.Cmd
	// exited is closed by the exit waiter; nil when reattached
	exited chan struct{}
}

func (e *procEntry) snapshot() RunningProcess {
	return RunningProcess{
		Spec:      e.spec,
		PID:       e.pid,
		StartedAt: e.startedAt,
		State:     e.state,
		Err:       e.lastErr,
	}
}

func (e *procEntry) live() bool {
	return e.state.Live()
}

// ProcessRegistry is the in-memory table of launched processes, keyed by
// service name: the single source of truth for "is X running, and with
// which handle". All methods are safe for concurrent use; a single mutex
// serializes access since status queries may run while a start or stop is
// in flight.
type ProcessRegistry struct {
	mu      sync.RWMutex
	entries map[string]*procEntry
	order   []string
}

// NewProcessRegistry creates an empty registry
func NewProcessRegistry() *ProcessRegistry {
	return &ProcessRegistry{entries: make(map[string]*procEntry)}
}

// record inserts the entry for name. A leftover entry in a terminal state
// (Stopped or Failed) is replaced in place, keeping its listing position;
// a live entry fails the insert with ErrAlreadyRunning so a double start
// can never spawn a second process.
func (r *ProcessRegistry) record(name string, e *procEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[name]; ok {
		if old.live() {
			return ErrAlreadyRunning
		}
		r.entries[name] = e
		return nil
	}
	r.entries[name] = e
	r.order = append(r.order, name)
	return nil
}

// Get returns a snapshot of the entry for name
func (r *ProcessRegistry) Get(name string) (RunningProcess, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return RunningProcess{}, false
	}
	return e.snapshot(), true
}

// List returns snapshots of all entries in insertion order, for
// deterministic listing
func (r *ProcessRegistry) List() []RunningProcess {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RunningProcess, 0, len(r.order))
	for _, name := range r.order {
		if e, ok := r.entries[name]; ok {
			out = append(out, e.snapshot())
		}
	}
	return out
}

// Len returns the number of entries
func (r *ProcessRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Remove deletes the entry for name; it is a no-op if absent
func (r *ProcessRegistry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drop(name)
}

// UpdateState sets the state of the entry for name, reporting whether the
// entry existed
func (r *ProcessRegistry) UpdateState(name string, state State) bool {
	return r.update(name, func(e *procEntry) {
		e.state = state
	})
}

// update runs fn on the entry for name under the write lock
func (r *ProcessRegistry) update(name string, fn func(*procEntry)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return false
	}
	fn(e)
	return true
}

// removeEntry deletes the entry for name only when it is still the given
// one, so an exit waiter never drops an entry a newer start has replaced
func (r *ProcessRegistry) removeEntry(name string, e *procEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.entries[name]; ok && cur == e {
		r.drop(name)
	}
}

// entry returns the live record for name; same-package callers only
func (r *ProcessRegistry) entry(name string) (*procEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// forEach runs fn on every entry, in insertion order, under the write lock
func (r *ProcessRegistry) forEach(fn func(name string, e *procEntry)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		if e, ok := r.entries[name]; ok {
			fn(name, e)
		}
	}
}

// drop removes name from the map and the order slice; callers hold the lock
func (r *ProcessRegistry) drop(name string) {
	if _, ok := r.entries[name]; !ok {
		return
	}
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
