package srv

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

// Outcome is the per-service result of a batch operation
type Outcome struct {
	// Name is the service the outcome belongs to
	Name string
	// Err is nil on success
	Err error
}

// ServiceStatus pairs a configured spec with its registry entry, if any.
// Proc is nil for services that never started or were stopped, so stopped
// services still appear in listings.
type ServiceStatus struct {
	Spec ServiceSpec
	Proc *RunningProcess
}

// Supervisor owns the mapping from service name to running OS process. It
// resolves each spec's environment, launches children in their own process
// groups, tracks liveness, and performs graceful-then-forceful termination
// on stop. Public operations are safe for concurrent invocation.
type Supervisor struct {
	registry *ProcessRegistry

	specMu sync.RWMutex
	specs  []ServiceSpec
	byName map[string]ServiceSpec

	gracePeriod     time.Duration
	killWait        time.Duration
	pollInterval    time.Duration
	stopConcurrency int
	logger          *log.Logger
	statePath       string
	stdout          io.Writer
	stderr          io.Writer
}

// Option configures a Supervisor
type Option func(*Supervisor)

// WithGracePeriod sets how long a stop waits after SIGTERM before SIGKILL
func WithGracePeriod(d time.Duration) Option {
	return func(s *Supervisor) {
		s.gracePeriod = d
	}
}

// WithKillWait sets how long a stop waits for the OS to confirm
// termination after SIGKILL
func WithKillWait(d time.Duration) Option {
	return func(s *Supervisor) {
		s.killWait = d
	}
}

// WithPollInterval sets the liveness polling interval for reattached
// processes
func WithPollInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		s.pollInterval = d
	}
}

// WithStopConcurrency sets the maximum number of concurrent stops in
// StopAll
func WithStopConcurrency(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.stopConcurrency = n
		}
	}
}

// WithLogger sets the supervisor's logger
func WithLogger(logger *log.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithStateFile enables persistence: a snapshot of live processes is
// written to path after every mutation, and still-running ones are adopted
// on construction
func WithStateFile(path string) Option {
	return func(s *Supervisor) {
		s.statePath = path
	}
}

// WithStdio sets the writers children inherit when a spec has no LogDir
func WithStdio(stdout, stderr io.Writer) Option {
	return func(s *Supervisor) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// New creates a Supervisor for the given specs, in their declared order.
// Duplicate names and invalid specs are rejected with *ConfigError. With
// WithStateFile, processes recorded by an earlier invocation are reattached
// before New returns.
func New(specs []ServiceSpec, opts ...Option) (*Supervisor, error) {
	s := &Supervisor{
		registry:        NewProcessRegistry(),
		gracePeriod:     DefaultGracePeriod,
		killWait:        DefaultKillWait,
		pollInterval:    DefaultPollInterval,
		stopConcurrency: DefaultStopConcurrency,
		logger:          log.New(io.Discard),
		stdout:          os.Stdout,
		stderr:          os.Stderr,
	}
	if err := s.Reload(specs); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.statePath != "" {
		if err := s.reattach(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Reload replaces the configured specs, keeping registry state. Entries for
// services no longer configured stay listed until stopped or reaped.
func (s *Supervisor) Reload(specs []ServiceSpec) error {
	byName := make(map[string]ServiceSpec, len(specs))
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return err
		}
		if _, dup := byName[spec.Name]; dup {
			return &ConfigError{Service: spec.Name, Reason: "duplicate service name"}
		}
		byName[spec.Name] = spec
	}

	s.specMu.Lock()
	s.specs = append([]ServiceSpec(nil), specs...)
	s.byName = byName
	s.specMu.Unlock()
	return nil
}

// Specs returns the configured specs in declared order
func (s *Supervisor) Specs() []ServiceSpec {
	s.specMu.RLock()
	defer s.specMu.RUnlock()
	return append([]ServiceSpec(nil), s.specs...)
}

// Registry exposes the underlying registry for read access
func (s *Supervisor) Registry() *ProcessRegistry {
	return s.registry
}

func (s *Supervisor) spec(name string) (ServiceSpec, bool) {
	s.specMu.RLock()
	defer s.specMu.RUnlock()
	spec, ok := s.byName[name]
	return spec, ok
}

// StartOne resolves, launches, and records the named service. It fails
// with ErrNotFound for an unknown name, ErrAlreadyRunning when a live
// process exists, a resolver error when the environment cannot be
// prepared, and *LaunchError when the OS refuses the spawn; in the launch
// failure case the entry is kept in state Failed so the failure stays
// visible until a later start or stop clears it.
func (s *Supervisor) StartOne(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	spec, ok := s.spec(name)
	if !ok {
		return &OpError{Op: OpStart, Service: name, Err: ErrNotFound}
	}
	s.reconcile()

	inv, err := Resolve(spec)
	if err != nil {
		return err
	}

	// Claim the name before spawning so a concurrent start of the same
	// service observes ErrAlreadyRunning instead of racing to a second
	// process.
	e := &procEntry{
		spec:       spec,
		state:      StateStarting,
		executable: inv.Path,
		exited:     make(chan struct{}),
	}
	if err := s.registry.record(name, e); err != nil {
		return &OpError{Op: OpStart, Service: name, Err: err}
	}

	fail := func(err error) error {
		lerr := &LaunchError{Service: name, Err: err}
		s.registry.update(name, func(cur *procEntry) {
			if cur == e {
				cur.state = StateFailed
				cur.lastErr = lerr
			}
		})
		s.persist()
		return lerr
	}

	stdout, stderr, logFile, err := s.childStreams(spec)
	if err != nil {
		return fail(err)
	}

	cmd := exec.Command(inv.Path, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Own process group, so stop can signal shell-spawned subprocesses
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		s.logger.Error("launch failed", "service", name, "err", err)
		return fail(err)
	}

	startedAt := time.Now()
	s.registry.update(name, func(cur *procEntry) {
		if cur == e {
			cur.cmd = cmd
			cur.pid = cmd.Process.Pid
			cur.startedAt = startedAt
			cur.state = StateRunning
		}
	})
	s.logger.Info("service started", "service", name, "pid", cmd.Process.Pid)

	go s.waitForExit(name, e, cmd, logFile)
	s.persist()
	return nil
}

// waitForExit observes the child's exit and applies the lifecycle policy:
// an exit during Stopping is left for StopOne to finish; a clean self-exit
// removes the entry; any other exit marks the service Failed and keeps the
// entry visible.
func (s *Supervisor) waitForExit(name string, e *procEntry, cmd *exec.Cmd, logFile *os.File) {
	err := cmd.Wait()
	if logFile != nil {
		_ = logFile.Close()
	}

	remove := false
	requested := false
	s.registry.update(name, func(cur *procEntry) {
		if cur != e {
			return
		}
		switch cur.state {
		case StateStopping:
			cur.state = StateStopped
			requested = true
		case StateStarting, StateRunning:
			if err != nil {
				cur.state = StateFailed
				cur.lastErr = err
			} else {
				cur.state = StateStopped
				remove = true
			}
		}
	})
	close(e.exited)

	if remove {
		s.registry.removeEntry(name, e)
		s.logger.Info("service exited", "service", name)
	} else if err != nil && !requested {
		s.logger.Warn("service exited unexpectedly", "service", name, "err", err)
	}
	s.persist()
}

// StartAll starts every configured service in declared order, waiting each
// spec's delay relative to the previous start returning. A failure is
// recorded but never aborts the batch; canceling ctx aborts pending delays
// without touching already-started services. The aggregate error is a
// *MultiError, nil when every outcome succeeded.
func (s *Supervisor) StartAll(ctx context.Context) ([]Outcome, error) {
	specs := s.Specs()
	outcomes := make([]Outcome, 0, len(specs))
	merr := &MultiError{}

	for _, spec := range specs {
		if err := sleepCtx(ctx, spec.Delay); err != nil {
			outcomes = append(outcomes, Outcome{Name: spec.Name, Err: err})
			merr.Add(err)
			break
		}
		err := s.StartOne(ctx, spec.Name)
		outcomes = append(outcomes, Outcome{Name: spec.Name, Err: err})
		merr.Add(err)
	}
	return outcomes, merr.Err()
}

// StopOne terminates the named service: SIGTERM to its process group, a
// bounded grace period, then SIGKILL. On confirmed termination the entry
// is removed from the registry. Stopping a service whose entry is in a
// terminal state clears the leftover; stopping a service with no entry
// fails with ErrNotRunning, an unknown name with ErrNotFound.
func (s *Supervisor) StopOne(ctx context.Context, name string) error {
	if _, ok := s.spec(name); !ok {
		// Leftover entries for services removed from the config are
		// still stoppable.
		if _, exists := s.registry.Get(name); !exists {
			return &OpError{Op: OpStop, Service: name, Err: ErrNotFound}
		}
	}
	s.reconcile()

	e, ok := s.registry.entry(name)
	if !ok {
		return &OpError{Op: OpStop, Service: name, Err: ErrNotRunning}
	}

	var pid int
	claimed := false
	terminal := false
	s.registry.update(name, func(cur *procEntry) {
		if cur != e {
			return
		}
		switch cur.state {
		case StateStopped, StateFailed:
			terminal = true
		case StateStarting, StateRunning:
			cur.state = StateStopping
			pid = cur.pid
			claimed = true
		}
	})
	if terminal {
		s.registry.removeEntry(name, e)
		s.persist()
		return nil
	}
	if !claimed {
		// Either gone or another stop owns the transition
		return &OpError{Op: OpStop, Service: name, Err: ErrNotRunning}
	}

	s.logger.Info("stopping service", "service", name, "pid", pid)
	signalGroup(pid, syscall.SIGTERM)

	if !s.awaitExit(ctx, e, pid, s.gracePeriod) {
		s.logger.Warn("grace period elapsed, killing", "service", name, "pid", pid)
		signalGroup(pid, syscall.SIGKILL)
		s.awaitExit(ctx, e, pid, s.killWait)
	}

	s.registry.update(name, func(cur *procEntry) {
		if cur == e {
			cur.state = StateStopped
		}
	})
	s.registry.removeEntry(name, e)
	s.logger.Info("service stopped", "service", name)
	s.persist()
	return nil
}

// StopAll stops every live service. Stops proceed concurrently (there is
// no declared stop ordering) and continue past individual failures; the
// aggregate error is a *MultiError, nil when every outcome succeeded.
func (s *Supervisor) StopAll(ctx context.Context) ([]Outcome, error) {
	s.reconcile()

	var names []string
	for _, rp := range s.registry.List() {
		if rp.State == StateStarting || rp.State == StateRunning {
			names = append(names, rp.Spec.Name)
		}
	}

	sem := make(chan struct{}, s.stopConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	outcomes := make([]Outcome, len(names))
	merr := &MultiError{}

	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				outcomes[i] = Outcome{Name: name, Err: ctx.Err()}
				merr.Add(ctx.Err())
				mu.Unlock()
				return
			}

			err := s.StopOne(ctx, name)
			mu.Lock()
			outcomes[i] = Outcome{Name: name, Err: err}
			merr.Add(err)
			mu.Unlock()
		}(i, name)
	}
	wg.Wait()

	return outcomes, merr.Err()
}

// Status returns a snapshot of the named service's registry entry. It
// fails with ErrNotFound both for unknown names and for known services
// with no entry (never started, stopped, or reaped after a clean exit).
func (s *Supervisor) Status(name string) (RunningProcess, error) {
	s.reconcile()

	rp, ok := s.registry.Get(name)
	if !ok {
		return RunningProcess{}, &OpError{Op: OpStatus, Service: name, Err: ErrNotFound}
	}
	return rp, nil
}

// ListAll merges the configured specs, in declared order, with registry
// state; services that never started still appear with a nil Proc.
// Registry leftovers whose spec was removed from the config are appended
// at the end.
func (s *Supervisor) ListAll() []ServiceStatus {
	s.reconcile()

	specs := s.Specs()
	out := make([]ServiceStatus, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		st := ServiceStatus{Spec: spec}
		if rp, ok := s.registry.Get(spec.Name); ok {
			c := rp
			st.Proc = &c
		}
		seen[spec.Name] = true
		out = append(out, st)
	}
	for _, rp := range s.registry.List() {
		if !seen[rp.Spec.Name] {
			c := rp
			out = append(out, ServiceStatus{Spec: rp.Spec, Proc: &c})
		}
	}
	return out
}

// reconcile refreshes registry entries against observed liveness so a
// process that died on its own is never reported as Running. Entries we
// spawned are maintained by their exit waiter; reattached entries (no wait
// handle) are probed here and reaped when the process has vanished.
func (s *Supervisor) reconcile() {
	type reaped struct {
		name string
		e    *procEntry
	}
	var gone []reaped
	s.registry.forEach(func(name string, e *procEntry) {
		if e.cmd != nil || e.exited != nil || !e.live() {
			return
		}
		if !processAlive(e.pid) {
			e.state = StateStopped
			gone = append(gone, reaped{name, e})
		}
	})
	for _, g := range gone {
		s.registry.removeEntry(g.name, g.e)
		s.logger.Info("reattached service vanished", "service", g.name)
	}
	if len(gone) > 0 {
		s.persist()
	}
}

// awaitExit blocks until the process is confirmed gone or the timeout
// elapses. Entries we spawned are waited on through their exit channel;
// reattached ones are polled.
func (s *Supervisor) awaitExit(ctx context.Context, e *procEntry, pid int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	if e.exited != nil {
		select {
		case <-e.exited:
			return true
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		}
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		if !processAlive(pid) {
			return true
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// childStreams returns the writers for the child's stdout/stderr: the
// spec's log file when LogDir is set, otherwise the supervisor's streams.
func (s *Supervisor) childStreams(spec ServiceSpec) (io.Writer, io.Writer, *os.File, error) {
	if spec.LogDir == "" {
		return s.stdout, s.stderr, nil, nil
	}
	dir := ExpandHome(spec.LogDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, spec.Name+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, nil, err
	}
	return f, f, f, nil
}

// signalGroup delivers sig to the whole process group, falling back to the
// process itself when the group is already gone
func signalGroup(pid int, sig syscall.Signal) {
	if err := syscall.Kill(-pid, sig); err != nil {
		_ = syscall.Kill(pid, sig)
	}
}

// sleepCtx waits d, or returns early with ctx's error when it is canceled
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
