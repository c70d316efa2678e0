package srv

import (
	"context"
	"errors"
	"testing"
	"time"
)

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestSupervisor(t *testing.T, specs []ServiceSpec, opts ...Option) *Supervisor {
	t.Helper()
	opts = append([]Option{
		WithGracePeriod(2 * time.Second),
		WithKillWait(time.Second),
	}, opts...)
	s, err := New(specs, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_, _ = s.StopAll(context.Background())
	})
	return s
}

func TestStartStopLifecycle(t *testing.T) {
	s := newTestSupervisor(t, []ServiceSpec{
		{Name: "sleeper", Command: "sleep 60"},
	})
	ctx := context.Background()

	if err := s.StartOne(ctx, "sleeper"); err != nil {
		t.Fatal(err)
	}

	rp, err := s.Status("sleeper")
	if err != nil {
		t.Fatal(err)
	}
	if rp.State != StateRunning {
		t.Fatalf("state = %v, want %v", rp.State, StateRunning)
	}
	if rp.PID <= 0 {
		t.Fatalf("pid = %d, want > 0", rp.PID)
	}

	if err := s.StopOne(ctx, "sleeper"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Status("sleeper"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("status after stop = %v, want ErrNotFound", err)
	}
	if processAlive(rp.PID) {
		t.Errorf("pid %d still alive after stop", rp.PID)
	}
}

func TestStartOneUnknownService(t *testing.T) {
	s := newTestSupervisor(t, nil)

	err := s.StartOne(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	var oerr *OpError
	if !errors.As(err, &oerr) || oerr.Op != OpStart {
		t.Fatalf("err = %#v, want *OpError with OpStart", err)
	}
}

func TestStartOneTwice(t *testing.T) {
	s := newTestSupervisor(t, []ServiceSpec{
		{Name: "sleeper", Command: "sleep 60"},
	})
	ctx := context.Background()

	if err := s.StartOne(ctx, "sleeper"); err != nil {
		t.Fatal(err)
	}
	before, _ := s.Status("sleeper")

	if err := s.StartOne(ctx, "sleeper"); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start = %v, want ErrAlreadyRunning", err)
	}

	after, _ := s.Status("sleeper")
	if after.PID != before.PID {
		t.Errorf("pid changed from %d to %d on rejected start", before.PID, after.PID)
	}
}

func TestStopOneNotRunning(t *testing.T) {
	s := newTestSupervisor(t, []ServiceSpec{
		{Name: "sleeper", Command: "sleep 60"},
	})

	err := s.StopOne(context.Background(), "sleeper")
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}

	if err := s.StopOne(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStartOneLaunchFailure(t *testing.T) {
	s := newTestSupervisor(t, []ServiceSpec{
		{Name: "broken", Command: "/nonexistent/bin/never"},
	})

	err := s.StartOne(context.Background(), "broken")
	var lerr *LaunchError
	if !errors.As(err, &lerr) {
		t.Fatalf("err = %v, want *LaunchError", err)
	}

	// The failure stays visible until cleared.
	rp, serr := s.Status("broken")
	if serr != nil {
		t.Fatal(serr)
	}
	if rp.State != StateFailed {
		t.Errorf("state = %v, want %v", rp.State, StateFailed)
	}
	if rp.Err == nil {
		t.Error("failed entry has no error")
	}

	// A stop clears the leftover; a retry may then record a fresh
	// attempt.
	if err := s.StopOne(context.Background(), "broken"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Status("broken"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("status after clearing = %v, want ErrNotFound", err)
	}
}

func TestCrashDetection(t *testing.T) {
	s := newTestSupervisor(t, []ServiceSpec{
		{Name: "crasher", Command: "sh -c \"exit 3\""},
	})

	if err := s.StartOne(context.Background(), "crasher"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 5*time.Second, func() bool {
		rp, err := s.Status("crasher")
		return err == nil && rp.State == StateFailed
	})

	rp, _ := s.Status("crasher")
	if rp.Err == nil {
		t.Error("crashed entry has no exit error")
	}
}

func TestCleanExitReapsEntry(t *testing.T) {
	s := newTestSupervisor(t, []ServiceSpec{
		{Name: "oneshot", Command: "true"},
	})

	if err := s.StartOne(context.Background(), "oneshot"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 5*time.Second, func() bool {
		_, err := s.Status("oneshot")
		return errors.Is(err, ErrNotFound)
	})
}

func TestStartAllContinuesPastFailure(t *testing.T) {
	s := newTestSupervisor(t, []ServiceSpec{
		{Name: "a", Command: "sleep 60"},
		{Name: "broken", Command: "/nonexistent/bin/never"},
		{Name: "b", Command: "sleep 60"},
	})

	outcomes, err := s.StartAll(context.Background())
	if err == nil {
		t.Fatal("want aggregate error")
	}
	var merr *MultiError
	if !errors.As(err, &merr) || len(merr.Errors) != 1 {
		t.Fatalf("err = %v, want MultiError with 1 error", err)
	}

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Errorf("healthy services failed: %v, %v", outcomes[0].Err, outcomes[2].Err)
	}
	var lerr *LaunchError
	if !errors.As(outcomes[1].Err, &lerr) {
		t.Errorf("outcomes[1].Err = %v, want *LaunchError", outcomes[1].Err)
	}

	for _, name := range []string{"a", "b"} {
		rp, serr := s.Status(name)
		if serr != nil || rp.State != StateRunning {
			t.Errorf("%s: state %v err %v, want running", name, rp.State, serr)
		}
	}
}

func TestStartAllHonorsDelay(t *testing.T) {
	s := newTestSupervisor(t, []ServiceSpec{
		{Name: "a", Command: "sleep 60"},
		{Name: "b", Command: "sleep 60", Delay: 300 * time.Millisecond},
	})

	begin := time.Now()
	if _, err := s.StartAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(begin); elapsed < 300*time.Millisecond {
		t.Errorf("StartAll returned after %v, want >= 300ms", elapsed)
	}

	ra, _ := s.Status("a")
	rb, _ := s.Status("b")
	if rb.StartedAt.Sub(ra.StartedAt) < 250*time.Millisecond {
		t.Errorf("b started %v after a, want >= 250ms", rb.StartedAt.Sub(ra.StartedAt))
	}
}

func TestStartAllCancel(t *testing.T) {
	s := newTestSupervisor(t, []ServiceSpec{
		{Name: "a", Command: "sleep 60"},
		{Name: "b", Command: "sleep 60", Delay: 10 * time.Second},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	outcomes, err := s.StartAll(ctx)
	if err == nil {
		t.Fatal("want aggregate error after cancellation")
	}
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	if !errors.Is(outcomes[1].Err, context.DeadlineExceeded) {
		t.Errorf("outcomes[1].Err = %v, want deadline exceeded", outcomes[1].Err)
	}

	// The service started before cancellation is untouched.
	if rp, serr := s.Status("a"); serr != nil || rp.State != StateRunning {
		t.Errorf("a: state %v err %v, want running", rp.State, serr)
	}
}

func TestStopAll(t *testing.T) {
	s := newTestSupervisor(t, []ServiceSpec{
		{Name: "a", Command: "sleep 60"},
		{Name: "b", Command: "sleep 60"},
		{Name: "c", Command: "sleep 60"},
	})
	ctx := context.Background()

	if _, err := s.StartAll(ctx); err != nil {
		t.Fatal(err)
	}

	outcomes, err := s.StopAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	if n := s.Registry().Len(); n != 0 {
		t.Errorf("registry holds %d entries after StopAll, want 0", n)
	}
}

func TestStopAllWithNothingRunning(t *testing.T) {
	s := newTestSupervisor(t, []ServiceSpec{
		{Name: "a", Command: "sleep 60"},
	})

	outcomes, err := s.StopAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 0 {
		t.Fatalf("got %d outcomes, want 0", len(outcomes))
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	// The child traps and ignores SIGTERM, so the stop must escalate.
	s := newTestSupervisor(t, []ServiceSpec{
		{Name: "stubborn", Command: `sh -c "trap '' TERM; while true; do sleep 1; done"`},
	}, WithGracePeriod(300*time.Millisecond))
	ctx := context.Background()

	if err := s.StartOne(ctx, "stubborn"); err != nil {
		t.Fatal(err)
	}
	rp, _ := s.Status("stubborn")

	begin := time.Now()
	if err := s.StopOne(ctx, "stubborn"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(begin); elapsed < 300*time.Millisecond {
		t.Errorf("stop returned after %v, want >= grace period", elapsed)
	}
	if processAlive(rp.PID) {
		t.Errorf("pid %d survived SIGKILL escalation", rp.PID)
	}
}

func TestListAllIncludesStoppedServices(t *testing.T) {
	s := newTestSupervisor(t, []ServiceSpec{
		{Name: "a", Command: "sleep 60"},
		{Name: "b", Command: "sleep 60"},
	})

	if err := s.StartOne(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}

	list := s.ListAll()
	if len(list) != 2 {
		t.Fatalf("got %d entries, want 2", len(list))
	}
	if list[0].Spec.Name != "a" || list[1].Spec.Name != "b" {
		t.Fatalf("order = %q, %q; want a, b", list[0].Spec.Name, list[1].Spec.Name)
	}
	if list[0].Proc == nil || list[0].Proc.State != StateRunning {
		t.Error("a should be listed as running")
	}
	if list[1].Proc != nil {
		t.Error("b never started and should have no process")
	}
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	_, err := New([]ServiceSpec{
		{Name: "web", Command: "true"},
		{Name: "web", Command: "false"},
	})
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
}

func TestReloadSwapsSpecs(t *testing.T) {
	s := newTestSupervisor(t, []ServiceSpec{
		{Name: "a", Command: "sleep 60"},
	})
	if err := s.StartOne(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}

	if err := s.Reload([]ServiceSpec{{Name: "b", Command: "sleep 60"}}); err != nil {
		t.Fatal(err)
	}

	// a is gone from the config but its process is still tracked and
	// stoppable.
	list := s.ListAll()
	if len(list) != 2 {
		t.Fatalf("got %d entries, want 2", len(list))
	}
	if list[0].Spec.Name != "b" {
		t.Errorf("list[0] = %q, want %q", list[0].Spec.Name, "b")
	}
	if err := s.StopOne(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
}
