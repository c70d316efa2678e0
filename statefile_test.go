package srv

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStateFileRoundTrip(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	specs := []ServiceSpec{{Name: "sleeper", Command: "sleep 60"}}
	ctx := context.Background()

	s1, err := New(specs, WithStateFile(statePath))
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.StartOne(ctx, "sleeper"); err != nil {
		t.Fatal(err)
	}
	rp, _ := s1.Status("sleeper")

	// A second supervisor, as a fresh CLI invocation would build, adopts
	// the process from the state file.
	s2, err := New(specs, WithStateFile(statePath))
	if err != nil {
		t.Fatal(err)
	}
	got, err := s2.Status("sleeper")
	if err != nil {
		t.Fatal(err)
	}
	if got.PID != rp.PID {
		t.Fatalf("reattached pid = %d, want %d", got.PID, rp.PID)
	}
	if got.State != StateRunning {
		t.Fatalf("reattached state = %v, want %v", got.State, StateRunning)
	}

	// Stopping through the adopter works without a wait handle.
	if err := s2.StopOne(ctx, "sleeper"); err != nil {
		t.Fatal(err)
	}
	if processAlive(rp.PID) {
		t.Errorf("pid %d still alive after stop via reattached entry", rp.PID)
	}
}

func TestReattachSkipsDeadProcess(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")

	// Spawn and reap a short-lived child so we hold a pid that is
	// known-dead.
	probe, err := New([]ServiceSpec{{Name: "gone", Command: "sleep 60"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := probe.StartOne(context.Background(), "gone"); err != nil {
		t.Fatal(err)
	}
	rp, err := probe.Status("gone")
	if err != nil {
		t.Fatal(err)
	}
	if err := probe.StopOne(context.Background(), "gone"); err != nil {
		t.Fatal(err)
	}

	// Forge a snapshot pointing at the dead pid.
	st := stateFile{Version: stateVersion, Services: []serviceState{
		{Name: "gone", PID: rp.PID, StartedAt: time.Now(), Executable: "sleep"},
	}}
	data, err := json.Marshal(st)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(statePath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := New([]ServiceSpec{{Name: "gone", Command: "true"}},
		WithStateFile(statePath))
	if err != nil {
		t.Fatal(err)
	}
	if n := s.Registry().Len(); n != 0 {
		t.Fatalf("registry holds %d entries after reattach, want 0", n)
	}
}

func TestReattachSkipsReusedPID(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")

	// Our own pid is alive, but its cmdline does not match the recorded
	// executable, so the record must be treated as stale.
	st := stateFile{Version: stateVersion, Services: []serviceState{
		{Name: "impostor", PID: os.Getpid(), StartedAt: time.Now(), Executable: "/usr/bin/impostor-daemon"},
	}}
	data, err := json.Marshal(st)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(statePath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := New([]ServiceSpec{{Name: "impostor", Command: "true"}},
		WithStateFile(statePath))
	if err != nil {
		t.Fatal(err)
	}
	if n := s.Registry().Len(); n != 0 {
		t.Fatalf("registry holds %d entries after reattach, want 0", n)
	}
}

func TestReattachIgnoresCorruptSnapshot(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(statePath, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := New([]ServiceSpec{{Name: "a", Command: "true"}},
		WithStateFile(statePath))
	if err != nil {
		t.Fatal(err)
	}
	if n := s.Registry().Len(); n != 0 {
		t.Fatalf("registry holds %d entries, want 0", n)
	}
}
