package srv

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/renameio/v2"
)

// stateVersion guards against reading snapshots written by incompatible
// releases
const stateVersion = 1

type stateFile struct {
	Version  int            `json:"version"`
	Services []serviceState `json:"services"`
}

type serviceState struct {
	Name       string    `json:"name"`
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	Executable string    `json:"executable"`
}

// persist writes a snapshot of the live registry entries so a later
// invocation can reattach to them. The write is atomic; failures are
// logged rather than surfaced, since the processes themselves are fine.
func (s *Supervisor) persist() {
	if s.statePath == "" {
		return
	}

	st := stateFile{Version: stateVersion}
	s.registry.forEach(func(name string, e *procEntry) {
		if !e.live() || e.pid == 0 {
			return
		}
		st.Services = append(st.Services, serviceState{
			Name:       name,
			PID:        e.pid,
			StartedAt:  e.startedAt,
			Executable: e.executable,
		})
	})

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		s.logger.Error("encoding state snapshot", "err", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.statePath), 0o755); err != nil {
		s.logger.Error("writing state snapshot", "path", s.statePath, "err", err)
		return
	}
	if err := renameio.WriteFile(s.statePath, data, 0o644); err != nil {
		s.logger.Error("writing state snapshot", "path", s.statePath, "err", err)
	}
}

// reattach adopts processes recorded by an earlier invocation that are
// still alive and still look like the recorded executable. Adopted entries
// carry no wait handle; liveness is tracked by polling. Stale records are
// dropped silently.
func (s *Supervisor) reattach() error {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	var st stateFile
	if err := json.Unmarshal(data, &st); err != nil {
		// A corrupt snapshot is not worth refusing to start over;
		// it gets rewritten on the next mutation.
		s.logger.Warn("discarding unreadable state snapshot", "path", s.statePath, "err", err)
		return nil
	}
	if st.Version != stateVersion {
		s.logger.Warn("discarding state snapshot with unknown version", "version", st.Version)
		return nil
	}

	for _, rec := range st.Services {
		if rec.PID <= 0 || !processAlive(rec.PID) {
			continue
		}
		if !sameExecutable(rec.PID, rec.Executable) {
			s.logger.Warn("pid reused by another program, skipping", "service", rec.Name, "pid", rec.PID)
			continue
		}
		spec, ok := s.spec(rec.Name)
		if !ok {
			spec = ServiceSpec{Name: rec.Name, Command: rec.Executable}
		}
		e := &procEntry{
			spec:       spec,
			pid:        rec.PID,
			startedAt:  rec.StartedAt,
			state:      StateRunning,
			executable: rec.Executable,
		}
		if err := s.registry.record(rec.Name, e); err != nil {
			continue
		}
		s.logger.Info("reattached to service", "service", rec.Name, "pid", rec.PID)
	}

	s.persist()
	return nil
}

// processAlive reports whether a process with the given pid exists.
// Signal 0 performs the permission and existence checks without
// delivering anything.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// sameExecutable guards against pid reuse between invocations by
// comparing the recorded executable's basename against the process's
// command line. Without procfs there is nothing to compare, so the
// record is trusted.
func sameExecutable(pid int, executable string) bool {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "cmdline"))
	if err != nil {
		return true
	}
	argv := strings.Split(string(data), "\x00")
	if len(argv) == 0 || argv[0] == "" {
		return true
	}
	return filepath.Base(argv[0]) == filepath.Base(executable)
}
