package state

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SaveStatus overwrites orchestrator_status.json, adapted from
// orchestrator.py's save_status. Unlike the original, which only records
// whether a Popen handle is still alive in the orchestrator's own memory,
// ServiceStatus carries enough (PID, heartbeat, restart count, last error)
// for a separate `momentum status` process to read cross-process — the
// REDESIGN FLAG spec.md §8 calls for.
func (s *Store) SaveStatus(status OrchestratorStatus) error {
	status.UpdatedAt = time.Now()
	return withLock(s.StatusPath(), func() error {
		return writeJSON(s.StatusPath(), status)
	})
}

// LoadStatus reads the current fleet snapshot. A missing file returns a
// zero-value OrchestratorStatus with an empty Services map, not an error.
func (s *Store) LoadStatus() (OrchestratorStatus, error) {
	status := OrchestratorStatus{Services: map[string]ServiceStatus{}}
	err := withLock(s.StatusPath(), func() error {
		return readJSON(s.StatusPath(), &status)
	})
	if status.Services == nil {
		status.Services = map[string]ServiceStatus{}
	}
	return status, err
}

// UpdateServiceStatus rewrites a single service's row under lock, so
// multiple services each reporting their own heartbeat never clobber one
// another's entry (the original's save_status serializes the whole
// dictionary from the single orchestrator process, which a per-process
// supervisor model can no longer assume).
func (s *Store) UpdateServiceStatus(name string, mutate func(ServiceStatus) ServiceStatus) error {
	return withLock(s.StatusPath(), func() error {
		status := OrchestratorStatus{Services: map[string]ServiceStatus{}}
		if err := readJSON(s.StatusPath(), &status); err != nil {
			return err
		}
		if status.Services == nil {
			status.Services = map[string]ServiceStatus{}
		}
		current := status.Services[name]
		current.Name = name
		status.Services[name] = mutate(current)
		status.UpdatedAt = time.Now()
		return writeJSON(s.StatusPath(), status)
	})
}

// PIDPath is the orchestrator's own PID file (orchestrator.pid in
// orchestrator.py), used by `momentum stop`/`momentum restart` to find the
// running supervisor without needing a shared in-memory handle.
func (s *Store) PIDPath() string { return s.path("orchestrator.pid") }

// SavePID writes the current process's PID to PIDPath, truncating and
// fsyncing so a half-written PID file is never observed (the original's
// save_pid does a bare open/write with no fsync).
func (s *Store) SavePID() error {
	return withLock(s.PIDPath(), func() error {
		f, err := os.OpenFile(s.PIDPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := fmt.Fprintf(f, "%d", os.Getpid()); err != nil {
			return err
		}
		return f.Sync()
	})
}

// LoadPID reads the orchestrator's recorded PID, or 0 if none is on record.
func (s *Store) LoadPID() (int, error) {
	raw, err := os.ReadFile(s.PIDPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, err
	}
	return pid, nil
}

// RemovePID deletes the PID file, ignoring a not-exist error.
func (s *Store) RemovePID() error {
	err := os.Remove(s.PIDPath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
