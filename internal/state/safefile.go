// Package state is the durable substrate every service reads and writes
// through: JSON files under a shared state directory, guarded by advisory
// file locks so PreMarketScanner, Scanner, Buyer, Monitor, Seller and the
// Orchestrator can run as separate OS processes against the same files
// without racing. Adapted from original_source/core/shared_state.py's
// SafeJSONFile/CooldownManager/PositionManager/SignalNotifier, translated
// from Python's fcntl.flock context manager into a Go helper built on
// golang.org/x/sys/unix flock and a struct that callers Load/Mutate/Save
// through instead of a dict-like context manager.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
	"golang.org/x/sys/unix"

	"github.com/kestrelalgo/momentum/internal/apperrors"
)

// lockTimeout mirrors SafeJSONFile's default 5-second flock wait.
const lockTimeout = 5 * time.Second

// fileLock wraps an *os.File held under an exclusive advisory flock,
// acquired with a retry loop the way shared_state.py busy-waits on
// fcntl.flock rather than blocking indefinitely.
type fileLock struct {
	f *os.File
}

func lockExclusive(path string) (*fileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.New(apperrors.State, "lockExclusive.mkdir", err)
	}
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, apperrors.New(apperrors.State, "lockExclusive.open", err)
	}

	deadline := time.Now().Add(lockTimeout)
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &fileLock{f: f}, nil
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, apperrors.New(apperrors.State, "lockExclusive",
				fmt.Errorf("could not acquire lock on %s within %s", path, lockTimeout))
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (l *fileLock) unlock() {
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	l.f.Close()
}

// readJSON reads and json-unmarshals path into out. A missing file leaves
// out untouched and returns no error, matching SafeJSONFile's "file doesn't
// exist yet" behavior on read.
func readJSON(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperrors.New(apperrors.State, "readJSON", err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return quarantine(path, raw, err)
	}
	return nil
}

// quarantine copies the corrupt bytes to <path>.corrupt (StateError
// handling per spec.md §7) and extracts a one-line diagnostic via gjson,
// before surfacing the error. The original file is left in place as it is;
// it is not renamed and not reset to empty.
func quarantine(path string, raw []byte, cause error) error {
	diag := gjson.ParseBytes(raw)
	corruptPath := path + ".corrupt"
	os.WriteFile(corruptPath, raw, 0o644)
	return apperrors.New(apperrors.State, "quarantine", fmt.Errorf(
		"invalid JSON in %s (quarantined to %s, top-level kind=%s): %w",
		path, corruptPath, diag.Type.String(), cause))
}

// readRawIfExists returns a file's raw bytes, or nil with no error if it
// does not exist yet.
func readRawIfExists(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.New(apperrors.State, "readRawIfExists", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}

// unmarshalOrQuarantine decodes raw into out, quarantining path on failure
// instead of returning a bare decode error.
func unmarshalOrQuarantine(path string, raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return quarantine(path, raw, err)
	}
	return nil
}

// writeJSON marshals v, writes it to a temp file in the same directory, then
// fsyncs and renames it over path — the fsync-before-rename REDESIGN FLAG
// that original's save_positions/save_cooldowns lacks (they os.fsync the
// file handle but never fsync+rename atomically; a crash mid-write can
// truncate the live file). rename within the same directory is atomic on
// POSIX filesystems, so readers never observe a partially written file.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.New(apperrors.State, "writeJSON.mkdir", err)
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperrors.New(apperrors.State, "writeJSON.marshal", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return apperrors.New(apperrors.State, "writeJSON.tempfile", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return apperrors.New(apperrors.State, "writeJSON.write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apperrors.New(apperrors.State, "writeJSON.fsync", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.New(apperrors.State, "writeJSON.close", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return apperrors.New(apperrors.State, "writeJSON.rename", err)
	}
	return nil
}

// withLock acquires path's lock, runs fn, and always releases it — the
// Go equivalent of SafeJSONFile's __enter__/__exit__ pairing.
func withLock(path string, fn func() error) error {
	l, err := lockExclusive(path)
	if err != nil {
		return err
	}
	defer l.unlock()
	return fn()
}

// appendJSONLine appends one json-encoded record to an append-only newline
// delimited file, fsyncing before close. Used for trades.json and
// sell_signals.json, which spec.md §4.4/§4.5 require to be append-only
// rather than overwritten each cycle (a REDESIGN FLAG from the original's
// plain overwrite-on-save behavior).
func appendJSONLine(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.New(apperrors.State, "appendJSONLine.mkdir", err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return apperrors.New(apperrors.State, "appendJSONLine.marshal", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return apperrors.New(apperrors.State, "appendJSONLine.open", err)
	}
	defer f.Close()
	if _, err := f.Write(append(raw, '\n')); err != nil {
		return apperrors.New(apperrors.State, "appendJSONLine.write", err)
	}
	return f.Sync()
}

// readJSONLines reads every line of an append-only file, skipping blank
// lines and quarantining (not failing on) a single malformed line so one
// corrupt append never hides the rest of the audit trail.
func readJSONLines[T any](path string) ([]T, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.New(apperrors.State, "readJSONLines", err)
	}
	var out []T
	for _, line := range splitLines(raw) {
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			quarantine(path, line, err)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// writeJSONLines rewrites an append-only file's entire contents, fsyncing
// before the atomic rename the same way writeJSON does. Used only to drop
// entries a caller has finished processing (e.g. Seller clearing acted-on
// sell signals) — never to truncate trades.json itself.
func writeJSONLines[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.New(apperrors.State, "writeJSONLines.mkdir", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return apperrors.New(apperrors.State, "writeJSONLines.tempfile", err)
	}
	defer os.Remove(tmp.Name())

	for _, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			tmp.Close()
			return apperrors.New(apperrors.State, "writeJSONLines.marshal", err)
		}
		if _, err := tmp.Write(append(raw, '\n')); err != nil {
			tmp.Close()
			return apperrors.New(apperrors.State, "writeJSONLines.write", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apperrors.New(apperrors.State, "writeJSONLines.fsync", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.New(apperrors.State, "writeJSONLines.close", err)
	}
	return os.Rename(tmp.Name(), path)
}

func splitLines(raw []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range raw {
		if b == '\n' {
			lines = append(lines, raw[start:i])
			start = i + 1
		}
	}
	if start < len(raw) {
		lines = append(lines, raw[start:])
	}
	return lines
}

// compileSchema loads a JSON schema document for validating a store's shape
// before it is trusted, used by stores whose malformed content would
// otherwise silently propagate bad data into a live trading decision.
func compileSchema(name string, schemaJSON string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, strings.NewReader(schemaJSON)); err != nil {
		return nil, apperrors.New(apperrors.Config, "compileSchema", err)
	}
	return c.Compile(name)
}

// validateAgainst decodes raw as generic JSON and checks it against schema,
// returning a StateError the caller can choose to quarantine on.
func validateAgainst(schema *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return schema.Validate(v)
}
