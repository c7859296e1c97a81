// Package logging wires up each service's structured slog logger, writing
// to a size-rotating file under the configured log directory (spec.md §6.2:
// 10 MB per file, 5 backups) in addition to stderr. No example in the pack
// imports a rotation library (lumberjack and friends are all absent from
// every go.mod), so the classic logging.handlers.RotatingFileHandler scheme
// — rotate at a byte ceiling, shift .1→.2...→.5, drop the oldest — is
// reimplemented directly here rather than reached for secondhand.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const (
	maxBytes   = 10 * 1024 * 1024
	maxBackups = 5
)

// RotatingFile is an io.Writer that rotates the underlying file once it
// exceeds maxBytes, keeping up to maxBackups numbered copies.
type RotatingFile struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	written int64
}

// NewRotatingFile opens (or creates) path for appending and returns a
// writer that rotates it in place as it grows.
func NewRotatingFile(path string) (*RotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &RotatingFile{path: path, file: f, written: info.Size()}, nil
}

func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.written+int64(len(p)) > maxBytes {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := r.file.Write(p)
	r.written += int64(n)
	return n, err
}

// rotate shifts .log.4 -> .log.5, ..., .log -> .log.1, dropping anything
// past maxBackups, then reopens a fresh empty file at r.path.
func (r *RotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}

	for i := maxBackups - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", r.path, i)
		dst := fmt.Sprintf("%s.%d", r.path, i+1)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, dst)
		}
	}
	if _, err := os.Stat(r.path); err == nil {
		_ = os.Rename(r.path, r.path+".1")
	}

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	r.file = f
	r.written = 0
	return nil
}

// Close flushes and closes the underlying file.
func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

// New builds a leveled slog.Logger for the named service, tee'd to stderr
// and a rotating file at <logDir>/<service>.log, tagged with a "service"
// attribute on every record so multiplexed log output can be split back out
// per service.
func New(logDir, service, level string) (*slog.Logger, io.Closer, error) {
	rf, err := NewRotatingFile(filepath.Join(logDir, service+".log"))
	if err != nil {
		return nil, nil, err
	}

	handler := slog.NewJSONHandler(io.MultiWriter(os.Stderr, rf), &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	logger := slog.New(handler).With("service", service)
	return logger, rf, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
