// Package apperrors implements the error taxonomy this system reasons about:
// not concrete types per failure, but a small set of *kinds* with distinct
// propagation policy (fatal vs. retried vs. skip-and-continue).
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the caller must react to it, not by what
// produced it.
type Kind int

const (
	// Config is a missing/invalid credential or config value. Fatal at startup.
	Config Kind = iota
	// BrokerTransient is a rate limit, 5xx, or network blip. Retried with
	// exponential backoff up to 3 attempts, then surfaced as a cycle skip.
	BrokerTransient
	// BrokerPermanent is a rejected order, unknown symbol, or insufficient
	// buying power. Logged, signal discarded, never retried.
	BrokerPermanent
	// Data is malformed or missing bars/quote data. Per-symbol skip, not fatal.
	Data
	// State is a lock timeout, JSON parse failure, or schema mismatch. The
	// affected file is quarantined and reinitialized empty.
	State
	// Lifecycle is a stale PID or crashed child, handled by the orchestrator.
	Lifecycle
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "ConfigError"
	case BrokerTransient:
		return "BrokerTransientError"
	case BrokerPermanent:
		return "BrokerPermanentError"
	case Data:
		return "DataError"
	case State:
		return "StateError"
	case Lifecycle:
		return "LifecycleError"
	default:
		return "UnknownError"
	}
}

// Error wraps an underlying error with its kind so callers can branch with
// errors.As instead of string matching.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as a kinded Error. err == nil yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Fatal reports whether an error of this kind must stop the service (per
// spec.md's propagation policy). Only ConfigError is unconditionally fatal;
// whether a StateError or BrokerPermanentError stops the service is decided
// at the call site, so Fatal reports false for them.
func Fatal(err error) bool {
	return Is(err, Config)
}
