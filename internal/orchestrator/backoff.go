package orchestrator

import "time"

// backoffCap and backoffStableWindow implement the REDESIGN FLAG over
// original_source/core/orchestrator.py's monitor_services, which restarts a
// crashed service immediately and unconditionally on every 30s poll: an
// exponential backoff (1s, 2s, 4s, ... capped at 60s) prevents a
// fast-crashing service from hammering the broker API and the filesystem,
// and the backoff resets to 1s once a service has stayed up for 5 minutes.
const (
	backoffBase         = 1 * time.Second
	backoffCap          = 60 * time.Second
	backoffStableWindow = 5 * time.Minute
)

// restartBackoff tracks one service's crash-restart delay schedule.
type restartBackoff struct {
	attempt   int
	startedAt time.Time
}

// Next returns the delay to wait before the next restart attempt, then
// advances the schedule.
func (b *restartBackoff) Next() time.Duration {
	delay := backoffBase << b.attempt
	if delay > backoffCap || delay <= 0 {
		delay = backoffCap
	}
	b.attempt++
	return delay
}

// NoteStarted records that the service has just (re)started, for stability
// tracking.
func (b *restartBackoff) NoteStarted(now time.Time) {
	b.startedAt = now
}

// ResetIfStable clears the backoff schedule if the service has been running
// continuously for at least backoffStableWindow since its last start.
func (b *restartBackoff) ResetIfStable(now time.Time) {
	if !b.startedAt.IsZero() && now.Sub(b.startedAt) >= backoffStableWindow {
		b.attempt = 0
	}
}
