package state

import (
	"log/slog"
	"time"
)

// minScoreForHotSignal matches shared_state.py's SignalNotifier.min_score_for_hot.
const minScoreForHotSignal = 90

// hotSignalMaxAge matches SignalNotifier.check_hot_signal's 60-second
// freshness window.
const hotSignalMaxAge = 60 * time.Second

type hotSignalRecord struct {
	Signal    *Signal   `json:"signal"`
	Timestamp time.Time `json:"timestamp"`
	Processed bool      `json:"processed"`
}

// HotSignalNotifier lets Scanner fast-path a high-score Signal straight to
// Buyer instead of waiting for Buyer's next poll (SPEC_FULL.md §4 item 3),
// adapted from shared_state.py's SignalNotifier.
type HotSignalNotifier struct {
	store *Store
	log   *slog.Logger
}

// NewHotSignalNotifier wires a HotSignalNotifier to store.
func NewHotSignalNotifier(store *Store, log *slog.Logger) *HotSignalNotifier {
	return &HotSignalNotifier{store: store, log: log}
}

// NotifyHotSignal writes sig for immediate Buyer processing if its score
// clears the fast-path threshold, reporting whether it did.
func (n *HotSignalNotifier) NotifyHotSignal(sig Signal) (bool, error) {
	if sig.Score < minScoreForHotSignal {
		return false, nil
	}
	rec := hotSignalRecord{Signal: &sig, Timestamp: time.Now(), Processed: false}
	err := withLock(n.store.HotSignalPath(), func() error {
		return writeJSON(n.store.HotSignalPath(), rec)
	})
	if err != nil {
		return false, err
	}
	n.log.Info("hot signal written", "symbol", sig.Symbol, "score", sig.Score)
	return true, nil
}

// CheckHotSignal returns an unprocessed, still-fresh hot signal if one is
// pending.
func (n *HotSignalNotifier) CheckHotSignal() (*Signal, error) {
	var rec hotSignalRecord
	err := withLock(n.store.HotSignalPath(), func() error {
		return readJSON(n.store.HotSignalPath(), &rec)
	})
	if err != nil || rec.Processed || rec.Signal == nil {
		return nil, err
	}
	if time.Since(rec.Timestamp) > hotSignalMaxAge {
		return nil, nil
	}
	return rec.Signal, nil
}

// MarkProcessed marks the current hot signal consumed so it is not replayed
// to the next Buyer cycle.
func (n *HotSignalNotifier) MarkProcessed() error {
	return withLock(n.store.HotSignalPath(), func() error {
		rec := hotSignalRecord{Processed: true}
		return writeJSON(n.store.HotSignalPath(), rec)
	})
}
