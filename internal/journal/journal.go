// Package journal provides a SQLite audit-trail sink for Trade records,
// adapted from the teacher's journal.Journal/SQLiteJournal. This is an
// enrichment alongside the spec-mandated append-only trades.json (owned by
// internal/state, which is the authoritative single-writer store per
// spec.md §3/§6.2); the SQLite sink exists purely so trades are queryable
// without parsing JSON, and a failure to write it is never fatal to the
// Seller's cycle.
package journal

import "time"

// Trade mirrors spec.md §3's Trade entity.
type Trade struct {
	Symbol      string
	EntryTime   time.Time
	ExitTime    time.Time
	EntryPrice  float64
	ExitPrice   float64
	Quantity    int
	PnLPct      float64
	PnLDollars  float64
	Reason      string
	SignalScore int
}

// Journal is the narrow interface the Seller writes its audit trail
// through.
type Journal interface {
	RecordTrade(Trade) error
	Close() error
}
