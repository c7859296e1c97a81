package state

import (
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Store resolves the well-known state filenames under one shared directory,
// the Go analogue of shared_state.py's get_state_dir() plus each manager's
// `filepath.Join(state_dir, "<name>.json")` default.
type Store struct {
	dir string
}

// NewStore roots a Store at dir; the first writer to each file MkdirAlls the
// directory, so NewStore itself does no I/O.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

func (s *Store) WatchlistPath() string   { return s.path("daily_watchlist.json") }
func (s *Store) SignalsPath() string     { return s.path("signals.json") }
func (s *Store) PositionsPath() string   { return s.path("positions.json") }
func (s *Store) SellSignalsPath() string { return s.path("sell_signals.json") }
func (s *Store) TradesPath() string      { return s.path("trades.json") }
func (s *Store) CooldownsPath() string   { return s.path("cooldowns.json") }
func (s *Store) HotSignalPath() string   { return s.path("hot_signal.json") }
func (s *Store) StatusPath() string      { return s.path("orchestrator_status.json") }

// SaveWatchlist overwrites daily_watchlist.json, the one file the
// PreMarketScanner owns exclusively and every other service only reads.
func (s *Store) SaveWatchlist(wl DailyWatchlist) error {
	return withLock(s.WatchlistPath(), func() error {
		return writeJSON(s.WatchlistPath(), wl)
	})
}

// LoadWatchlist reads daily_watchlist.json, validating its shape against
// the watchlist schema before trusting it — a malformed watchlist must
// never silently become an empty scan universe.
func (s *Store) LoadWatchlist() (DailyWatchlist, error) {
	var wl DailyWatchlist
	path := s.WatchlistPath()
	err := withLock(path, func() error {
		raw, readErr := readRawIfExists(path)
		if readErr != nil || raw == nil {
			return readErr
		}
		schema, schemaErr := watchlistSchema()
		if schemaErr != nil {
			return schemaErr
		}
		if valErr := validateAgainst(schema, raw); valErr != nil {
			return quarantine(path, raw, valErr)
		}
		return unmarshalOrQuarantine(path, raw, &wl)
	})
	return wl, err
}

// SaveSignals overwrites signals.json each Scanner cycle (spec.md §4.2: the
// live scan result, not an append log).
func (s *Store) SaveSignals(sig []Signal) error {
	return withLock(s.SignalsPath(), func() error {
		return writeJSON(s.SignalsPath(), sig)
	})
}

// LoadSignals reads the current signals.json.
func (s *Store) LoadSignals() ([]Signal, error) {
	var sig []Signal
	err := withLock(s.SignalsPath(), func() error {
		return readJSON(s.SignalsPath(), &sig)
	})
	return sig, err
}

const watchlistSchemaJSON = `{
  "type": "object",
  "required": ["generated_at", "entries"],
  "properties": {
    "generated_at": {"type": "string"},
    "entries": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["symbol"],
        "properties": {"symbol": {"type": "string", "minLength": 1}}
      }
    }
  }
}`

var (
	watchlistSchemaOnce sync.Once
	watchlistSchemaVal  *jsonschema.Schema
	watchlistSchemaErr  error
)

func watchlistSchema() (*jsonschema.Schema, error) {
	watchlistSchemaOnce.Do(func() {
		watchlistSchemaVal, watchlistSchemaErr = compileSchema("watchlist.json", watchlistSchemaJSON)
	})
	return watchlistSchemaVal, watchlistSchemaErr
}
