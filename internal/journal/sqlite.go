package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// Schema is the trades audit table, adapted from the teacher's
// journal.Schema constant.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	entry_time DATETIME NOT NULL,
	exit_time DATETIME NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	quantity INTEGER NOT NULL,
	pnl_pct REAL NOT NULL,
	pnl_dollars REAL NOT NULL,
	reason TEXT NOT NULL,
	signal_score INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);
`

// SQLiteJournal persists Trade records to a local SQLite database.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the SQLite audit database at path.
func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}
	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordTrade(t Trade) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(symbol, entry_time, exit_time, entry_price, exit_price, quantity, pnl_pct, pnl_dollars, reason, signal_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Symbol, t.EntryTime, t.ExitTime, t.EntryPrice, t.ExitPrice,
		t.Quantity, t.PnLPct, t.PnLDollars, t.Reason, t.SignalScore,
	)
	return err
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

var _ Journal = (*SQLiteJournal)(nil)
