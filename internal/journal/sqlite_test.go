package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteJournal_RecordTrade_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	defer j.Close()

	trade := Trade{
		Symbol:      "AAPL",
		EntryTime:   time.Date(2026, 8, 6, 9, 35, 0, 0, time.UTC),
		ExitTime:    time.Date(2026, 8, 6, 10, 5, 0, 0, time.UTC),
		EntryPrice:  100,
		ExitPrice:   104.5,
		Quantity:    10,
		PnLPct:      0.045,
		PnLDollars:  45,
		Reason:      "trailing_stop",
		SignalScore: 78,
	}
	require.NoError(t, j.RecordTrade(trade))

	var count int
	require.NoError(t, j.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE symbol = ?`, "AAPL").Scan(&count))
	assert.Equal(t, 1, count)

	var reason string
	var pnlDollars float64
	require.NoError(t, j.db.QueryRow(`SELECT reason, pnl_dollars FROM trades WHERE symbol = ?`, "AAPL").Scan(&reason, &pnlDollars))
	assert.Equal(t, "trailing_stop", reason)
	assert.Equal(t, 45.0, pnlDollars)
}

func TestSQLiteJournal_ReopeningExistingFile_ReusesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.db")

	j1, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, j1.RecordTrade(Trade{Symbol: "MSFT", Quantity: 1}))
	require.NoError(t, j1.Close())

	j2, err := NewSQLite(path)
	require.NoError(t, err)
	defer j2.Close()

	var count int
	require.NoError(t, j2.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE symbol = ?`, "MSFT").Scan(&count))
	assert.Equal(t, 1, count, "row must survive reopen")
}
