package state

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelalgo/momentum/internal/broker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSignals_RoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	want := []Signal{{Symbol: "ABCD", Score: 91, Price: 5.71, Timestamp: time.Now().UTC().Truncate(time.Second)}}

	require.NoError(t, store.SaveSignals(want))
	got, err := store.LoadSignals()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPositions_AddGetRemove(t *testing.T) {
	store := NewStore(t.TempDir())
	pm := NewPositionManager(store, testLogger())

	p := Position{Symbol: "ABCD", Quantity: 100, EntryPrice: 5.71, StopLoss: 5.57}
	require.NoError(t, pm.Add(p))

	got, ok, err := pm.Get("ABCD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p, got)

	require.NoError(t, pm.Remove("ABCD"))
	_, ok, err = pm.Get("ABCD")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPositions_ReconcileWithBroker(t *testing.T) {
	store := NewStore(t.TempDir())
	pm := NewPositionManager(store, testLogger())

	require.NoError(t, pm.Add(Position{Symbol: "STALE", Quantity: 50, EntryPrice: 3.00}))

	reconciled, err := pm.ReconcileWithBroker([]broker.PositionView{
		{Symbol: "ABCD", Qty: 100, AvgEntryPrice: 5.71},
	})
	require.NoError(t, err)

	_, staleStillThere := reconciled["STALE"]
	assert.False(t, staleStillThere, "stale position not reported by broker should be dropped")

	adopted, ok := reconciled["ABCD"]
	require.True(t, ok, "broker position missing from file should be adopted")
	assert.Equal(t, 100, adopted.Quantity)
	assert.InDelta(t, 5.71*0.975, adopted.StopLoss, 0.0001)
}

func TestCooldownManager_AddExpireRemove(t *testing.T) {
	store := NewStore(t.TempDir())
	cm := NewCooldownManager(store, 15*time.Minute, testLogger())

	assert.False(t, cm.IsInCooldown("ABCD"))
	require.NoError(t, cm.Add("ABCD", 0))
	assert.True(t, cm.IsInCooldown("ABCD"))

	require.NoError(t, cm.Remove("ABCD"))
	assert.False(t, cm.IsInCooldown("ABCD"))
}

func TestCooldownManager_ExpiredEntryIsPruned(t *testing.T) {
	store := NewStore(t.TempDir())
	cm := NewCooldownManager(store, 15*time.Minute, testLogger())

	require.NoError(t, cm.Add("ABCD", -time.Minute))
	assert.False(t, cm.IsInCooldown("ABCD"))

	cooldowns, err := cm.load()
	require.NoError(t, err)
	_, stillPresent := cooldowns["ABCD"]
	assert.False(t, stillPresent, "expired cooldown should be pruned from the file")
}

func TestSellSignals_AppendOnlyThenRewrite(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.AppendSellSignal(SellSignal{Symbol: "ABCD", Reason: "stop_loss", Quantity: 100}))
	require.NoError(t, store.AppendSellSignal(SellSignal{Symbol: "WXYZ", Reason: "trailing_stop", Quantity: 50}))

	all, err := store.LoadSellSignals()
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, store.RewriteSellSignals(all[1:]))
	remaining, err := store.LoadSellSignals()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "WXYZ", remaining[0].Symbol)
}

func TestTrades_AppendOnly(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.AppendTrade(Trade{Symbol: "ABCD", Quantity: 100, Reason: "stop_loss"}))
	require.NoError(t, store.AppendTrade(Trade{Symbol: "WXYZ", Quantity: 50, Reason: "eod"}))

	trades, err := store.LoadTrades()
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "ABCD", trades[0].Symbol)
	assert.Equal(t, "WXYZ", trades[1].Symbol)
}

func TestHotSignalNotifier_ThresholdFreshnessAndProcessing(t *testing.T) {
	store := NewStore(t.TempDir())
	n := NewHotSignalNotifier(store, testLogger())

	wrote, err := n.NotifyHotSignal(Signal{Symbol: "LOW", Score: 61})
	require.NoError(t, err)
	assert.False(t, wrote, "a sub-threshold score must not be written as hot")

	wrote, err = n.NotifyHotSignal(Signal{Symbol: "ABCD", Score: 95})
	require.NoError(t, err)
	assert.True(t, wrote)

	got, err := n.CheckHotSignal()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ABCD", got.Symbol)

	require.NoError(t, n.MarkProcessed())
	got, err = n.CheckHotSignal()
	require.NoError(t, err)
	assert.Nil(t, got, "a processed hot signal must not be replayed")
}

func TestWatchlist_RoundTripAndSchemaGuard(t *testing.T) {
	store := NewStore(t.TempDir())
	wl := DailyWatchlist{
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		Entries:     []WatchlistEntry{{Symbol: "ABCD", GapPct: 0.08, Score: 91}},
	}
	require.NoError(t, store.SaveWatchlist(wl))

	got, err := store.LoadWatchlist()
	require.NoError(t, err)
	assert.Equal(t, wl, got)

	require.NoError(t, os.WriteFile(store.WatchlistPath(), []byte(`{"generated_at":"x","entries":[{"no_symbol":true}]}`), 0o644))
	_, err = store.LoadWatchlist()
	assert.Error(t, err, "a watchlist entry missing its symbol must fail schema validation")
}

func TestOrchestratorStatus_UpdateServiceStatusIsPerService(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.UpdateServiceStatus("buyer", func(s ServiceStatus) ServiceStatus {
		s.State = ServiceRunning
		s.PID = 1234
		return s
	}))
	require.NoError(t, store.UpdateServiceStatus("seller", func(s ServiceStatus) ServiceStatus {
		s.State = ServiceStarting
		return s
	}))

	status, err := store.LoadStatus()
	require.NoError(t, err)
	require.Len(t, status.Services, 2)
	assert.Equal(t, ServiceRunning, status.Services["buyer"].State)
	assert.Equal(t, 1234, status.Services["buyer"].PID)
	assert.Equal(t, ServiceStarting, status.Services["seller"].State)
}

func TestPIDFile_SaveLoadRemove(t *testing.T) {
	store := NewStore(t.TempDir())

	pid, err := store.LoadPID()
	require.NoError(t, err)
	assert.Equal(t, 0, pid)

	require.NoError(t, store.SavePID())
	pid, err = store.LoadPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, store.RemovePID())
	pid, err = store.LoadPID()
	require.NoError(t, err)
	assert.Equal(t, 0, pid)
}
