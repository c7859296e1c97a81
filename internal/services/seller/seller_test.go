package seller

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelalgo/momentum/internal/broker"
	"github.com/kestrelalgo/momentum/internal/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeBroker struct {
	broker.Broker
	positions []broker.PositionView
	orderID   string
	fillQty   float64
	fillPx    float64
	status    broker.OrderStatus
	submitErr error
}

func (f *fakeBroker) ListPositions(ctx context.Context) ([]broker.PositionView, error) {
	return f.positions, nil
}

func (f *fakeBroker) SubmitOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.orderID, nil
}

func (f *fakeBroker) GetOrder(ctx context.Context, orderID string) (broker.OrderState, error) {
	return broker.OrderState{Status: f.status, FilledQty: f.fillQty, FilledAvgPrice: f.fillPx}, nil
}

func (f *fakeBroker) CancelOrder(ctx context.Context, orderID string) error { return nil }

func newTestService(t *testing.T, fb *fakeBroker) (*Service, *state.Store) {
	t.Helper()
	store := state.NewStore(t.TempDir())
	positions := state.NewPositionManager(store, testLogger())
	cooldowns := state.NewCooldownManager(store, 15*time.Minute, testLogger())
	return &Service{
		Broker:    fb,
		Store:     store,
		Positions: positions,
		Cooldowns: cooldowns,
		Log:       testLogger(),
	}, store
}

func TestRunCycle_FillFinalizesTradeAndCooldown(t *testing.T) {
	fb := &fakeBroker{
		positions: []broker.PositionView{{Symbol: "ABCD", Qty: 100, AvgEntryPrice: 5.00}},
		orderID:   "order-1",
		fillQty:   100,
		fillPx:    4.87,
		status:    broker.StatusFilled,
	}
	svc, store := newTestService(t, fb)
	require.NoError(t, svc.Positions.Add(state.Position{Symbol: "ABCD", Quantity: 100, EntryPrice: 5.00, EntryTime: time.Now()}))
	require.NoError(t, store.AppendSellSignal(state.SellSignal{Symbol: "ABCD", Reason: "stop_loss", Quantity: 100}))

	require.NoError(t, svc.RunCycle(context.Background()))

	remaining, err := store.LoadSellSignals()
	require.NoError(t, err)
	assert.Empty(t, remaining)

	trades, err := store.LoadTrades()
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "ABCD", trades[0].Symbol)
	assert.InDelta(t, -0.026, trades[0].PnLPct, 0.001)

	_, ok, err := svc.Positions.Get("ABCD")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, svc.Cooldowns.IsInCooldown("ABCD"))
}

func TestRunCycle_PartialFillRecordsTradeAndKeepsResidualPosition(t *testing.T) {
	oldInterval, oldWait := broker.PollInterval, broker.MaxWait
	broker.PollInterval, broker.MaxWait = time.Millisecond, 5*time.Millisecond
	t.Cleanup(func() { broker.PollInterval, broker.MaxWait = oldInterval, oldWait })

	fb := &fakeBroker{
		positions: []broker.PositionView{{Symbol: "ABCD", Qty: 100, AvgEntryPrice: 5.00}},
		orderID:   "order-1",
		fillQty:   60,
		fillPx:    4.90,
		status:    broker.StatusPartiallyFilled,
	}
	svc, store := newTestService(t, fb)
	require.NoError(t, svc.Positions.Add(state.Position{Symbol: "ABCD", Quantity: 100, EntryPrice: 5.00, EntryTime: time.Now(), StopLoss: 4.80}))
	require.NoError(t, store.AppendSellSignal(state.SellSignal{Symbol: "ABCD", Reason: "stop_loss", Quantity: 100}))

	require.NoError(t, svc.RunCycle(context.Background()))

	remaining, err := store.LoadSellSignals()
	require.NoError(t, err)
	assert.Empty(t, remaining)

	trades, err := store.LoadTrades()
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 60, trades[0].Quantity)

	pos, ok, err := svc.Positions.Get("ABCD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 40, pos.Quantity)
	assert.Equal(t, 4.80, pos.StopLoss)

	assert.False(t, svc.Cooldowns.IsInCooldown("ABCD"))
}

func TestRunCycle_AlreadyClosedPositionDropsSignalWithoutTrade(t *testing.T) {
	fb := &fakeBroker{positions: nil}
	svc, store := newTestService(t, fb)
	require.NoError(t, store.AppendSellSignal(state.SellSignal{Symbol: "ABCD", Reason: "stop_loss", Quantity: 100}))

	require.NoError(t, svc.RunCycle(context.Background()))

	remaining, err := store.LoadSellSignals()
	require.NoError(t, err)
	assert.Empty(t, remaining)

	trades, err := store.LoadTrades()
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestRunCycle_NonFillLeavesSignalWithIncrementedAttempts(t *testing.T) {
	fb := &fakeBroker{
		positions: []broker.PositionView{{Symbol: "ABCD", Qty: 100, AvgEntryPrice: 5.00}},
		orderID:   "order-1",
		fillQty:   0,
		status:    broker.StatusRejected,
	}
	svc, store := newTestService(t, fb)
	require.NoError(t, store.AppendSellSignal(state.SellSignal{Symbol: "ABCD", Reason: "stop_loss", Quantity: 100}))

	require.NoError(t, svc.RunCycle(context.Background()))

	remaining, err := store.LoadSellSignals()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, 1, remaining[0].Attempts)
}

func TestRunCycle_ExhaustedRetriesStillKeepsSignalForEscalation(t *testing.T) {
	fb := &fakeBroker{
		positions: []broker.PositionView{{Symbol: "ABCD", Qty: 100, AvgEntryPrice: 5.00}},
		orderID:   "order-1",
		status:    broker.StatusRejected,
	}
	svc, store := newTestService(t, fb)
	require.NoError(t, store.AppendSellSignal(state.SellSignal{Symbol: "ABCD", Reason: "stop_loss", Quantity: 100, Attempts: 2}))

	require.NoError(t, svc.RunCycle(context.Background()))

	remaining, err := store.LoadSellSignals()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, 3, remaining[0].Attempts)
}
