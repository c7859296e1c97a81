// Package paper implements a simulated fill engine satisfying
// internal/broker.Broker, adapted from the teacher's margin-FX sim.Engine
// down to a cash-equities model: no leverage, no margin calls, fills happen
// at the quote's same-side price (buys at the ask, sells at the bid); a limit
// order fills immediately at that price if marketable and otherwise rests as
// new. It is the default broker (config key `broker: paper`).
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kestrelalgo/momentum/internal/broker"
	"github.com/kestrelalgo/momentum/internal/market"
)

type openOrder struct {
	req    broker.OrderRequest
	status broker.OrderStatus
	filled float64
	avgPx  float64
}

// Engine is a mutex-guarded in-memory broker. All mutation happens under mu;
// the lock is always released before any external notification, mirroring
// the teacher's "unlock before notifying listener" discipline.
type Engine struct {
	mu sync.Mutex

	cash      float64
	positions map[string]*broker.PositionView
	quotes    map[string]broker.Quote
	bars      map[string][]market.Bar
	orders    map[string]*openOrder

	clock    broker.Clock
	onFill   func(symbol string, side broker.Side, qty, price float64)
}

// NewEngine creates a paper engine seeded with the given starting cash.
func NewEngine(startingCash float64) *Engine {
	return &Engine{
		cash:      startingCash,
		positions: make(map[string]*broker.PositionView),
		quotes:    make(map[string]broker.Quote),
		bars:      make(map[string][]market.Bar),
		orders:    make(map[string]*openOrder),
		clock:     broker.Clock{IsOpen: true},
	}
}

// SetFillListener registers a callback invoked after a fill completes, with
// the lock already released.
func (e *Engine) SetFillListener(fn func(symbol string, side broker.Side, qty, price float64)) {
	e.mu.Lock()
	e.onFill = fn
	e.mu.Unlock()
}

// SetClock overrides the simulated market clock (used by tests to exercise
// the EOD-liquidation exit trigger).
func (e *Engine) SetClock(c broker.Clock) {
	e.mu.Lock()
	e.clock = c
	e.mu.Unlock()
}

// SetQuote seeds or updates the top-of-book quote for a symbol.
func (e *Engine) SetQuote(symbol string, q broker.Quote) {
	e.mu.Lock()
	e.quotes[symbol] = q
	e.mu.Unlock()
}

// SetBars seeds the bar history a GetBars call will return.
func (e *Engine) SetBars(symbol string, bars []market.Bar) {
	e.mu.Lock()
	e.bars[symbol] = bars
	e.mu.Unlock()
}

func (e *Engine) GetClock(ctx context.Context) (broker.Clock, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock, nil
}

func (e *Engine) GetAccount(ctx context.Context) (broker.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	equity := e.cash
	for sym, p := range e.positions {
		if q, ok := e.quotes[sym]; ok {
			equity += p.Qty * q.Mid()
		}
	}
	return broker.Account{Equity: equity, Cash: e.cash}, nil
}

func (e *Engine) ListPositions(ctx context.Context) ([]broker.PositionView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]broker.PositionView, 0, len(e.positions))
	for _, p := range e.positions {
		if p.Qty != 0 {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (e *Engine) GetLatestQuote(ctx context.Context, symbol string) (broker.Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.quotes[symbol]
	if !ok {
		return broker.Quote{}, fmt.Errorf("paper: no quote seeded for %q", symbol)
	}
	return q, nil
}

func (e *Engine) GetBars(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Bar, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bars := e.bars[symbol]
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	out := make([]market.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

func (e *Engine) SubmitOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	e.mu.Lock()

	q, ok := e.quotes[req.Symbol]
	if !ok {
		e.mu.Unlock()
		return "", fmt.Errorf("paper: no quote for %q, cannot fill", req.Symbol)
	}

	fillPx := q.Ask
	if req.Side == broker.Sell {
		fillPx = q.Bid
	}
	if req.Type == broker.Limit {
		marketable := (req.Side == broker.Buy && req.LimitPrice >= q.Ask) ||
			(req.Side == broker.Sell && req.LimitPrice <= q.Bid)
		if !marketable {
			orderID := fmt.Sprintf("ord-%d-%s", len(e.orders)+1, req.ClientOrderID)
			e.orders[orderID] = &openOrder{req: req, status: broker.StatusNew}
			e.mu.Unlock()
			return orderID, nil
		}
	}

	orderID := fmt.Sprintf("ord-%d-%s", len(e.orders)+1, req.ClientOrderID)
	qtySigned := req.Qty
	if req.Side == broker.Sell {
		qtySigned = -req.Qty
	}

	p, ok := e.positions[req.Symbol]
	if !ok {
		p = &broker.PositionView{Symbol: req.Symbol}
		e.positions[req.Symbol] = p
	}
	p.AvgEntryPrice = weightedAvgEntry(p.Qty, p.AvgEntryPrice, qtySigned, fillPx)
	p.Qty += qtySigned
	e.cash -= qtySigned * fillPx

	e.orders[orderID] = &openOrder{req: req, status: broker.StatusFilled, filled: req.Qty, avgPx: fillPx}

	listener := e.onFill
	e.mu.Unlock()

	if listener != nil {
		listener(req.Symbol, req.Side, req.Qty, fillPx)
	}
	return orderID, nil
}

func weightedAvgEntry(existingQty, existingPx, deltaQty, deltaPx float64) float64 {
	if existingQty == 0 {
		return deltaPx
	}
	if existingQty > 0 && deltaQty > 0 {
		return (existingQty*existingPx + deltaQty*deltaPx) / (existingQty + deltaQty)
	}
	return existingPx
}

func (e *Engine) GetOrder(ctx context.Context, orderID string) (broker.OrderState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return broker.OrderState{}, fmt.Errorf("paper: unknown order %q", orderID)
	}
	return broker.OrderState{Status: o.status, FilledQty: o.filled, FilledAvgPrice: o.avgPx}, nil
}

func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return fmt.Errorf("paper: unknown order %q", orderID)
	}
	if o.status == broker.StatusNew {
		o.status = broker.StatusCanceled
	}
	return nil
}

// AdvanceTime nudges the simulated clock's NextClose field, used by tests
// exercising the EOD-liquidation exit trigger.
func (e *Engine) AdvanceTime(d time.Duration) {
	e.mu.Lock()
	e.clock.NextClose = e.clock.NextClose.Add(-d)
	e.mu.Unlock()
}

var _ broker.Broker = (*Engine)(nil)
