// Package seller implements the Seller service (spec.md §4.5): it drains
// sell_signals.json in arrival order, executes a market sell for each
// triggered position, and finalizes bookkeeping (Trade record, position
// removal, cooldown) on fill. Adapted from original_source/core/seller.py's
// retry-then-escalate handling of a signal that repeatedly fails to fill.
package seller

import (
	"context"
	"log/slog"
	"time"

	"github.com/kestrelalgo/momentum/internal/broker"
	"github.com/kestrelalgo/momentum/internal/journal"
	"github.com/kestrelalgo/momentum/internal/state"
)

// maxAttempts is spec.md §4.5 step 5's "after 3 consecutive failures,
// escalate to ERROR log" threshold.
const maxAttempts = 3

// sellCooldown is spec.md §4.5 step 3's post-exit re-entry bar.
const sellCooldown = 15 * time.Minute

// Service drains sell_signals.json once per cycle.
type Service struct {
	Broker    broker.Broker
	Store     *state.Store
	Positions *state.PositionManager
	Cooldowns *state.CooldownManager
	Journal   journal.Journal // optional SQLite audit sink; nil disables it
	Log       *slog.Logger
}

// RunCycle processes every pending sell signal in arrival order, rewriting
// sell_signals.json once with whatever remains (spec.md §4.5 steps 1-5).
func (s *Service) RunCycle(ctx context.Context) error {
	signals, err := s.Store.LoadSellSignals()
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		return nil
	}

	remaining := make([]state.SellSignal, 0, len(signals))
	for _, sig := range signals {
		if s.processOne(ctx, sig) {
			continue // cleared: filled, or position already closed
		}
		sig.Attempts++
		if sig.Attempts >= maxAttempts {
			s.Log.Error("sell signal exhausted retries, escalating", "symbol", sig.Symbol, "reason", sig.Reason, "attempts", sig.Attempts)
		}
		remaining = append(remaining, sig)
	}

	return s.Store.RewriteSellSignals(remaining)
}

// processOne returns true if sig should be dropped from sell_signals.json
// (either it filled, or the broker no longer shows a position to sell).
func (s *Service) processOne(ctx context.Context, sig state.SellSignal) bool {
	brokerPositions, err := s.Broker.ListPositions(ctx)
	if err != nil {
		s.Log.Error("list positions failed", "symbol", sig.Symbol, "error", err)
		return false
	}
	var qty float64
	for _, bp := range brokerPositions {
		if bp.Symbol == sig.Symbol {
			qty = bp.Qty
			break
		}
	}
	if qty <= 0 {
		s.Log.Info("position already closed, dropping sell signal", "symbol", sig.Symbol)
		_ = s.Positions.Remove(sig.Symbol)
		return true
	}

	orderID, err := s.Broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: sig.Symbol,
		Qty:    qty,
		Side:   broker.Sell,
		Type:   broker.Market,
	})
	if err != nil {
		s.Log.Error("submit sell order failed", "symbol", sig.Symbol, "error", err)
		return false
	}

	filledQty, filledPrice, status, err := broker.PollOrder(ctx, s.Broker, orderID)
	if err != nil {
		s.Log.Error("poll sell order failed", "symbol", sig.Symbol, "error", err)
		return false
	}
	// spec.md §4.6's 30s cancel-remainder timeout can leave a sell partially
	// filled rather than fully filled; the shares that did execute still
	// need a Trade record and the remainder still needs tracking as an
	// open position, so treat a nonzero partial fill as progress rather
	// than a failed attempt.
	filled := status == broker.StatusFilled || (status == broker.StatusPartiallyFilled && filledQty > 0)
	if !filled {
		s.Log.Warn("sell order not filled", "symbol", sig.Symbol, "status", status)
		return false
	}
	if status == broker.StatusPartiallyFilled {
		s.Log.Warn("sell order partially filled, remainder canceled", "symbol", sig.Symbol, "filled_qty", filledQty, "requested_qty", qty)
	}

	s.finalize(sig, qty, filledQty, filledPrice)
	return true
}

func (s *Service) finalize(sig state.SellSignal, requestedQty, filledQty, filledPrice float64) {
	pos, ok, err := s.Positions.Get(sig.Symbol)
	if err != nil {
		s.Log.Error("load position for finalize failed", "symbol", sig.Symbol, "error", err)
	}

	now := time.Now()
	var entryPrice float64
	var entryTime time.Time
	var signalScore int
	if ok {
		entryPrice, entryTime, signalScore = pos.EntryPrice, pos.EntryTime, pos.SignalScore
	} else {
		entryPrice = filledPrice
		entryTime = now
	}

	pnlPct := 0.0
	if entryPrice > 0 {
		pnlPct = (filledPrice - entryPrice) / entryPrice
	}
	pnlDollars := (filledPrice - entryPrice) * filledQty

	trade := state.Trade{
		Symbol:      sig.Symbol,
		EntryTime:   entryTime,
		ExitTime:    now,
		EntryPrice:  entryPrice,
		ExitPrice:   filledPrice,
		Quantity:    int(filledQty),
		PnLPct:      pnlPct,
		PnLDollars:  pnlDollars,
		Reason:      sig.Reason,
		SignalScore: signalScore,
	}

	if err := s.Store.AppendTrade(trade); err != nil {
		s.Log.Error("append trade failed", "symbol", sig.Symbol, "error", err)
	}
	if s.Journal != nil {
		if err := s.Journal.RecordTrade(journal.Trade{
			Symbol:      trade.Symbol,
			EntryTime:   trade.EntryTime,
			ExitTime:    trade.ExitTime,
			EntryPrice:  trade.EntryPrice,
			ExitPrice:   trade.ExitPrice,
			Quantity:    trade.Quantity,
			PnLPct:      trade.PnLPct,
			PnLDollars:  trade.PnLDollars,
			Reason:      trade.Reason,
			SignalScore: trade.SignalScore,
		}); err != nil {
			s.Log.Error("journal record trade failed", "symbol", sig.Symbol, "error", err)
		}
	}

	residual := requestedQty - filledQty
	if ok && residual > 0 {
		// Only part of the position sold; leave the rest open at its prior
		// stop/peak rather than dropping it, so Monitor keeps managing it.
		pos.Quantity = int(residual)
		if err := s.Positions.Add(pos); err != nil {
			s.Log.Error("update residual position failed", "symbol", sig.Symbol, "error", err)
		}
		s.Log.Info("position partially closed, remainder still open", "symbol", sig.Symbol, "reason", sig.Reason, "filled_qty", filledQty, "residual_qty", residual, "pnl_pct", pnlPct, "pnl_dollars", pnlDollars)
		return
	}

	if err := s.Positions.Remove(sig.Symbol); err != nil {
		s.Log.Error("remove position failed", "symbol", sig.Symbol, "error", err)
	}
	if err := s.Cooldowns.Add(sig.Symbol, sellCooldown); err != nil {
		s.Log.Error("add cooldown failed", "symbol", sig.Symbol, "error", err)
	}

	s.Log.Info("position closed", "symbol", sig.Symbol, "reason", sig.Reason, "pnl_pct", pnlPct, "pnl_dollars", pnlDollars)
}
