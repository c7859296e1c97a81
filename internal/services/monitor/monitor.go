// Package monitor implements the Monitor service (spec.md §4.4): it
// reconciles open positions against the broker, advances each position's
// peak/stop, and emits a SellSignal the first time an exit trigger fires.
// Adapted from original_source/core/monitor.py's PositionMonitor, with the
// ratchet/trigger math factored out into internal/riskrules so this file is
// pure orchestration: fetch, call, persist.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/kestrelalgo/momentum/internal/broker"
	"github.com/kestrelalgo/momentum/internal/indicators"
	"github.com/kestrelalgo/momentum/internal/market"
	"github.com/kestrelalgo/momentum/internal/riskrules"
	"github.com/kestrelalgo/momentum/internal/state"
	"github.com/kestrelalgo/momentum/internal/streamquote"
)

const (
	velocityShortPeriods = 2
	velocityLongPeriods  = 5
	barsForVelocity      = 10
)

// Service runs one Monitor cycle at a time.
type Service struct {
	Broker    broker.Broker
	Store     *state.Store
	Positions *state.PositionManager
	Params    riskrules.ExitParams
	Log       *slog.Logger

	// Quotes, if non-nil, is consulted before falling back to a REST quote
	// call (SPEC_FULL.md §4 item 2's real-time streaming with REST
	// fallback). Nil disables streaming entirely and every cycle goes
	// straight to the broker's REST endpoint, same as before Quotes existed.
	Quotes *streamquote.Manager
}

// RunCycle reconciles positions.json against the broker, evaluates every
// remaining open position's exit rules, and appends any newly-triggered
// SellSignal (spec.md §4.4 steps 1-5).
func (s *Service) RunCycle(ctx context.Context, now time.Time) error {
	brokerPositions, err := s.Broker.ListPositions(ctx)
	if err != nil {
		return err
	}
	positions, err := s.Positions.ReconcileWithBroker(brokerPositions)
	if err != nil {
		return err
	}

	clock, err := s.Broker.GetClock(ctx)
	if err != nil {
		s.Log.Warn("clock fetch failed, EOD exit check disabled this cycle", "error", err)
	}

	if s.Quotes != nil {
		symbols := make([]string, 0, len(positions))
		for symbol := range positions {
			symbols = append(symbols, symbol)
		}
		if err := s.Quotes.Subscribe(symbols); err != nil {
			s.Log.Warn("quote stream subscribe failed", "error", err)
		}
	}

	for symbol, pos := range positions {
		if err := s.evaluateOne(ctx, symbol, pos, now, clock.NextClose); err != nil {
			s.Log.Error("evaluate position failed", "symbol", symbol, "error", err)
		}
	}
	return nil
}

func (s *Service) evaluateOne(ctx context.Context, symbol string, pos state.Position, now time.Time, sessionClose time.Time) error {
	quote, err := streamquote.GetQuote(ctx, s.Quotes, symbol, s.Broker.GetLatestQuote)
	if err != nil {
		return err
	}
	currentPrice := quote.Mid()
	if currentPrice <= 0 {
		return nil
	}

	bars2m, err := s.Broker.GetBars(ctx, symbol, market.Timeframe2Min, barsForVelocity)
	if err != nil {
		s.Log.Debug("2min bars fetch failed", "symbol", symbol, "error", err)
	}
	bars5m, err := s.Broker.GetBars(ctx, symbol, market.Timeframe5Min, barsForVelocity)
	if err != nil {
		s.Log.Debug("5min bars fetch failed", "symbol", symbol, "error", err)
	}
	velocity2Min := indicators.Velocity(bars2m, velocityShortPeriods)
	velocity5Min := indicators.Velocity(bars5m, velocityLongPeriods)
	acceleration := indicators.Acceleration(velocity2Min, velocity5Min)

	newPeak, newStop := riskrules.UpdateStop(pos.EntryPrice, pos.PeakPrice, pos.StopLoss, currentPrice, s.Params)

	stopIncreased := newStop > pos.StopLoss
	if newPeak != pos.PeakPrice || stopIncreased || acceleration != pos.Acceleration {
		pos.PeakPrice = newPeak
		pos.Acceleration = acceleration
		if stopIncreased {
			pos.StopLoss = newStop
		}
		if err := s.Positions.Add(pos); err != nil {
			return err
		}
	}

	check := riskrules.ExitCheck{
		EntryPrice:   pos.EntryPrice,
		EntryTime:    pos.EntryTime,
		CurrentStop:  pos.StopLoss,
		Velocity2Min: velocity2Min,
		Velocity5Min: velocity5Min,
	}
	reason, triggered := riskrules.EvaluateExit(check, currentPrice, acceleration, now, sessionClose, s.Params)
	if !triggered {
		return nil
	}

	s.Log.Info("exit triggered", "symbol", symbol, "reason", reason, "price", currentPrice, "stop", pos.StopLoss)
	return s.Store.AppendSellSignal(state.SellSignal{
		Symbol:      symbol,
		Reason:      string(reason),
		Quantity:    pos.Quantity,
		CurrentStop: pos.StopLoss,
		CreatedAt:   now,
	})
}
