package scanner

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/kestrelalgo/momentum/internal/broker"
	"github.com/kestrelalgo/momentum/internal/indicators"
	"github.com/kestrelalgo/momentum/internal/market"
	"github.com/kestrelalgo/momentum/internal/state"
)

const (
	rsiPeriod           = 14
	relativeVolumeLookback = 20
	fiveMinBarLimit     = 40
	twoMinBarLimit      = 40
)

// Service runs one Scanner cycle at a time, grounded on
// original_source/core/scanner.py's SignalScanner.scan_symbol/scan_universe,
// translated from its pandas Series computation into internal/indicators'
// streaming primitives over internal/market.Bar slices.
type Service struct {
	Broker     broker.Broker
	Store      *state.Store
	HotSignals *state.HotSignalNotifier
	Thresholds Thresholds
	Log        *slog.Logger
}

// loadedSymbol pairs a watchlist symbol with the premarket context Scanner
// needs for breakout/gap scoring (calculate_breakout's premarket_data dict).
type loadedSymbol struct {
	symbol        string
	premarketHigh float64
	priorClose    float64
	gapPct        float64
}

// LoadSymbols resolves today's scan universe: the DailyWatchlist if present,
// otherwise the first watchlistSize tickers of degradedFallback (spec.md
// §4.2 step 1). degradedFallback is the real base-universe ticker list,
// loaded by the caller via internal/universe.Locate/Load (cmd/run.go's
// runScanner) rather than by this package, since Service has no config root
// to search from.
func (s *Service) LoadSymbols(ctx context.Context, degradedFallback []string, watchlistSize int) ([]loadedSymbol, error) {
	wl, err := s.Store.LoadWatchlist()
	if err == nil && len(wl.Entries) > 0 {
		out := make([]loadedSymbol, 0, len(wl.Entries))
		for _, e := range wl.Entries {
			out = append(out, loadedSymbol{
				symbol:        e.Symbol,
				premarketHigh: e.PremarketHigh,
				priorClose:    e.PriorClose,
				gapPct:        e.GapPct,
			})
		}
		return out, nil
	}

	s.Log.Warn("no daily watchlist, falling back to base universe head", "error", err)
	n := watchlistSize
	if n > len(degradedFallback) {
		n = len(degradedFallback)
	}
	out := make([]loadedSymbol, 0, n)
	for _, sym := range degradedFallback[:n] {
		out = append(out, loadedSymbol{symbol: sym})
	}
	return out, nil
}

// RunCycle scans every symbol and atomically overwrites signals.json with
// survivors, ordered by spec.md §4.2.1's tie-break (score desc, relative
// volume desc, timestamp asc — trivially satisfied here since every signal
// in one cycle shares a timestamp).
func (s *Service) RunCycle(ctx context.Context, symbols []loadedSymbol, now time.Time) ([]state.Signal, error) {
	var signals []state.Signal
	for _, sym := range symbols {
		sig, ok := s.scanSymbol(ctx, sym, now)
		if !ok {
			continue
		}
		signals = append(signals, sig)

		if sig.Score >= 90 && s.HotSignals != nil {
			if _, err := s.HotSignals.NotifyHotSignal(sig); err != nil {
				s.Log.Error("notify hot signal", "symbol", sig.Symbol, "error", err)
			}
		}
	}

	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].Score != signals[j].Score {
			return signals[i].Score > signals[j].Score
		}
		return signals[i].RelativeVolume > signals[j].RelativeVolume
	})

	if err := s.Store.SaveSignals(signals); err != nil {
		return nil, err
	}
	return signals, nil
}

func (s *Service) scanSymbol(ctx context.Context, sym loadedSymbol, now time.Time) (state.Signal, bool) {
	bars5m, err := s.Broker.GetBars(ctx, sym.symbol, market.Timeframe5Min, fiveMinBarLimit)
	if err != nil || len(bars5m) < rsiPeriod {
		s.Log.Debug("insufficient 5min bars", "symbol", sym.symbol, "error", err)
		return state.Signal{}, false
	}
	bars2m, err := s.Broker.GetBars(ctx, sym.symbol, market.Timeframe2Min, twoMinBarLimit)
	if err != nil {
		s.Log.Debug("error fetching 2min bars", "symbol", sym.symbol, "error", err)
		bars2m = nil
	}

	currentPrice := bars5m[len(bars5m)-1].Close

	vwap := indicators.VWAP(bars5m)

	rsi := indicators.NewRSI(rsiPeriod)
	var rsiValue float64 = 50
	for _, b := range bars5m {
		rsiValue = rsi.Update(b.Close)
	}

	sessionHigh, sessionLow := sessionExtremes(bars5m)
	breakoutPct, breakoutRef := indicators.Breakout(currentPrice, sym.premarketHigh, sessionHigh, sym.priorClose, sessionLow)

	relativeVolume := indicators.RelativeVolume(bars5m, relativeVolumeLookback)

	score, ok := Score(s.Thresholds, currentPrice, vwap, rsiValue, breakoutPct, relativeVolume, sym.gapPct)
	if !ok {
		return state.Signal{}, false
	}

	sig := state.Signal{
		Symbol:         sym.symbol,
		Timestamp:      now,
		Price:          currentPrice,
		Score:          score,
		VWAP:           vwap,
		RSI:            rsiValue,
		BreakoutPct:    breakoutPct,
		BreakoutRef:    breakoutRef,
		RelativeVolume: relativeVolume,
		PremarketHigh:  sym.premarketHigh,
		GapPct:         sym.gapPct,
	}
	_ = bars2m // reserved for Monitor's acceleration check, not consumed here
	return sig, true
}

func sessionExtremes(bars []market.Bar) (high, low float64) {
	if len(bars) == 0 {
		return 0, 0
	}
	high, low = bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low
}
