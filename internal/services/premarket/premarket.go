// Package premarket implements the PreMarketScanner service (spec.md §4.1):
// once a morning, before the open, it scans the base universe for gappers
// and writes the ranked top N to daily_watchlist.json for the Scanner to
// pick up at the bell. Adapted from
// original_source/core/premarket_scanner.py's PreMarketScanner.scan_stock/
// scan_universe, with the universe-file discovery delegated to
// internal/universe.Locate/Load and the scoring formula to
// internal/universe.Score.
package premarket

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/kestrelalgo/momentum/internal/broker"
	"github.com/kestrelalgo/momentum/internal/market"
	"github.com/kestrelalgo/momentum/internal/state"
	"github.com/kestrelalgo/momentum/internal/universe"
)

const (
	avgVolumeDays      = 20
	premarketBarLimit  = 500
	priorCloseBarLimit = 2
)

// Thresholds bundles the premarket scan's spec.md §6.4 tunables.
type Thresholds struct {
	WatchlistSize     int
	MinGapPct         float64
	MinPremarketVol   float64
	MinRelativeVolume float64
	PriceMin          float64
	PriceMax          float64
}

// Service runs the once-a-morning premarket scan.
type Service struct {
	Broker     broker.Broker
	Store      *state.Store
	Thresholds Thresholds
	Log        *slog.Logger
}

// RunScan loads the base universe, scans every ticker, and writes the
// ranked top WatchlistSize to daily_watchlist.json (spec.md §4.1's 7-step
// selection process).
func (s *Service) RunScan(ctx context.Context, root, configuredUniversePath string, now time.Time) (state.DailyWatchlist, error) {
	path, err := universe.Locate(root, configuredUniversePath)
	if err != nil {
		s.Log.Warn("universe locate failed, using default universe", "error", err)
	}
	tickers, err := universe.Load(path)
	if err != nil {
		return state.DailyWatchlist{}, err
	}
	s.Log.Info("premarket scan starting", "universe_size", len(tickers))

	var candidates []state.WatchlistEntry
	for _, symbol := range tickers {
		entry, ok := s.scanStock(ctx, symbol)
		if !ok {
			continue
		}
		candidates = append(candidates, entry)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	n := s.Thresholds.WatchlistSize
	if n > len(candidates) {
		n = len(candidates)
	}
	top := candidates[:n]
	for i := range top {
		top[i].Rank = i + 1
	}

	wl := state.DailyWatchlist{GeneratedAt: now, Entries: top}
	if err := s.Store.SaveWatchlist(wl); err != nil {
		return state.DailyWatchlist{}, err
	}
	s.Log.Info("premarket scan complete", "candidates", len(candidates), "watchlist_size", len(top))
	return wl, nil
}

func (s *Service) scanStock(ctx context.Context, symbol string) (state.WatchlistEntry, bool) {
	priorClose, ok := s.priorClose(ctx, symbol)
	if !ok || priorClose <= 0 {
		return state.WatchlistEntry{}, false
	}

	pmPrice, pmHigh, pmVolume, ok := s.premarketData(ctx, symbol)
	if !ok {
		return state.WatchlistEntry{}, false
	}
	if pmPrice < s.Thresholds.PriceMin || pmPrice > s.Thresholds.PriceMax {
		return state.WatchlistEntry{}, false
	}

	gapPct := (pmPrice - priorClose) / priorClose
	if gapPct < s.Thresholds.MinGapPct {
		return state.WatchlistEntry{}, false
	}
	if pmVolume < s.Thresholds.MinPremarketVol {
		return state.WatchlistEntry{}, false
	}

	avgVolume := s.averageVolume(ctx, symbol)
	relativeVolume := 1.0
	if avgVolume > 0 {
		relativeVolume = universe.NormalizePremarketVolume(pmVolume) / avgVolume
	}
	if relativeVolume < s.Thresholds.MinRelativeVolume {
		return state.WatchlistEntry{}, false
	}

	score := universe.Score(gapPct, relativeVolume, 0)

	return state.WatchlistEntry{
		Symbol:          symbol,
		PriorClose:      priorClose,
		PremarketPrice:  pmPrice,
		PremarketHigh:   pmHigh,
		PremarketVolume: pmVolume,
		GapPct:          gapPct,
		RelativeVolume:  relativeVolume,
		FloatFactor:     1.0,
		Score:           score,
	}, true
}

func (s *Service) priorClose(ctx context.Context, symbol string) (float64, bool) {
	bars, err := s.Broker.GetBars(ctx, symbol, market.Timeframe1Day, priorCloseBarLimit)
	if err != nil || len(bars) == 0 {
		return 0, false
	}
	return bars[len(bars)-1].Close, true
}

func (s *Service) premarketData(ctx context.Context, symbol string) (price, high, volume float64, ok bool) {
	quote, err := s.Broker.GetLatestQuote(ctx, symbol)
	if err != nil {
		return 0, 0, 0, false
	}
	switch {
	case quote.Bid > 0 && quote.Ask > 0:
		price = quote.Mid()
	case quote.Ask > 0:
		price = quote.Ask
	case quote.Bid > 0:
		price = quote.Bid
	default:
		return 0, 0, 0, false
	}

	bars, err := s.Broker.GetBars(ctx, symbol, market.Timeframe1Min, premarketBarLimit)
	if err != nil || len(bars) == 0 {
		return price, price, 0, true
	}

	var vol, highPx float64
	highPx = bars[0].High
	for _, b := range bars {
		vol += b.Volume
		if b.High > highPx {
			highPx = b.High
		}
	}
	if price > highPx {
		highPx = price
	}
	return price, highPx, vol, true
}

func (s *Service) averageVolume(ctx context.Context, symbol string) float64 {
	bars, err := s.Broker.GetBars(ctx, symbol, market.Timeframe1Day, avgVolumeDays)
	if err != nil || len(bars) == 0 {
		return 0
	}
	var sum float64
	for _, b := range bars {
		sum += b.Volume
	}
	return sum / float64(len(bars))
}
