// Package scanner implements the intraday signal scanner (spec.md §4.2):
// every cycle it scores each DailyWatchlist symbol on VWAP/RSI/breakout/
// volume and writes the survivors to signals.json. Adapted from
// original_source/core/scanner.py's SignalScanner, with the Python
// ad-hoc dict-of-metrics scoring broken out into a pure, table-driven
// Score function so it is independently testable against spec.md
// §4.2.1 and §8's boundary scenarios.
package scanner

// Thresholds bundles the tunables Score needs from spec.md §6.4, decoupling
// the scanner package from internal/config.
type Thresholds struct {
	RequireAboveVWAP  bool
	MinBreakoutPct    float64
	MinRelativeVolume float64
	RSIMin            float64
	RSIMax            float64
	MinEntryScore     int
}

// Score implements spec.md §4.2.1's rubric: four required criteria worth 60
// points total (any failing one means "emit nothing" — score 0, ok false),
// then four additive bonus criteria worth up to 35 more. The result is only
// "ok" if every required criterion passed AND the total clears
// t.MinEntryScore.
func Score(t Thresholds, currentPrice, vwap, rsi, breakoutPct, relativeVolume, gapPct float64) (score int, ok bool) {
	if t.RequireAboveVWAP && currentPrice <= vwap {
		return 0, false
	}
	score += 15

	if breakoutPct < t.MinBreakoutPct {
		return 0, false
	}
	score += 20

	if relativeVolume < t.MinRelativeVolume {
		return 0, false
	}
	score += 15

	if rsi < t.RSIMin || rsi > t.RSIMax {
		return 0, false
	}
	score += 10

	// Bonus criteria (additive, do not gate acceptance).
	if breakoutPct >= 0.03 {
		score += 10
	}
	if relativeVolume >= 4.0 {
		score += 10
	}
	if rsi >= 50 && rsi <= 65 {
		score += 5
	}
	if gapPct >= 0.05 {
		score += 10
	}

	if score < t.MinEntryScore {
		return score, false
	}
	return score, true
}
