// Package indicators computes the technical indicators the Scanner and
// Monitor use to score entries and evaluate exits, grounded on
// original_source/core/indicators.py and shaped in the streaming style of
// the teacher's indicators.ADX (Update-consumes-next-value, Ready reports
// warmup completion) where state needs to persist across bars.
package indicators

import (
	"math"

	"github.com/kestrelalgo/momentum/internal/market"
)

// MinVelocity guards acceleration's denominator against division blowups
// when the market is essentially flat (original_source's MIN_VELOCITY).
const MinVelocity = 0.0001

// VWAP computes the cumulative volume-weighted average price over bars,
// i.e. cumulative(typical_price*volume) / cumulative(volume). Returns 0 if
// bars is empty or cumulative volume is zero.
func VWAP(bars []market.Bar) float64 {
	var tpVol, vol float64
	for _, b := range bars {
		tpVol += b.TypicalPrice() * b.Volume
		vol += b.Volume
	}
	if vol == 0 {
		return 0
	}
	return tpVol / vol
}

// RSI implements a streaming RSI(period) using exponentially weighted
// average gains/losses with pandas' ewm(span=period, adjust=False)
// recurrence: avg = alpha*delta + (1-alpha)*avg_prev, alpha = 2/(period+1).
// A zero average loss is floored at 0.0001 to avoid a divide by zero,
// exactly as original_source/core/indicators.py does.
type RSI struct {
	period int
	alpha  float64

	haveClose bool
	prevClose float64

	avgGain float64
	avgLoss float64

	seen  int
	ready bool
}

// NewRSI constructs a streaming RSI indicator for the given period (14 per
// spec.md's GLOSSARY).
func NewRSI(period int) *RSI {
	return &RSI{period: period, alpha: 2.0 / (float64(period) + 1.0)}
}

// Update consumes the next closing price and returns the current RSI value.
// A value is produced from the second close on — matching the original's
// ewm-based computation (the adjust=False recurrence rather than a fixed
// warmup window) — while Ready() only becomes true after period+1 closes.
func (r *RSI) Update(close float64) float64 {
	if !r.haveClose {
		r.haveClose = true
		r.prevClose = close
		r.seen = 1
		return 50 // original_source defaults short series to 50
	}

	delta := close - r.prevClose
	r.prevClose = close
	r.seen++

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else if delta < 0 {
		loss = -delta
	}

	if r.seen == 2 {
		r.avgGain = gain
		r.avgLoss = loss
	} else {
		r.avgGain = r.alpha*gain + (1-r.alpha)*r.avgGain
		r.avgLoss = r.alpha*loss + (1-r.alpha)*r.avgLoss
	}

	avgLoss := r.avgLoss
	if avgLoss == 0 {
		avgLoss = 0.0001
	}

	rs := r.avgGain / avgLoss
	r.ready = r.seen >= r.period+1
	return 100 - (100 / (1 + rs))
}

// Ready reports whether enough closes have been seen for a stable RSI
// (period+1 observations), matching the original's "len(prices) < period+1"
// fallback-to-50 guard.
func (r *RSI) Ready() bool { return r.ready }

// RelativeVolume divides the latest bar's volume by the mean volume of the
// lookback bars preceding it (20 per spec.md's GLOSSARY). Returns 1.0 if
// there is no history or the average is zero, matching the original.
func RelativeVolume(bars []market.Bar, lookback int) float64 {
	if len(bars) < 2 {
		return 1.0
	}
	current := bars[len(bars)-1].Volume
	history := bars[:len(bars)-1]
	n := lookback
	if n > len(history) {
		n = len(history)
	}
	window := history[len(history)-n:]

	var sum float64
	for _, b := range window {
		sum += b.Volume
	}
	avg := sum / float64(len(window))
	if avg == 0 {
		return 1.0
	}
	return current / avg
}

// BreakoutRef names which reference price a breakout percentage was computed
// against, per spec.md §4.2 step 4's fixed priority order.
type BreakoutRef string

const (
	RefPremarketHigh BreakoutRef = "premarket_high"
	RefSessionHigh   BreakoutRef = "session_high"
	RefPriorClose    BreakoutRef = "prior_close"
	RefSessionLow    BreakoutRef = "session_low"
)

// Breakout picks the best available reference in the fixed priority order
// spec.md §4.2 step 4 and §9 fix — premarket high, then session high (used
// only when there is no premarket high, so withinGuard's 1% check never
// rejects it here), then prior close, and
// finally (last resort, carried from original_source/core/indicators.py,
// not excluded by spec.md) the session low — and returns the breakout
// percentage against it plus which reference was used.
func Breakout(currentPrice float64, premarketHigh, sessionHigh, priorClose, sessionLow float64) (pct float64, ref BreakoutRef) {
	switch {
	case premarketHigh > 0:
		return breakoutPct(currentPrice, premarketHigh), RefPremarketHigh
	case sessionHigh > 0 && withinGuard(sessionHigh, premarketHigh):
		return breakoutPct(currentPrice, sessionHigh), RefSessionHigh
	case priorClose > 0:
		return breakoutPct(currentPrice, priorClose), RefPriorClose
	case sessionLow > 0:
		return breakoutPct(currentPrice, sessionLow), RefSessionLow
	default:
		return 0, ""
	}
}

func withinGuard(sessionHigh, premarketHigh float64) bool {
	if premarketHigh <= 0 {
		return true
	}
	return math.Abs(sessionHigh-premarketHigh)/premarketHigh <= 0.01
}

func breakoutPct(current, reference float64) float64 {
	if reference <= 0 {
		return 0
	}
	return (current - reference) / reference
}

// Velocity is the average per-period percentage price change over periods
// bars of a series (spec.md GLOSSARY): (close[-1]-close[-(periods+1)]) /
// close[-(periods+1)] / periods.
func Velocity(bars []market.Bar, periods int) float64 {
	if len(bars) < periods+1 {
		return 0
	}
	start := bars[len(bars)-(periods+1)].Close
	end := bars[len(bars)-1].Close
	if start <= 0 {
		return 0
	}
	return ((end - start) / start) / float64(periods)
}

// Acceleration is the ratio of a 2-minute-bar velocity to a 5-minute-bar
// velocity (spec.md GLOSSARY: "< 1 means momentum is fading"). Guarded
// against a near-zero denominator per original_source's MIN_VELOCITY: a
// fading-to-flat longer-horizon velocity is treated as "still accelerating"
// when the short-horizon velocity is positive, and as "not accelerating"
// otherwise.
func Acceleration(velocity2Min, velocity5Min float64) float64 {
	if math.Abs(velocity5Min) < MinVelocity {
		if velocity2Min > 0 {
			return 1.0
		}
		return 0.0
	}
	return velocity2Min / velocity5Min
}

// IsAboveVWAP reports whether price is strictly above vwap.
func IsAboveVWAP(price, vwap float64) bool { return price > vwap }

// RSIInRange reports whether rsi falls in [min, max] inclusive.
func RSIInRange(rsi, min, max float64) bool {
	return rsi >= min && rsi <= max
}
