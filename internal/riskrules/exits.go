package riskrules

import "time"

// ExitReason enumerates why a Position should be sold. Matches spec.md §3's
// SellSignal.reason domain, plus the two supplemental time-based reasons
// from original_source/core/monitor.py (SPEC_FULL.md §4).
type ExitReason string

const (
	ReasonStopLoss     ExitReason = "stop_loss"
	ReasonTrailingStop ExitReason = "trailing_stop"
	ReasonDeceleration ExitReason = "deceleration"
	ReasonEOD          ExitReason = "eod"
	ReasonStagnant     ExitReason = "stagnant"
	ReasonUnderperform ExitReason = "underperform"
)

// TrailingTier is one row of the profit-to-trailing-percentage table.
type TrailingTier struct {
	ProfitAtLeast float64
	TrailPct      float64
}

// TrailingTiers is spec.md §4.4's four-row table extended with the three
// additional rows from original_source/config/config.py's
// TRAILING_STOP_LEVELS (30%→7%, 50%→10%, 100%→15%), sorted descending so the
// first matching row is the highest (tightest) tier that applies.
var TrailingTiers = []TrailingTier{
	{1.00, 0.15},
	{0.50, 0.10},
	{0.30, 0.07},
	{0.20, 0.05},
	{0.15, 0.04},
	{0.10, 0.03},
	{0.05, 0.02},
}

// ExitParams bundles the tunables from spec.md §6.4 that exit evaluation
// needs, decoupling riskrules from the config package.
type ExitParams struct {
	StopLossPct           float64       // 0.025
	BreakevenProfit        float64       // 0.05
	DecelExitThreshold      float64       // 0.5
	MinProfitForDecelCheck float64       // 0.05
	EODWindow              time.Duration // 5 * time.Minute
	StagnantAfter          time.Duration // 30 * time.Minute
	StagnantMoveThreshold  float64       // 0.01
	UnderperformAfter      time.Duration // 60 * time.Minute
	UnderperformProfitMax  float64       // 0.02
}

// DefaultExitParams returns spec.md §6.4's defaults plus the SPEC_FULL.md §4
// supplemental stagnation thresholds.
func DefaultExitParams() ExitParams {
	return ExitParams{
		StopLossPct:            0.025,
		BreakevenProfit:        0.05,
		DecelExitThreshold:     0.5,
		MinProfitForDecelCheck: 0.05,
		EODWindow:              5 * time.Minute,
		StagnantAfter:          30 * time.Minute,
		StagnantMoveThreshold:  0.01,
		UnderperformAfter:      60 * time.Minute,
		UnderperformProfitMax:  0.02,
	}
}

// InitialStop is the protective stop set at fill time (spec.md §4.3:
// filled_price * (1 - STOP_LOSS_PCT)).
func InitialStop(entryPrice float64, p ExitParams) float64 {
	return entryPrice * (1 - p.StopLossPct)
}

// UpdateStop applies spec.md §4.4 step 3 in order: advance the peak, then
// the break-even ratchet, then the tiered trailing stop — each only ever
// raising current_stop (the monotonic-non-decreasing invariant, spec.md §3
// rule 3). It returns the new peak and stop; callers persist the stop only
// when it strictly increased (spec.md §4.4's "Invariant enforcement").
func UpdateStop(entryPrice, peakPrice, currentStop, currentPrice float64, p ExitParams) (newPeak, newStop float64) {
	newPeak = peakPrice
	if currentPrice > newPeak {
		newPeak = currentPrice
	}

	newStop = currentStop
	if newPeak/entryPrice >= 1+p.BreakevenProfit {
		newStop = max(newStop, entryPrice)
	}

	profit := newPeak/entryPrice - 1
	for _, tier := range TrailingTiers {
		if profit >= tier.ProfitAtLeast {
			newStop = max(newStop, newPeak*(1-tier.TrailPct))
			break
		}
	}

	return newPeak, newStop
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// ExitCheck is everything EvaluateExit needs about one open Position.
type ExitCheck struct {
	EntryPrice   float64
	EntryTime    time.Time
	CurrentStop  float64
	Velocity2Min float64
	Velocity5Min float64
}

// EvaluateExit runs spec.md §4.4 step 4's "first match wins" trigger list,
// then (enrichment, SPEC_FULL.md §4) the two time-based stagnation triggers,
// against currentPrice/now/sessionClose. ok is false if no trigger fired.
//
// The deceleration ratio itself (2-minute velocity over 5-minute velocity)
// must be computed by the caller via internal/indicators.Velocity/
// Acceleration over the respective bar series — this function only applies
// the threshold comparisons so it stays a pure, easily-tested decision.
func EvaluateExit(c ExitCheck, currentPrice float64, acceleration float64, now, sessionClose time.Time, p ExitParams) (reason ExitReason, ok bool) {
	if currentPrice <= c.CurrentStop {
		if c.CurrentStop < c.EntryPrice {
			return ReasonStopLoss, true
		}
		return ReasonTrailingStop, true
	}

	profit := currentPrice/c.EntryPrice - 1
	if profit >= p.MinProfitForDecelCheck && acceleration < p.DecelExitThreshold {
		return ReasonDeceleration, true
	}

	if !sessionClose.IsZero() && sessionClose.Sub(now) <= p.EODWindow {
		return ReasonEOD, true
	}

	heldFor := now.Sub(c.EntryTime)
	absMove := currentPrice/c.EntryPrice - 1
	if absMove < 0 {
		absMove = -absMove
	}
	if heldFor >= p.StagnantAfter && absMove < p.StagnantMoveThreshold {
		return ReasonStagnant, true
	}
	if heldFor >= p.UnderperformAfter && profit < p.UnderperformProfitMax {
		return ReasonUnderperform, true
	}

	return "", false
}
