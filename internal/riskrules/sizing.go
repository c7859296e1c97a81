// Package riskrules implements the Buyer's position-sizing tiers and the
// Monitor's exit-rule evaluation (spec.md §4.3, §4.4), grounded on the
// teacher's risk package: the percent-of-equity sizing style of
// risk/position.go and the Violation/Decision accumulator pattern of
// risk/checks.go, regrown from FX pip-based risk to equities momentum
// exits.
package riskrules

import (
	"math"

	"github.com/shopspring/decimal"
)

// SizeTier names the three position-size bands spec.md §4.3 defines.
type SizeTier string

const (
	TierStandard SizeTier = "standard" // score 60-84
	TierStrong   SizeTier = "strong"   // score 85-94
	TierMaximum  SizeTier = "maximum"  // score 95+
)

// PositionSizePct returns the percent-of-equity allocation and tier name for
// a given entry score, per spec.md §4.3's tier table. Boundaries are
// inclusive on the low end of each band (score==85 is STRONG, score==95 is
// MAXIMUM), matching spec.md §8's boundary-behavior testable property.
func PositionSizePct(score int) (pct float64, tier SizeTier) {
	switch {
	case score >= 95:
		return 0.10, TierMaximum
	case score >= 85:
		return 0.07, TierStrong
	default:
		return 0.05, TierStandard
	}
}

// Quantity computes floor(equity * pct / mid), the Buyer's share count.
func Quantity(equity, pct, mid float64) int {
	if mid <= 0 {
		return 0
	}
	return int(math.Floor(equity * pct / mid))
}

// RoundCurrency rounds a dollar amount to the nearest cent using
// shopspring/decimal rather than float64 rounding, to avoid the classic
// binary-float rounding surprises on limit-price and P&L calculations
// (e.g. round(mid*1.005, 2) in spec.md §4.3).
func RoundCurrency(value float64) float64 {
	d := decimal.NewFromFloat(value).Round(2)
	f, _ := d.Float64()
	return f
}

// LimitBuyPrice computes the Buyer's day-limit order price: mid plus the
// configured buffer, rounded to the cent (spec.md §4.3 step 6: "round(mid *
// 1.005, 2)").
func LimitBuyPrice(mid, bufferPct float64) float64 {
	return RoundCurrency(mid * (1 + bufferPct))
}
