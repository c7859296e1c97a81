package riskrules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPositionSizePct_Boundaries(t *testing.T) {
	t.Parallel()
	cases := []struct {
		score int
		pct   float64
		tier  SizeTier
	}{
		{60, 0.05, TierStandard},
		{84, 0.05, TierStandard},
		{85, 0.07, TierStrong},
		{94, 0.07, TierStrong},
		{95, 0.10, TierMaximum},
		{100, 0.10, TierMaximum},
	}
	for _, c := range cases {
		pct, tier := PositionSizePct(c.score)
		assert.Equal(t, c.pct, pct, "score %d", c.score)
		assert.Equal(t, c.tier, tier, "score %d", c.score)
	}
}

func TestQuantity_HappyPathScenario(t *testing.T) {
	t.Parallel()
	// spec.md scenario 1: equity=100000, pct=0.05, mid=5.71 -> 875
	assert.Equal(t, 875, Quantity(100000, 0.05, 5.71))
}

func TestLimitBuyPrice_Scenario1(t *testing.T) {
	t.Parallel()
	// scenario 1: 5.71 * 1.005 = 5.73855, rounded to the cent -> 5.74
	got := LimitBuyPrice(5.71, 0.005)
	assert.InDelta(t, 5.74, got, 0.001)
}

func TestUpdateStop_BreakevenAndTrailingRatchet(t *testing.T) {
	t.Parallel()
	p := DefaultExitParams()

	// spec.md scenario 3: entry 10.00, stop 9.75
	peak, stop := UpdateStop(10.00, 10.00, 9.75, 10.50, p)
	assert.InDelta(t, 10.50, peak, 0.0001)
	assert.InDelta(t, 10.00, stop, 0.0001) // breakeven ratchet fires at +5%

	peak, stop = UpdateStop(10.00, peak, stop, 10.80, p)
	assert.InDelta(t, 10.80, peak, 0.0001)
	assert.InDelta(t, 10.584, stop, 0.001) // +8% is the 5% tier -> trail 2% below peak (10.80*0.98)

	peak, stop = UpdateStop(10.00, peak, stop, 10.40, p)
	assert.InDelta(t, 10.80, peak, 0.0001) // peak does not fall
	assert.InDelta(t, 10.584, stop, 0.001) // stop unchanged, never decreases
}

func TestEvaluateExit_StopLossVsTrailingStopClassification(t *testing.T) {
	t.Parallel()
	p := DefaultExitParams()
	now := time.Now()

	// scenario 4: entry 8.00, stop 7.80 (below entry) -> stop_loss
	reason, ok := EvaluateExit(ExitCheck{EntryPrice: 8.00, EntryTime: now.Add(-time.Minute), CurrentStop: 7.80}, 7.79, 1.0, now, time.Time{}, p)
	assert.True(t, ok)
	assert.Equal(t, ReasonStopLoss, reason)

	// ratcheted stop at/above entry -> trailing_stop
	reason, ok = EvaluateExit(ExitCheck{EntryPrice: 10.00, EntryTime: now.Add(-time.Minute), CurrentStop: 10.584}, 10.58, 1.0, now, time.Time{}, p)
	assert.True(t, ok)
	assert.Equal(t, ReasonTrailingStop, reason)
}

func TestEvaluateExit_Deceleration(t *testing.T) {
	t.Parallel()
	p := DefaultExitParams()
	now := time.Now()
	// scenario 5: +8% profit, acceleration 0.25 < 0.5
	reason, ok := EvaluateExit(ExitCheck{EntryPrice: 10.00, EntryTime: now.Add(-time.Minute), CurrentStop: 9.00}, 10.80, 0.25, now, time.Time{}, p)
	assert.True(t, ok)
	assert.Equal(t, ReasonDeceleration, reason)
}

func TestEvaluateExit_EOD(t *testing.T) {
	t.Parallel()
	p := DefaultExitParams()
	now := time.Now()
	close := now.Add(3 * time.Minute)
	reason, ok := EvaluateExit(ExitCheck{EntryPrice: 10.00, EntryTime: now.Add(-time.Hour), CurrentStop: 9.00}, 10.10, 2.0, now, close, p)
	assert.True(t, ok)
	assert.Equal(t, ReasonEOD, reason)
}

func TestEvaluateExit_NoTrigger(t *testing.T) {
	t.Parallel()
	p := DefaultExitParams()
	now := time.Now()
	_, ok := EvaluateExit(ExitCheck{EntryPrice: 10.00, EntryTime: now.Add(-time.Minute), CurrentStop: 9.00}, 10.05, 2.0, now, time.Time{}, p)
	assert.False(t, ok)
}
