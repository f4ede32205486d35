package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalyst/internal/trade"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testOrder() trade.NormalizedOrder {
	return trade.NormalizedOrder{
		Intent:     trade.TradeIntent{ID: "intent-1", Symbol: "700"},
		Symbol:     "700",
		Side:       trade.SideLong,
		EntryType:  trade.OrderTypeLimit,
		Quantity:   400,
		EntryPrice: dec("380.4"),
		StopLoss:   dec("370.2"),  // risk 10.2/share, 4080 total
		TakeProfit: dec("405.8"),  // reward 25.4/share, rr 2.49
	}
}

func testSnapshot() trade.PortfolioSnapshot {
	return trade.PortfolioSnapshot{
		Equity:      dec("1000000"),
		Cash:        dec("1000000"),
		BuyingPower: dec("1000000"),
		DailyPnL:    decimal.Zero,
		TakenAt:     time.Now(),
	}
}

func testLimits() Limits {
	l := DefaultLimits()
	l.Version = 3
	return l
}

func TestEvaluateApproves(t *testing.T) {
	gate := NewGate()
	approved, err := gate.Evaluate(testOrder(), testSnapshot(), testLimits())
	require.NoError(t, err)
	require.NotNil(t, approved)

	assert.Equal(t, "700", approved.Order().Symbol)
	assert.Equal(t, 3, approved.LimitsVersion())
	assert.False(t, approved.ApprovedAt().IsZero())
}

func TestEvaluateRejectsMaxPositions(t *testing.T) {
	snap := testSnapshot()
	snap.OpenSymbols = []string{"1", "2", "3", "4", "5"}

	_, err := NewGate().Evaluate(testOrder(), snap, testLimits())
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, RuleMaxPositions, rej.Rule)
}

func TestEvaluateRejectsDuplicateSymbol(t *testing.T) {
	snap := testSnapshot()
	snap.OpenSymbols = []string{"700"}

	_, err := NewGate().Evaluate(testOrder(), snap, testLimits())
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, RuleDuplicateSymbol, rej.Rule)
}

func TestEvaluateAllowsPyramidingWhenEnabled(t *testing.T) {
	snap := testSnapshot()
	snap.OpenSymbols = []string{"700"}
	limits := testLimits()
	limits.AllowPyramiding = true

	_, err := NewGate().Evaluate(testOrder(), snap, limits)
	require.NoError(t, err)
}

func TestEvaluateRejectsOversizedPosition(t *testing.T) {
	snap := testSnapshot()
	snap.Equity = dec("500000") // 152k notional is > 20%

	_, err := NewGate().Evaluate(testOrder(), snap, testLimits())
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, RuleMaxPositionPct, rej.Rule)
}

func TestEvaluateRejectsInsufficientBuyingPower(t *testing.T) {
	snap := testSnapshot()
	snap.BuyingPower = dec("100000")

	_, err := NewGate().Evaluate(testOrder(), snap, testLimits())
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, RuleBuyingPower, rej.Rule)
}

func TestEvaluateRejectsLowRiskReward(t *testing.T) {
	o := testOrder()
	o.TakeProfit = dec("390.4") // reward 10/share vs risk 10.2

	_, err := NewGate().Evaluate(o, testSnapshot(), testLimits())
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, RuleMinRiskReward, rej.Rule)
}

func TestEvaluateRejectsProjectedDailyLoss(t *testing.T) {
	snap := testSnapshot()
	// Already down 1.7%; stopping out this trade would cross -2%.
	snap.DailyPnL = dec("-17000")

	_, err := NewGate().Evaluate(testOrder(), snap, testLimits())
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, RuleMaxDailyLoss, rej.Rule)
}

func TestEvaluateRejectsPerTradeRisk(t *testing.T) {
	o := testOrder()
	o.Quantity = 400
	snap := testSnapshot()
	snap.Equity = dec("300000")
	snap.BuyingPower = dec("300000")
	limits := testLimits()
	limits.MaxPositionPct = 0.99 // keep sizing rule out of the way

	// 4080 risk on 300k equity is 1.36%, past the 1% per-trade cap.
	_, err := NewGate().Evaluate(o, snap, limits)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, RuleMaxTradeLoss, rej.Rule)
}

func TestEvaluateRejectsDustPosition(t *testing.T) {
	o := testOrder()
	o.Quantity = 400
	o.EntryPrice = dec("20")
	o.StopLoss = dec("19.8")
	o.TakeProfit = dec("20.5")

	_, err := NewGate().Evaluate(o, testSnapshot(), testLimits())
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, RuleMinPositionValue, rej.Rule)
}

func TestEvaluateRejectsWideStop(t *testing.T) {
	o := testOrder()
	o.StopLoss = dec("350")   // 8% from entry
	o.TakeProfit = dec("450") // keep risk/reward above the floor
	limits := testLimits()
	limits.MaxTradeLossPct = 0.05 // keep the per-trade rule out of the way

	_, err := NewGate().Evaluate(o, testSnapshot(), limits)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, RuleMaxStopDistance, rej.Rule)
}

func TestEvaluateRejectsOverTrading(t *testing.T) {
	snap := testSnapshot()
	snap.DailyTrades = 10

	_, err := NewGate().Evaluate(testOrder(), snap, testLimits())
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, RuleMaxDailyTrades, rej.Rule)
}

func TestEvaluateRejectionSurvivesTighterLimits(t *testing.T) {
	o := testOrder()
	snap := testSnapshot()
	snap.Equity = dec("500000") // oversized at the 20% cap

	_, err := NewGate().Evaluate(o, snap, testLimits())
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, RuleMaxPositionPct, rej.Rule)

	// Tightening every limit must never turn a rejection into an
	// approval; at most an earlier rule fires instead.
	tighter := testLimits()
	tighter.MaxPositions = 1
	tighter.MaxPositionPct = 0.05
	tighter.MaxDailyLossPct = 0.01
	tighter.MaxTradeLossPct = 0.005
	tighter.MinRiskReward = 3.0
	tighter.MaxStopDistancePct = 0.01
	tighter.MaxDailyTrades = 1

	_, err = NewGate().Evaluate(o, snap, tighter)
	require.ErrorAs(t, err, &rej)
}

func TestEvaluateShortCircuitsInOrder(t *testing.T) {
	// Both max positions and duplicate symbol are violated; the count
	// rule runs first.
	snap := testSnapshot()
	snap.OpenSymbols = []string{"700", "9988", "3690", "1810", "2318"}

	_, err := NewGate().Evaluate(testOrder(), snap, testLimits())
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, RuleMaxPositions, rej.Rule)
}
