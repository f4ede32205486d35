package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"catalyst/internal/logger"
	"catalyst/internal/trade"
)

// Rule identifiers returned in Rejection. The first six run in a fixed
// order and short-circuit; the remainder are supplementary account
// hygiene checks evaluated after them.
const (
	RuleMaxPositions    = "max_positions"
	RuleDuplicateSymbol = "duplicate_symbol"
	RuleMaxPositionPct  = "max_position_pct"
	RuleBuyingPower     = "buying_power"
	RuleMinRiskReward   = "min_risk_reward"
	RuleMaxDailyLoss    = "max_daily_loss"

	RuleMaxTradeLoss     = "max_trade_loss"
	RuleMinPositionValue = "min_position_value"
	RuleMaxStopDistance  = "max_stop_distance"
	RuleMaxDailyTrades   = "max_daily_trades"
)

// Rejection is returned when the gate declines a trade. It is an error
// so callers can surface it directly, and carries the failing rule so
// they can pattern-match instead of probing strings.
type Rejection struct {
	Rule   string
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("risk rejection [%s]: %s", r.Rule, r.Detail)
}

// ApprovedOrder proves an order passed the gate. Only Evaluate can
// construct one; the engine's submit path takes this type, so an
// unapproved order cannot reach the broker by construction.
type ApprovedOrder struct {
	order         trade.NormalizedOrder
	limitsVersion int
	approvedAt    time.Time
}

func (a ApprovedOrder) Order() trade.NormalizedOrder { return a.order }
func (a ApprovedOrder) LimitsVersion() int           { return a.limitsVersion }
func (a ApprovedOrder) ApprovedAt() time.Time        { return a.approvedAt }

// Gate validates proposed trades against the active limits and the
// current portfolio snapshot. It holds no state of its own: limits are
// passed in per call so decisions replay deterministically.
type Gate struct{}

func NewGate() *Gate { return &Gate{} }

func reject(rule, format string, args ...any) (*ApprovedOrder, error) {
	rej := &Rejection{Rule: rule, Detail: fmt.Sprintf(format, args...)}
	logger.Warnf("risk gate rejected: %s", rej.Detail)
	return nil, rej
}

// Evaluate runs the rule chain, short-circuiting on the first failure.
func (g *Gate) Evaluate(o trade.NormalizedOrder, snap trade.PortfolioSnapshot, limits Limits) (*ApprovedOrder, error) {
	equity := snap.Equity
	notional := o.NotionalValue()
	qty := decimal.NewFromInt(o.Quantity)
	riskPerShare := o.RiskPerShare()
	riskAmount := riskPerShare.Mul(qty)

	// (a) position count
	openCount := len(snap.OpenSymbols)
	if openCount >= limits.MaxPositions {
		return reject(RuleMaxPositions, "%s: %d/%d positions already open", o.Symbol, openCount, limits.MaxPositions)
	}

	// (b) duplicate symbol, unless pyramiding is explicitly allowed
	if snap.HasOpen(o.Symbol) && !limits.AllowPyramiding {
		return reject(RuleDuplicateSymbol, "%s: position already open, pyramiding disabled", o.Symbol)
	}

	// (c) position size as fraction of portfolio
	if equity.IsPositive() {
		pct := notional.Div(equity)
		if pct.GreaterThan(decimal.NewFromFloat(limits.MaxPositionPct)) {
			return reject(RuleMaxPositionPct, "%s: position %s is %s%% of equity, limit %.1f%%",
				o.Symbol, notional.StringFixed(0), pct.Mul(decimal.NewFromInt(100)).StringFixed(1), limits.MaxPositionPct*100)
		}
	}

	// (d) buying power
	if notional.GreaterThan(snap.BuyingPower) {
		return reject(RuleBuyingPower, "%s: need %s, buying power %s",
			o.Symbol, notional.StringFixed(0), snap.BuyingPower.StringFixed(0))
	}

	// (e) risk/reward floor
	if riskPerShare.IsPositive() {
		rr := o.RewardPerShare().Div(riskPerShare)
		if rr.LessThan(decimal.NewFromFloat(limits.MinRiskReward)) {
			return reject(RuleMinRiskReward, "%s: risk/reward %s below minimum %.1f",
				o.Symbol, rr.StringFixed(2), limits.MinRiskReward)
		}
	}

	// (f) projected daily loss if this trade stops out
	if equity.IsPositive() {
		projected := snap.DailyPnL.Sub(riskAmount).Div(equity)
		if projected.LessThan(decimal.NewFromFloat(-limits.MaxDailyLossPct)) {
			return reject(RuleMaxDailyLoss, "%s: projected daily loss %s%% past limit %.2f%%",
				o.Symbol, projected.Mul(decimal.NewFromInt(100)).StringFixed(2), limits.MaxDailyLossPct*100)
		}
	}

	// per-trade risk cap
	if equity.IsPositive() {
		riskPct := riskAmount.Div(equity)
		if riskPct.GreaterThan(decimal.NewFromFloat(limits.MaxTradeLossPct)) {
			return reject(RuleMaxTradeLoss, "%s: trade risks %s%% of equity, limit %.2f%%",
				o.Symbol, riskPct.Mul(decimal.NewFromInt(100)).StringFixed(2), limits.MaxTradeLossPct*100)
		}
	}

	// dust positions cost more in friction than they can earn
	if limits.MinPositionValue > 0 && notional.LessThan(decimal.NewFromFloat(limits.MinPositionValue)) {
		return reject(RuleMinPositionValue, "%s: position value %s below minimum %.0f",
			o.Symbol, notional.StringFixed(0), limits.MinPositionValue)
	}

	// stop distance cap
	if limits.MaxStopDistancePct > 0 && o.EntryPrice.IsPositive() {
		dist := riskPerShare.Div(o.EntryPrice)
		if dist.GreaterThan(decimal.NewFromFloat(limits.MaxStopDistancePct)) {
			return reject(RuleMaxStopDistance, "%s: stop %s%% from entry, limit %.1f%%",
				o.Symbol, dist.Mul(decimal.NewFromInt(100)).StringFixed(1), limits.MaxStopDistancePct*100)
		}
	}

	// over-trading guard
	if limits.MaxDailyTrades > 0 && snap.DailyTrades >= limits.MaxDailyTrades {
		return reject(RuleMaxDailyTrades, "%s: %d/%d trades already today",
			o.Symbol, snap.DailyTrades, limits.MaxDailyTrades)
	}

	return &ApprovedOrder{
		order:         o,
		limitsVersion: limits.Version,
		approvedAt:    time.Now(),
	}, nil
}
