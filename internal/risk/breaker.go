package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"catalyst/internal/logger"
	"catalyst/internal/trade"
)

// BreakerState is the session risk posture. Escalation is one-way:
// within a session the breaker only moves forward, never back, so a
// persistent adverse condition cannot be re-traded into. Only an
// explicit operator Reset (or a new session) returns it to NORMAL.
type BreakerState int

const (
	BreakerNormal BreakerState = iota
	BreakerWarning
	BreakerEmergency
	BreakerHalted
)

func (s BreakerState) String() string {
	switch s {
	case BreakerNormal:
		return "NORMAL"
	case BreakerWarning:
		return "WARNING"
	case BreakerEmergency:
		return "EMERGENCY"
	case BreakerHalted:
		return "HALTED"
	default:
		return "UNKNOWN"
	}
}

// Breaker monitors aggregate daily P&L and per-position stop integrity.
// It is evaluated on the reconciler's cadence with freshly reconciled
// positions, never on stale phantom/orphan state.
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	reason    string
	trippedAt time.Time

	onTransition func(from, to BreakerState, reason string)
}

func NewBreaker() *Breaker {
	return &Breaker{state: BreakerNormal}
}

// SetTransitionHandler installs the alert hook. Called synchronously
// under the breaker lock; handlers must not call back into the breaker.
func (b *Breaker) SetTransitionHandler(fn func(from, to BreakerState, reason string)) {
	b.mu.Lock()
	b.onTransition = fn
	b.mu.Unlock()
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reason describes the last transition.
func (b *Breaker) Reason() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}

// AllowEntry reports whether new positions may be opened. Anything past
// NORMAL blocks entries; existing positions continue to be managed.
func (b *Breaker) AllowEntry() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == BreakerNormal
}

// Halted reports whether all order issuance is stopped.
func (b *Breaker) Halted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == BreakerHalted
}

// Input is one evaluation sample: today's P&L fraction and the freshly
// reconciled open positions with their current marks.
type Input struct {
	DailyPnLPct decimal.Decimal
	Positions   []trade.Position
}

// Evaluate advances the state machine. It returns true exactly once,
// when the breaker enters EMERGENCY, telling the engine to liquidate
// everything. Improvements in P&L never move the state backward.
func (b *Breaker) Evaluate(in Input, limits Limits) (liquidate bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state >= BreakerEmergency {
		return false
	}

	hard := decimal.NewFromFloat(-limits.MaxDailyLossPct)
	soft := decimal.NewFromFloat(-limits.WarningLossPct())

	if reason, breached := stopNonExecution(in.Positions, limits); breached {
		b.escalate(BreakerEmergency, reason)
		return true
	}
	if in.DailyPnLPct.LessThanOrEqual(hard) {
		b.escalate(BreakerEmergency, "daily loss "+in.DailyPnLPct.Mul(decimal.NewFromInt(100)).StringFixed(2)+"% breached hard limit")
		return true
	}
	if b.state == BreakerNormal && in.DailyPnLPct.LessThanOrEqual(soft) {
		b.escalate(BreakerWarning, "daily loss "+in.DailyPnLPct.Mul(decimal.NewFromInt(100)).StringFixed(2)+"% crossed warning threshold")
	}
	return false
}

// TripSingle escalates straight to EMERGENCY for a position-level fault
// (bracket integrity failure leaves capital unprotected).
func (b *Breaker) TripSingle(symbol, why string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state >= BreakerEmergency {
		return
	}
	b.escalate(BreakerEmergency, symbol+": "+why)
}

// MarkLiquidated records that emergency liquidation finished (or timed
// out) and halts the session.
func (b *Breaker) MarkLiquidated(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BreakerEmergency {
		return
	}
	b.escalate(BreakerHalted, reason)
}

// Reset is the operator/session-open action that re-arms the breaker.
func (b *Breaker) Reset(operator string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerNormal {
		return
	}
	from := b.state
	b.state = BreakerNormal
	b.reason = "manual reset by " + operator
	b.trippedAt = time.Time{}
	logger.Warnf("risk breaker reset %s -> NORMAL by %s", from, operator)
	if b.onTransition != nil {
		b.onTransition(from, BreakerNormal, b.reason)
	}
}

func (b *Breaker) escalate(to BreakerState, reason string) {
	from := b.state
	// WARNING is passed through, not skipped, when a single sample
	// crosses both thresholds.
	if to == BreakerEmergency && from == BreakerNormal {
		b.state = BreakerWarning
		logger.Warnf("risk breaker NORMAL -> WARNING: %s", reason)
		if b.onTransition != nil {
			b.onTransition(BreakerNormal, BreakerWarning, reason)
		}
		from = BreakerWarning
	}
	b.state = to
	b.reason = reason
	b.trippedAt = time.Now()
	logger.Errorf("risk breaker %s -> %s: %s", from, to, reason)
	if b.onTransition != nil {
		b.onTransition(from, to, reason)
	}
}

// stopNonExecution detects a position whose mark has moved past its stop
// by more than the slippage tolerance while the stop order has not
// filled. That means the protective leg is not doing its job.
func stopNonExecution(positions []trade.Position, limits Limits) (string, bool) {
	slip := decimal.NewFromFloat(limits.SlippageTolerancePct)
	one := decimal.NewFromInt(1)
	for _, p := range positions {
		if !p.Countable() || !p.StopLoss.IsPositive() || !p.MarkPrice.IsPositive() {
			continue
		}
		switch p.Side {
		case trade.SideLong:
			floor := p.StopLoss.Mul(one.Sub(slip))
			if p.MarkPrice.LessThan(floor) {
				return p.Symbol + ": mark " + p.MarkPrice.String() + " below stop " + p.StopLoss.String() + " beyond slippage tolerance", true
			}
		case trade.SideShort:
			ceil := p.StopLoss.Mul(one.Add(slip))
			if p.MarkPrice.GreaterThan(ceil) {
				return p.Symbol + ": mark " + p.MarkPrice.String() + " above stop " + p.StopLoss.String() + " beyond slippage tolerance", true
			}
		}
	}
	return "", false
}
