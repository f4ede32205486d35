// Package order constructs bracket plans and verifies that submitted
// brackets actually exist at the broker in the intended shape.
package order

import (
	"fmt"

	"github.com/google/uuid"

	"catalyst/internal/broker"
	"catalyst/internal/trade"
)

// BracketPlan is the three-legged order graph for one entry: the entry
// itself, an opposite-side stop and an opposite-side limit target
// sharing one OCA group. Child legs are held until the entry's broker ID
// is known, so the bracket reaches the exchange as an atomic unit.
type BracketPlan struct {
	IntentID string
	Symbol   string
	OCAGroup string
	Entry    broker.Leg
	Stop     broker.Leg
	Target   broker.Leg
}

// Legs returns the legs in submission order: entry first, stop before
// target so the protective leg is transmitted as early as possible.
func (p BracketPlan) Legs() []broker.Leg {
	return []broker.Leg{p.Entry, p.Stop, p.Target}
}

// Builder turns normalized orders into bracket plans.
type Builder struct {
	// EntryTIF and ExitTIF follow broker convention: entries expire with
	// the session, protective legs persist until cancelled.
	EntryTIF string
	ExitTIF  string
}

func NewBuilder() *Builder {
	return &Builder{EntryTIF: "DAY", ExitTIF: "GTC"}
}

// Build constructs the bracket. It fails closed: an order without a
// positive stop-loss or take-profit is never turned into legs, whatever
// upstream validation did or did not run.
func (b *Builder) Build(o trade.NormalizedOrder) (BracketPlan, error) {
	if !o.StopLoss.IsPositive() {
		return BracketPlan{}, fmt.Errorf("refusing bracket without stop leg for %s", o.Symbol)
	}
	if !o.TakeProfit.IsPositive() {
		return BracketPlan{}, fmt.Errorf("refusing bracket without target leg for %s", o.Symbol)
	}
	if o.Quantity <= 0 {
		return BracketPlan{}, fmt.Errorf("refusing bracket with non-positive quantity for %s", o.Symbol)
	}

	oca := uuid.NewString()
	exitSide := o.Side.Opposite()
	remark := o.Intent.Reason
	if len(remark) > 64 {
		remark = remark[:64]
	}

	// Only the exit legs share the OCA group: one fill cancels the
	// other. The entry must never be in the group or its own fill would
	// cancel the protection.
	entry := broker.Leg{
		ClientID: o.Intent.ID + "/entry",
		Symbol:   o.Symbol,
		Exchange: o.Intent.Exchange,
		Role:     trade.LegEntry,
		Side:     o.Side,
		Type:     o.EntryType,
		Quantity: o.Quantity,
		Price:    o.EntryPrice,
		TIF:      b.EntryTIF,
		Remark:   remark,
	}

	stop := broker.Leg{
		ClientID:  o.Intent.ID + "/stop",
		Symbol:    o.Symbol,
		Exchange:  o.Intent.Exchange,
		Role:      trade.LegStop,
		Side:      exitSide,
		Type:      trade.OrderTypeStop,
		Quantity:  o.Quantity,
		StopPrice: o.StopLoss,
		OCAGroup:  oca,
		Held:      true,
		TIF:       b.ExitTIF,
	}

	target := broker.Leg{
		ClientID: o.Intent.ID + "/target",
		Symbol:   o.Symbol,
		Exchange: o.Intent.Exchange,
		Role:     trade.LegTarget,
		Side:     exitSide,
		Type:     trade.OrderTypeLimit,
		Quantity: o.Quantity,
		Price:    o.TakeProfit,
		OCAGroup: oca,
		Held:     true,
		TIF:      b.ExitTIF,
	}

	return BracketPlan{
		IntentID: o.Intent.ID,
		Symbol:   o.Symbol,
		OCAGroup: oca,
		Entry:    entry,
		Stop:     stop,
		Target:   target,
	}, nil
}
