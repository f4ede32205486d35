// Package ticks holds the static per-exchange price increment and board
// lot rules. Tables are data, not behavior: rounding lives in the
// normalize package.
package ticks

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Tier maps a price band to its minimum increment. A price p belongs to
// the first tier with p < Ceiling; the last tier has no ceiling.
type Tier struct {
	Ceiling decimal.Decimal // exclusive upper bound, zero means unbounded
	Tick    decimal.Decimal
}

// Table describes the pricing rules of one exchange.
type Table struct {
	Exchange string
	Tiers    []Tier
	LotSize  int64
}

// TickFor returns the tick size of the tier containing price. Prices at
// or above the last ceiling use the final tier.
func (t Table) TickFor(price decimal.Decimal) decimal.Decimal {
	for _, tier := range t.Tiers {
		if tier.Ceiling.IsZero() {
			return tier.Tick
		}
		if price.LessThan(tier.Ceiling) {
			return tier.Tick
		}
	}
	if len(t.Tiers) > 0 {
		return t.Tiers[len(t.Tiers)-1].Tick
	}
	return decimal.New(1, -2)
}

func tier(ceiling, tick string) Tier {
	var c decimal.Decimal
	if ceiling != "" {
		c = decimal.RequireFromString(ceiling)
	}
	return Tier{Ceiling: c, Tick: decimal.RequireFromString(tick)}
}

// HKEX is the 11-tier securities price table of the Hong Kong exchange.
// Board lot sizes vary per listing; 100 is the common case and the
// engine treats it as the default unless configured otherwise.
func HKEX() Table {
	return Table{
		Exchange: "HKEX",
		LotSize:  100,
		Tiers: []Tier{
			tier("0.25", "0.001"),
			tier("0.50", "0.005"),
			tier("10.00", "0.01"),
			tier("20.00", "0.02"),
			tier("100.00", "0.05"),
			tier("200.00", "0.10"),
			tier("500.00", "0.20"),
			tier("1000.00", "0.50"),
			tier("2000.00", "1.00"),
			tier("5000.00", "2.00"),
			tier("", "5.00"),
		},
	}
}

// ForExchange resolves a table by exchange code. Unknown exchanges get a
// flat one-cent tick with single-share lots, which is legal on US venues
// and strictly conservative elsewhere.
func ForExchange(code string) Table {
	switch strings.ToUpper(code) {
	case "HKEX", "SEHK", "HK":
		return HKEX()
	default:
		return Table{
			Exchange: code,
			LotSize:  1,
			Tiers:    []Tier{tier("", "0.01")},
		}
	}
}
