// Package normalize snaps intent prices and quantities to exchange-legal
// values. All arithmetic runs on decimals; a float64 enters exactly once,
// at the conversion boundary, so accumulated binary noise can never push
// a value across a tick boundary.
package normalize

import (
	"fmt"

	"github.com/shopspring/decimal"

	"catalyst/internal/ticks"
	"catalyst/internal/trade"
)

// InvalidPriceError rejects an intent before any broker call is made.
type InvalidPriceError struct {
	Field  string
	Value  decimal.Decimal
	Reason string
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid %s %s: %s", e.Field, e.Value, e.Reason)
}

// Price rounds price to the nearest legal tick of the tier containing
// it, half away from zero. Pure and idempotent.
func Price(price decimal.Decimal, table ticks.Table) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, &InvalidPriceError{Field: "price", Value: price, Reason: "must be positive"}
	}
	tick := table.TickFor(price)
	steps := price.Div(tick).Round(0)
	snapped := steps.Mul(tick)
	// Rounding can cross into the neighbouring tier; re-snap with that
	// tier's tick so the result is legal where it lands.
	if t2 := table.TickFor(snapped); !t2.Equal(tick) {
		snapped = snapped.Div(t2).Round(0).Mul(t2)
	}
	if !snapped.IsPositive() {
		return decimal.Zero, &InvalidPriceError{Field: "price", Value: price, Reason: "rounds to zero"}
	}
	return snapped, nil
}

// PriceFromFloat converts a raw float64 through decimal's shortest
// representation before snapping, so 9.050000000000001 and 9.05 produce
// the same output.
func PriceFromFloat(price float64, table ticks.Table) (decimal.Decimal, error) {
	return Price(decimal.NewFromFloat(price), table)
}

// Quantity rounds qty down to the nearest lot multiple. A quantity that
// rounds to zero is an error, never a silent no-op.
func Quantity(qty int64, table ticks.Table) (int64, error) {
	lot := table.LotSize
	if lot <= 0 {
		lot = 1
	}
	snapped := (qty / lot) * lot
	if snapped <= 0 {
		return 0, &InvalidPriceError{
			Field:  "quantity",
			Value:  decimal.NewFromInt(qty),
			Reason: fmt.Sprintf("rounds to zero for lot size %d", lot),
		}
	}
	return snapped, nil
}

// Intent validates the shape of a trade intent and produces the
// normalized order the rest of the pipeline operates on. Stop-loss and
// take-profit are mandatory: the builder refuses to construct a bracket
// without protective legs, so malformed intents die here with no broker
// call.
func Intent(intent trade.TradeIntent, table ticks.Table) (trade.NormalizedOrder, error) {
	var out trade.NormalizedOrder

	if intent.Symbol == "" {
		return out, &InvalidPriceError{Field: "symbol", Reason: "must not be empty"}
	}
	if !intent.Side.Valid() {
		return out, &InvalidPriceError{Field: "side", Reason: fmt.Sprintf("unknown side %q", intent.Side)}
	}
	switch intent.EntryType {
	case trade.OrderTypeMarket, trade.OrderTypeLimit:
	case "":
		intent.EntryType = trade.OrderTypeLimit
	default:
		return out, &InvalidPriceError{Field: "entry_type", Reason: fmt.Sprintf("unsupported entry type %q", intent.EntryType)}
	}

	entry, err := Price(intent.EntryPrice, table)
	if err != nil {
		return out, err
	}
	stop, err := Price(intent.StopLoss, table)
	if err != nil {
		return out, &InvalidPriceError{Field: "stop_loss", Value: intent.StopLoss, Reason: "stop-loss is mandatory and must be a positive price"}
	}
	target, err := Price(intent.TakeProfit, table)
	if err != nil {
		return out, &InvalidPriceError{Field: "take_profit", Value: intent.TakeProfit, Reason: "take-profit is mandatory and must be a positive price"}
	}

	// Protective prices must sit on the correct side of the entry,
	// otherwise the bracket would trigger immediately or never.
	switch intent.Side {
	case trade.SideLong:
		if stop.GreaterThanOrEqual(entry) {
			return out, &InvalidPriceError{Field: "stop_loss", Value: stop, Reason: "must be below entry for long positions"}
		}
		if target.LessThanOrEqual(entry) {
			return out, &InvalidPriceError{Field: "take_profit", Value: target, Reason: "must be above entry for long positions"}
		}
	case trade.SideShort:
		if stop.LessThanOrEqual(entry) {
			return out, &InvalidPriceError{Field: "stop_loss", Value: stop, Reason: "must be above entry for short positions"}
		}
		if target.GreaterThanOrEqual(entry) {
			return out, &InvalidPriceError{Field: "take_profit", Value: target, Reason: "must be below entry for short positions"}
		}
	}

	qty := intent.Quantity
	if qty == 0 && intent.Notional.IsPositive() {
		qty = intent.Notional.Div(entry).IntPart()
	}
	qty, err = Quantity(qty, table)
	if err != nil {
		return out, err
	}

	lot := table.LotSize
	if lot <= 0 {
		lot = 1
	}
	return trade.NormalizedOrder{
		Intent:     intent,
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		EntryType:  intent.EntryType,
		Quantity:   qty,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
		Tick:       table.TickFor(entry),
		LotSize:    lot,
	}, nil
}
