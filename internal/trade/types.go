// Package trade defines the domain types shared by the execution engine,
// the broker gateway and the stores. Broker-native response shapes are
// mapped into these types at the gateway boundary and nowhere else.
package trade

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the closing side for a position opened on s.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

func (s Side) Valid() bool { return s == SideLong || s == SideShort }

type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// LegRole identifies the function of an order inside a bracket.
type LegRole string

const (
	LegEntry  LegRole = "entry"
	LegStop   LegRole = "stop"
	LegTarget LegRole = "target"
)

// OrderStatus is always broker-dictated. StatusUnknown means the broker
// did not return the order; it is never collapsed into filled or
// cancelled.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusWorking         OrderStatus = "working"
	StatusFilled          OrderStatus = "filled"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRejected        OrderStatus = "rejected"
	StatusExpired         OrderStatus = "expired"
	StatusUnknown         OrderStatus = "unknown"
)

// Terminal reports whether the status can no longer change at the broker.
// StatusUnknown is not terminal: the next sync pass must resolve it.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// TradeIntent is the abstract instruction produced by the decision
// source. It is immutable once created; the engine never mutates it.
// EntryPrice is the limit price for limit entries and the sizing
// reference for market entries; it is required either way.
type TradeIntent struct {
	ID         string
	Symbol     string
	Exchange   string
	Side       Side
	Quantity   int64
	Notional   decimal.Decimal // target notional, used when Quantity == 0
	EntryType  OrderType       // market or limit
	EntryPrice decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	Reason     string
	CreatedAt  time.Time
}

// NormalizedOrder is a TradeIntent whose prices are snapped to the
// instrument's tick table and whose quantity is snapped to the lot size.
// Construction goes through normalize.Intent; no other path may produce
// one.
type NormalizedOrder struct {
	Intent     TradeIntent
	Symbol     string
	Side       Side
	EntryType  OrderType
	Quantity   int64
	EntryPrice decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	Tick       decimal.Decimal
	LotSize    int64
}

// RiskPerShare is the adverse distance between entry and stop. Market
// entries use the intent's reference entry price.
func (o NormalizedOrder) RiskPerShare() decimal.Decimal {
	return o.EntryPrice.Sub(o.StopLoss).Abs()
}

// RewardPerShare is the favourable distance between entry and target.
func (o NormalizedOrder) RewardPerShare() decimal.Decimal {
	return o.TakeProfit.Sub(o.EntryPrice).Abs()
}

// NotionalValue is quantity times entry price.
func (o NormalizedOrder) NotionalValue() decimal.Decimal {
	return o.EntryPrice.Mul(decimal.NewFromInt(o.Quantity))
}

// OrderRecord is the local view of one broker order. Writes are owned by
// the status synchronizer after submission; everyone else reads.
type OrderRecord struct {
	BrokerID     string
	ClientID     string
	Symbol       string
	Role         LegRole
	Side         Side
	Type         OrderType
	Status       OrderStatus
	Quantity     int64
	FilledQty    int64
	Price        decimal.Decimal // limit price, zero for market/stop
	StopPrice    decimal.Decimal // trigger price for stop orders
	FilledPrice  decimal.Decimal
	ParentID     string // broker ID of the entry leg, empty on the entry itself
	OCAGroup     string
	LastSyncedAt time.Time
}

// ReconcileState annotates the local Position cache relative to the
// broker's authoritative list.
type ReconcileState string

const (
	ReconcileConfirmed  ReconcileState = "confirmed"
	ReconcilePhantom    ReconcileState = "phantom"  // local only, not at broker
	ReconcileOrphan     ReconcileState = "orphan"   // broker only, backfilled
	ReconcileMismatched ReconcileState = "mismatched_quantity"
)

// Position is a local cache row; the broker is the source of truth.
// Closed rows are retained for audit and never deleted.
type Position struct {
	Symbol         string
	Side           Side
	Quantity       int64
	EntryPrice     decimal.Decimal
	StopLoss       decimal.Decimal
	TakeProfit     decimal.Decimal
	MarkPrice      decimal.Decimal
	UnrealizedPnL  decimal.Decimal
	RealizedPnL    decimal.Decimal
	Open           bool
	Reconciliation ReconcileState
	OCAGroup       string
	EntryOrderID   string
	OpenedAt       time.Time
	ClosedAt       time.Time
	UpdatedAt      time.Time
}

// Countable reports whether the position participates in risk
// calculations. Phantom rows are excluded until reconciliation resolves
// them.
func (p Position) Countable() bool {
	return p.Open && p.Reconciliation != ReconcilePhantom
}

// PortfolioSnapshot is the account state the risk gate evaluates against.
type PortfolioSnapshot struct {
	Equity       decimal.Decimal
	Cash         decimal.Decimal
	BuyingPower  decimal.Decimal
	DailyPnL     decimal.Decimal // realized + unrealized since session open
	DailyTrades  int
	OpenSymbols  []string
	PositionRisk decimal.Decimal // sum of open stop distances, in currency
	TakenAt      time.Time
}

// DailyPnLPct is today's P&L as a fraction of equity (-0.01 for -1%).
func (p PortfolioSnapshot) DailyPnLPct() decimal.Decimal {
	if p.Equity.IsPositive() {
		return p.DailyPnL.Div(p.Equity)
	}
	return decimal.Zero
}

// HasOpen reports whether the snapshot already holds symbol.
func (p PortfolioSnapshot) HasOpen(symbol string) bool {
	for _, s := range p.OpenSymbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// Confirmation acknowledges a close request.
type Confirmation struct {
	Symbol      string
	OrderID     string
	Quantity    int64
	RealizedPnL decimal.Decimal
	Reason      string
	At          time.Time
}
