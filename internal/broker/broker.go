// Package broker defines the gateway abstraction over a live brokerage
// connection. The engine is broker-agnostic behind this interface;
// concrete clients (opend, paper) map their native response shapes into
// trade types at this boundary and never deeper.
package broker

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"catalyst/internal/trade"
)

var (
	// ErrGatewayTimeout marks a call whose outcome is unknown. Callers
	// must treat it as "unknown", never as implicit success or failure;
	// the next reconciliation pass resolves it.
	ErrGatewayTimeout = errors.New("broker: gateway timeout")

	// ErrGatewayUnavailable marks a transient connectivity failure,
	// retried by the owning background task on its next cycle.
	ErrGatewayUnavailable = errors.New("broker: gateway unavailable")

	// ErrOrderNotFound is returned by QueryOrder when the broker has no
	// record of the ID.
	ErrOrderNotFound = errors.New("broker: order not found")
)

// Leg is one order of a bracket as submitted to the broker. Held legs
// are transmitted but not released until the final leg arrives, so the
// bracket activates as an atomic unit.
type Leg struct {
	ClientID  string
	Symbol    string
	Exchange  string
	Role      trade.LegRole
	Side      trade.Side
	Type      trade.OrderType
	Quantity  int64
	Price     decimal.Decimal // limit price
	StopPrice decimal.Decimal // trigger price for stop legs
	ParentID  string          // broker ID of the entry leg
	OCAGroup  string
	Held      bool // do not release until the bracket is complete
	TIF       string
	Remark    string
}

// Gateway is the live broker connection.
type Gateway interface {
	Connect(ctx context.Context) error

	// SubmitOrder transmits one leg and returns the broker-assigned ID.
	SubmitOrder(ctx context.Context, leg Leg) (string, error)

	// QueryOrder returns the broker's current view of an order, or
	// ErrOrderNotFound.
	QueryOrder(ctx context.Context, brokerID string) (trade.OrderRecord, error)

	// QueryOpenOrders lists every non-terminal order at the broker.
	QueryOpenOrders(ctx context.Context) ([]trade.OrderRecord, error)

	// QueryPositions returns the authoritative position list.
	QueryPositions(ctx context.Context) ([]trade.Position, error)

	CancelOrder(ctx context.Context, brokerID string) error

	QueryBuyingPower(ctx context.Context) (decimal.Decimal, error)

	// QueryAccount returns equity, cash and session P&L for snapshots.
	QueryAccount(ctx context.Context) (Account, error)
}

// Account is the broker-side account summary.
type Account struct {
	Equity        decimal.Decimal
	Cash          decimal.Decimal
	BuyingPower   decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Currency      string
}
