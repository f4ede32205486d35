// Package store persists order records and the position cache through
// an injected interface; the engine never talks to a database driver
// directly. The sqlite implementation is the production store, the
// memory implementation backs tests and dry runs.
package store

import (
	"context"

	"catalyst/internal/alert"
	"catalyst/internal/logger"
	"catalyst/internal/trade"
)

// Orders persists the local view of broker orders. Writes after
// submission are owned by the status synchronizer.
type Orders interface {
	Save(ctx context.Context, rec trade.OrderRecord) error
	Get(ctx context.Context, brokerID string) (trade.OrderRecord, bool, error)
	// Open lists records whose status is not terminal, including
	// unknown.
	Open(ctx context.Context) ([]trade.OrderRecord, error)
	BySymbol(ctx context.Context, symbol string) ([]trade.OrderRecord, error)
}

// Positions persists the position cache. Closed rows are retained for
// audit; Save with Open=false closes, nothing ever deletes.
type Positions interface {
	Save(ctx context.Context, pos trade.Position) error
	// Open lists open rows in any reconciliation state.
	Open(ctx context.Context) ([]trade.Position, error)
	// OpenBySymbol returns the open row for symbol, if any.
	OpenBySymbol(ctx context.Context, symbol string) (trade.Position, bool, error)
}

// Events is the append-only audit trail of operational alerts.
type Events interface {
	Append(ctx context.Context, e alert.Event) error
	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]alert.Event, error)
}

// Store bundles the repositories behind one lifecycle.
type Store interface {
	Orders() Orders
	Positions() Positions
	Events() Events
	Close() error
}

// AlertSink adapts the audit trail into an alert destination so every
// emitted event is also persisted.
type AlertSink struct {
	Trail Events
}

func (s AlertSink) Emit(e alert.Event) {
	if err := s.Trail.Append(context.Background(), e); err != nil {
		logger.Warnf("audit trail append failed: %v", err)
	}
}
