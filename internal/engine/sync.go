package engine

import (
	"context"
	"errors"
	"time"

	"catalyst/internal/alert"
	"catalyst/internal/broker"
	"catalyst/internal/logger"
	"catalyst/internal/store"
	"catalyst/internal/trade"
)

// Synchronizer pulls broker order state into the local records. The
// broker's answer always wins; local status is a cache, never a vote.
type Synchronizer struct {
	gw     broker.Gateway
	st     store.Store
	alerts alert.Sink
}

func NewSynchronizer(gw broker.Gateway, st store.Store, alerts alert.Sink) *Synchronizer {
	if alerts == nil {
		alerts = alert.LogSink{}
	}
	return &Synchronizer{gw: gw, st: st, alerts: alerts}
}

// Run performs one sync pass over every non-terminal local order.
func (s *Synchronizer) Run(ctx context.Context) error {
	open, err := s.st.Orders().Open(ctx)
	if err != nil {
		return err
	}

	for _, rec := range open {
		live, err := s.gw.QueryOrder(ctx, rec.BrokerID)
		switch {
		case errors.Is(err, broker.ErrOrderNotFound):
			// The broker does not know this order. That is a fact worth
			// surfacing, not a status to invent; unknown keeps the order
			// in the sync set until reconciliation explains it.
			if rec.Status != trade.StatusUnknown {
				s.alerts.Emit(alert.New(alert.SeverityWarning, "order unknown at broker",
					"order", rec.BrokerID, "symbol", rec.Symbol, "role", string(rec.Role)))
			}
			rec.Status = trade.StatusUnknown
			rec.LastSyncedAt = time.Now()
			if err := s.st.Orders().Save(ctx, rec); err != nil {
				logger.Errorf("order sync save failed id=%s: %v", rec.BrokerID, err)
			}
		case err != nil:
			// Transient gateway trouble; the next pass retries.
			logger.Warnf("order sync query failed id=%s: %v", rec.BrokerID, err)
		default:
			if live.Status != rec.Status {
				logger.Infof("order %s %s: %s -> %s", rec.BrokerID, rec.Symbol, rec.Status, live.Status)
			}
			rec.Status = live.Status
			rec.FilledQty = live.FilledQty
			rec.FilledPrice = live.FilledPrice
			rec.LastSyncedAt = time.Now()
			if err := s.st.Orders().Save(ctx, rec); err != nil {
				logger.Errorf("order sync save failed id=%s: %v", rec.BrokerID, err)
			}
		}
	}
	return nil
}
