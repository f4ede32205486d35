package engine

import (
	"context"
	"fmt"
	"time"

	"catalyst/internal/alert"
	"catalyst/internal/broker"
	"catalyst/internal/logger"
	"catalyst/internal/risk"
	"catalyst/internal/store"
	"catalyst/internal/trade"
)

// Reconciler converges the local position cache onto the broker's
// authoritative list, then feeds the freshly reconciled state to the
// circuit breaker. Divergence is always resolved toward the broker and
// always surfaced; it is never silently papered over.
type Reconciler struct {
	gw      broker.Gateway
	st      store.Store
	book    *risk.Book
	breaker *risk.Breaker
	engine  *Engine
	alerts  alert.Sink
}

func NewReconciler(gw broker.Gateway, st store.Store, book *risk.Book, breaker *risk.Breaker, eng *Engine, alerts alert.Sink) *Reconciler {
	if alerts == nil {
		alerts = alert.LogSink{}
	}
	return &Reconciler{gw: gw, st: st, book: book, breaker: breaker, engine: eng, alerts: alerts}
}

// Run performs one reconciliation pass. A gateway failure aborts the
// pass without touching local state; a half-reconciled cache is worse
// than a stale one.
func (r *Reconciler) Run(ctx context.Context) error {
	remote, err := r.gw.QueryPositions(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: query positions: %w", err)
	}
	local, err := r.st.Positions().Open(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: load local positions: %w", err)
	}

	byBroker := make(map[string]trade.Position, len(remote))
	for _, p := range remote {
		byBroker[p.Symbol] = p
	}
	byLocal := make(map[string]trade.Position, len(local))
	for _, p := range local {
		byLocal[p.Symbol] = p
	}

	now := time.Now()

	for _, loc := range local {
		rem, held := byBroker[loc.Symbol]
		if !held {
			pending, err := r.hasWorkingEntry(ctx, loc.Symbol)
			if err != nil {
				logger.Warnf("reconcile: order lookup %s: %v", loc.Symbol, err)
				continue
			}
			if pending {
				// Entry not filled yet; nothing to reconcile.
				continue
			}
			if loc.Reconciliation != trade.ReconcilePhantom {
				r.alerts.Emit(alert.New(alert.SeverityWarning, "phantom position",
					"symbol", loc.Symbol, "quantity", fmt.Sprint(loc.Quantity)))
				logger.Warnf("reconcile: %s held locally but not at broker, flagged phantom", loc.Symbol)
			}
			loc.Reconciliation = trade.ReconcilePhantom
			loc.UpdatedAt = now
			if err := r.st.Positions().Save(ctx, loc); err != nil {
				logger.Errorf("reconcile: save %s: %v", loc.Symbol, err)
			}
			continue
		}

		state := trade.ReconcileConfirmed
		if rem.Quantity != loc.Quantity {
			state = trade.ReconcileMismatched
			if loc.Reconciliation != trade.ReconcileMismatched {
				r.alerts.Emit(alert.New(alert.SeverityWarning, "position quantity mismatch",
					"symbol", loc.Symbol, "local", fmt.Sprint(loc.Quantity), "broker", fmt.Sprint(rem.Quantity)))
			}
			loc.Quantity = rem.Quantity
		}
		loc.Reconciliation = state
		loc.Side = rem.Side
		if rem.MarkPrice.IsPositive() {
			loc.MarkPrice = rem.MarkPrice
		}
		loc.UnrealizedPnL = rem.UnrealizedPnL
		loc.UpdatedAt = now
		if err := r.st.Positions().Save(ctx, loc); err != nil {
			logger.Errorf("reconcile: save %s: %v", loc.Symbol, err)
		}
	}

	for _, rem := range remote {
		if _, known := byLocal[rem.Symbol]; known {
			continue
		}
		r.alerts.Emit(alert.New(alert.SeverityWarning, "orphan position backfilled",
			"symbol", rem.Symbol, "quantity", fmt.Sprint(rem.Quantity)))
		logger.Warnf("reconcile: %s held at broker but not locally, backfilling", rem.Symbol)
		rem.Open = true
		rem.Reconciliation = trade.ReconcileOrphan
		if rem.OpenedAt.IsZero() {
			rem.OpenedAt = now
		}
		rem.UpdatedAt = now
		if err := r.st.Positions().Save(ctx, rem); err != nil {
			logger.Errorf("reconcile: backfill %s: %v", rem.Symbol, err)
		}
	}

	return r.evaluateBreaker(ctx)
}

// hasWorkingEntry reports whether symbol has a live entry order, in
// which case a missing broker position is expected, not phantom.
func (r *Reconciler) hasWorkingEntry(ctx context.Context, symbol string) (bool, error) {
	recs, err := r.st.Orders().BySymbol(ctx, symbol)
	if err != nil {
		return false, err
	}
	for _, rec := range recs {
		if rec.Role == trade.LegEntry && !rec.Status.Terminal() && rec.Status != trade.StatusUnknown {
			return true, nil
		}
	}
	return false, nil
}

// evaluateBreaker samples the breaker with post-reconciliation state and
// runs the liquidation sequence when it trips.
func (r *Reconciler) evaluateBreaker(ctx context.Context) error {
	acct, err := r.gw.QueryAccount(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: query account: %w", err)
	}
	open, err := r.st.Positions().Open(ctx)
	if err != nil {
		return err
	}

	snap := trade.PortfolioSnapshot{
		Equity:   acct.Equity,
		DailyPnL: acct.RealizedPnL.Add(acct.UnrealizedPnL),
	}
	liquidate := r.breaker.Evaluate(risk.Input{
		DailyPnLPct: snap.DailyPnLPct(),
		Positions:   open,
	}, r.book.Current())
	if !liquidate {
		return nil
	}

	reason := r.breaker.Reason()
	r.alerts.Emit(alert.New(alert.SeverityCritical, "emergency liquidation started", "reason", reason))
	confs, err := r.engine.CloseAll(ctx, "circuit breaker: "+reason)
	if err != nil {
		r.alerts.Emit(alert.New(alert.SeverityCritical, "emergency liquidation incomplete", "error", err.Error()))
		r.breaker.MarkLiquidated("liquidation incomplete: " + err.Error())
		return err
	}
	r.breaker.MarkLiquidated(fmt.Sprintf("liquidated %d positions", len(confs)))
	r.alerts.Emit(alert.New(alert.SeverityCritical, "emergency liquidation finished",
		"positions", fmt.Sprint(len(confs))))
	return nil
}
