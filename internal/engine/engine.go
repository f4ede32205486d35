// Package engine wires the execution pipeline: normalization, the risk
// gate, bracket construction, submission, post-submit verification and
// the close paths. Every broker-bound order passes through here.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"catalyst/internal/alert"
	"catalyst/internal/broker"
	"catalyst/internal/logger"
	"catalyst/internal/normalize"
	"catalyst/internal/order"
	"catalyst/internal/risk"
	"catalyst/internal/session"
	"catalyst/internal/store"
	"catalyst/internal/ticks"
	"catalyst/internal/trade"
)

var (
	// ErrHalted means the circuit breaker has ended the session; no new
	// entries until an operator reset.
	ErrHalted = errors.New("engine: session halted by circuit breaker")

	// ErrEntriesSuspended means the breaker is past NORMAL; existing
	// positions keep their brackets but nothing new opens.
	ErrEntriesSuspended = errors.New("engine: new entries suspended by circuit breaker")

	// ErrPositionNotFound is returned by ClosePosition for a symbol with
	// no open position.
	ErrPositionNotFound = errors.New("engine: no open position for symbol")
)

// MarketClosedError rejects an entry outside continuous trading.
type MarketClosedError struct {
	Phase session.Phase
}

func (e *MarketClosedError) Error() string {
	return fmt.Sprintf("engine: market closed (%s)", e.Phase)
}

// UnknownStateError wraps a gateway failure whose outcome cannot be
// determined locally. The caller must not retry blindly; the next
// reconciliation pass resolves the true state.
type UnknownStateError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("engine: %s for %s left unknown state: %v", e.Op, e.Symbol, e.Err)
}

func (e *UnknownStateError) Unwrap() error { return e.Err }

// Receipt acknowledges an accepted entry.
type Receipt struct {
	IntentID      string
	Symbol        string
	OCAGroup      string
	EntryID       string
	StopID        string
	TargetID      string
	Quantity      int64
	LimitsVersion int
	Verified      bool
	SubmittedAt   time.Time
}

// Options collects the engine's collaborators.
type Options struct {
	Gateway      broker.Gateway
	Store        store.Store
	Limits       *risk.Book
	Breaker      *risk.Breaker
	Guard        *session.Guard
	Alerts       alert.Sink
	VerifySettle time.Duration
}

type Engine struct {
	gw       broker.Gateway
	st       store.Store
	book     *risk.Book
	gate     *risk.Gate
	breaker  *risk.Breaker
	guard    *session.Guard
	builder  *order.Builder
	verifier *order.Verifier
	alerts   alert.Sink

	mu      sync.Mutex
	symbols map[string]*sync.Mutex

	tradeMu     sync.Mutex
	tradeDay    string
	dailyTrades int
}

func New(opts Options) *Engine {
	alerts := opts.Alerts
	if alerts == nil {
		alerts = alert.LogSink{}
	}
	return &Engine{
		gw:       opts.Gateway,
		st:       opts.Store,
		book:     opts.Limits,
		gate:     risk.NewGate(),
		breaker:  opts.Breaker,
		guard:    opts.Guard,
		builder:  order.NewBuilder(),
		verifier: order.NewVerifier(opts.Gateway, opts.VerifySettle),
		alerts:   alerts,
		symbols:  make(map[string]*sync.Mutex),
	}
}

// Breaker exposes the circuit breaker for the admin surface.
func (e *Engine) Breaker() *risk.Breaker { return e.breaker }

// symbolLock serializes the full decide-submit-verify pipeline per
// symbol. Different symbols proceed concurrently; two intents for the
// same symbol cannot interleave between gate and submission.
func (e *Engine) symbolLock(symbol string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.symbols[symbol]
	if !ok {
		l = &sync.Mutex{}
		e.symbols[symbol] = l
	}
	return l
}

// Submit runs one trade intent through the whole pipeline. The returned
// Receipt is only issued after all three legs were accepted by the
// gateway; Verified reports whether post-submit verification completed.
func (e *Engine) Submit(ctx context.Context, intent trade.TradeIntent) (*Receipt, error) {
	if e.breaker.Halted() {
		return nil, ErrHalted
	}
	if !e.breaker.AllowEntry() {
		return nil, ErrEntriesSuspended
	}
	if open, phase := e.guard.Open(); !open {
		return nil, &MarketClosedError{Phase: phase}
	}

	table := ticks.ForExchange(intent.Exchange)
	norm, err := normalize.Intent(intent, table)
	if err != nil {
		return nil, err
	}

	lock := e.symbolLock(norm.Symbol)
	lock.Lock()
	defer lock.Unlock()

	snap, err := e.Portfolio(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio snapshot: %w", err)
	}
	approved, err := e.gate.Evaluate(norm, snap, e.book.Current())
	if err != nil {
		return nil, err
	}

	return e.submitApproved(ctx, approved)
}

func (e *Engine) submitApproved(ctx context.Context, approved *risk.ApprovedOrder) (*Receipt, error) {
	o := approved.Order()
	plan, err := e.builder.Build(o)
	if err != nil {
		return nil, err
	}

	entryID, err := e.gw.SubmitOrder(ctx, plan.Entry)
	if err != nil {
		if errors.Is(err, broker.ErrGatewayTimeout) {
			// The entry may or may not exist at the broker.
			e.alerts.Emit(alert.New(alert.SeverityWarning, "entry submission outcome unknown",
				"symbol", o.Symbol, "intent", o.Intent.ID))
			return nil, &UnknownStateError{Op: "submit entry", Symbol: o.Symbol, Err: err}
		}
		return nil, fmt.Errorf("submit entry %s: %w", o.Symbol, err)
	}
	e.saveOrder(ctx, plan.Entry, entryID, "")

	// Child legs carry the entry's broker ID so the bracket links up
	// server-side. A failure here leaves a naked entry, which is treated
	// as an emergency.
	plan.Stop.ParentID = entryID
	plan.Target.ParentID = entryID

	stopID, err := e.gw.SubmitOrder(ctx, plan.Stop)
	if err != nil {
		return nil, e.abortNakedEntry(ctx, o.Symbol, entryID, fmt.Errorf("submit stop leg: %w", err))
	}
	e.saveOrder(ctx, plan.Stop, stopID, entryID)

	targetID, err := e.gw.SubmitOrder(ctx, plan.Target)
	if err != nil {
		return nil, e.abortNakedEntry(ctx, o.Symbol, entryID, fmt.Errorf("submit target leg: %w", err))
	}
	e.saveOrder(ctx, plan.Target, targetID, entryID)

	now := time.Now()
	if err := e.st.Positions().Save(ctx, trade.Position{
		Symbol:         o.Symbol,
		Side:           o.Side,
		Quantity:       o.Quantity,
		EntryPrice:     o.EntryPrice,
		StopLoss:       o.StopLoss,
		TakeProfit:     o.TakeProfit,
		MarkPrice:      o.EntryPrice,
		Open:           true,
		Reconciliation: trade.ReconcileConfirmed,
		OCAGroup:       plan.OCAGroup,
		EntryOrderID:   entryID,
		OpenedAt:       now,
		UpdatedAt:      now,
	}); err != nil {
		logger.Errorf("position save failed symbol=%s: %v", o.Symbol, err)
	}
	e.countTrade()

	receipt := &Receipt{
		IntentID:      o.Intent.ID,
		Symbol:        o.Symbol,
		OCAGroup:      plan.OCAGroup,
		EntryID:       entryID,
		StopID:        stopID,
		TargetID:      targetID,
		Quantity:      o.Quantity,
		LimitsVersion: approved.LimitsVersion(),
		SubmittedAt:   now,
	}

	err = e.verifier.Verify(ctx, order.Submitted{
		Symbol:   o.Symbol,
		OCAGroup: plan.OCAGroup,
		EntryID:  entryID,
		StopID:   stopID,
		TargetID: targetID,
	})
	var integrity *order.BracketIntegrityError
	switch {
	case errors.As(err, &integrity):
		e.alerts.Emit(alert.New(alert.SeverityCritical, "bracket integrity failure",
			"symbol", o.Symbol, "entry", entryID, "problems", fmt.Sprint(len(integrity.Problems))))
		e.breaker.TripSingle(o.Symbol, integrity.Error())
		if cerr := e.emergencyClose(ctx, o.Symbol, "bracket integrity failure"); cerr != nil {
			logger.Errorf("emergency close after integrity failure symbol=%s: %v", o.Symbol, cerr)
		}
		return nil, integrity
	case err != nil:
		// Verification could not complete; the bracket may be fine.
		e.alerts.Emit(alert.New(alert.SeverityWarning, "bracket verification inconclusive",
			"symbol", o.Symbol, "entry", entryID))
		logger.Warnf("bracket verification inconclusive symbol=%s: %v", o.Symbol, err)
		return receipt, nil
	}

	receipt.Verified = true
	logger.Infof("bracket submitted symbol=%s qty=%d entry=%s oca=%s limits_v=%d",
		o.Symbol, o.Quantity, entryID, plan.OCAGroup, receipt.LimitsVersion)
	return receipt, nil
}

// abortNakedEntry handles a bracket that broke during submission: the
// entry is live, a child leg is not. The entry is torn down immediately
// and the failure escalated.
func (e *Engine) abortNakedEntry(ctx context.Context, symbol, entryID string, cause error) error {
	e.alerts.Emit(alert.New(alert.SeverityCritical, "bracket submission aborted",
		"symbol", symbol, "entry", entryID))
	e.breaker.TripSingle(symbol, cause.Error())
	if err := e.emergencyClose(ctx, symbol, "bracket submission aborted"); err != nil {
		logger.Errorf("emergency close after aborted submission symbol=%s: %v", symbol, err)
	}
	return cause
}

func (e *Engine) saveOrder(ctx context.Context, leg broker.Leg, brokerID, parentID string) {
	rec := trade.OrderRecord{
		BrokerID:     brokerID,
		ClientID:     leg.ClientID,
		Symbol:       leg.Symbol,
		Role:         leg.Role,
		Side:         leg.Side,
		Type:         leg.Type,
		Status:       trade.StatusPending,
		Quantity:     leg.Quantity,
		Price:        leg.Price,
		StopPrice:    leg.StopPrice,
		ParentID:     parentID,
		OCAGroup:     leg.OCAGroup,
		LastSyncedAt: time.Now(),
	}
	if err := e.st.Orders().Save(ctx, rec); err != nil {
		logger.Errorf("order save failed id=%s: %v", brokerID, err)
	}
}

// Portfolio assembles the account snapshot the risk gate evaluates
// against: broker account numbers plus the local countable positions.
func (e *Engine) Portfolio(ctx context.Context) (trade.PortfolioSnapshot, error) {
	acct, err := e.gw.QueryAccount(ctx)
	if err != nil {
		return trade.PortfolioSnapshot{}, err
	}
	open, err := e.st.Positions().Open(ctx)
	if err != nil {
		return trade.PortfolioSnapshot{}, err
	}

	var symbols []string
	positionRisk := decimal.Zero
	for _, p := range open {
		if !p.Countable() {
			continue
		}
		symbols = append(symbols, p.Symbol)
		dist := p.EntryPrice.Sub(p.StopLoss).Abs()
		positionRisk = positionRisk.Add(dist.Mul(decimal.NewFromInt(p.Quantity)))
	}

	return trade.PortfolioSnapshot{
		Equity:       acct.Equity,
		Cash:         acct.Cash,
		BuyingPower:  acct.BuyingPower,
		DailyPnL:     acct.RealizedPnL.Add(acct.UnrealizedPnL),
		DailyTrades:  e.tradesToday(),
		OpenSymbols:  symbols,
		PositionRisk: positionRisk,
		TakenAt:      time.Now(),
	}, nil
}

func (e *Engine) countTrade() {
	day := time.Now().Format("2006-01-02")
	e.tradeMu.Lock()
	if e.tradeDay != day {
		e.tradeDay = day
		e.dailyTrades = 0
	}
	e.dailyTrades++
	e.tradeMu.Unlock()
}

func (e *Engine) tradesToday() int {
	day := time.Now().Format("2006-01-02")
	e.tradeMu.Lock()
	defer e.tradeMu.Unlock()
	if e.tradeDay != day {
		return 0
	}
	return e.dailyTrades
}

// ClosePosition cancels the protective legs and flattens the position at
// market. Closing is allowed in every breaker state; reducing exposure
// is never blocked.
func (e *Engine) ClosePosition(ctx context.Context, symbol, reason string) (trade.Confirmation, error) {
	lock := e.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()
	return e.closeLocked(ctx, symbol, reason)
}

func (e *Engine) closeLocked(ctx context.Context, symbol, reason string) (trade.Confirmation, error) {
	pos, ok, err := e.st.Positions().OpenBySymbol(ctx, symbol)
	if err != nil {
		return trade.Confirmation{}, err
	}
	if !ok {
		return trade.Confirmation{}, fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}

	if err := e.cancelWorking(ctx, symbol); err != nil {
		logger.Warnf("cancel working orders symbol=%s: %v", symbol, err)
	}

	closeLeg := broker.Leg{
		ClientID: fmt.Sprintf("close/%s/%d", symbol, time.Now().UnixNano()),
		Symbol:   symbol,
		Side:     pos.Side.Opposite(),
		Type:     trade.OrderTypeMarket,
		Quantity: pos.Quantity,
		TIF:      "DAY",
		Remark:   reason,
	}
	closeID, err := e.gw.SubmitOrder(ctx, closeLeg)
	if err != nil {
		if errors.Is(err, broker.ErrGatewayTimeout) {
			return trade.Confirmation{}, &UnknownStateError{Op: "close position", Symbol: symbol, Err: err}
		}
		return trade.Confirmation{}, fmt.Errorf("close %s: %w", symbol, err)
	}

	exit := pos.MarkPrice
	if rec, qerr := e.gw.QueryOrder(ctx, closeID); qerr == nil && rec.FilledPrice.IsPositive() {
		exit = rec.FilledPrice
	}
	pnl := realized(pos.Side, pos.EntryPrice, exit, pos.Quantity)

	now := time.Now()
	pos.Open = false
	pos.RealizedPnL = pnl
	pos.ClosedAt = now
	pos.UpdatedAt = now
	if err := e.st.Positions().Save(ctx, pos); err != nil {
		logger.Errorf("position close save failed symbol=%s: %v", symbol, err)
	}

	e.alerts.Emit(alert.New(alert.SeverityInfo, "position closed",
		"symbol", symbol, "reason", reason, "pnl", pnl.StringFixed(2)))
	return trade.Confirmation{
		Symbol:      symbol,
		OrderID:     closeID,
		Quantity:    pos.Quantity,
		RealizedPnL: pnl,
		Reason:      reason,
		At:          now,
	}, nil
}

// CloseAll flattens every countable open position. Failures on one
// symbol do not stop the others; all errors come back joined.
func (e *Engine) CloseAll(ctx context.Context, reason string) ([]trade.Confirmation, error) {
	open, err := e.st.Positions().Open(ctx)
	if err != nil {
		return nil, err
	}
	var (
		confs []trade.Confirmation
		errs  []error
	)
	for _, p := range open {
		if !p.Countable() {
			// A phantom row has no stock behind it at the broker; a market
			// close here would open an unintended short. Leave it flagged
			// for the operator instead.
			e.alerts.Emit(alert.New(alert.SeverityWarning, "close-all skipped unreconciled position",
				"symbol", p.Symbol, "state", string(p.Reconciliation), "reason", reason))
			continue
		}
		conf, err := e.ClosePosition(ctx, p.Symbol, reason)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Symbol, err))
			continue
		}
		confs = append(confs, conf)
	}
	return confs, errors.Join(errs...)
}

// cancelWorking cancels every non-terminal local order for symbol.
func (e *Engine) cancelWorking(ctx context.Context, symbol string) error {
	recs, err := e.st.Orders().BySymbol(ctx, symbol)
	if err != nil {
		return err
	}
	var errs []error
	for _, rec := range recs {
		if rec.Status.Terminal() {
			continue
		}
		if err := e.gw.CancelOrder(ctx, rec.BrokerID); err != nil && !errors.Is(err, broker.ErrOrderNotFound) {
			errs = append(errs, fmt.Errorf("cancel %s: %w", rec.BrokerID, err))
			continue
		}
		// Adopt the broker's view: a filled leg stays filled even though
		// the cancel raced it.
		if live, qerr := e.gw.QueryOrder(ctx, rec.BrokerID); qerr == nil {
			rec.Status = live.Status
			rec.FilledQty = live.FilledQty
			rec.FilledPrice = live.FilledPrice
		} else {
			rec.Status = trade.StatusCancelled
		}
		rec.LastSyncedAt = time.Now()
		if err := e.st.Orders().Save(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// emergencyClose tears a symbol down from broker truth: cancel anything
// working, flatten whatever the broker actually holds, close the local
// row.
func (e *Engine) emergencyClose(ctx context.Context, symbol, reason string) error {
	if err := e.cancelWorking(ctx, symbol); err != nil {
		logger.Warnf("emergency cancel symbol=%s: %v", symbol, err)
	}

	positions, err := e.gw.QueryPositions(ctx)
	if err != nil {
		return fmt.Errorf("query positions: %w", err)
	}
	for _, p := range positions {
		if p.Symbol != symbol || p.Quantity <= 0 {
			continue
		}
		leg := broker.Leg{
			ClientID: fmt.Sprintf("emergency/%s/%d", symbol, time.Now().UnixNano()),
			Symbol:   symbol,
			Side:     p.Side.Opposite(),
			Type:     trade.OrderTypeMarket,
			Quantity: p.Quantity,
			TIF:      "DAY",
			Remark:   reason,
		}
		if _, err := e.gw.SubmitOrder(ctx, leg); err != nil {
			return fmt.Errorf("emergency close %s: %w", symbol, err)
		}
	}

	if pos, ok, err := e.st.Positions().OpenBySymbol(ctx, symbol); err == nil && ok {
		now := time.Now()
		pos.Open = false
		pos.ClosedAt = now
		pos.UpdatedAt = now
		if err := e.st.Positions().Save(ctx, pos); err != nil {
			logger.Errorf("emergency close save failed symbol=%s: %v", symbol, err)
		}
	}
	return nil
}

func realized(side trade.Side, entry, exit decimal.Decimal, qty int64) decimal.Decimal {
	diff := exit.Sub(entry)
	if side == trade.SideShort {
		diff = entry.Sub(exit)
	}
	return diff.Mul(decimal.NewFromInt(qty))
}
