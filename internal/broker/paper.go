package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"catalyst/internal/trade"
)

// Paper is an in-memory gateway used for dry runs and tests. It fills
// market entries immediately at the submitted reference price and keeps
// limit and stop legs working until filled or cancelled through the test
// helpers.
//
// Fault injection knobs reproduce observed broker misbehaviour: dropping
// child legs silently, refusing submissions, timing out.
type Paper struct {
	mu sync.Mutex

	orders    map[string]*trade.OrderRecord
	positions map[string]*trade.Position
	account   Account
	nextID    int

	// DropChildLegs makes the gateway accept stop/target legs without
	// recording them, mimicking a broker that silently discards bracket
	// parameters.
	DropChildLegs bool

	// SubmitErr, when set, is returned by every SubmitOrder call.
	SubmitErr error

	// QueryErr, when set, is returned by every query call.
	QueryErr error

	calls map[string]int
}

func NewPaper() *Paper {
	return &Paper{
		orders:    make(map[string]*trade.OrderRecord),
		positions: make(map[string]*trade.Position),
		account: Account{
			Equity:      decimal.NewFromInt(1_000_000),
			Cash:        decimal.NewFromInt(1_000_000),
			BuyingPower: decimal.NewFromInt(1_000_000),
			Currency:    "HKD",
		},
	}
}

func (p *Paper) Connect(ctx context.Context) error { return nil }

func (p *Paper) SubmitOrder(ctx context.Context, leg Leg) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("submit")
	if p.SubmitErr != nil {
		return "", p.SubmitErr
	}

	p.nextID++
	id := fmt.Sprintf("P-%d", p.nextID)

	if p.DropChildLegs && leg.Role != trade.LegEntry {
		// Broker "accepts" the leg but never registers it.
		return id, nil
	}

	rec := &trade.OrderRecord{
		BrokerID:     id,
		ClientID:     leg.ClientID,
		Symbol:       leg.Symbol,
		Role:         leg.Role,
		Side:         leg.Side,
		Type:         leg.Type,
		Status:       trade.StatusWorking,
		Quantity:     leg.Quantity,
		Price:        leg.Price,
		StopPrice:    leg.StopPrice,
		ParentID:     leg.ParentID,
		OCAGroup:     leg.OCAGroup,
		LastSyncedAt: time.Now(),
	}
	if leg.Held {
		rec.Status = trade.StatusPending
	}
	p.orders[id] = rec

	if leg.Type == trade.OrderTypeMarket && !leg.Held {
		p.fillLocked(rec, leg.Price)
	}
	return id, nil
}

func (p *Paper) QueryOrder(ctx context.Context, brokerID string) (trade.OrderRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("query_order")
	if p.QueryErr != nil {
		return trade.OrderRecord{}, p.QueryErr
	}
	rec, ok := p.orders[brokerID]
	if !ok {
		return trade.OrderRecord{}, ErrOrderNotFound
	}
	return *rec, nil
}

func (p *Paper) QueryOpenOrders(ctx context.Context) ([]trade.OrderRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.QueryErr != nil {
		return nil, p.QueryErr
	}
	var out []trade.OrderRecord
	for _, rec := range p.orders {
		if !rec.Status.Terminal() {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (p *Paper) QueryPositions(ctx context.Context) ([]trade.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("query_positions")
	if p.QueryErr != nil {
		return nil, p.QueryErr
	}
	var out []trade.Position
	for _, pos := range p.positions {
		if pos.Open {
			out = append(out, *pos)
		}
	}
	return out, nil
}

func (p *Paper) CancelOrder(ctx context.Context, brokerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.orders[brokerID]
	if !ok {
		return ErrOrderNotFound
	}
	if !rec.Status.Terminal() {
		rec.Status = trade.StatusCancelled
	}
	return nil
}

func (p *Paper) QueryBuyingPower(ctx context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.QueryErr != nil {
		return decimal.Zero, p.QueryErr
	}
	return p.account.BuyingPower, nil
}

func (p *Paper) QueryAccount(ctx context.Context) (Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.QueryErr != nil {
		return Account{}, p.QueryErr
	}
	return p.account, nil
}

// SetAccount overrides the simulated account summary.
func (p *Paper) SetAccount(acct Account) {
	p.mu.Lock()
	p.account = acct
	p.mu.Unlock()
}

// Fill marks an order filled at price, applying position effects and
// cancelling OCA siblings the way a real OCA group would.
func (p *Paper) Fill(brokerID string, price decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.orders[brokerID]
	if !ok {
		return ErrOrderNotFound
	}
	p.fillLocked(rec, price)
	return nil
}

// InjectPosition seeds a broker-side position that the local store knows
// nothing about (an orphan, from the engine's point of view).
func (p *Paper) InjectPosition(pos trade.Position) {
	p.mu.Lock()
	pos.Open = true
	p.positions[pos.Symbol] = &pos
	p.mu.Unlock()
}

// RemovePosition deletes a broker-side position, turning any local copy
// into a phantom.
func (p *Paper) RemovePosition(symbol string) {
	p.mu.Lock()
	delete(p.positions, symbol)
	p.mu.Unlock()
}

// SetPositionQuantity forces a broker-side quantity, creating a
// mismatch against the local cache.
func (p *Paper) SetPositionQuantity(symbol string, qty int64) {
	p.mu.Lock()
	if pos, ok := p.positions[symbol]; ok {
		pos.Quantity = qty
	}
	p.mu.Unlock()
}

// DropOrder erases an order record so subsequent queries return
// ErrOrderNotFound, as brokers have been observed to do.
func (p *Paper) DropOrder(brokerID string) {
	p.mu.Lock()
	delete(p.orders, brokerID)
	p.mu.Unlock()
}

// Calls returns how many times the named gateway operation ran.
func (p *Paper) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *Paper) record(op string) {
	if p.calls == nil {
		p.calls = make(map[string]int)
	}
	p.calls[op]++
}

func (p *Paper) fillLocked(rec *trade.OrderRecord, price decimal.Decimal) {
	if rec.Status.Terminal() {
		return
	}
	if price.IsZero() {
		price = rec.Price
	}
	rec.Status = trade.StatusFilled
	rec.FilledQty = rec.Quantity
	rec.FilledPrice = price
	rec.LastSyncedAt = time.Now()

	// One fill in an OCA group cancels the siblings.
	if rec.OCAGroup != "" {
		for _, other := range p.orders {
			if other.BrokerID != rec.BrokerID && other.OCAGroup == rec.OCAGroup && !other.Status.Terminal() {
				other.Status = trade.StatusCancelled
			}
		}
	}

	switch rec.Role {
	case trade.LegEntry:
		p.positions[rec.Symbol] = &trade.Position{
			Symbol:       rec.Symbol,
			Side:         rec.Side,
			Quantity:     rec.Quantity,
			EntryPrice:   price,
			Open:         true,
			OCAGroup:     rec.OCAGroup,
			EntryOrderID: rec.BrokerID,
			OpenedAt:     time.Now(),
			UpdatedAt:    time.Now(),
		}
	case trade.LegStop, trade.LegTarget:
		if pos, ok := p.positions[rec.Symbol]; ok && pos.Open {
			pos.Quantity -= rec.Quantity
			if pos.Quantity <= 0 {
				pos.Open = false
				pos.ClosedAt = time.Now()
			}
			pos.UpdatedAt = time.Now()
		}
	}

	// A close order submitted outside a bracket reduces the opposite
	// position too.
	if rec.Role == "" {
		if pos, ok := p.positions[rec.Symbol]; ok && pos.Open && pos.Side != rec.Side {
			pos.Quantity -= rec.Quantity
			if pos.Quantity <= 0 {
				pos.Open = false
				pos.ClosedAt = time.Now()
			}
			pos.UpdatedAt = time.Now()
		}
	}
}
