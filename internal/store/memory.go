package store

import (
	"context"
	"sync"
	"time"

	"catalyst/internal/alert"
	"catalyst/internal/trade"
)

// Memory is a mutex-guarded in-process store. Concurrent writers see
// whole records only; a partial update can never interleave.
type Memory struct {
	orders    memoryOrders
	positions memoryPositions
	events    memoryEvents
}

func NewMemory() *Memory {
	return &Memory{
		orders:    memoryOrders{byID: make(map[string]trade.OrderRecord)},
		positions: memoryPositions{},
		events:    memoryEvents{},
	}
}

func (m *Memory) Orders() Orders       { return &m.orders }
func (m *Memory) Positions() Positions { return &m.positions }
func (m *Memory) Events() Events       { return &m.events }
func (m *Memory) Close() error         { return nil }

type memoryOrders struct {
	mu   sync.RWMutex
	byID map[string]trade.OrderRecord
}

func (o *memoryOrders) Save(_ context.Context, rec trade.OrderRecord) error {
	o.mu.Lock()
	o.byID[rec.BrokerID] = rec
	o.mu.Unlock()
	return nil
}

func (o *memoryOrders) Get(_ context.Context, brokerID string) (trade.OrderRecord, bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rec, ok := o.byID[brokerID]
	return rec, ok, nil
}

func (o *memoryOrders) Open(_ context.Context) ([]trade.OrderRecord, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []trade.OrderRecord
	for _, rec := range o.byID {
		if !rec.Status.Terminal() {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (o *memoryOrders) BySymbol(_ context.Context, symbol string) ([]trade.OrderRecord, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []trade.OrderRecord
	for _, rec := range o.byID {
		if rec.Symbol == symbol {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memoryPositions struct {
	mu   sync.RWMutex
	rows []trade.Position
}

func (p *memoryPositions) Save(_ context.Context, pos trade.Position) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos.UpdatedAt.IsZero() {
		pos.UpdatedAt = time.Now()
	}
	for i := range p.rows {
		// An open row for the symbol is updated in place; closed rows
		// stay untouched for audit.
		if p.rows[i].Symbol == pos.Symbol && p.rows[i].Open {
			p.rows[i] = pos
			return nil
		}
	}
	p.rows = append(p.rows, pos)
	return nil
}

func (p *memoryPositions) Open(_ context.Context) ([]trade.Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []trade.Position
	for _, row := range p.rows {
		if row.Open {
			out = append(out, row)
		}
	}
	return out, nil
}

func (p *memoryPositions) OpenBySymbol(_ context.Context, symbol string) (trade.Position, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, row := range p.rows {
		if row.Symbol == symbol && row.Open {
			return row, true, nil
		}
	}
	return trade.Position{}, false, nil
}

type memoryEvents struct {
	mu     sync.Mutex
	events []alert.Event
}

func (e *memoryEvents) Append(_ context.Context, ev alert.Event) error {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
	return nil
}

func (e *memoryEvents) Recent(_ context.Context, limit int) ([]alert.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []alert.Event
	for i := len(e.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, e.events[i])
	}
	return out, nil
}
