package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"catalyst/internal/alert"
	"catalyst/internal/trade"
)

type OrderModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	BrokerID      string `gorm:"column:broker_id;uniqueIndex"`
	ClientID      string `gorm:"column:client_id;index"`
	Symbol        string `gorm:"column:symbol;index"`
	Role          string `gorm:"column:role"`
	Side          string `gorm:"column:side"`
	Type          string `gorm:"column:type"`
	Status        string `gorm:"column:status;index"`
	Quantity      int64  `gorm:"column:quantity"`
	FilledQty     int64  `gorm:"column:filled_qty"`
	Price         string `gorm:"column:price"`
	StopPrice     string `gorm:"column:stop_price"`
	FilledPrice   string `gorm:"column:filled_price"`
	ParentID      string `gorm:"column:parent_id;index"`
	OCAGroup      string `gorm:"column:oca_group;index"`
	LastSyncedAt  int64  `gorm:"column:last_synced_at"`
	CreatedAtUnix int64  `gorm:"column:created_at"`
	UpdatedAtUnix int64  `gorm:"column:updated_at"`
}

func (OrderModel) TableName() string { return "orders" }

type PositionModel struct {
	ID             int64  `gorm:"column:id;primaryKey"`
	Symbol         string `gorm:"column:symbol;index"`
	Side           string `gorm:"column:side"`
	Quantity       int64  `gorm:"column:quantity"`
	EntryPrice     string `gorm:"column:entry_price"`
	StopLoss       string `gorm:"column:stop_loss"`
	TakeProfit     string `gorm:"column:take_profit"`
	MarkPrice      string `gorm:"column:mark_price"`
	UnrealizedPnL  string `gorm:"column:unrealized_pnl"`
	RealizedPnL    string `gorm:"column:realized_pnl"`
	Open           bool   `gorm:"column:open;index"`
	Reconciliation string `gorm:"column:reconciliation"`
	OCAGroup       string `gorm:"column:oca_group"`
	EntryOrderID   string `gorm:"column:entry_order_id"`
	OpenedAtUnix   int64  `gorm:"column:opened_at"`
	ClosedAtUnix   int64  `gorm:"column:closed_at"`
	UpdatedAtUnix  int64  `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

// EventModel is the audit trail row for operational alerts.
type EventModel struct {
	ID          int64          `gorm:"column:id;primaryKey"`
	Severity    string         `gorm:"column:severity;index"`
	Subject     string         `gorm:"column:subject;index"`
	ContextJSON datatypes.JSON `gorm:"column:context_json;type:TEXT"`
	AtUnix      int64          `gorm:"column:at"`
}

func (EventModel) TableName() string { return "events" }

func FromOrderRecord(rec trade.OrderRecord) OrderModel {
	return OrderModel{
		BrokerID:     rec.BrokerID,
		ClientID:     rec.ClientID,
		Symbol:       rec.Symbol,
		Role:         string(rec.Role),
		Side:         string(rec.Side),
		Type:         string(rec.Type),
		Status:       string(rec.Status),
		Quantity:     rec.Quantity,
		FilledQty:    rec.FilledQty,
		Price:        rec.Price.String(),
		StopPrice:    rec.StopPrice.String(),
		FilledPrice:  rec.FilledPrice.String(),
		ParentID:     rec.ParentID,
		OCAGroup:     rec.OCAGroup,
		LastSyncedAt: unix(rec.LastSyncedAt),
	}
}

func (m OrderModel) ToOrderRecord() trade.OrderRecord {
	return trade.OrderRecord{
		BrokerID:     m.BrokerID,
		ClientID:     m.ClientID,
		Symbol:       m.Symbol,
		Role:         trade.LegRole(m.Role),
		Side:         trade.Side(m.Side),
		Type:         trade.OrderType(m.Type),
		Status:       trade.OrderStatus(m.Status),
		Quantity:     m.Quantity,
		FilledQty:    m.FilledQty,
		Price:        dec(m.Price),
		StopPrice:    dec(m.StopPrice),
		FilledPrice:  dec(m.FilledPrice),
		ParentID:     m.ParentID,
		OCAGroup:     m.OCAGroup,
		LastSyncedAt: fromUnix(m.LastSyncedAt),
	}
}

func FromPosition(pos trade.Position) PositionModel {
	return PositionModel{
		Symbol:         pos.Symbol,
		Side:           string(pos.Side),
		Quantity:       pos.Quantity,
		EntryPrice:     pos.EntryPrice.String(),
		StopLoss:       pos.StopLoss.String(),
		TakeProfit:     pos.TakeProfit.String(),
		MarkPrice:      pos.MarkPrice.String(),
		UnrealizedPnL:  pos.UnrealizedPnL.String(),
		RealizedPnL:    pos.RealizedPnL.String(),
		Open:           pos.Open,
		Reconciliation: string(pos.Reconciliation),
		OCAGroup:       pos.OCAGroup,
		EntryOrderID:   pos.EntryOrderID,
		OpenedAtUnix:   unix(pos.OpenedAt),
		ClosedAtUnix:   unix(pos.ClosedAt),
		UpdatedAtUnix:  unix(pos.UpdatedAt),
	}
}

func (m PositionModel) ToPosition() trade.Position {
	return trade.Position{
		Symbol:         m.Symbol,
		Side:           trade.Side(m.Side),
		Quantity:       m.Quantity,
		EntryPrice:     dec(m.EntryPrice),
		StopLoss:       dec(m.StopLoss),
		TakeProfit:     dec(m.TakeProfit),
		MarkPrice:      dec(m.MarkPrice),
		UnrealizedPnL:  dec(m.UnrealizedPnL),
		RealizedPnL:    dec(m.RealizedPnL),
		Open:           m.Open,
		Reconciliation: trade.ReconcileState(m.Reconciliation),
		OCAGroup:       m.OCAGroup,
		EntryOrderID:   m.EntryOrderID,
		OpenedAt:       fromUnix(m.OpenedAtUnix),
		ClosedAt:       fromUnix(m.ClosedAtUnix),
		UpdatedAt:      fromUnix(m.UpdatedAtUnix),
	}
}

func FromEvent(e alert.Event) EventModel {
	ctx, _ := json.Marshal(e.Context)
	return EventModel{
		Severity:    string(e.Severity),
		Subject:     e.Subject,
		ContextJSON: datatypes.JSON(ctx),
		AtUnix:      unix(e.At),
	}
}

func (m EventModel) ToEvent() alert.Event {
	var ctx map[string]string
	_ = json.Unmarshal(m.ContextJSON, &ctx)
	return alert.Event{
		Severity: alert.Severity(m.Severity),
		Subject:  m.Subject,
		Context:  ctx,
		At:       fromUnix(m.AtUnix),
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(s int64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(s, 0)
}
