package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalyst/internal/alert"
	"catalyst/internal/trade"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "catalyst.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOrderRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := trade.OrderRecord{
		BrokerID:     "o-1",
		ClientID:     "intent-1/entry",
		Symbol:       "700",
		Role:         trade.LegEntry,
		Side:         trade.SideLong,
		Type:         trade.OrderTypeLimit,
		Status:       trade.StatusWorking,
		Quantity:     400,
		Price:        decimal.RequireFromString("380.4"),
		OCAGroup:     "oca-1",
		LastSyncedAt: time.Now(),
	}
	require.NoError(t, st.Orders().Save(ctx, rec))

	got, ok, err := st.Orders().Get(ctx, "o-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.ClientID, got.ClientID)
	assert.Equal(t, trade.StatusWorking, got.Status)
	assert.True(t, got.Price.Equal(rec.Price), "price survived as %s", got.Price)

	// Save again updates in place, no duplicate row.
	rec.Status = trade.StatusFilled
	rec.FilledQty = 400
	rec.FilledPrice = decimal.RequireFromString("380.4")
	require.NoError(t, st.Orders().Save(ctx, rec))

	open, err := st.Orders().Open(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	bySym, err := st.Orders().BySymbol(ctx, "700")
	require.NoError(t, err)
	require.Len(t, bySym, 1)
	assert.Equal(t, trade.StatusFilled, bySym[0].Status)
}

func TestOpenIncludesUnknown(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Orders().Save(ctx, trade.OrderRecord{
		BrokerID: "u-1", Symbol: "700", Status: trade.StatusUnknown,
	}))
	require.NoError(t, st.Orders().Save(ctx, trade.OrderRecord{
		BrokerID: "c-1", Symbol: "700", Status: trade.StatusCancelled,
	}))

	open, err := st.Orders().Open(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "u-1", open[0].BrokerID)
}

func TestPositionLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	pos := trade.Position{
		Symbol:         "700",
		Side:           trade.SideLong,
		Quantity:       400,
		EntryPrice:     decimal.RequireFromString("380.4"),
		StopLoss:       decimal.RequireFromString("370.2"),
		TakeProfit:     decimal.RequireFromString("405.8"),
		Open:           true,
		Reconciliation: trade.ReconcileConfirmed,
		OpenedAt:       time.Now(),
	}
	require.NoError(t, st.Positions().Save(ctx, pos))

	got, ok, err := st.Positions().OpenBySymbol(ctx, "700")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.StopLoss.Equal(pos.StopLoss))

	// Close, then reopen: the closed row must survive as audit history.
	got.Open = false
	got.RealizedPnL = decimal.RequireFromString("-2160")
	got.ClosedAt = time.Now()
	require.NoError(t, st.Positions().Save(ctx, got))

	_, ok, err = st.Positions().OpenBySymbol(ctx, "700")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.Positions().Save(ctx, pos))
	open, err := st.Positions().Open(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestEventTrail(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Events().Append(ctx, alert.New(alert.SeverityWarning, "phantom position", "symbol", "700")))
	require.NoError(t, st.Events().Append(ctx, alert.New(alert.SeverityCritical, "breaker transition", "to", "EMERGENCY")))

	recent, err := st.Events().Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "breaker transition", recent[0].Subject)
	assert.Equal(t, "EMERGENCY", recent[0].Context["to"])
	assert.Equal(t, "phantom position", recent[1].Subject)
}
