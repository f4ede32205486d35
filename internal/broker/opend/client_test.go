package opend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalyst/internal/broker"
	"catalyst/internal/trade"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := &Client{
		BaseURL:   srv.URL,
		AccountID: "acc-1",
		TradeEnv:  "SIMULATE",
		HTTP:      srv.Client(),
	}
	return c, srv
}

func TestFormatSymbol(t *testing.T) {
	assert.Equal(t, "HK.00700", FormatSymbol("700"))
	assert.Equal(t, "HK.09988", FormatSymbol("9988"))
	assert.Equal(t, "HK.00700", FormatSymbol("HK.00700"))
}

func TestParseSymbol(t *testing.T) {
	assert.Equal(t, "700", ParseSymbol("HK.00700"))
	assert.Equal(t, "9988", ParseSymbol("HK.09988"))
	assert.Equal(t, "700", ParseSymbol("00700"))
	assert.Equal(t, "0", ParseSymbol("HK.00000"))
}

func TestSubmitOrderPayload(t *testing.T) {
	var got map[string]any
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/order", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ret":0,"data":{"order_id":"7001"}}`))
	}))
	defer srv.Close()

	id, err := c.SubmitOrder(context.Background(), broker.Leg{
		ClientID:  "intent-1/stop",
		Symbol:    "700",
		Role:      trade.LegStop,
		Side:      trade.SideShort,
		Type:      trade.OrderTypeStop,
		Quantity:  400,
		StopPrice: decimal.RequireFromString("370.2"),
		TIF:       "GTC",
		ParentID:  "7000",
		OCAGroup:  "oca-1",
		Held:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, "7001", id)

	assert.Equal(t, "HK.00700", got["code"])
	assert.Equal(t, "SELL", got["trd_side"])
	assert.Equal(t, "STOP", got["order_type"])
	assert.Equal(t, "370.2", got["aux_price"])
	assert.Equal(t, "7000", got["parent_order_id"])
	assert.Equal(t, "oca-1", got["oca_group"])
	assert.Equal(t, true, got["hold_transmit"])
	assert.Equal(t, "SIMULATE", got["trd_env"])
	_, hasPrice := got["price"]
	assert.False(t, hasPrice, "stop leg carries aux_price only")
}

func TestSubmitOrderBridgeError(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ret":1001,"msg":"insufficient power"}`))
	}))
	defer srv.Close()

	_, err := c.SubmitOrder(context.Background(), broker.Leg{Symbol: "700", Quantity: 100})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient power")
}

func TestQueryOrderMapsStatus(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ret":0,"data":{
			"order_id":"7001","code":"HK.00700","trd_side":"BUY",
			"order_type":"NORMAL","order_status":"FILLED_ALL",
			"qty":400,"dealt_qty":400,"price":"380.4","dealt_avg_price":"380.4"
		}}`))
	}))
	defer srv.Close()

	rec, err := c.QueryOrder(context.Background(), "7001")
	require.NoError(t, err)
	assert.Equal(t, "700", rec.Symbol)
	assert.Equal(t, trade.SideLong, rec.Side)
	assert.Equal(t, trade.OrderTypeLimit, rec.Type)
	assert.Equal(t, trade.StatusFilled, rec.Status)
	assert.Equal(t, int64(400), rec.FilledQty)
	assert.True(t, rec.FilledPrice.Equal(decimal.RequireFromString("380.4")))
}

func TestQueryOrderNotFound(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ret":40404,"msg":"order not found"}`))
	}))
	defer srv.Close()

	_, err := c.QueryOrder(context.Background(), "nope")
	assert.ErrorIs(t, err, broker.ErrOrderNotFound)
}

func TestStatusFromCode(t *testing.T) {
	cases := map[string]trade.OrderStatus{
		"WAITING_SUBMIT": trade.StatusPending,
		"SUBMITTED":      trade.StatusWorking,
		"FILLED_PART":    trade.StatusPartiallyFilled,
		"FILLED_ALL":     trade.StatusFilled,
		"CANCELLED_ALL":  trade.StatusCancelled,
		"FAILED":         trade.StatusRejected,
		"DELETED":        trade.StatusExpired,
		"SOMETHING_NEW":  trade.StatusUnknown,
	}
	for code, want := range cases {
		assert.Equal(t, want, statusFromCode(code), code)
	}
}

func TestQueryPositions(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ret":0,"data":{"positions":[
			{"code":"HK.00700","position_side":"LONG","qty":400,
			 "cost_price":"380.4","nominal_price":"382.2","unrealized_pl":"720"},
			{"code":"HK.09988","position_side":"SHORT","qty":300,
			 "cost_price":82.5,"nominal_price":81.9,"unrealized_pl":180}
		]}}`))
	}))
	defer srv.Close()

	positions, err := c.QueryPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, "700", positions[0].Symbol)
	assert.Equal(t, trade.SideLong, positions[0].Side)
	assert.True(t, positions[0].UnrealizedPnL.Equal(decimal.RequireFromString("720")))

	assert.Equal(t, "9988", positions[1].Symbol)
	assert.Equal(t, trade.SideShort, positions[1].Side)
	assert.Equal(t, int64(300), positions[1].Quantity)
}

func TestQueryAccount(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ret":0,"data":{
			"total_assets":"1000000","cash":"600000","power":"900000",
			"realized_pl":"-2500","unrealized_pl":"720","currency":"HKD"
		}}`))
	}))
	defer srv.Close()

	acct, err := c.QueryAccount(context.Background())
	require.NoError(t, err)
	assert.True(t, acct.Equity.Equal(decimal.NewFromInt(1_000_000)))
	assert.True(t, acct.RealizedPnL.Equal(decimal.NewFromInt(-2500)))
	assert.Equal(t, "HKD", acct.Currency)

	power, err := c.QueryBuyingPower(context.Background())
	require.NoError(t, err)
	assert.True(t, power.Equal(decimal.NewFromInt(900_000)))
}

func TestCancelOrderNotFound(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ret":40404,"msg":"order not found"}`))
	}))
	defer srv.Close()

	err := c.CancelOrder(context.Background(), "nope")
	assert.ErrorIs(t, err, broker.ErrOrderNotFound)
}

func TestServerErrorIsUnavailable(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := c.QueryPositions(context.Background())
	assert.ErrorIs(t, err, broker.ErrGatewayUnavailable)
}

func TestTimeoutIsGatewayTimeout(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	c.HTTP = &http.Client{Timeout: 20 * time.Millisecond}

	_, err := c.QueryPositions(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, broker.ErrGatewayTimeout) || errors.Is(err, broker.ErrGatewayUnavailable))
}

func TestConnectionRefusedIsUnavailable(t *testing.T) {
	c := New("127.0.0.1", 1, "acc-1", "SIMULATE")
	c.HTTP.Timeout = 100 * time.Millisecond

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, broker.ErrGatewayUnavailable)
}
