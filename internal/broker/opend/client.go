// Package opend is the gateway client for a Futu OpenD HTTP bridge.
// All OpenD-native shapes (codes, enums, padded symbols) stay inside
// this package; everything it returns is already in trade types.
package opend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"catalyst/internal/broker"
	"catalyst/internal/logger"
	"catalyst/internal/trade"
)

// Client talks to one OpenD bridge instance.
type Client struct {
	BaseURL   string
	AccountID string
	// TradeEnv selects the OpenD environment, SIMULATE or REAL.
	TradeEnv string
	HTTP     *http.Client
}

func New(host string, port int, accountID, tradeEnv string) *Client {
	if tradeEnv == "" {
		tradeEnv = "SIMULATE"
	}
	return &Client{
		BaseURL:   fmt.Sprintf("http://%s:%d", host, port),
		AccountID: accountID,
		TradeEnv:  tradeEnv,
		HTTP:      &http.Client{Timeout: 10 * time.Second},
	}
}

// FormatSymbol converts a bare HK stock code to OpenD notation:
// "700" -> "HK.00700". Codes already carrying a market prefix pass
// through untouched.
func FormatSymbol(symbol string) string {
	if strings.Contains(symbol, ".") {
		return symbol
	}
	code := symbol
	for len(code) < 5 {
		code = "0" + code
	}
	return "HK." + code
}

// ParseSymbol is the inverse of FormatSymbol: "HK.00700" -> "700".
func ParseSymbol(code string) string {
	if i := strings.IndexByte(code, '.'); i >= 0 {
		code = code[i+1:]
	}
	trimmed := strings.TrimLeft(code, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

func (c *Client) Connect(ctx context.Context) error {
	body, err := c.get(ctx, "/api/v1/status")
	if err != nil {
		return err
	}
	if ret := gjson.GetBytes(body, "ret").Int(); ret != 0 {
		return fmt.Errorf("opend status ret=%d msg=%s", ret, gjson.GetBytes(body, "msg").String())
	}
	logger.Infof("opend connected base=%s env=%s", c.BaseURL, c.TradeEnv)
	return nil
}

func (c *Client) SubmitOrder(ctx context.Context, leg broker.Leg) (string, error) {
	payload := map[string]any{
		"acc_id":        c.AccountID,
		"trd_env":       c.TradeEnv,
		"code":          FormatSymbol(leg.Symbol),
		"trd_side":      sideCode(leg.Side),
		"order_type":    typeCode(leg.Type),
		"qty":           leg.Quantity,
		"time_in_force": leg.TIF,
		"remark":        leg.Remark,
	}
	if leg.Price.IsPositive() {
		payload["price"] = leg.Price.String()
	}
	if leg.StopPrice.IsPositive() {
		payload["aux_price"] = leg.StopPrice.String()
	}
	if leg.ParentID != "" {
		payload["parent_order_id"] = leg.ParentID
	}
	if leg.OCAGroup != "" {
		payload["oca_group"] = leg.OCAGroup
	}
	if leg.Held {
		payload["hold_transmit"] = true
	}

	body, err := c.post(ctx, "/api/v1/order", payload)
	if err != nil {
		return "", err
	}
	if ret := gjson.GetBytes(body, "ret").Int(); ret != 0 {
		return "", fmt.Errorf("opend submit ret=%d msg=%s", ret, gjson.GetBytes(body, "msg").String())
	}
	id := gjson.GetBytes(body, "data.order_id").String()
	if id == "" {
		return "", fmt.Errorf("opend submit returned no order id")
	}
	return id, nil
}

func (c *Client) QueryOrder(ctx context.Context, brokerID string) (trade.OrderRecord, error) {
	body, err := c.get(ctx, "/api/v1/order?order_id="+brokerID)
	if err != nil {
		return trade.OrderRecord{}, err
	}
	ret := gjson.GetBytes(body, "ret").Int()
	if ret == retOrderNotFound {
		return trade.OrderRecord{}, broker.ErrOrderNotFound
	}
	if ret != 0 {
		return trade.OrderRecord{}, fmt.Errorf("opend query order ret=%d msg=%s", ret, gjson.GetBytes(body, "msg").String())
	}
	data := gjson.GetBytes(body, "data")
	if !data.Exists() {
		return trade.OrderRecord{}, broker.ErrOrderNotFound
	}
	return orderFromJSON(data), nil
}

func (c *Client) QueryOpenOrders(ctx context.Context) ([]trade.OrderRecord, error) {
	body, err := c.get(ctx, "/api/v1/orders?filter=incomplete")
	if err != nil {
		return nil, err
	}
	if ret := gjson.GetBytes(body, "ret").Int(); ret != 0 {
		return nil, fmt.Errorf("opend query orders ret=%d msg=%s", ret, gjson.GetBytes(body, "msg").String())
	}
	var out []trade.OrderRecord
	gjson.GetBytes(body, "data.orders").ForEach(func(_, item gjson.Result) bool {
		out = append(out, orderFromJSON(item))
		return true
	})
	return out, nil
}

func (c *Client) QueryPositions(ctx context.Context) ([]trade.Position, error) {
	body, err := c.get(ctx, "/api/v1/positions")
	if err != nil {
		return nil, err
	}
	if ret := gjson.GetBytes(body, "ret").Int(); ret != 0 {
		return nil, fmt.Errorf("opend query positions ret=%d msg=%s", ret, gjson.GetBytes(body, "msg").String())
	}
	var out []trade.Position
	gjson.GetBytes(body, "data.positions").ForEach(func(_, item gjson.Result) bool {
		side := trade.SideLong
		if item.Get("position_side").String() == "SHORT" {
			side = trade.SideShort
		}
		out = append(out, trade.Position{
			Symbol:        ParseSymbol(item.Get("code").String()),
			Side:          side,
			Quantity:      item.Get("qty").Int(),
			EntryPrice:    dec(item.Get("cost_price")),
			MarkPrice:     dec(item.Get("nominal_price")),
			UnrealizedPnL: dec(item.Get("unrealized_pl")),
			Open:          true,
		})
		return true
	})
	return out, nil
}

func (c *Client) CancelOrder(ctx context.Context, brokerID string) error {
	body, err := c.post(ctx, "/api/v1/order/cancel", map[string]any{
		"acc_id":   c.AccountID,
		"trd_env":  c.TradeEnv,
		"order_id": brokerID,
	})
	if err != nil {
		return err
	}
	ret := gjson.GetBytes(body, "ret").Int()
	if ret == retOrderNotFound {
		return broker.ErrOrderNotFound
	}
	if ret != 0 {
		return fmt.Errorf("opend cancel ret=%d msg=%s", ret, gjson.GetBytes(body, "msg").String())
	}
	return nil
}

func (c *Client) QueryBuyingPower(ctx context.Context) (decimal.Decimal, error) {
	acct, err := c.QueryAccount(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.BuyingPower, nil
}

func (c *Client) QueryAccount(ctx context.Context) (broker.Account, error) {
	body, err := c.get(ctx, "/api/v1/account")
	if err != nil {
		return broker.Account{}, err
	}
	if ret := gjson.GetBytes(body, "ret").Int(); ret != 0 {
		return broker.Account{}, fmt.Errorf("opend query account ret=%d msg=%s", ret, gjson.GetBytes(body, "msg").String())
	}
	data := gjson.GetBytes(body, "data")
	return broker.Account{
		Equity:        dec(data.Get("total_assets")),
		Cash:          dec(data.Get("cash")),
		BuyingPower:   dec(data.Get("power")),
		RealizedPnL:   dec(data.Get("realized_pl")),
		UnrealizedPnL: dec(data.Get("unrealized_pl")),
		Currency:      data.Get("currency").String(),
	}, nil
}

// OpenD bridge error code for an unknown order id.
const retOrderNotFound = 40404

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: %v", broker.ErrGatewayTimeout, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", broker.ErrGatewayTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", broker.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", broker.ErrGatewayTimeout, err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", broker.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("opend http status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

func orderFromJSON(item gjson.Result) trade.OrderRecord {
	return trade.OrderRecord{
		BrokerID:    item.Get("order_id").String(),
		ClientID:    item.Get("client_id").String(),
		Symbol:      ParseSymbol(item.Get("code").String()),
		Role:        trade.LegRole(item.Get("role").String()),
		Side:        sideFromCode(item.Get("trd_side").String()),
		Type:        typeFromCode(item.Get("order_type").String()),
		Status:      statusFromCode(item.Get("order_status").String()),
		Quantity:    item.Get("qty").Int(),
		FilledQty:   item.Get("dealt_qty").Int(),
		Price:       dec(item.Get("price")),
		StopPrice:   dec(item.Get("aux_price")),
		FilledPrice: dec(item.Get("dealt_avg_price")),
		ParentID:    item.Get("parent_order_id").String(),
		OCAGroup:    item.Get("oca_group").String(),
	}
}

func sideCode(s trade.Side) string {
	if s == trade.SideShort {
		return "SELL"
	}
	return "BUY"
}

func sideFromCode(code string) trade.Side {
	if code == "SELL" || code == "SELL_SHORT" {
		return trade.SideShort
	}
	return trade.SideLong
}

func typeCode(t trade.OrderType) string {
	switch t {
	case trade.OrderTypeMarket:
		return "MARKET"
	case trade.OrderTypeStop:
		return "STOP"
	default:
		return "NORMAL"
	}
}

func typeFromCode(code string) trade.OrderType {
	switch code {
	case "MARKET":
		return trade.OrderTypeMarket
	case "STOP":
		return trade.OrderTypeStop
	default:
		return trade.OrderTypeLimit
	}
}

func statusFromCode(code string) trade.OrderStatus {
	switch code {
	case "WAITING_SUBMIT", "SUBMITTING":
		return trade.StatusPending
	case "SUBMITTED":
		return trade.StatusWorking
	case "FILLED_PART":
		return trade.StatusPartiallyFilled
	case "FILLED_ALL":
		return trade.StatusFilled
	case "CANCELLED_PART", "CANCELLED_ALL":
		return trade.StatusCancelled
	case "FAILED", "DISABLED":
		return trade.StatusRejected
	case "DELETED":
		return trade.StatusExpired
	default:
		return trade.StatusUnknown
	}
}

func dec(r gjson.Result) decimal.Decimal {
	if r.Type == gjson.String {
		d, err := decimal.NewFromString(r.String())
		if err == nil {
			return d
		}
		return decimal.Zero
	}
	if !r.Exists() {
		return decimal.Zero
	}
	return decimal.NewFromFloat(r.Float())
}
