package enginehttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"catalyst/internal/engine"
	"catalyst/internal/normalize"
	"catalyst/internal/order"
	"catalyst/internal/risk"
	"catalyst/internal/store"
	"catalyst/internal/trade"
)

// Router holds the API handlers.
type Router struct {
	Engine *engine.Engine
	Store  store.Store
}

func NewRouter(eng *engine.Engine, st store.Store) *Router {
	return &Router{Engine: eng, Store: st}
}

func (r *Router) Register(group *gin.RouterGroup) {
	group.POST("/intents", r.handleSubmitIntent)
	group.GET("/positions", r.handlePositions)
	group.POST("/positions/:symbol/close", r.handleClosePosition)
	group.POST("/close-all", r.handleCloseAll)
	group.GET("/orders", r.handleOrders)
	group.GET("/portfolio", r.handlePortfolio)
	group.GET("/breaker", r.handleBreaker)
	group.POST("/breaker/reset", r.handleBreakerReset)
	group.GET("/events", r.handleEvents)
}

type intentRequest struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Exchange   string  `json:"exchange"`
	Side       string  `json:"side"`
	Quantity   int64   `json:"quantity"`
	Notional   float64 `json:"notional"`
	EntryType  string  `json:"entry_type"`
	EntryPrice float64 `json:"entry_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Reason     string  `json:"reason"`
}

func (r *Router) handleSubmitIntent(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reading body failed"})
		return
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := compiledIntentSchema.Validate(doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req intentRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Exchange == "" {
		req.Exchange = "HKEX"
	}

	intent := trade.TradeIntent{
		ID:         req.ID,
		Symbol:     req.Symbol,
		Exchange:   req.Exchange,
		Side:       trade.Side(req.Side),
		Quantity:   req.Quantity,
		Notional:   decimal.NewFromFloat(req.Notional),
		EntryType:  trade.OrderType(req.EntryType),
		EntryPrice: decimal.NewFromFloat(req.EntryPrice),
		StopLoss:   decimal.NewFromFloat(req.StopLoss),
		TakeProfit: decimal.NewFromFloat(req.TakeProfit),
		Reason:     req.Reason,
		CreatedAt:  time.Now(),
	}

	receipt, err := r.Engine.Submit(c.Request.Context(), intent)
	if err != nil {
		status, payload := submitErrorResponse(err)
		c.JSON(status, payload)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// submitErrorResponse maps pipeline errors onto HTTP statuses so
// callers can distinguish "fix your request" from "the engine refused"
// from "the outcome is unknown".
func submitErrorResponse(err error) (int, gin.H) {
	var (
		invalid   *normalize.InvalidPriceError
		rejection *risk.Rejection
		closed    *engine.MarketClosedError
		integrity *order.BracketIntegrityError
		unknown   *engine.UnknownStateError
	)
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, gin.H{"error": invalid.Error(), "kind": "invalid_price"}
	case errors.As(err, &rejection):
		return http.StatusUnprocessableEntity, gin.H{"error": rejection.Error(), "kind": "risk_rejection", "rule": rejection.Rule}
	case errors.As(err, &closed):
		return http.StatusConflict, gin.H{"error": closed.Error(), "kind": "market_closed", "phase": string(closed.Phase)}
	case errors.Is(err, engine.ErrHalted), errors.Is(err, engine.ErrEntriesSuspended):
		return http.StatusConflict, gin.H{"error": err.Error(), "kind": "breaker"}
	case errors.As(err, &integrity):
		return http.StatusBadGateway, gin.H{"error": integrity.Error(), "kind": "bracket_integrity"}
	case errors.As(err, &unknown):
		return http.StatusBadGateway, gin.H{"error": unknown.Error(), "kind": "unknown_state"}
	default:
		return http.StatusInternalServerError, gin.H{"error": err.Error()}
	}
}

func (r *Router) handlePositions(c *gin.Context) {
	positions, err := r.Store.Positions().Open(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (r *Router) handleClosePosition(c *gin.Context) {
	symbol := c.Param("symbol")
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	if body.Reason == "" {
		body.Reason = "manual close"
	}

	conf, err := r.Engine.ClosePosition(c.Request.Context(), symbol, body.Reason)
	if err != nil {
		if errors.Is(err, engine.ErrPositionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		var unknown *engine.UnknownStateError
		if errors.As(err, &unknown) {
			c.JSON(http.StatusBadGateway, gin.H{"error": unknown.Error(), "kind": "unknown_state"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, conf)
}

func (r *Router) handleCloseAll(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	if body.Reason == "" {
		body.Reason = "manual close-all"
	}

	confs, err := r.Engine.CloseAll(c.Request.Context(), body.Reason)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "closed": confs})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": confs})
}

func (r *Router) handleOrders(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		records []trade.OrderRecord
		err     error
	)
	if symbol := c.Query("symbol"); symbol != "" {
		records, err = r.Store.Orders().BySymbol(ctx, symbol)
	} else {
		records, err = r.Store.Orders().Open(ctx)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": records})
}

func (r *Router) handlePortfolio(c *gin.Context) {
	snap, err := r.Engine.Portfolio(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (r *Router) handleBreaker(c *gin.Context) {
	b := r.Engine.Breaker()
	c.JSON(http.StatusOK, gin.H{
		"state":  b.State().String(),
		"reason": b.Reason(),
	})
}

func (r *Router) handleBreakerReset(c *gin.Context) {
	var body struct {
		Operator string `json:"operator"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Operator == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "operator is required"})
		return
	}
	r.Engine.Breaker().Reset(body.Operator)
	c.JSON(http.StatusOK, gin.H{"state": r.Engine.Breaker().State().String()})
}

func (r *Router) handleEvents(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	events, err := r.Store.Events().Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
