package enginehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalyst/internal/alert"
	"catalyst/internal/broker"
	"catalyst/internal/engine"
	"catalyst/internal/risk"
	"catalyst/internal/session"
	"catalyst/internal/store"
	"catalyst/internal/trade"
)

type apiRig struct {
	gw      *broker.Paper
	st      *store.Memory
	breaker *risk.Breaker
	handler http.Handler
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()
	gw := broker.NewPaper()
	st := store.NewMemory()
	breaker := risk.NewBreaker()

	eng := engine.New(engine.Options{
		Gateway:      gw,
		Store:        st,
		Limits:       risk.NewBook(risk.DefaultLimits()),
		Breaker:      breaker,
		Guard:        session.NewGuard(true),
		Alerts:       &alert.Recorder{},
		VerifySettle: time.Millisecond,
	})
	srv, err := NewServer(ServerConfig{Addr: ":0", Router: NewRouter(eng, st)})
	require.NoError(t, err)
	return &apiRig{gw: gw, st: st, breaker: breaker, handler: srv.Handler()}
}

func (r *apiRig) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.handler.ServeHTTP(w, req)
	return w
}

const validIntent = `{
	"symbol": "700",
	"side": "long",
	"quantity": 400,
	"entry_type": "market",
	"entry_price": 380.33,
	"stop_loss": 370.11,
	"take_profit": 405.87,
	"reason": "breakout"
}`

func TestSubmitIntentCreated(t *testing.T) {
	rig := newAPIRig(t)

	w := rig.do(http.MethodPost, "/api/intents", validIntent)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var receipt engine.Receipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	assert.Equal(t, "700", receipt.Symbol)
	assert.NotEmpty(t, receipt.IntentID, "server assigns an id when the caller omits one")
	assert.NotEmpty(t, receipt.EntryID)
	assert.True(t, receipt.Verified)
}

func TestSubmitIntentSchemaRejection(t *testing.T) {
	rig := newAPIRig(t)

	// Missing stop_loss.
	w := rig.do(http.MethodPost, "/api/intents", `{
		"symbol": "700", "side": "long",
		"entry_price": 380.4, "take_profit": 405.8
	}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown field.
	w = rig.do(http.MethodPost, "/api/intents", `{
		"symbol": "700", "side": "long", "entry_price": 380.4,
		"stop_loss": 370.2, "take_profit": 405.8, "leverage": 10
	}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Not JSON at all.
	w = rig.do(http.MethodPost, "/api/intents", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitIntentRiskRejection(t *testing.T) {
	rig := newAPIRig(t)
	ctx := context.Background()

	for _, sym := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, rig.st.Positions().Save(ctx, trade.Position{
			Symbol: sym, Side: trade.SideLong, Quantity: 100,
			Open: true, Reconciliation: trade.ReconcileConfirmed,
		}))
	}

	w := rig.do(http.MethodPost, "/api/intents", validIntent)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "risk_rejection", body["kind"])
	assert.NotEmpty(t, body["rule"])
}

func TestSubmitIntentBreakerConflict(t *testing.T) {
	rig := newAPIRig(t)
	rig.breaker.TripSingle("700", "protective legs missing")

	w := rig.do(http.MethodPost, "/api/intents", validIntent)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "breaker", body["kind"])
}

func TestPositionsEndpoint(t *testing.T) {
	rig := newAPIRig(t)

	w := rig.do(http.MethodPost, "/api/intents", validIntent)
	require.Equal(t, http.StatusCreated, w.Code)

	w = rig.do(http.MethodGet, "/api/positions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"700"`)
}

func TestClosePositionNotFound(t *testing.T) {
	rig := newAPIRig(t)

	w := rig.do(http.MethodPost, "/api/positions/700/close", `{"reason":"test"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBreakerEndpoints(t *testing.T) {
	rig := newAPIRig(t)

	w := rig.do(http.MethodGet, "/api/breaker", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "NORMAL")

	// Reset requires an operator identity.
	w = rig.do(http.MethodPost, "/api/breaker/reset", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = rig.do(http.MethodPost, "/api/breaker/reset", `{"operator":"ops-oncall"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "NORMAL")
}

func TestOrdersAndEventsEndpoints(t *testing.T) {
	rig := newAPIRig(t)

	w := rig.do(http.MethodPost, "/api/intents", validIntent)
	require.Equal(t, http.StatusCreated, w.Code)

	w = rig.do(http.MethodGet, "/api/orders?symbol=700", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "entry")

	w = rig.do(http.MethodGet, "/api/events?limit=5", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthz(t *testing.T) {
	rig := newAPIRig(t)
	w := rig.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
