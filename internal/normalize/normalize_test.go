package normalize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalyst/internal/ticks"
	"catalyst/internal/trade"
)

func TestPriceSnapsToTierTick(t *testing.T) {
	table := ticks.HKEX()

	cases := []struct {
		in   string
		want string
	}{
		{"380.33", "380.4"}, // 0.20 tier, half away from zero
		{"380.29", "380.2"},
		{"9.054", "9.05"}, // 0.01 tier
		{"0.1234", "0.123"},
		{"150.07", "150.1"}, // 0.10 tier
		{"700.10", "700"},   // 0.50 tier
	}
	for _, tc := range cases {
		got, err := Price(decimal.RequireFromString(tc.in), table)
		require.NoError(t, err, tc.in)
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)),
			"price %s: got %s, want %s", tc.in, got, tc.want)
	}
}

func TestPriceIdempotent(t *testing.T) {
	table := ticks.HKEX()
	once, err := Price(decimal.RequireFromString("380.33"), table)
	require.NoError(t, err)
	twice, err := Price(once, table)
	require.NoError(t, err)
	assert.True(t, once.Equal(twice))
}

func TestPriceFromFloatKillsBinaryNoise(t *testing.T) {
	table := ticks.HKEX()
	clean, err := PriceFromFloat(9.05, table)
	require.NoError(t, err)
	noisy, err := PriceFromFloat(9.050000000000001, table)
	require.NoError(t, err)
	assert.True(t, clean.Equal(noisy), "got %s vs %s", clean, noisy)
	assert.Equal(t, "9.05", clean.String())
}

func TestPriceRejectsNonPositive(t *testing.T) {
	table := ticks.HKEX()
	_, err := Price(decimal.Zero, table)
	var invalid *InvalidPriceError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "price", invalid.Field)

	_, err = Price(decimal.NewFromInt(-5), table)
	require.ErrorAs(t, err, &invalid)
}

func TestQuantityFloorsToLot(t *testing.T) {
	table := ticks.HKEX()

	got, err := Quantity(433, table)
	require.NoError(t, err)
	assert.Equal(t, int64(400), got)

	got, err = Quantity(100, table)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got)

	_, err = Quantity(99, table)
	var invalid *InvalidPriceError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "quantity", invalid.Field)
}

func validIntent() trade.TradeIntent {
	return trade.TradeIntent{
		ID:         "intent-1",
		Symbol:     "700",
		Exchange:   "HKEX",
		Side:       trade.SideLong,
		Quantity:   433,
		EntryPrice: decimal.RequireFromString("380.33"),
		StopLoss:   decimal.RequireFromString("370.11"),
		TakeProfit: decimal.RequireFromString("405.87"),
	}
}

func TestIntentNormalizesWholeOrder(t *testing.T) {
	o, err := Intent(validIntent(), ticks.HKEX())
	require.NoError(t, err)

	assert.Equal(t, "700", o.Symbol)
	assert.Equal(t, int64(400), o.Quantity)
	assert.Equal(t, trade.OrderTypeLimit, o.EntryType)
	assert.True(t, o.EntryPrice.Equal(decimal.RequireFromString("380.4")))
	assert.True(t, o.StopLoss.Equal(decimal.RequireFromString("370.2")))
	assert.True(t, o.TakeProfit.Equal(decimal.RequireFromString("405.8")))
	assert.True(t, o.Tick.Equal(decimal.RequireFromString("0.2")))
	assert.Equal(t, int64(100), o.LotSize)
}

func TestIntentSizesFromNotional(t *testing.T) {
	intent := validIntent()
	intent.Quantity = 0
	intent.Notional = decimal.NewFromInt(200_000)

	o, err := Intent(intent, ticks.HKEX())
	require.NoError(t, err)
	// 200000 / 380.4 = 525.7 shares, floored to 500 by the board lot.
	assert.Equal(t, int64(500), o.Quantity)
}

func TestIntentRequiresProtectiveLegs(t *testing.T) {
	var invalid *InvalidPriceError

	intent := validIntent()
	intent.StopLoss = decimal.Zero
	_, err := Intent(intent, ticks.HKEX())
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "stop_loss", invalid.Field)

	intent = validIntent()
	intent.TakeProfit = decimal.Zero
	_, err = Intent(intent, ticks.HKEX())
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "take_profit", invalid.Field)
}

func TestIntentRejectsWrongSideProtection(t *testing.T) {
	var invalid *InvalidPriceError

	intent := validIntent()
	intent.StopLoss = decimal.RequireFromString("390.00") // above entry on a long
	_, err := Intent(intent, ticks.HKEX())
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "stop_loss", invalid.Field)

	short := validIntent()
	short.Side = trade.SideShort
	short.StopLoss = decimal.RequireFromString("390.00")
	short.TakeProfit = decimal.RequireFromString("360.00")
	_, err = Intent(short, ticks.HKEX())
	require.NoError(t, err)

	short.TakeProfit = decimal.RequireFromString("395.00") // above entry on a short
	_, err = Intent(short, ticks.HKEX())
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "take_profit", invalid.Field)
}

func TestIntentRejectsUnknownSideAndEntryType(t *testing.T) {
	var invalid *InvalidPriceError

	intent := validIntent()
	intent.Side = "sideways"
	_, err := Intent(intent, ticks.HKEX())
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "side", invalid.Field)

	intent = validIntent()
	intent.EntryType = trade.OrderTypeStop
	_, err = Intent(intent, ticks.HKEX())
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "entry_type", invalid.Field)
}
