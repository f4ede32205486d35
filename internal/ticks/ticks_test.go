package ticks

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestHKEXTiers(t *testing.T) {
	table := HKEX()

	cases := []struct {
		price string
		tick  string
	}{
		{"0.10", "0.001"},
		{"0.30", "0.005"},
		{"5.00", "0.01"},
		{"15.00", "0.02"},
		{"50.00", "0.05"},
		{"150.00", "0.10"},
		{"380.33", "0.20"},
		{"700.00", "0.50"},
		{"1500.00", "1"},
		{"3000.00", "2"},
		{"8000.00", "5"},
	}
	for _, tc := range cases {
		price := decimal.RequireFromString(tc.price)
		want := decimal.RequireFromString(tc.tick)
		assert.True(t, table.TickFor(price).Equal(want),
			"price %s: got tick %s, want %s", tc.price, table.TickFor(price), tc.tick)
	}
}

func TestHKEXLotSize(t *testing.T) {
	assert.Equal(t, int64(100), HKEX().LotSize)
}

func TestTickAtTierBoundary(t *testing.T) {
	table := HKEX()
	// A price exactly on a ceiling belongs to the next tier.
	assert.True(t, table.TickFor(decimal.RequireFromString("10")).Equal(decimal.RequireFromString("0.02")))
	assert.True(t, table.TickFor(decimal.RequireFromString("9.99")).Equal(decimal.RequireFromString("0.01")))
}

func TestForExchange(t *testing.T) {
	for _, code := range []string{"HKEX", "SEHK", "HK", "hkex"} {
		table := ForExchange(code)
		assert.Equal(t, int64(100), table.LotSize, "exchange %s", code)
	}

	def := ForExchange("NYSE")
	assert.Equal(t, int64(1), def.LotSize)
	assert.True(t, def.TickFor(decimal.RequireFromString("123.45")).Equal(decimal.RequireFromString("0.01")))
}
