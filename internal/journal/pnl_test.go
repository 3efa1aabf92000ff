package journal

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{
		"LONG":   Long,
		"long":   Long,
		" Short": Short,
		"SHORT":  Short,
	} {
		got, ok := ParseDirection(in)
		assert.True(t, ok, "input %q", in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "BUY", "SELL", "LONGG"} {
		_, ok := ParseDirection(in)
		assert.False(t, ok, "input %q", in)
	}
}

func TestPnL_Directions(t *testing.T) {
	// LONG profits when price rises.
	pnl := PnL(d("100"), d("110"), d("2"), Long, d("1"))
	assert.True(t, pnl.Equal(d("19")), "got %s", pnl)

	// SHORT profits when price falls.
	pnl = PnL(d("100"), d("90"), d("2"), Short, d("1"))
	assert.True(t, pnl.Equal(d("19")), "got %s", pnl)

	// A rising price on a SHORT is a loss.
	pnl = PnL(d("100"), d("110"), d("2"), Short, d("0"))
	assert.True(t, pnl.Equal(d("-20")), "got %s", pnl)
}

func TestPnL_DecimalExactness(t *testing.T) {
	// (10.000002 - 10.000001) * 0.1 = 0.00000001, a value binary floating
	// point cannot represent exactly.
	one := PnL(d("10.000001"), d("10.000002"), d("0.1"), Long, d("0"))
	assert.True(t, one.Equal(d("0.00000001")), "got %s", one)

	// Summing ten of them must land exactly on 10x the value.
	sum := decimal.Zero
	for i := 0; i < 10; i++ {
		sum = sum.Add(PnL(d("10.000001"), d("10.000002"), d("0.1"), Long, d("0")))
	}
	assert.True(t, sum.Equal(d("0.0000001")), "got %s", sum)
}

func TestPnL_Commission(t *testing.T) {
	// Commission is subtracted after the directional move.
	pnl := PnL(d("50"), d("50"), d("10"), Long, d("2.5"))
	assert.True(t, pnl.Equal(d("-2.5")), "got %s", pnl)
}
