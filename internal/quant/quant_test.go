package quant

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRoundDownToStep(t *testing.T) {
	cases := []struct {
		qty, step, want string
	}{
		{"0.1234", "0.01", "0.12"},
		{"1.0", "0.001", "1"},
		{"0.009", "0.01", "0"},
		{"5", "1", "5"},
		{"5.7", "1", "5"},
		{"0.30000000000000004", "0.1", "0.3"},
	}
	for _, c := range cases {
		got := RoundDownToStep(dec(c.qty), dec(c.step))
		assert.True(t, got.Equal(dec(c.want)), "RoundDownToStep(%s, %s) = %s, want %s", c.qty, c.step, got, c.want)
	}
}

func TestRoundDownToStepZeroStep(t *testing.T) {
	got := RoundDownToStep(dec("1.234"), decimal.Zero)
	assert.True(t, got.Equal(dec("1.234")))
}

func TestFormatTrimsTrailingZeros(t *testing.T) {
	cases := map[string]string{
		"1.5000": "1.5",
		"1.0":    "1",
		"0.120":  "0.12",
		"10":     "10",
	}
	for in, want := range cases {
		assert.Equal(t, want, Format(dec(in)))
		assert.NotContains(t, Format(dec(in)), "e")
	}
}

func TestRoundPriceToTick(t *testing.T) {
	tick := dec("0.1")
	assert.Equal(t, "99.5", Format(RoundPriceToTick(dec("99.57"), tick, BiasFloor)))
	assert.Equal(t, "99.6", Format(RoundPriceToTick(dec("99.57"), tick, BiasCeil)))
	// already on the grid: bias must not move it
	assert.Equal(t, "99.5", Format(RoundPriceToTick(dec("99.5"), tick, BiasFloor)))
	assert.Equal(t, "99.5", Format(RoundPriceToTick(dec("99.5"), tick, BiasCeil)))
}

func TestParseRules(t *testing.T) {
	r, err := ParseRules("0.001", "0.001", "1000", "0.01", "5")
	require.NoError(t, err)
	assert.True(t, r.Populated())
	assert.True(t, r.MaxQty.Equal(dec("1000")))
	assert.True(t, r.MinNotional.Equal(dec("5")))

	r, err = ParseRules("1", "0", "", "0.00000001", "")
	require.NoError(t, err)
	assert.True(t, r.MaxQty.IsZero())
	assert.True(t, r.MinNotional.IsZero())

	_, err = ParseRules("abc", "0", "", "0.1", "")
	assert.Error(t, err)
}

func TestQtyFromNotional(t *testing.T) {
	r, err := ParseRules("0.001", "0.001", "", "0.01", "")
	require.NoError(t, err)

	// 300 USDT at mark 150 -> 2 exactly
	qty := QtyFromNotional(300, 150, r)
	assert.Equal(t, "2", Format(qty))

	// floored onto the step grid
	qty = QtyFromNotional(100, 151, r)
	assert.Equal(t, "0.662", Format(qty))

	// below minQty rejects
	r2, err := ParseRules("0.001", "1", "", "0.01", "")
	require.NoError(t, err)
	assert.True(t, QtyFromNotional(10, 50, r2).IsZero())

	// maxQty clamps
	r3, err := ParseRules("0.001", "0.001", "1.5", "0.01", "")
	require.NoError(t, err)
	assert.Equal(t, "1.5", Format(QtyFromNotional(1000, 100, r3)))

	// minNotional rejects
	r4, err := ParseRules("0.001", "0.001", "", "0.01", "100")
	require.NoError(t, err)
	assert.True(t, QtyFromNotional(50, 100, r4).IsZero())

	// degenerate inputs
	assert.True(t, QtyFromNotional(0, 100, r).IsZero())
	assert.True(t, QtyFromNotional(100, 0, r).IsZero())
	assert.True(t, QtyFromNotional(100, 100, Rules{}).IsZero())
}
