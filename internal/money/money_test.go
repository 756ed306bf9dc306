package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name    string
		build   func() (Money, error)
		want    string
		wantErr bool
	}{
		{name: "parse", build: func() (Money, error) { return Parse("10.5") }, want: "10.50"},
		{name: "parse malformed", build: func() (Money, error) { return Parse("ten") }, wantErr: true},
		{name: "parse negative", build: func() (Money, error) { return Parse("-1.00") }, wantErr: true},
		{name: "cents", build: func() (Money, error) { return FromCents(1999) }, want: "19.99"},
		{name: "negative cents", build: func() (Money, error) { return FromCents(-1) }, wantErr: true},
		{name: "float", build: func() (Money, error) { return FromFloat(0.1) }, want: "0.10"},
		{name: "NaN", build: func() (Money, error) { return FromFloat(math.NaN()) }, wantErr: true},
		{name: "+Inf", build: func() (Money, error) { return FromFloat(math.Inf(1)) }, wantErr: true},
		{name: "-Inf", build: func() (Money, error) { return FromFloat(math.Inf(-1)) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.build()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestArithmetic(t *testing.T) {
	price := MustParse("10.00")

	assert.Equal(t, "20.00", price.MulInt(2).String())
	assert.Equal(t, "30.00", price.Add(MustParse("20")).String())
	assert.Equal(t, "-5.00", price.Sub(MustParse("15")).String())
	assert.True(t, price.Sub(MustParse("15")).IsNegative())
	assert.Equal(t, 1, price.Cmp(MustParse("9.99")))
	assert.True(t, Zero.IsZero())
}

func TestPercentKeepsPrecisionUntilRounded(t *testing.T) {
	subtotal := MustParse("20.00")

	raw := subtotal.Percent(decimal.RequireFromString("33.33"))
	assert.True(t, decimal.RequireFromString("6.666").Equal(raw.Decimal()))
	assert.Equal(t, "6.67", raw.Round().String())
}

func TestNoFloatDrift(t *testing.T) {
	// 0.1 added ten times is exactly 1.00.
	sum := Zero
	step := MustParse("0.10")
	for range 10 {
		sum = sum.Add(step)
	}
	assert.True(t, sum.Equal(MustParse("1")))
}

func TestSubtotalSplitsExactly(t *testing.T) {
	for _, percent := range []string{"0", "10", "33.33", "100"} {
		for _, price := range []string{"0.01", "9.99", "19.97", "123.45"} {
			subtotal := MustParse(price).MulInt(3)
			discount := subtotal.Percent(decimal.RequireFromString(percent)).Round()
			total := subtotal.Sub(discount)

			assert.True(t, total.Add(discount).Equal(subtotal),
				"percent %s price %s: %s + %s != %s", percent, price, total, discount, subtotal)
		}
	}
}
