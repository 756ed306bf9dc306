// Package money provides a fixed-point currency amount.
//
// Every monetary value in the engine (prices, costs, discounts, totals and
// profits) is a Money. Arithmetic is carried out on shopspring/decimal values
// so that no amount ever passes through a binary floating-point type.
package money

import (
	"math"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits of a rounded amount.
const Scale = 2

// ErrInvalidAmount is returned when an amount is non-finite, malformed, or
// negative where a non-negative amount is required.
var ErrInvalidAmount = errors.New("invalid amount")

var hundred = decimal.NewFromInt(100)

// Zero is the zero amount.
var Zero = Money{}

// Money is a currency amount. The zero value is 0.00.
//
// Intermediate results (for example a percentage of a subtotal) keep full
// decimal precision; call Round to bring an amount back to Scale digits.
type Money struct {
	d decimal.Decimal
}

// New returns d as Money. Negative amounts are rejected.
func New(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Money{}, errors.Wrapf(ErrInvalidAmount, "negative amount %s", d)
	}
	return Money{d: d}, nil
}

// Parse parses a decimal string such as "10.50".
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, errors.Wrapf(ErrInvalidAmount, "parse %q", s)
	}
	return New(d)
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FromFloat converts a float coming from an outer boundary (for example a
// legacy import). NaN, infinities and negative values are rejected.
func FromFloat(f float64) (Money, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Money{}, errors.Wrapf(ErrInvalidAmount, "non-finite amount %v", f)
	}
	return New(decimal.NewFromFloat(f))
}

// FromCents returns the amount for an integer number of cents.
func FromCents(cents int64) (Money, error) {
	return New(decimal.New(cents, -Scale))
}

// Signed wraps d without the non-negative check. Used for ledger values such
// as profit, which may legitimately be negative, and for amounts read back
// from storage.
func Signed(d decimal.Decimal) Money {
	return Money{d: d}
}

// Add returns m + o.
func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }

// Sub returns m - o. The result may be negative.
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }

// MulInt returns m × n.
func (m Money) MulInt(n int) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(int64(n)))}
}

// Percent returns m × p / 100 without rounding.
func (m Money) Percent(p decimal.Decimal) Money {
	return Money{d: m.d.Mul(p).Div(hundred)}
}

// Round rounds m to Scale fractional digits, half away from zero.
func (m Money) Round() Money { return Money{d: m.d.Round(Scale)} }

// Cmp compares m and o and returns -1, 0 or +1.
func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

// Equal reports whether m and o denote the same amount.
func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

// IsZero reports whether m is zero.
func (m Money) IsZero() bool { return m.d.IsZero() }

// IsNegative reports whether m is below zero.
func (m Money) IsNegative() bool { return m.d.IsNegative() }

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.d }

// String formats m with exactly Scale fractional digits.
func (m Money) String() string { return m.d.StringFixed(Scale) }
