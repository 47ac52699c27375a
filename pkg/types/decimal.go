// Package types holds the fixed-precision decimal wrapper used for every
// monetary field in the core: orders, trades, balances, fees.
package types

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal wraps shopspring/decimal so every accounting path in the core
// goes through the same two rounding modes the spec allows: ToZero
// (truncate toward zero) for amounts and fees, HalfEven for display.
// Floating point never appears on a monetary field.
type Decimal struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Decimal{d: decimal.Zero}

// New builds a Decimal from an integer coefficient and (negative) exponent,
// matching decimal.New's convention: value = coefficient * 10^exponent.
func New(coefficient int64, exponent int32) Decimal {
	return Decimal{d: decimal.New(coefficient, exponent)}
}

// Parse parses a decimal string (the wire representation for all money
// fields per spec.md §6 — numbers crossing the wire are decimal strings).
func Parse(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return Decimal{d: d}, nil
}

// MustParse panics on malformed input; used only for constants in tests
// and config defaults, never on untrusted RPC input.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (x Decimal) String() string { return x.d.String() }

func (x Decimal) IsZero() bool     { return x.d.IsZero() }
func (x Decimal) IsNegative() bool { return x.d.Sign() < 0 }
func (x Decimal) IsPositive() bool { return x.d.Sign() > 0 }
func (x Decimal) Sign() int        { return x.d.Sign() }

func (x Decimal) Add(y Decimal) Decimal { return Decimal{d: x.d.Add(y.d)} }
func (x Decimal) Sub(y Decimal) Decimal { return Decimal{d: x.d.Sub(y.d)} }
func (x Decimal) Mul(y Decimal) Decimal { return Decimal{d: x.d.Mul(y.d)} }

// Div divides and rounds the quotient to 'prec' fractional digits, half
// away from zero; safe to call only when y is known non-zero (callers
// always check).
func (x Decimal) Div(y Decimal, prec int32) Decimal {
	return Decimal{d: x.d.DivRound(y.d, prec)}
}

func (x Decimal) Cmp(y Decimal) int { return x.d.Cmp(y.d) }
func (x Decimal) GreaterThan(y Decimal) bool         { return x.d.GreaterThan(y.d) }
func (x Decimal) GreaterThanOrEqual(y Decimal) bool  { return x.d.GreaterThanOrEqual(y.d) }
func (x Decimal) LessThan(y Decimal) bool            { return x.d.LessThan(y.d) }
func (x Decimal) LessThanOrEqual(y Decimal) bool     { return x.d.LessThanOrEqual(y.d) }
func (x Decimal) Equal(y Decimal) bool               { return x.d.Equal(y.d) }

func (x Decimal) Min(y Decimal) Decimal {
	if x.LessThanOrEqual(y) {
		return x
	}
	return y
}

func (x Decimal) Max(y Decimal) Decimal {
	if x.GreaterThanOrEqual(y) {
		return x
	}
	return y
}

// Neg returns the additive inverse.
func (x Decimal) Neg() Decimal { return Decimal{d: x.d.Neg()} }

// RoundToZero truncates toward zero to 'scale' fractional digits — the
// rounding mode spec.md mandates for amount and fee inputs.
func (x Decimal) RoundToZero(scale int32) Decimal {
	return Decimal{d: x.d.Truncate(scale)}
}

// RoundHalfEven rounds to 'scale' fractional digits using banker's
// rounding — the mode spec.md mandates for display values only.
func (x Decimal) RoundHalfEven(scale int32) Decimal {
	return Decimal{d: x.d.RoundBank(scale)}
}

// CeilToMultiple rounds x up to the nearest multiple of interval; used by
// order-book depth bucketing for ask prices (spec.md §4.5.4).
func (x Decimal) CeilToMultiple(interval Decimal) Decimal {
	if interval.IsZero() {
		return x
	}
	q := x.d.Div(interval.d).Ceil()
	return Decimal{d: q.Mul(interval.d)}
}

// FloorToMultiple rounds x down to the nearest multiple of interval; used
// by order-book depth bucketing for bid prices (spec.md §4.5.4).
func (x Decimal) FloorToMultiple(interval Decimal) Decimal {
	if interval.IsZero() {
		return x
	}
	q := x.d.Div(interval.d).Floor()
	return Decimal{d: q.Mul(interval.d)}
}

// Exponent returns the current scale (negative exponent) the value is
// stored at. PutOrder's precision checks do not call it; they compare
// each input with its rounded copy.
func (x Decimal) Exponent() int32 { return x.d.Exponent() }

// Value implements database/sql/driver.Valuer so Decimal can be stored
// directly by any sql.DB-backed sink without a manual conversion step.
func (x Decimal) Value() (driver.Value, error) { return x.d.String(), nil }

// MarshalJSON always emits a decimal string, never a JSON number — spec.md
// §6: "Numbers crossing the wire are decimal strings (never floats)."
func (x Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + x.d.String() + `"`), nil
}

func (x *Decimal) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	x.d = d
	return nil
}
