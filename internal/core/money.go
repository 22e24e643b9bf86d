// Package core provides the bookkeeping domain types and money handling.
//
// This file contains the exact decimal money type used for every amount and
// total in the system. Amounts are never converted to float64 before the
// presentation boundary.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits an amount may carry.
const AmountScale = 2

// MaxAmount is the largest amount accepted on a single transaction.
var MaxAmount = decimal.RequireFromString("99999999.99")

// Money is an exact decimal monetary value in yen.
type Money struct {
	d decimal.Decimal
}

// Zero is the exact zero amount.
var Zero = Money{}

// NewMoney wraps a decimal value.
func NewMoney(d decimal.Decimal) Money {
	return Money{d: d}
}

// Yen returns a Money holding a whole number of yen.
func Yen(v int64) Money {
	return Money{d: decimal.NewFromInt(v)}
}

// ParseMoney parses a plain decimal string such as "1234" or "1234.50".
// Thousands separators and a leading yen sign are tolerated.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "¥")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, ErrInvalidAmount
	}
	return Money{d: d}, nil
}

// MustParseMoney is ParseMoney for constants and tests.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic("core: invalid money literal " + s)
	}
	return m
}

// CheckAmount reports ErrInvalidAmount when m is negative, above MaxAmount,
// or carries more than two fractional digits.
func CheckAmount(m Money) error {
	if m.d.IsNegative() {
		return ErrInvalidAmount
	}
	if m.d.GreaterThan(MaxAmount) {
		return ErrInvalidAmount
	}
	if !m.d.Equal(m.d.Round(AmountScale)) {
		return ErrInvalidAmount
	}
	return nil
}

// Validate requires a strictly positive amount within the accepted range.
func (m Money) Validate() error {
	if !m.d.IsPositive() {
		return ErrInvalidAmount
	}
	return CheckAmount(m)
}

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }
func (m Money) Neg() Money        { return Money{d: m.d.Neg()} }
func (m Money) Abs() Money        { return Money{d: m.d.Abs()} }

// Cmp compares m and o and returns -1, 0 or +1.
func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

// Equal reports decimal equality, so 1.5 equals 1.50.
func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

func (m Money) IsZero() bool     { return m.d.IsZero() }
func (m Money) IsNegative() bool { return m.d.IsNegative() }

// Decimal exposes the underlying value.
func (m Money) Decimal() decimal.Decimal { return m.d }

// String returns the canonical decimal representation, e.g. "-1234.5".
func (m Money) String() string { return m.d.String() }

// StringFixed returns the value with exactly two fractional digits, as stored.
func (m Money) StringFixed() string { return m.d.StringFixed(AmountScale) }

// MarshalJSON encodes the amount as a JSON string to keep it exact.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.d.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare JSON numbers.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		*m = Zero
		return nil
	}
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
