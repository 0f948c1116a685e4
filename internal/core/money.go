package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmountCents bounds a single record amount (999,999,999.99).
const MaxAmountCents = 99_999_999_999

// Money is an exact amount in cents.
type Money struct {
	Cents int64
}

// ParseMoney parses a user supplied amount.
//
// Both dot (12.34) and comma (12,34) separators are accepted. The value is
// rounded half-up to two fraction digits and must be at least 0.01 afterwards.
//
//	ParseMoney("12.345") -> 12.35
//	ParseMoney("0.004")  -> ErrNonPositiveAmount
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrMalformedAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrMalformedAmount
	}
	cents := d.Shift(2).Round(0)
	if !cents.IsPositive() {
		return Money{}, ErrNonPositiveAmount
	}
	if cents.GreaterThan(decimal.NewFromInt(MaxAmountCents)) {
		return Money{}, ErrAmountTooLarge
	}
	return Money{Cents: cents.IntPart()}, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrNonPositiveAmount
	}
	if m.Cents > MaxAmountCents {
		return ErrAmountTooLarge
	}
	return nil
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Add returns m+o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Sub returns m-o; the result may be negative.
func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// String formats the amount with exactly two fraction digits.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON renders the amount as a plain JSON number, e.g. 12.5.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}
