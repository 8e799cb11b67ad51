// Package core holds the fee ledger domain: money, fiscal months, the
// twelve-month schedule, lump-sum allocation, status derivation and the
// sequential identifier rules. Nothing in here performs I/O.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in paise. Integer arithmetic only.
type Money struct {
	Paise int64
}

// MaxAmountPaise bounds every rate and payment the ledger accepts. Twelve
// months of both streams at this rate stay well inside int64.
const MaxAmountPaise int64 = 100_000_000_000_000

// Rupees builds a Money from whole rupees.
func Rupees(r int64) Money {
	return Money{Paise: r * 100}
}

// ParseAmount converts a rupee amount such as "1200", "1200.5" or "1,200.50"
// to paise, rounding half-up to two decimals. Zero is accepted, negative
// values are rejected with ErrNegativeAmount.
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return Money{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if d.IsNegative() {
		return Money{}, ErrNegativeAmount
	}
	return fromRupees(d)
}

// fromRupees rounds d half-up to paise and rejects magnitudes above
// MaxAmountPaise.
func fromRupees(d decimal.Decimal) (Money, error) {
	paise := d.Round(2).Shift(2)
	if paise.Abs().GreaterThan(decimal.NewFromInt(MaxAmountPaise)) {
		return Money{}, ErrAmountTooLarge
	}
	return Money{Paise: paise.IntPart()}, nil
}

// InRange reports whether m is within MaxAmountPaise.
func (m Money) InRange() bool {
	return m.Paise >= -MaxAmountPaise && m.Paise <= MaxAmountPaise
}

func (m Money) Add(o Money) Money { return Money{Paise: m.Paise + o.Paise} }

func (m Money) Sub(o Money) Money { return Money{Paise: m.Paise - o.Paise} }

func (m Money) IsZero() bool { return m.Paise == 0 }

func (m Money) IsNegative() bool { return m.Paise < 0 }

// Min returns the smaller of m and o.
func (m Money) Min(o Money) Money {
	if o.Paise < m.Paise {
		return o
	}
	return m
}

// WholeRupees truncates to whole rupees, as printed on receipts.
func (m Money) WholeRupees() int64 {
	return m.Paise / 100
}

// Decimal returns the amount in rupees.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Paise, -2)
}

// String formats the amount with two decimals, e.g. "1200.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// InWords spells the whole-rupee part of m using ToWords.
func (m Money) InWords() (string, error) {
	if m.IsNegative() {
		return "", ErrNegativeAmount
	}
	return ToWords(uint64(m.WholeRupees())), nil
}

// MarshalJSON renders the amount as a JSON number of rupees.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or string of rupees. Negative values
// are decoded as-is so the domain can report them; magnitudes above
// MaxAmountPaise fail with ErrAmountTooLarge.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*m = Money{}
		return nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return ErrInvalidAmount
	}
	v, err := fromRupees(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
