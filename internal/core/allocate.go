package core

import (
	"fmt"
	"strings"
	"time"
)

// OverpaymentPolicy decides what happens to a lump sum that is larger than
// the whole session schedule of its stream.
type OverpaymentPolicy uint8

const (
	// OverpaymentReject fails the allocation. It is the zero value.
	OverpaymentReject OverpaymentPolicy = iota
	// OverpaymentDiscard drops the excess silently.
	OverpaymentDiscard
	// OverpaymentCarry keeps the excess as credit for a later session.
	OverpaymentCarry
)

func (p OverpaymentPolicy) String() string {
	switch p {
	case OverpaymentDiscard:
		return "discard"
	case OverpaymentCarry:
		return "carry"
	default:
		return "reject"
	}
}

// ParseOverpaymentPolicy accepts "reject", "discard" or "carry". An empty
// string selects reject.
func ParseOverpaymentPolicy(s string) (OverpaymentPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return OverpaymentReject, nil
	case "discard":
		return OverpaymentDiscard, nil
	case "carry":
		return OverpaymentCarry, nil
	default:
		return OverpaymentReject, fmt.Errorf("%w: overpayment policy %q", ErrInvalidInput, s)
	}
}

const maxLumpPaise = MaxAmountPaise * MonthsPerSession

// Allocation is the outcome of spreading a lump sum over a fresh ledger.
type Allocation struct {
	Ledger FeeLedger
	// Excess is what the schedule could not absorb. It is only non-zero under
	// OverpaymentCarry.
	Excess     StreamAmounts
	FullMonths StreamCounts
}

// StreamCounts counts months per stream.
type StreamCounts struct {
	School int `json:"school"`
	Bus    int `json:"bus"`
}

// Allocate spreads the lump sums over ledger in fiscal order, each stream on
// its own running balance. A month is fully paid while the balance covers its
// rate; the first month it does not cover receives the whole remainder and the
// stream stops there. Months where either stream received money are stamped
// with at.
//
// Allocation runs once, against a ledger with nothing paid; anything else
// returns ErrLedgerNotFresh. A lump sum per stream may not exceed twelve
// months at MaxAmountPaise.
func Allocate(ledger FeeLedger, lump StreamAmounts, policy OverpaymentPolicy, at time.Time) (Allocation, error) {
	if lump.School.IsNegative() || lump.Bus.IsNegative() {
		return Allocation{}, ErrNegativeAmount
	}
	if lump.School.Paise > maxLumpPaise || lump.Bus.Paise > maxLumpPaise {
		return Allocation{}, ErrAmountTooLarge
	}
	if !ledger.Fresh() {
		return Allocation{}, ErrLedgerNotFresh
	}
	if err := ledger.Validate(); err != nil {
		return Allocation{}, err
	}

	var res Allocation
	for _, s := range []Stream{Tuition, Transport} {
		remaining := lump.For(s)
		full := 0
		for m := April; m <= March && remaining.Paise > 0; m++ {
			rate := ledger[m].Part(s)
			if rate.Paise <= 0 {
				// a stream without a rate cannot absorb anything
				break
			}
			paid := remaining.Min(rate)
			if err := ledger[m].Apply(s, paid); err != nil {
				return Allocation{}, err
			}
			remaining = remaining.Sub(paid)
			if paid == rate {
				full++
			}
		}
		res.Excess.set(s, remaining)
		if s == Transport {
			res.FullMonths.Bus = full
		} else {
			res.FullMonths.School = full
		}
	}

	if !res.Excess.IsZero() {
		switch policy {
		case OverpaymentReject:
			return Allocation{}, fmt.Errorf("%w: excess school %s, bus %s", ErrOverpayment, res.Excess.School, res.Excess.Bus)
		case OverpaymentDiscard:
			res.Excess = StreamAmounts{}
		}
	}

	for m := range ledger {
		if ledger[m].TotalPaid().Paise > 0 {
			stamp := at
			ledger[m].PaidAt = &stamp
		}
	}
	res.Ledger = ledger
	return res, nil
}
