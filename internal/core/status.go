package core

// Status is the derived payment state of a month or stream. It is computed
// on read and never stored.
type Status uint8

const (
	StatusPending Status = iota
	StatusPartial
	StatusPaid
	// StatusNotApplicable marks a stream with nothing due, such as transport
	// for a student who does not use the bus.
	StatusNotApplicable
)

func (s Status) String() string {
	switch s {
	case StatusPartial:
		return "PARTIAL"
	case StatusPaid:
		return "PAID"
	case StatusNotApplicable:
		return "N/A"
	default:
		return "PENDING"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MonthState is the status of a month together with the amounts it was
// derived from.
type MonthState struct {
	Status Status `json:"status"`
	Paid   Money  `json:"paid"`
	Total  Money  `json:"total"`
}

// Due is what remains to be collected for the month.
func (s MonthState) Due() Money {
	if s.Paid.Paise >= s.Total.Paise {
		return Money{}
	}
	return s.Total.Sub(s.Paid)
}

// Status derives PAID when everything due was collected, PARTIAL when some
// of it was, and PENDING otherwise. A month with nothing due is PENDING.
func (f MonthlyFee) Status() MonthState {
	st := MonthState{Paid: f.TotalPaid(), Total: f.Total()}
	switch {
	case st.Total.Paise > 0 && st.Paid.Paise >= st.Total.Paise:
		st.Status = StatusPaid
	case st.Paid.Paise > 0:
		st.Status = StatusPartial
	default:
		st.Status = StatusPending
	}
	return st
}

// StreamStatus derives the status of a single stream.
func (f MonthlyFee) StreamStatus(s Stream) Status {
	part, paid := f.Part(s), f.Paid(s)
	switch {
	case part.Paise <= 0:
		return StatusNotApplicable
	case paid.Paise >= part.Paise:
		return StatusPaid
	case paid.Paise > 0:
		return StatusPartial
	default:
		return StatusPending
	}
}

// LedgerTotals summarises a session ledger.
type LedgerTotals struct {
	Due         Money `json:"due"`
	Paid        Money `json:"paid"`
	Outstanding Money `json:"outstanding"`
	PaidMonths  int   `json:"paidMonths"`
	Partial     int   `json:"partialMonths"`
	Pending     int   `json:"pendingMonths"`
}

func (l FeeLedger) Totals() LedgerTotals {
	var t LedgerTotals
	for _, f := range l {
		st := f.Status()
		t.Due = t.Due.Add(st.Total)
		t.Paid = t.Paid.Add(st.Paid)
		t.Outstanding = t.Outstanding.Add(st.Due())
		switch st.Status {
		case StatusPaid:
			t.PaidMonths++
		case StatusPartial:
			t.Partial++
		default:
			t.Pending++
		}
	}
	return t
}

// PaidByStream sums what has been paid per stream over the session.
func (l FeeLedger) PaidByStream() StreamAmounts {
	var paid StreamAmounts
	for _, f := range l {
		paid = paid.Add(StreamAmounts{School: f.PaidSchool, Bus: f.PaidBus})
	}
	return paid
}
