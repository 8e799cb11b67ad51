package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Stream is one of the two independent fee streams of a month.
type Stream uint8

const (
	Tuition Stream = iota
	Transport
)

func (s Stream) String() string {
	if s == Transport {
		return "bus"
	}
	return "school"
}

// StreamAmounts carries one amount per stream.
type StreamAmounts struct {
	School Money `json:"school"`
	Bus    Money `json:"bus"`
}

func (a StreamAmounts) For(s Stream) Money {
	if s == Transport {
		return a.Bus
	}
	return a.School
}

func (a *StreamAmounts) set(s Stream, m Money) {
	if s == Transport {
		a.Bus = m
		return
	}
	a.School = m
}

func (a StreamAmounts) Add(o StreamAmounts) StreamAmounts {
	return StreamAmounts{School: a.School.Add(o.School), Bus: a.Bus.Add(o.Bus)}
}

func (a StreamAmounts) Total() Money { return a.School.Add(a.Bus) }

func (a StreamAmounts) IsZero() bool { return a.School.IsZero() && a.Bus.IsZero() }

// MonthlyFee is one month of a session ledger.
type MonthlyFee struct {
	SchoolPart Money      `json:"schoolPart"`
	BusPart    Money      `json:"busPart"`
	PaidSchool Money      `json:"paidSchool"`
	PaidBus    Money      `json:"paidBus"`
	PaidAt     *time.Time `json:"paidAt,omitempty"`
}

func (f MonthlyFee) Total() Money { return f.SchoolPart.Add(f.BusPart) }

func (f MonthlyFee) TotalPaid() Money { return f.PaidSchool.Add(f.PaidBus) }

func (f MonthlyFee) Part(s Stream) Money {
	if s == Transport {
		return f.BusPart
	}
	return f.SchoolPart
}

func (f MonthlyFee) Paid(s Stream) Money {
	if s == Transport {
		return f.PaidBus
	}
	return f.PaidSchool
}

// Apply records paid as the amount collected for stream s. Every change to a
// ledger's paid amounts goes through Apply, which keeps 0 <= paid <= part.
func (f *MonthlyFee) Apply(s Stream, paid Money) error {
	if paid.IsNegative() {
		return ErrNegativeAmount
	}
	if part := f.Part(s); paid.Paise > part.Paise {
		return fmt.Errorf("%w: %s paid %s over part %s", ErrPaidExceedsPart, s, paid, part)
	}
	if s == Transport {
		f.PaidBus = paid
	} else {
		f.PaidSchool = paid
	}
	return nil
}

// Validate checks the stored amounts of a month.
func (f MonthlyFee) Validate() error {
	if f.SchoolPart.IsNegative() || f.BusPart.IsNegative() {
		return ErrNegativeAmount
	}
	for _, s := range []Stream{Tuition, Transport} {
		if p := f.Paid(s); p.IsNegative() || p.Paise > f.Part(s).Paise {
			return fmt.Errorf("%w: %s", ErrPaidExceedsPart, s)
		}
	}
	return nil
}

type monthlyFeeJSON struct {
	SchoolPart Money      `json:"schoolPart"`
	BusPart    Money      `json:"busPart"`
	Total      Money      `json:"total"`
	PaidSchool Money      `json:"paidSchool"`
	PaidBus    Money      `json:"paidBus"`
	PaidAt     *time.Time `json:"paidAt,omitempty"`
}

// MarshalJSON includes the derived total alongside the stored fields.
func (f MonthlyFee) MarshalJSON() ([]byte, error) {
	return json.Marshal(monthlyFeeJSON{
		SchoolPart: f.SchoolPart,
		BusPart:    f.BusPart,
		Total:      f.Total(),
		PaidSchool: f.PaidSchool,
		PaidBus:    f.PaidBus,
		PaidAt:     f.PaidAt,
	})
}

// FeeLedger holds the twelve months of one session, indexed by Month.
type FeeLedger [MonthsPerSession]MonthlyFee

// Fresh reports whether nothing has been paid against the ledger yet.
func (l FeeLedger) Fresh() bool {
	for _, f := range l {
		if !f.PaidSchool.IsZero() || !f.PaidBus.IsZero() || f.PaidAt != nil {
			return false
		}
	}
	return true
}

func (l FeeLedger) Validate() error {
	for m, f := range l {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("%s: %w", Month(m), err)
		}
	}
	return nil
}

// MarshalJSON writes the ledger as an object keyed by month name in fiscal
// order.
func (l FeeLedger) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for m, f := range l {
		if m > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%q:", Month(m).String())
		b, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (l *FeeLedger) UnmarshalJSON(b []byte) error {
	var byName map[string]MonthlyFee
	if err := json.Unmarshal(b, &byName); err != nil {
		return err
	}
	var out FeeLedger
	for name, f := range byName {
		m, err := ParseMonth(name)
		if err != nil {
			return err
		}
		out[m] = f
	}
	*l = out
	return nil
}

// Student is an admitted student together with every session ledger.
type Student struct {
	ID                 string               `json:"id"`
	RegistrationNumber string               `json:"regNo"`
	RollNumber         string               `json:"rollNumber"`
	Name               string               `json:"name"`
	ClassName          string               `json:"className"`
	Session            string               `json:"session"`
	ParentID           string               `json:"parentId,omitempty"`
	FatherName         string               `json:"fatherName,omitempty"`
	MotherName         string               `json:"motherName,omitempty"`
	Phone              string               `json:"phone,omitempty"`
	Address            string               `json:"address,omitempty"`
	Aadhaar            string               `json:"aadhaar,omitempty"`
	Gender             string               `json:"gender,omitempty"`
	Category           string               `json:"category,omitempty"`
	DOB                string               `json:"dob,omitempty"`
	AdmissionDate      string               `json:"admissionDate,omitempty"`
	Subjects           []string             `json:"subjects,omitempty"`
	IsTransferStudent  bool                 `json:"isTransferStudent"`
	PNRNumber          string               `json:"pnrNumber,omitempty"`
	AdmissionFee       Money                `json:"admissionFees"`
	TuitionRate        Money                `json:"totalFees"`
	IsBusStudent       bool                 `json:"isTransportEnabled"`
	BusRate            Money                `json:"busFees"`
	Fees               map[string]FeeLedger `json:"fees"`
	Credit             StreamAmounts        `json:"credit"`
	CreatedAt          time.Time            `json:"createdAt"`
	DeletedAt          *time.Time           `json:"deletedAt,omitempty"`
}

func (s Student) Deleted() bool { return s.DeletedAt != nil }

// EffectiveBusRate is the transport rate that applies to the schedule.
func (s Student) EffectiveBusRate() Money {
	if !s.IsBusStudent {
		return Money{}
	}
	return s.BusRate
}

// MonthFee returns the ledger entry for session and month. When the session
// has no ledger the entry is derived from the student's current rates and ok
// is false.
func (s Student) MonthFee(session string, m Month) (fee MonthlyFee, ok bool) {
	if l, found := s.Fees[session]; found {
		return l[m], true
	}
	return MonthlyFee{SchoolPart: s.TuitionRate, BusPart: s.EffectiveBusRate()}, false
}

// Validate checks the fields required to admit or update a student.
func (s Student) Validate() error {
	switch {
	case strings.TrimSpace(s.Name) == "":
		return fmt.Errorf("%w: name", ErrMissingField)
	case strings.TrimSpace(s.ClassName) == "":
		return fmt.Errorf("%w: className", ErrMissingField)
	case strings.TrimSpace(s.Session) == "":
		return fmt.Errorf("%w: session", ErrMissingField)
	case s.IsTransferStudent && strings.TrimSpace(s.PNRNumber) == "":
		return fmt.Errorf("%w: pnrNumber", ErrMissingField)
	}
	if _, err := ParseSession(s.Session); err != nil {
		return err
	}
	if s.AdmissionFee.IsNegative() || s.TuitionRate.IsNegative() || s.BusRate.IsNegative() {
		return ErrNegativeAmount
	}
	if !s.AdmissionFee.InRange() || !s.TuitionRate.InRange() || !s.BusRate.InRange() {
		return ErrAmountTooLarge
	}
	return nil
}

// Parent groups the students of one family.
type Parent struct {
	ID         string    `json:"id"`
	FatherName string    `json:"fatherName"`
	MotherName string    `json:"motherName,omitempty"`
	Phone      string    `json:"phone"`
	Address    string    `json:"address,omitempty"`
	StudentIDs []string  `json:"students"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (p Parent) Validate() error {
	if strings.TrimSpace(p.FatherName) == "" && strings.TrimSpace(p.MotherName) == "" {
		return fmt.Errorf("%w: parent name", ErrMissingField)
	}
	return nil
}
