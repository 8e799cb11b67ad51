package core

import (
	"sort"
	"strings"
	"time"
)

// OverviewRow is one student's line in a class/month overview.
type OverviewRow struct {
	StudentID          string     `json:"studentId"`
	RegistrationNumber string     `json:"regNo"`
	RollNumber         string     `json:"rollNumber"`
	Name               string     `json:"name"`
	ClassName          string     `json:"className"`
	Fee                MonthlyFee `json:"fee"`
	State              MonthState `json:"state"`
	Tuition            Status     `json:"tuition"`
	Transport          Status     `json:"transport"`
	// Scheduled is false when the session had no ledger and Fee was derived
	// from the student's current rates.
	Scheduled bool `json:"scheduled"`
}

// MonthOverview summarises one month of one session across students.
type MonthOverview struct {
	Session     string        `json:"session"`
	Month       Month         `json:"month"`
	Rows        []OverviewRow `json:"rows"`
	Paid        int           `json:"paid"`
	Partial     int           `json:"partial"`
	Pending     int           `json:"pending"`
	Collected   Money         `json:"collected"`
	Outstanding Money         `json:"outstanding"`
}

// ClassMonthOverview derives the status of month for every student that is
// not deleted, ordered by roll number.
func ClassMonthOverview(students []Student, session string, month Month) MonthOverview {
	ov := MonthOverview{Session: session, Month: month, Rows: make([]OverviewRow, 0, len(students))}
	for _, s := range SortByRoll(students) {
		if s.Deleted() {
			continue
		}
		fee, scheduled := s.MonthFee(session, month)
		st := fee.Status()
		ov.Rows = append(ov.Rows, OverviewRow{
			StudentID:          s.ID,
			RegistrationNumber: s.RegistrationNumber,
			RollNumber:         s.RollNumber,
			Name:               s.Name,
			ClassName:          s.ClassName,
			Fee:                fee,
			State:              st,
			Tuition:            fee.StreamStatus(Tuition),
			Transport:          fee.StreamStatus(Transport),
			Scheduled:          scheduled,
		})
		switch st.Status {
		case StatusPaid:
			ov.Paid++
		case StatusPartial:
			ov.Partial++
		default:
			ov.Pending++
		}
		ov.Collected = ov.Collected.Add(st.Paid)
		ov.Outstanding = ov.Outstanding.Add(st.Due())
	}
	return ov
}

// SortByRoll returns a copy of students ordered by numeric roll number.
// Non-numeric rolls sort last, then by name.
func SortByRoll(students []Student) []Student {
	out := make([]Student, len(students))
	copy(out, students)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := ParseNumber(out[i].RollNumber)
		rj, jok := ParseNumber(out[j].RollNumber)
		switch {
		case iok && jok && ri != rj:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
		}
	})
	return out
}

// Receipt is the printable data of one month's payment.
type Receipt struct {
	RegistrationNumber string     `json:"regNo"`
	Name               string     `json:"name"`
	FatherName         string     `json:"fatherName,omitempty"`
	ClassName          string     `json:"className"`
	Session            string     `json:"session"`
	Month              Month      `json:"month"`
	Tuition            Money      `json:"tuition"`
	Transport          Money      `json:"transport"`
	Total              Money      `json:"total"`
	AmountInWords      string     `json:"amountInWords"`
	PaidAt             *time.Time `json:"paidAt,omitempty"`
}

// NewReceipt builds the receipt of what was collected for month.
func NewReceipt(s Student, session string, month Month, fee MonthlyFee) (Receipt, error) {
	total := fee.TotalPaid()
	words, err := total.InWords()
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		RegistrationNumber: s.RegistrationNumber,
		Name:               s.Name,
		FatherName:         s.FatherName,
		ClassName:          s.ClassName,
		Session:            session,
		Month:              month,
		Tuition:            fee.PaidSchool,
		Transport:          fee.PaidBus,
		Total:              total,
		AmountInWords:      words + " Rupees Only",
		PaidAt:             fee.PaidAt,
	}, nil
}

// Filter selects students for list views.
type Filter struct {
	Session        string
	ClassName      string
	Search         string
	IncludeDeleted bool
}

// Match reports whether s passes the filter. Search matches name,
// registration number or roll number, case-insensitively.
func (f Filter) Match(s Student) bool {
	if s.Deleted() && !f.IncludeDeleted {
		return false
	}
	if f.Session != "" && s.Session != f.Session {
		return false
	}
	if f.ClassName != "" && s.ClassName != f.ClassName {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		return strings.Contains(strings.ToLower(s.Name), q) ||
			strings.Contains(strings.ToLower(s.RegistrationNumber), q) ||
			strings.Contains(strings.ToLower(s.RollNumber), q)
	}
	return true
}

// AdmissionSlip is the printable summary handed over at admission: the
// admission fee plus what the initial payment settled per stream.
type AdmissionSlip struct {
	RegistrationNumber string `json:"regNo"`
	RollNumber         string `json:"rollNumber"`
	Name               string `json:"name"`
	FatherName         string `json:"fatherName,omitempty"`
	ClassName          string `json:"className"`
	Session            string `json:"session"`
	AdmissionFee       Money  `json:"admissionFees"`
	Tuition            Money  `json:"tuition"`
	TuitionLabel       string `json:"tuitionLabel,omitempty"`
	Transport          Money  `json:"transport"`
	TransportLabel     string `json:"transportLabel,omitempty"`
	Total              Money  `json:"total"`
	AmountInWords      string `json:"amountInWords"`
}

// NewAdmissionSlip summarises the session ledger of a freshly admitted
// student.
func NewAdmissionSlip(s Student) (AdmissionSlip, error) {
	paid := s.Fees[s.Session].PaidByStream()
	total := s.AdmissionFee.Add(paid.Total())
	words, err := total.InWords()
	if err != nil {
		return AdmissionSlip{}, err
	}
	return AdmissionSlip{
		RegistrationNumber: s.RegistrationNumber,
		RollNumber:         s.RollNumber,
		Name:               s.Name,
		FatherName:         s.FatherName,
		ClassName:          s.ClassName,
		Session:            s.Session,
		AdmissionFee:       s.AdmissionFee,
		Tuition:            paid.School,
		TuitionLabel:       PaidMonthsLabel(paid.School, s.TuitionRate),
		Transport:          paid.Bus,
		TransportLabel:     PaidMonthsLabel(paid.Bus, s.EffectiveBusRate()),
		Total:              total,
		AmountInWords:      words + " Rupees Only",
	}, nil
}
