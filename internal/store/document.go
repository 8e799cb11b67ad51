package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/vickym250/jnschool/internal/core"
)

// StudentDocument is the document-database shape of a student: ledgers are
// nested as fees.<session>.<month>, amounts are integer paise. The same
// struct serves the Firestore and MongoDB backends.
type StudentDocument struct {
	ID                 string                              `firestore:"-" bson:"_id"`
	RegistrationNumber string                              `firestore:"regNo" bson:"regNo"`
	RegistrationSeq    *int64                              `firestore:"regSeq" bson:"regSeq"`
	RollNumber         string                              `firestore:"rollNumber" bson:"rollNumber"`
	Name               string                              `firestore:"name" bson:"name"`
	ClassName          string                              `firestore:"className" bson:"className"`
	Session            string                              `firestore:"session" bson:"session"`
	ParentID           string                              `firestore:"parentId" bson:"parentId"`
	FatherName         string                              `firestore:"fatherName" bson:"fatherName"`
	MotherName         string                              `firestore:"motherName" bson:"motherName"`
	Phone              string                              `firestore:"phone" bson:"phone"`
	Address            string                              `firestore:"address" bson:"address"`
	Aadhaar            string                              `firestore:"aadhaar" bson:"aadhaar"`
	Gender             string                              `firestore:"gender" bson:"gender"`
	Category           string                              `firestore:"category" bson:"category"`
	DOB                string                              `firestore:"dob" bson:"dob"`
	AdmissionDate      string                              `firestore:"admissionDate" bson:"admissionDate"`
	Subjects           []string                            `firestore:"subjects" bson:"subjects"`
	IsTransferStudent  bool                                `firestore:"isTransferStudent" bson:"isTransferStudent"`
	PNRNumber          string                              `firestore:"pnrNumber" bson:"pnrNumber"`
	AdmissionFeePaise  int64                               `firestore:"admissionFeesPaise" bson:"admissionFeesPaise"`
	TuitionRatePaise   int64                               `firestore:"totalFeesPaise" bson:"totalFeesPaise"`
	IsBusStudent       bool                                `firestore:"isTransportEnabled" bson:"isTransportEnabled"`
	BusRatePaise       int64                               `firestore:"busFeesPaise" bson:"busFeesPaise"`
	CreditSchoolPaise  int64                               `firestore:"creditSchoolPaise" bson:"creditSchoolPaise"`
	CreditBusPaise     int64                               `firestore:"creditBusPaise" bson:"creditBusPaise"`
	Fees               map[string]map[string]MonthDocument `firestore:"fees" bson:"fees"`
	CreatedAt          time.Time                           `firestore:"createdAt" bson:"createdAt"`
	DeletedAt          *time.Time                          `firestore:"deletedAt" bson:"deletedAt"`
}

type MonthDocument struct {
	SchoolPart int64      `firestore:"schoolPart" bson:"schoolPart"`
	BusPart    int64      `firestore:"busPart" bson:"busPart"`
	Total      int64      `firestore:"total" bson:"total"`
	PaidSchool int64      `firestore:"paidSchool" bson:"paidSchool"`
	PaidBus    int64      `firestore:"paidBus" bson:"paidBus"`
	PaidAt     *time.Time `firestore:"paidAt" bson:"paidAt"`
}

func NewMonthDocument(f core.MonthlyFee) MonthDocument {
	return MonthDocument{
		SchoolPart: f.SchoolPart.Paise,
		BusPart:    f.BusPart.Paise,
		Total:      f.Total().Paise,
		PaidSchool: f.PaidSchool.Paise,
		PaidBus:    f.PaidBus.Paise,
		PaidAt:     f.PaidAt,
	}
}

func (d MonthDocument) MonthlyFee() core.MonthlyFee {
	return core.MonthlyFee{
		SchoolPart: core.Money{Paise: d.SchoolPart},
		BusPart:    core.Money{Paise: d.BusPart},
		PaidSchool: core.Money{Paise: d.PaidSchool},
		PaidBus:    core.Money{Paise: d.PaidBus},
		PaidAt:     d.PaidAt,
	}
}

// NewLedgerDocument keys the months of l by name.
func NewLedgerDocument(l core.FeeLedger) map[string]MonthDocument {
	out := make(map[string]MonthDocument, core.MonthsPerSession)
	for m, f := range l {
		out[core.Month(m).String()] = NewMonthDocument(f)
	}
	return out
}

// LedgerFromDocument rebuilds a ledger. Unknown month keys are an error.
func LedgerFromDocument(doc map[string]MonthDocument) (core.FeeLedger, error) {
	var l core.FeeLedger
	for name, md := range doc {
		m, err := core.ParseMonth(name)
		if err != nil {
			return l, fmt.Errorf("ledger month %q: %w", name, err)
		}
		l[m] = md.MonthlyFee()
	}
	return l, nil
}

func NewStudentDocument(s core.Student) StudentDocument {
	d := StudentDocument{
		ID:                 s.ID,
		RegistrationNumber: s.RegistrationNumber,
		RollNumber:         s.RollNumber,
		Name:               s.Name,
		ClassName:          s.ClassName,
		Session:            s.Session,
		ParentID:           s.ParentID,
		FatherName:         s.FatherName,
		MotherName:         s.MotherName,
		Phone:              s.Phone,
		Address:            s.Address,
		Aadhaar:            s.Aadhaar,
		Gender:             s.Gender,
		Category:           s.Category,
		DOB:                s.DOB,
		AdmissionDate:      s.AdmissionDate,
		Subjects:           s.Subjects,
		IsTransferStudent:  s.IsTransferStudent,
		PNRNumber:          s.PNRNumber,
		AdmissionFeePaise:  s.AdmissionFee.Paise,
		TuitionRatePaise:   s.TuitionRate.Paise,
		IsBusStudent:       s.IsBusStudent,
		BusRatePaise:       s.BusRate.Paise,
		CreditSchoolPaise:  s.Credit.School.Paise,
		CreditBusPaise:     s.Credit.Bus.Paise,
		Fees:               make(map[string]map[string]MonthDocument, len(s.Fees)),
		CreatedAt:          s.CreatedAt,
		DeletedAt:          s.DeletedAt,
	}
	if n, ok := core.ParseNumber(s.RegistrationNumber); ok {
		d.RegistrationSeq = &n
	}
	for session, l := range s.Fees {
		d.Fees[session] = NewLedgerDocument(l)
	}
	return d
}

func (d StudentDocument) Student() (core.Student, error) {
	s := core.Student{
		ID:                 d.ID,
		RegistrationNumber: d.RegistrationNumber,
		RollNumber:         d.RollNumber,
		Name:               d.Name,
		ClassName:          d.ClassName,
		Session:            d.Session,
		ParentID:           d.ParentID,
		FatherName:         d.FatherName,
		MotherName:         d.MotherName,
		Phone:              d.Phone,
		Address:            d.Address,
		Aadhaar:            d.Aadhaar,
		Gender:             d.Gender,
		Category:           d.Category,
		DOB:                d.DOB,
		AdmissionDate:      d.AdmissionDate,
		Subjects:           d.Subjects,
		IsTransferStudent:  d.IsTransferStudent,
		PNRNumber:          d.PNRNumber,
		AdmissionFee:       core.Money{Paise: d.AdmissionFeePaise},
		TuitionRate:        core.Money{Paise: d.TuitionRatePaise},
		IsBusStudent:       d.IsBusStudent,
		BusRate:            core.Money{Paise: d.BusRatePaise},
		Credit:             core.StreamAmounts{School: core.Money{Paise: d.CreditSchoolPaise}, Bus: core.Money{Paise: d.CreditBusPaise}},
		CreatedAt:          d.CreatedAt,
		DeletedAt:          d.DeletedAt,
	}
	if len(d.Fees) > 0 {
		s.Fees = make(map[string]core.FeeLedger, len(d.Fees))
		for session, doc := range d.Fees {
			l, err := LedgerFromDocument(doc)
			if err != nil {
				return core.Student{}, fmt.Errorf("student %s session %s: %w", d.ID, session, err)
			}
			s.Fees[session] = l
		}
	}
	return s, nil
}

// ParentDocument is the document-database shape of a parent.
type ParentDocument struct {
	ID         string    `firestore:"-" bson:"_id"`
	FatherName string    `firestore:"fatherName" bson:"fatherName"`
	MotherName string    `firestore:"motherName" bson:"motherName"`
	Phone      string    `firestore:"phone" bson:"phone"`
	Address    string    `firestore:"address" bson:"address"`
	StudentIDs []string  `firestore:"students" bson:"students"`
	CreatedAt  time.Time `firestore:"createdAt" bson:"createdAt"`
}

func NewParentDocument(p core.Parent) ParentDocument {
	ids := p.StudentIDs
	if ids == nil {
		ids = []string{}
	}
	return ParentDocument{ID: p.ID, FatherName: p.FatherName, MotherName: p.MotherName,
		Phone: p.Phone, Address: p.Address, StudentIDs: ids, CreatedAt: p.CreatedAt}
}

func (d ParentDocument) Parent() core.Parent {
	return core.Parent{ID: d.ID, FatherName: d.FatherName, MotherName: d.MotherName,
		Phone: d.Phone, Address: d.Address, StudentIDs: d.StudentIDs, CreatedAt: d.CreatedAt}
}

// CounterDocumentID turns a counter key into a valid document id.
func CounterDocumentID(key string) string {
	out := []byte(key)
	for i, c := range out {
		if c == '/' || c == '.' {
			out[i] = ':'
		}
	}
	return string(out)
}

// MatchParent reports whether a father name contains search, ignoring case.
func MatchParent(fatherName, search string) bool {
	q := strings.ToLower(strings.TrimSpace(search))
	return q == "" || strings.Contains(strings.ToLower(fatherName), q)
}
