package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/vickym250/jnschool/internal/core"
	"github.com/vickym250/jnschool/internal/log"
	"github.com/vickym250/jnschool/internal/services"
)

type studentBody struct {
	Name          string     `json:"name" validate:"notblank,max=120"`
	ClassName     string     `json:"className" validate:"notblank,max=32"`
	Session       string     `json:"session" validate:"omitempty,session"`
	ParentID      string     `json:"parentId" validate:"omitempty,max=64"`
	FatherName    string     `json:"fatherName" validate:"max=120"`
	MotherName    string     `json:"motherName" validate:"max=120"`
	Phone         string     `json:"phone" validate:"omitempty,max=20"`
	Address       string     `json:"address" validate:"max=300"`
	Aadhaar       string     `json:"aadhaar" validate:"omitempty,numeric,len=12"`
	Gender        string     `json:"gender" validate:"max=16"`
	Category      string     `json:"category" validate:"max=32"`
	DOB           string     `json:"dob" validate:"max=32"`
	AdmissionDate string     `json:"admissionDate" validate:"max=32"`
	Subjects      []string   `json:"subjects" validate:"max=20,dive,notblank"`
	IsTransfer    bool       `json:"isTransferStudent"`
	PNRNumber     string     `json:"pnrNumber" validate:"required_if=IsTransfer true,max=32"`
	AdmissionFee  core.Money `json:"admissionFees" validate:"gte=0"`
	TuitionRate   core.Money `json:"totalFees" validate:"gte=0"`
	IsBusStudent  bool       `json:"isTransportEnabled"`
	BusRate       core.Money `json:"busFees" validate:"gte=0"`

	// Initial lump-sum payment, accepted on admission only.
	PaidAmount    core.Money `json:"paidAmount" validate:"gte=0"`
	PaidBusAmount core.Money `json:"paidBusAmount" validate:"gte=0"`
}

func (b studentBody) student() core.Student {
	subjects := make([]string, 0, len(b.Subjects))
	for _, s := range b.Subjects {
		subjects = append(subjects, sanitizeInput(s))
	}
	return core.Student{
		Name:              sanitizeInput(b.Name),
		ClassName:         sanitizeInput(b.ClassName),
		Session:           strings.TrimSpace(b.Session),
		ParentID:          strings.TrimSpace(b.ParentID),
		FatherName:        sanitizeInput(b.FatherName),
		MotherName:        sanitizeInput(b.MotherName),
		Phone:             sanitizeInput(b.Phone),
		Address:           sanitizeInput(b.Address),
		Aadhaar:           strings.TrimSpace(b.Aadhaar),
		Gender:            sanitizeInput(b.Gender),
		Category:          sanitizeInput(b.Category),
		DOB:               b.DOB,
		AdmissionDate:     b.AdmissionDate,
		Subjects:          subjects,
		IsTransferStudent: b.IsTransfer,
		PNRNumber:         strings.TrimSpace(b.PNRNumber),
		AdmissionFee:      b.AdmissionFee,
		TuitionRate:       b.TuitionRate,
		IsBusStudent:      b.IsBusStudent,
		BusRate:           b.BusRate,
	}
}

func (b studentBody) payment() core.StreamAmounts {
	return core.StreamAmounts{School: b.PaidAmount, Bus: b.PaidBusAmount}
}

func (s *Server) currentSession() string {
	return core.CurrentSession(s.now())
}

func (s *Server) handleAdmit(w http.ResponseWriter, r *http.Request) {
	var body studentBody
	if err := s.decodeJSON(w, r, &body); err != nil {
		writeError(w, r, log.OpAdmit, err)
		return
	}
	st := body.student()
	if st.Session == "" {
		st.Session = s.currentSession()
	}

	res, err := s.admission.Admit(r.Context(), services.AdmissionRequest{Student: st, Payment: body.payment()})
	if err != nil {
		writeError(w, r, log.OpAdmit, err)
		return
	}
	NewJSONResponse(res).
		Status(http.StatusCreated).
		Header("Location", "/api/students/"+res.Student.ID).
		Write(w)
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := core.Filter{
		Session:   strings.TrimSpace(q.Get("session")),
		ClassName: sanitizeInput(q.Get("class")),
		Search:    sanitizeInput(q.Get("search")),
	}
	if f.Session != "" {
		if _, err := core.ParseSession(f.Session); err != nil {
			writeError(w, r, log.OpList, err)
			return
		}
	}
	students, err := s.admission.List(r.Context(), f)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse(map[string]any{"students": students, "count": len(students)}).Write(w)
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	st, err := s.admission.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse(st).Write(w)
}

func (s *Server) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	var body studentBody
	if err := s.decodeJSON(w, r, &body); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	if !body.payment().IsZero() {
		writeError(w, r, log.OpUpdate,
			fmt.Errorf("%w: payments are recorded through fee confirmation", core.ErrInvalidInput))
		return
	}
	st, err := s.admission.Update(r.Context(), r.PathValue("id"), body.student())
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse(st).Write(w)
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	if err := s.admission.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse(nil).Status(http.StatusNoContent).Write(w)
}

type readmitBody struct {
	ClassName     string     `json:"className" validate:"notblank,max=32"`
	Session       string     `json:"session" validate:"required,session"`
	TuitionRate   core.Money `json:"totalFees" validate:"gte=0"`
	IsBusStudent  bool       `json:"isTransportEnabled"`
	BusRate       core.Money `json:"busFees" validate:"gte=0"`
	PaidAmount    core.Money `json:"paidAmount" validate:"gte=0"`
	PaidBusAmount core.Money `json:"paidBusAmount" validate:"gte=0"`
}

func (s *Server) handleReadmit(w http.ResponseWriter, r *http.Request) {
	var body readmitBody
	if err := s.decodeJSON(w, r, &body); err != nil {
		writeError(w, r, log.OpReadmit, err)
		return
	}
	res, err := s.admission.Readmit(r.Context(), r.PathValue("id"), services.ReadmitRequest{
		ClassName:    sanitizeInput(body.ClassName),
		Session:      body.Session,
		TuitionRate:  body.TuitionRate,
		IsBusStudent: body.IsBusStudent,
		BusRate:      body.BusRate,
		Payment:      core.StreamAmounts{School: body.PaidAmount, Bus: body.PaidBusAmount},
	})
	if err != nil {
		writeError(w, r, log.OpReadmit, err)
		return
	}
	NewJSONResponse(res).Status(http.StatusCreated).Write(w)
}

// handleRegistryPeek previews the numbers the next admission would get.
// Nothing is reserved.
func (s *Server) handleRegistryPeek(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reg, err := s.registry.PeekRegistrationNumber(r.Context())
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	out := map[string]string{"regNo": reg}

	if className := sanitizeInput(q.Get("class")); className != "" {
		session := sessionParam(q, s.currentSession)
		roll, err := s.registry.PeekRollNumber(r.Context(), className, session)
		if err != nil {
			writeError(w, r, log.OpRead, err)
			return
		}
		out["rollNumber"] = roll
		out["className"] = className
		out["session"] = session
	}
	NewJSONResponse(out).Write(w)
}

type allocationBody struct {
	TuitionRate   core.Money `json:"totalFees" validate:"gte=0"`
	IsBusStudent  bool       `json:"isTransportEnabled"`
	BusRate       core.Money `json:"busFees" validate:"gte=0"`
	PaidAmount    core.Money `json:"paidAmount" validate:"gte=0"`
	PaidBusAmount core.Money `json:"paidBusAmount" validate:"gte=0"`
}

type allocationPreview struct {
	Ledger         core.FeeLedger     `json:"fees"`
	Excess         core.StreamAmounts `json:"excess"`
	FullMonths     core.StreamCounts  `json:"fullMonths"`
	TuitionLabel   string             `json:"tuitionLabel,omitempty"`
	TransportLabel string             `json:"transportLabel,omitempty"`
}

// handleAllocationPreview shows how a lump sum would be spread over a fresh
// schedule under the configured overpayment policy.
func (s *Server) handleAllocationPreview(w http.ResponseWriter, r *http.Request) {
	var body allocationBody
	if err := s.decodeJSON(w, r, &body); err != nil {
		writeError(w, r, log.OpValidate, err)
		return
	}
	ledger, err := core.BuildSchedule(body.TuitionRate, body.BusRate, body.IsBusStudent)
	if err != nil {
		writeError(w, r, log.OpValidate, err)
		return
	}
	lump := core.StreamAmounts{School: body.PaidAmount, Bus: body.PaidBusAmount}
	alloc, err := core.Allocate(ledger, lump, s.policy, s.now())
	if err != nil {
		writeError(w, r, log.OpValidate, err)
		return
	}
	NewJSONResponse(allocationPreview{
		Ledger:         alloc.Ledger,
		Excess:         alloc.Excess,
		FullMonths:     alloc.FullMonths,
		TuitionLabel:   core.PaidMonthsLabel(body.PaidAmount, body.TuitionRate),
		TransportLabel: core.PaidMonthsLabel(body.PaidBusAmount, ledger[core.April].BusPart),
	}).Write(w)
}
