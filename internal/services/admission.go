// Package services orchestrates the fee ledger: it combines the pure rules
// of internal/core with a store, the student cache, ledger events and
// metrics.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/vickym250/jnschool/internal/amqp"
	"github.com/vickym250/jnschool/internal/core"
	"github.com/vickym250/jnschool/internal/log"
	"github.com/vickym250/jnschool/internal/store"
)

// maxNumberAttempts bounds how often admission re-draws identifiers after
// the store reports a duplicate.
const maxNumberAttempts = 3

// AdmissionRequest is a new student plus the initial payment per stream.
type AdmissionRequest struct {
	Student core.Student
	Payment core.StreamAmounts
}

type AdmissionResult struct {
	Student    core.Student       `json:"student"`
	Excess     core.StreamAmounts `json:"excess"`
	FullMonths core.StreamCounts  `json:"fullMonths"`
	Slip       core.AdmissionSlip `json:"slip"`
}

// ReadmitRequest moves a student into a new class and session with the
// rates that apply there.
type ReadmitRequest struct {
	ClassName    string
	Session      string
	TuitionRate  core.Money
	IsBusStudent bool
	BusRate      core.Money
	Payment      core.StreamAmounts
}

type AdmissionService struct {
	store    store.Store
	registry *Registry
	students *StudentReader
	policy   core.OverpaymentPolicy
	opts     Options
}

func NewAdmissionService(st store.Store, registry *Registry, students *StudentReader, policy core.OverpaymentPolicy, opts Options) *AdmissionService {
	return &AdmissionService{
		store:    st,
		registry: registry,
		students: students,
		policy:   policy,
		opts:     opts,
	}
}

// Admit registers a new student: it builds the session schedule, allocates
// the initial payment, links the parent, reserves identifiers and persists
// the student. Overpayment is rejected before any identifier is reserved.
func (s *AdmissionService) Admit(ctx context.Context, req AdmissionRequest) (AdmissionResult, error) {
	res, err := s.admit(ctx, req)
	s.opts.Metrics.Admission("admit", err)
	return res, err
}

func (s *AdmissionService) admit(ctx context.Context, req AdmissionRequest) (AdmissionResult, error) {
	st := normalize(req.Student)
	if err := st.Validate(); err != nil {
		return AdmissionResult{}, err
	}

	ledger, err := core.BuildSchedule(st.TuitionRate, st.BusRate, st.IsBusStudent)
	if err != nil {
		return AdmissionResult{}, err
	}
	now := s.opts.now()
	alloc, err := core.Allocate(ledger, req.Payment, s.policy, now)
	if err != nil {
		return AdmissionResult{}, err
	}

	st.ID = uuid.NewString()
	st.CreatedAt = now
	st.DeletedAt = nil
	st.Fees = map[string]core.FeeLedger{st.Session: alloc.Ledger}
	st.Credit = core.StreamAmounts{}
	if s.policy == core.OverpaymentCarry {
		st.Credit = alloc.Excess
	}

	parentID, newParent, err := s.resolveParent(ctx, st)
	if err != nil {
		return AdmissionResult{}, err
	}
	st.ParentID = parentID

	if err := s.create(ctx, &st); err != nil {
		return AdmissionResult{}, err
	}
	st = s.attachParent(ctx, st, newParent)

	slog.InfoContext(ctx, "Student admitted", studentFields(log.OpAdmit, st).ToSlice()...)
	paid := alloc.Ledger.PaidByStream()
	s.opts.Metrics.Collected(core.Tuition.String(), paid.School.Paise)
	s.opts.Metrics.Collected(core.Transport.String(), paid.Bus.Paise)
	s.opts.publish(ctx, amqp.EventStudentAdmitted, st.ID, st.Session, "")

	slip, err := core.NewAdmissionSlip(st)
	if err != nil {
		return AdmissionResult{}, err
	}
	return AdmissionResult{Student: st, Excess: alloc.Excess, FullMonths: alloc.FullMonths, Slip: slip}, nil
}

// create reserves identifiers and inserts st, drawing fresh numbers when
// another admission took them first. Numbers of a failed insert are released
// so the sequences stay contiguous.
func (s *AdmissionService) create(ctx context.Context, st *core.Student) error {
	var lastErr error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		reg, err := s.registry.NextRegistrationNumber(ctx)
		if err != nil {
			return err
		}
		roll, err := s.registry.NextRollNumber(ctx, st.ClassName, st.Session)
		if err != nil {
			s.releaseNumbers(ctx, *st, reg, "")
			return err
		}
		st.RegistrationNumber, st.RollNumber = reg, roll

		err = s.store.Create(ctx, *st)
		if err == nil {
			return nil
		}
		s.releaseNumbers(ctx, *st, reg, roll)
		if !errors.Is(err, core.ErrDuplicateNumber) {
			return fmt.Errorf("create student: %w", err)
		}
		lastErr = err
		s.opts.Metrics.NumberConflict()
		slog.WarnContext(ctx, "Identifier taken, retrying admission",
			append(studentFields(log.OpAdmit, *st).ToSlice(), "attempt", attempt+1)...)
	}
	return fmt.Errorf("create student after %d attempts: %w", maxNumberAttempts, lastErr)
}

// releaseNumbers hands back the identifiers reserved for a student that was
// not stored. Empty values are skipped.
func (s *AdmissionService) releaseNumbers(ctx context.Context, st core.Student, reg, roll string) {
	if roll != "" {
		if err := s.registry.ReleaseRollNumber(ctx, st.ClassName, st.Session, roll); err != nil {
			slog.WarnContext(ctx, "Failed to release roll number",
				studentFields(log.OpAdmit, st).WithError(err).ToSlice()...)
		}
	}
	if reg != "" {
		if err := s.registry.ReleaseRegistrationNumber(ctx, reg); err != nil {
			slog.WarnContext(ctx, "Failed to release registration number",
				studentFields(log.OpAdmit, st).WithError(err).ToSlice()...)
		}
	}
}

// resolveParent returns the parent id to link. An existing parent must be
// found; otherwise a parent is built from the student's parent fields and
// returned unsaved, to be stored once the student is. Students without any
// parent name are admitted unlinked.
func (s *AdmissionService) resolveParent(ctx context.Context, st core.Student) (string, *core.Parent, error) {
	if st.ParentID != "" {
		p, err := s.store.GetParent(ctx, st.ParentID)
		if err != nil {
			return "", nil, err
		}
		return p.ID, nil, nil
	}
	p := core.Parent{
		ID:         uuid.NewString(),
		FatherName: st.FatherName,
		MotherName: st.MotherName,
		Phone:      st.Phone,
		Address:    st.Address,
		CreatedAt:  st.CreatedAt,
	}
	if p.Validate() != nil {
		return "", nil, nil
	}
	return p.ID, &p, nil
}

// attachParent stores a new parent with st as its first student, or links st
// to an existing one. A parent that cannot be stored leaves st unlinked.
func (s *AdmissionService) attachParent(ctx context.Context, st core.Student, newParent *core.Parent) core.Student {
	if newParent == nil {
		if st.ParentID != "" {
			if err := s.store.LinkStudent(ctx, st.ParentID, st.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to link student to parent",
					studentFields(log.OpAdmit, st).WithParent(st.ParentID).WithError(err).ToSlice()...)
			}
		}
		return st
	}
	newParent.StudentIDs = []string{st.ID}
	err := s.store.CreateParent(ctx, *newParent)
	if err == nil {
		return st
	}
	slog.ErrorContext(ctx, "Failed to create parent, admitting unlinked",
		studentFields(log.OpAdmit, st).WithParent(newParent.ID).WithError(err).ToSlice()...)
	st.ParentID = ""
	if err := s.store.UpdateProfile(ctx, st); err != nil {
		slog.ErrorContext(ctx, "Failed to unlink student from parent",
			studentFields(log.OpAdmit, st).WithError(err).ToSlice()...)
	}
	return st
}

// Update edits the profile, class and rates of a student. Identifiers,
// session and ledgers are kept: a class change carries the roll number along
// and fails with core.ErrDuplicateNumber when the new class already uses it.
// Rate changes apply to sessions scheduled afterwards.
func (s *AdmissionService) Update(ctx context.Context, id string, patch core.Student) (core.Student, error) {
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return core.Student{}, err
	}
	if cur.Deleted() {
		return core.Student{}, core.ErrStudentNotFound
	}

	patch = normalize(patch)
	next := cur
	next.Name = patch.Name
	next.ClassName = patch.ClassName
	next.FatherName = patch.FatherName
	next.MotherName = patch.MotherName
	next.Phone = patch.Phone
	next.Address = patch.Address
	next.Aadhaar = patch.Aadhaar
	next.Gender = patch.Gender
	next.Category = patch.Category
	next.DOB = patch.DOB
	next.AdmissionDate = patch.AdmissionDate
	next.Subjects = patch.Subjects
	next.IsTransferStudent = patch.IsTransferStudent
	next.PNRNumber = patch.PNRNumber
	next.AdmissionFee = patch.AdmissionFee
	next.TuitionRate = patch.TuitionRate
	next.IsBusStudent = patch.IsBusStudent
	next.BusRate = patch.BusRate
	if err := next.Validate(); err != nil {
		return core.Student{}, err
	}

	if patch.ParentID != "" && patch.ParentID != cur.ParentID {
		if _, err := s.store.GetParent(ctx, patch.ParentID); err != nil {
			return core.Student{}, err
		}
		next.ParentID = patch.ParentID
	}

	if err := s.store.UpdateProfile(ctx, next); err != nil {
		return core.Student{}, fmt.Errorf("update student %s: %w", id, err)
	}
	s.students.Invalidate(id)

	if next.ParentID != cur.ParentID {
		if err := s.store.LinkStudent(ctx, next.ParentID, id); err != nil {
			slog.ErrorContext(ctx, "Failed to link student to parent",
				studentFields(log.OpUpdate, next).WithParent(next.ParentID).WithError(err).ToSlice()...)
		}
	}
	slog.InfoContext(ctx, "Student updated", studentFields(log.OpUpdate, next).ToSlice()...)
	return next, nil
}

// Readmit opens a new session for an existing student with a fresh roll
// number and ledger. Credit carried from earlier overpayments is added to
// the initial payment.
func (s *AdmissionService) Readmit(ctx context.Context, id string, req ReadmitRequest) (AdmissionResult, error) {
	res, err := s.readmit(ctx, id, req)
	s.opts.Metrics.Admission("readmit", err)
	return res, err
}

func (s *AdmissionService) readmit(ctx context.Context, id string, req ReadmitRequest) (AdmissionResult, error) {
	req.ClassName, req.Session = strings.TrimSpace(req.ClassName), strings.TrimSpace(req.Session)
	if req.ClassName == "" {
		return AdmissionResult{}, fmt.Errorf("%w: className", core.ErrMissingField)
	}
	if _, err := core.ParseSession(req.Session); err != nil {
		return AdmissionResult{}, err
	}

	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return AdmissionResult{}, err
	}
	if cur.Deleted() {
		return AdmissionResult{}, core.ErrStudentNotFound
	}
	if _, exists := cur.Fees[req.Session]; exists {
		return AdmissionResult{}, core.ErrSessionExists
	}

	ledger, err := core.BuildSchedule(req.TuitionRate, req.BusRate, req.IsBusStudent)
	if err != nil {
		return AdmissionResult{}, err
	}
	if req.Payment.School.IsNegative() || req.Payment.Bus.IsNegative() {
		return AdmissionResult{}, core.ErrNegativeAmount
	}
	alloc, err := core.Allocate(ledger, req.Payment.Add(cur.Credit), s.policy, s.opts.now())
	if err != nil {
		return AdmissionResult{}, err
	}
	rd := store.Readmission{
		ClassName:    req.ClassName,
		Session:      req.Session,
		TuitionRate:  req.TuitionRate,
		IsBusStudent: req.IsBusStudent,
		BusRate:      req.BusRate,
		Ledger:       alloc.Ledger,
	}
	if s.policy == core.OverpaymentCarry {
		rd.Credit = alloc.Excess
	}

	var lastErr error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		if rd.RollNumber, err = s.registry.NextRollNumber(ctx, rd.ClassName, rd.Session); err != nil {
			return AdmissionResult{}, err
		}
		lastErr = s.store.AddSession(ctx, id, rd)
		if !errors.Is(lastErr, core.ErrDuplicateNumber) {
			break
		}
		s.opts.Metrics.NumberConflict()
	}
	if lastErr != nil {
		return AdmissionResult{}, fmt.Errorf("readmit student %s: %w", id, lastErr)
	}
	s.students.Invalidate(id)

	next := cur
	next.ClassName, next.Session, next.RollNumber = rd.ClassName, rd.Session, rd.RollNumber
	next.TuitionRate, next.IsBusStudent, next.BusRate = rd.TuitionRate, rd.IsBusStudent, rd.BusRate
	next.Credit = rd.Credit
	next.Fees = make(map[string]core.FeeLedger, len(cur.Fees)+1)
	for k, v := range cur.Fees {
		next.Fees[k] = v
	}
	next.Fees[rd.Session] = rd.Ledger

	slog.InfoContext(ctx, "Student readmitted", studentFields(log.OpReadmit, next).ToSlice()...)
	s.opts.publish(ctx, amqp.EventStudentReadmitted, id, next.Session, "")

	slip, err := core.NewAdmissionSlip(next)
	if err != nil {
		return AdmissionResult{}, err
	}
	return AdmissionResult{Student: next, Excess: alloc.Excess, FullMonths: alloc.FullMonths, Slip: slip}, nil
}

// Delete tombstones a student. Its numbers stay reserved.
func (s *AdmissionService) Delete(ctx context.Context, id string) error {
	if err := s.store.SoftDelete(ctx, id, s.opts.now()); err != nil {
		return err
	}
	s.students.Invalidate(id)
	slog.InfoContext(ctx, "Student deleted", log.NewFields().
		WithComponent(log.ComponentAdmission).
		WithOperation(log.OpDelete).
		WithStudent(id, "", "", "").
		ToSlice()...)
	return nil
}

// List returns the students matching f ordered by roll number.
func (s *AdmissionService) List(ctx context.Context, f core.Filter) ([]core.Student, error) {
	students, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return core.SortByRoll(students), nil
}

func (s *AdmissionService) Get(ctx context.Context, id string) (core.Student, error) {
	return s.students.Get(ctx, id)
}

func (s *AdmissionService) CreateParent(ctx context.Context, p core.Parent) (core.Parent, error) {
	p.FatherName = strings.TrimSpace(p.FatherName)
	p.MotherName = strings.TrimSpace(p.MotherName)
	if err := p.Validate(); err != nil {
		return core.Parent{}, err
	}
	p.ID = uuid.NewString()
	p.StudentIDs = []string{}
	p.CreatedAt = s.opts.now()
	if err := s.store.CreateParent(ctx, p); err != nil {
		return core.Parent{}, fmt.Errorf("create parent: %w", err)
	}
	return p, nil
}

func (s *AdmissionService) GetParent(ctx context.Context, id string) (core.Parent, error) {
	return s.store.GetParent(ctx, id)
}

func (s *AdmissionService) ListParents(ctx context.Context, search string) ([]core.Parent, error) {
	return s.store.ListParents(ctx, strings.TrimSpace(search))
}

func normalize(st core.Student) core.Student {
	st.Name = strings.TrimSpace(st.Name)
	st.ClassName = strings.TrimSpace(st.ClassName)
	st.Session = strings.TrimSpace(st.Session)
	st.FatherName = strings.TrimSpace(st.FatherName)
	st.MotherName = strings.TrimSpace(st.MotherName)
	st.Phone = strings.TrimSpace(st.Phone)
	st.ParentID = strings.TrimSpace(st.ParentID)
	st.PNRNumber = strings.TrimSpace(st.PNRNumber)
	if !st.IsTransferStudent {
		st.PNRNumber = ""
	}
	return st
}

func studentFields(op string, st core.Student) log.LogFields {
	return log.NewFields().
		WithComponent(log.ComponentAdmission).
		WithOperation(op).
		WithStudent(st.ID, st.RegistrationNumber, st.RollNumber, st.ClassName).
		WithLedgerMonth(st.Session, "")
}
