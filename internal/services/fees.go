package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vickym250/jnschool/internal/amqp"
	"github.com/vickym250/jnschool/internal/core"
	"github.com/vickym250/jnschool/internal/log"
	"github.com/vickym250/jnschool/internal/store"
)

// LedgerView is one session ledger with its derived state.
type LedgerView struct {
	StudentID string             `json:"studentId"`
	Session   string             `json:"session"`
	Months    []LedgerMonth      `json:"months"`
	Totals    core.LedgerTotals  `json:"totals"`
	Paid      core.StreamAmounts `json:"paidByStream"`
	Credit    core.StreamAmounts `json:"credit"`
}

type LedgerMonth struct {
	Month     core.Month      `json:"month"`
	Fee       core.MonthlyFee `json:"fee"`
	State     core.MonthState `json:"state"`
	Tuition   core.Status     `json:"tuition"`
	Transport core.Status     `json:"transport"`
}

type FeeService struct {
	repo     store.StudentRepository
	students *StudentReader
	opts     Options
}

func NewFeeService(repo store.StudentRepository, students *StudentReader, opts Options) *FeeService {
	return &FeeService{repo: repo, students: students, opts: opts}
}

// ConfirmMonthPayment settles the selected streams of one month in full and
// persists that month only.
func (s *FeeService) ConfirmMonthPayment(ctx context.Context, studentID, session, month string, paySchool, payBus bool) (core.MonthlyFee, error) {
	fee, err := s.confirm(ctx, studentID, session, month, core.Selection{School: paySchool, Bus: payBus})
	s.opts.Metrics.Confirmation(err)
	return fee, err
}

func (s *FeeService) confirm(ctx context.Context, studentID, session, month string, sel core.Selection) (core.MonthlyFee, error) {
	if sel.Empty() {
		return core.MonthlyFee{}, core.ErrNothingSelected
	}
	m, err := core.ParseMonth(month)
	if err != nil {
		return core.MonthlyFee{}, err
	}
	session = strings.TrimSpace(session)
	if _, err := core.ParseSession(session); err != nil {
		return core.MonthlyFee{}, err
	}

	st, err := s.repo.Get(ctx, studentID)
	if err != nil {
		return core.MonthlyFee{}, err
	}
	if st.Deleted() {
		return core.MonthlyFee{}, core.ErrStudentNotFound
	}
	ledger, ok := st.Fees[session]
	if !ok {
		return core.MonthlyFee{}, core.ErrSessionNotFound
	}

	before := ledger[m]
	fee, err := core.ConfirmMonth(before, sel, s.opts.now())
	if err != nil {
		return core.MonthlyFee{}, err
	}
	if err := s.repo.SetMonthFee(ctx, studentID, session, m, fee); err != nil {
		return core.MonthlyFee{}, fmt.Errorf("confirm %s %s: %w", session, m, err)
	}
	s.students.Invalidate(studentID)

	s.opts.Metrics.Collected(core.Tuition.String(), fee.PaidSchool.Sub(before.PaidSchool).Paise)
	s.opts.Metrics.Collected(core.Transport.String(), fee.PaidBus.Sub(before.PaidBus).Paise)
	slog.InfoContext(ctx, "Fee month confirmed", append(log.NewFields().
		WithComponent(log.ComponentFees).
		WithOperation(log.OpConfirm).
		WithStudent(st.ID, st.RegistrationNumber, st.RollNumber, st.ClassName).
		WithLedgerMonth(session, m.String()).
		WithAmount(fee.TotalPaid().Sub(before.TotalPaid()).Paise).
		ToSlice(),
		"pay_school", sel.School,
		"pay_bus", sel.Bus,
		"status", fee.Status().Status.String())...)
	s.opts.publish(ctx, amqp.EventFeeConfirmed, studentID, session, m.String())
	return fee, nil
}

// Ledger returns the session ledger of a student. An empty session selects
// the student's current one.
func (s *FeeService) Ledger(ctx context.Context, studentID, session string) (LedgerView, error) {
	st, err := s.students.Get(ctx, studentID)
	if err != nil {
		return LedgerView{}, err
	}
	if session == "" {
		session = st.Session
	}
	ledger, ok := st.Fees[session]
	if !ok {
		return LedgerView{}, core.ErrSessionNotFound
	}
	v := LedgerView{
		StudentID: st.ID,
		Session:   session,
		Months:    make([]LedgerMonth, 0, core.MonthsPerSession),
		Totals:    ledger.Totals(),
		Paid:      ledger.PaidByStream(),
		Credit:    st.Credit,
	}
	for _, m := range core.FiscalMonths() {
		f := ledger[m]
		v.Months = append(v.Months, LedgerMonth{
			Month:     m,
			Fee:       f,
			State:     f.Status(),
			Tuition:   f.StreamStatus(core.Tuition),
			Transport: f.StreamStatus(core.Transport),
		})
	}
	return v, nil
}

// Overview derives the month status of every student of a class.
func (s *FeeService) Overview(ctx context.Context, className, session, month string) (core.MonthOverview, error) {
	m, err := core.ParseMonth(month)
	if err != nil {
		return core.MonthOverview{}, err
	}
	if _, err := core.ParseSession(session); err != nil {
		return core.MonthOverview{}, err
	}
	students, err := s.repo.List(ctx, core.Filter{Session: session, ClassName: strings.TrimSpace(className)})
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("list students: %w", err)
	}
	return core.ClassMonthOverview(students, session, m), nil
}

// Receipt returns the printable record of what was paid for one month.
func (s *FeeService) Receipt(ctx context.Context, studentID, session, month string) (core.Receipt, error) {
	m, err := core.ParseMonth(month)
	if err != nil {
		return core.Receipt{}, err
	}
	st, err := s.students.Get(ctx, studentID)
	if err != nil {
		return core.Receipt{}, err
	}
	ledger, ok := st.Fees[session]
	if !ok {
		return core.Receipt{}, core.ErrSessionNotFound
	}
	return core.NewReceipt(st, session, m, ledger[m])
}
