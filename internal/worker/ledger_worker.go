// Package worker turns ledger events into collection register rows and keeps
// the month overview sheet current.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vickym250/jnschool/internal/amqp"
	"github.com/vickym250/jnschool/internal/core"
	"github.com/vickym250/jnschool/internal/log"
	"github.com/vickym250/jnschool/internal/metrics"
	"github.com/vickym250/jnschool/internal/sheets"
	"github.com/vickym250/jnschool/internal/store"
)

type LedgerWorker struct {
	students store.StudentRepository
	register sheets.Register
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewLedgerWorker(students store.StudentRepository, register sheets.Register, m *metrics.Metrics) *LedgerWorker {
	return &LedgerWorker{students: students, register: register, metrics: m, now: time.Now}
}

// HandleLedgerEvent records ev in the register. The row is built from the
// student's current state; events already recorded are skipped so
// redeliveries do not duplicate rows. Events for students that no longer
// exist are dropped.
func (w *LedgerWorker) HandleLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	err := w.handle(ctx, ev)
	w.metrics.EventHandled(string(ev.Type), err)
	return err
}

func (w *LedgerWorker) handle(ctx context.Context, ev *amqp.LedgerEvent) error {
	fields := func() log.LogFields {
		return log.NewFields().
			WithComponent(log.ComponentWorker).
			WithEvent(string(ev.Type), ev.StudentID, ev.Session, ev.Month)
	}
	slog.InfoContext(ctx, "Processing ledger event", fields().ToSlice()...)

	st, err := w.students.Get(ctx, ev.StudentID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Student of ledger event not found, dropping", fields().ToSlice()...)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get student: %w", err)
	}

	entry, err := w.entry(ev, st)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Ledger of event not found, dropping", fields().WithError(err).ToSlice()...)
			return nil
		}
		return err
	}

	seen, err := w.register.HasCollection(ctx, entry.Session, entry.Key)
	if err != nil {
		return fmt.Errorf("check register: %w", err)
	}
	if seen {
		slog.InfoContext(ctx, "Ledger event already recorded", append(fields().ToSlice(), "key", entry.Key)...)
		return nil
	}
	ref, err := w.register.AppendCollection(ctx, entry)
	if err != nil {
		return fmt.Errorf("append to register: %w", err)
	}
	slog.InfoContext(ctx, "Ledger event recorded", append(fields().ToSlice(),
		"key", entry.Key, log.FieldRegisterRef, ref)...)
	return nil
}

func (w *LedgerWorker) entry(ev *amqp.LedgerEvent, st core.Student) (sheets.CollectionEntry, error) {
	ledger, ok := st.Fees[ev.Session]
	if !ok {
		return sheets.CollectionEntry{}, core.ErrSessionNotFound
	}
	e := sheets.CollectionEntry{
		RecordedAt:         w.now(),
		Event:              string(ev.Type),
		RegistrationNumber: st.RegistrationNumber,
		RollNumber:         st.RollNumber,
		Name:               st.Name,
		ClassName:          st.ClassName,
		Session:            ev.Session,
	}

	switch ev.Type {
	case amqp.EventFeeConfirmed:
		m, err := core.ParseMonth(ev.Month)
		if err != nil {
			return sheets.CollectionEntry{}, err
		}
		fee := ledger[m]
		e.Month = m.String()
		e.Tuition, e.Transport = fee.PaidSchool, fee.PaidBus
		e.Total = fee.TotalPaid()
		e.Status = fee.Status().Status.String()
		stamp := "0"
		if fee.PaidAt != nil {
			stamp = strconv.FormatInt(fee.PaidAt.Unix(), 10)
		}
		// One row per confirmation: a later confirmation of the other
		// stream stamps a new PaidAt.
		e.Key = fmt.Sprintf("fee:%s:%s:%s:%s", st.ID, ev.Session, e.Month, stamp)
	default:
		paid := ledger.PaidByStream()
		e.AdmissionFee = st.AdmissionFee
		e.Tuition, e.Transport = paid.School, paid.Bus
		e.Total = st.AdmissionFee.Add(paid.Total())
		totals := ledger.Totals()
		e.Status = fmt.Sprintf("%d of %d months paid", totals.PaidMonths, core.MonthsPerSession)
		prefix := "admit"
		if ev.Type == amqp.EventStudentReadmitted {
			prefix = "readmit"
		}
		e.Key = fmt.Sprintf("%s:%s:%s", prefix, st.ID, ev.Session)
	}

	words, err := e.Total.InWords()
	if err != nil {
		return sheets.CollectionEntry{}, err
	}
	e.AmountInWords = words + " Rupees Only"
	return e, nil
}

// RefreshOverview writes the overview of month in session across every
// class.
func (w *LedgerWorker) RefreshOverview(ctx context.Context, session string, month core.Month) error {
	students, err := w.students.List(ctx, core.Filter{Session: session})
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}
	ov := core.ClassMonthOverview(students, session, month)
	if err := w.register.WriteOverview(ctx, ov); err != nil {
		return fmt.Errorf("write overview: %w", err)
	}
	slog.InfoContext(ctx, "Overview refreshed", append(log.NewFields().
		WithComponent(log.ComponentWorker).
		WithLedgerMonth(session, month.String()).
		ToSlice(),
		"paid", ov.Paid, "partial", ov.Partial, "pending", ov.Pending)...)
	return nil
}

// RefreshCurrentOverview refreshes the overview of the running month.
func (w *LedgerWorker) RefreshCurrentOverview(ctx context.Context) error {
	now := w.now()
	return w.RefreshOverview(ctx, core.CurrentSession(now), core.MonthOf(now.Month()))
}

// Consumer delivers events to a handler until ctx ends.
type Consumer func(ctx context.Context, handler amqp.Handler) error

// Run consumes events and refreshes the overview every interval until ctx
// is cancelled or the consumer fails. A non-positive interval disables the
// refresh loop.
func (w *LedgerWorker) Run(ctx context.Context, consume Consumer, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return consume(ctx, w.HandleLedgerEvent)
	})

	if interval > 0 {
		g.Go(func() error {
			if err := w.RefreshCurrentOverview(ctx); err != nil {
				slog.ErrorContext(ctx, "Startup overview refresh failed", log.FieldError, err)
			}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := w.RefreshCurrentOverview(ctx); err != nil {
						slog.ErrorContext(ctx, "Periodic overview refresh failed", log.FieldError, err)
					}
				}
			}
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
