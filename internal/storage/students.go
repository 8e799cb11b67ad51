package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vickym250/jnschool/internal/core"
	"github.com/vickym250/jnschool/internal/log"
	"github.com/vickym250/jnschool/internal/store"
)

const studentColumns = `s.id, s.registration_number, s.roll_number, s.name, s.class_name, s.session,
	s.parent_id, s.father_name, s.mother_name, s.phone, s.address, s.aadhaar, s.gender,
	s.category, s.dob, s.admission_date, s.subjects, s.is_transfer_student, s.pnr_number,
	s.admission_fee_paise, s.tuition_rate_paise, s.is_bus_student, s.bus_rate_paise,
	s.credit_school_paise, s.credit_bus_paise, s.created_at, s.deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (core.Student, error) {
	var (
		s          core.Student
		subjects   string
		isBus      int64
		isTransfer int64
		deleted    sql.NullTime
	)
	err := row.Scan(&s.ID, &s.RegistrationNumber, &s.RollNumber, &s.Name, &s.ClassName, &s.Session,
		&s.ParentID, &s.FatherName, &s.MotherName, &s.Phone, &s.Address, &s.Aadhaar, &s.Gender,
		&s.Category, &s.DOB, &s.AdmissionDate, &subjects, &isTransfer, &s.PNRNumber,
		&s.AdmissionFee.Paise,
		&s.TuitionRate.Paise, &isBus, &s.BusRate.Paise, &s.Credit.School.Paise,
		&s.Credit.Bus.Paise, &s.CreatedAt, &deleted)
	if err != nil {
		return core.Student{}, err
	}
	s.IsBusStudent = isBus != 0
	s.IsTransferStudent = isTransfer != 0
	if deleted.Valid {
		t := deleted.Time
		s.DeletedAt = &t
	}
	if subjects != "" {
		if err := json.Unmarshal([]byte(subjects), &s.Subjects); err != nil {
			return core.Student{}, fmt.Errorf("decode subjects of %s: %w", s.ID, err)
		}
	}
	return s, nil
}

func (r *SQLiteRepository) MaxRegistrationNumber(ctx context.Context) (int64, bool, error) {
	var v sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(registration_seq) FROM students`).Scan(&v); err != nil {
		return 0, false, fmt.Errorf("query max registration number: %w", err)
	}
	return v.Int64, v.Valid, nil
}

func (r *SQLiteRepository) RollNumbers(ctx context.Context, className, session string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT roll_number FROM students WHERE class_name = ? AND session = ?`, className, session)
	if err != nil {
		return nil, fmt.Errorf("query roll numbers: %w", err)
	}
	defer rows.Close()
	var rolls []string
	for rows.Next() {
		var roll string
		if err := rows.Scan(&roll); err != nil {
			return nil, fmt.Errorf("scan roll number: %w", err)
		}
		rolls = append(rolls, roll)
	}
	return rolls, rows.Err()
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (core.Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students s WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Student{}, core.ErrStudentNotFound
	}
	if err != nil {
		return core.Student{}, fmt.Errorf("get student %s: %w", id, err)
	}
	byID := map[string]*core.Student{s.ID: &s}
	if err := r.loadFees(ctx, `s.id = ?`, []any{id}, byID); err != nil {
		return core.Student{}, err
	}
	return s, nil
}

func (r *SQLiteRepository) List(ctx context.Context, f core.Filter) ([]core.Student, error) {
	var (
		where []string
		args  []any
	)
	if !f.IncludeDeleted {
		where = append(where, `s.deleted_at IS NULL`)
	}
	if f.Session != "" {
		where = append(where, `s.session = ?`)
		args = append(args, f.Session)
	}
	if f.ClassName != "" {
		where = append(where, `s.class_name = ?`)
		args = append(args, f.ClassName)
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		where = append(where, `(LOWER(s.name) LIKE ? OR LOWER(s.registration_number) LIKE ? OR s.roll_number LIKE ?)`)
		args = append(args, "%"+q+"%", "%"+q+"%", "%"+q+"%")
	}
	clause := "1 = 1"
	if len(where) > 0 {
		clause = strings.Join(where, " AND ")
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+studentColumns+` FROM students s WHERE `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	var out []core.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan student: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list students: %w", err)
	}
	rows.Close()

	byID := make(map[string]*core.Student, len(out))
	for i := range out {
		byID[out[i].ID] = &out[i]
	}
	if err := r.loadFees(ctx, clause, args, byID); err != nil {
		return nil, err
	}
	return core.SortByRoll(out), nil
}

// loadFees fills the ledgers of the students selected by clause.
func (r *SQLiteRepository) loadFees(ctx context.Context, clause string, args []any, byID map[string]*core.Student) error {
	rows, err := r.db.QueryContext(ctx, `SELECT f.student_id, f.session, f.month, f.school_part_paise,
		f.bus_part_paise, f.paid_school_paise, f.paid_bus_paise, f.paid_at
		FROM fee_months f JOIN students s ON s.id = f.student_id WHERE `+clause, args...)
	if err != nil {
		return fmt.Errorf("load fee months: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id, session string
			month       int
			fee         core.MonthlyFee
			paidAt      sql.NullTime
		)
		if err := rows.Scan(&id, &session, &month, &fee.SchoolPart.Paise, &fee.BusPart.Paise,
			&fee.PaidSchool.Paise, &fee.PaidBus.Paise, &paidAt); err != nil {
			return fmt.Errorf("scan fee month: %w", err)
		}
		s, ok := byID[id]
		if !ok || !core.Month(month).Valid() {
			continue
		}
		if paidAt.Valid {
			t := paidAt.Time
			fee.PaidAt = &t
		}
		if s.Fees == nil {
			s.Fees = map[string]core.FeeLedger{}
		}
		l := s.Fees[session]
		l[month] = fee
		s.Fees[session] = l
	}
	return rows.Err()
}

func (r *SQLiteRepository) Create(ctx context.Context, s core.Student) error {
	subjects, err := json.Marshal(nonNil(s.Subjects))
	if err != nil {
		return fmt.Errorf("encode subjects: %w", err)
	}
	var seq sql.NullInt64
	if n, ok := core.ParseNumber(s.RegistrationNumber); ok {
		seq = sql.NullInt64{Int64: n, Valid: true}
	}

	err = r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO students (id, registration_number, registration_seq,
			roll_number, name, class_name, session, parent_id, father_name, mother_name, phone, address,
			aadhaar, gender, category, dob, admission_date, subjects, is_transfer_student, pnr_number,
			admission_fee_paise, tuition_rate_paise, is_bus_student, bus_rate_paise, credit_school_paise,
			credit_bus_paise, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.RegistrationNumber, seq, s.RollNumber, s.Name, s.ClassName, s.Session, s.ParentID,
			s.FatherName, s.MotherName, s.Phone, s.Address, s.Aadhaar, s.Gender, s.Category, s.DOB,
			s.AdmissionDate, string(subjects), boolInt(s.IsTransferStudent), s.PNRNumber,
			s.AdmissionFee.Paise, s.TuitionRate.Paise,
			boolInt(s.IsBusStudent), s.BusRate.Paise, s.Credit.School.Paise, s.Credit.Bus.Paise,
			s.CreatedAt.UTC())
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert student %s: %w", s.RegistrationNumber, core.ErrDuplicateNumber)
			}
			return fmt.Errorf("insert student: %w", err)
		}
		for session, l := range s.Fees {
			if err := insertLedger(ctx, tx, s.ID, session, l); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Student saved to SQLite", log.NewFields().
		WithComponent(log.ComponentStorage).
		WithOperation(log.OpCreate).
		WithStudent(s.ID, s.RegistrationNumber, s.RollNumber, s.ClassName).
		WithLedgerMonth(s.Session, "").
		ToSlice()...)
	return nil
}

func insertLedger(ctx context.Context, tx *sql.Tx, id, session string, l core.FeeLedger) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fee_months (student_id, session, month,
		school_part_paise, bus_part_paise, paid_school_paise, paid_bus_paise, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare fee month insert: %w", err)
	}
	defer stmt.Close()
	for m, f := range l {
		if _, err := stmt.ExecContext(ctx, id, session, m, f.SchoolPart.Paise, f.BusPart.Paise,
			f.PaidSchool.Paise, f.PaidBus.Paise, nullTime(f.PaidAt)); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert %s ledger: %w", session, core.ErrSessionExists)
			}
			return fmt.Errorf("insert fee month %s %s: %w", session, core.Month(m), err)
		}
	}
	return nil
}

func (r *SQLiteRepository) UpdateProfile(ctx context.Context, s core.Student) error {
	subjects, err := json.Marshal(nonNil(s.Subjects))
	if err != nil {
		return fmt.Errorf("encode subjects: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE students SET name = ?, class_name = ?, parent_id = ?,
		father_name = ?, mother_name = ?, phone = ?, address = ?, aadhaar = ?, gender = ?, category = ?,
		dob = ?, admission_date = ?, subjects = ?, is_transfer_student = ?, pnr_number = ?,
		admission_fee_paise = ?, tuition_rate_paise = ?, is_bus_student = ?, bus_rate_paise = ?
		WHERE id = ?`,
		s.Name, s.ClassName, s.ParentID, s.FatherName, s.MotherName, s.Phone, s.Address, s.Aadhaar,
		s.Gender, s.Category, s.DOB, s.AdmissionDate, string(subjects), boolInt(s.IsTransferStudent),
		s.PNRNumber, s.AdmissionFee.Paise, s.TuitionRate.Paise, boolInt(s.IsBusStudent), s.BusRate.Paise,
		s.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update student %s: %w", s.ID, core.ErrDuplicateNumber)
		}
		return fmt.Errorf("update student %s: %w", s.ID, err)
	}
	return expectOne(res, core.ErrStudentNotFound)
}

func (r *SQLiteRepository) AddSession(ctx context.Context, id string, rd store.Readmission) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM fee_months WHERE student_id = ? AND session = ?`,
			id, rd.Session).Scan(&exists); err != nil {
			return fmt.Errorf("check session ledger: %w", err)
		}
		if exists > 0 {
			return core.ErrSessionExists
		}
		res, err := tx.ExecContext(ctx, `UPDATE students SET class_name = ?, session = ?, roll_number = ?,
			tuition_rate_paise = ?, is_bus_student = ?, bus_rate_paise = ?,
			credit_school_paise = ?, credit_bus_paise = ? WHERE id = ?`,
			rd.ClassName, rd.Session, rd.RollNumber,
			rd.TuitionRate.Paise, boolInt(rd.IsBusStudent), rd.BusRate.Paise,
			rd.Credit.School.Paise, rd.Credit.Bus.Paise, id)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("readmit %s: %w", id, core.ErrDuplicateNumber)
			}
			return fmt.Errorf("readmit %s: %w", id, err)
		}
		if err := expectOne(res, core.ErrStudentNotFound); err != nil {
			return err
		}
		return insertLedger(ctx, tx, id, rd.Session, rd.Ledger)
	})
}

func (r *SQLiteRepository) SetMonthFee(ctx context.Context, id, session string, month core.Month, fee core.MonthlyFee) error {
	res, err := r.db.ExecContext(ctx, `UPDATE fee_months SET school_part_paise = ?, bus_part_paise = ?,
		paid_school_paise = ?, paid_bus_paise = ?, paid_at = ?
		WHERE student_id = ? AND session = ? AND month = ?`,
		fee.SchoolPart.Paise, fee.BusPart.Paise, fee.PaidSchool.Paise, fee.PaidBus.Paise,
		nullTime(fee.PaidAt), id, session, int(month))
	if err != nil {
		return fmt.Errorf("update fee month %s %s: %w", session, month, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		slog.InfoContext(ctx, "Fee month updated", log.NewFields().
			WithComponent(log.ComponentStorage).
			WithOperation(log.OpUpdate).
			WithStudent(id, "", "", "").
			WithLedgerMonth(session, month.String()).
			WithAmount(fee.TotalPaid().Paise).
			ToSlice()...)
		return nil
	}
	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM students WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrStudentNotFound
	}
	if err != nil {
		return fmt.Errorf("check student %s: %w", id, err)
	}
	return core.ErrSessionNotFound
}

func (r *SQLiteRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE students SET deleted_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("delete student %s: %w", id, err)
	}
	return expectOne(res, core.ErrStudentNotFound)
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
