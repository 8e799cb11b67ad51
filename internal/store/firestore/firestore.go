// Package firestore stores students, parents and counters in Cloud
// Firestore, with ledgers nested in the student document under
// fees.<session>.<month>.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vickym250/jnschool/internal/core"
	"github.com/vickym250/jnschool/internal/log"
	"github.com/vickym250/jnschool/internal/store"
)

const (
	studentsCollection = "students"
	parentsCollection  = "parents"
	countersCollection = "counters"
)

type Store struct {
	client *firestore.Client
}

var _ store.Store = (*Store)(nil)

// New connects to the project. credentialsFile may be empty to use the
// ambient application default credentials.
func New(ctx context.Context, projectID, credentialsFile string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	slog.InfoContext(ctx, "Firestore store ready", "project_id", projectID)
	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) students() *firestore.CollectionRef {
	return s.client.Collection(studentsCollection)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func decodeStudent(snap *firestore.DocumentSnapshot) (core.Student, error) {
	var d store.StudentDocument
	if err := snap.DataTo(&d); err != nil {
		return core.Student{}, fmt.Errorf("decode student %s: %w", snap.Ref.ID, err)
	}
	d.ID = snap.Ref.ID
	return d.Student()
}

func (s *Store) MaxRegistrationNumber(ctx context.Context) (int64, bool, error) {
	iter := s.students().OrderBy("regSeq", firestore.Desc).Limit(1).Documents(ctx)
	defer iter.Stop()
	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query max registration number: %w", err)
	}
	var d store.StudentDocument
	if err := snap.DataTo(&d); err != nil {
		return 0, false, fmt.Errorf("decode student %s: %w", snap.Ref.ID, err)
	}
	if d.RegistrationSeq == nil {
		return 0, false, nil
	}
	return *d.RegistrationSeq, true, nil
}

func (s *Store) RollNumbers(ctx context.Context, className, session string) ([]string, error) {
	iter := s.students().
		Where("className", "==", className).
		Where("session", "==", session).
		Select("rollNumber").
		Documents(ctx)
	defer iter.Stop()
	var rolls []string
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query roll numbers: %w", err)
		}
		if v, err := snap.DataAt("rollNumber"); err == nil {
			if roll, ok := v.(string); ok {
				rolls = append(rolls, roll)
			}
		}
	}
	return rolls, nil
}

func (s *Store) Get(ctx context.Context, id string) (core.Student, error) {
	snap, err := s.students().Doc(id).Get(ctx)
	if isNotFound(err) {
		return core.Student{}, core.ErrStudentNotFound
	}
	if err != nil {
		return core.Student{}, fmt.Errorf("get student %s: %w", id, err)
	}
	return decodeStudent(snap)
}

func (s *Store) List(ctx context.Context, f core.Filter) ([]core.Student, error) {
	q := s.students().Query
	if f.Session != "" {
		q = q.Where("session", "==", f.Session)
	}
	if f.ClassName != "" {
		q = q.Where("className", "==", f.ClassName)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()
	var out []core.Student
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list students: %w", err)
		}
		st, err := decodeStudent(snap)
		if err != nil {
			return nil, err
		}
		if f.Match(st) {
			out = append(out, st)
		}
	}
	return core.SortByRoll(out), nil
}

// taken reports whether a registration number or a (class, session, roll)
// triple is already used by a document other than selfID.
func (s *Store) taken(tx *firestore.Transaction, selfID string, queries ...firestore.Query) (bool, error) {
	for _, q := range queries {
		snaps, err := tx.Documents(q.Limit(2)).GetAll()
		if err != nil {
			return false, err
		}
		for _, snap := range snaps {
			if snap.Ref.ID != selfID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Store) rollQuery(className, session, roll string) firestore.Query {
	return s.students().
		Where("className", "==", className).
		Where("session", "==", session).
		Where("rollNumber", "==", roll)
}

func (s *Store) Create(ctx context.Context, st core.Student) error {
	doc := store.NewStudentDocument(st)
	ref := s.students().Doc(st.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		dup, err := s.taken(tx, st.ID,
			s.students().Where("regNo", "==", st.RegistrationNumber),
			s.rollQuery(st.ClassName, st.Session, st.RollNumber))
		if err != nil {
			return fmt.Errorf("check identifiers: %w", err)
		}
		if dup {
			return core.ErrDuplicateNumber
		}
		return tx.Create(ref, doc)
	})
	if status.Code(err) == codes.AlreadyExists {
		return core.ErrDuplicateNumber
	}
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	slog.InfoContext(ctx, "Student saved to Firestore", log.NewFields().
		WithComponent(log.ComponentStorage).
		WithOperation(log.OpCreate).
		WithStudent(st.ID, st.RegistrationNumber, st.RollNumber, st.ClassName).
		ToSlice()...)
	return nil
}

// UpdateProfile rewrites the profile fields. A class change keeps the roll
// number and fails with core.ErrDuplicateNumber when the new class already
// uses it in the same session.
func (s *Store) UpdateProfile(ctx context.Context, st core.Student) error {
	subjects := st.Subjects
	if subjects == nil {
		subjects = []string{}
	}
	ref := s.students().Doc(st.ID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return core.ErrStudentNotFound
		}
		if err != nil {
			return fmt.Errorf("get student %s: %w", st.ID, err)
		}
		cur, err := decodeStudent(snap)
		if err != nil {
			return err
		}
		if cur.ClassName != st.ClassName {
			dup, err := s.taken(tx, st.ID, s.rollQuery(st.ClassName, cur.Session, cur.RollNumber))
			if err != nil {
				return fmt.Errorf("check roll number: %w", err)
			}
			if dup {
				return core.ErrDuplicateNumber
			}
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "name", Value: st.Name},
			{Path: "className", Value: st.ClassName},
			{Path: "parentId", Value: st.ParentID},
			{Path: "fatherName", Value: st.FatherName},
			{Path: "motherName", Value: st.MotherName},
			{Path: "phone", Value: st.Phone},
			{Path: "address", Value: st.Address},
			{Path: "aadhaar", Value: st.Aadhaar},
			{Path: "gender", Value: st.Gender},
			{Path: "category", Value: st.Category},
			{Path: "dob", Value: st.DOB},
			{Path: "admissionDate", Value: st.AdmissionDate},
			{Path: "subjects", Value: subjects},
			{Path: "isTransferStudent", Value: st.IsTransferStudent},
			{Path: "pnrNumber", Value: st.PNRNumber},
			{Path: "admissionFeesPaise", Value: st.AdmissionFee.Paise},
			{Path: "totalFeesPaise", Value: st.TuitionRate.Paise},
			{Path: "isTransportEnabled", Value: st.IsBusStudent},
			{Path: "busFeesPaise", Value: st.BusRate.Paise},
		})
	})
}

func (s *Store) AddSession(ctx context.Context, id string, r store.Readmission) error {
	ref := s.students().Doc(id)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return core.ErrStudentNotFound
		}
		if err != nil {
			return fmt.Errorf("get student %s: %w", id, err)
		}
		if _, err := snap.DataAtPath(firestore.FieldPath{"fees", r.Session}); err == nil {
			return core.ErrSessionExists
		}
		dup, err := s.taken(tx, id, s.rollQuery(r.ClassName, r.Session, r.RollNumber))
		if err != nil {
			return fmt.Errorf("check roll number: %w", err)
		}
		if dup {
			return core.ErrDuplicateNumber
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "className", Value: r.ClassName},
			{Path: "session", Value: r.Session},
			{Path: "rollNumber", Value: r.RollNumber},
			{Path: "totalFeesPaise", Value: r.TuitionRate.Paise},
			{Path: "isTransportEnabled", Value: r.IsBusStudent},
			{Path: "busFeesPaise", Value: r.BusRate.Paise},
			{Path: "creditSchoolPaise", Value: r.Credit.School.Paise},
			{Path: "creditBusPaise", Value: r.Credit.Bus.Paise},
			{FieldPath: firestore.FieldPath{"fees", r.Session}, Value: store.NewLedgerDocument(r.Ledger)},
		})
	})
}

// SetMonthFee writes fees.<session>.<month> only. Concurrent writers to the
// same month resolve last-writer-wins.
func (s *Store) SetMonthFee(ctx context.Context, id, session string, month core.Month, fee core.MonthlyFee) error {
	ref := s.students().Doc(id)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return core.ErrStudentNotFound
		}
		if err != nil {
			return fmt.Errorf("get student %s: %w", id, err)
		}
		if _, err := snap.DataAtPath(firestore.FieldPath{"fees", session}); err != nil {
			return core.ErrSessionNotFound
		}
		return tx.Update(ref, []firestore.Update{
			{FieldPath: firestore.FieldPath{"fees", session, month.String()}, Value: store.NewMonthDocument(fee)},
		})
	})
}

func (s *Store) SoftDelete(ctx context.Context, id string, at time.Time) error {
	_, err := s.students().Doc(id).Update(ctx, []firestore.Update{{Path: "deletedAt", Value: at}})
	if isNotFound(err) {
		return core.ErrStudentNotFound
	}
	if err != nil {
		return fmt.Errorf("delete student %s: %w", id, err)
	}
	return nil
}

func (s *Store) CreateParent(ctx context.Context, p core.Parent) error {
	_, err := s.client.Collection(parentsCollection).Doc(p.ID).Create(ctx, store.NewParentDocument(p))
	if status.Code(err) == codes.AlreadyExists {
		return core.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create parent: %w", err)
	}
	return nil
}

func (s *Store) GetParent(ctx context.Context, id string) (core.Parent, error) {
	snap, err := s.client.Collection(parentsCollection).Doc(id).Get(ctx)
	if isNotFound(err) {
		return core.Parent{}, core.ErrParentNotFound
	}
	if err != nil {
		return core.Parent{}, fmt.Errorf("get parent %s: %w", id, err)
	}
	var d store.ParentDocument
	if err := snap.DataTo(&d); err != nil {
		return core.Parent{}, fmt.Errorf("decode parent %s: %w", id, err)
	}
	d.ID = snap.Ref.ID
	return d.Parent(), nil
}

func (s *Store) ListParents(ctx context.Context, search string) ([]core.Parent, error) {
	iter := s.client.Collection(parentsCollection).OrderBy("fatherName", firestore.Asc).Documents(ctx)
	defer iter.Stop()
	var out []core.Parent
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list parents: %w", err)
		}
		var d store.ParentDocument
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode parent %s: %w", snap.Ref.ID, err)
		}
		d.ID = snap.Ref.ID
		if store.MatchParent(d.FatherName, search) {
			out = append(out, d.Parent())
		}
	}
	return out, nil
}

func (s *Store) LinkStudent(ctx context.Context, parentID, studentID string) error {
	_, err := s.client.Collection(parentsCollection).Doc(parentID).Update(ctx, []firestore.Update{
		{Path: "students", Value: firestore.ArrayUnion(studentID)},
	})
	if isNotFound(err) {
		return core.ErrParentNotFound
	}
	if err != nil {
		return fmt.Errorf("link student %s to parent %s: %w", studentID, parentID, err)
	}
	return nil
}

func (s *Store) Next(ctx context.Context, key string, floor int64) (int64, error) {
	ref := s.client.Collection(countersCollection).Doc(store.CounterDocumentID(key))
	var next int64
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var cur int64
		snap, err := tx.Get(ref)
		switch {
		case isNotFound(err):
		case err != nil:
			return err
		default:
			v, err := snap.DataAt("value")
			if err != nil {
				return err
			}
			if n, ok := v.(int64); ok {
				cur = n
			}
		}
		next = max(cur, floor) + 1
		return tx.Set(ref, map[string]any{"value": next, "key": key})
	})
	if err != nil {
		return 0, fmt.Errorf("advance counter %s: %w", key, err)
	}
	return next, nil
}

func (s *Store) Release(ctx context.Context, key string, n int64) (bool, error) {
	ref := s.client.Collection(countersCollection).Doc(store.CounterDocumentID(key))
	var released bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		released = false
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		v, err := snap.DataAt("value")
		if err != nil {
			return err
		}
		if cur, ok := v.(int64); !ok || cur != n {
			return nil
		}
		released = true
		return tx.Update(ref, []firestore.Update{{Path: "value", Value: n - 1}})
	})
	if err != nil {
		return false, fmt.Errorf("release counter %s: %w", key, err)
	}
	return released, nil
}
