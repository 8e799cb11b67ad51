package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vickym250/jnschool/internal/core"
	"github.com/vickym250/jnschool/internal/store"
)

// Store keeps everything in process memory. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	students map[string]core.Student
	parents  map[string]core.Parent
	counters map[string]int64
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		students: map[string]core.Student{},
		parents:  map[string]core.Parent{},
		counters: map[string]int64{},
	}
}

func (s *Store) MaxRegistrationNumber(_ context.Context) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	regs := make([]string, 0, len(s.students))
	for _, st := range s.students {
		regs = append(regs, st.RegistrationNumber)
	}
	highest, found := core.MaxNumeric(regs)
	return highest, found, nil
}

func (s *Store) RollNumbers(_ context.Context, className, session string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rolls []string
	for _, st := range s.students {
		if st.ClassName == className && st.Session == session {
			rolls = append(rolls, st.RollNumber)
		}
	}
	return rolls, nil
}

func (s *Store) Get(_ context.Context, id string) (core.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return core.Student{}, core.ErrStudentNotFound
	}
	return cloneStudent(st), nil
}

func (s *Store) List(_ context.Context, f core.Filter) ([]core.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Student
	for _, st := range s.students {
		if f.Match(st) {
			out = append(out, cloneStudent(st))
		}
	}
	return core.SortByRoll(out), nil
}

func (s *Store) Create(_ context.Context, st core.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.students[st.ID]; ok {
		return core.ErrDuplicateNumber
	}
	for _, other := range s.students {
		if other.RegistrationNumber == st.RegistrationNumber {
			return core.ErrDuplicateNumber
		}
		if rollTaken(other, st.ClassName, st.Session, st.RollNumber) {
			return core.ErrDuplicateNumber
		}
	}
	s.students[st.ID] = cloneStudent(st)
	return nil
}

func (s *Store) UpdateProfile(_ context.Context, st core.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.students[st.ID]
	if !ok {
		return core.ErrStudentNotFound
	}
	if st.ClassName != cur.ClassName {
		for otherID, other := range s.students {
			if otherID != st.ID && rollTaken(other, st.ClassName, cur.Session, cur.RollNumber) {
				return core.ErrDuplicateNumber
			}
		}
	}
	cur.Name, cur.ClassName, cur.FatherName, cur.MotherName = st.Name, st.ClassName, st.FatherName, st.MotherName
	cur.IsTransferStudent, cur.PNRNumber = st.IsTransferStudent, st.PNRNumber
	cur.Phone, cur.Address, cur.Aadhaar = st.Phone, st.Address, st.Aadhaar
	cur.Gender, cur.Category, cur.DOB = st.Gender, st.Category, st.DOB
	cur.AdmissionDate, cur.Subjects, cur.ParentID = st.AdmissionDate, append([]string(nil), st.Subjects...), st.ParentID
	cur.AdmissionFee, cur.TuitionRate, cur.IsBusStudent, cur.BusRate = st.AdmissionFee, st.TuitionRate, st.IsBusStudent, st.BusRate
	s.students[st.ID] = cur
	return nil
}

func (s *Store) AddSession(_ context.Context, id string, r store.Readmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.students[id]
	if !ok {
		return core.ErrStudentNotFound
	}
	if _, exists := cur.Fees[r.Session]; exists {
		return core.ErrSessionExists
	}
	for otherID, other := range s.students {
		if otherID != id && rollTaken(other, r.ClassName, r.Session, r.RollNumber) {
			return core.ErrDuplicateNumber
		}
	}
	cur = cloneStudent(cur)
	if cur.Fees == nil {
		cur.Fees = map[string]core.FeeLedger{}
	}
	cur.Fees[r.Session] = r.Ledger
	cur.ClassName, cur.Session, cur.RollNumber, cur.Credit = r.ClassName, r.Session, r.RollNumber, r.Credit
	cur.TuitionRate, cur.IsBusStudent, cur.BusRate = r.TuitionRate, r.IsBusStudent, r.BusRate
	s.students[id] = cur
	return nil
}

func (s *Store) SetMonthFee(_ context.Context, id, session string, month core.Month, fee core.MonthlyFee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.students[id]
	if !ok {
		return core.ErrStudentNotFound
	}
	l, ok := cur.Fees[session]
	if !ok {
		return core.ErrSessionNotFound
	}
	l[month] = fee
	cur = cloneStudent(cur)
	cur.Fees[session] = l
	s.students[id] = cur
	return nil
}

func (s *Store) SoftDelete(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.students[id]
	if !ok {
		return core.ErrStudentNotFound
	}
	cur.DeletedAt = &at
	s.students[id] = cur
	return nil
}

func (s *Store) CreateParent(_ context.Context, p core.Parent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.parents[p.ID]; ok {
		return core.ErrConflict
	}
	p.StudentIDs = append([]string(nil), p.StudentIDs...)
	s.parents[p.ID] = p
	return nil
}

func (s *Store) GetParent(_ context.Context, id string) (core.Parent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parents[id]
	if !ok {
		return core.Parent{}, core.ErrParentNotFound
	}
	p.StudentIDs = append([]string(nil), p.StudentIDs...)
	return p, nil
}

func (s *Store) ListParents(_ context.Context, search string) ([]core.Parent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(search))
	var out []core.Parent
	for _, p := range s.parents {
		if q == "" || strings.Contains(strings.ToLower(p.FatherName), q) {
			p.StudentIDs = append([]string(nil), p.StudentIDs...)
			out = append(out, p)
		}
	}
	sortParents(out)
	return out, nil
}

func (s *Store) LinkStudent(_ context.Context, parentID, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parents[parentID]
	if !ok {
		return core.ErrParentNotFound
	}
	for _, id := range p.StudentIDs {
		if id == studentID {
			return nil
		}
	}
	p.StudentIDs = append(append([]string(nil), p.StudentIDs...), studentID)
	s.parents[parentID] = p
	return nil
}

func (s *Store) Next(_ context.Context, key string, floor int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.counters[key]
	if floor > v {
		v = floor
	}
	v++
	s.counters[key] = v
	return v, nil
}

func (s *Store) Release(_ context.Context, key string, n int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters[key] != n {
		return false, nil
	}
	s.counters[key] = n - 1
	return true, nil
}

func rollTaken(st core.Student, className, session, roll string) bool {
	return st.ClassName == className && st.Session == session && st.RollNumber == roll
}

func cloneStudent(st core.Student) core.Student {
	st.Subjects = append([]string(nil), st.Subjects...)
	if st.Fees != nil {
		fees := make(map[string]core.FeeLedger, len(st.Fees))
		for k, v := range st.Fees {
			fees[k] = v
		}
		st.Fees = fees
	}
	return st
}

func sortParents(ps []core.Parent) {
	sort.Slice(ps, func(i, j int) bool {
		return strings.ToLower(ps[i].FatherName) < strings.ToLower(ps[j].FatherName)
	})
}
