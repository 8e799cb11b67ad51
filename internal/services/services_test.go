package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vickym250/jnschool/internal/amqp"
	"github.com/vickym250/jnschool/internal/cache"
	"github.com/vickym250/jnschool/internal/core"
	"github.com/vickym250/jnschool/internal/store"
	"github.com/vickym250/jnschool/internal/store/memory"
)

var fixedNow = time.Date(2025, 4, 15, 9, 0, 0, 0, time.UTC)

type fakePublisher struct {
	mu     sync.Mutex
	events []amqp.LedgerEvent
	err    error
}

func (p *fakePublisher) PublishLedgerEvent(_ context.Context, ev *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *ev)
	return p.err
}

func (p *fakePublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	events    *fakePublisher
	admission *AdmissionService
	fees      *FeeService
}

func newFixture(t *testing.T, policy core.OverpaymentPolicy) *fixture {
	t.Helper()
	return newFixtureWith(t, memory.New(), policy)
}

func newFixtureWith(t *testing.T, st store.Store, policy core.OverpaymentPolicy) *fixture {
	t.Helper()
	events := &fakePublisher{}
	opts := Options{Events: events, Clock: func() time.Time { return fixedNow }}
	reader := NewStudentReader(st, cache.NewLRUCache[core.Student](16, time.Minute))
	reg := NewRegistry(st, st)
	return &fixture{
		events:    events,
		admission: NewAdmissionService(st, reg, reader, policy, opts),
		fees:      NewFeeService(st, reader, opts),
	}
}

func admission(name, class string, tuition, bus int64, payS, payB int64) AdmissionRequest {
	return AdmissionRequest{
		Student: core.Student{
			Name: name, ClassName: class, Session: "2025-26",
			FatherName: "Father of " + name, Phone: "9999999999",
			AdmissionFee: core.Rupees(500), TuitionRate: core.Rupees(tuition),
			IsBusStudent: bus > 0, BusRate: core.Rupees(bus),
		},
		Payment: core.StreamAmounts{School: core.Rupees(payS), Bus: core.Rupees(payB)},
	}
}

func TestAdmit_AllocatesNumbersAndLedger(t *testing.T) {
	f := newFixture(t, core.OverpaymentReject)
	ctx := context.Background()

	res, err := f.admission.Admit(ctx, admission("Asha", "5", 1000, 300, 2500, 600))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	st := res.Student
	if st.RegistrationNumber != "1001" || st.RollNumber != "1" {
		t.Fatalf("numbers = %s/%s, want 1001/1", st.RegistrationNumber, st.RollNumber)
	}
	l := st.Fees["2025-26"]
	if l[core.April].PaidSchool != core.Rupees(1000) || l[core.June].PaidSchool != core.Rupees(500) || l[core.July].PaidSchool.Paise != 0 {
		t.Errorf("unexpected tuition allocation %+v", l)
	}
	if l[core.May].PaidBus != core.Rupees(300) || l[core.June].PaidBus.Paise != 0 {
		t.Errorf("unexpected bus allocation %+v", l)
	}
	if res.FullMonths.School != 2 || res.FullMonths.Bus != 2 {
		t.Errorf("FullMonths = %+v", res.FullMonths)
	}
	if res.Slip.TuitionLabel != "Paid: April to May" || res.Slip.Total != core.Rupees(3600) {
		t.Errorf("unexpected slip %+v", res.Slip)
	}

	if st.ParentID == "" {
		t.Fatal("parent should have been created")
	}
	p, err := f.admission.GetParent(ctx, st.ParentID)
	if err != nil || len(p.StudentIDs) != 1 || p.StudentIDs[0] != st.ID {
		t.Errorf("parent link = %+v, %v", p, err)
	}
	if got := f.events.types(); len(got) != 1 || got[0] != amqp.EventStudentAdmitted {
		t.Errorf("events = %v", got)
	}

	second, err := f.admission.Admit(ctx, admission("Bela", "5", 1000, 0, 0, 0))
	if err != nil {
		t.Fatalf("second Admit: %v", err)
	}
	if second.Student.RegistrationNumber != "1002" || second.Student.RollNumber != "2" {
		t.Errorf("second numbers = %s/%s", second.Student.RegistrationNumber, second.Student.RollNumber)
	}
	other, _ := f.admission.Admit(ctx, admission("Chitra", "6", 1000, 0, 0, 0))
	if other.Student.RollNumber != "1" {
		t.Errorf("roll numbers are per class, got %s", other.Student.RollNumber)
	}
}

func TestAdmit_ReusesParent(t *testing.T) {
	f := newFixture(t, core.OverpaymentReject)
	ctx := context.Background()

	p, err := f.admission.CreateParent(ctx, core.Parent{FatherName: "Ravi"})
	if err != nil {
		t.Fatal(err)
	}
	req := admission("Asha", "5", 1000, 0, 0, 0)
	req.Student.ParentID = p.ID
	res, err := f.admission.Admit(ctx, req)
	if err != nil || res.Student.ParentID != p.ID {
		t.Fatalf("Admit = %+v, %v", res.Student, err)
	}

	req.Student.ParentID = "missing"
	if _, err := f.admission.Admit(ctx, req); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown parent: expected not found, got %v", err)
	}
}

func TestAdmit_OverpaymentRejectedBeforeNumbers(t *testing.T) {
	f := newFixture(t, core.OverpaymentReject)
	ctx := context.Background()

	_, err := f.admission.Admit(ctx, admission("Asha", "5", 100, 0, 1300, 0))
	if !errors.Is(err, core.ErrOverpayment) || core.Kind(err) != "INVALID_INPUT" {
		t.Fatalf("expected overpayment, got %v", err)
	}
	_, err = f.admission.Admit(ctx, admission("Asha", "5", 1000, 0, 0, 200))
	if !errors.Is(err, core.ErrOverpayment) {
		t.Fatalf("bus payment without bus: expected overpayment, got %v", err)
	}

	res, err := f.admission.Admit(ctx, admission("Bela", "5", 1000, 0, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if res.Student.RegistrationNumber != "1001" {
		t.Errorf("rejected admissions must not consume numbers, got %s", res.Student.RegistrationNumber)
	}
}

func TestAdmit_Validation(t *testing.T) {
	f := newFixture(t, core.OverpaymentReject)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*AdmissionRequest)
	}{
		{"missing name", func(r *AdmissionRequest) { r.Student.Name = " " }},
		{"missing class", func(r *AdmissionRequest) { r.Student.ClassName = "" }},
		{"bad session", func(r *AdmissionRequest) { r.Student.Session = "2025-27" }},
		{"negative rate", func(r *AdmissionRequest) { r.Student.TuitionRate = core.Money{Paise: -1} }},
		{"negative payment", func(r *AdmissionRequest) { r.Payment.School = core.Money{Paise: -1} }},
		{"transfer without pnr", func(r *AdmissionRequest) { r.Student.IsTransferStudent = true }},
		{"rate out of range", func(r *AdmissionRequest) { r.Student.TuitionRate = core.Money{Paise: core.MaxAmountPaise + 1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := admission("Asha", "5", 1000, 0, 0, 0)
			tt.mutate(&req)
			if _, err := f.admission.Admit(ctx, req); core.Kind(err) != "INVALID_INPUT" {
				t.Errorf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
}

func TestAdmit_CarryCreditIntoReadmission(t *testing.T) {
	f := newFixture(t, core.OverpaymentCarry)
	ctx := context.Background()

	res, err := f.admission.Admit(ctx, admission("Asha", "5", 100, 0, 1500, 0))
	if err != nil {
		t.Fatal(err)
	}
	if res.Excess.School != core.Rupees(300) || res.Student.Credit.School != core.Rupees(300) {
		t.Fatalf("excess = %+v, credit = %+v", res.Excess, res.Student.Credit)
	}

	next, err := f.admission.Readmit(ctx, res.Student.ID, ReadmitRequest{
		ClassName: "6", Session: "2026-27", TuitionRate: core.Rupees(150),
	})
	if err != nil {
		t.Fatalf("Readmit: %v", err)
	}
	l := next.Student.Fees["2026-27"]
	if l[core.April].PaidSchool != core.Rupees(150) || l[core.May].PaidSchool != core.Rupees(150) || l[core.June].PaidSchool.Paise != 0 {
		t.Errorf("credit not applied: %+v", l)
	}
	if !next.Student.Credit.IsZero() {
		t.Errorf("credit should be consumed, got %+v", next.Student.Credit)
	}
	stored, _ := f.admission.Get(ctx, res.Student.ID)
	if stored.ClassName != "6" || stored.RollNumber != "1" || stored.TuitionRate != core.Rupees(150) {
		t.Errorf("stored after readmit = %+v", stored)
	}
	if _, ok := stored.Fees["2025-26"]; !ok {
		t.Error("previous session ledger must be kept")
	}
}

func TestReadmit_Errors(t *testing.T) {
	f := newFixture(t, core.OverpaymentReject)
	ctx := context.Background()
	res, _ := f.admission.Admit(ctx, admission("Asha", "5", 1000, 0, 0, 0))

	_, err := f.admission.Readmit(ctx, res.Student.ID, ReadmitRequest{ClassName: "5", Session: "2025-26"})
	if !errors.Is(err, core.ErrConflict) {
		t.Errorf("existing session: expected conflict, got %v", err)
	}
	_, err = f.admission.Readmit(ctx, "missing", ReadmitRequest{ClassName: "6", Session: "2026-27"})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing student: expected not found, got %v", err)
	}
	_, err = f.admission.Readmit(ctx, res.Student.ID, ReadmitRequest{ClassName: "6", Session: "26-27"})
	if core.Kind(err) != "INVALID_INPUT" {
		t.Errorf("bad session: expected invalid input, got %v", err)
	}
}

func TestAdmit_ConcurrentUniqueNumbers(t *testing.T) {
	f := newFixture(t, core.OverpaymentReject)
	ctx := context.Background()
	const n = 25

	var wg sync.WaitGroup
	results := make([]AdmissionResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.admission.Admit(ctx, admission(fmt.Sprintf("S%02d", i), "5", 1000, 0, 0, 0))
		}(i)
	}
	wg.Wait()

	regs, rolls := map[string]bool{}, map[string]bool{}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("admission %d: %v", i, errs[i])
		}
		st := results[i].Student
		if regs[st.RegistrationNumber] || rolls[st.RollNumber] {
			t.Fatalf("duplicate number issued: %s/%s", st.RegistrationNumber, st.RollNumber)
		}
		regs[st.RegistrationNumber], rolls[st.RollNumber] = true, true
	}
	for i := 1001; i < 1001+n; i++ {
		if !regs[fmt.Sprint(i)] {
			t.Errorf("registration %d missing, numbers are not contiguous", i)
		}
	}
}

// conflictOnce makes the first Create report a taken identifier.
type conflictOnce struct {
	*memory.Store
	mu    sync.Mutex
	fired bool
}

func (c *conflictOnce) Create(ctx context.Context, s core.Student) error {
	c.mu.Lock()
	fire := !c.fired
	c.fired = true
	c.mu.Unlock()
	if fire {
		return fmt.Errorf("insert: %w", core.ErrDuplicateNumber)
	}
	return c.Store.Create(ctx, s)
}

func TestAdmit_RetriesAfterConflict(t *testing.T) {
	st := &conflictOnce{Store: memory.New()}
	f := newFixtureWith(t, st, core.OverpaymentReject)

	res, err := f.admission.Admit(context.Background(), admission("Asha", "5", 1000, 0, 0, 0))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if res.Student.RegistrationNumber != "1001" || res.Student.RollNumber != "1" {
		t.Errorf("numbers of the failed insert should be reissued, got %s/%s", res.Student.RegistrationNumber, res.Student.RollNumber)
	}
}

// failCreateOnce makes the first Create fail with a storage error.
type failCreateOnce struct {
	*memory.Store
	mu    sync.Mutex
	fired bool
}

func (c *failCreateOnce) Create(ctx context.Context, s core.Student) error {
	c.mu.Lock()
	fire := !c.fired
	c.fired = true
	c.mu.Unlock()
	if fire {
		return errors.New("disk full")
	}
	return c.Store.Create(ctx, s)
}

func TestAdmit_FailedInsertLeavesNoTrace(t *testing.T) {
	st := &failCreateOnce{Store: memory.New()}
	f := newFixtureWith(t, st, core.OverpaymentReject)
	ctx := context.Background()

	if _, err := f.admission.Admit(ctx, admission("Asha", "5", 1000, 0, 0, 0)); err == nil || core.Kind(err) != "" {
		t.Fatalf("expected an internal error, got %v", err)
	}
	if parents, _ := f.admission.ListParents(ctx, ""); len(parents) != 0 {
		t.Fatalf("failed admission left %d parents behind", len(parents))
	}

	res, err := f.admission.Admit(ctx, admission("Asha", "5", 1000, 0, 0, 0))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if res.Student.RegistrationNumber != "1001" || res.Student.RollNumber != "1" {
		t.Errorf("numbers = %s/%s, want 1001/1", res.Student.RegistrationNumber, res.Student.RollNumber)
	}
	parents, _ := f.admission.ListParents(ctx, "")
	if len(parents) != 1 || len(parents[0].StudentIDs) != 1 || parents[0].StudentIDs[0] != res.Student.ID {
		t.Errorf("parents = %+v", parents)
	}
	if got := f.events.types(); len(got) != 1 {
		t.Errorf("events = %v, want only the successful admission", got)
	}
}

func TestRegistry_ReleaseOnlyLatest(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	reg := NewRegistry(mem, mem)

	tests := []struct {
		name    string
		release func() error
		want    string
	}{
		{
			name:    "superseded number stays consumed",
			release: func() error { return reg.ReleaseRegistrationNumber(ctx, "1001") },
			want:    "1003",
		},
		{
			name:    "latest number is reissued",
			release: func() error { return reg.ReleaseRegistrationNumber(ctx, "1003") },
			want:    "1003",
		},
		{
			name:    "non-numeric value is ignored",
			release: func() error { return reg.ReleaseRegistrationNumber(ctx, "A-7") },
			want:    "1004",
		},
	}
	if _, err := reg.NextRegistrationNumber(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.NextRegistrationNumber(ctx); err != nil {
		t.Fatal(err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.release(); err != nil {
				t.Fatalf("release: %v", err)
			}
			got, err := reg.NextRegistrationNumber(ctx)
			if err != nil || got != tt.want {
				t.Errorf("next = %s, %v; want %s", got, err, tt.want)
			}
		})
	}

	roll, _ := reg.NextRollNumber(ctx, "5", "2025-26")
	if err := reg.ReleaseRollNumber(ctx, "5", "2025-26", roll); err != nil {
		t.Fatal(err)
	}
	if again, _ := reg.NextRollNumber(ctx, "5", "2025-26"); again != roll {
		t.Errorf("roll after release = %s, want %s", again, roll)
	}
}

func TestRegistry_PeekAndFallback(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	reg := NewRegistry(mem, nil)

	if got, _ := reg.PeekRegistrationNumber(ctx); got != "1001" {
		t.Errorf("Peek on empty store = %s, want 1001", got)
	}
	if got, _ := reg.NextRegistrationNumber(ctx); got != "1001" {
		t.Errorf("Next without counter = %s, want 1001", got)
	}
	if got, _ := reg.PeekRollNumber(ctx, "5", "2025-26"); got != "1" {
		t.Errorf("PeekRoll = %s, want 1", got)
	}
	if _, err := reg.NextRollNumber(ctx, "", "2025-26"); core.Kind(err) != "INVALID_INPUT" {
		t.Errorf("empty class: expected invalid input, got %v", err)
	}
	if _, err := reg.NextRollNumber(ctx, "5", " "); core.Kind(err) != "INVALID_INPUT" {
		t.Errorf("empty session: expected invalid input, got %v", err)
	}
}

func TestUpdate_KeepsIdentifiersAndLedger(t *testing.T) {
	f := newFixture(t, core.OverpaymentReject)
	ctx := context.Background()
	res, _ := f.admission.Admit(ctx, admission("Asha", "5", 1000, 0, 1000, 0))
	_, _ = f.admission.Get(ctx, res.Student.ID)

	patch := res.Student
	patch.Name = "Asha Kumari"
	patch.RollNumber = "99"
	patch.ClassName = "9"
	patch.TuitionRate = core.Rupees(1200)
	updated, err := f.admission.Update(ctx, res.Student.ID, patch)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.RollNumber != "1" || updated.ClassName != "9" || updated.Name != "Asha Kumari" {
		t.Errorf("unexpected update %+v", updated)
	}
	got, _ := f.admission.Get(ctx, res.Student.ID)
	if got.Name != "Asha Kumari" || got.ClassName != "9" || got.RegistrationNumber != res.Student.RegistrationNumber {
		t.Errorf("cache not invalidated, got %+v", got)
	}
	if got.Fees["2025-26"][core.April].SchoolPart != core.Rupees(1000) {
		t.Error("rate change must not rewrite the existing ledger")
	}
}

func TestUpdate_ClassChange(t *testing.T) {
	f := newFixture(t, core.OverpaymentReject)
	ctx := context.Background()
	a, _ := f.admission.Admit(ctx, admission("Asha", "5", 1000, 0, 0, 0))
	_, _ = f.admission.Admit(ctx, admission("Bela", "6", 1000, 0, 0, 0))

	tests := []struct {
		name     string
		class    string
		wantKind string
	}{
		{"roll already used in target class", "6", "CONFLICT"},
		{"free target class", "7", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch := a.Student
			patch.ClassName = tt.class
			got, err := f.admission.Update(ctx, a.Student.ID, patch)
			if tt.wantKind != "" {
				if core.Kind(err) != tt.wantKind || !errors.Is(err, core.ErrDuplicateNumber) {
					t.Fatalf("expected %s, got %v", tt.wantKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if got.ClassName != tt.class || got.RollNumber != a.Student.RollNumber {
				t.Errorf("got class %s roll %s", got.ClassName, got.RollNumber)
			}
		})
	}

	patch := a.Student
	patch.ClassName = "7"
	patch.IsTransferStudent, patch.PNRNumber = true, " PEN9 "
	got, err := f.admission.Update(ctx, a.Student.ID, patch)
	if err != nil || !got.IsTransferStudent || got.PNRNumber != "PEN9" {
		t.Errorf("transfer update = %+v, %v", got, err)
	}
	patch.IsTransferStudent = false
	if got, _ := f.admission.Update(ctx, a.Student.ID, patch); got.PNRNumber != "" {
		t.Errorf("pnr kept for a non-transfer student: %q", got.PNRNumber)
	}
}

func TestDelete_NumbersNotReused(t *testing.T) {
	f := newFixture(t, core.OverpaymentReject)
	ctx := context.Background()
	a, _ := f.admission.Admit(ctx, admission("Asha", "5", 1000, 0, 0, 0))
	b, _ := f.admission.Admit(ctx, admission("Bela", "5", 1000, 0, 0, 0))

	if err := f.admission.Delete(ctx, b.Student.ID); err != nil {
		t.Fatal(err)
	}
	c, err := f.admission.Admit(ctx, admission("Chitra", "5", 1000, 0, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if c.Student.RegistrationNumber != "1003" || c.Student.RollNumber != "3" {
		t.Errorf("numbers after delete = %s/%s, want 1003/3", c.Student.RegistrationNumber, c.Student.RollNumber)
	}

	list, err := f.admission.List(ctx, core.Filter{Session: "2025-26", ClassName: "5"})
	if err != nil || len(list) != 2 || list[0].ID != a.Student.ID || list[1].ID != c.Student.ID {
		t.Errorf("List = %v, %v", list, err)
	}
	if _, err := f.admission.Update(ctx, b.Student.ID, b.Student); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("update of deleted student: expected not found, got %v", err)
	}

	reads := []struct {
		name string
		read func() error
	}{
		{"get", func() error { _, err := f.admission.Get(ctx, b.Student.ID); return err }},
		{"ledger", func() error { _, err := f.fees.Ledger(ctx, b.Student.ID, "2025-26"); return err }},
		{"receipt", func() error { _, err := f.fees.Receipt(ctx, b.Student.ID, "2025-26", "April"); return err }},
		{"confirm", func() error {
			_, err := f.fees.ConfirmMonthPayment(ctx, b.Student.ID, "2025-26", "April", true, false)
			return err
		}},
	}
	for _, r := range reads {
		if err := r.read(); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("%s of deleted student: expected not found, got %v", r.name, err)
		}
	}
	if list, _ := f.admission.List(ctx, core.Filter{Search: c.Student.RollNumber, ClassName: "5"}); len(list) != 1 || list[0].ID != c.Student.ID {
		t.Errorf("search by roll = %v", list)
	}
}

// failingGets fails every read so tests can prove a check happens first.
type failingGets struct{ *memory.Store }

func (failingGets) Get(context.Context, string) (core.Student, error) {
	return core.Student{}, errors.New("store must not be read")
}

func TestConfirmMonthPayment_Validation(t *testing.T) {
	f := newFixtureWith(t, failingGets{memory.New()}, core.OverpaymentReject)
	ctx := context.Background()

	_, err := f.fees.ConfirmMonthPayment(ctx, "s1", "2025-26", "May", false, false)
	if !errors.Is(err, core.ErrInvalidSelection) || core.Kind(err) != "INVALID_SELECTION" {
		t.Fatalf("empty selection: got %v", err)
	}
	if _, err := f.fees.ConfirmMonthPayment(ctx, "s1", "2025-26", "Smarch", true, false); !errors.Is(err, core.ErrUnknownMonth) {
		t.Errorf("unknown month: got %v", err)
	}
	if _, err := f.fees.ConfirmMonthPayment(ctx, "s1", "2025", "May", true, false); !errors.Is(err, core.ErrInvalidSession) {
		t.Errorf("malformed session: got %v", err)
	}
}

func TestConfirmMonthPayment(t *testing.T) {
	f := newFixture(t, core.OverpaymentReject)
	ctx := context.Background()
	res, _ := f.admission.Admit(ctx, admission("Asha", "5", 1000, 300, 1000, 0))
	id := res.Student.ID

	before, err := f.fees.Ledger(ctx, id, "")
	if err != nil {
		t.Fatal(err)
	}
	if before.Months[core.June].State.Status != core.StatusPending {
		t.Fatalf("June should start pending")
	}

	fee, err := f.fees.ConfirmMonthPayment(ctx, id, "2025-26", "june", true, false)
	if err != nil {
		t.Fatalf("ConfirmMonthPayment: %v", err)
	}
	if fee.PaidSchool != core.Rupees(1000) || fee.PaidBus.Paise != 0 || fee.PaidAt == nil || !fee.PaidAt.Equal(fixedNow) {
		t.Errorf("unexpected fee %+v", fee)
	}
	if fee.Status().Status != core.StatusPartial {
		t.Errorf("status = %v, want PARTIAL", fee.Status().Status)
	}

	after, _ := f.fees.Ledger(ctx, id, "2025-26")
	for _, m := range core.FiscalMonths() {
		if m == core.June {
			continue
		}
		a, b := after.Months[m].Fee, before.Months[m].Fee
		if a.PaidSchool != b.PaidSchool || a.PaidBus != b.PaidBus || a.SchoolPart != b.SchoolPart || a.BusPart != b.BusPart {
			t.Errorf("%s changed by a June confirmation", m)
		}
	}
	if after.Months[core.June].State.Status != core.StatusPartial {
		t.Error("ledger view should reflect the confirmation")
	}

	fee, err = f.fees.ConfirmMonthPayment(ctx, id, "2025-26", "June", false, true)
	if err != nil || fee.Status().Status != core.StatusPaid {
		t.Fatalf("second confirmation = %+v, %v", fee, err)
	}
	evs := f.events.types()
	if len(evs) != 3 || evs[1] != amqp.EventFeeConfirmed {
		t.Errorf("events = %v", evs)
	}

	rcpt, err := f.fees.Receipt(ctx, id, "2025-26", "June")
	if err != nil || rcpt.Total != core.Rupees(1300) || rcpt.AmountInWords != "One Thousand Three Hundred Rupees Only" {
		t.Errorf("Receipt = %+v, %v", rcpt, err)
	}
}

func TestConfirmMonthPayment_NotFound(t *testing.T) {
	f := newFixture(t, core.OverpaymentReject)
	ctx := context.Background()
	res, _ := f.admission.Admit(ctx, admission("Asha", "5", 1000, 0, 0, 0))

	if _, err := f.fees.ConfirmMonthPayment(ctx, "missing", "2025-26", "May", true, false); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing student: got %v", err)
	}
	if _, err := f.fees.ConfirmMonthPayment(ctx, res.Student.ID, "2026-27", "May", true, false); !errors.Is(err, core.ErrSessionNotFound) {
		t.Errorf("missing session: got %v", err)
	}
	_ = f.admission.Delete(ctx, res.Student.ID)
	if _, err := f.fees.ConfirmMonthPayment(ctx, res.Student.ID, "2025-26", "May", true, false); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleted student: got %v", err)
	}
}

func TestOverview(t *testing.T) {
	f := newFixture(t, core.OverpaymentReject)
	ctx := context.Background()
	_, _ = f.admission.Admit(ctx, admission("Asha", "5", 1000, 0, 2000, 0))
	_, _ = f.admission.Admit(ctx, admission("Bela", "5", 1000, 0, 0, 0))
	_, _ = f.admission.Admit(ctx, admission("Chitra", "6", 1000, 0, 0, 0))

	ov, err := f.fees.Overview(ctx, "5", "2025-26", "May")
	if err != nil {
		t.Fatal(err)
	}
	if len(ov.Rows) != 2 || ov.Paid != 1 || ov.Pending != 1 || ov.Collected != core.Rupees(1000) {
		t.Errorf("unexpected overview %+v", ov)
	}
	if _, err := f.fees.Overview(ctx, "5", "2025-26", "Thirteenth"); core.Kind(err) != "INVALID_INPUT" {
		t.Errorf("bad month: got %v", err)
	}
}

func TestPublishFailureDoesNotFailAdmission(t *testing.T) {
	f := newFixture(t, core.OverpaymentReject)
	f.events.err = errors.New("broker down")
	if _, err := f.admission.Admit(context.Background(), admission("Asha", "5", 1000, 0, 0, 0)); err != nil {
		t.Fatalf("Admit should succeed when publishing fails: %v", err)
	}
}
