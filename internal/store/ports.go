// Package store defines the persistence ports of the fee ledger. Backends
// live in sub-packages (memory, firestore, mongo) and in internal/storage
// (SQLite).
package store

import (
	"context"
	"time"

	"github.com/vickym250/jnschool/internal/core"
)

type (
	// StudentRepository persists students and their session ledgers. Writes
	// are targeted: no method rewrites a whole student document.
	StudentRepository interface {
		// MaxRegistrationNumber scans every student, deleted ones included,
		// and returns the highest numeric registration number.
		MaxRegistrationNumber(ctx context.Context) (highest int64, found bool, err error)
		// RollNumbers returns the roll numbers issued for a class in a
		// session, deleted students included.
		RollNumbers(ctx context.Context, className, session string) ([]string, error)

		Get(ctx context.Context, id string) (core.Student, error)
		List(ctx context.Context, f core.Filter) ([]core.Student, error)

		// Create inserts a new student. Duplicate registration or roll
		// numbers fail with core.ErrDuplicateNumber.
		Create(ctx context.Context, s core.Student) error
		// UpdateProfile writes the profile and rate fields of s. Identifiers
		// and ledgers are left alone.
		UpdateProfile(ctx context.Context, s core.Student) error
		// AddSession moves the student to a new class and session and stores
		// the ledger of that session.
		AddSession(ctx context.Context, id string, r Readmission) error
		// SetMonthFee overwrites one month of one session ledger.
		SetMonthFee(ctx context.Context, id, session string, month core.Month, fee core.MonthlyFee) error
		SoftDelete(ctx context.Context, id string, at time.Time) error
	}

	ParentRepository interface {
		CreateParent(ctx context.Context, p core.Parent) error
		GetParent(ctx context.Context, id string) (core.Parent, error)
		// ListParents returns parents whose father name contains search.
		ListParents(ctx context.Context, search string) ([]core.Parent, error)
		// LinkStudent adds studentID to the parent's students once.
		LinkStudent(ctx context.Context, parentID, studentID string) error
	}

	// Counter hands out sequence values atomically. Next stores and returns
	// max(current, floor)+1 for key. Release gives n back when it is still
	// the latest value of key and reports whether it did; a value another
	// caller has moved past stays consumed.
	Counter interface {
		Next(ctx context.Context, key string, floor int64) (int64, error)
		Release(ctx context.Context, key string, n int64) (bool, error)
	}

	// Store bundles what a backend provides.
	Store interface {
		StudentRepository
		ParentRepository
		Counter
	}
)

// Readmission is the data written when a student enters a new session,
// including the rates that apply from then on.
type Readmission struct {
	ClassName    string
	Session      string
	RollNumber   string
	TuitionRate  core.Money
	IsBusStudent bool
	BusRate      core.Money
	Ledger       core.FeeLedger
	Credit       core.StreamAmounts
}
