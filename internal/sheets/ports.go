// Package sheets defines the collection register: an append-only record of
// admissions and fee collections, plus a month overview snapshot, kept in a
// spreadsheet for the school office.
package sheets

import (
	"context"
	"time"

	"github.com/vickym250/jnschool/internal/core"
)

// CollectionEntry is one register row.
type CollectionEntry struct {
	// Key identifies the ledger change the row records. Redelivered events
	// produce the same key.
	Key                string
	RecordedAt         time.Time
	Event              string
	RegistrationNumber string
	RollNumber         string
	Name               string
	ClassName          string
	Session            string
	Month              string
	AdmissionFee       core.Money
	Tuition            core.Money
	Transport          core.Money
	Total              core.Money
	AmountInWords      string
	Status             string
}

// Ports for outbound adapters.
type (
	CollectionWriter interface {
		AppendCollection(ctx context.Context, e CollectionEntry) (rowRef string, err error)
	}

	// CollectionIndex reports whether a row with key was already written to
	// the register of session.
	CollectionIndex interface {
		HasCollection(ctx context.Context, session, key string) (bool, error)
	}

	// OverviewWriter replaces the overview snapshot of a session.
	OverviewWriter interface {
		WriteOverview(ctx context.Context, ov core.MonthOverview) error
	}

	Register interface {
		CollectionWriter
		CollectionIndex
		OverviewWriter
	}
)
