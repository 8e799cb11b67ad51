// Package memory is an in-process collection register for development and
// tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vickym250/jnschool/internal/core"
	ports "github.com/vickym250/jnschool/internal/sheets"
)

type Register struct {
	mu        sync.Mutex
	entries   []ports.CollectionEntry
	keys      map[string]struct{}
	overviews map[string]core.MonthOverview
}

var _ ports.Register = (*Register)(nil)

func New() *Register {
	return &Register{keys: map[string]struct{}{}, overviews: map[string]core.MonthOverview{}}
}

// AppendCollection stores the entry and returns a synthetic row reference.
func (r *Register) AppendCollection(_ context.Context, e ports.CollectionEntry) (string, error) {
	if e.Key == "" || e.Session == "" {
		return "", errors.New("collection entry without key or session")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	r.keys[e.Session+"/"+e.Key] = struct{}{}
	return fmt.Sprintf("mem:%d", len(r.entries)), nil
}

func (r *Register) HasCollection(_ context.Context, session, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.keys[session+"/"+key]
	return ok, nil
}

func (r *Register) WriteOverview(_ context.Context, ov core.MonthOverview) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overviews[ov.Session] = ov
	return nil
}

// Entries returns a copy of the appended rows in order.
func (r *Register) Entries() []ports.CollectionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.CollectionEntry(nil), r.entries...)
}

// Overview returns the last overview written for session.
func (r *Register) Overview(session string) (core.MonthOverview, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ov, ok := r.overviews[session]
	return ov, ok
}
