package services

import (
	"context"

	"github.com/vickym250/jnschool/internal/cache"
	"github.com/vickym250/jnschool/internal/core"
	"github.com/vickym250/jnschool/internal/store"
)

// StudentReader serves single-student reads, through a cache when one is
// configured. Returned students share their Fees map with the cache and
// must not be mutated.
type StudentReader struct {
	repo  store.StudentRepository
	cache *cache.ReadThrough[core.Student]
}

// NewStudentReader wraps repo. A nil c disables caching.
func NewStudentReader(repo store.StudentRepository, c cache.Cache[core.Student]) *StudentReader {
	r := &StudentReader{repo: repo}
	if c != nil {
		r.cache = cache.NewReadThrough(c)
	}
	return r
}

// Get returns an active student. Soft-deleted students read as
// core.ErrStudentNotFound; archived records stay reachable through List with
// IncludeDeleted.
func (r *StudentReader) Get(ctx context.Context, id string) (core.Student, error) {
	st, err := r.load(ctx, id)
	if err != nil {
		return core.Student{}, err
	}
	if st.Deleted() {
		return core.Student{}, core.ErrStudentNotFound
	}
	return st, nil
}

func (r *StudentReader) load(ctx context.Context, id string) (core.Student, error) {
	if r.cache == nil {
		return r.repo.Get(ctx, id)
	}
	return r.cache.Get(ctx, id, func(ctx context.Context) (core.Student, error) {
		return r.repo.Get(ctx, id)
	})
}

// Invalidate must be called after every write to the student.
func (r *StudentReader) Invalidate(id string) {
	if r.cache != nil {
		r.cache.Invalidate(id)
	}
}
