package cache

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// ReadThrough fills a Cache from a loader. Concurrent misses on the same key
// share one load. A load that overlaps an Invalidate does not populate the
// cache, so a reader never re-installs a value older than a write.
type ReadThrough[T any] struct {
	cache Cache[T]
	group singleflight.Group
	epoch atomic.Uint64
}

func NewReadThrough[T any](c Cache[T]) *ReadThrough[T] {
	return &ReadThrough[T]{cache: c}
}

// Get returns the cached value for key or calls load. The shared load runs
// detached from the cancellation of whichever caller started it; a caller
// whose ctx ends stops waiting without failing the others.
func (r *ReadThrough[T]) Get(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := r.cache.Get(key); ok {
		return v, nil
	}
	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		epoch := r.epoch.Load()
		v, err := load(loadCtx)
		if err != nil {
			return v, err
		}
		if r.epoch.Load() == epoch {
			r.cache.Set(key, v)
		}
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Invalidate drops key after a write.
func (r *ReadThrough[T]) Invalidate(key string) {
	r.epoch.Add(1)
	r.cache.Delete(key)
	r.group.Forget(key)
}
