package lazy

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

const loadKey = "load"

// Value runs its loader on the first Load and keeps the result. Failed loads are not
// kept, so a later Load retries. Concurrent first loads share a single loader call.
type Value[T any] struct {
	loader func(ctx context.Context) (T, error)

	mu     sync.RWMutex
	value  T
	loaded bool

	group singleflight.Group
}

func New[T any](loader func(ctx context.Context) (T, error)) *Value[T] {
	return &Value[T]{loader: loader}
}

func (v *Value[T]) Load(ctx context.Context) (T, error) {
	if value, ok := v.cached(); ok {
		return value, nil
	}

	// The shared load outlives any single caller so an abandoned navigation still warms the cache.
	resultCh := v.group.DoChan(loadKey, func() (interface{}, error) {
		if value, ok := v.cached(); ok {
			return value, nil
		}

		value, err := v.loader(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		v.mu.Lock()
		v.value = value
		v.loaded = true
		v.mu.Unlock()
		return value, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case result := <-resultCh:
		if result.Err != nil {
			return zero, result.Err
		}
		value, _ := result.Val.(T)
		return value, nil
	}
}

func (v *Value[T]) Loaded() bool {
	_, ok := v.cached()
	return ok
}

func (v *Value[T]) cached() (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value, v.loaded
}
