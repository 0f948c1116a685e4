package cache

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// LoadFunc computes the value for a missing key.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Loader fronts a Cache so that concurrent misses for one key share a
// single load. A load started before Invalidate is returned to the callers
// that joined it but never stored, and later callers start a fresh load.
type Loader[T any] struct {
	cache Cache[T]
	group singleflight.Group

	mu         sync.Mutex
	generation uint64
}

func NewLoader[T any](c Cache[T]) *Loader[T] {
	return &Loader[T]{cache: c}
}

// Get returns the cached value for key or loads it. hit reports whether
// the value came from the cache.
func (l *Loader[T]) Get(ctx context.Context, key string, load LoadFunc[T]) (value T, hit bool, err error) {
	if v, ok := l.cache.Get(key); ok {
		return v, true, nil
	}

	gen := l.currentGeneration()
	res, err, _ := l.group.Do(key+"@"+strconv.FormatUint(gen, 10), func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		if gen == l.generation {
			l.cache.Set(key, v)
		}
		l.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return res.(T), false, nil
}

// Invalidate drops every cached value and any load still in flight.
func (l *Loader[T]) Invalidate() {
	l.mu.Lock()
	l.generation++
	l.cache.Purge()
	l.mu.Unlock()
}

func (l *Loader[T]) currentGeneration() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generation
}
