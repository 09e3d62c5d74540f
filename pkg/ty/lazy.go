package ty

import (
	"errors"
	"sync"
)

// ErrLazyNotFound is returned by LazyMap.Get for unknown keys.
var ErrLazyNotFound = errors.New("not found")

// Lazy is a function that returns a value of type T, computing it only once.
type Lazy[T any] func() (*T, error)

// GetLazy returns a Lazy function that memoizes the first successful result
// of the provided function. Failed attempts are retried on the next call.
func GetLazy[T any](lazy func() (*T, error)) Lazy[T] {
	var (
		mu    sync.Mutex
		cache *T
	)
	return func() (*T, error) {
		mu.Lock()
		defer mu.Unlock()
		if cache != nil {
			return cache, nil
		}
		v, err := lazy()
		if err != nil {
			return nil, err
		}
		cache = v
		return cache, nil
	}
}

// LazyMap is a map of names to Lazy values.
type LazyMap[V any] map[string]Lazy[V]

// Get retrieves the value associated with key, computing it if necessary.
func (lm LazyMap[V]) Get(key string) (*V, error) {
	val, ok := lm[key]
	if !ok {
		return nil, errors.Join(ErrLazyNotFound, errors.New(key))
	}
	return val()
}
