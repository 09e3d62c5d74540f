// Package store is a small reactive state container. Consumers subscribe to
// a slice of the state through a selector and are only notified when that
// slice changes, so many independent widgets can share one state value
// without re-computing on every mutation.
package store

import (
	"fmt"
	"sync"

	"github.com/bascanada/logexplorer/pkg/log"
)

// Comparator reports whether two selected slices are equal.
type Comparator[S any] func(a, b S) bool

// Unsubscribe removes a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

type listener[T any] struct {
	id     uint64
	name   string
	notify func(prev, next T)
}

// Store holds a value of type T and notifies subscribers synchronously, in
// subscription order, after every mutation. Store is safe for concurrent
// use; notifications run on the goroutine that performed the mutation and
// never under the store's lock, so callbacks may read or mutate the store.
type Store[T any] struct {
	mu        sync.Mutex
	state     T
	listeners []*listener[T]
	nextID    uint64
}

// New creates a store holding initial.
func New[T any](initial T) *Store[T] {
	return &Store[T]{state: initial}
}

// Get returns the current state.
func (s *Store[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Set derives the next state from the current one. The updater receives a
// copy of the state; fields it doesn't assign keep their identity, which is
// what lets ShallowEqual detect untouched slices.
func (s *Store[T]) Set(update func(T) T) {
	prev, next, round := s.apply(update)
	for _, l := range round {
		s.deliver(l, prev, next)
	}
}

// apply runs update under the lock. A panicking updater leaves the state
// unchanged and the store unlocked.
func (s *Store[T]) apply(update func(T) T) (prev, next T, round []*listener[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev = s.state
	next = update(prev)
	s.state = next
	round = make([]*listener[T], len(s.listeners))
	copy(round, s.listeners)
	return prev, next, round
}

// Replace swaps the whole state.
func (s *Store[T]) Replace(next T) {
	s.Set(func(T) T { return next })
}

// SubscribeAll registers a callback receiving every (prev, next) pair.
func (s *Store[T]) SubscribeAll(name string, cb func(prev, next T)) Unsubscribe {
	s.mu.Lock()
	s.nextID++
	l := &listener[T]{id: s.nextID, name: name, notify: cb}
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(l.id) })
	}
}

// Len returns the number of active subscriptions.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

func (s *Store[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.listeners {
		if l.id == id {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *Store[T]) deliver(l *listener[T], prev, next T) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("store: subscriber %q #%d panicked: %v", l.name, l.id, r)
		}
	}()
	l.notify(prev, next)
}

// Subscribe registers cb for changes of the slice returned by sel. cb fires
// at most once per mutation and only when cmp reports the slice changed.
// A nil cmp defaults to ShallowEqual.
func Subscribe[T, S any](s *Store[T], sel func(T) S, cb func(S), cmp Comparator[S]) Unsubscribe {
	return SubscribeNamed(s, fmt.Sprintf("%T", sel), sel, cb, cmp)
}

// SubscribeNamed is Subscribe with a label used when logging broken consumers.
func SubscribeNamed[T, S any](s *Store[T], name string, sel func(T) S, cb func(S), cmp Comparator[S]) Unsubscribe {
	if cmp == nil {
		cmp = ShallowEqual[S]
	}
	return s.SubscribeAll(name, func(prev, next T) {
		before, after := sel(prev), sel(next)
		if cmp(before, after) {
			return
		}
		cb(after)
	})
}
