package store

import "sync"

// Scope owns a set of subscriptions and releases them together. Acquire a
// scope, register subscriptions on it and `defer scope.Close()` so every
// exit path, early returns and panics included, unsubscribes.
type Scope struct {
	mu     sync.Mutex
	unsubs []Unsubscribe
	closed bool
}

// NewScope returns an empty scope.
func NewScope() *Scope {
	return &Scope{}
}

// Add takes ownership of u. Adding to a closed scope releases u immediately.
func (sc *Scope) Add(u Unsubscribe) {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		u()
		return
	}
	sc.unsubs = append(sc.unsubs, u)
	sc.mu.Unlock()
}

// Close releases every subscription in reverse acquisition order.
func (sc *Scope) Close() {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return
	}
	sc.closed = true
	unsubs := sc.unsubs
	sc.unsubs = nil
	sc.mu.Unlock()

	for i := len(unsubs) - 1; i >= 0; i-- {
		unsubs[i]()
	}
}

// Watch subscribes on store s and registers the subscription in sc.
func Watch[T, S any](sc *Scope, s *Store[T], sel func(T) S, cb func(S), cmp Comparator[S]) {
	sc.Add(Subscribe(s, sel, cb, cmp))
}
