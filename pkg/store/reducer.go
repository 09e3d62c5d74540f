package store

// Reducer computes the next state for an action. Each store declares its
// own action set as a sealed interface and matches it with a type switch.
type Reducer[T, A any] func(state T, action A) T

// Dispatcher is a store whose mutations go through a reducer.
type Dispatcher[T, A any] struct {
	*Store[T]
	reduce Reducer[T, A]
}

// NewDispatcher creates a reducer-driven store.
func NewDispatcher[T, A any](initial T, reduce Reducer[T, A]) *Dispatcher[T, A] {
	return &Dispatcher[T, A]{Store: New(initial), reduce: reduce}
}

// Dispatch applies action and notifies subscribers.
func (d *Dispatcher[T, A]) Dispatch(action A) {
	d.Set(func(state T) T { return d.reduce(state, action) })
}
