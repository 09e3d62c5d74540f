package livetail

import "sync"

// DefaultCapacity is the number of rows a session keeps.
const DefaultCapacity = 1000

// Ring is a fixed-capacity FIFO buffer. Once full, each write evicts the
// oldest entry. Positions are monotonic: the nth entry ever written has
// position n-1, which lets readers resume with Since.
type Ring[T any] struct {
	mu       sync.RWMutex
	entries  []T
	capacity int
	head     int // next write slot once full
	total    int64
}

// NewRing returns an empty ring. A capacity below one uses DefaultCapacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Ring[T]{entries: make([]T, 0, capacity), capacity: capacity}
}

// Push appends v, evicting the oldest entry when full.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) < r.capacity {
		r.entries = append(r.entries, v)
	} else {
		r.entries[r.head] = v
	}
	r.head = (r.head + 1) % r.capacity
	r.total++
}

// All returns the buffered entries, oldest first.
func (r *Ring[T]) All() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fromLocked(0)
}

// Since returns the entries written at or after position pos, oldest
// first, and the position to resume from. Evicted positions are skipped.
func (r *Ring[T]) Since(pos int64) ([]T, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	oldest := r.total - int64(len(r.entries))
	if pos < oldest {
		pos = oldest
	}
	if pos >= r.total {
		return nil, r.total
	}
	return r.fromLocked(int(pos - oldest)), r.total
}

// fromLocked copies entries from the skip-th oldest on.
func (r *Ring[T]) fromLocked(skip int) []T {
	n := len(r.entries) - skip
	if n <= 0 {
		return nil
	}
	start := 0
	if len(r.entries) == r.capacity {
		start = r.head
	}
	out := make([]T, n)
	for i := range out {
		out[i] = r.entries[(start+skip+i)%len(r.entries)]
	}
	return out
}

// Len is the number of buffered entries.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Cap is the capacity.
func (r *Ring[T]) Cap() int { return r.capacity }

// Total is the number of entries ever written.
func (r *Ring[T]) Total() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// Clear drops every entry. Total keeps counting so positions stay valid.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
	r.entries = r.entries[:0]
	r.head = 0
}
