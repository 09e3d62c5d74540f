// Package columns tracks the order, pinning and visibility of table columns.
// Pinned columns always come first; a column moves between the pinned and
// unpinned zones only through Pin and Unpin.
package columns

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrUnknownColumn = errors.New("unknown column")
	ErrCrossBoundary = errors.New("cannot move a column across the pinned boundary")
)

// Layout is immutable; every operation returns a new value.
type Layout struct {
	// Headers is the display order. Pinned headers form its prefix.
	Headers  []string
	Pinned   map[string]bool
	Disabled map[string]bool
}

// New lays out headers with nothing pinned or hidden.
func New(headers []string) Layout {
	return Layout{Headers: slices.Clone(headers), Pinned: map[string]bool{}, Disabled: map[string]bool{}}
}

func (l Layout) index(name string) int {
	return slices.Index(l.Headers, name)
}

func (l Layout) pinnedCount() int {
	n := 0
	for _, h := range l.Headers {
		if l.Pinned[h] {
			n++
		}
	}
	return n
}

func (l Layout) copy() Layout {
	c := Layout{Headers: slices.Clone(l.Headers), Pinned: make(map[string]bool, len(l.Pinned)), Disabled: make(map[string]bool, len(l.Disabled))}
	for k := range l.Pinned {
		c.Pinned[k] = true
	}
	for k := range l.Disabled {
		c.Disabled[k] = true
	}
	return c
}

// SetHeaders installs a new header set, typically after a schema change.
// Known columns keep their relative order, pinning and visibility; new ones
// are appended.
func (l Layout) SetHeaders(headers []string) Layout {
	next := New(nil)
	var pinned, rest []string
	for _, h := range l.Headers {
		if !slices.Contains(headers, h) {
			continue
		}
		if l.Pinned[h] {
			pinned = append(pinned, h)
			next.Pinned[h] = true
		} else {
			rest = append(rest, h)
		}
		if l.Disabled[h] {
			next.Disabled[h] = true
		}
	}
	for _, h := range headers {
		if !slices.Contains(l.Headers, h) && !slices.Contains(rest, h) {
			rest = append(rest, h)
		}
	}
	next.Headers = append(pinned, rest...)
	return next
}

// Pin moves name to the end of the pinned zone.
func (l Layout) Pin(name string) (Layout, error) {
	i := l.index(name)
	if i < 0 {
		return l, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	if l.Pinned[name] {
		return l, nil
	}
	next := l.copy()
	boundary := l.pinnedCount()
	next.Headers = slices.Delete(next.Headers, i, i+1)
	next.Headers = slices.Insert(next.Headers, boundary, name)
	next.Pinned[name] = true
	return next, nil
}

// Unpin moves name to the start of the unpinned zone.
func (l Layout) Unpin(name string) (Layout, error) {
	i := l.index(name)
	if i < 0 {
		return l, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	if !l.Pinned[name] {
		return l, nil
	}
	next := l.copy()
	delete(next.Pinned, name)
	next.Headers = slices.Delete(next.Headers, i, i+1)
	next.Headers = slices.Insert(next.Headers, l.pinnedCount()-1, name)
	return next, nil
}

// Move places the column at index from at index to. Both positions must
// lie in the same zone.
func (l Layout) Move(from, to int) (Layout, error) {
	if from < 0 || from >= len(l.Headers) || to < 0 || to >= len(l.Headers) {
		return l, fmt.Errorf("move %d -> %d: index out of range", from, to)
	}
	boundary := l.pinnedCount()
	if (from < boundary) != (to < boundary) {
		return l, ErrCrossBoundary
	}
	if from == to {
		return l, nil
	}
	next := l.copy()
	name := next.Headers[from]
	next.Headers = slices.Delete(next.Headers, from, from+1)
	next.Headers = slices.Insert(next.Headers, to, name)
	return next, nil
}

// Toggle flips the visibility of name.
func (l Layout) Toggle(name string) (Layout, error) {
	if l.index(name) < 0 {
		return l, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	next := l.copy()
	if next.Disabled[name] {
		delete(next.Disabled, name)
	} else {
		next.Disabled[name] = true
	}
	return next, nil
}

// Visible lists the enabled headers in display order.
func (l Layout) Visible() []string {
	out := make([]string, 0, len(l.Headers))
	for _, h := range l.Headers {
		if !l.Disabled[h] {
			out = append(out, h)
		}
	}
	return out
}

// IsPinned reports whether name is pinned.
func (l Layout) IsPinned(name string) bool { return l.Pinned[name] }
