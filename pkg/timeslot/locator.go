// Package timeslot finds how wide a time window can be before a count over
// it reaches a ceiling, then cuts the selected range into slots of that
// width for paging. It never counts the full range.
package timeslot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/log"
	"github.com/bascanada/logexplorer/pkg/store"
)

// DefaultGaps is the probe sequence, smallest first.
var DefaultGaps = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
	15 * time.Minute,
	20 * time.Minute,
	30 * time.Minute,
	60 * time.Minute,
}

const (
	DefaultCeiling int64 = 10000
	DefaultSlotCap       = 20
)

// Range is what the slots are computed for. Changing any member restarts
// probing.
type Range struct {
	Stream string
	Start  time.Time
	End    time.Time
	// Filter is a WHERE expression applied to every count.
	Filter string
}

// Span is the length of the range.
func (r Range) Span() time.Duration { return r.End.Sub(r.Start) }

// Slot is one bounded window. IDs start at 1 for the newest slot and grow
// with age.
type Slot struct {
	ID      int
	Gap     time.Duration
	EndTime time.Time
}

// StartTime is EndTime minus Gap.
func (s Slot) StartTime() time.Time { return s.EndTime.Add(-s.Gap) }

// GapMinutes is the slot width in whole minutes.
func (s Slot) GapMinutes() int { return int(s.Gap / time.Minute) }

func (s Slot) String() string {
	return fmt.Sprintf("#%d %s..%s", s.ID, s.StartTime().Format(time.RFC3339), s.EndTime.Format(time.RFC3339))
}

// State is published through the locator store.
type State struct {
	Range Range
	// Index points into the probe sequence. A failed count leaves it alone.
	Index int
	// Counts holds the successful probe results by gap.
	Counts map[time.Duration]int64
	Frozen bool
	Gap    time.Duration
	Slots  []Slot
	// Exhausted is set once the slots reach the start of the range.
	Exhausted bool
	Err       error

	generation uint64
}

// Options tune a Locator. Zero members take the defaults.
type Options struct {
	Gaps    []time.Duration
	Ceiling int64
	SlotCap int
}

func (o Options) withDefaults() Options {
	if len(o.Gaps) == 0 {
		o.Gaps = DefaultGaps
	}
	if o.Ceiling <= 0 {
		o.Ceiling = DefaultCeiling
	}
	if o.SlotCap <= 0 {
		o.SlotCap = DefaultSlotCap
	}
	return o
}

// Locator probes a Counter to choose the slot width for a Range.
type Locator struct {
	counter backend.Counter
	opts    Options
	st      *store.Store[State]
	probeMu sync.Mutex
}

// NewLocator creates an idle locator; call Reset before probing.
func NewLocator(counter backend.Counter, opts Options) *Locator {
	return &Locator{
		counter: counter,
		opts:    opts.withDefaults(),
		st:      store.New(State{}),
	}
}

// Store exposes the locator state for subscriptions.
func (l *Locator) Store() *store.Store[State] { return l.st }

// State returns the current state.
func (l *Locator) State() State { return l.st.Get() }

// Gap is the frozen slot width, zero until probing finishes.
func (l *Locator) Gap() time.Duration { return l.st.Get().Gap }

// Slots returns the slots generated so far, newest first.
func (l *Locator) Slots() []Slot { return l.st.Get().Slots }

// Reset discards the slots and restarts probing for r. In-flight probes for
// the previous range are dropped when they complete.
func (l *Locator) Reset(r Range) {
	l.st.Set(func(s State) State {
		return State{Range: r, Counts: map[time.Duration]int64{}, generation: s.generation + 1}
	})
}

// Probe runs one count. It returns true once the gap is frozen, which may
// happen without a count when the range is already settled. A failed count
// returns a *backend.CountError and leaves the probe index unchanged so the
// same probe can be retried.
func (l *Locator) Probe(ctx context.Context) (bool, error) {
	l.probeMu.Lock()
	defer l.probeMu.Unlock()

	cur := l.st.Get()
	if cur.Frozen {
		return true, nil
	}
	if cur.Range.End.IsZero() {
		return false, fmt.Errorf("timeslot: probe before Reset")
	}

	gap := l.opts.Gaps[cur.Index]
	end := cur.Range.End
	res, err := l.counter.Count(ctx, cur.Range.Stream, end.Add(-gap), end, cur.Range.Filter)
	if err != nil {
		cerr := &backend.CountError{Stream: cur.Range.Stream, Gap: gap, Err: err}
		stale := !l.apply(cur.generation, func(s State) State {
			s.Err = cerr
			return s
		})
		if stale {
			return false, backend.ErrStaleResponse
		}
		return false, cerr
	}

	log.Debug("timeslot: %s count over %s = %d (ceiling %d)", cur.Range.Stream, gap, res.TotalCurrentCount, l.opts.Ceiling)

	var frozen bool
	stale := !l.apply(cur.generation, func(s State) State {
		s.Err = nil
		counts := make(map[time.Duration]int64, len(s.Counts)+1)
		for k, v := range s.Counts {
			counts[k] = v
		}
		counts[gap] = res.TotalCurrentCount
		s.Counts = counts

		switch {
		case res.TotalCurrentCount >= l.opts.Ceiling:
			// The previous probe is the largest that fit. With nothing
			// smaller to fall back on the first gap is used.
			idx := s.Index - 1
			if idx < 0 {
				idx = 0
			}
			s = l.freeze(s, idx)
		case s.Index+1 < len(l.opts.Gaps) && l.opts.Gaps[s.Index+1] <= s.Range.Span():
			s.Index++
		default:
			s = l.freeze(s, s.Index)
		}
		frozen = s.Frozen
		return s
	})
	if stale {
		return false, backend.ErrStaleResponse
	}
	return frozen, nil
}

// Locate probes until the gap is frozen or a count fails.
func (l *Locator) Locate(ctx context.Context) ([]Slot, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frozen, err := l.Probe(ctx)
		if err != nil {
			return nil, err
		}
		if frozen {
			return l.Slots(), nil
		}
	}
}

// LoadMore appends up to SlotCap further slots from the last boundary. It
// returns the slots added, none once the range start is reached.
func (l *Locator) LoadMore() []Slot {
	var added []Slot
	l.st.Set(func(s State) State {
		if !s.Frozen || s.Exhausted {
			return s
		}
		before := len(s.Slots)
		s = l.extend(s, l.opts.SlotCap)
		added = s.Slots[before:]
		return s
	})
	return added
}

// apply commits update if the state still belongs to generation.
func (l *Locator) apply(generation uint64, update func(State) State) bool {
	applied := false
	l.st.Set(func(s State) State {
		if s.generation != generation {
			return s
		}
		applied = true
		return update(s)
	})
	return applied
}

func (l *Locator) freeze(s State, idx int) State {
	s.Index = idx
	s.Gap = l.opts.Gaps[idx]
	s.Frozen = true
	s.Slots = nil
	log.Info("timeslot: %s frozen at %s", s.Range.Stream, s.Gap)
	return l.extend(s, l.opts.SlotCap)
}

// extend walks backward from the oldest slot, appending at most n slots.
// The slice is copied so earlier snapshots keep their content.
func (l *Locator) extend(s State, n int) State {
	slots := make([]Slot, len(s.Slots), len(s.Slots)+n)
	copy(slots, s.Slots)

	end := s.Range.End
	if len(slots) > 0 {
		end = slots[len(slots)-1].StartTime()
	}
	for i := 0; i < n && end.After(s.Range.Start); i++ {
		slots = append(slots, Slot{ID: len(slots) + 1, Gap: s.Gap, EndTime: end})
		end = end.Add(-s.Gap)
	}
	s.Slots = slots
	s.Exhausted = !end.After(s.Range.Start)
	return s
}
