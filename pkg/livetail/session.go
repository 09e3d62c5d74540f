// Package livetail keeps a bounded buffer of rows pushed by a live feed.
//
//	Idle -> Streaming -> Stopped
//	Streaming -> Aborting -> Stopped
//
// The producer never waits on readers: rows go into a ring that evicts the
// oldest entry once full. Display filters narrow what Rows returns without
// touching what is buffered.
package livetail

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/explorer"
	"github.com/bascanada/logexplorer/pkg/export"
	"github.com/bascanada/logexplorer/pkg/filter"
	"github.com/bascanada/logexplorer/pkg/log"
	"github.com/bascanada/logexplorer/pkg/store"
)

// State of a session.
type State int

const (
	Idle State = iota
	Streaming
	Stopped
	Aborting
)

func (s State) String() string {
	switch s {
	case Streaming:
		return "streaming"
	case Stopped:
		return "stopped"
	case Aborting:
		return "aborting"
	default:
		return "idle"
	}
}

// Status is published through the session store. Received counts the rows
// taken from the current feed, so subscribers see every arrival.
type Status struct {
	State    State
	Stream   string
	Err      error
	Received int64
	Search   string
	// Column narrows the display to rows matching one rule, nil for none.
	Column *filter.Rule
}

// Progress is the part of Status a row consumer follows: it changes on
// every arrival and when the session stops, not on display edits.
type Progress struct {
	State    State
	Received int64
}

// Progress selects the consumer view of st.
func (st Status) Progress() Progress {
	return Progress{State: st.State, Received: st.Received}
}

// Options tune a Session.
type Options struct {
	Capacity int
	// Fields types the column filter; unknown fields compare as text.
	Fields []backend.Field
}

// Session tails one stream at a time.
type Session struct {
	opener backend.StreamOpener
	fields []backend.Field
	ring   *Ring[backend.Row]
	st     *store.Store[Status]

	startMu sync.Mutex // serialises Start
	mu      sync.Mutex
	gen     uint64
	feed    backend.Feed
	stop    context.CancelFunc
	done    chan struct{}
}

// NewSession returns an idle session.
func NewSession(opener backend.StreamOpener, opts Options) *Session {
	return &Session{
		opener: opener,
		fields: opts.Fields,
		ring:   NewRing[backend.Row](opts.Capacity),
		st:     store.New(Status{}),
	}
}

// Store exposes the status for subscriptions.
func (s *Session) Store() *store.Store[Status] { return s.st }

// Status returns the current status.
func (s *Session) Status() Status { return s.st.Get() }

// State returns the current state.
func (s *Session) State() State { return s.st.Get().State }

// Err is the transport error that stopped the last feed, if any.
func (s *Session) Err() error { return s.st.Get().Err }

// Capacity is the ring size.
func (s *Session) Capacity() int { return s.ring.Cap() }

// SetFields replaces the schema used to type column filters.
func (s *Session) SetFields(fields []backend.Field) {
	s.mu.Lock()
	s.fields = fields
	s.mu.Unlock()
}

// Start opens a feed on stream for as long as ctx lives. Starting the
// stream already streaming is a no-op; any other running feed is aborted
// first. The buffer is cleared.
func (s *Session) Start(ctx context.Context, stream string) error {
	if stream == "" {
		return backend.ErrUnknownStream
	}
	s.startMu.Lock()
	defer s.startMu.Unlock()

	cur := s.st.Get()
	if cur.State == Streaming {
		if cur.Stream == stream {
			return nil
		}
		s.Abort()
	}

	feed, err := s.opener.OpenStream(ctx, stream)
	if err != nil {
		serr := &backend.StreamError{Stream: stream, Err: err}
		s.st.Set(func(st Status) Status {
			st.State = Stopped
			st.Stream = stream
			st.Err = serr
			return st
		})
		log.Warn("livetail: %v", serr)
		return serr
	}

	pctx, stop := context.WithCancel(ctx)
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.feed, s.stop = feed, stop
	s.done = make(chan struct{})
	done := s.done
	s.ring.Clear()
	s.mu.Unlock()

	s.st.Set(func(st Status) Status {
		st.State = Streaming
		st.Stream = stream
		st.Err = nil
		st.Received = 0
		return st
	})
	log.Info("livetail: streaming %s", stream)

	go s.pump(pctx, gen, stream, feed, done)
	return nil
}

// pump moves rows from feed into the ring until the feed ends, ctx ends or
// a newer generation takes over.
func (s *Session) pump(ctx context.Context, gen uint64, stream string, feed backend.Feed, done chan struct{}) {
	defer close(done)
	defer feed.Cancel()
	rows := feed.Rows()
	for {
		select {
		case <-ctx.Done():
			s.finish(gen, stream, nil)
			return
		case row, ok := <-rows:
			if !ok {
				s.finish(gen, stream, <-feed.Err())
				return
			}
			if !s.push(gen, row) {
				return
			}
			s.st.Set(func(st Status) Status {
				st.Received++
				return st
			})
		}
	}
}

// finish stops the session when gen is still current.
func (s *Session) finish(gen uint64, stream string, err error) {
	s.mu.Lock()
	current := s.gen == gen
	stop := s.stop
	if current {
		s.gen++
		s.feed, s.stop = nil, nil
	}
	s.mu.Unlock()
	if !current {
		return
	}
	if stop != nil {
		stop()
	}

	var serr error
	if err != nil && !errors.Is(err, context.Canceled) {
		serr = &backend.StreamError{Stream: stream, Err: err}
		log.Warn("livetail: %v", serr)
	}
	s.st.Set(func(st Status) Status {
		st.State = Stopped
		st.Err = serr
		return st
	})
}

func (s *Session) push(gen uint64, row backend.Row) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.ring.Push(row)
	return true
}

// Abort cancels the feed and stops at once, without waiting for the
// transport. Buffered rows stay until the next Start.
func (s *Session) Abort() {
	if s.st.Get().State != Streaming {
		return
	}
	s.st.Set(func(st Status) Status {
		st.State = Aborting
		return st
	})

	s.mu.Lock()
	s.gen++
	feed, stop := s.feed, s.stop
	s.feed, s.stop = nil, nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	if feed != nil {
		feed.Cancel()
	}

	s.st.Set(func(st Status) Status {
		st.State = Stopped
		return st
	})
	log.Debug("livetail: aborted")
}

// Wait blocks until the pump of the latest feed has exited.
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// SetSearch filters the display to rows with a value containing text,
// case-insensitively. An empty text shows everything.
func (s *Session) SetSearch(text string) {
	s.st.Set(func(st Status) Status {
		st.Search = text
		return st
	})
}

// SetColumnFilter filters the display by rule; nil removes the filter.
func (s *Session) SetColumnFilter(rule *filter.Rule) {
	s.st.Set(func(st Status) Status {
		st.Column = rule
		return st
	})
}

// Rows returns the buffered rows passing the display filters, oldest first.
func (s *Session) Rows() []backend.Row {
	st := s.st.Get()
	rows := s.ring.All()
	if st.Search == "" && st.Column == nil {
		return rows
	}
	s.mu.Lock()
	fields := s.fields
	s.mu.Unlock()

	needle := strings.ToLower(st.Search)
	out := rows[:0]
	for _, row := range rows {
		if needle != "" && !containsValue(row, needle) {
			continue
		}
		if st.Column != nil && !filter.MatchRule(*st.Column, row, filter.KindOf(fields, st.Column.Field)) {
			continue
		}
		out = append(out, row)
	}
	return out
}

// Since returns buffered rows from position pos on, unfiltered, and the
// position to resume from.
func (s *Session) Since(pos int64) ([]backend.Row, int64) { return s.ring.Since(pos) }

// Page cuts the displayed rows, newest first, into the page window the
// explorer table renders.
func (s *Session) Page(page, perPage int) explorer.PageWindow {
	if perPage <= 0 {
		perPage = explorer.DefaultPerPage
	}
	rows := s.Rows()
	total := len(rows)
	pages := (total + perPage - 1) / perPage
	if page < 1 {
		page = 1
	}
	w := explorer.PageWindow{Page: page, PerPage: perPage, TotalPages: pages, TotalCount: int64(total)}
	from := (page - 1) * perPage
	if from >= total {
		return w
	}
	to := min(from+perPage, total)
	w.Data = make([]backend.Row, 0, to-from)
	for i := from; i < to; i++ {
		w.Data = append(w.Data, rows[total-1-i])
	}
	return w
}

func containsValue(row backend.Row, needle string) bool {
	for _, v := range row {
		if v != nil && strings.Contains(strings.ToLower(export.Stringify(v)), needle) {
			return true
		}
	}
	return false
}
