package backend

import (
	"context"
	"sync"
)

// Feed is an open server-streaming channel of rows. Rows is closed when the
// feed ends; at most one error is delivered on Err before it closes.
// Cancel asks the transport to stop and may be called any number of times.
type Feed interface {
	Rows() <-chan Row
	Err() <-chan error
	Cancel()
}

// ChanFeed is the Feed used by the bundled transports: a producer
// goroutine calls Send for each decoded row and Close (or Fail) when the
// underlying stream ends.
type ChanFeed struct {
	ctx    context.Context
	cancel context.CancelFunc
	rows   chan Row
	errs   chan error
	once   sync.Once
}

// NewChanFeed derives a cancellable context for the producer.
func NewChanFeed(parent context.Context, buffer int) *ChanFeed {
	ctx, cancel := context.WithCancel(parent)
	return &ChanFeed{
		ctx:    ctx,
		cancel: cancel,
		rows:   make(chan Row, buffer),
		errs:   make(chan error, 1),
	}
}

// Context is cancelled when the consumer cancels the feed.
func (f *ChanFeed) Context() context.Context { return f.ctx }

// Rows implements Feed.
func (f *ChanFeed) Rows() <-chan Row { return f.rows }

// Err implements Feed.
func (f *ChanFeed) Err() <-chan error { return f.errs }

// Cancel implements Feed.
func (f *ChanFeed) Cancel() { f.cancel() }

// Send delivers a row, blocking until the consumer takes it or the feed is
// cancelled. It returns false once the feed is cancelled.
func (f *ChanFeed) Send(row Row) bool {
	select {
	case f.rows <- row:
		return true
	case <-f.ctx.Done():
		return false
	}
}

// Fail ends the feed with err. A cancelled feed ends silently.
func (f *ChanFeed) Fail(err error) {
	f.once.Do(func() {
		if err != nil && f.ctx.Err() == nil {
			f.errs <- err
		}
		close(f.errs)
		close(f.rows)
		f.cancel()
	})
}

// Close ends the feed normally.
func (f *ChanFeed) Close() { f.Fail(nil) }
