package backend

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrUnknownStream  = errors.New("unknown stream")
	ErrBuildQuery     = errors.New("building query failed")
	ErrStaleResponse  = errors.New("response superseded by a newer request")
	ErrFeedClosed     = errors.New("feed closed")
	ErrNotImplemented = errors.New("not supported by this backend")
)

// SchemaError means the schema of a stream could not be fetched. Nothing can
// be rendered until it is retried.
type SchemaError struct {
	Stream string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("fetching schema of %q: %v", e.Stream, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// QueryError means a row fetch failed. Filters and time range are kept.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// CountError means a count probe failed; slot generation is blocked until
// the same probe is retried.
type CountError struct {
	Stream string
	Gap    time.Duration
	Err    error
}

func (e *CountError) Error() string {
	return fmt.Sprintf("counting %q over %s: %v", e.Stream, e.Gap, e.Err)
}

func (e *CountError) Unwrap() error { return e.Err }

// StreamError is a live-tail transport failure.
type StreamError struct {
	Stream string
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("live tail of %q: %v", e.Stream, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
