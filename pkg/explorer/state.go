// Package explorer owns what the table shows: the stream, time range,
// applied filter, sort and the page window. Pages of PerPage rows are cut
// from an in-memory chunk of LoadLimit rows; crossing a chunk boundary
// moves CurrentOffset and fetches the next chunk once.
package explorer

import (
	"fmt"
	"strings"
	"time"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/columns"
	"github.com/bascanada/logexplorer/pkg/filter"
)

const (
	DefaultPerPage   = 50
	DefaultLoadLimit = 9000
)

// Status is the view state machine:
//
//	Idle -> SchemaLoading -> Fetching -> Ready
//	SchemaLoading, Fetching -> Errored -> (Retry) -> SchemaLoading | Fetching
type Status int

const (
	Idle Status = iota
	SchemaLoading
	Fetching
	Ready
	Errored
)

func (s Status) String() string {
	switch s {
	case SchemaLoading:
		return "schema-loading"
	case Fetching:
		return "fetching"
	case Ready:
		return "ready"
	case Errored:
		return "error"
	default:
		return "idle"
	}
}

// Order is a sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// ParseOrder accepts asc or desc in any case.
func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.ToLower(s)); o {
	case Asc, Desc:
		return o, nil
	}
	return "", fmt.Errorf("invalid sort order %q", s)
}

// Sort orders rows by one column.
type Sort struct {
	Column string
	Order  Order
}

func (s Sort) String() string { return s.Column + " " + string(s.Order) }

// ParseSort reads column or column:order; the order defaults to desc.
func ParseSort(s string) (Sort, error) {
	column, order, found := strings.Cut(s, ":")
	column = strings.TrimSpace(column)
	if column == "" {
		return Sort{}, fmt.Errorf("invalid sort %q: missing column", s)
	}
	if !found {
		return Sort{Column: column, Order: Desc}, nil
	}
	o, err := ParseOrder(strings.TrimSpace(order))
	if err != nil {
		return Sort{}, err
	}
	return Sort{Column: column, Order: o}, nil
}

// PageWindow is the visible slice of the results. Data never holds more
// than PerPage rows and CurrentOffset is a multiple of the load limit.
type PageWindow struct {
	Data          []backend.Row
	Page          int
	PerPage       int
	TotalPages    int
	TotalCount    int64
	CurrentOffset int
}

// operation names what Retry re-issues.
type operation int

const (
	opNone operation = iota
	opSchema
	opChunk
)

// State is published through the controller store.
type State struct {
	Status Status
	Stream string
	Start  time.Time
	End    time.Time
	Schema backend.Schema
	// Applied is the committed filter, nil when unfiltered.
	Applied *filter.AppliedQuery
	// SQL replaces the generated query when set.
	SQL  string
	Sort Sort
	// ColumnFilters narrow the loaded chunk client side, keyed by column.
	ColumnFilters map[string]filter.Rule
	Layout        columns.Layout
	Window        PageWindow
	// Chunk is the buffered result chunk starting at Window.CurrentOffset.
	Chunk []backend.Row
	// Counted is the row count the backend reported for the window.
	// Window.TotalCount follows it unless column filters narrow the chunk.
	Counted int64
	Err     error

	generation   uint64
	failed       operation
	pendingPage  int
	pendingCount bool
}
