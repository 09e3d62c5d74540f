package explorer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/backend/sqlgen"
	"github.com/bascanada/logexplorer/pkg/columns"
	"github.com/bascanada/logexplorer/pkg/export"
	"github.com/bascanada/logexplorer/pkg/filter"
	"github.com/bascanada/logexplorer/pkg/log"
	"github.com/bascanada/logexplorer/pkg/store"
	"github.com/bascanada/logexplorer/pkg/ty"
)

// Source is what the controller fetches from.
type Source interface {
	backend.Executor
	backend.Counter
	backend.SchemaFetcher
}

// Options tune a Controller. Zero members take the defaults.
type Options struct {
	PerPage         int
	LoadLimit       int
	TimestampColumn string
}

func (o Options) withDefaults() Options {
	if o.PerPage <= 0 {
		o.PerPage = DefaultPerPage
	}
	if o.LoadLimit <= 0 {
		o.LoadLimit = DefaultLoadLimit
	}
	if o.TimestampColumn == "" {
		o.TimestampColumn = backend.DefaultTimestampColumn
	}
	return o
}

// Controller drives one explorer view.
type Controller struct {
	src       Source
	tsColumn  string
	loadLimit int
	st        *store.Store[State]

	refreshMu   sync.Mutex
	stopRefresh context.CancelFunc
	refreshDone chan struct{}
	// reporting is the done channel of the loop running onError.
	reporting chan struct{}
}

// NewController creates an idle controller.
func NewController(src Source, opts Options) *Controller {
	opts = opts.withDefaults()
	c := &Controller{src: src, tsColumn: opts.TimestampColumn, loadLimit: opts.LoadLimit}
	c.st = store.New(State{
		Sort:   c.DefaultSort(),
		Layout: columns.New(nil),
		Window: PageWindow{Page: 1, PerPage: opts.PerPage},
	})
	return c
}

// Store exposes the state for subscriptions.
func (c *Controller) Store() *store.Store[State] { return c.st }

// State returns the current state.
func (c *Controller) State() State { return c.st.Get() }

// Window returns the visible page.
func (c *Controller) Window() PageWindow { return c.st.Get().Window }

// LoadLimit is the chunk size, a multiple of the page size.
func (c *Controller) LoadLimit() int {
	return chunkSize(c.loadLimit, c.st.Get().Window.PerPage)
}

// DefaultSort is newest first on the timestamp column.
func (c *Controller) DefaultSort() Sort {
	return Sort{Column: c.tsColumn, Order: Desc}
}

// chunkSize rounds the load limit down to whole pages so no page straddles
// two chunks.
func chunkSize(limit, perPage int) int {
	if limit < perPage {
		return perPage
	}
	return limit - limit%perPage
}

// reset empties the window and bumps the generation so in-flight fetches
// are dropped.
func reset(s State) State {
	s.generation++
	s.Status = Idle
	s.Err = nil
	s.failed = opNone
	s.Chunk = nil
	s.Counted = 0
	s.Window = PageWindow{Page: 1, PerPage: s.Window.PerPage}
	return s
}

// SetStream switches stream. The filter, raw SQL, column filters and sort
// belong to the old stream and are dropped.
func (c *Controller) SetStream(stream string) {
	c.st.Set(func(s State) State {
		s = reset(s)
		s.Stream = stream
		s.Schema = backend.Schema{}
		s.Applied = nil
		s.SQL = ""
		s.ColumnFilters = nil
		s.Sort = c.DefaultSort()
		s.Layout = columns.New(nil)
		return s
	})
}

// SetTimeRange sets the query window.
func (c *Controller) SetTimeRange(start, end time.Time) {
	c.st.Set(func(s State) State {
		s = reset(s)
		s.Start, s.End = start, end
		return s
	})
}

// ApplyFilter installs a committed filter, nil to clear it, and leaves raw
// SQL mode.
func (c *Controller) ApplyFilter(applied *filter.AppliedQuery) {
	c.st.Set(func(s State) State {
		s = reset(s)
		s.Applied = applied
		s.SQL = ""
		return s
	})
}

// SetSQL switches to raw SQL mode; an empty statement leaves it.
func (c *Controller) SetSQL(sql string) {
	c.st.Set(func(s State) State {
		s = reset(s)
		s.SQL = sql
		return s
	})
}

// Load runs the full sequence: schema, count, then the first chunk.
func (c *Controller) Load(ctx context.Context) error {
	gen, ok := c.begin(func(s State) State {
		s = reset(s)
		s.Status = SchemaLoading
		return s
	})
	if !ok {
		return backend.ErrUnknownStream
	}
	if err := c.fetchSchema(ctx, gen); err != nil {
		return err
	}
	return c.fetchChunk(ctx, gen, 0, 1, true)
}

// begin applies update, captures the new generation and fails when no
// stream is selected.
func (c *Controller) begin(update func(State) State) (uint64, bool) {
	var gen uint64
	ok := true
	c.st.Set(func(s State) State {
		if s.Stream == "" && s.SQL == "" {
			ok = false
			return s
		}
		s = update(s)
		gen = s.generation
		return s
	})
	return gen, ok
}

// commit applies update only while gen is current.
func (c *Controller) commit(gen uint64, update func(State) State) bool {
	applied := false
	c.st.Set(func(s State) State {
		if s.generation != gen {
			return s
		}
		applied = true
		return update(s)
	})
	return applied
}

func (c *Controller) fail(gen uint64, op operation, page int, count bool, err error) error {
	if !c.commit(gen, func(s State) State {
		s.Status = Errored
		s.Err = err
		s.failed = op
		s.pendingPage = page
		s.pendingCount = count
		return s
	}) {
		return backend.ErrStaleResponse
	}
	log.Warn("explorer: %v", err)
	return err
}

func (c *Controller) fetchSchema(ctx context.Context, gen uint64) error {
	cur := c.st.Get()
	if cur.SQL != "" && cur.Stream == "" {
		return nil
	}
	schema, err := c.src.Schema(ctx, cur.Stream)
	if err != nil {
		return c.fail(gen, opSchema, 1, true, &backend.SchemaError{Stream: cur.Stream, Err: err})
	}
	if !c.commit(gen, func(s State) State {
		s.Schema = schema
		s.Layout = s.Layout.SetHeaders(schema.Names())
		return s
	}) {
		return backend.ErrStaleResponse
	}
	return nil
}

// fetchChunk loads the chunk at offset and shows page. With count set the
// total is refreshed too.
func (c *Controller) fetchChunk(ctx context.Context, gen uint64, offset, page int, count bool) error {
	if !c.commit(gen, func(s State) State {
		s.Status = Fetching
		s.Err = nil
		return s
	}) {
		return backend.ErrStaleResponse
	}
	cur := c.st.Get()
	limit := chunkSize(c.loadLimit, cur.Window.PerPage)

	query, err := c.query(cur, limit, offset)
	if err != nil {
		return c.fail(gen, opChunk, page, count, &backend.QueryError{Query: query, Err: err})
	}

	total := cur.Counted
	if count && cur.SQL == "" {
		where := ""
		if cur.Applied != nil {
			where = cur.Applied.Where
		}
		res, err := c.src.Count(ctx, cur.Stream, cur.Start, cur.End, where)
		if err != nil {
			return c.fail(gen, opChunk, page, count, &backend.QueryError{Query: query, Err: err})
		}
		total = res.TotalCurrentCount
	}

	rows, err := c.src.Execute(ctx, query, cur.Start, cur.End)
	if err != nil {
		return c.fail(gen, opChunk, page, count, &backend.QueryError{Query: query, Err: err})
	}
	log.Debug("explorer: %s offset %d: %d rows", cur.Stream, offset, len(rows))

	superseded := false
	if !c.commit(gen, func(s State) State {
		if s.Stream != cur.Stream || s.SQL != cur.SQL {
			superseded = true
			return s
		}
		if s.SQL != "" {
			total = int64(len(rows))
		}
		s.Chunk = rows
		s.Counted = total
		s.Window.CurrentOffset = offset
		s.Window.Page = page
		s.Status = Ready
		s.failed = opNone
		if len(s.Schema.Fields) == 0 {
			s.Layout = s.Layout.SetHeaders(export.Headers(rows))
		}
		return paginate(s, limit)
	}) || superseded {
		return backend.ErrStaleResponse
	}
	return nil
}

func (c *Controller) query(s State, limit, offset int) (string, error) {
	if s.SQL != "" {
		return s.SQL, nil
	}
	where := ""
	if s.Applied != nil {
		where = s.Applied.Where
	}
	return sqlgen.Select{
		Stream:          s.Stream,
		TimestampColumn: c.tsColumn,
		Start:           s.Start,
		End:             s.End,
		Where:           where,
		SortColumn:      s.Sort.Column,
		Descending:      s.Sort.Order != Asc,
		Limit:           limit,
		Offset:          offset,
	}.SQL()
}

// Query renders the statement for the current chunk.
func (c *Controller) Query() (string, error) {
	s := c.st.Get()
	return c.query(s, chunkSize(c.loadLimit, s.Window.PerPage), s.Window.CurrentOffset)
}

// visibleRows is the chunk narrowed by column filters.
func visibleRows(s State) []backend.Row {
	if len(s.ColumnFilters) == 0 {
		return s.Chunk
	}
	out := make([]backend.Row, 0, len(s.Chunk))
	for _, row := range s.Chunk {
		keep := true
		for _, r := range s.ColumnFilters {
			if !filter.MatchRule(r, row, filter.KindOf(s.Schema.Fields, r.Field)) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out
}

// paginate recomputes Data, TotalCount and TotalPages. Column filters only
// see the loaded chunk, so while they are active the totals and pages are
// those of the filtered chunk; otherwise they follow the backend count.
func paginate(s State, limit int) State {
	w := s.Window
	rows := visibleRows(s)
	total := s.Counted
	base := w.CurrentOffset
	if len(s.ColumnFilters) > 0 || s.SQL != "" {
		total = int64(len(rows))
		base = 0
	}
	w.TotalCount = total
	w.TotalPages = int((total + int64(w.PerPage) - 1) / int64(w.PerPage))

	from := (w.Page-1)*w.PerPage - base
	if from < 0 || from > len(rows) {
		from = len(rows)
	}
	to := min(from+w.PerPage, len(rows))
	w.Data = rows[from:to]
	s.Window = w
	return s
}

// GoToPage shows page n. Pages outside [1, TotalPages] are ignored. A page
// outside the loaded chunk moves CurrentOffset and fetches once.
func (c *Controller) GoToPage(ctx context.Context, n int) error {
	cur := c.st.Get()
	w := cur.Window
	if n < 1 || n > w.TotalPages || n == w.Page || cur.Status != Ready {
		return nil
	}
	limit := chunkSize(c.loadLimit, w.PerPage)
	offset := chunkOffset(n, w.PerPage, limit)
	if len(cur.ColumnFilters) > 0 || cur.SQL != "" || offset == w.CurrentOffset {
		c.st.Set(func(s State) State {
			s.Window.Page = n
			return paginate(s, limit)
		})
		return nil
	}

	var gen uint64
	c.st.Set(func(s State) State {
		s.generation++
		gen = s.generation
		return s
	})
	return c.fetchChunk(ctx, gen, offset, n, false)
}

// chunkOffset is the offset of the chunk holding page n.
func chunkOffset(n, perPage, limit int) int {
	first := (n - 1) * perPage
	return first / limit * limit
}

// SetPerPage changes the page size and returns to the first page.
func (c *Controller) SetPerPage(ctx context.Context, perPage int) error {
	if perPage <= 0 {
		return fmt.Errorf("page size must be positive, got %d", perPage)
	}
	cur := c.st.Get()
	if cur.Window.CurrentOffset == 0 || cur.Status != Ready {
		c.st.Set(func(s State) State {
			s.Window.PerPage = perPage
			s.Window.Page = 1
			if s.Status != Ready {
				return s
			}
			return paginate(s, chunkSize(c.loadLimit, perPage))
		})
		return nil
	}
	var gen uint64
	c.st.Set(func(s State) State {
		s.generation++
		gen = s.generation
		s.Window.PerPage = perPage
		return s
	})
	return c.fetchChunk(ctx, gen, 0, 1, false)
}

// Sort orders by column. Asking again for the order already in effect
// restores the default sort. The first chunk is fetched again.
func (c *Controller) Sort(ctx context.Context, column string, order Order) error {
	next := Sort{Column: column, Order: order}
	if c.st.Get().Sort == next {
		next = c.DefaultSort()
	}
	gen, ok := c.begin(func(s State) State {
		s.generation++
		s.Sort = next
		return s
	})
	if !ok {
		c.st.Set(func(s State) State {
			s.Sort = next
			return s
		})
		return nil
	}
	if c.st.Get().Status == Idle {
		return nil
	}
	return c.fetchChunk(ctx, gen, 0, 1, false)
}

// ColumnValues lists the distinct values of column in the loaded chunk,
// sorted. It is an approximation: rows outside the chunk are not seen.
func (c *Controller) ColumnValues(column string) []string {
	values := c.Distinct(column)[column]
	sort.Strings(values)
	return values
}

// Distinct collects the distinct values of each column over the loaded
// chunk in first-seen order. Columns absent from every row have no key.
func (c *Controller) Distinct(columns ...string) ty.UniSet[string] {
	set := ty.UniSet[string]{}
	for _, row := range c.st.Get().Chunk {
		for _, column := range columns {
			if v, ok := row[column]; ok {
				set.Add(column, export.Stringify(v))
			}
		}
	}
	return set
}

// SetColumnFilter narrows the loaded chunk by rule on its field; a nil
// rule removes the filter of column. The view returns to the first page.
func (c *Controller) SetColumnFilter(column string, rule *filter.Rule) {
	c.st.Set(func(s State) State {
		filters := make(map[string]filter.Rule, len(s.ColumnFilters)+1)
		for k, v := range s.ColumnFilters {
			filters[k] = v
		}
		if rule == nil {
			delete(filters, column)
		} else {
			r := *rule
			r.Field = column
			filters[column] = r
		}
		s.ColumnFilters = filters
		s.Window.Page = 1
		if len(filters) == 0 {
			s.Window.Page = s.Window.CurrentOffset/s.Window.PerPage + 1
		}
		return paginate(s, chunkSize(c.loadLimit, s.Window.PerPage))
	})
}

// UpdateLayout edits the column layout.
func (c *Controller) UpdateLayout(edit func(columns.Layout) (columns.Layout, error)) error {
	var err error
	c.st.Set(func(s State) State {
		var next columns.Layout
		next, err = edit(s.Layout)
		if err == nil {
			s.Layout = next
		}
		return s
	})
	return err
}

// Export writes every loaded row that passes the column filters, not only
// the visible page. Nothing is fetched.
func (c *Controller) Export(w io.Writer, format export.Format) error {
	s := c.st.Get()
	return export.Write(w, format, s.Layout.Visible(), visibleRows(s))
}

// Retry re-issues the operation that failed. It does nothing unless the
// view is in the error state.
func (c *Controller) Retry(ctx context.Context) error {
	cur := c.st.Get()
	if cur.Status != Errored {
		return nil
	}
	switch cur.failed {
	case opSchema:
		return c.Load(ctx)
	case opChunk:
		var gen uint64
		c.st.Set(func(s State) State {
			s.generation++
			gen = s.generation
			return s
		})
		offset := chunkOffset(cur.pendingPage, cur.Window.PerPage, chunkSize(c.loadLimit, cur.Window.PerPage))
		return c.fetchChunk(ctx, gen, offset, cur.pendingPage, cur.pendingCount)
	}
	return errors.New("explorer: nothing to retry")
}

// StartRefresh reloads the view every interval until StopRefresh or ctx
// ends. A running refresh is stopped first. onError receives failed
// reloads and may be nil; it runs on the refresh goroutine and may call
// StartRefresh or StopRefresh.
func (c *Controller) StartRefresh(ctx context.Context, interval time.Duration, onError func(error)) {
	c.StopRefresh()
	if interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.refreshMu.Lock()
	c.stopRefresh, c.refreshDone = cancel, done
	c.refreshMu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				err := c.Load(ctx)
				if err == nil || errors.Is(err, backend.ErrStaleResponse) || ctx.Err() != nil || onError == nil {
					continue
				}
				c.report(done, func() { onError(err) })
			}
		}
	}()
}

// report runs cb while marking loop done as busy reporting, so StopRefresh
// called from cb does not wait on its own loop.
func (c *Controller) report(done chan struct{}, cb func()) {
	c.refreshMu.Lock()
	c.reporting = done
	c.refreshMu.Unlock()
	defer func() {
		c.refreshMu.Lock()
		if c.reporting == done {
			c.reporting = nil
		}
		c.refreshMu.Unlock()
	}()
	cb()
}

// StopRefresh stops the refresh loop. Once it returns no further reload
// starts. It waits for the loop to exit unless the loop is inside onError.
func (c *Controller) StopRefresh() {
	c.refreshMu.Lock()
	cancel, done := c.stopRefresh, c.refreshDone
	c.stopRefresh, c.refreshDone = nil, nil
	reporting := done != nil && c.reporting == done
	c.refreshMu.Unlock()
	if cancel != nil {
		cancel()
		if !reporting {
			<-done
		}
	}
}

// Refreshing reports whether a refresh loop runs.
func (c *Controller) Refreshing() bool {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.stopRefresh != nil
}
