package explorer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/columns"
	"github.com/bascanada/logexplorer/pkg/export"
	"github.com/bascanada/logexplorer/pkg/filter"
	"github.com/bascanada/logexplorer/pkg/filter/operator"
	"github.com/bascanada/logexplorer/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	end   = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	start = end.Add(-time.Hour)
)

var limitOffset = regexp.MustCompile(`LIMIT (\d+)(?: OFFSET (\d+))?`)

// fakeStream serves total rows numbered from 0, honouring LIMIT/OFFSET.
func fakeStream(total int) *backend.MockBackend {
	return &backend.MockBackend{
		OnSchema: func(string) (backend.Schema, error) {
			return backend.Schema{Fields: []backend.Field{
				{Name: "p_timestamp", DataType: "Timestamp(Millisecond, None)"},
				{Name: "n", DataType: "Int64"},
				{Name: "level", DataType: "Utf8"},
			}}, nil
		},
		OnCount: func(string, time.Time, time.Time, string) (backend.CountResult, error) {
			return backend.CountResult{TotalCurrentCount: int64(total)}, nil
		},
		OnExecute: func(query string, _, _ time.Time) ([]backend.Row, error) {
			limit, offset := total, 0
			if m := limitOffset.FindStringSubmatch(query); m != nil {
				limit, _ = strconv.Atoi(m[1])
				if m[2] != "" {
					offset, _ = strconv.Atoi(m[2])
				}
			}
			var rows []backend.Row
			for i := offset; i < total && i < offset+limit; i++ {
				level := "info"
				if i%3 == 0 {
					level = "error"
				}
				rows = append(rows, backend.Row{"n": int64(i), "level": level})
			}
			return rows, nil
		},
	}
}

func loaded(t *testing.T, m *backend.MockBackend, opts Options) *Controller {
	t.Helper()
	c := NewController(m, opts)
	c.SetStream("app-logs")
	c.SetTimeRange(start, end)
	require.NoError(t, c.Load(context.Background()))
	return c
}

func TestController_Load(t *testing.T) {
	m := fakeStream(120)
	c := NewController(m, Options{})

	var statuses []Status
	unsub := store.Subscribe(c.Store(), func(s State) Status { return s.Status }, func(s Status) {
		statuses = append(statuses, s)
	}, nil)
	defer unsub()

	c.SetStream("app-logs")
	c.SetTimeRange(start, end)
	require.NoError(t, c.Load(context.Background()))

	assert.Equal(t, []Status{SchemaLoading, Fetching, Ready}, statuses)
	w := c.Window()
	assert.Equal(t, 1, w.Page)
	assert.Equal(t, 50, w.PerPage)
	assert.Equal(t, 3, w.TotalPages)
	assert.Equal(t, int64(120), w.TotalCount)
	assert.Equal(t, 0, w.CurrentOffset)
	assert.Len(t, w.Data, 50)
	assert.Equal(t, []string{"p_timestamp", "n", "level"}, c.State().Layout.Headers)

	q := m.Queries()[0]
	assert.Contains(t, q, `FROM "app-logs"`)
	assert.Contains(t, q, `ORDER BY "p_timestamp" DESC`)
	assert.Contains(t, q, "LIMIT 9000")
}

func TestController_LoadWithoutStream(t *testing.T) {
	c := NewController(fakeStream(1), Options{})
	assert.ErrorIs(t, c.Load(context.Background()), backend.ErrUnknownStream)
}

func TestController_ScenarioC_ChunkCrossing(t *testing.T) {
	m := fakeStream(20000)
	c := loaded(t, m, Options{PerPage: 50, LoadLimit: 9000})
	require.Equal(t, 1, m.ExecuteCalls())
	require.Equal(t, 400, c.Window().TotalPages)

	require.NoError(t, c.GoToPage(context.Background(), 180))
	assert.Equal(t, 1, m.ExecuteCalls(), "page 180 ends at row 9000, still in the first chunk")
	assert.Equal(t, int64(8950), c.Window().Data[0]["n"])

	require.NoError(t, c.GoToPage(context.Background(), 181))
	w := c.Window()
	assert.Equal(t, 2, m.ExecuteCalls(), "exactly one fetch for the next chunk")
	assert.Equal(t, 9000, w.CurrentOffset)
	assert.Equal(t, 181, w.Page)
	assert.Equal(t, int64(9000), w.Data[0]["n"])
	assert.Contains(t, m.Queries()[1], "OFFSET 9000")
	assert.Equal(t, 1, m.CountCalls(), "paging never recounts")

	require.NoError(t, c.GoToPage(context.Background(), 3))
	assert.Equal(t, 0, c.Window().CurrentOffset)
	assert.Equal(t, 3, m.ExecuteCalls())
}

func TestController_PageBounds(t *testing.T) {
	m := fakeStream(120)
	c := loaded(t, m, Options{})

	require.NoError(t, c.GoToPage(context.Background(), 3))
	assert.Equal(t, 3, c.Window().Page)
	assert.Len(t, c.Window().Data, 20)

	for _, n := range []int{4, 99, 0, -1} {
		require.NoError(t, c.GoToPage(context.Background(), n))
		assert.Equal(t, 3, c.Window().Page, "page %d is ignored", n)
	}
	assert.Equal(t, 1, m.ExecuteCalls())
}

func TestController_DataNeverExceedsPerPage(t *testing.T) {
	for _, perPage := range []int{7, 50, 100} {
		t.Run(fmt.Sprint(perPage), func(t *testing.T) {
			c := loaded(t, fakeStream(1000), Options{PerPage: perPage, LoadLimit: 300})
			assert.Equal(t, 0, c.LoadLimit()%perPage)
			for p := 1; p <= c.Window().TotalPages; p++ {
				require.NoError(t, c.GoToPage(context.Background(), p))
				w := c.Window()
				assert.LessOrEqual(t, len(w.Data), perPage)
				assert.Equal(t, 0, w.CurrentOffset%c.LoadLimit())
				if len(w.Data) > 0 {
					assert.Equal(t, int64((p-1)*perPage), w.Data[0]["n"])
				}
			}
		})
	}
}

func TestController_Sort(t *testing.T) {
	m := fakeStream(10)
	c := loaded(t, m, Options{})

	require.NoError(t, c.Sort(context.Background(), "n", Asc))
	assert.Equal(t, Sort{Column: "n", Order: Asc}, c.State().Sort)
	assert.Contains(t, m.Queries()[1], `ORDER BY "n" ASC`)

	require.NoError(t, c.Sort(context.Background(), "n", Desc))
	assert.Equal(t, Sort{Column: "n", Order: Desc}, c.State().Sort, "only one column is sorted")

	require.NoError(t, c.Sort(context.Background(), "n", Desc))
	assert.Equal(t, c.DefaultSort(), c.State().Sort, "repeating the order restores the default")
	assert.Contains(t, m.Queries()[3], `ORDER BY "p_timestamp" DESC`)
}

func TestController_ApplyFilter(t *testing.T) {
	var where string
	m := fakeStream(10)
	m.OnCount = func(_ string, _, _ time.Time, w string) (backend.CountResult, error) {
		where = w
		return backend.CountResult{TotalCurrentCount: 10}, nil
	}
	c := loaded(t, m, Options{})
	require.NoError(t, c.GoToPage(context.Background(), 1))

	applied := &filter.AppliedQuery{Where: `(("level" = 'error'))`}
	c.ApplyFilter(applied)
	assert.Equal(t, Idle, c.State().Status)
	assert.Equal(t, 0, c.Window().CurrentOffset)
	require.NoError(t, c.Load(context.Background()))

	assert.Equal(t, applied.Where, where)
	assert.Contains(t, m.Queries()[1], applied.Where)
	assert.Equal(t, 2, m.SchemaCalls(), "filter apply refetches the schema")
}

func TestController_SQLMode(t *testing.T) {
	m := fakeStream(75)
	c := NewController(m, Options{})
	c.SetSQL(`SELECT * FROM "app-logs" LIMIT 75`)
	require.NoError(t, c.Load(context.Background()))

	w := c.Window()
	assert.Equal(t, int64(75), w.TotalCount)
	assert.Equal(t, 2, w.TotalPages)
	assert.Equal(t, `SELECT * FROM "app-logs" LIMIT 75`, m.Queries()[0])
	assert.Equal(t, 0, m.CountCalls())
	assert.Equal(t, 0, m.SchemaCalls())
	assert.ElementsMatch(t, []string{"n", "level"}, c.State().Layout.Headers)

	require.NoError(t, c.GoToPage(context.Background(), 2))
	assert.Len(t, c.Window().Data, 25)
	assert.Equal(t, 1, m.ExecuteCalls())
}

func TestController_SchemaErrorAndRetry(t *testing.T) {
	m := fakeStream(10)
	schema := m.OnSchema
	fail := true
	m.OnSchema = func(s string) (backend.Schema, error) {
		if fail {
			return backend.Schema{}, errors.New("401 unauthorized")
		}
		return schema(s)
	}
	c := NewController(m, Options{})
	c.SetStream("app-logs")

	err := c.Load(context.Background())
	var serr *backend.SchemaError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, Errored, c.State().Status)
	assert.Equal(t, 0, m.ExecuteCalls())

	fail = false
	require.NoError(t, c.Retry(context.Background()))
	assert.Equal(t, Ready, c.State().Status)
	assert.Nil(t, c.State().Err)
	assert.Equal(t, 2, m.SchemaCalls())
}

func TestController_QueryErrorRetryKeepsFilters(t *testing.T) {
	m := fakeStream(20000)
	c := loaded(t, m, Options{})
	applied := &filter.AppliedQuery{Where: `(("n" > 1))`}
	c.ApplyFilter(applied)
	require.NoError(t, c.Load(context.Background()))

	execute := m.OnExecute
	var fail atomic.Bool
	fail.Store(true)
	m.OnExecute = func(q string, s, e time.Time) ([]backend.Row, error) {
		if fail.Load() {
			return nil, errors.New("timeout")
		}
		return execute(q, s, e)
	}

	err := c.GoToPage(context.Background(), 200)
	var qerr *backend.QueryError
	require.True(t, errors.As(err, &qerr))
	assert.Contains(t, qerr.Query, "OFFSET 9000")
	st := c.State()
	assert.Equal(t, Errored, st.Status)
	assert.Equal(t, applied, st.Applied)
	assert.Equal(t, start, st.Start)

	schemaCalls, countCalls := m.SchemaCalls(), m.CountCalls()
	fail.Store(false)
	require.NoError(t, c.Retry(context.Background()))
	w := c.Window()
	assert.Equal(t, 200, w.Page)
	assert.Equal(t, 9000, w.CurrentOffset)
	assert.Equal(t, applied, c.State().Applied)
	assert.Equal(t, schemaCalls, m.SchemaCalls(), "retry re-issues only the failed fetch")
	assert.Equal(t, countCalls, m.CountCalls())
}

func TestController_StaleResponseIsDropped(t *testing.T) {
	m := fakeStream(10)
	var c *Controller
	execute := m.OnExecute
	switched := false
	m.OnExecute = func(q string, s, e time.Time) ([]backend.Row, error) {
		if !switched {
			switched = true
			c.SetStream("other-logs")
		}
		return execute(q, s, e)
	}
	c = NewController(m, Options{})
	c.SetStream("app-logs")

	err := c.Load(context.Background())
	assert.ErrorIs(t, err, backend.ErrStaleResponse)
	st := c.State()
	assert.Equal(t, "other-logs", st.Stream)
	assert.Empty(t, st.Chunk)
	assert.Equal(t, Idle, st.Status)
}

func TestController_ColumnValuesAndFilters(t *testing.T) {
	c := loaded(t, fakeStream(120), Options{})
	assert.Equal(t, []string{"error", "info"}, c.ColumnValues("level"))
	assert.Empty(t, c.ColumnValues("missing"))

	distinct := c.Distinct("level", "missing")
	assert.Equal(t, []string{"error", "info"}, distinct["level"])
	assert.Equal(t, []string{"level"}, distinct.Keys())

	c.SetColumnFilter("level", &filter.Rule{Operator: operator.Equals, Value: filter.Text("error")})
	w := c.Window()
	assert.Equal(t, int64(40), w.TotalCount)
	assert.Equal(t, 1, w.TotalPages)
	assert.Len(t, w.Data, 40)
	for _, row := range w.Data {
		assert.Equal(t, "error", row["level"])
	}

	assert.Equal(t, int64(120), c.State().Counted, "backend count is kept")

	c.SetColumnFilter("level", nil)
	assert.Equal(t, int64(120), c.Window().TotalCount)
	assert.Equal(t, 3, c.Window().TotalPages)
	assert.Len(t, c.Window().Data, 50)
}

func TestController_ExportWholeChunk(t *testing.T) {
	c := loaded(t, fakeStream(120), Options{})
	require.NoError(t, c.UpdateLayout(func(l columns.Layout) (columns.Layout, error) { return l.Toggle("p_timestamp") }))

	var buf bytes.Buffer
	require.NoError(t, c.Export(&buf, export.CSV))
	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	assert.Equal(t, 121, lines, "header plus every loaded row, not only the page")
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("n,level\n")))
}

func TestController_SetPerPage(t *testing.T) {
	m := fakeStream(200)
	c := loaded(t, m, Options{})
	require.NoError(t, c.SetPerPage(context.Background(), 20))
	w := c.Window()
	assert.Equal(t, 20, w.PerPage)
	assert.Equal(t, 10, w.TotalPages)
	assert.Len(t, w.Data, 20)
	assert.Error(t, c.SetPerPage(context.Background(), 0))
}

func TestController_Refresh(t *testing.T) {
	m := fakeStream(5)
	c := loaded(t, m, Options{})

	c.StartRefresh(context.Background(), 5*time.Millisecond, nil)
	assert.True(t, c.Refreshing())
	require.Eventually(t, func() bool { return m.ExecuteCalls() >= 3 }, time.Second, time.Millisecond)

	c.StartRefresh(context.Background(), time.Hour, nil)
	calls := m.ExecuteCalls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, m.ExecuteCalls(), "starting a timer stops the previous one")

	c.StopRefresh()
	assert.False(t, c.Refreshing())
	c.StopRefresh()
}

func TestController_RefreshStoppedFromOnError(t *testing.T) {
	m := fakeStream(5)
	c := loaded(t, m, Options{})
	m.OnSchema = func(string) (backend.Schema, error) { return backend.Schema{}, errors.New("gateway timeout") }

	reported := make(chan error, 4)
	c.StartRefresh(context.Background(), 5*time.Millisecond, func(err error) {
		c.StopRefresh()
		reported <- err
	})

	select {
	case err := <-reported:
		assert.ErrorContains(t, err, "gateway timeout")
	case <-time.After(time.Second):
		t.Fatal("onError did not return, StopRefresh blocked on its own loop")
	}
	assert.False(t, c.Refreshing())

	calls := m.SchemaCalls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, m.SchemaCalls(), "no reload after stop")
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		in   string
		want Sort
		err  bool
	}{
		{in: "status", want: Sort{Column: "status", Order: Desc}},
		{in: "status:asc", want: Sort{Column: "status", Order: Asc}},
		{in: " level : DESC", want: Sort{Column: "level", Order: Desc}},
		{in: ":asc", err: true},
		{in: "status:sideways", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSort(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
