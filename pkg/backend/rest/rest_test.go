package rest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/bascanada/logexplorer/pkg/backend"
	lhttp "github.com/bascanada/logexplorer/pkg/http"
	"github.com/bascanada/logexplorer/pkg/ty"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseURL = "http://parseable.local:8000"

var (
	end   = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	start = end.Add(-10 * time.Minute)
)

func newBackend(t *testing.T, format string) *Backend {
	t.Helper()
	b, err := New(Options{
		URL:        baseURL,
		Auth:       lhttp.BasicAuth{User: "admin", Password: "admin"},
		Headers:    ty.MS{"X-P-Stream": "app-logs"},
		TailFormat: format,
	})
	require.NoError(t, err)
	return b
}

// bodyContains matches requests whose body holds every part.
func bodyContains(parts ...string) gock.MatchFunc {
	return func(req *http.Request, _ *gock.Request) (bool, error) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return false, err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
		for _, p := range parts {
			if !strings.Contains(string(body), p) {
				return false, nil
			}
		}
		return true, nil
	}
}

func collect(t *testing.T, feed backend.Feed) ([]backend.Row, error) {
	t.Helper()
	var rows []backend.Row
	timeout := time.After(2 * time.Second)
	for {
		select {
		case r, ok := <-feed.Rows():
			if !ok {
				return rows, <-feed.Err()
			}
			rows = append(rows, r)
		case <-timeout:
			t.Fatal("feed did not end")
		}
	}
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{URL: baseURL, TailFormat: "xml"})
	assert.Error(t, err)
}

func TestBackend_Execute(t *testing.T) {
	defer gock.Off()
	gock.DisableNetworking()

	gock.New(baseURL).
		Post("/api/v1/query").
		MatchHeader("Authorization", "^Basic ").
		MatchHeader("X-P-Stream", "app-logs").
		JSON(map[string]string{
			"query":     `SELECT * FROM "app-logs"`,
			"startTime": "2026-03-02T11:50:00Z",
			"endTime":   "2026-03-02T12:00:00Z",
		}).
		Reply(200).
		JSON([]map[string]any{{"level": "error", "status": 500}, {"level": "info", "status": 200}})

	b := newBackend(t, "")
	rows, err := b.Execute(context.Background(), `SELECT * FROM "app-logs"`, start, end)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "error", rows[0]["level"])
	assert.Equal(t, float64(500), rows[0]["status"])
	assert.True(t, gock.IsDone())
}

func TestBackend_ExecuteRecordsEnvelope(t *testing.T) {
	defer gock.Off()
	gock.DisableNetworking()

	gock.New(baseURL).Post("/api/v1/query").Reply(200).
		JSON(map[string]any{"fields": []string{"n"}, "records": []map[string]any{{"n": 1}}})
	gock.New(baseURL).Post("/api/v1/query").Reply(200).BodyString("null")

	b := newBackend(t, "")
	rows, err := b.Execute(context.Background(), "SELECT 1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []backend.Row{{"n": float64(1)}}, rows)

	rows, err = b.Execute(context.Background(), "SELECT 1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NotNil(t, rows)
}

func TestBackend_Count(t *testing.T) {
	defer gock.Off()
	gock.DisableNetworking()

	gock.New(baseURL).
		Post("/api/v1/query").
		AddMatcher(bodyContains(`COUNT(*) AS \"count\"`, `(\"level\" = 'error')`)).
		Reply(200).
		JSON([]map[string]any{{"count": 1234}})

	b := newBackend(t, "")
	res, err := b.Count(context.Background(), "app-logs", start, end, `("level" = 'error')`)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), res.TotalCurrentCount)
	assert.True(t, gock.IsDone())

	_, err = b.Count(context.Background(), "", start, end, "")
	assert.ErrorIs(t, err, backend.ErrBuildQuery)
}

func TestBackend_CountServerError(t *testing.T) {
	defer gock.Off()
	gock.DisableNetworking()

	gock.New(baseURL).Post("/api/v1/query").Reply(500).BodyString("overloaded")

	b := newBackend(t, "")
	_, err := b.Count(context.Background(), "app-logs", start, end, "")
	var serr *lhttp.StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 500, serr.Code)
}

func TestBackend_Schema(t *testing.T) {
	defer gock.Off()
	gock.DisableNetworking()

	gock.New(baseURL).
		Get("/api/v1/logstream/app-logs/schema").
		Reply(200).
		BodyString(`{"fields":[
			{"name":"p_timestamp","data_type":{"Timestamp":["Millisecond",null]}},
			{"name":"status","data_type":"Int64"},
			{"name":"message","data_type":"Utf8"}
		]}`)

	b := newBackend(t, "")
	schema, err := b.Schema(context.Background(), "app-logs")
	require.NoError(t, err)
	assert.Equal(t, []backend.Field{
		{Name: "p_timestamp", DataType: "Timestamp(Millisecond, None)"},
		{Name: "status", DataType: "Int64"},
		{Name: "message", DataType: "Utf8"},
	}, schema.Fields)
	assert.True(t, backend.IsTimestamp(schema.Fields[0].DataType))

	_, err = b.Schema(context.Background(), "")
	assert.ErrorIs(t, err, backend.ErrUnknownStream)
}

func TestBackend_TailNDJSON(t *testing.T) {
	defer gock.Off()
	gock.DisableNetworking()

	gock.New(baseURL).
		Get("/api/v1/logstream/app-logs/tail").
		MatchHeader("Accept", mimeNDJSON).
		Reply(200).
		SetHeader("Content-Type", mimeNDJSON).
		BodyString("{\"level\":\"info\",\"status\":200,\"latency\":1.5}\n\n[{\"level\":\"error\",\"status\":null,\"ok\":false}]\n")

	b := newBackend(t, "")
	feed, err := b.OpenStream(context.Background(), "app-logs")
	require.NoError(t, err)

	rows, err := collect(t, feed)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, backend.Row{"level": "info", "status": int64(200), "latency": 1.5}, rows[0])
	assert.Equal(t, backend.Row{"level": "error", "status": nil, "ok": false}, rows[1])
}

func TestBackend_TailNDJSONBadLine(t *testing.T) {
	defer gock.Off()
	gock.DisableNetworking()

	gock.New(baseURL).Get("/api/v1/logstream/app-logs/tail").Reply(200).
		BodyString("{\"n\":1}\n{broken\n")

	b := newBackend(t, "")
	feed, err := b.OpenStream(context.Background(), "app-logs")
	require.NoError(t, err)
	rows, err := collect(t, feed)
	assert.Len(t, rows, 1)
	assert.Error(t, err)
}

func arrowStream(t *testing.T) []byte {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "p_timestamp", Type: &arrow.TimestampType{Unit: arrow.Millisecond}},
		{Name: "level", Type: arrow.BinaryTypes.String},
		{Name: "status", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)

	bld := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer bld.Release()
	bld.Field(0).(*array.TimestampBuilder).AppendValues([]arrow.Timestamp{
		arrow.Timestamp(start.UnixMilli()),
		arrow.Timestamp(end.UnixMilli()),
	}, nil)
	bld.Field(1).(*array.StringBuilder).AppendValues([]string{"info", "error"}, nil)
	bld.Field(2).(*array.Int64Builder).AppendValues([]int64{200, 0}, []bool{true, false})
	rec := bld.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(memory.NewGoAllocator()))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestBackend_TailArrow(t *testing.T) {
	defer gock.Off()
	gock.DisableNetworking()

	gock.New(baseURL).
		Get("/api/v1/logstream/app-logs/tail").
		MatchHeader("Accept", mimeArrow).
		Reply(200).
		SetHeader("Content-Type", mimeArrow).
		Body(bytes.NewReader(arrowStream(t)))

	b := newBackend(t, FormatArrow)
	feed, err := b.OpenStream(context.Background(), "app-logs")
	require.NoError(t, err)

	rows, err := collect(t, feed)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, backend.Row{"p_timestamp": "2026-03-02T11:50:00Z", "level": "info", "status": int64(200)}, rows[0])
	assert.Equal(t, backend.Row{"p_timestamp": "2026-03-02T12:00:00Z", "level": "error", "status": nil}, rows[1])
}

func TestBackend_TailOpenError(t *testing.T) {
	defer gock.Off()
	gock.DisableNetworking()

	gock.New(baseURL).Get("/api/v1/logstream/app-logs/tail").Reply(403).BodyString("forbidden")

	b := newBackend(t, "")
	_, err := b.OpenStream(context.Background(), "app-logs")
	assert.Error(t, err)
	_, err = b.OpenStream(context.Background(), "")
	assert.ErrorIs(t, err, backend.ErrUnknownStream)
}
