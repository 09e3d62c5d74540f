package server

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
backends:
  db:
    type: postgres
    options:
      dsn: postgres://localhost/logs?sslmode=disable
views:
  errors:
    backend: db
    stream: app-logs
    filters: ["level=error"]
    last: 1h
  audit:
    backend: db
    stream: audit
explorer:
  perPage: 25
  gaps: [1, 5]
  ceiling: 100
`

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

var testSchema = backend.Schema{Fields: []backend.Field{
	{Name: "p_timestamp", DataType: "Timestamp(Millisecond, None)"},
	{Name: "level", DataType: "Utf8"},
	{Name: "message", DataType: "Utf8"},
	{Name: "status", DataType: "Int64"},
}}

// testRows alternates error and info rows, newest first.
func testRows(n int) []backend.Row {
	rows := make([]backend.Row, n)
	for i := range rows {
		level, message := "info", fmt.Sprintf("user login %d", i)
		if i%2 == 0 {
			level, message = "error", fmt.Sprintf("payment failed %d", i)
		}
		rows[i] = backend.Row{
			"p_timestamp": testNow.Add(-time.Duration(i) * time.Minute).Format(time.RFC3339),
			"level":       level,
			"message":     message,
			"status":      int64(200 + i),
		}
	}
	return rows
}

func pick(rows []backend.Row, q string) []backend.Row {
	if !strings.Contains(q, `"level" = 'error'`) {
		return rows
	}
	var out []backend.Row
	for _, r := range rows {
		if r["level"] == "error" {
			out = append(out, r)
		}
	}
	return out
}

func newMockBackend(rows []backend.Row) *backend.MockBackend {
	return &backend.MockBackend{
		OnSchema: func(string) (backend.Schema, error) { return testSchema, nil },
		OnCount: func(_ string, _, _ time.Time, where string) (backend.CountResult, error) {
			return backend.CountResult{TotalCurrentCount: int64(len(pick(rows, where)))}, nil
		},
		OnExecute: func(q string, _, _ time.Time) ([]backend.Row, error) {
			return pick(rows, q), nil
		},
	}
}

type mockFactory struct {
	b backend.Backend
}

func (f mockFactory) Get(name string) (backend.Backend, error) {
	if name != "db" {
		return nil, fmt.Errorf("no backend named %s", name)
	}
	return f.b, nil
}

func newTestServer(t *testing.T, mb *backend.MockBackend) *Server {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig), ".yaml")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer("localhost", "0", cfg, mockFactory{b: mb}, logger)
	s.now = func() time.Time { return testNow }
	return s
}

// do sends a request through the full middleware chain.
func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, newMockBackend(nil))

	rr := do(t, s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code, "handler returned wrong status code")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String(), "handler returned unexpected body")
}

func TestViewsHandler(t *testing.T) {
	s := newTestServer(t, newMockBackend(nil))

	rr := do(t, s, http.MethodGet, "/views", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[ViewsResponse](t, rr)
	require.Len(t, resp.Views, 2)
	assert.Equal(t, "audit", resp.Views[0].Name)
	assert.Equal(t, "errors", resp.Views[1].Name)
	assert.Equal(t, []string{"level=error"}, resp.Views[1].Filters)

	rr = do(t, s, http.MethodGet, "/views/errors", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	v := decode[ViewInfo](t, rr)
	assert.Equal(t, "app-logs", v.Stream)
	assert.Equal(t, "1h", v.Last)

	rr = do(t, s, http.MethodGet, "/views/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, ErrCodeViewNotFound, decode[APIError](t, rr).Code)
}

func TestQueryHandler_View(t *testing.T) {
	mb := newMockBackend(testRows(8))
	s := newTestServer(t, mb)

	rr := do(t, s, http.MethodPost, "/query", QueryRequest{Target: Target{View: "errors"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[QueryResponse](t, rr)
	require.Len(t, resp.Rows, 4)
	for _, row := range resp.Rows {
		assert.Equal(t, "error", row["level"])
	}
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 25, resp.PerPage)
	assert.Equal(t, int64(4), resp.TotalCount)
	assert.Contains(t, resp.Where, `"level" = 'error'`)
	assert.Equal(t, "errors", resp.Meta.ViewUsed)
	assert.Equal(t, "app-logs", resp.Meta.Stream)
	assert.Equal(t, 4, resp.Meta.ResultCount)
	assert.Equal(t, 1, mb.CountCalls())
}

func TestQueryHandler_Paging(t *testing.T) {
	s := newTestServer(t, newMockBackend(testRows(8)))

	rr := do(t, s, http.MethodPost, "/query", QueryRequest{
		Target:  Target{Backend: "db", Stream: "app-logs"},
		Page:    2,
		PerPage: 3,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[QueryResponse](t, rr)
	require.Len(t, resp.Rows, 3)
	assert.Equal(t, "user login 3", resp.Rows[0]["message"])
	assert.Equal(t, "user login 5", resp.Rows[2]["message"])
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 3, resp.TotalPages)
	assert.Empty(t, resp.Where)
}

func TestQueryHandler_SQL(t *testing.T) {
	mb := newMockBackend(testRows(3))
	s := newTestServer(t, mb)

	rr := do(t, s, http.MethodPost, "/query", QueryRequest{
		Target: Target{Backend: "db", Stream: "app-logs"},
		SQL:    `SELECT * FROM "app-logs"`,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, decode[QueryResponse](t, rr).Rows, 3)
	assert.Equal(t, 0, mb.CountCalls())
}

func TestQueryHandler_Errors(t *testing.T) {
	schemaDown := newMockBackend(nil)
	schemaDown.OnSchema = func(string) (backend.Schema, error) { return backend.Schema{}, fmt.Errorf("connection refused") }
	queryDown := newMockBackend(nil)
	queryDown.OnExecute = func(string, time.Time, time.Time) ([]backend.Row, error) { return nil, fmt.Errorf("timeout") }

	tests := []struct {
		name   string
		mb     *backend.MockBackend
		body   interface{}
		status int
		code   string
		op     string
	}{
		{name: "invalid body", body: "nope", status: http.StatusBadRequest, code: ErrCodeInvalidQuery},
		{name: "no target", body: QueryRequest{}, status: http.StatusBadRequest, code: ErrCodeValidationError},
		{name: "negative page", body: QueryRequest{Target: Target{View: "errors"}, Page: -1}, status: http.StatusBadRequest, code: ErrCodeValidationError},
		{name: "sql with filters", body: QueryRequest{Target: Target{View: "errors"}, SQL: "SELECT 1", Filters: []string{"a=1"}}, status: http.StatusBadRequest, code: ErrCodeValidationError},
		{name: "unknown view", body: QueryRequest{Target: Target{View: "nope"}}, status: http.StatusNotFound, code: ErrCodeViewNotFound},
		{name: "no stream", body: QueryRequest{Target: Target{Backend: "db"}}, status: http.StatusBadRequest, code: ErrCodeValidationError},
		{name: "unknown backend", body: QueryRequest{Target: Target{Backend: "other", Stream: "x"}}, status: http.StatusBadRequest, code: ErrCodeConfigError},
		{name: "bad sort", body: QueryRequest{Target: Target{View: "errors"}, Sort: "status:up"}, status: http.StatusBadRequest, code: ErrCodeInvalidQuery},
		{name: "bad filter", body: QueryRequest{Target: Target{View: "errors"}, Filters: []string{"level"}}, status: http.StatusBadRequest, code: ErrCodeInvalidQuery},
		{name: "bad range", body: QueryRequest{Target: Target{View: "errors"}, Window: Window{Last: "soon"}}, status: http.StatusBadRequest, code: ErrCodeInvalidQuery},
		{name: "schema failure", mb: schemaDown, body: QueryRequest{Target: Target{View: "errors"}}, status: http.StatusBadGateway, code: ErrCodeBackendError, op: "schema"},
		{name: "query failure", mb: queryDown, body: QueryRequest{Target: Target{View: "errors"}}, status: http.StatusBadGateway, code: ErrCodeBackendError, op: "query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mb := tt.mb
			if mb == nil {
				mb = newMockBackend(testRows(2))
			}
			s := newTestServer(t, mb)

			rr := do(t, s, http.MethodPost, "/query", tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			apiErr := decode[APIError](t, rr)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.NotEmpty(t, apiErr.Message)
			if tt.op != "" {
				assert.Equal(t, tt.op, apiErr.Details["operation"])
			}
		})
	}
}

func TestQueryHandler_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, newMockBackend(nil))
	rr := do(t, s, http.MethodGet, "/query", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestFieldsHandler(t *testing.T) {
	s := newTestServer(t, newMockBackend(testRows(4)))

	rr := do(t, s, http.MethodPost, "/fields", QueryRequest{Target: Target{Backend: "db", Stream: "app-logs"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[FieldsResponse](t, rr)
	assert.Equal(t, testSchema.Fields, resp.Fields)
	assert.Equal(t, []string{"error", "info"}, resp.Values["level"])
	assert.Len(t, resp.Values["message"], 4)
	assert.Equal(t, 4, resp.Meta.ResultCount)
}

func TestSlotsHandler(t *testing.T) {
	s := newTestServer(t, newMockBackend(testRows(8)))

	rr := do(t, s, http.MethodPost, "/slots", SlotsRequest{
		Target: Target{Backend: "db", Stream: "app-logs"},
		Window: Window{From: "2026-03-02T11:00:00Z", To: "2026-03-02T12:00:00Z"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[SlotsResponse](t, rr)
	assert.Equal(t, "5m0s", resp.Gap)
	assert.True(t, resp.Exhausted)
	require.Len(t, resp.Slots, 12)
	assert.Equal(t, 1, resp.Slots[0].ID)
	assert.True(t, resp.Slots[0].End.Equal(testNow))
	assert.True(t, resp.Slots[0].Start.Equal(testNow.Add(-5*time.Minute)))
	assert.True(t, resp.Slots[11].Start.Equal(testNow.Add(-time.Hour)))
}

func TestSlotsHandler_CountFailure(t *testing.T) {
	mb := newMockBackend(nil)
	mb.OnCount = func(string, time.Time, time.Time, string) (backend.CountResult, error) {
		return backend.CountResult{}, fmt.Errorf("boom")
	}
	s := newTestServer(t, mb)

	rr := do(t, s, http.MethodPost, "/slots", SlotsRequest{Target: Target{View: "errors"}})
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	apiErr := decode[APIError](t, rr)
	assert.Equal(t, ErrCodeBackendError, apiErr.Code)
	assert.Equal(t, "count", apiErr.Details["operation"])

	rr = do(t, s, http.MethodPost, "/slots", SlotsRequest{Target: Target{View: "errors"}, More: -1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMiddleware(t *testing.T) {
	s := newTestServer(t, newMockBackend(nil))
	s.router.HandleFunc("GET /panic", func(http.ResponseWriter, *http.Request) { panic("boom") })

	t.Run("request id is assigned", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, "/health", nil)
		assert.NotEmpty(t, rr.Header().Get(requestIDHeader))
	})

	t.Run("request id is kept", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(requestIDHeader, "abc-123")
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)
		assert.Equal(t, "abc-123", rr.Header().Get(requestIDHeader))
	})

	t.Run("cors preflight", func(t *testing.T) {
		rr := do(t, s, http.MethodOptions, "/query", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("panic is recovered", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, "/panic", nil)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "INTERNAL_SERVER_ERROR", decode[APIError](t, rr).Code)
	})
}

func TestOpenAPIHandler(t *testing.T) {
	s := newTestServer(t, newMockBackend(nil))
	rr := do(t, s, http.MethodGet, "/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "/tail:")
	assert.Equal(t, "application/yaml", rr.Header().Get("Content-Type"))
}
