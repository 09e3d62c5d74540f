// Package rest talks to a log server over its HTTP query API.
//
//	POST /api/v1/query                      {query, startTime, endTime}
//	GET  /api/v1/logstream/{stream}/schema
//	GET  /api/v1/logstream/{stream}/tail    NDJSON or Arrow IPC stream
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/backend/sqlgen"
	lhttp "github.com/bascanada/logexplorer/pkg/http"
	"github.com/bascanada/logexplorer/pkg/ty"
	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fastjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Tail formats.
const (
	FormatNDJSON = "ndjson"
	FormatArrow  = "arrow"
)

const (
	mimeNDJSON = "application/x-ndjson"
	mimeArrow  = "application/vnd.apache.arrow.stream"
)

// Options configure a Backend.
type Options struct {
	URL     string
	Auth    lhttp.Auth
	Headers ty.MS
	// TailFormat is requested from the tail endpoint. Empty asks for NDJSON
	// and decodes whatever content type comes back.
	TailFormat      string
	TimestampColumn string
}

// Backend implements backend.Backend over HTTP.
type Backend struct {
	client   lhttp.HttpClient
	format   string
	tsColumn string
	parsers  fastjson.ParserPool
}

var _ backend.Backend = (*Backend)(nil)

// New returns a backend for opts.URL.
func New(opts Options) (*Backend, error) {
	if opts.URL == "" {
		return nil, errors.New("rest backend: url is required")
	}
	switch opts.TailFormat {
	case "", FormatNDJSON, FormatArrow:
	default:
		return nil, fmt.Errorf("rest backend: unknown tail format %q", opts.TailFormat)
	}
	return &Backend{
		client:   lhttp.GetClient(opts.URL, opts.Auth, opts.Headers),
		format:   opts.TailFormat,
		tsColumn: opts.TimestampColumn,
	}, nil
}

type queryRequest struct {
	Query     string `json:"query"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Execute implements backend.Executor. The server answers either a row
// array or an object holding it under "records".
func (b *Backend) Execute(ctx context.Context, query string, start, end time.Time) ([]backend.Row, error) {
	var raw jsoniter.RawMessage
	req := queryRequest{Query: query, StartTime: formatTime(start), EndTime: formatTime(end)}
	if err := b.client.PostJson(ctx, "/api/v1/query", req, &raw); err != nil {
		return nil, err
	}
	return decodeRows(raw)
}

func decodeRows(raw []byte) ([]backend.Row, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return []backend.Row{}, nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			Records []backend.Row `json:"records"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("decoding rows: %w", err)
		}
		if wrapped.Records == nil {
			wrapped.Records = []backend.Row{}
		}
		return wrapped.Records, nil
	}
	rows := []backend.Row{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decoding rows: %w", err)
	}
	return rows, nil
}

// Count implements backend.Counter with a COUNT(*) query.
func (b *Backend) Count(ctx context.Context, stream string, start, end time.Time, where string) (backend.CountResult, error) {
	query, err := sqlgen.Count(stream, b.tsColumn, start, end, where)
	if err != nil {
		return backend.CountResult{}, err
	}
	rows, err := b.Execute(ctx, query, start, end)
	if err != nil {
		return backend.CountResult{}, err
	}
	if len(rows) == 0 {
		return backend.CountResult{}, nil
	}
	n, err := toInt64(rows[0]["count"])
	if err != nil {
		return backend.CountResult{}, fmt.Errorf("count of %q: %w", stream, err)
	}
	return backend.CountResult{TotalCurrentCount: n}, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case nil:
		return 0, errors.New("missing count column")
	}
	return 0, fmt.Errorf("unexpected count %v (%T)", v, v)
}

// Schema implements backend.SchemaFetcher. Structured data types such as
// {"Timestamp":["Millisecond",null]} are flattened to Timestamp(Millisecond, None).
func (b *Backend) Schema(ctx context.Context, stream string) (backend.Schema, error) {
	if stream == "" {
		return backend.Schema{}, backend.ErrUnknownStream
	}
	var raw jsoniter.RawMessage
	if err := b.client.Get(ctx, "/api/v1/logstream/"+url.PathEscape(stream)+"/schema", nil, &raw); err != nil {
		return backend.Schema{}, err
	}

	p := b.parsers.Get()
	defer b.parsers.Put(p)
	v, err := p.ParseBytes(raw)
	if err != nil {
		return backend.Schema{}, fmt.Errorf("decoding schema: %w", err)
	}
	schema := backend.Schema{Fields: []backend.Field{}}
	for _, f := range v.GetArray("fields") {
		schema.Fields = append(schema.Fields, backend.Field{
			Name:     string(f.GetStringBytes("name")),
			DataType: dataType(f.Get("data_type")),
		})
	}
	return schema, nil
}

func dataType(v *fastjson.Value) string {
	if v == nil {
		return ""
	}
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeObject:
		o, _ := v.Object()
		var out string
		o.Visit(func(k []byte, args *fastjson.Value) {
			var parts []string
			if args.Type() == fastjson.TypeArray {
				for _, a := range args.GetArray() {
					parts = append(parts, dataType(a))
				}
			} else {
				parts = append(parts, dataType(args))
			}
			out = string(k) + "(" + strings.Join(parts, ", ") + ")"
		})
		return out
	case fastjson.TypeNull:
		return "None"
	}
	return v.String()
}
