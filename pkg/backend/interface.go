// Package backend defines the collaborators the explorer engine consumes:
// query execution, row counting, schema discovery and a live row feed.
package backend

import (
	"context"
	"strings"
	"time"
)

// DefaultTimestampColumn is the event time column every stream carries.
const DefaultTimestampColumn = "p_timestamp"

// Row is one result record, column name to scalar.
type Row map[string]any

// Field describes one column of a stream.
type Field struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

// Schema is the set of fields of a stream.
type Schema struct {
	Fields []Field `json:"fields"`
}

// Names returns the field names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Lookup returns the field named name.
func (s Schema) Lookup(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// CountResult is the answer of a count request.
type CountResult struct {
	TotalCurrentCount int64 `json:"totalCurrentCount"`
}

// Executor runs a query string over [start, end].
type Executor interface {
	Execute(ctx context.Context, query string, start, end time.Time) ([]Row, error)
}

// Counter counts the rows of a stream over [start, end]. A non-empty where
// clause narrows the count to the applied filter.
type Counter interface {
	Count(ctx context.Context, stream string, start, end time.Time, where string) (CountResult, error)
}

// SchemaFetcher returns the schema of a stream.
type SchemaFetcher interface {
	Schema(ctx context.Context, stream string) (Schema, error)
}

// StreamOpener opens a continuous row feed for a stream.
type StreamOpener interface {
	OpenStream(ctx context.Context, stream string) (Feed, error)
}

// Backend bundles every collaborator.
type Backend interface {
	Executor
	Counter
	SchemaFetcher
	StreamOpener
}

var numericTypes = map[string]bool{
	"int": true, "integer": true, "uint": true, "bigint": true, "smallint": true,
	"float": true, "double": true, "real": true, "decimal": true, "numeric": true,
	"serial": true, "bigserial": true, "smallserial": true,
}

// IsNumeric reports whether a backend data type holds numbers. It knows the
// Arrow names used by the REST backend and the Postgres type names. Only the
// leading word counts, so Int64 is int and interval is not numeric.
func IsNumeric(dataType string) bool {
	t := strings.ToLower(dataType)
	end := strings.IndexFunc(t, func(r rune) bool { return r < 'a' || r > 'z' })
	if end >= 0 {
		t = t[:end]
	}
	return numericTypes[t]
}

// IsTimestamp reports whether a backend data type holds instants.
func IsTimestamp(dataType string) bool {
	t := strings.ToLower(dataType)
	return strings.HasPrefix(t, "timestamp") || strings.HasPrefix(t, "date")
}
