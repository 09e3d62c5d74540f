// Package postgres serves streams stored as Postgres tables. Queries go
// through sqlx on the lib/pq driver; the live tail holds a pgx connection
// that LISTENs on a channel named after the table and expects JSON row
// payloads from NOTIFY.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/backend/sqlgen"
	"github.com/bascanada/logexplorer/pkg/log"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

const driverName = "postgres"

// Options configure a Backend.
type Options struct {
	DSN             string
	TimestampColumn string
	MaxOpenConns    int
}

// Backend implements backend.Backend on a Postgres database.
type Backend struct {
	db       *sqlx.DB
	dsn      string
	tsColumn string
	// dial opens the notification connection of a tail.
	dial func(ctx context.Context, dsn string) (notifier, error)
}

var _ backend.Backend = (*Backend)(nil)

// Open connects with lib/pq. The connection is verified lazily on first use.
func Open(opts Options) (*Backend, error) {
	if opts.DSN == "" {
		return nil, errors.New("postgres backend: dsn is required")
	}
	db, err := sqlx.Open(driverName, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres backend: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	return New(db, opts), nil
}

// New wraps an open database.
func New(db *sqlx.DB, opts Options) *Backend {
	return &Backend{db: db, dsn: opts.DSN, tsColumn: opts.TimestampColumn, dial: dialPGX}
}

// Close releases the pool.
func (b *Backend) Close() error { return b.db.Close() }

// rows is the part of *sqlx.Rows the scanners use.
type rows interface {
	Next() bool
	Scan(dest ...any) error
	MapScan(dest map[string]any) error
	Close() error
	Err() error
}

// Execute implements backend.Executor. The time window is already part of
// generated queries; raw SQL is run as written.
func (b *Backend) Execute(ctx context.Context, query string, _, _ time.Time) ([]backend.Row, error) {
	log.Debug("postgres: %s", query)
	rs, err := b.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanRows(rs)
}

func scanRows(rs rows) ([]backend.Row, error) {
	defer rs.Close()
	out := []backend.Row{}
	for rs.Next() {
		m := map[string]any{}
		if err := rs.MapScan(m); err != nil {
			return nil, err
		}
		for k, v := range m {
			m[k] = normalize(v)
		}
		out = append(out, backend.Row(m))
	}
	return out, rs.Err()
}

// normalize maps driver values onto the scalars rows carry elsewhere.
func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	}
	return v
}

// Count implements backend.Counter.
func (b *Backend) Count(ctx context.Context, stream string, start, end time.Time, where string) (backend.CountResult, error) {
	query, err := sqlgen.Count(stream, b.tsColumn, start, end, where)
	if err != nil {
		return backend.CountResult{}, err
	}
	rs, err := b.db.QueryxContext(ctx, query)
	if err != nil {
		return backend.CountResult{}, err
	}
	n, err := scanCount(rs)
	if err != nil {
		return backend.CountResult{}, fmt.Errorf("count of %q: %w", stream, err)
	}
	return backend.CountResult{TotalCurrentCount: n}, nil
}

func scanCount(rs rows) (int64, error) {
	defer rs.Close()
	var n int64
	if !rs.Next() {
		if err := rs.Err(); err != nil {
			return 0, err
		}
		return 0, errors.New("no count row")
	}
	if err := rs.Scan(&n); err != nil {
		return 0, err
	}
	return n, rs.Err()
}

// Schema implements backend.SchemaFetcher from information_schema. A table
// without columns does not exist.
func (b *Backend) Schema(ctx context.Context, stream string) (backend.Schema, error) {
	query, args, err := sqlgen.Columns(stream)
	if err != nil {
		return backend.Schema{}, err
	}
	rs, err := b.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return backend.Schema{}, err
	}
	schema, err := scanColumns(rs)
	if err != nil {
		return backend.Schema{}, err
	}
	if len(schema.Fields) == 0 {
		return backend.Schema{}, fmt.Errorf("%w: %s", backend.ErrUnknownStream, stream)
	}
	return schema, nil
}

func scanColumns(rs rows) (backend.Schema, error) {
	defer rs.Close()
	schema := backend.Schema{Fields: []backend.Field{}}
	for rs.Next() {
		var f backend.Field
		if err := rs.Scan(&f.Name, &f.DataType); err != nil {
			return backend.Schema{}, err
		}
		schema.Fields = append(schema.Fields, f)
	}
	return schema, rs.Err()
}
