// Package sqlgen composes the SELECT and COUNT statements sent to backends,
// in the postgres dialect understood by both bundled backends.
package sqlgen

import (
	"errors"
	"time"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
)

const dialectPostgres = "postgres"

// Select describes a page query over a time window.
type Select struct {
	Stream          string
	TimestampColumn string
	Start, End      time.Time
	// Where is an already compiled filter expression, may be empty.
	Where      string
	SortColumn string
	Descending bool
	Limit      int
	Offset     int
}

func window(ds *goqu.SelectDataset, column string, start, end time.Time, where string) *goqu.SelectDataset {
	if column == "" {
		column = backend.DefaultTimestampColumn
	}
	if !start.IsZero() {
		ds = ds.Where(goqu.I(column).Gte(start.UTC()))
	}
	if !end.IsZero() {
		ds = ds.Where(goqu.I(column).Lt(end.UTC()))
	}
	if where != "" {
		ds = ds.Where(goqu.L(where))
	}
	return ds
}

// SQL renders the statement.
func (s Select) SQL() (string, error) {
	if s.Stream == "" {
		return "", errors.Join(backend.ErrBuildQuery, backend.ErrUnknownStream)
	}
	ds := window(goqu.Dialect(dialectPostgres).From(goqu.T(s.Stream)), s.TimestampColumn, s.Start, s.End, s.Where)
	if s.SortColumn != "" {
		ds = ds.Order(order(s.SortColumn, s.Descending))
	}
	if s.Limit > 0 {
		ds = ds.Limit(uint(s.Limit))
	}
	if s.Offset > 0 {
		ds = ds.Offset(uint(s.Offset))
	}
	sql, _, err := ds.ToSQL()
	if err != nil {
		return "", errors.Join(backend.ErrBuildQuery, err)
	}
	return sql, nil
}

func order(column string, desc bool) exp.OrderedExpression {
	if desc {
		return goqu.I(column).Desc()
	}
	return goqu.I(column).Asc()
}

// Count renders `SELECT COUNT(*) AS "count"` over the same window.
func Count(stream, timestampColumn string, start, end time.Time, where string) (string, error) {
	if stream == "" {
		return "", errors.Join(backend.ErrBuildQuery, backend.ErrUnknownStream)
	}
	ds := goqu.Dialect(dialectPostgres).
		From(goqu.T(stream)).
		Select(goqu.COUNT(goqu.Star()).As("count"))
	sql, _, err := window(ds, timestampColumn, start, end, where).ToSQL()
	if err != nil {
		return "", errors.Join(backend.ErrBuildQuery, err)
	}
	return sql, nil
}

// Columns renders the information_schema lookup of a table's columns.
func Columns(table string) (string, []any, error) {
	sql, args, err := goqu.Dialect(dialectPostgres).
		From(goqu.T("columns").Schema("information_schema")).
		Select("column_name", "data_type").
		Where(goqu.C("table_name").Eq(table)).
		Order(goqu.C("ordinal_position").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return "", nil, errors.Join(backend.ErrBuildQuery, err)
	}
	return sql, args, nil
}
