// Package export writes already loaded rows as CSV or JSON. It never fetches.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bascanada/logexplorer/pkg/backend"
	jsoniter "github.com/json-iterator/go"
)

// Format is an export encoding.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
)

// ParseFormat accepts csv or json in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, JSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown export format %q (want csv or json)", s)
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Write encodes rows in format. headers fixes the CSV column order; when
// empty the sorted union of row keys is used.
func Write(w io.Writer, format Format, headers []string, rows []backend.Row) error {
	switch format {
	case CSV:
		return WriteCSV(w, headers, rows)
	case JSON:
		return WriteJSON(w, rows)
	}
	return fmt.Errorf("unknown export format %q", format)
}

// WriteCSV writes a header record followed by one record per row. Values
// are rendered as strings; missing and nil values are empty.
func WriteCSV(w io.Writer, headers []string, rows []backend.Row) error {
	if len(headers) == 0 {
		headers = Headers(rows)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	record := make([]string, len(headers))
	for _, row := range rows {
		for i, h := range headers {
			record[i] = Stringify(row[h])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the raw row array.
func WriteJSON(w io.Writer, rows []backend.Row) error {
	if rows == nil {
		rows = []backend.Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// Headers is the sorted union of keys across rows.
func Headers(rows []backend.Row) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Stringify renders a cell value.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case []byte:
		return string(val)
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
