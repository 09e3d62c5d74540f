package printer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/TylerBrock/colorjson"
	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/export"
	"github.com/bascanada/logexplorer/pkg/log"
)

var (
	levelKeys   = []string{"level", "severity", "log_level", "lvl"}
	messageKeys = []string{"message", "msg", "log", "body"}
)

var jsonExtraction = regexp.MustCompile(`{(?:[^{}]|(?P<recurse>{[^{}]*}))*}`)

// Field returns the value under key, matching case-insensitively when no
// exact key exists.
func Field(row backend.Row, key string) any {
	if v, ok := row[key]; ok {
		return v
	}
	for k, v := range row {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func firstOf(row backend.Row, keys []string) (string, string) {
	for _, k := range keys {
		if v := Field(row, k); v != nil {
			return k, export.Stringify(v)
		}
	}
	return "", ""
}

// FormatTimestamp renders an RFC 3339 string or a time in local time with
// layout. Values that are neither are returned as is.
func FormatTimestamp(v any, layout string) string {
	var ts time.Time
	switch t := v.(type) {
	case time.Time:
		ts = t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return t
		}
		ts = parsed
	case nil:
		return "N/A"
	default:
		return export.Stringify(v)
	}
	if ts.IsZero() {
		return "N/A"
	}
	return ts.Local().Format(layout)
}

// KV joins field=value pairs sorted by key.
func KV(row backend.Row, skip ...string) string {
	keys := make([]string, 0, len(row))
outer:
	for k := range row {
		for _, s := range skip {
			if strings.EqualFold(k, s) {
				continue outer
			}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]string, 0, len(keys))
	for _, k := range keys {
		items = append(items, fmt.Sprintf("%s=%s", k, export.Stringify(row[k])))
	}
	return strings.Join(items, " ")
}

// ExpandJson pretty prints the JSON objects embedded in value.
func ExpandJson(value string) string {
	f := colorjson.NewFormatter()
	f.Indent = 2
	str := ""
	for _, jsonStr := range jsonExtraction.FindAllString(value, -1) {
		var obj map[string]any
		if err := json.Unmarshal([]byte(jsonStr), &obj); err != nil {
			log.Debug("printer: skipping invalid json %q: %v", jsonStr, err)
			continue
		}
		s, err := f.Marshal(obj)
		if err != nil {
			continue
		}
		str += "\n" + string(s)
	}
	return str
}

// funcs binds the template helpers to the printer's timestamp column and
// colors.
func (p *Printer) funcs() template.FuncMap {
	return template.FuncMap{
		"Field": Field,
		"Time": func(row backend.Row, layout string) string {
			return p.colors.paint(p.colors.dim, FormatTimestamp(row[p.tsColumn], layout))
		},
		"Level": func(row backend.Row) string {
			_, lvl := firstOf(row, levelKeys)
			return p.colors.level(lvl)
		},
		"Message": func(row backend.Row) string {
			_, msg := firstOf(row, messageKeys)
			if p.regex != nil {
				if m := p.regex.FindStringSubmatch(msg); len(m) > 1 {
					msg = m[1]
				}
			}
			return msg
		},
		// KV leaves out what the other helpers already print.
		"KV": func(row backend.Row) string {
			skip := []string{p.tsColumn}
			if k, _ := firstOf(row, levelKeys); k != "" {
				skip = append(skip, k)
			}
			if k, _ := firstOf(row, messageKeys); k != "" {
				skip = append(skip, k)
			}
			return KV(row, skip...)
		},
		"AllKV":      func(row backend.Row) string { return KV(row) },
		"Format":     FormatTimestamp,
		"ExpandJson": ExpandJson,
		"Trim":       strings.TrimSpace,
	}
}
