package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/filter/operator"
)

// MatchQuery evaluates q against a row already in memory. An empty query
// matches everything.
func MatchQuery(q Query, row backend.Row, fields []backend.Field) bool {
	if q.IsEmpty() {
		return true
	}
	for _, g := range q.Rules {
		if len(g.Rules) == 0 {
			continue
		}
		m := matchGroup(g, row, fields)
		if q.Combinator == And && !m {
			return false
		}
		if q.Combinator != And && m {
			return true
		}
	}
	return q.Combinator == And
}

func matchGroup(g RuleGroup, row backend.Row, fields []backend.Field) bool {
	for _, r := range g.Rules {
		m := MatchRule(r, row, ruleKind(fields, r))
		if g.Combinator == Or && m {
			return true
		}
		if g.Combinator != Or && !m {
			return false
		}
	}
	return g.Combinator != Or
}

// MatchRule evaluates one rule against row. Text comparisons other than
// equality and regex ignore case. A numeric comparison includes the row only
// when both sides parse as numbers and the comparison holds.
func MatchRule(r Rule, row backend.Row, kind operator.Kind) bool {
	raw, present := row[r.Field]
	if present && raw == nil {
		present = false
	}

	switch r.Operator {
	case operator.IsNull:
		return !present
	case operator.IsNotNull:
		return present
	}
	if !present {
		return r.Operator == operator.NotEquals || r.Operator == operator.NotContains
	}

	if kind == operator.KindNumeric {
		return matchNumeric(r.Operator, raw, r.Value)
	}
	return matchText(r.Operator, toString(raw), r.Value.String())
}

func matchText(op, field, value string) bool {
	lf, lv := strings.ToLower(field), strings.ToLower(value)
	switch op {
	case operator.NotEquals:
		return field != value
	case operator.Contains:
		return strings.Contains(lf, lv)
	case operator.NotContains:
		return !strings.Contains(lf, lv)
	case operator.BeginsWith:
		return strings.HasPrefix(lf, lv)
	case operator.EndsWith:
		return strings.HasSuffix(lf, lv)
	case operator.Regex:
		re, err := regexp.Compile(value)
		if err != nil {
			return false
		}
		return re.MatchString(field)
	case operator.Lt:
		return field < value
	case operator.Lte:
		return field <= value
	case operator.Gt:
		return field > value
	case operator.Gte:
		return field >= value
	default:
		return field == value
	}
}

func matchNumeric(op string, raw any, value Value) bool {
	want, ok := value.AsNumber()
	if !ok {
		return false
	}
	got, ok := toFloat(raw)
	if !ok {
		return false
	}
	switch op {
	case operator.NotEquals:
		return got != want
	case operator.Lt:
		return got < want
	case operator.Lte:
		return got <= want
	case operator.Gt:
		return got > want
	case operator.Gte:
		return got >= want
	default:
		return got == want
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case fmt.Stringer:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	}
	return 0, false
}

// toString renders a row value the way it is displayed.
func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
