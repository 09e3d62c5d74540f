package filter

import (
	"strings"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/filter/operator"
)

// QuoteIdent double-quotes a column name, doubling embedded quotes, so
// reserved words and mixed case survive.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteText single-quotes a string literal.
func QuoteText(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// escapeLike escapes LIKE wildcards in a user value.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ParseQuery lowers q to a WHERE expression. Each group compiles to its rules
// joined by the group combinator and wrapped in parentheses; groups are
// joined by the root combinator. Values of numeric fields, and numbers on
// fields missing from fields, are emitted unquoted. An empty query yields "".
func ParseQuery(q Query, fields []backend.Field) string {
	groups := make([]string, 0, len(q.Rules))
	for _, g := range q.Rules {
		if s := parseGroup(g, fields); s != "" {
			groups = append(groups, s)
		}
	}
	if len(groups) == 0 {
		return ""
	}
	if len(groups) == 1 {
		return groups[0]
	}
	return strings.Join(groups, " "+q.Combinator.SQL()+" ")
}

func parseGroup(g RuleGroup, fields []backend.Field) string {
	parts := make([]string, 0, len(g.Rules))
	for _, r := range g.Rules {
		parts = append(parts, "("+CompileRule(r, ruleKind(fields, r))+")")
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " "+g.Combinator.SQL()+" ") + ")"
}

// CompileRule compiles a single rule, without the surrounding parentheses.
func CompileRule(r Rule, kind operator.Kind) string {
	col := QuoteIdent(r.Field)
	switch r.Operator {
	case operator.IsNull:
		return col + " IS NULL"
	case operator.IsNotNull:
		return col + " IS NOT NULL"
	case operator.Contains:
		return col + " LIKE " + QuoteText("%"+escapeLike(r.Value.String())+"%")
	case operator.NotContains:
		return col + " NOT LIKE " + QuoteText("%"+escapeLike(r.Value.String())+"%")
	case operator.BeginsWith:
		return col + " LIKE " + QuoteText(escapeLike(r.Value.String())+"%")
	case operator.EndsWith:
		return col + " LIKE " + QuoteText("%"+escapeLike(r.Value.String()))
	case operator.Regex:
		return col + " ~ " + QuoteText(r.Value.String())
	}

	op := r.Operator
	if op == "" {
		op = operator.Default
	}
	return col + " " + op + " " + literal(r.Value, kind)
}

// literal renders v for a field of kind. A numeric field with a value that
// doesn't parse as a number falls back to a quoted literal so the backend
// reports the type error instead of the statement becoming ambiguous.
func literal(v Value, kind operator.Kind) string {
	if kind == operator.KindNumeric {
		if n, ok := v.AsNumber(); ok {
			return Number(n).String()
		}
	}
	if v.Kind == ValueNull {
		return "NULL"
	}
	return QuoteText(v.String())
}
