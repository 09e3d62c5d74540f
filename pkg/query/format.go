package query

import (
	"strings"

	"github.com/bascanada/logexplorer/pkg/filter"
	"github.com/bascanada/logexplorer/pkg/filter/operator"
)

var operatorToSymbol = func() map[string]string {
	m := make(map[string]string, len(symbolToOperator))
	for sym, op := range symbolToOperator {
		m[op] = sym
	}
	return m
}()

// Symbol is the expression spelling of a filter operator.
func Symbol(op string) (string, bool) {
	s, ok := operatorToSymbol[op]
	return s, ok
}

// Format writes q back as an expression that Parse reads into an
// equivalent filter. Groups of several rules are parenthesized when the
// root joins more than one group.
func Format(q filter.Query) string {
	type group struct {
		text  string
		multi bool
	}
	var groups []group
	for _, g := range q.Rules {
		if len(g.Rules) == 0 {
			continue
		}
		parts := make([]string, len(g.Rules))
		for i, r := range g.Rules {
			parts[i] = FormatRule(r)
		}
		groups = append(groups, group{strings.Join(parts, " "+g.Combinator.SQL()+" "), len(parts) > 1})
	}
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.text
		if g.multi && len(groups) > 1 {
			out[i] = "(" + g.text + ")"
		}
	}
	return strings.Join(out, " "+q.Combinator.SQL()+" ")
}

// FormatRule writes one condition.
func FormatRule(r filter.Rule) string {
	field := formatField(r.Field)
	switch r.Operator {
	case operator.IsNull:
		return "missing(" + field + ")"
	case operator.IsNotNull:
		return "exists(" + field + ")"
	}
	sym, ok := Symbol(r.Operator)
	if !ok {
		sym = r.Operator
	}
	return field + sym + formatValue(r.Value)
}

func formatField(name string) string {
	for _, ch := range name {
		if !isIdentChar(ch) {
			return quote(name)
		}
	}
	return name
}

func formatValue(v filter.Value) string {
	if v.Kind == filter.ValueNumber {
		return v.String()
	}
	return quote(v.String())
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
