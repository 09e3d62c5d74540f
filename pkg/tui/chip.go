// SPDX-License-Identifier: GPL-3.0-only
package tui

import (
	"sort"
	"strings"

	"github.com/bascanada/logexplorer/pkg/filter"
	"github.com/bascanada/logexplorer/pkg/query"
)

// ChipType categorizes what a chip shows
type ChipType int

const (
	// ChipTypeRule is a single field predicate (e.g., level = error)
	ChipTypeRule ChipType = iota
	// ChipTypeGroup is a group of several rules joined by one combinator
	ChipTypeGroup
	// ChipTypeSQL is a raw SQL statement replacing the generated query
	ChipTypeSQL
	// ChipTypeColumn is a client-side column filter on the loaded chunk
	ChipTypeColumn
)

// Chip is one committed filter component shown in the filter bar
type Chip struct {
	Type    ChipType
	Display string
}

// ruleText renders a rule the way the filter bar reads it back.
func ruleText(r filter.Rule) string {
	return query.FormatRule(r)
}

// QueryChips turns the applied filter into one chip per group, plus the
// column filters and the raw SQL statement when present.
func QueryChips(applied *filter.AppliedQuery, sql string, columns map[string]filter.Rule) []Chip {
	var chips []Chip
	if sql != "" {
		chips = append(chips, Chip{Type: ChipTypeSQL, Display: "sql: " + truncateForDisplay(sql, 40)})
	}
	if applied != nil {
		for _, g := range applied.Query.Rules {
			switch len(g.Rules) {
			case 0:
			case 1:
				chips = append(chips, Chip{Type: ChipTypeRule, Display: ruleText(g.Rules[0])})
			default:
				parts := make([]string, len(g.Rules))
				for i, r := range g.Rules {
					parts[i] = ruleText(r)
				}
				sep := " " + strings.ToUpper(string(g.Combinator)) + " "
				chips = append(chips, Chip{Type: ChipTypeGroup, Display: "(" + strings.Join(parts, sep) + ")"})
			}
		}
	}
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		chips = append(chips, Chip{Type: ChipTypeColumn, Display: "col " + ruleText(columns[name])})
	}
	return chips
}

func truncateForDisplay(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 1 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-1]) + "…"
}
