// Package filter builds the rule tree behind the query builder UI and lowers
// it to a SQL WHERE expression. The tree has two levels: the root joins
// groups with one combinator and each group joins its rules with another.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/filter/operator"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RootID is the id of the top-level query node.
const RootID = "root"

// Combinator joins sibling rules or groups.
type Combinator string

const (
	And Combinator = "and"
	Or  Combinator = "or"
)

// ParseCombinator accepts and/or in any case, or the && / || symbols.
func ParseCombinator(s string) (Combinator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "and", "&&":
		return And, nil
	case "or", "||":
		return Or, nil
	}
	return "", fmt.Errorf("invalid combinator %q", s)
}

// SQL is the keyword emitted in WHERE clauses.
func (c Combinator) SQL() string {
	if c == Or {
		return "OR"
	}
	return "AND"
}

// ValueKind tells which member of a Value is meaningful.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueText
	ValueNumber
)

// Value is a rule operand: text, a number, or null.
type Value struct {
	Kind   ValueKind
	Text   string
	Number float64
}

// Null is the absent value.
var Null = Value{}

// Text returns a text value.
func Text(s string) Value { return Value{Kind: ValueText, Text: s} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{Kind: ValueNumber, Number: n} }

// IsEmpty is true for null and for blank text.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case ValueText:
		return strings.TrimSpace(v.Text) == ""
	case ValueNumber:
		return false
	default:
		return true
	}
}

// String renders the value as typed by a user.
func (v Value) String() string {
	switch v.Kind {
	case ValueText:
		return v.Text
	case ValueNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	default:
		return ""
	}
}

// AsNumber converts the value to a float when possible.
func (v Value) AsNumber() (float64, bool) {
	switch v.Kind {
	case ValueNumber:
		return v.Number, true
	case ValueText:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueText:
		return json.Marshal(v.Text)
	case ValueNumber:
		return json.Marshal(v.Number)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch r := raw.(type) {
	case nil:
		*v = Null
	case string:
		*v = Text(r)
	case float64:
		*v = Number(r)
	default:
		return fmt.Errorf("rule value must be a string, number or null, got %T", raw)
	}
	return nil
}

// Rule is one `field operator value` predicate.
type Rule struct {
	ID       string `json:"id"`
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    Value  `json:"value"`
}

// Complete reports whether the rule can be submitted: its operator ignores
// values or it carries a non-empty one.
func (r Rule) Complete() bool {
	return !operator.NeedsValue(r.Operator) || !r.Value.IsEmpty()
}

// RuleGroup is a flat list of rules joined by one combinator.
type RuleGroup struct {
	ID         string     `json:"id"`
	Combinator Combinator `json:"combinator"`
	Rules      []Rule     `json:"rules"`
}

// Query is the root of the rule tree.
type Query struct {
	ID         string      `json:"id"`
	Combinator Combinator  `json:"combinator"`
	Rules      []RuleGroup `json:"rules"`
}

// EmptyQuery returns a root with no groups.
func EmptyQuery() Query {
	return Query{ID: RootID, Combinator: Or, Rules: []RuleGroup{}}
}

// IsEmpty is true when the query has no rules at all.
func (q Query) IsEmpty() bool {
	for _, g := range q.Rules {
		if len(g.Rules) > 0 {
			return false
		}
	}
	return true
}

// RuleCount is the number of rules across groups.
func (q Query) RuleCount() int {
	n := 0
	for _, g := range q.Rules {
		n += len(g.Rules)
	}
	return n
}

// group returns the index of the group with id.
func (q Query) group(id string) int {
	for i, g := range q.Rules {
		if g.ID == id {
			return i
		}
	}
	return -1
}

func (g RuleGroup) rule(id string) int {
	for i, r := range g.Rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Submittable is true when every rule is complete. It never needs the backend.
func Submittable(q Query) bool {
	for _, g := range q.Rules {
		for _, r := range g.Rules {
			if !r.Complete() {
				return false
			}
		}
	}
	return true
}

// KindOf returns the operator family for a field in fields. Unknown fields
// are treated as text.
func KindOf(fields []backend.Field, name string) operator.Kind {
	k, _ := kindOf(fields, name)
	return k
}

func kindOf(fields []backend.Field, name string) (operator.Kind, bool) {
	for _, f := range fields {
		if f.Name == name {
			if backend.IsNumeric(f.DataType) {
				return operator.KindNumeric, true
			}
			return operator.KindText, true
		}
	}
	return operator.KindText, false
}

// checkOperator rejects an operator the rule's field kind does not offer. A
// field missing from the schema accepts any known operator.
func checkOperator(fields []backend.Field, r Rule) error {
	op := r.Operator
	if op == "" {
		return nil
	}
	if k, ok := kindOf(fields, r.Field); ok {
		if !operator.Supports(k, op) {
			return fmt.Errorf("%w: %q on %s field %q", ErrUnsupportedOperator, op, k, r.Field)
		}
		return nil
	}
	if !operator.Supports(operator.KindText, op) && !operator.Supports(operator.KindNumeric, op) {
		return fmt.Errorf("%w: %q on field %q", ErrUnsupportedOperator, op, r.Field)
	}
	return nil
}

// ruleKind is the field kind from the schema, or the kind of the value when
// the field is not in the schema.
func ruleKind(fields []backend.Field, r Rule) operator.Kind {
	if k, ok := kindOf(fields, r.Field); ok {
		return k
	}
	if r.Value.Kind == ValueNumber {
		return operator.KindNumeric
	}
	return operator.KindText
}

// AppliedQuery is a committed snapshot of the editor and its compiled
// WHERE expression.
type AppliedQuery struct {
	Query Query  `json:"query"`
	Where string `json:"where"`
}
