package filter

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/filter/operator"
	"github.com/bascanada/logexplorer/pkg/store"
	"github.com/google/uuid"
)

var (
	ErrUnknownGroup   = errors.New("unknown rule group")
	ErrUnknownRule    = errors.New("unknown rule")
	ErrNotSubmittable = errors.New("query has incomplete rules")
	// ErrUnsupportedOperator is returned for an operator the field kind does
	// not offer.
	ErrUnsupportedOperator = errors.New("unsupported operator")
)

// StaleRulesError lists rules whose field is missing from the current schema.
type StaleRulesError struct {
	Fields []string
}

func (e *StaleRulesError) Error() string {
	return fmt.Sprintf("rules reference unknown fields: %s", strings.Join(e.Fields, ", "))
}

// State is what the builder publishes.
type State struct {
	Query       Query
	Applied     *AppliedQuery
	Fields      []backend.Field
	Submittable bool
	// Stale holds the ids of rules whose field left the schema. They are kept
	// until the user edits or removes them.
	Stale []string
}

// RulePatch updates selected members of a rule. A Field patch wins over the
// others: it resets the operator to the default and the value to empty.
type RulePatch struct {
	Field    *string
	Operator *string
	Value    *Value
}

// Options tune a Builder.
type Options struct {
	// AutoClearOnEmpty drops the applied query when the editor loses its
	// last rule. Defaults to true.
	AutoClearOnEmpty *bool
	// NewID generates rule and group ids. Defaults to uuid.NewString.
	NewID func() string
}

// Action is the sealed set of builder mutations.
type Action interface{ isAction() }

type (
	createGroup struct {
		groupID, ruleID, field string
	}
	addRule struct {
		groupID, ruleID, field string
	}
	deleteRule struct {
		groupID, ruleID string
		autoClear       bool
	}
	updateRule struct {
		groupID, ruleID string
		patch           RulePatch
	}
	setGroupCombinator struct {
		groupID    string
		combinator Combinator
	}
	setParentCombinator struct {
		combinator Combinator
	}
	clearQuery   struct{}
	applyQuery   struct{}
	clearApplied struct{}
	setSchema    struct {
		fields []backend.Field
	}
	loadQuery struct {
		query Query
	}
)

func (createGroup) isAction()         {}
func (addRule) isAction()             {}
func (deleteRule) isAction()          {}
func (updateRule) isAction()          {}
func (setGroupCombinator) isAction()  {}
func (setParentCombinator) isAction() {}
func (clearQuery) isAction()          {}
func (applyQuery) isAction()          {}
func (clearApplied) isAction()        {}
func (setSchema) isAction()           {}
func (loadQuery) isAction()           {}

// Builder edits a rule tree and commits it as an AppliedQuery.
type Builder struct {
	*store.Dispatcher[State, Action]
	autoClear bool
	newID     func() string
}

// NewBuilder creates an empty builder for a stream with the given fields.
func NewBuilder(fields []backend.Field, opts Options) *Builder {
	b := &Builder{autoClear: true, newID: uuid.NewString}
	if opts.AutoClearOnEmpty != nil {
		b.autoClear = *opts.AutoClearOnEmpty
	}
	if opts.NewID != nil {
		b.newID = opts.NewID
	}
	initial := finalize(State{Query: EmptyQuery(), Fields: fields})
	b.Dispatcher = store.NewDispatcher(initial, reduce)
	return b
}

// Query returns the tree being edited.
func (b *Builder) Query() Query { return b.Get().Query }

// Applied returns the committed query, nil when no filter is active.
func (b *Builder) Applied() *AppliedQuery { return b.Get().Applied }

// Submittable reports whether every rule is complete and none are stale.
func (b *Builder) Submittable() bool { return b.Get().Submittable }

// CreateRuleGroup appends a group holding one fresh rule and returns the ids.
func (b *Builder) CreateRuleGroup() (groupID, ruleID string) {
	groupID, ruleID = b.newID(), b.newID()
	b.Dispatch(createGroup{groupID: groupID, ruleID: ruleID, field: b.defaultField()})
	return groupID, ruleID
}

// AddRuleToGroup appends a fresh rule to group groupID.
func (b *Builder) AddRuleToGroup(groupID string) (string, error) {
	if b.Query().group(groupID) < 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownGroup, groupID)
	}
	ruleID := b.newID()
	b.Dispatch(addRule{groupID: groupID, ruleID: ruleID, field: b.defaultField()})
	return ruleID, nil
}

// DeleteRuleFromGroup removes a rule. A group left empty is removed; when
// the tree loses its last rule and AutoClearOnEmpty is set the applied query
// is cleared too.
func (b *Builder) DeleteRuleFromGroup(groupID, ruleID string) error {
	if err := b.check(groupID, ruleID); err != nil {
		return err
	}
	b.Dispatch(deleteRule{groupID: groupID, ruleID: ruleID, autoClear: b.autoClear})
	return nil
}

// UpdateRule applies patch to a rule.
func (b *Builder) UpdateRule(groupID, ruleID string, patch RulePatch) error {
	if err := b.check(groupID, ruleID); err != nil {
		return err
	}
	if patch.Field == nil && patch.Operator != nil {
		q := b.Query()
		g := q.Rules[q.group(groupID)]
		r := g.Rules[g.rule(ruleID)]
		r.Operator = *patch.Operator
		if err := checkOperator(b.Get().Fields, r); err != nil {
			return err
		}
	}
	b.Dispatch(updateRule{groupID: groupID, ruleID: ruleID, patch: patch})
	return nil
}

// UpdateGroupCombinator sets the combinator joining the rules of a group.
func (b *Builder) UpdateGroupCombinator(groupID string, c Combinator) error {
	if b.Query().group(groupID) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, groupID)
	}
	b.Dispatch(setGroupCombinator{groupID: groupID, combinator: c})
	return nil
}

// UpdateParentCombinator sets the combinator joining groups.
func (b *Builder) UpdateParentCombinator(c Combinator) {
	b.Dispatch(setParentCombinator{combinator: c})
}

// Clear empties the editor and drops the applied query.
func (b *Builder) Clear() {
	b.Dispatch(clearQuery{})
}

// Load replaces the editor content, typically with a parsed expression.
func (b *Builder) Load(q Query) {
	b.Dispatch(loadQuery{query: q})
}

// Apply commits the editor as the applied query. Applying an empty editor
// removes the filter and returns nil.
func (b *Builder) Apply() (*AppliedQuery, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	b.Dispatch(applyQuery{})
	return b.Applied(), nil
}

// SetSchema installs the fields of a new schema. Rules referring to fields
// no longer present are marked stale, never deleted.
func (b *Builder) SetSchema(fields []backend.Field) {
	b.Dispatch(setSchema{fields: fields})
}

// Validate returns a StaleRulesError when rules reference unknown fields,
// ErrUnsupportedOperator for an operator outside the field's vocabulary and
// ErrNotSubmittable when a rule still needs a value.
func (b *Builder) Validate() error {
	st := b.Get()
	if len(st.Stale) > 0 {
		var names []string
		for _, g := range st.Query.Rules {
			for _, r := range g.Rules {
				if slices.Contains(st.Stale, r.ID) && !slices.Contains(names, r.Field) {
					names = append(names, r.Field)
				}
			}
		}
		return &StaleRulesError{Fields: names}
	}
	for _, g := range st.Query.Rules {
		for _, r := range g.Rules {
			if err := checkOperator(st.Fields, r); err != nil {
				return err
			}
		}
	}
	if !Submittable(st.Query) {
		return ErrNotSubmittable
	}
	return nil
}

// ClearApplied drops the applied query and keeps the editor.
func (b *Builder) ClearApplied() {
	b.Dispatch(clearApplied{})
}

func (b *Builder) check(groupID, ruleID string) error {
	q := b.Query()
	gi := q.group(groupID)
	if gi < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, groupID)
	}
	if q.Rules[gi].rule(ruleID) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRule, ruleID)
	}
	return nil
}

// defaultField is the first non timestamp field of the schema.
func (b *Builder) defaultField() string {
	fields := b.Get().Fields
	for _, f := range fields {
		if f.Name != backend.DefaultTimestampColumn {
			return f.Name
		}
	}
	if len(fields) > 0 {
		return fields[0].Name
	}
	return ""
}

func newRule(id, field string) Rule {
	return Rule{ID: id, Field: field, Operator: operator.Default, Value: Text("")}
}

// reduce never mutates the slices of state; every edited level is copied so
// subscribers comparing by identity see exactly what changed.
func reduce(st State, action Action) State {
	switch a := action.(type) {
	case createGroup:
		q := st.Query
		q.Rules = append(slices.Clone(q.Rules), RuleGroup{
			ID:         a.groupID,
			Combinator: And,
			Rules:      []Rule{newRule(a.ruleID, a.field)},
		})
		st.Query = q

	case addRule:
		st.Query = editGroup(st.Query, a.groupID, func(g RuleGroup) RuleGroup {
			g.Rules = append(slices.Clone(g.Rules), newRule(a.ruleID, a.field))
			return g
		})

	case deleteRule:
		q := st.Query
		gi := q.group(a.groupID)
		if gi < 0 {
			break
		}
		g := q.Rules[gi]
		ri := g.rule(a.ruleID)
		if ri < 0 {
			break
		}
		g.Rules = slices.Delete(slices.Clone(g.Rules), ri, ri+1)
		groups := slices.Clone(q.Rules)
		if len(g.Rules) == 0 {
			groups = slices.Delete(groups, gi, gi+1)
		} else {
			groups[gi] = g
		}
		q.Rules = groups
		st.Query = q
		st.Stale = slices.DeleteFunc(slices.Clone(st.Stale), func(id string) bool { return id == a.ruleID })
		if a.autoClear && len(q.Rules) == 0 {
			st.Applied = nil
		}

	case updateRule:
		st.Query = editGroup(st.Query, a.groupID, func(g RuleGroup) RuleGroup {
			ri := g.rule(a.ruleID)
			if ri < 0 {
				return g
			}
			rules := slices.Clone(g.Rules)
			rules[ri] = patchRule(rules[ri], a.patch)
			g.Rules = rules
			return g
		})
		if a.patch.Field != nil {
			schema := backend.Schema{Fields: st.Fields}
			if _, ok := schema.Lookup(*a.patch.Field); ok {
				st.Stale = slices.DeleteFunc(slices.Clone(st.Stale), func(id string) bool { return id == a.ruleID })
			}
		}

	case setGroupCombinator:
		st.Query = editGroup(st.Query, a.groupID, func(g RuleGroup) RuleGroup {
			g.Combinator = a.combinator
			return g
		})

	case setParentCombinator:
		st.Query.Combinator = a.combinator

	case clearQuery:
		st.Query = EmptyQuery()
		st.Applied = nil
		st.Stale = nil

	case loadQuery:
		st.Query = a.query
		if st.Query.ID == "" {
			st.Query.ID = RootID
		}
		st.Stale = staleRules(st.Query, st.Fields)

	case applyQuery:
		if st.Query.IsEmpty() {
			st.Applied = nil
			break
		}
		st.Applied = &AppliedQuery{Query: st.Query, Where: ParseQuery(st.Query, st.Fields)}

	case clearApplied:
		st.Applied = nil

	case setSchema:
		st.Fields = a.fields
		st.Stale = staleRules(st.Query, a.fields)

	default:
		panic(fmt.Sprintf("filter: unhandled action %T", action))
	}
	return finalize(st)
}

func finalize(st State) State {
	st.Submittable = len(st.Stale) == 0 && Submittable(st.Query)
	return st
}

func editGroup(q Query, groupID string, edit func(RuleGroup) RuleGroup) Query {
	gi := q.group(groupID)
	if gi < 0 {
		return q
	}
	groups := slices.Clone(q.Rules)
	groups[gi] = edit(groups[gi])
	q.Rules = groups
	return q
}

func patchRule(r Rule, p RulePatch) Rule {
	if p.Field != nil {
		r.Field = *p.Field
		r.Operator = operator.Default
		r.Value = Text("")
		return r
	}
	if p.Operator != nil {
		r.Operator = *p.Operator
		if !operator.NeedsValue(r.Operator) {
			r.Value = Null
		}
	}
	if p.Value != nil {
		r.Value = *p.Value
	}
	return r
}

func staleRules(q Query, fields []backend.Field) []string {
	if len(fields) == 0 {
		return nil
	}
	s := backend.Schema{Fields: fields}
	var stale []string
	for _, g := range q.Rules {
		for _, r := range g.Rules {
			if _, ok := s.Lookup(r.Field); !ok {
				stale = append(stale, r.ID)
			}
		}
	}
	return stale
}
