package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/filter"
	"github.com/bascanada/logexplorer/pkg/filter/operator"
	"github.com/bascanada/logexplorer/pkg/query"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var filterCommand = &cobra.Command{
	Use:   "filter [expression]",
	Short: "Build a filter and print the WHERE clause it compiles to",
	Long: `Compile a filter expression, or build one rule by rule in an interactive
form, and print both the expression and the WHERE clause sent to the backend.

With --view or --backend the stream schema types the fields: numeric
columns compare unquoted and rules on unknown fields are rejected.

Examples:
  logexplorer filter 'level=error and (status>=500 or msg~=timeout)'
  logexplorer filter -i errors`,
	Args:   cobra.MaximumNArgs(1),
	PreRun: onCommandStart,
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := filterFields(cmd)
		if err != nil {
			return err
		}
		b := filter.NewBuilder(fields, filter.Options{})
		if len(args) == 1 {
			q, err := query.Parse(args[0])
			if err != nil {
				return err
			}
			b.Load(q)
		} else if err := buildInteractively(b, fields); err != nil {
			return err
		}

		applied, err := b.Apply()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if applied == nil {
			fmt.Fprintln(out, "no filter")
			return nil
		}
		fmt.Fprintf(out, "expression: %s\n", query.Format(applied.Query))
		fmt.Fprintf(out, "where:      %s\n", applied.Where)
		return nil
	},
}

// filterFields fetches the schema when a target is selected.
func filterFields(cmd *cobra.Command) ([]backend.Field, error) {
	if viewName == "" && backendName == "" {
		return nil, nil
	}
	t, err := resolveTarget()
	if err != nil {
		return nil, err
	}
	schema, err := t.backend.Schema(cmd.Context(), t.view.Stream)
	if err != nil {
		return nil, err
	}
	return schema.Fields, nil
}

// buildInteractively asks for rules until the user stops, one group per
// rule joined by the chosen combinator.
func buildInteractively(b *filter.Builder, fields []backend.Field) error {
	var combinator = string(filter.And)
	for first := true; ; first = false {
		groupID, ruleID := b.CreateRuleGroup()
		rule, err := askRule(fields)
		if err != nil {
			return err
		}
		// A field change resets the rule, so the operator and value follow.
		if err := b.UpdateRule(groupID, ruleID, filter.RulePatch{Field: &rule.Field}); err != nil {
			return err
		}
		patch := filter.RulePatch{Operator: &rule.Operator}
		if operator.NeedsValue(rule.Operator) {
			patch.Value = &rule.Value
		}
		if err := b.UpdateRule(groupID, ruleID, patch); err != nil {
			return err
		}

		more := false
		group := []huh.Field{
			huh.NewConfirm().Title("Add another rule?").Value(&more),
		}
		if first {
			group = append(group, huh.NewSelect[string]().
				Title("Join rules with").
				Options(huh.NewOption("all rules match (and)", string(filter.And)), huh.NewOption("any rule matches (or)", string(filter.Or))).
				Value(&combinator))
		}
		if err := huh.NewForm(huh.NewGroup(group...)).Run(); err != nil {
			return err
		}
		if !more {
			c, err := filter.ParseCombinator(combinator)
			if err != nil {
				return err
			}
			b.UpdateParentCombinator(c)
			return nil
		}
	}
}

func askRule(fields []backend.Field) (filter.Rule, error) {
	var r filter.Rule
	var fieldInput huh.Field
	if len(fields) > 0 {
		opts := make([]huh.Option[string], 0, len(fields))
		for _, f := range fields {
			opts = append(opts, huh.NewOption(fmt.Sprintf("%s (%s)", f.Name, f.DataType), f.Name))
		}
		fieldInput = huh.NewSelect[string]().Title("Field").Options(opts...).Value(&r.Field)
	} else {
		fieldInput = huh.NewInput().Title("Field").Value(&r.Field).Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("field cannot be empty")
			}
			return nil
		})
	}
	if err := huh.NewForm(huh.NewGroup(fieldInput)).Run(); err != nil {
		return r, err
	}

	kind := filter.KindOf(fields, r.Field)
	ops := operator.ForKind(kind)
	opOptions := make([]huh.Option[string], 0, len(ops))
	for _, op := range ops {
		opOptions = append(opOptions, huh.NewOption(operator.Label(op), op))
	}
	r.Operator = operator.Default
	if err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().Title("Operator").Options(opOptions...).Value(&r.Operator),
	)).Run(); err != nil {
		return r, err
	}
	if !operator.NeedsValue(r.Operator) {
		return r, nil
	}

	var raw string
	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Value").Value(&raw).Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("value cannot be empty")
			}
			if kind == operator.KindNumeric {
				if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
					return fmt.Errorf("%s is numeric", r.Field)
				}
			}
			return nil
		}),
	)).Run(); err != nil {
		return r, err
	}
	r.Value = ruleValue(kind, raw)
	return r, nil
}

func ruleValue(kind operator.Kind, raw string) filter.Value {
	raw = strings.TrimSpace(raw)
	if kind == operator.KindNumeric {
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return filter.Number(n)
		}
	}
	return filter.Text(raw)
}

func init() {
	addTargetFlags(filterCommand)
}
