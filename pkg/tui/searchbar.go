// SPDX-License-Identifier: GPL-3.0-only
package tui

import (
	"sort"
	"strings"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/filter"
	"github.com/bascanada/logexplorer/pkg/filter/operator"
	"github.com/bascanada/logexplorer/pkg/query"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SearchBarStyles defines the styles for the filter bar
type SearchBarStyles struct {
	Prompt           lipgloss.Style
	ChipRule         lipgloss.Style
	ChipGroup        lipgloss.Style
	ChipSQL          lipgloss.Style
	ChipColumn       lipgloss.Style
	InputActive      lipgloss.Style
	InputInactive    lipgloss.Style
	Autocomplete     lipgloss.Style
	SuggestionItem   lipgloss.Style
	SuggestionActive lipgloss.Style
}

// DefaultSearchBarStyles returns the default styles for the filter bar
func DefaultSearchBarStyles() SearchBarStyles {
	chip := lipgloss.NewStyle().Foreground(ColorBg).Padding(0, 1).MarginRight(1)
	return SearchBarStyles{
		Prompt: lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true),
		ChipRule:   chip.Background(lipgloss.Color("62")),
		ChipGroup:  chip.Background(lipgloss.Color("99")).Italic(true),
		ChipSQL:    chip.Background(lipgloss.Color("166")),
		ChipColumn: chip.Background(ColorMuted),
		InputActive: lipgloss.NewStyle().
			Foreground(ColorText),
		InputInactive: lipgloss.NewStyle().
			Foreground(ColorMuted),
		Autocomplete: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1),
		SuggestionItem: lipgloss.NewStyle().
			Foreground(ColorText).
			Padding(0, 1),
		SuggestionActive: lipgloss.NewStyle().
			Background(ColorPrimary).
			Foreground(ColorBg).
			Padding(0, 1),
	}
}

// SearchBar edits a filter expression like `status>=500 AND level=error`.
// A leading "sql " switches to a raw statement.
type SearchBar struct {
	TextInput textinput.Model
	Styles    SearchBarStyles
	Width     int
	Focused   bool
	Chips     []Chip

	Fields      []backend.Field
	Suggestions []string
	Selected    int
}

// NewSearchBar creates a new filter bar with default settings
func NewSearchBar() SearchBar {
	ti := textinput.New()
	ti.Placeholder = "level=error AND status>=500, Tab to complete"
	ti.CharLimit = 1024

	return SearchBar{
		TextInput: ti,
		Styles:    DefaultSearchBarStyles(),
		Width:     80,
	}
}

// Focus activates the filter bar
func (s *SearchBar) Focus() tea.Cmd {
	s.Focused = true
	return s.TextInput.Focus()
}

// Blur deactivates the filter bar
func (s *SearchBar) Blur() {
	s.Focused = false
	s.TextInput.Blur()
	s.Suggestions = nil
}

// Value is the expression being edited.
func (s SearchBar) Value() string { return strings.TrimSpace(s.TextInput.Value()) }

// SetValue replaces the expression.
func (s *SearchBar) SetValue(v string) {
	s.TextInput.SetValue(v)
	s.TextInput.CursorEnd()
}

// Update handles messages for the filter bar. Tab completes the word under
// the cursor, cycling through the candidates.
func (s SearchBar) Update(msg tea.Msg) (SearchBar, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && k.Type == tea.KeyTab {
		s.complete()
		return s, nil
	}
	var cmd tea.Cmd
	s.TextInput, cmd = s.TextInput.Update(msg)
	s.Suggestions = nil
	return s, cmd
}

// lastWord splits the input at the start of the word being typed.
func lastWord(v string) (string, string) {
	i := strings.LastIndexAny(v, " (")
	return v[:i+1], v[i+1:]
}

func (s *SearchBar) complete() {
	if len(s.Suggestions) > 0 {
		s.Selected = (s.Selected + 1) % len(s.Suggestions)
	} else {
		_, word := lastWord(s.TextInput.Value())
		s.Suggestions = s.suggest(word)
		s.Selected = 0
		if len(s.Suggestions) == 0 {
			return
		}
	}
	head, _ := lastWord(s.TextInput.Value())
	s.SetValue(head + s.Suggestions[s.Selected])
}

// suggest offers field names for a bare prefix and field+operator
// completions once the prefix is a known field.
func (s SearchBar) suggest(prefix string) []string {
	var out []string
	lower := strings.ToLower(prefix)
	for _, f := range s.Fields {
		if f.Name == prefix {
			for _, op := range operator.ForKind(filter.KindOf(s.Fields, f.Name)) {
				if sym, ok := query.Symbol(op); ok {
					out = append(out, f.Name+sym)
				}
			}
			return out
		}
		if strings.HasPrefix(strings.ToLower(f.Name), lower) {
			out = append(out, f.Name)
		}
	}
	sort.Strings(out)
	return out
}

// View renders the filter bar
func (s SearchBar) View() string {
	parts := []string{s.Styles.Prompt.Render("/ ")}

	for _, chip := range s.Chips {
		parts = append(parts, s.chipStyle(chip.Type).Render(chip.Display))
	}

	switch {
	case s.Focused:
		parts = append(parts, s.Styles.InputActive.Render(s.TextInput.View()))
	case len(s.Chips) == 0:
		parts = append(parts, s.Styles.InputInactive.Render("Press / to filter..."))
	}

	line := lipgloss.JoinHorizontal(lipgloss.Center, parts...)
	if s.Focused && len(s.Suggestions) > 1 {
		return lipgloss.JoinVertical(lipgloss.Left, line, s.renderAutocomplete())
	}
	return line
}

func (s SearchBar) renderAutocomplete() string {
	const maxItems = 6
	var items []string
	for i, sug := range s.Suggestions {
		if i == maxItems {
			items = append(items, s.Styles.SuggestionItem.Foreground(ColorMuted).Render("..."))
			break
		}
		style := s.Styles.SuggestionItem
		if i == s.Selected {
			style = s.Styles.SuggestionActive
		}
		items = append(items, style.Render(sug))
	}
	return s.Styles.Autocomplete.Render(lipgloss.JoinVertical(lipgloss.Left, items...))
}

func (s SearchBar) chipStyle(t ChipType) lipgloss.Style {
	switch t {
	case ChipTypeGroup:
		return s.Styles.ChipGroup
	case ChipTypeSQL:
		return s.Styles.ChipSQL
	case ChipTypeColumn:
		return s.Styles.ChipColumn
	default:
		return s.Styles.ChipRule
	}
}
