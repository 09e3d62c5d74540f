// Package tui is the terminal explorer: a paged table over the query
// controller, a filter bar, slot navigation and a live tail view.
package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard shortcuts
type KeyMap struct {
	// Navigation
	Up        key.Binding
	Down      key.Binding
	NextPage  key.Binding
	PrevPage  key.Binding
	FirstPage key.Binding
	LastPage  key.Binding

	// Time slots
	Locate    key.Binding
	OlderSlot key.Binding
	NewerSlot key.Binding

	// Query
	Filter      key.Binding
	ClearFilter key.Binding
	RemoveRule  key.Binding
	Combinator  key.Binding
	Sort        key.Binding
	Refresh     key.Binding

	// Columns
	ColumnLeft   key.Binding
	ColumnRight  key.Binding
	ColumnFilter key.Binding
	Pin          key.Binding

	// Live tail
	Tail key.Binding

	// Display
	ToggleDetails key.Binding

	// Actions
	Copy   key.Binding
	Cancel key.Binding
	Help   key.Binding
	Quit   key.Binding
}

// DefaultKeyMap returns the default keybindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		NextPage: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+d", "n"),
			key.WithHelp("PgDn/n", "next page"),
		),
		PrevPage: key.NewBinding(
			key.WithKeys("pgup", "ctrl+u", "p"),
			key.WithHelp("PgUp/p", "prev page"),
		),
		FirstPage: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("Home/g", "first page"),
		),
		LastPage: key.NewBinding(
			key.WithKeys("end", "G"),
			key.WithHelp("End/G", "last page"),
		),
		Locate: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "locate slots"),
		),
		OlderSlot: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "older slot"),
		),
		NewerSlot: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "newer slot"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
		ClearFilter: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "clear filter"),
		),
		RemoveRule: key.NewBinding(
			key.WithKeys("backspace"),
			key.WithHelp("⌫", "remove last rule"),
		),
		Combinator: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "toggle and/or"),
		),
		ColumnLeft: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "prev column"),
		),
		ColumnRight: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "next column"),
		),
		ColumnFilter: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "cycle column filter"),
		),
		Sort: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "flip sort"),
		),
		Pin: key.NewBinding(
			key.WithKeys("P"),
			key.WithHelp("P", "pin column"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r", "ctrl+r"),
			key.WithHelp("r", "reload/retry"),
		),
		Tail: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "live tail"),
		),
		ToggleDetails: key.NewBinding(
			key.WithKeys("enter", "d"),
			key.WithHelp("Enter/d", "toggle details"),
		),
		Copy: key.NewBinding(
			key.WithKeys("c", "y"),
			key.WithHelp("c/y", "copy row"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("Esc", "cancel"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextPage, k.Filter, k.Locate, k.Tail, k.ToggleDetails, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.NextPage, k.PrevPage, k.FirstPage, k.LastPage},
		{k.Locate, k.OlderSlot, k.NewerSlot},
		{k.Filter, k.ClearFilter, k.RemoveRule, k.Combinator, k.Sort, k.Refresh},
		{k.ColumnLeft, k.ColumnRight, k.ColumnFilter, k.Pin},
		{k.Tail, k.ToggleDetails, k.Copy, k.Cancel},
		{k.Help, k.Quit},
	}
}
