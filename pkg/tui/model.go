// SPDX-License-Identifier: GPL-3.0-only
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/TylerBrock/colorjson"
	"github.com/atotto/clipboard"
	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/columns"
	"github.com/bascanada/logexplorer/pkg/config"
	"github.com/bascanada/logexplorer/pkg/explorer"
	"github.com/bascanada/logexplorer/pkg/export"
	"github.com/bascanada/logexplorer/pkg/filter"
	"github.com/bascanada/logexplorer/pkg/filter/operator"
	"github.com/bascanada/logexplorer/pkg/livetail"
	"github.com/bascanada/logexplorer/pkg/log"
	"github.com/bascanada/logexplorer/pkg/query"
	"github.com/bascanada/logexplorer/pkg/store"
	"github.com/bascanada/logexplorer/pkg/timeslot"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FocusMode represents which component has focus
type FocusMode int

const (
	FocusList FocusMode = iota
	FocusSearch
)

// Mode is what the table shows
type Mode int

const (
	// ModeQuery pages through the controller results
	ModeQuery Mode = iota
	// ModeTail shows the live tail buffer, newest first
	ModeTail
)

// Engine groups the state machines behind one explorer view.
type Engine struct {
	Ctrl    *explorer.Controller
	Builder *filter.Builder
	Locator *timeslot.Locator
	Tail    *livetail.Session
}

// Options configure the model. The controller is expected to have its
// stream, range and filter set already.
type Options struct {
	Title   string
	Refresh time.Duration
}

// LoadedMsg is sent when a controller operation finished
type LoadedMsg struct {
	Err error
}

// SlotsMsg is sent when the locator settled or failed
type SlotsMsg struct {
	Slots []timeslot.Slot
	Err   error
}

// ChangedMsg is sent when one of the engine stores changed
type ChangedMsg struct{}

// ConfigReloadedMsg carries the explorer settings of a reloaded config file
type ConfigReloadedMsg struct {
	Explorer config.Explorer
}

// ClearStatusMsg is sent to clear status messages
type ClearStatusMsg struct{}

// Model is the main TUI state
type Model struct {
	// Window dimensions
	Width  int
	Height int

	Engine Engine
	Opts   Options

	// UI State
	Mode           Mode
	Focus          FocusMode
	Cursor         int
	ViewOffset     int
	DetailsVisible bool
	ShowHelp       bool
	Message        string
	IsError        bool

	// Column is the selected header, index into Layout.Visible()
	Column int

	// Slot navigation, index into Locator.Slots()
	SlotIndex int
	// Page of the tail buffer, 1-based
	TailPage int

	// Components
	SearchBar SearchBar
	StatusBar StatusBar
	Details   viewport.Model

	// Styling
	Styles Styles
	Keys   KeyMap

	ctx     context.Context
	cancel  context.CancelFunc
	scope   *store.Scope
	changes chan struct{}
	// tailing gates tail row notifications; shared by every copy of the model.
	tailing *atomic.Bool
}

// controllerView is the part of the controller state the screen renders.
type controllerView struct {
	Status        explorer.Status
	Stream        string
	Window        explorer.PageWindow
	Layout        columns.Layout
	Applied       *filter.AppliedQuery
	SQL           string
	ColumnFilters map[string]filter.Rule
	Sort          explorer.Sort
	Err           error
}

func viewOfController(s explorer.State) controllerView {
	return controllerView{
		Status:        s.Status,
		Stream:        s.Stream,
		Window:        s.Window,
		Layout:        s.Layout,
		Applied:       s.Applied,
		SQL:           s.SQL,
		ColumnFilters: s.ColumnFilters,
		Sort:          s.Sort,
		Err:           s.Err,
	}
}

type tailView struct {
	State  livetail.State
	Stream string
	Err    error
	Search string
	Column *filter.Rule
}

func viewOfTail(s livetail.Status) tailView {
	return tailView{State: s.State, Stream: s.Stream, Err: s.Err, Search: s.Search, Column: s.Column}
}

type locatorView struct {
	Gap       time.Duration
	Slots     []timeslot.Slot
	Exhausted bool
	Frozen    bool
	Err       error
}

func viewOfLocator(s timeslot.State) locatorView {
	return locatorView{Gap: s.Gap, Slots: s.Slots, Exhausted: s.Exhausted, Frozen: s.Frozen, Err: s.Err}
}

// New creates a new TUI model over engine.
func New(engine Engine, opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		Width:     80,
		Height:    24,
		Engine:    engine,
		Opts:      opts,
		TailPage:  1,
		SearchBar: NewSearchBar(),
		StatusBar: NewStatusBar(),
		Details:   viewport.New(80, 8),
		Styles:    DefaultStyles(),
		Keys:      DefaultKeyMap(),
		ctx:       ctx,
		cancel:    cancel,
		scope:     store.NewScope(),
		changes:   make(chan struct{}, 1),
		tailing:   new(atomic.Bool),
	}

	changes, tailing := m.changes, m.tailing
	notify := func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}
	store.Watch(m.scope, engine.Ctrl.Store(), viewOfController, func(controllerView) { notify() }, nil)
	if engine.Tail != nil {
		store.Watch(m.scope, engine.Tail.Store(), viewOfTail, func(tailView) { notify() }, nil)
		// Rows only matter while the tail is on screen.
		store.Watch(m.scope, engine.Tail.Store(), livetail.Status.Progress, func(livetail.Progress) {
			if tailing.Load() {
				notify()
			}
		}, nil)
	}
	if engine.Locator != nil {
		store.Watch(m.scope, engine.Locator.Store(), viewOfLocator, func(locatorView) { notify() }, nil)
	}
	m.sync()
	return m
}

// Init starts the first load and the refresh loop
func (m Model) Init() tea.Cmd {
	log.Debug("tui: init stream=%s refresh=%s", m.Engine.Ctrl.State().Stream, m.Opts.Refresh)
	if m.Opts.Refresh > 0 {
		m.Engine.Ctrl.StartRefresh(m.ctx, m.Opts.Refresh, func(err error) {
			log.Warn("tui: refresh failed: %v", err)
		})
	}
	return tea.Batch(m.loadCmd(), m.waitForChange())
}

// waitForChange blocks until a store notifies or the model quits
func (m Model) waitForChange() tea.Cmd {
	ctx, ch := m.ctx, m.changes
	return func() tea.Msg {
		select {
		case <-ch:
			return ChangedMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

// run wraps a blocking controller call into a command
func (m Model) run(op func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return LoadedMsg{Err: op(ctx)}
	}
}

func (m Model) loadCmd() tea.Cmd {
	return m.run(m.Engine.Ctrl.Load)
}

func (m Model) locateCmd() tea.Cmd {
	ctx, loc := m.ctx, m.Engine.Locator
	st := m.Engine.Ctrl.State()
	where := ""
	if st.Applied != nil {
		where = st.Applied.Where
	}
	end := st.End
	if end.IsZero() {
		end = time.Now()
	}
	r := timeslot.Range{Stream: st.Stream, Start: st.Start, End: end, Filter: where}
	return func() tea.Msg {
		loc.Reset(r)
		slots, err := loc.Locate(ctx)
		return SlotsMsg{Slots: slots, Err: err}
	}
}

// Update handles every message of the program
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.updateSizes()

	case tea.KeyMsg:
		if m.Focus == FocusSearch {
			return m.handleSearchInput(msg)
		}
		return m.handleKeyPress(msg)

	case LoadedMsg:
		if msg.Err != nil && !errors.Is(msg.Err, backend.ErrStaleResponse) && !errors.Is(msg.Err, context.Canceled) {
			cmds = append(cmds, m.showError(msg.Err))
		}
		st := m.Engine.Ctrl.State()
		m.Engine.Builder.SetSchema(st.Schema.Fields)
		m.SearchBar.Fields = st.Schema.Fields
		if m.Engine.Tail != nil {
			m.Engine.Tail.SetFields(st.Schema.Fields)
		}

	case SlotsMsg:
		if msg.Err != nil {
			if !errors.Is(msg.Err, backend.ErrStaleResponse) {
				cmds = append(cmds, m.showError(msg.Err))
			}
			break
		}
		if len(msg.Slots) == 0 {
			cmds = append(cmds, m.showStatusMessage("No slot in range"))
			break
		}
		m.SlotIndex = 0
		cmds = append(cmds, m.showSlot(msg.Slots[0]))

	case ChangedMsg:
		cmds = append(cmds, m.waitForChange())

	case ConfigReloadedMsg:
		cmds = append(cmds, m.applyConfig(msg.Explorer))

	case ClearStatusMsg:
		m.Message = ""
		m.IsError = false
	}

	m.sync()
	return m, tea.Batch(cmds...)
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	ctrl := m.Engine.Ctrl
	st := ctrl.State()

	switch {
	case key.Matches(msg, m.Keys.Quit):
		m.cleanup()
		return m, tea.Quit

	case key.Matches(msg, m.Keys.Help):
		m.ShowHelp = !m.ShowHelp

	case key.Matches(msg, m.Keys.Cancel):
		m.DetailsVisible = false
		m.ShowHelp = false

	case key.Matches(msg, m.Keys.Up):
		m.moveCursor(-1)

	case key.Matches(msg, m.Keys.Down):
		m.moveCursor(1)

	case key.Matches(msg, m.Keys.NextPage):
		cmd = m.goToPage(m.currentWindow().Page + 1)

	case key.Matches(msg, m.Keys.PrevPage):
		cmd = m.goToPage(m.currentWindow().Page - 1)

	case key.Matches(msg, m.Keys.FirstPage):
		cmd = m.goToPage(1)

	case key.Matches(msg, m.Keys.LastPage):
		cmd = m.goToPage(m.currentWindow().TotalPages)

	case key.Matches(msg, m.Keys.Filter):
		m.Focus = FocusSearch
		m.SearchBar.SetValue(m.currentExpression())
		cmd = m.SearchBar.Focus()

	case key.Matches(msg, m.Keys.ClearFilter):
		if m.Mode == ModeTail {
			m.Engine.Tail.SetSearch("")
			m.Engine.Tail.SetColumnFilter(nil)
			break
		}
		m.Engine.Builder.Clear()
		if st.Applied == nil && st.SQL == "" {
			break
		}
		ctrl.ApplyFilter(nil)
		cmd = m.loadCmd()

	case key.Matches(msg, m.Keys.Sort):
		if m.Mode == ModeTail {
			break
		}
		column, order := st.Sort.Column, explorer.Asc
		if column == "" {
			column = ctrl.DefaultSort().Column
		}
		if st.Sort.Order == explorer.Asc {
			order = explorer.Desc
		}
		cmd = m.run(func(ctx context.Context) error { return ctrl.Sort(ctx, column, order) })

	case key.Matches(msg, m.Keys.ColumnLeft):
		m.Column = max(m.Column-1, 0)

	case key.Matches(msg, m.Keys.ColumnRight):
		m.Column = min(m.Column+1, max(len(st.Layout.Visible())-1, 0))

	case key.Matches(msg, m.Keys.ColumnFilter):
		if m.Mode == ModeTail {
			break
		}
		cmd = m.cycleColumnFilter()

	case key.Matches(msg, m.Keys.RemoveRule):
		if m.Mode == ModeTail {
			break
		}
		cmd = m.removeLastRule()

	case key.Matches(msg, m.Keys.Combinator):
		if m.Mode == ModeTail {
			break
		}
		cmd = m.toggleCombinator()

	case key.Matches(msg, m.Keys.Pin):
		name, ok := m.selectedColumn()
		if !ok {
			break
		}
		err := ctrl.UpdateLayout(func(l columns.Layout) (columns.Layout, error) {
			if l.IsPinned(name) {
				return l.Unpin(name)
			}
			return l.Pin(name)
		})
		if err != nil {
			cmd = m.showError(err)
		}

	case key.Matches(msg, m.Keys.Refresh):
		if m.Mode == ModeTail {
			break
		}
		if st.Status == explorer.Errored {
			cmd = m.run(ctrl.Retry)
		} else {
			cmd = m.loadCmd()
		}

	case key.Matches(msg, m.Keys.Locate):
		if m.Engine.Locator == nil || m.Mode == ModeTail {
			break
		}
		cmd = tea.Batch(m.showStatusMessage("Locating slots..."), m.locateCmd())

	case key.Matches(msg, m.Keys.OlderSlot):
		cmd = m.stepSlot(1)

	case key.Matches(msg, m.Keys.NewerSlot):
		cmd = m.stepSlot(-1)

	case key.Matches(msg, m.Keys.Tail):
		cmd = m.toggleTail()

	case key.Matches(msg, m.Keys.ToggleDetails):
		m.DetailsVisible = !m.DetailsVisible
		m.updateSizes()

	case key.Matches(msg, m.Keys.Copy):
		cmd = m.copyRowToClipboard()
	}

	m.sync()
	return m, cmd
}

func (m Model) handleSearchInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.Focus = FocusList
		m.SearchBar.Blur()
		m.sync()
		return m, nil

	case tea.KeyEnter:
		value := m.SearchBar.Value()
		m.Focus = FocusList
		m.SearchBar.Blur()
		var cmd tea.Cmd
		if m.Mode == ModeTail {
			cmd = m.submitTailSearch(value)
		} else {
			cmd = m.submitFilter(value)
		}
		m.sync()
		return m, cmd
	}

	var cmd tea.Cmd
	m.SearchBar, cmd = m.SearchBar.Update(msg)
	return m, cmd
}

// submitFilter commits an expression. "sql <statement>" switches to raw
// SQL; an empty expression removes the filter.
func (m *Model) submitFilter(value string) tea.Cmd {
	ctrl, b := m.Engine.Ctrl, m.Engine.Builder

	if len(value) > 4 && strings.EqualFold(value[:4], "sql ") {
		ctrl.SetSQL(strings.TrimSpace(value[4:]))
		return m.loadCmd()
	}

	q := filter.EmptyQuery()
	if value != "" {
		parsed, err := query.Parse(value)
		if err != nil {
			return m.showError(err)
		}
		q = parsed
	}
	b.Load(q)
	applied, err := b.Apply()
	if err != nil {
		var stale *filter.StaleRulesError
		if errors.As(err, &stale) {
			return m.showError(fmt.Errorf("unknown fields: %s", strings.Join(stale.Fields, ", ")))
		}
		return m.showError(err)
	}
	ctrl.ApplyFilter(applied)
	m.Cursor, m.ViewOffset = 0, 0
	return m.loadCmd()
}

// submitTailSearch narrows the tail display. A rule expression like
// level=error filters one column; anything else is a free text search.
func (m *Model) submitTailSearch(value string) tea.Cmd {
	tail := m.Engine.Tail
	m.TailPage, m.Cursor, m.ViewOffset = 1, 0, 0
	if value == "" {
		tail.SetSearch("")
		tail.SetColumnFilter(nil)
		return nil
	}
	if r, err := query.ParseRule(value); err == nil {
		tail.SetColumnFilter(&r)
		tail.SetSearch("")
		return nil
	}
	tail.SetSearch(value)
	tail.SetColumnFilter(nil)
	return nil
}

func (m Model) currentExpression() string {
	if m.Mode == ModeTail {
		t := m.Engine.Tail.Status()
		if t.Column != nil {
			return query.FormatRule(*t.Column)
		}
		return t.Search
	}
	st := m.Engine.Ctrl.State()
	if st.SQL != "" {
		return "sql " + st.SQL
	}
	if st.Applied != nil {
		return query.Format(st.Applied.Query)
	}
	return ""
}

func (m Model) currentWindow() explorer.PageWindow {
	if m.Mode == ModeTail {
		return m.Engine.Tail.Page(m.TailPage, m.Engine.Ctrl.Window().PerPage)
	}
	return m.Engine.Ctrl.Window()
}

func (m *Model) goToPage(n int) tea.Cmd {
	w := m.currentWindow()
	if n < 1 || n > w.TotalPages || n == w.Page {
		return nil
	}
	m.Cursor, m.ViewOffset = 0, 0
	if m.Mode == ModeTail {
		m.TailPage = n
		return nil
	}
	ctrl := m.Engine.Ctrl
	return m.run(func(ctx context.Context) error { return ctrl.GoToPage(ctx, n) })
}

// showSlot narrows the view to slot and reloads
func (m *Model) showSlot(s timeslot.Slot) tea.Cmd {
	m.Engine.Ctrl.SetTimeRange(s.StartTime(), s.EndTime)
	m.Cursor, m.ViewOffset = 0, 0
	return tea.Batch(m.showStatusMessage("Slot "+s.String()), m.loadCmd())
}

// stepSlot moves to an older (delta > 0) or newer slot, generating more
// slots past the last one
func (m *Model) stepSlot(delta int) tea.Cmd {
	if m.Engine.Locator == nil || m.Mode == ModeTail {
		return nil
	}
	slots := m.Engine.Locator.Slots()
	if len(slots) == 0 {
		return m.showStatusMessage("Press L to locate slots first")
	}
	next := m.SlotIndex + delta
	if next < 0 {
		return m.showStatusMessage("Already at the newest slot")
	}
	if next >= len(slots) {
		if len(m.Engine.Locator.LoadMore()) == 0 {
			return m.showStatusMessage("No older slot")
		}
		slots = m.Engine.Locator.Slots()
	}
	m.SlotIndex = next
	return m.showSlot(slots[next])
}

// selectedColumn is the visible header under the column cursor
func (m Model) selectedColumn() (string, bool) {
	visible := m.Engine.Ctrl.State().Layout.Visible()
	if len(visible) == 0 {
		return "", false
	}
	return visible[min(m.Column, len(visible)-1)], true
}

// cycleColumnFilter moves the filter of the selected column to the next
// distinct value of the loaded chunk, then off after the last one.
func (m *Model) cycleColumnFilter() tea.Cmd {
	ctrl := m.Engine.Ctrl
	column, ok := m.selectedColumn()
	if !ok {
		return nil
	}
	values := ctrl.ColumnValues(column)
	if len(values) == 0 {
		return m.showStatusMessage("No values for " + column)
	}

	next := 0
	if r, ok := ctrl.State().ColumnFilters[column]; ok {
		next = len(values)
		for i, v := range values {
			if v == r.Value.String() {
				next = i + 1
				break
			}
		}
	}
	m.Cursor, m.ViewOffset = 0, 0
	if next >= len(values) {
		ctrl.SetColumnFilter(column, nil)
		return m.showStatusMessage("Column filter removed from " + column)
	}
	rule := filter.Rule{Field: column, Operator: operator.Equals, Value: filter.Text(values[next])}
	ctrl.SetColumnFilter(column, &rule)
	return m.showStatusMessage("Column filter " + ruleText(rule))
}

// removeLastRule deletes the last rule of the filter and commits the rest
func (m *Model) removeLastRule() tea.Cmd {
	ctrl, b := m.Engine.Ctrl, m.Engine.Builder
	if ctrl.State().SQL != "" {
		return m.showStatusMessage("Raw SQL has no rules to remove")
	}
	q := b.Query()
	if len(q.Rules) == 0 {
		return m.showStatusMessage("No rule to remove")
	}
	g := q.Rules[len(q.Rules)-1]
	r := g.Rules[len(g.Rules)-1]
	if err := b.DeleteRuleFromGroup(g.ID, r.ID); err != nil {
		return m.showError(err)
	}
	return tea.Batch(m.showStatusMessage("Removed "+ruleText(r)), m.commitBuilder())
}

// toggleCombinator flips and/or on the last group, or between groups when
// the last group holds a single rule.
func (m *Model) toggleCombinator() tea.Cmd {
	b := m.Engine.Builder
	q := b.Query()
	if len(q.Rules) == 0 {
		return m.showStatusMessage("No rule to combine")
	}
	flip := func(c filter.Combinator) filter.Combinator {
		if c == filter.Or {
			return filter.And
		}
		return filter.Or
	}
	g := q.Rules[len(q.Rules)-1]
	switch {
	case len(g.Rules) > 1:
		if err := b.UpdateGroupCombinator(g.ID, flip(g.Combinator)); err != nil {
			return m.showError(err)
		}
	case len(q.Rules) > 1:
		b.UpdateParentCombinator(flip(q.Combinator))
	default:
		return m.showStatusMessage("A single rule has no combinator")
	}
	return m.commitBuilder()
}

// commitBuilder applies the edited builder to the controller. A builder
// that cleared its applied query on the last deletion clears the filter.
func (m *Model) commitBuilder() tea.Cmd {
	ctrl, b := m.Engine.Ctrl, m.Engine.Builder
	applied := b.Applied()
	if applied != nil {
		var err error
		if applied, err = b.Apply(); err != nil {
			return m.showError(err)
		}
	}
	ctrl.ApplyFilter(applied)
	m.Cursor, m.ViewOffset = 0, 0
	return m.loadCmd()
}

func (m *Model) toggleTail() tea.Cmd {
	tail := m.Engine.Tail
	if tail == nil {
		return nil
	}
	if m.Mode == ModeTail {
		m.tailing.Store(false)
		tail.Abort()
		m.Mode = ModeQuery
		m.Cursor, m.ViewOffset = 0, 0
		return m.showStatusMessage("Live tail stopped")
	}
	st := m.Engine.Ctrl.State()
	tail.SetFields(st.Schema.Fields)
	m.tailing.Store(true)
	if err := tail.Start(m.ctx, st.Stream); err != nil {
		m.tailing.Store(false)
		return m.showError(err)
	}
	m.Mode = ModeTail
	m.TailPage, m.Cursor, m.ViewOffset = 1, 0, 0
	return m.showStatusMessage("Live tail on " + st.Stream)
}

func (m *Model) applyConfig(e config.Explorer) tea.Cmd {
	cmds := []tea.Cmd{m.showStatusMessage("Configuration reloaded")}
	ctrl := m.Engine.Ctrl
	if perPage := e.ControllerOptions().PerPage; perPage != ctrl.Window().PerPage {
		cmds = append(cmds, m.run(func(ctx context.Context) error { return ctrl.SetPerPage(ctx, perPage) }))
	}
	interval, err := e.RefreshInterval()
	if err != nil {
		return m.showError(err)
	}
	if interval != m.Opts.Refresh {
		m.Opts.Refresh = interval
		if interval > 0 {
			ctrl.StartRefresh(m.ctx, interval, func(err error) { log.Warn("tui: refresh failed: %v", err) })
		} else {
			ctrl.StopRefresh()
		}
	}
	return tea.Batch(cmds...)
}

func (m *Model) moveCursor(delta int) {
	rows := m.currentWindow().Data
	m.Cursor += delta
	if m.Cursor >= len(rows) {
		m.Cursor = len(rows) - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
	h := m.tableHeight()
	if m.Cursor < m.ViewOffset {
		m.ViewOffset = m.Cursor
	}
	if h > 0 && m.Cursor >= m.ViewOffset+h {
		m.ViewOffset = m.Cursor - h + 1
	}
}

// SelectedRow is the row under the cursor
func (m Model) SelectedRow() (backend.Row, bool) {
	rows := m.currentWindow().Data
	if m.Cursor < 0 || m.Cursor >= len(rows) {
		return nil, false
	}
	return rows[m.Cursor], true
}

func (m *Model) copyRowToClipboard() tea.Cmd {
	row, ok := m.SelectedRow()
	if !ok {
		return m.showStatusMessage("No entry selected")
	}
	data, err := json.MarshalIndent(row, "", "  ")
	if err != nil {
		return m.showError(err)
	}
	if err := clipboard.WriteAll(string(data)); err != nil {
		return m.showStatusMessage(fmt.Sprintf("Clipboard error: %v", err))
	}
	return m.showStatusMessage("Row copied to clipboard")
}

// showStatusMessage temporarily shows a message under the table
// Returns a command that will clear the message after a delay
func (m *Model) showStatusMessage(message string) tea.Cmd {
	m.Message = message
	m.IsError = false
	return tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}

func (m *Model) showError(err error) tea.Cmd {
	log.Error("tui: %v", err)
	cmd := m.showStatusMessage(err.Error())
	m.IsError = true
	return cmd
}

// cleanup stops every background goroutine
func (m *Model) cleanup() {
	m.Engine.Ctrl.StopRefresh()
	if m.Engine.Tail != nil {
		m.Engine.Tail.Abort()
	}
	m.scope.Close()
	m.cancel()
}

// sync copies the engine state into the status bar, chips and details
func (m *Model) sync() {
	st := m.Engine.Ctrl.State()
	m.StatusBar.UpdateFromController(st)
	m.StatusBar.Refresh = 0
	if m.Engine.Ctrl.Refreshing() {
		m.StatusBar.Refresh = m.Opts.Refresh
	}
	if m.Engine.Locator != nil {
		m.StatusBar.UpdateFromLocator(m.Engine.Locator.State(), m.SlotIndex)
	}
	m.StatusBar.Tailing = m.Mode == ModeTail
	if m.Mode == ModeTail {
		w := m.currentWindow()
		m.StatusBar.UpdateFromTail(m.Engine.Tail.Status(), int(w.TotalCount))
		m.StatusBar.Page, m.StatusBar.TotalPages = w.Page, w.TotalPages
		m.SearchBar.Chips = tailChips(m.Engine.Tail.Status())
	} else {
		m.SearchBar.Chips = QueryChips(st.Applied, st.SQL, st.ColumnFilters)
	}

	if rows := m.currentWindow().Data; m.Cursor >= len(rows) {
		m.Cursor = max(len(rows)-1, 0)
	}
	if m.DetailsVisible {
		if row, ok := m.SelectedRow(); ok {
			m.Details.SetContent(renderRowJSON(row))
		} else {
			m.Details.SetContent("")
		}
	}
}

func tailChips(st livetail.Status) []Chip {
	var chips []Chip
	if st.Search != "" {
		chips = append(chips, Chip{Type: ChipTypeRule, Display: "search " + truncateForDisplay(st.Search, 40)})
	}
	if st.Column != nil {
		chips = append(chips, Chip{Type: ChipTypeColumn, Display: ruleText(*st.Column)})
	}
	return chips
}

// renderRowJSON formats a row with colorjson, falling back to plain JSON
func renderRowJSON(row backend.Row) string {
	data, err := json.Marshal(row)
	if err != nil {
		return err.Error()
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return string(data)
	}
	f := colorjson.NewFormatter()
	f.Indent = 2
	out, err := f.Marshal(obj)
	if err != nil {
		return string(data)
	}
	return string(out)
}

// updateSizes recalculates component sizes
func (m *Model) updateSizes() {
	m.StatusBar.Width = m.Width
	m.SearchBar.Width = m.Width
	m.Details.Width = m.Width
	m.Details.Height = max(m.Height/3, 3)
}

// tableHeight is the number of row lines the table can show
func (m Model) tableHeight() int {
	// The footer holds the message, the filter bar and the help line.
	const header, footer = 1, 3
	h := m.Height - header - m.StatusBar.Height() - footer - 1 // column headers
	if m.DetailsVisible {
		h -= m.Details.Height + 1
	}
	return max(h, 1)
}

// View renders the whole screen
func (m Model) View() string {
	if m.Width == 0 || m.Height == 0 {
		return "Loading..."
	}

	sections := []string{m.renderHeader(), m.renderTable()}
	if m.DetailsVisible {
		sections = append(sections, m.Styles.Details.Width(m.Width).Render(
			lipgloss.JoinVertical(lipgloss.Left, m.Styles.DetailsTitle.Render("Details"), m.Details.View())))
	}
	sections = append(sections, m.StatusBar.View(), m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	title := m.Opts.Title
	if title == "" {
		title = "logexplorer"
	}
	stream := m.Engine.Ctrl.State().Stream
	if stream != "" {
		title += " [" + stream + "]"
	}
	header := m.Styles.Header.Render(title)
	if m.Mode == ModeTail {
		header += " " + m.Styles.Live.Render("● LIVE")
	}
	return header
}

func (m Model) renderFooter() string {
	var parts []string
	switch {
	case m.Message != "" && m.IsError:
		parts = append(parts, m.Styles.ErrorLine.Render(m.Message))
	case m.Message != "":
		parts = append(parts, m.Styles.Message.Render(m.Message))
	case m.Engine.Ctrl.State().Err != nil && m.Mode == ModeQuery:
		parts = append(parts, m.Styles.ErrorLine.Render(m.Engine.Ctrl.State().Err.Error()))
	default:
		parts = append(parts, "")
	}
	parts = append(parts, m.SearchBar.View())

	helpText := "↑↓ navigate • n/p page • / filter • L slots • [ ] slot • t tail • s sort • Enter details • ? help • q quit"
	if m.ShowHelp {
		var groups []string
		for _, col := range m.Keys.FullHelp() {
			var items []string
			for _, b := range col {
				items = append(items, b.Help().Key+" "+b.Help().Desc)
			}
			groups = append(groups, strings.Join(items, " • "))
		}
		helpText = strings.Join(groups, "\n")
	}
	parts = append(parts, m.Styles.HelpBar.Render(helpText))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

const maxColumnWidth = 32

// renderTable renders the column headers and the visible rows
func (m Model) renderTable() string {
	w := m.currentWindow()
	st := m.Engine.Ctrl.State()
	headers := st.Layout.Visible()
	if len(headers) == 0 || m.Mode == ModeTail {
		if h := export.Headers(w.Data); len(h) > 0 {
			headers = h
		}
	}
	h := m.tableHeight()

	if len(w.Data) == 0 {
		text := "No rows"
		switch {
		case m.Mode == ModeQuery && (st.Status == explorer.SchemaLoading || st.Status == explorer.Fetching):
			text = "Loading..."
		case m.Mode == ModeTail:
			text = "Waiting for rows..."
		}
		return lipgloss.NewStyle().Height(h + 1).Render(m.Styles.Empty.Render(text))
	}

	// Columns are dropped from the right once the width is used up.
	widths := make([]int, 0, len(headers))
	used := 0
	for _, name := range headers {
		cw := lipgloss.Width(name)
		for _, row := range w.Data {
			cw = max(cw, lipgloss.Width(cellText(row[name])))
		}
		cw = min(cw, maxColumnWidth)
		if used+cw > m.Width && len(widths) > 0 {
			break
		}
		widths = append(widths, cw)
		used += cw + 1
	}
	headers = headers[:len(widths)]

	var lines []string
	cells := make([]string, len(headers))
	selectedColumn, _ := m.selectedColumn()
	for i, name := range headers {
		style := m.Styles.TableHeader
		if st.Layout.IsPinned(name) {
			style = m.Styles.Pinned
		}
		if m.Mode == ModeQuery && name == selectedColumn {
			style = style.Underline(true)
		}
		cells[i] = style.Render(pad(name, widths[i]))
	}
	lines = append(lines, strings.Join(cells, " "))

	end := min(m.ViewOffset+h, len(w.Data))
	for i := m.ViewOffset; i < end; i++ {
		row := w.Data[i]
		selected := i == m.Cursor && m.Focus == FocusList
		rowCells := make([]string, len(headers))
		for j, name := range headers {
			text := pad(cellText(row[name]), widths[j])
			switch {
			case selected:
				rowCells[j] = m.Styles.RowSelected.Render(text)
			case isLevelColumn(name):
				rowCells[j] = GetLevelStyle(cellText(row[name])).Render(text)
			default:
				rowCells[j] = m.Styles.Row.Render(text)
			}
		}
		sep := " "
		if selected {
			sep = m.Styles.RowSelected.Render(" ")
		}
		lines = append(lines, strings.Join(rowCells, sep))
	}
	return lipgloss.NewStyle().Height(h + 1).Render(strings.Join(lines, "\n"))
}

func isLevelColumn(name string) bool {
	switch strings.ToLower(name) {
	case "level", "severity", "log_level", "loglevel":
		return true
	}
	return false
}

// cellText flattens a value onto one line
func cellText(v any) string {
	if v == nil {
		return ""
	}
	return strings.ReplaceAll(export.Stringify(v), "\n", " ")
}

func pad(s string, width int) string {
	s = truncateForDisplay(s, width)
	if n := lipgloss.Width(s); n < width {
		s += strings.Repeat(" ", width-n)
	}
	return s
}
