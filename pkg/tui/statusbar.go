// SPDX-License-Identifier: GPL-3.0-only
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bascanada/logexplorer/pkg/explorer"
	"github.com/bascanada/logexplorer/pkg/livetail"
	"github.com/bascanada/logexplorer/pkg/timeslot"
	"github.com/charmbracelet/lipgloss"
)

// StatusBarStyles defines the styles for the status bar
type StatusBarStyles struct {
	Container    lipgloss.Style
	Label        lipgloss.Style
	Value        lipgloss.Style
	Separator    lipgloss.Style
	LiveActive   lipgloss.Style
	LiveInactive lipgloss.Style
	Loading      lipgloss.Style
	Error        lipgloss.Style
}

// DefaultStatusBarStyles returns the default styles for the status bar
func DefaultStatusBarStyles() StatusBarStyles {
	return StatusBarStyles{
		Container: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderBottom(true).
			BorderForeground(ColorBorder).
			Padding(0, 1),
		Label: lipgloss.NewStyle().
			Foreground(ColorMuted),
		Value: lipgloss.NewStyle().
			Foreground(ColorText),
		Separator: lipgloss.NewStyle().
			Foreground(ColorMuted),
		LiveActive: lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true),
		LiveInactive: lipgloss.NewStyle().
			Foreground(ColorMuted),
		Loading: lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true),
		Error: lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true),
	}
}

// StatusBar displays the view metadata between the table and the filter bar
type StatusBar struct {
	Width  int
	Styles StatusBarStyles

	Stream     string
	Start      time.Time
	End        time.Time
	Status     explorer.Status
	Sort       explorer.Sort
	Page       int
	TotalPages int
	TotalCount int64
	Refresh    time.Duration

	// Slot navigation
	Gap       time.Duration
	SlotIndex int
	SlotCount int

	// Live tail
	Tailing  bool
	Tail     livetail.Status
	Buffered int
}

// NewStatusBar creates a new status bar with default styles
func NewStatusBar() StatusBar {
	return StatusBar{
		Width:  80,
		Styles: DefaultStatusBarStyles(),
	}
}

// UpdateFromController copies what the status bar shows from the view state
func (s *StatusBar) UpdateFromController(st explorer.State) {
	s.Stream = st.Stream
	s.Start, s.End = st.Start, st.End
	s.Status = st.Status
	s.Sort = st.Sort
	s.Page = st.Window.Page
	s.TotalPages = st.Window.TotalPages
	s.TotalCount = st.Window.TotalCount
}

// UpdateFromLocator copies the slot width and count
func (s *StatusBar) UpdateFromLocator(st timeslot.State, index int) {
	s.Gap = st.Gap
	s.SlotCount = len(st.Slots)
	s.SlotIndex = index
}

// UpdateFromTail copies the live tail status
func (s *StatusBar) UpdateFromTail(st livetail.Status, buffered int) {
	s.Tail = st
	s.Buffered = buffered
}

// View renders the status bar
func (s StatusBar) View() string {
	if s.Width < 20 {
		return ""
	}
	label := func(l, v string) string {
		return s.Styles.Label.Render(l+": ") + s.Styles.Value.Render(v)
	}

	var line1Parts []string
	var line2Parts []string

	// Line 1: stream, time range, sort and slots
	stream := s.Stream
	if stream == "" {
		stream = "N/A"
	}
	line1Parts = append(line1Parts, label("Stream", stream))
	if !s.Start.IsZero() || !s.End.IsZero() {
		line1Parts = append(line1Parts, label("Range",
			s.Start.Local().Format("01-02 15:04:05")+" → "+s.End.Local().Format("01-02 15:04:05")))
	} else {
		line1Parts = append(line1Parts, label("Range", "N/A"))
	}
	if s.Sort.Column != "" {
		line1Parts = append(line1Parts, label("Sort", s.Sort.String()))
	}
	if s.Gap > 0 {
		line1Parts = append(line1Parts, label("Slot", fmt.Sprintf("%d/%d (%dm)", s.SlotIndex+1, s.SlotCount, int(s.Gap/time.Minute))))
	}

	// Line 2: status, page, total and live tail
	if s.Tailing {
		line2Parts = append(line2Parts, s.Styles.LiveActive.Render("LIVE "+s.Tail.State.String()))
		line2Parts = append(line2Parts, label("Buffered", fmt.Sprintf("%d", s.Buffered)))
		line2Parts = append(line2Parts, label("Received", fmt.Sprintf("%d", s.Tail.Received)))
		if s.Tail.Err != nil {
			line2Parts = append(line2Parts, s.Styles.Error.Render(s.Tail.Err.Error()))
		}
	} else {
		switch s.Status {
		case explorer.SchemaLoading, explorer.Fetching:
			line2Parts = append(line2Parts, s.Styles.Loading.Render("⏳ "+s.Status.String()+"..."))
		case explorer.Errored:
			line2Parts = append(line2Parts, s.Styles.Error.Render("error (r to retry)"))
		default:
			line2Parts = append(line2Parts, s.Styles.Value.Render(s.Status.String()))
		}
		line2Parts = append(line2Parts, label("Page", fmt.Sprintf("%d/%d", s.Page, max(s.TotalPages, 1))))
		line2Parts = append(line2Parts, label("Total", fmt.Sprintf("%d", s.TotalCount)))
		if s.Refresh > 0 {
			line2Parts = append(line2Parts, s.Styles.LiveActive.Render("Refresh "+s.Refresh.String()))
		} else {
			line2Parts = append(line2Parts, s.Styles.LiveInactive.Render("Live: OFF"))
		}
	}

	sep := s.Styles.Separator.Render(" | ")
	content := lipgloss.JoinVertical(lipgloss.Left,
		strings.Join(line1Parts, sep),
		strings.Join(line2Parts, sep))

	return s.Styles.Container.Width(s.Width).Render(content)
}

// Height returns the height of the status bar in lines, borders included
func (s StatusBar) Height() int {
	return 4
}
