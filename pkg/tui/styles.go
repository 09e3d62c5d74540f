// SPDX-License-Identifier: GPL-3.0-only
package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorPrimary   = lipgloss.Color("#7C3AED") // Purple
	ColorSecondary = lipgloss.Color("#3B82F6") // Blue
	ColorSuccess   = lipgloss.Color("#22C55E") // Green
	ColorWarning   = lipgloss.Color("#F59E0B") // Amber
	ColorError     = lipgloss.Color("#EF4444") // Red
	ColorMuted     = lipgloss.Color("#6B7280") // Gray
	ColorBorder    = lipgloss.Color("#374151") // Dark gray
	ColorBg        = lipgloss.Color("#1F2937") // Dark background
	ColorBgActive  = lipgloss.Color("#374151") // Active background
	ColorText      = lipgloss.Color("#F9FAFB") // Light text
	ColorTextMuted = lipgloss.Color("#9CA3AF") // Muted text
)

// Log level colors
var LogLevelColors = map[string]lipgloss.Color{
	"ERROR":   ColorError,
	"FATAL":   ColorError,
	"WARN":    ColorWarning,
	"WARNING": ColorWarning,
	"INFO":    ColorSuccess,
	"DEBUG":   ColorSecondary,
	"TRACE":   ColorMuted,
}

// Styles contains all UI styles
type Styles struct {
	Header    lipgloss.Style
	HelpBar   lipgloss.Style
	Message   lipgloss.Style
	ErrorLine lipgloss.Style

	// Table
	TableHeader lipgloss.Style
	Pinned      lipgloss.Style
	Row         lipgloss.Style
	RowSelected lipgloss.Style
	Separator   lipgloss.Style
	Empty       lipgloss.Style

	// Details pane
	Details      lipgloss.Style
	DetailsTitle lipgloss.Style

	// Live marker in the header
	Live lipgloss.Style
}

// DefaultStyles creates the default style set
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Background(ColorBg).
			Foreground(ColorText).
			Bold(true).
			Padding(0, 1),

		HelpBar: lipgloss.NewStyle().
			Foreground(ColorMuted).
			Padding(0, 1),

		Message: lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Padding(0, 1),

		ErrorLine: lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true).
			Padding(0, 1),

		TableHeader: lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true),

		Pinned: lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true),

		Row: lipgloss.NewStyle().
			Foreground(ColorText),

		RowSelected: lipgloss.NewStyle().
			Background(ColorBgActive).
			Foreground(ColorText).
			Bold(true),

		Separator: lipgloss.NewStyle().
			Foreground(ColorBorder),

		Empty: lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Italic(true).
			Padding(1, 2),

		Details: lipgloss.NewStyle().
			BorderTop(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1),

		DetailsTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary),

		Live: lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true),
	}
}

// GetLevelStyle returns a style for the given log level
func GetLevelStyle(level string) lipgloss.Style {
	color, ok := LogLevelColors[strings.ToUpper(level)]
	if !ok {
		color = ColorMuted
	}
	return lipgloss.NewStyle().
		Foreground(color).
		Bold(true)
}
