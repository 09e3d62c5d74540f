package printer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ColorMode selects when rows are colored.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// ParseColorMode accepts auto, always and never. Empty is auto.
func ParseColorMode(s string) (ColorMode, error) {
	switch m := ColorMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ColorAuto, nil
	case ColorAuto, ColorAlways, ColorNever:
		return m, nil
	}
	return "", fmt.Errorf("unknown color mode %q (want auto, always or never)", s)
}

// ColorEnabled resolves mode for writer. In auto mode NO_COLOR wins, then
// writers that are not a terminal get no color.
func ColorEnabled(mode ColorMode, writer io.Writer) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if f, ok := writer.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

type palette struct {
	enabled bool
	err     *color.Color
	warn    *color.Color
	info    *color.Color
	debug   *color.Color
	dim     *color.Color
	key     *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		enabled: enabled,
		err:     color.New(color.FgRed, color.Bold),
		warn:    color.New(color.FgYellow),
		info:    color.New(color.FgGreen),
		debug:   color.New(color.FgCyan),
		dim:     color.New(color.FgHiBlack),
		key:     color.New(color.FgBlue),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.info, p.debug, p.dim, p.key} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// level colors a severity by its usual meaning. Unknown levels are plain.
func (p palette) level(s string) string {
	if !p.enabled || s == "" {
		return s
	}
	switch strings.ToUpper(s) {
	case "ERROR", "FATAL", "CRITICAL", "PANIC":
		return p.err.Sprint(s)
	case "WARN", "WARNING":
		return p.warn.Sprint(s)
	case "INFO":
		return p.info.Sprint(s)
	case "DEBUG", "TRACE":
		return p.debug.Sprint(s)
	}
	return s
}

func (p palette) paint(c *color.Color, s string) string {
	if !p.enabled {
		return s
	}
	return c.Sprint(s)
}
