// SPDX-License-Identifier: GPL-3.0-only
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bascanada/logexplorer/pkg/config"
	"github.com/bascanada/logexplorer/pkg/filter"
	"github.com/bascanada/logexplorer/pkg/livetail"
	"github.com/bascanada/logexplorer/pkg/log"
	"github.com/bascanada/logexplorer/pkg/timeslot"
	"github.com/bascanada/logexplorer/pkg/tui"
	"github.com/bascanada/logexplorer/pkg/ty"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:     "tui",
	Aliases: []string{"live", "ui"},
	Short:   "Launch interactive TUI for exploring a stream",
	Long: `Launch an interactive Terminal User Interface over one stream.

The TUI provides:
  - Paged results with sorting and pinned columns
  - Filter expressions with / and raw SQL with "sql <statement>"
  - Time slots that split a busy window (L, then [ and ])
  - Live tail of the stream (t)
  - Detailed JSON of the selected row

The config file is watched: page size and refresh interval changes apply
without restarting.

Examples:
  # Reopen the view of the last session
  logexplorer tui

  # Open a saved view over the last hour
  logexplorer tui -i errors --last 1h

  # Ad hoc stream with a filter, refreshed every 30s
  logexplorer tui -b prod -s app-logs -f level=error --refresh 30s`,
	PreRun: onCommandStart,
	Run:    runTUI,
}

var refreshFlag string

func runTUI(cmd *cobra.Command, args []string) {
	t, err := resolveTarget()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Tip: Run 'logexplorer configure' to set up a configuration.")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	engine, opts, err := buildEngine(ctx, t, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	model := tui.New(engine, opts)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if path, err := config.Path(configPath); err == nil {
		w, err := config.NewWatcher(path, func(c *config.Config) {
			p.Send(tui.ConfigReloadedMsg{Explorer: reloadedExplorer(c, t.name)})
		}, func(err error) {
			log.Warn("tui: config reload failed: %v", err)
		})
		if err == nil {
			err = w.Start(ctx)
		}
		if err != nil {
			log.Warn("tui: config not watched: %v", err)
		}
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}

	if err := config.SaveState(&config.State{View: t.name, Backend: t.view.Backend, Stream: t.view.Stream}); err != nil {
		log.Warn("tui: state not saved: %v", err)
	}
}

// buildEngine wires the controller, builder, locator and tail session of
// one view.
func buildEngine(ctx context.Context, t *target, now time.Time) (tui.Engine, tui.Options, error) {
	ctrl, err := t.controller(ctx, now)
	if err != nil {
		return tui.Engine{}, tui.Options{}, err
	}
	b := filter.NewBuilder(nil, t.view.Explorer.BuilderOptions())
	if applied := ctrl.State().Applied; applied != nil {
		b.Load(applied.Query)
		if _, err := b.Apply(); err != nil {
			return tui.Engine{}, tui.Options{}, err
		}
	}

	engine := tui.Engine{
		Ctrl:    ctrl,
		Builder: b,
		Locator: timeslot.NewLocator(t.backend, t.view.Explorer.LocatorOptions()),
		Tail:    livetail.NewSession(t.backend, t.view.Explorer.TailOptions()),
	}

	e := t.view.Explorer
	if refreshFlag != "" {
		e.Refresh = ty.OptWrap(refreshFlag)
	}
	refresh, err := e.RefreshInterval()
	if err != nil {
		return tui.Engine{}, tui.Options{}, err
	}

	title := t.name
	if title == "" {
		title = t.view.Backend
	}
	return engine, tui.Options{Title: "logexplorer: " + title, Refresh: refresh}, nil
}

// reloadedExplorer is the explorer config of the running view in a freshly
// loaded file.
func reloadedExplorer(c *config.Config, view string) config.Explorer {
	if view != "" {
		if v, err := c.View(view); err == nil {
			return v.Explorer
		}
	}
	return c.Explorer
}

func init() {
	addTargetFlags(tuiCmd)
	addRangeFlags(tuiCmd)
	addFilterFlags(tuiCmd)
	tuiCmd.Flags().StringVar(&sqlStmt, "sql", "", "Raw SQL statement, replaces the generated query")
	tuiCmd.Flags().IntVar(&perPage, "per-page", 0, "Rows per page, the configured value when 0")
	tuiCmd.Flags().StringVar(&sortBy, "sort", "", "Sort as column[:asc|desc]")
	tuiCmd.Flags().StringVar(&refreshFlag, "refresh", "", "Reload interval like 30s, off to disable")
	rootCmd.AddCommand(tuiCmd)
}
