package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/livetail"
	"github.com/bascanada/logexplorer/pkg/log"
	"github.com/bascanada/logexplorer/pkg/log/printer"
	"github.com/bascanada/logexplorer/pkg/query"
	"github.com/bascanada/logexplorer/pkg/store"
	"github.com/spf13/cobra"
)

var tailCommand = &cobra.Command{
	Use:     "tail",
	Aliases: []string{"follow"},
	Short:   "Follow a stream as rows arrive",
	Long: `Open a live feed on a stream and print each row as it arrives until
interrupted or the backend closes the feed.

Examples:
  logexplorer tail -i errors
  logexplorer tail -b db -s app_logs -f level=error --format json`,
	PreRun: onCommandStart,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runTail(ctx, cmd)
	},
}

func runTail(ctx context.Context, cmd *cobra.Command) error {
	t, err := resolveTarget()
	if err != nil {
		return err
	}

	var fields []backend.Field
	exprs := append(append([]string{}, t.view.Filters...), filters...)
	if len(exprs) > 0 {
		if schema, err := t.backend.Schema(ctx, t.view.Stream); err != nil {
			log.Warn("tail: schema of %s unavailable, filters compare as text: %v", t.view.Stream, err)
		} else {
			fields = schema.Fields
		}
	}
	match, err := query.Matcher(fields, exprs...)
	if err != nil {
		return err
	}

	p, err := newPrinter(cmd.OutOrStdout(), t.view.Explorer.TimestampColumn.OrElse(""))
	if err != nil {
		return err
	}

	s := livetail.NewSession(t.backend, t.view.Explorer.TailOptions())
	scope := store.NewScope()
	defer scope.Close()
	changed := make(chan struct{}, 1)
	store.Watch(scope, s.Store(), livetail.Status.Progress, func(livetail.Progress) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, nil)

	if err := s.Start(ctx, t.view.Stream); err != nil {
		return err
	}
	defer s.Abort()

	var pos int64
	flush := func() error {
		var rows []backend.Row
		rows, pos = s.Since(pos)
		for _, row := range rows {
			if match != nil && !match(row) {
				continue
			}
			if err := p.PrintRow(row); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			s.Wait()
			return flush()
		case <-changed:
			// Status is read first: every row pushed before the stop is
			// then visible to flush.
			st := s.Status()
			if err := flush(); err != nil {
				return err
			}
			if st.State == livetail.Stopped {
				if st.Err != nil {
					p.PrintError(st.Err)
					return st.Err
				}
				return nil
			}
		}
	}
}

func init() {
	addTargetFlags(tailCommand)
	addFilterFlags(tailCommand)
	addOutputFlags(tailCommand, []string{printer.FormatText, printer.FormatJSON, printer.FormatPretty})
}
