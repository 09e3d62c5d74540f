package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bascanada/logexplorer/pkg/explorer"
	"github.com/bascanada/logexplorer/pkg/export"
	"github.com/bascanada/logexplorer/pkg/log"
	"github.com/bascanada/logexplorer/pkg/log/printer"
	"github.com/spf13/cobra"
)

var queryFormats = []string{printer.FormatText, printer.FormatJSON, printer.FormatPretty, string(export.CSV), "export-json"}

var showSQL bool

var queryCommand = &cobra.Command{
	Use:   "query",
	Short: "Print one page of a stream",
	Long: `Load a stream over a time window and print one page of rows.

Examples:
  # Last hour of a saved view
  logexplorer query -i errors --last 1h

  # Ad hoc filter on a backend stream
  logexplorer query -b prod -s app-logs -f 'level=error' -f 'msg~=timeout'

  # Third page of 50 rows, oldest first
  logexplorer query -i errors --per-page 50 --page 3 --sort p_timestamp:asc

  # Raw SQL, the whole loaded chunk as CSV
  logexplorer query -b prod --sql 'SELECT * FROM "app-logs" LIMIT 10' --format csv`,
	PreRun: onCommandStart,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, time.Now())
	},
}

func runQuery(cmd *cobra.Command, now time.Time) error {
	ctx := cmd.Context()
	t, err := resolveTarget()
	if err != nil {
		return err
	}
	ctrl, err := t.controller(ctx, now)
	if err != nil {
		return err
	}
	if showSQL {
		q, err := ctrl.Query()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), q)
		return nil
	}

	if err := ctrl.Load(ctx); err != nil {
		return err
	}
	if page > 1 {
		if err := ctrl.GoToPage(ctx, page); err != nil {
			return err
		}
	}
	st := ctrl.State()
	if st.Status == explorer.Errored {
		return st.Err
	}
	log.Info("query: %s page %d/%d, %d rows in range", st.Stream, st.Window.Page, st.Window.TotalPages, st.Window.TotalCount)

	return writeRows(cmd.OutOrStdout(), ctrl)
}

// writeRows prints the visible page, or exports the loaded chunk for the
// export formats.
func writeRows(out io.Writer, ctrl *explorer.Controller) error {
	switch strings.ToLower(format) {
	case string(export.CSV):
		return ctrl.Export(out, export.CSV)
	case "export-json":
		return ctrl.Export(out, export.JSON)
	}
	p, err := newPrinter(out, ctrl.DefaultSort().Column)
	if err != nil {
		return err
	}
	return p.Print(ctrl.Window().Data)
}

func newPrinter(out io.Writer, tsColumn string) (*printer.Printer, error) {
	mode, err := printer.ParseColorMode(colorMode)
	if err != nil {
		return nil, err
	}
	return printer.New(out, printer.Options{
		Format:          strings.ToLower(format),
		Template:        template,
		Color:           mode,
		MessageRegex:    messageRegex,
		TimestampColumn: tsColumn,
	})
}

func init() {
	addTargetFlags(queryCommand)
	addRangeFlags(queryCommand)
	addFilterFlags(queryCommand)
	addOutputFlags(queryCommand, queryFormats)

	queryCommand.Flags().StringVar(&sqlStmt, "sql", "", "Raw SQL statement, replaces the generated query")
	queryCommand.Flags().IntVar(&page, "page", 1, "Page to print")
	queryCommand.Flags().IntVar(&perPage, "per-page", 0, "Rows per page, the configured value when 0")
	queryCommand.Flags().StringVar(&sortBy, "sort", "", "Sort as column[:asc|desc]")
	queryCommand.Flags().BoolVar(&showSQL, "show-sql", false, "Print the generated SQL and exit")
}
