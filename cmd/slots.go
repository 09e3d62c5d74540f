package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/bascanada/logexplorer/pkg/timeslot"
	"github.com/spf13/cobra"
)

var slotsMore int

var slotsCommand = &cobra.Command{
	Use:   "slots",
	Short: "Split a window into slots that each hold a bounded number of rows",
	Long: `Probe the backend with counts over growing gaps, then list the slots of the
largest gap that stays under the ceiling, newest first.

Examples:
  logexplorer slots -i errors --last 24h
  logexplorer slots -b prod -s app-logs -f level=error --more 2`,
	PreRun: onCommandStart,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSlots(cmd, time.Now())
	},
}

func runSlots(cmd *cobra.Command, now time.Time) error {
	ctx := cmd.Context()
	t, err := resolveTarget()
	if err != nil {
		return err
	}
	start, end, err := t.timeRange(now)
	if err != nil {
		return err
	}
	applied, err := t.applied(nil)
	if err != nil {
		return err
	}
	r := timeslot.Range{Stream: t.view.Stream, Start: start, End: end}
	if applied != nil {
		r.Filter = applied.Where
	}

	l := timeslot.NewLocator(t.backend, t.view.Explorer.LocatorOptions())
	l.Reset(r)
	slots, err := l.Locate(ctx)
	if err != nil {
		return err
	}
	for i := 0; i < slotsMore && !l.State().Exhausted; i++ {
		l.LoadMore()
	}
	slots = l.Slots()

	st := l.State()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "gap %s, %d slots", st.Gap, len(slots))
	if st.Exhausted {
		fmt.Fprint(out, " (range covered)")
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTART\tEND")
	for _, s := range slots {
		fmt.Fprintf(w, "%d\t%s\t%s\n", s.ID, s.StartTime().Format(time.RFC3339), s.EndTime.Format(time.RFC3339))
	}
	return w.Flush()
}

func init() {
	addTargetFlags(slotsCommand)
	addRangeFlags(slotsCommand)
	addFilterFlags(slotsCommand)
	slotsCommand.Flags().IntVar(&slotsMore, "more", 0, "Extend the slot list this many times")
}
