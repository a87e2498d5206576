package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/xsweep/internal/app"
	"github.com/ibeckermayer/xsweep/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app.App, _ *app.Env) error {
				runs, err := a.History(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return printRuns(cmd.OutOrStdout(), runs)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func printRuns(w io.Writer, runs []store.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tMODE\tDURATION\tDELETED\tUNREPOSTED\tUNLIKED\tREASON")
	for _, r := range runs {
		duration, reason := "-", r.Reason
		if r.EndedAt != nil {
			duration = r.Duration().Round(time.Second).String()
		} else {
			reason = "running"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Config.Mode, duration, r.Deleted, r.Unreposted, r.Unliked, reason)
	}
	return tw.Flush()
}
