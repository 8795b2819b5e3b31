package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"signin-token-sync/internal/history"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the most recent sync runs.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if appConfig.History.Path == "" {
			return errors.New("run history is disabled, set history.path")
		}

		store, err := history.Open(appConfig.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tSTATUS\tREASON\tDURATION\tRUN")
		for _, r := range runs {
			reason := string(r.Reason)
			if reason == "" {
				reason = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				humanize.Time(r.StartedAt), r.Status, reason, r.Duration().Round(time.Second), r.RunID)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
}
