package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"lcdielectrics"
)

var (
	historyArchive string
	historyID      string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived sweeps, or print one with --id",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		archive, err := lcdielectrics.OpenArchive(historyArchive)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, archive.Close()) }()

		if historyID != "" {
			rec, err := archive.LoadSweep(historyID)
			if err != nil {
				return fmt.Errorf("sweep %s: %w", historyID, err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "    ")
			return enc.Encode(rec)
		}

		sweeps, err := archive.ListSweeps()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tFINISHED\tCOMPLETE\tSAMPLES")
		for _, s := range sweeps {
			finished := "-"
			if !s.FinishedAt.IsZero() {
				finished = s.FinishedAt.Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\n", s.ID, s.StartedAt.Format(time.DateTime), finished, s.Complete, s.Samples)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historyArchive, "archive", "a", "sweeps.db", "sweep archive path")
	historyCmd.Flags().StringVar(&historyID, "id", "", "print the full record of one sweep")
}
