package commands

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewLogsCommand creates the logs command.
func NewLogsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent pipeline runs",
		Long:  `List the latest run log rows, newest first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			db, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.RecentRuns(ctx, limit)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Run", "Executed", "Source", "Inserted", "Skipped", "Duration", "Status", "Message"})
			for _, run := range runs {
				t.AppendRow(table.Row{
					shortID(run.RunID),
					run.ExecutedAt.Format("2006-01-02 15:04:05"),
					run.Source,
					run.Inserted,
					run.Skipped,
					run.Duration.Round(time.Millisecond),
					run.Status,
					run.Message,
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
