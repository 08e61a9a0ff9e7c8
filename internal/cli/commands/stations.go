package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewStationsCommand creates the stations command.
func NewStationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stations",
		Short: "List the station catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			db, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			stations, err := db.Stations(ctx)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Code", "Name", "Municipality", "Lat", "Lon", "Active"})
			for _, st := range stations {
				t.AppendRow(table.Row{
					st.Code,
					st.Name,
					st.Municipality,
					fmt.Sprintf("%.4f", st.Latitude),
					fmt.Sprintf("%.4f", st.Longitude),
					st.Active,
				})
			}
			t.Render()
			return nil
		},
	}
}
