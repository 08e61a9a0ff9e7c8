package commands

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"

	"github.com/calidata/icaflow/internal/airq"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <reference.yaml>",
		Short: "Load station and pollutant reference data",
		Long: `Upsert the station and pollutant catalogs from a YAML file. The file
holds two lists, estaciones and contaminantes, keyed by codigo.
Seeding is idempotent; re-running updates rows in place.`,
		Example: `  icaflow seed reference/cali.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			stations, pollutants, err := readReference(args[0])
			if err != nil {
				return err
			}
			if len(stations) == 0 && len(pollutants) == 0 {
				return fmt.Errorf("%s holds no estaciones or contaminantes", args[0])
			}

			db, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(ctx); err != nil {
				return err
			}
			if len(stations) > 0 {
				if err := db.SeedStations(ctx, stations); err != nil {
					return err
				}
			}
			if len(pollutants) > 0 {
				if err := db.SeedPollutants(ctx, pollutants); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d stations and %d pollutants\n", len(stations), len(pollutants))
			return nil
		},
	}
	return cmd
}

func readReference(path string) ([]airq.Station, []airq.Pollutant, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}

	var stations []airq.Station
	if err := k.Unmarshal("estaciones", &stations); err != nil {
		return nil, nil, fmt.Errorf("parse estaciones: %w", err)
	}
	var pollutants []airq.Pollutant
	if err := k.Unmarshal("contaminantes", &pollutants); err != nil {
		return nil, nil, fmt.Errorf("parse contaminantes: %w", err)
	}
	return stations, pollutants, nil
}
