package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/calidata/icaflow/internal/pipeline"
	"github.com/calidata/icaflow/internal/store"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Files      []string
	From       string
	To         string
	JSONOutput bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one extract-transform-load pass",
		Long: `Read a raw extract, normalize and deduplicate the readings, fill
short gaps, compute hourly ICA indices and load everything into the
store as one transaction. Every invocation appends one run log row.`,
		Example: `  # Load a CKAN extract
  icaflow run --input extracts/cali-2024-03.csv --source cali-ckan

  # Load several files as one batch
  icaflow run -i a.csv -i b.csv

  # Restrict the load to one day
  icaflow run -i extract.csv --from 2024-03-11 --to 2024-03-12`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Files, "input", "i", nil, "Raw extract to process, repeatable (required)")
	cmd.Flags().StringVar(&opts.From, "from", "", "Keep readings from this time on (inclusive)")
	cmd.Flags().StringVar(&opts.To, "to", "", "Keep readings before this time (exclusive)")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Print the run summary as JSON")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	ctx := cmd.Context()

	from, err := parseBound(opts.From)
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	to, err := parseBound(opts.To)
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}

	db, rt, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	runner := pipeline.New(db, rt.cfg, rt.logger)
	res, runErr := runner.Run(ctx, pipeline.Options{
		Files: opts.Files,
		From:  from,
		To:    to,
	})

	if opts.JSONOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printSummary(cmd, res)
	}
	return runErr
}

func printSummary(cmd *cobra.Command, res pipeline.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (%s)\n", res.RunID, res.Source)
	fmt.Fprintf(out, "  Normalized:  %d (skipped %d, duplicates %d)\n", res.Normalized, res.Skipped, res.Duplicates)
	fmt.Fprintf(out, "  Imputed:     %d (unfillable %d)\n", res.Imputed, res.Unfillable)
	fmt.Fprintf(out, "  Measurements: %d inserted, %d updated\n", res.Stats.MeasurementsInserted, res.Stats.MeasurementsUpdated)
	fmt.Fprintf(out, "  Indices:     %d inserted, %d updated\n", res.Stats.IndicesInserted, res.Stats.IndicesUpdated)
	fmt.Fprintf(out, "  Duration:    %s\n", res.Duration.Round(time.Millisecond))

	switch res.Status {
	case store.StatusSuccess:
		fmt.Fprintln(out, "Status: exito")
	case store.StatusPartial:
		fmt.Fprintf(out, "Status: parcial (%s)\n", res.Message)
	default:
		fmt.Fprintf(out, "Status: error (%s)\n", res.Message)
	}
}

// parseBound accepts a date or a full timestamp.
func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q", s)
}
