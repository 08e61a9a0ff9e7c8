// Package pipeline orchestrates one extract-transform-load pass:
// read raw records, normalize, deduplicate, impute, compute hourly
// air quality indices and commit everything as one batch. Every
// invocation leaves exactly one run log row, whatever the outcome.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/calidata/icaflow/internal/airq"
	"github.com/calidata/icaflow/internal/config"
	"github.com/calidata/icaflow/internal/dedupe"
	"github.com/calidata/icaflow/internal/ica"
	"github.com/calidata/icaflow/internal/impute"
	"github.com/calidata/icaflow/internal/normalize"
	"github.com/calidata/icaflow/internal/source"
	"github.com/calidata/icaflow/internal/store"
)

// Options selects the input for one run.
type Options struct {
	// Files are the raw extracts to process as one batch.
	Files []string

	// Source names the column mapping and labels the run log row.
	// Empty falls back to the configured source label.
	Source string

	// From and To bound the hourly window that is kept, inclusive
	// on From and exclusive on To. Zero values leave the window
	// open on that side.
	From time.Time
	To   time.Time
}

// Result summarizes one run for callers and the run log.
type Result struct {
	RunID      string
	Source     string
	Status     string
	Normalized int
	Skipped    int
	Duplicates int
	Imputed    int
	Unfillable int
	Indices    int
	Stats      store.LoadStats
	Duration   time.Duration
	Message    string
}

// Runner wires the pipeline stages against one store.
type Runner struct {
	store  store.Store
	cfg    config.Config
	logger *slog.Logger
}

// New builds a Runner.
func New(st store.Store, cfg config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{store: st, cfg: cfg, logger: logger}
}

// Run executes one full pass and records it in the run log. The
// returned error reflects the pipeline outcome; the run log write is
// attempted even when the pass failed or the context expired.
func (r *Runner) Run(ctx context.Context, opts Options) (Result, error) {
	start := time.Now()

	res := Result{RunID: uuid.NewString(), Source: opts.Source}
	if res.Source == "" {
		res.Source = r.cfg.Pipeline.SourceLabel
	}
	logger := r.logger.With("run_id", res.RunID, "source", res.Source)
	logger.Info("run started", "files", len(opts.Files))

	if timeout := r.cfg.Pipeline.RunTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	runErr := r.run(ctx, opts, &res, logger)
	res.Duration = time.Since(start)
	res.Status, res.Message = outcome(res, runErr)

	// A failed audit write must not undo a committed load.
	if err := r.appendRunLog(ctx, res); err != nil {
		logger.Warn("run log write failed", "error", err)
	}

	logger.Info("run finished",
		"status", res.Status,
		"inserted", res.Stats.Inserted(),
		"skipped", res.Skipped,
		"duration", res.Duration)
	return res, runErr
}

func (r *Runner) run(ctx context.Context, opts Options, res *Result, logger *slog.Logger) error {
	mapping, ok := r.cfg.Mappings()[res.Source]
	if !ok {
		return fmt.Errorf("no mapping for source %q", res.Source)
	}

	if len(opts.Files) == 0 {
		return fmt.Errorf("no input files")
	}
	var records []airq.RawRecord
	for _, path := range opts.Files {
		recs, err := source.ReadCSV(path, res.Source, mapping)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		records = append(records, recs...)
	}
	logger.Debug("extracted", "records", len(records))

	catalog, err := r.store.Catalog(ctx)
	if err != nil {
		return err
	}

	rows, counts := normalize.New(catalog, logger).Normalize(records)
	res.Normalized = counts.Normalized
	res.Skipped = counts.Skipped()
	logger.Debug("normalized", "rows", len(rows), "skipped", counts.Skipped())

	rows = window(rows, opts.From, opts.To)

	dd := dedupe.Dedupe(rows)
	res.Duplicates = dd.Dropped

	imp, err := impute.All(ctx, dd.Rows, r.cfg.Pipeline.MaxGapHours)
	if err != nil {
		return err
	}
	res.Imputed = imp.Imputed
	res.Unfillable = imp.Unfillable
	res.Skipped += dd.Dropped + imp.Unfillable
	logger.Debug("imputed", "filled", imp.Imputed, "unfillable", imp.Unfillable)

	calc, err := r.calculator(logger)
	if err != nil {
		return err
	}
	indices := calc.Aggregate(imp.Rows)
	res.Indices = len(indices)

	stats, err := r.store.LoadBatch(ctx, imp.Rows, indices)
	if err != nil {
		return err
	}
	res.Stats = stats
	return nil
}

func (r *Runner) calculator(logger *slog.Logger) (*ica.Calculator, error) {
	tables := ica.DefaultTables()
	if r.cfg.BreakpointsFile != "" {
		loaded, err := ica.LoadTables(r.cfg.BreakpointsFile)
		if err != nil {
			return nil, fmt.Errorf("load breakpoints: %w", err)
		}
		tables = loaded
	}
	return ica.NewCalculator(tables, r.cfg.Pipeline.Priority, logger)
}

// appendRunLog writes the audit row. When the run context is already
// dead it falls back to a short-lived fresh context so the failure
// still gets recorded.
func (r *Runner) appendRunLog(ctx context.Context, res Result) error {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	return r.store.AppendRunLog(ctx, store.RunLog{
		RunID:      res.RunID,
		ExecutedAt: time.Now().UTC(),
		Source:     res.Source,
		Inserted:   res.Stats.Inserted(),
		Skipped:    res.Skipped,
		Duration:   res.Duration,
		Status:     res.Status,
		Message:    res.Message,
	})
}

func outcome(res Result, runErr error) (status, message string) {
	switch {
	case runErr != nil:
		return store.StatusError, runErr.Error()
	case res.Skipped > 0:
		return store.StatusPartial, fmt.Sprintf("%d registros omitidos", res.Skipped)
	default:
		return store.StatusSuccess, ""
	}
}

// window keeps rows whose hourly bucket falls inside [from, to).
func window(rows []airq.Row, from, to time.Time) []airq.Row {
	if from.IsZero() && to.IsZero() {
		return rows
	}
	kept := rows[:0]
	for _, row := range rows {
		t := row.Bucket.Time()
		if !from.IsZero() && t.Before(from) {
			continue
		}
		if !to.IsZero() && !t.Before(to) {
			continue
		}
		kept = append(kept, row)
	}
	return kept
}
