// Package store persists measurements, indices and run logs into a
// relational dimensional model. Two backends share one implementation:
// SQLite (modernc driver) for file/in-memory stores and PostgreSQL
// (pgx) for network stores. All fact writes for a run commit as a
// single transaction keyed by natural identities, so re-running a
// window overwrites instead of duplicating.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/calidata/icaflow/internal/airq"
	"github.com/calidata/icaflow/internal/normalize"
)

// ErrStoreUnavailable marks connection, timeout and commit failures.
// Fatal for the current run; the run log records status error.
var ErrStoreUnavailable = errors.New("store unavailable")

// Run states recorded in etl_log.estado.
const (
	StatusSuccess = "exito"
	StatusPartial = "parcial"
	StatusError   = "error"
)

// RunLog is one append-only audit row per pipeline invocation.
type RunLog struct {
	ID         int64
	RunID      string
	ExecutedAt time.Time
	Source     string
	Inserted   int
	Skipped    int
	Duration   time.Duration
	Status     string
	Message    string
}

// LoadStats reports what one batch commit changed.
type LoadStats struct {
	MeasurementsInserted int
	MeasurementsUpdated  int
	IndicesInserted      int
	IndicesUpdated       int
	TimeBuckets          int
}

// Inserted is the total of new fact rows.
func (s LoadStats) Inserted() int {
	return s.MeasurementsInserted + s.IndicesInserted
}

// Store is the persistence contract the pipeline depends on.
type Store interface {
	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error

	// Catalog loads the reference data the Normalizer validates
	// against: active station codes and pollutant canonical units.
	Catalog(ctx context.Context) (normalize.Catalog, error)

	// LoadBatch upserts measurement and index rows atomically.
	// Time buckets are created lazily inside the same transaction.
	// Either every row lands or none do.
	LoadBatch(ctx context.Context, rows []airq.Row, records []airq.IcaRecord) (LoadStats, error)

	// AppendRunLog writes one audit row, independent of the batch
	// transaction.
	AppendRunLog(ctx context.Context, entry RunLog) error

	// RecentRuns returns the latest audit rows, newest first.
	RecentRuns(ctx context.Context, limit int) ([]RunLog, error)

	// SeedStations and SeedPollutants upsert reference data. Only
	// the administrative seed step calls them, never the pipeline.
	SeedStations(ctx context.Context, stations []airq.Station) error
	SeedPollutants(ctx context.Context, pollutants []airq.Pollutant) error

	// Stations lists the station catalog.
	Stations(ctx context.Context) ([]airq.Station, error)

	Close() error
}
