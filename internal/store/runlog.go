package store

import (
	"context"
	"fmt"
	"time"
)

// AppendRunLog writes one audit row. It runs outside the batch
// transaction so a failed load still leaves its trace.
func (s *DB) AppendRunLog(ctx context.Context, entry RunLog) error {
	insert := s.d.rebind(`INSERT INTO etl_log (run_id, fecha_ejecucion, fuente, registros_insertados, registros_omitidos, duracion_segundos, estado, mensaje)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	executedAt := entry.ExecutedAt
	if executedAt.IsZero() {
		executedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, insert, entry.RunID, executedAt, entry.Source,
		entry.Inserted, entry.Skipped, entry.Duration.Seconds(), entry.Status, entry.Message)
	if err != nil {
		return fmt.Errorf("%w: append run log: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RecentRuns returns the latest audit rows, newest first.
func (s *DB) RecentRuns(ctx context.Context, limit int) ([]RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	query := s.d.rebind(`SELECT id_log, run_id, fecha_ejecucion, fuente, registros_insertados, registros_omitidos, duracion_segundos, estado, mensaje
FROM etl_log ORDER BY fecha_ejecucion DESC, id_log DESC LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list runs: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var entries []RunLog
	for rows.Next() {
		var (
			entry      RunLog
			executedAt any
			seconds    float64
		)
		if err := rows.Scan(&entry.ID, &entry.RunID, &executedAt, &entry.Source,
			&entry.Inserted, &entry.Skipped, &seconds, &entry.Status, &entry.Message); err != nil {
			return nil, err
		}
		if entry.ExecutedAt, err = scanTime(executedAt); err != nil {
			return nil, fmt.Errorf("run %s: %w", entry.RunID, err)
		}
		entry.Duration = time.Duration(seconds * float64(time.Second))
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
