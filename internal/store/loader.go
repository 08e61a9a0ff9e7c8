package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/calidata/icaflow/internal/airq"
)

// LoadBatch upserts cleaned measurement rows and computed index
// records in one transaction. Time buckets are created on first
// reference inside the same transaction. On any error the whole batch
// rolls back; no partial run data becomes visible.
func (s *DB) LoadBatch(ctx context.Context, rows []airq.Row, records []airq.IcaRecord) (LoadStats, error) {
	var stats LoadStats
	if len(rows) == 0 && len(records) == 0 {
		return stats, nil
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return stats, err
	}
	defer func() { _ = tx.Rollback() }()

	stationIDs, err := s.idsByCode(ctx, tx, "SELECT codigo, id_estacion FROM estacion")
	if err != nil {
		return stats, err
	}
	pollutantIDs, err := s.idsByCode(ctx, tx, "SELECT codigo, id_contaminante FROM contaminante")
	if err != nil {
		return stats, err
	}

	bucketIDs, err := s.ensureBuckets(ctx, tx, collectBuckets(rows, records))
	if err != nil {
		return stats, err
	}
	stats.TimeBuckets = len(bucketIDs)

	if err := s.upsertMeasurements(ctx, tx, rows, stationIDs, pollutantIDs, bucketIDs, &stats); err != nil {
		return stats, err
	}
	if err := s.upsertIndices(ctx, tx, records, stationIDs, pollutantIDs, bucketIDs, &stats); err != nil {
		return stats, err
	}

	if err := tx.Commit(); err != nil {
		return LoadStats{}, fmt.Errorf("%w: commit batch: %v", ErrStoreUnavailable, err)
	}

	s.logger.Debug("batch committed",
		"measurements_inserted", stats.MeasurementsInserted,
		"measurements_updated", stats.MeasurementsUpdated,
		"indices_inserted", stats.IndicesInserted,
		"indices_updated", stats.IndicesUpdated)
	return stats, nil
}

func (s *DB) idsByCode(ctx context.Context, tx *sql.Tx, query string) (map[string]int64, error) {
	rows, err := tx.QueryContext(ctx, s.d.rebind(query))
	if err != nil {
		return nil, fmt.Errorf("%w: load dimension ids: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	ids := make(map[string]int64)
	for rows.Next() {
		var code string
		var id int64
		if err := rows.Scan(&code, &id); err != nil {
			return nil, err
		}
		ids[code] = id
	}
	return ids, rows.Err()
}

func collectBuckets(rows []airq.Row, records []airq.IcaRecord) []airq.TimeBucket {
	seen := make(map[airq.TimeBucket]struct{})
	for _, r := range rows {
		seen[r.Bucket] = struct{}{}
	}
	for _, r := range records {
		seen[r.Bucket] = struct{}{}
	}

	buckets := make([]airq.TimeBucket, 0, len(seen))
	for b := range seen {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Before(buckets[j]) })
	return buckets
}

// ensureBuckets creates missing tiempo rows and returns bucket ids.
func (s *DB) ensureBuckets(ctx context.Context, tx *sql.Tx, buckets []airq.TimeBucket) (map[airq.TimeBucket]int64, error) {
	insert := s.d.rebind(`INSERT INTO tiempo (anio, mes, dia, hora, fecha, fecha_hora, dia_semana, nombre_mes, trimestre)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (anio, mes, dia, hora) DO NOTHING`)
	query := s.d.rebind(`SELECT id_tiempo FROM tiempo WHERE anio = ? AND mes = ? AND dia = ? AND hora = ?`)

	ids := make(map[airq.TimeBucket]int64, len(buckets))
	for _, b := range buckets {
		t := b.Time()
		_, err := tx.ExecContext(ctx, insert,
			b.Year, b.Month, b.Day, b.Hour,
			t.Format("2006-01-02"), t,
			t.Weekday().String(), t.Month().String(), (b.Month-1)/3+1)
		if err != nil {
			return nil, fmt.Errorf("%w: insert time bucket: %v", ErrStoreUnavailable, err)
		}

		var id int64
		if err := tx.QueryRowContext(ctx, query, b.Year, b.Month, b.Day, b.Hour).Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: read time bucket id: %v", ErrStoreUnavailable, err)
		}
		ids[b] = id
	}
	return ids, nil
}

// existingKeys loads the natural keys already present for the touched
// buckets, so upserts can be counted as inserts vs updates. keyCols
// must name integer id columns; the returned set uses "/"-joined ids.
func (s *DB) existingKeys(ctx context.Context, tx *sql.Tx, table, timeCol string, keyCols []string, bucketIDs map[airq.TimeBucket]int64) (map[string]struct{}, error) {
	if len(bucketIDs) == 0 {
		return map[string]struct{}{}, nil
	}

	args := make([]any, 0, len(bucketIDs))
	for _, id := range bucketIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	query := s.d.rebind(fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		strings.Join(keyCols, ", "), table, timeCol, placeholders))

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: load existing keys: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		ids := make([]int64, len(keyCols))
		dest := make([]any, len(keyCols))
		for i := range ids {
			dest[i] = &ids[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		keys[joinKey(ids...)] = struct{}{}
	}
	return keys, rows.Err()
}

func joinKey(ids ...int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, "/")
}

func (s *DB) upsertMeasurements(ctx context.Context, tx *sql.Tx, rows []airq.Row,
	stations, pollutants map[string]int64, buckets map[airq.TimeBucket]int64, stats *LoadStats) error {

	existing, err := s.existingKeys(ctx, tx, "medicion", "id_tiempo",
		[]string{"id_estacion", "id_contaminante", "id_tiempo"}, buckets)
	if err != nil {
		return err
	}

	upsert := s.d.rebind(`INSERT INTO medicion (id_estacion, id_contaminante, id_tiempo, valor, fuente_valor)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id_estacion, id_contaminante, id_tiempo) DO UPDATE
SET valor = excluded.valor, fuente_valor = excluded.fuente_valor`)

	for _, row := range rows {
		if row.Value == nil {
			continue
		}
		stationID, ok := stations[row.Station]
		if !ok {
			return fmt.Errorf("station %q not in catalog", row.Station)
		}
		pollutantID, ok := pollutants[row.Pollutant]
		if !ok {
			return fmt.Errorf("pollutant %q not in catalog", row.Pollutant)
		}
		bucketID := buckets[row.Bucket]

		if _, err := tx.ExecContext(ctx, upsert, stationID, pollutantID, bucketID, *row.Value, string(row.Source)); err != nil {
			return fmt.Errorf("%w: upsert measurement: %v", ErrStoreUnavailable, err)
		}

		key := joinKey(stationID, pollutantID, bucketID)
		if _, dup := existing[key]; dup {
			stats.MeasurementsUpdated++
		} else {
			existing[key] = struct{}{}
			stats.MeasurementsInserted++
		}
	}
	return nil
}

func (s *DB) upsertIndices(ctx context.Context, tx *sql.Tx, records []airq.IcaRecord,
	stations, pollutants map[string]int64, buckets map[airq.TimeBucket]int64, stats *LoadStats) error {

	existing, err := s.existingKeys(ctx, tx, "indice_ica", "id_tiempo",
		[]string{"id_estacion", "id_tiempo"}, buckets)
	if err != nil {
		return err
	}

	upsert := s.d.rebind(`INSERT INTO indice_ica (id_estacion, id_tiempo, id_contaminante, ica, categoria, subindices, fuente_calculo)
VALUES (?, ?, ?, ?, ?, ?, 'automatico')
ON CONFLICT (id_estacion, id_tiempo) DO UPDATE
SET id_contaminante = excluded.id_contaminante,
    ica = excluded.ica,
    categoria = excluded.categoria,
    subindices = excluded.subindices,
    fuente_calculo = excluded.fuente_calculo`)

	for _, rec := range records {
		stationID, ok := stations[rec.Station]
		if !ok {
			return fmt.Errorf("station %q not in catalog", rec.Station)
		}
		pollutantID, ok := pollutants[rec.Dominant]
		if !ok {
			return fmt.Errorf("pollutant %q not in catalog", rec.Dominant)
		}
		bucketID := buckets[rec.Bucket]

		subindices, err := json.Marshal(rec.SubIndices)
		if err != nil {
			return fmt.Errorf("encode sub-indices: %w", err)
		}

		if _, err := tx.ExecContext(ctx, upsert, stationID, bucketID, pollutantID,
			rec.Index, rec.Category, string(subindices)); err != nil {
			return fmt.Errorf("%w: upsert index: %v", ErrStoreUnavailable, err)
		}

		key := joinKey(stationID, bucketID)
		if _, dup := existing[key]; dup {
			stats.IndicesUpdated++
		} else {
			existing[key] = struct{}{}
			stats.IndicesInserted++
		}
	}
	return nil
}
