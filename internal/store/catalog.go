package store

import (
	"context"
	"fmt"

	"github.com/calidata/icaflow/internal/airq"
	"github.com/calidata/icaflow/internal/normalize"
)

// Catalog loads the reference data the Normalizer validates against.
// Inactive stations are excluded, so their readings are dropped as
// unknown instead of loaded.
func (s *DB) Catalog(ctx context.Context) (normalize.Catalog, error) {
	cat := normalize.Catalog{
		Stations: make(map[string]struct{}),
		Units:    make(map[string]string),
	}

	rows, err := s.db.QueryContext(ctx, s.d.rebind("SELECT codigo FROM estacion WHERE activo = ?"), true)
	if err != nil {
		return cat, fmt.Errorf("%w: load station catalog: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return cat, err
		}
		cat.Stations[code] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return cat, err
	}

	prows, err := s.db.QueryContext(ctx, "SELECT codigo, unidad FROM contaminante")
	if err != nil {
		return cat, fmt.Errorf("%w: load pollutant catalog: %v", ErrStoreUnavailable, err)
	}
	defer prows.Close()
	for prows.Next() {
		var code, unit string
		if err := prows.Scan(&code, &unit); err != nil {
			return cat, err
		}
		cat.Units[code] = unit
	}
	return cat, prows.Err()
}

// SeedStations upserts station reference rows keyed by codigo.
func (s *DB) SeedStations(ctx context.Context, stations []airq.Station) error {
	upsert := s.d.rebind(`INSERT INTO estacion (codigo, nombre, municipio, departamento, latitud, longitud, altitud, activo)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (codigo) DO UPDATE
SET nombre = excluded.nombre,
    municipio = excluded.municipio,
    departamento = excluded.departamento,
    latitud = excluded.latitud,
    longitud = excluded.longitud,
    altitud = excluded.altitud,
    activo = excluded.activo`)

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, st := range stations {
		if _, err := tx.ExecContext(ctx, upsert, st.Code, st.Name, st.Municipality,
			st.Department, st.Latitude, st.Longitude, st.Altitude, st.Active); err != nil {
			return fmt.Errorf("%w: seed station %s: %v", ErrStoreUnavailable, st.Code, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit station seed: %v", ErrStoreUnavailable, err)
	}
	s.logger.Info("stations seeded", "count", len(stations))
	return nil
}

// SeedPollutants upserts pollutant reference rows keyed by codigo.
func (s *DB) SeedPollutants(ctx context.Context, pollutants []airq.Pollutant) error {
	upsert := s.d.rebind(`INSERT INTO contaminante (codigo, nombre, unidad, limite_normativo)
VALUES (?, ?, ?, ?)
ON CONFLICT (codigo) DO UPDATE
SET nombre = excluded.nombre,
    unidad = excluded.unidad,
    limite_normativo = excluded.limite_normativo`)

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range pollutants {
		if _, err := tx.ExecContext(ctx, upsert, p.Code, p.Name, p.Unit, p.Limit); err != nil {
			return fmt.Errorf("%w: seed pollutant %s: %v", ErrStoreUnavailable, p.Code, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit pollutant seed: %v", ErrStoreUnavailable, err)
	}
	s.logger.Info("pollutants seeded", "count", len(pollutants))
	return nil
}

// Stations lists the station catalog ordered by code.
func (s *DB) Stations(ctx context.Context) ([]airq.Station, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT codigo, nombre, municipio, departamento, latitud, longitud, altitud, activo FROM estacion ORDER BY codigo")
	if err != nil {
		return nil, fmt.Errorf("%w: list stations: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var stations []airq.Station
	for rows.Next() {
		var st airq.Station
		if err := rows.Scan(&st.Code, &st.Name, &st.Municipality, &st.Department,
			&st.Latitude, &st.Longitude, &st.Altitude, &st.Active); err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}
