// Package normalize maps heterogeneous per-station raw records into
// canonical measurement rows: one station code, pollutant code, hourly
// bucket, value and canonical unit per row. Rows that cannot be
// normalized are skipped and counted, never fatal for the batch.
package normalize

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/calidata/icaflow/internal/airq"
)

// SchemaMismatchError marks a raw record that cannot be normalized:
// a required field is absent or holds a value that cannot be defaulted
// or converted.
type SchemaMismatchError struct {
	Field  string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch on %q: %s", e.Field, e.Reason)
}

// Is lets errors.Is match any SchemaMismatchError against ErrSchemaMismatch.
func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// ErrSchemaMismatch is the sentinel for errors.Is checks.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Counts summarizes one normalization pass.
type Counts struct {
	Normalized       int
	BadTimestamp     int
	UnknownStation   int
	UnknownPollutant int
	SchemaMismatch   int
	EmptyValue       int
}

// Skipped returns the number of input records that produced no row.
func (c Counts) Skipped() int {
	return c.BadTimestamp + c.UnknownStation + c.UnknownPollutant + c.SchemaMismatch
}

// Catalog is the reference data the Normalizer validates against:
// known station codes and the canonical unit per pollutant code.
// Unknown codes are rejected rather than silently created.
type Catalog struct {
	Stations map[string]struct{}
	Units    map[string]string
}

// Normalizer converts raw feed records into canonical rows.
type Normalizer struct {
	catalog Catalog
	logger  *slog.Logger
}

// New builds a Normalizer bound to a reference catalog.
func New(catalog Catalog, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Normalizer{catalog: catalog, logger: logger}
}

// labelUnit captures a parenthesized unit in a pollutant label,
// e.g. "O3 (ug/m3)".
var labelUnit = regexp.MustCompile(`\((.*?)\)`)

// SplitLabel separates a pollutant label into code and embedded unit.
func SplitLabel(label string) (code, unit string) {
	if m := labelUnit.FindStringSubmatch(label); m != nil {
		unit = strings.TrimSpace(m[1])
	}
	code = strings.TrimSpace(labelUnit.ReplaceAllString(label, ""))
	return strings.ToUpper(code), unit
}

// Normalize converts a batch. Rejected records are counted per cause
// and logged at debug level.
func (n *Normalizer) Normalize(records []airq.RawRecord) ([]airq.Row, Counts) {
	rows := make([]airq.Row, 0, len(records))
	var counts Counts

	for _, rec := range records {
		row, err := n.one(rec)
		switch {
		case err == nil:
			if row.Value == nil {
				counts.EmptyValue++
			}
			rows = append(rows, row)
			counts.Normalized++
		case errors.Is(err, errBadTimestamp):
			counts.BadTimestamp++
			n.logger.Debug("dropping record with unparsable timestamp",
				"timestamp", rec.Timestamp, "station", rec.Station)
		case errors.Is(err, errUnknownStation):
			counts.UnknownStation++
			n.logger.Debug("rejecting record for unknown station", "station", rec.Station)
		case errors.Is(err, errUnknownPollutant):
			counts.UnknownPollutant++
			n.logger.Debug("rejecting record for unknown pollutant", "pollutant", rec.Pollutant)
		default:
			counts.SchemaMismatch++
			n.logger.Debug("rejecting record", "error", err)
		}
	}

	return rows, counts
}

var (
	errBadTimestamp     = errors.New("unparsable timestamp")
	errUnknownStation   = errors.New("unknown station code")
	errUnknownPollutant = errors.New("unknown pollutant code")
)

func (n *Normalizer) one(rec airq.RawRecord) (airq.Row, error) {
	station := strings.ToUpper(strings.TrimSpace(rec.Station))
	if station == "" {
		return airq.Row{}, &SchemaMismatchError{Field: "station", Reason: "missing"}
	}
	if _, ok := n.catalog.Stations[station]; !ok {
		return airq.Row{}, fmt.Errorf("%w: %s", errUnknownStation, station)
	}

	if strings.TrimSpace(rec.Pollutant) == "" {
		return airq.Row{}, &SchemaMismatchError{Field: "pollutant", Reason: "missing"}
	}
	code, embeddedUnit := SplitLabel(rec.Pollutant)
	canonicalUnit, ok := n.catalog.Units[code]
	if !ok {
		return airq.Row{}, fmt.Errorf("%w: %s", errUnknownPollutant, code)
	}

	ts, err := ParseTimestamp(rec.Timestamp)
	if err != nil {
		return airq.Row{}, errBadTimestamp
	}

	unit := strings.TrimSpace(rec.Unit)
	if unit == "" {
		unit = embeddedUnit
	}
	if unit == "" {
		// A feed that carries no unit reports in the canonical one.
		unit = canonicalUnit
	}

	value := parseValue(rec.Value)
	if value != nil {
		converted, err := Convert(code, *value, unit, canonicalUnit)
		if err != nil {
			return airq.Row{}, err
		}
		value = &converted
	}

	return airq.Row{
		Station:     station,
		Pollutant:   code,
		Bucket:      airq.BucketOf(ts),
		Value:       value,
		Source:      airq.SourceObserved,
		ExtractedAt: rec.ExtractedAt,
	}, nil
}

// parseValue interprets the raw value field. Empty, non-numeric and
// sentinel readings (<= -900) surface as nil, i.e. a gap.
func parseValue(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return nil
	}
	if v <= -900 {
		return nil
	}
	return &v
}
