package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calidata/icaflow/internal/airq"
)

func testCatalog() Catalog {
	return Catalog{
		Stations: map[string]struct{}{
			"ERMITA": {},
			"PANCE":  {},
		},
		Units: map[string]string{
			"PM2.5": "ug/m3",
			"PM10":  "ug/m3",
			"O3":    "ppm",
			"NO2":   "ppb",
		},
	}
}

func rawRecord() airq.RawRecord {
	return airq.RawRecord{
		SourceLabel: "cali-ckan",
		Station:     "Ermita",
		Pollutant:   "PM10",
		Timestamp:   "2024-03-11 14:00:00",
		Value:       "37.5",
		Unit:        "ug/m3",
		ExtractedAt: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
	}
}

func TestNormalize_CanonicalRow(t *testing.T) {
	n := New(testCatalog(), nil)

	rows, counts := n.Normalize([]airq.RawRecord{rawRecord()})
	require.Len(t, rows, 1)
	assert.Equal(t, 1, counts.Normalized)
	assert.Zero(t, counts.Skipped())

	row := rows[0]
	assert.Equal(t, "ERMITA", row.Station)
	assert.Equal(t, "PM10", row.Pollutant)
	assert.Equal(t, airq.TimeBucket{Year: 2024, Month: 3, Day: 11, Hour: 14}, row.Bucket)
	require.NotNil(t, row.Value)
	assert.InDelta(t, 37.5, *row.Value, 1e-9)
	assert.Equal(t, airq.SourceObserved, row.Source)
}

func TestNormalize_UnitEmbeddedInLabel(t *testing.T) {
	n := New(testCatalog(), nil)

	rec := rawRecord()
	rec.Pollutant = "O3 (ug/m3)"
	rec.Unit = ""
	rec.Value = "98" // ug/m3 -> ppm

	rows, counts := n.Normalize([]airq.RawRecord{rec})
	require.Len(t, rows, 1)
	assert.Equal(t, 1, counts.Normalized)
	assert.Equal(t, "O3", rows[0].Pollutant)
	assert.InDelta(t, 98*24.45/48000, *rows[0].Value, 1e-6)
}

func TestNormalize_RejectsUnknownCodes(t *testing.T) {
	n := New(testCatalog(), nil)

	badStation := rawRecord()
	badStation.Station = "NOWHERE"

	badPollutant := rawRecord()
	badPollutant.Pollutant = "CH4"

	rows, counts := n.Normalize([]airq.RawRecord{badStation, badPollutant})
	assert.Empty(t, rows)
	assert.Equal(t, 1, counts.UnknownStation)
	assert.Equal(t, 1, counts.UnknownPollutant)
	assert.Equal(t, 2, counts.Skipped())
}

func TestNormalize_DropsBadTimestamp(t *testing.T) {
	n := New(testCatalog(), nil)

	bad := rawRecord()
	bad.Timestamp = "not a date"

	rows, counts := n.Normalize([]airq.RawRecord{bad, rawRecord()})
	assert.Len(t, rows, 1, "one bad timestamp never aborts the batch")
	assert.Equal(t, 1, counts.BadTimestamp)
}

func TestNormalize_MissingFieldsAreSchemaMismatch(t *testing.T) {
	n := New(testCatalog(), nil)

	noStation := rawRecord()
	noStation.Station = "  "
	noPollutant := rawRecord()
	noPollutant.Pollutant = ""

	rows, counts := n.Normalize([]airq.RawRecord{noStation, noPollutant})
	assert.Empty(t, rows)
	assert.Equal(t, 2, counts.SchemaMismatch)
	assert.Equal(t, 2, counts.Skipped())
}

func TestNormalize_SentinelAndEmptyValues(t *testing.T) {
	n := New(testCatalog(), nil)

	sentinel := rawRecord()
	sentinel.Value = "-999"
	empty := rawRecord()
	empty.Value = ""

	rows, counts := n.Normalize([]airq.RawRecord{sentinel, empty})
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].Value)
	assert.Nil(t, rows[1].Value)
	assert.Equal(t, 2, counts.EmptyValue)
}

func TestNormalize_UnconvertibleUnit(t *testing.T) {
	n := New(testCatalog(), nil)

	rec := rawRecord()
	rec.Unit = "ppm" // particulates have no mass<->volume conversion

	rows, counts := n.Normalize([]airq.RawRecord{rec})
	assert.Empty(t, rows)
	assert.Equal(t, 1, counts.SchemaMismatch)
}

func TestSchemaMismatchError_Is(t *testing.T) {
	err := error(&SchemaMismatchError{Field: "unit", Reason: "x"})
	assert.True(t, errors.Is(err, ErrSchemaMismatch))
}

func TestSplitLabel(t *testing.T) {
	tests := []struct {
		in       string
		code     string
		unit     string
	}{
		{"O3 (ug/m3)", "O3", "ug/m3"},
		{"PM10", "PM10", ""},
		{"pm2.5 (µg/m3)", "PM2.5", "µg/m3"},
	}
	for _, tt := range tests {
		code, unit := SplitLabel(tt.in)
		assert.Equal(t, tt.code, code)
		assert.Equal(t, tt.unit, unit)
	}
}

func TestParseTimestamp_Formats(t *testing.T) {
	want := time.Date(2024, 3, 11, 14, 30, 0, 0, time.UTC)

	tests := []string{
		"2024-03-11T14:30:00Z",
		"2024-03-11T14:30:00",
		"2024-03-11 14:30:00",
		"2024-03-11 14:30",
		"11/03/2024 14:30",
	}
	for _, raw := range tests {
		got, err := ParseTimestamp(raw)
		require.NoError(t, err, raw)
		assert.True(t, got.Equal(want), "%s parsed to %s", raw, got)
	}
}

func TestParseTimestamp_ExcelSerial(t *testing.T) {
	// 45357.5 = 2024-03-06 12:00 UTC.
	got, err := ParseTimestamp("45357.5")
	require.NoError(t, err)
	assert.Equal(t, 2024, got.Year())
	assert.Equal(t, time.March, got.Month())
	assert.Equal(t, 6, got.Day())
	assert.Equal(t, 12, got.Hour())
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, raw := range []string{"", "soon", "99/99/9999 99:99"} {
		_, err := ParseTimestamp(raw)
		assert.Error(t, err, raw)
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name      string
		pollutant string
		value     float64
		from, to  string
		want      float64
	}{
		{"identity", "PM10", 12, "ug/m3", "ug/m3", 12},
		{"mg to ug", "PM10", 1.5, "mg/m3", "ug/m3", 1500},
		{"co mg/m3 to ppm", "CO", 10, "mg/m3", "ppm", 10 * 24.45 / 28.01},
		{"no2 ug/m3 to ppb", "NO2", 100, "ug/m3", "ppb", 100 * 24.45 / 46.01},
		{"ppb to ppm", "SO2", 120, "ppb", "ppm", 0.12},
		{"unit spelling variants", "PM2.5", 8, "µg/m³", "ug/m3", 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.pollutant, tt.value, tt.from, tt.to)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestConvert_Errors(t *testing.T) {
	_, err := Convert("PM10", 5, "ppm", "ug/m3")
	assert.True(t, errors.Is(err, ErrSchemaMismatch))

	_, err = Convert("O3", 5, "furlongs", "ppm")
	assert.True(t, errors.Is(err, ErrSchemaMismatch))
}
