// Package source reads already-extracted raw rows from disk. Each
// known source shape is described by an explicit field-mapping table;
// the reader never guesses column meanings.
package source

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects the reader for a source shape.
type Kind string

const (
	// KindLong is one measurement per row with named columns for
	// station, pollutant, timestamp, value and optionally unit.
	KindLong Kind = "long"
	// KindWide is one station/timestamp per row with a single
	// pollutant column whose header is the pollutant label.
	KindWide Kind = "wide"
)

// Mapping describes how one source's columns map onto the canonical
// record fields. Values are column headers in the source file.
type Mapping struct {
	Kind        Kind   `koanf:"kind"`
	Station     string `koanf:"station"`
	Pollutant   string `koanf:"pollutant"`
	Timestamp   string `koanf:"timestamp"`
	Value       string `koanf:"value"`
	Unit        string `koanf:"unit"`
	ExtractedAt string `koanf:"extracted_at"`
}

// Validate checks that the mapping names every required column.
func (m Mapping) Validate() error {
	if m.Kind != KindLong && m.Kind != KindWide {
		return fmt.Errorf("unknown mapping kind %q", m.Kind)
	}
	if m.Station == "" || m.Timestamp == "" {
		return fmt.Errorf("mapping must name station and timestamp columns")
	}
	if m.Kind == KindLong && (m.Pollutant == "" || m.Value == "") {
		return fmt.Errorf("long mapping must name pollutant and value columns")
	}
	return nil
}

// BuiltinMappings returns the mappings for the known upstream feeds,
// keyed by source label. Config can add or override entries.
func BuiltinMappings() map[string]Mapping {
	return map[string]Mapping{
		// Datos Abiertos de Cali CKAN datastore export.
		"cali-ckan": {
			Kind:      KindLong,
			Station:   "estacion",
			Pollutant: "componente",
			Timestamp: "Fecha & Hora",
			Value:     "valor",
			Unit:      "unidad",
		},
		// Manually exported per-pollutant station files.
		"manual-csv": {
			Kind:      KindWide,
			Station:   "Estacion",
			Timestamp: "Fecha inicial",
		},
	}
}

// header indexes column names case-insensitively, collapsing repeated
// spaces the way the upstream exports sometimes do.
type header map[string]int

func newHeader(cols []string) header {
	h := make(header, len(cols))
	for i, c := range cols {
		h[canonKey(c)] = i
	}
	return h
}

func canonKey(c string) string {
	return strings.ToLower(strings.Join(strings.Fields(c), " "))
}

func (h header) index(col string) (int, bool) {
	i, ok := h[canonKey(col)]
	return i, ok
}

// field returns the trimmed cell for a mapped column, or "".
func field(rec []string, h header, col string) string {
	if col == "" {
		return ""
	}
	if i, ok := h.index(col); ok && i < len(rec) {
		return strings.TrimSpace(rec[i])
	}
	return ""
}

// extractedAt resolves the dedup precedence timestamp for a record:
// the mapped column when present and parsable, else the fallback
// (typically the input file's modification time).
func extractedAt(rec []string, h header, col string, fallback time.Time) time.Time {
	raw := field(rec, h, col)
	if raw == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	return fallback
}
