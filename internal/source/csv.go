package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/calidata/icaflow/internal/airq"
)

// ReadCSV reads one CSV file into raw records using the mapping for
// the given source label. The file's modification time is the default
// extraction timestamp when the mapping names no extracted_at column.
func ReadCSV(path, label string, m Mapping) ([]airq.RawRecord, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("source %s: %w", label, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	fallback := time.Now().UTC()
	if fi, err := f.Stat(); err == nil {
		fallback = fi.ModTime().UTC()
	}

	return readCSV(f, label, m, fallback)
}

func readCSV(r io.Reader, label string, m Mapping, fallback time.Time) ([]airq.RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	cols, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := newHeader(cols)

	if _, ok := h.index(m.Station); !ok {
		return nil, fmt.Errorf("source %s: station column %q not in header", label, m.Station)
	}
	if _, ok := h.index(m.Timestamp); !ok {
		return nil, fmt.Errorf("source %s: timestamp column %q not in header", label, m.Timestamp)
	}

	var pollutantLabel string
	if m.Kind == KindWide {
		pollutantLabel, err = widePollutantColumn(cols, m)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", label, err)
		}
	}

	var records []airq.RawRecord
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		raw := airq.RawRecord{
			SourceLabel: label,
			Station:     field(rec, h, m.Station),
			Timestamp:   field(rec, h, m.Timestamp),
			ExtractedAt: extractedAt(rec, h, m.ExtractedAt, fallback),
		}
		if m.Kind == KindWide {
			raw.Pollutant = pollutantLabel
			raw.Value = field(rec, h, pollutantLabel)
		} else {
			raw.Pollutant = field(rec, h, m.Pollutant)
			raw.Value = field(rec, h, m.Value)
			raw.Unit = field(rec, h, m.Unit)
		}
		records = append(records, raw)
	}

	return records, nil
}

// widePollutantColumn identifies the single pollutant column in a wide
// file: the one column that is not mapped to a known field.
func widePollutantColumn(cols []string, m Mapping) (string, error) {
	known := map[string]struct{}{
		canonKey(m.Station):   {},
		canonKey(m.Timestamp): {},
	}
	for _, extra := range []string{m.ExtractedAt, "Fecha final"} {
		if extra != "" {
			known[canonKey(extra)] = struct{}{}
		}
	}

	var candidates []string
	for _, c := range cols {
		if _, ok := known[canonKey(c)]; !ok {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) != 1 {
		return "", fmt.Errorf("expected exactly one pollutant column, found %d", len(candidates))
	}
	return candidates[0], nil
}
