// Package dedupe collapses repeated observations for the same
// (station, pollutant, bucket) key into a single row using a
// deterministic precedence rule.
package dedupe

import (
	"sort"

	"github.com/calidata/icaflow/internal/airq"
)

// Result carries the deduplicated rows plus how many were dropped.
type Result struct {
	Rows    []airq.Row
	Dropped int
}

// Dedupe returns exactly one row per key. Precedence: the row with the
// most recent extraction timestamp wins; on a tie, a non-nil value
// beats a nil one; remaining ties resolve by value so the outcome is
// identical for every ordering of the input. Output is sorted by
// station, pollutant and bucket.
func Dedupe(rows []airq.Row) Result {
	chosen := make(map[airq.Key]airq.Row, len(rows))
	for _, row := range rows {
		key := row.Key()
		current, ok := chosen[key]
		if !ok || wins(row, current) {
			chosen[key] = row
		}
	}

	out := make([]airq.Row, 0, len(chosen))
	for _, row := range chosen {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Station != b.Station {
			return a.Station < b.Station
		}
		if a.Pollutant != b.Pollutant {
			return a.Pollutant < b.Pollutant
		}
		return a.Bucket.Before(b.Bucket)
	})

	return Result{Rows: out, Dropped: len(rows) - len(out)}
}

// wins reports whether candidate takes precedence over incumbent.
func wins(candidate, incumbent airq.Row) bool {
	if !candidate.ExtractedAt.Equal(incumbent.ExtractedAt) {
		return candidate.ExtractedAt.After(incumbent.ExtractedAt)
	}
	if (candidate.Value != nil) != (incumbent.Value != nil) {
		return candidate.Value != nil
	}
	if candidate.Value != nil && *candidate.Value != *incumbent.Value {
		return *candidate.Value < *incumbent.Value
	}
	return false
}
