// Package impute fills short gaps in hourly measurement series by
// bounded linear interpolation. Each (station, pollutant) series is
// independent, so series are processed concurrently.
package impute

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/calidata/icaflow/internal/airq"
)

// Result carries a series (or batch) after gap filling.
type Result struct {
	// Rows holds observed plus imputed rows, ordered by bucket.
	Rows []airq.Row
	// Imputed counts synthetic rows emitted.
	Imputed int
	// Unfillable counts missing hours inside gaps wider than the
	// configured maximum; no rows are emitted for them.
	Unfillable int
}

// Series fills gaps in one (station, pollutant) series. A missing hour
// is interpolated between its nearest earlier and later observed
// values only when the whole gap spans at most maxGapHours consecutive
// missing hours. Rows without a value are treated as missing. The
// series boundaries are never extrapolated.
func Series(rows []airq.Row, maxGapHours int) Result {
	observed := make([]airq.Row, 0, len(rows))
	for _, row := range rows {
		if row.Value != nil {
			observed = append(observed, row)
		}
	}
	sort.Slice(observed, func(i, j int) bool {
		return observed[i].Bucket.Before(observed[j].Bucket)
	})

	var res Result
	res.Rows = make([]airq.Row, 0, len(observed))

	for i, row := range observed {
		res.Rows = append(res.Rows, row)
		if i+1 >= len(observed) {
			break
		}

		next := observed[i+1]
		gap := row.Bucket.HoursUntil(next.Bucket) - 1
		if gap <= 0 {
			continue
		}
		if maxGapHours <= 0 || gap > maxGapHours {
			res.Unfillable += gap
			continue
		}

		lo, hi := *row.Value, *next.Value
		for h := 1; h <= gap; h++ {
			frac := float64(h) / float64(gap+1)
			value := lo + (hi-lo)*frac
			res.Rows = append(res.Rows, airq.Row{
				Station:     row.Station,
				Pollutant:   row.Pollutant,
				Bucket:      row.Bucket.AddHours(h),
				Value:       &value,
				Source:      airq.SourceImputed,
				ExtractedAt: next.ExtractedAt,
			})
			res.Imputed++
		}
	}

	return res
}

// All groups rows by (station, pollutant), fills each series and
// merges the results in a stable order.
func All(ctx context.Context, rows []airq.Row, maxGapHours int) (Result, error) {
	type seriesKey struct {
		station   string
		pollutant string
	}

	groups := make(map[seriesKey][]airq.Row)
	for _, row := range rows {
		k := seriesKey{station: row.Station, pollutant: row.Pollutant}
		groups[k] = append(groups[k], row)
	}

	keys := make([]seriesKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].station != keys[j].station {
			return keys[i].station < keys[j].station
		}
		return keys[i].pollutant < keys[j].pollutant
	})

	results := make([]Result, len(keys))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, k := range keys {
		g.Go(func() error {
			results[i] = Series(groups[k], maxGapHours)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var merged Result
	for _, r := range results {
		merged.Rows = append(merged.Rows, r.Rows...)
		merged.Imputed += r.Imputed
		merged.Unfillable += r.Unfillable
	}
	return merged, nil
}
