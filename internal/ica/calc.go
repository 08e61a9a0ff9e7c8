package ica

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/calidata/icaflow/internal/airq"
)

// MaxSubIndex is the ceiling of the index scale. Concentrations above
// the highest configured band clamp here instead of erroring.
const MaxSubIndex = 500

// ErrTableMissing is returned when a pollutant has no breakpoint
// table. The pollutant is simply omitted from aggregation.
var ErrTableMissing = errors.New("no breakpoint table for pollutant")

// SubIndex is the standardized index contribution of one pollutant.
type SubIndex struct {
	Pollutant string
	Index     int
	Category  string
}

// Calculator computes sub-indices and aggregates them per station and
// bucket using a fixed pollutant priority for tie-breaks.
type Calculator struct {
	tables   Tables
	priority map[string]int
	logger   *slog.Logger
}

// NewCalculator builds a Calculator. A nil logger discards output;
// an empty priority falls back to airq.DefaultPriority.
func NewCalculator(tables Tables, priority []string, logger *slog.Logger) (*Calculator, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	if len(priority) == 0 {
		priority = airq.DefaultPriority
	}
	rank := make(map[string]int, len(priority))
	for i, code := range priority {
		rank[code] = i
	}
	return &Calculator{tables: tables, priority: rank, logger: logger}, nil
}

// SubIndex maps a concentration in the pollutant's canonical unit to
// its sub-index via piecewise-linear interpolation. Concentrations
// below the lowest band floor clamp to the lowest index; above the
// highest ceiling they clamp to MaxSubIndex.
func (c *Calculator) SubIndex(pollutant string, conc float64) (SubIndex, error) {
	table, ok := c.tables[pollutant]
	if !ok {
		return SubIndex{}, fmt.Errorf("%w: %s", ErrTableMissing, pollutant)
	}

	first, last := table[0], table[len(table)-1]
	if conc < first.CLow {
		return SubIndex{Pollutant: pollutant, Index: first.ILow, Category: first.Category}, nil
	}
	if conc > last.CHigh {
		return SubIndex{Pollutant: pollutant, Index: MaxSubIndex, Category: last.Category}, nil
	}

	for _, band := range table {
		if conc > band.CHigh {
			continue
		}
		// Discrete tables leave gaps between bands (e.g. PM10
		// 54 -> 55); concentrations in a gap snap to the floor
		// of the next band so the mapping stays monotonic.
		if conc < band.CLow {
			conc = band.CLow
		}
		v := float64(band.ILow)
		if band.CHigh > band.CLow {
			v += (conc - band.CLow) * float64(band.IHigh-band.ILow) / (band.CHigh - band.CLow)
		}
		return SubIndex{Pollutant: pollutant, Index: int(math.Round(v)), Category: band.Category}, nil
	}

	// Unreachable while the table passes Validate.
	return SubIndex{Pollutant: pollutant, Index: MaxSubIndex, Category: last.Category}, nil
}

// Aggregate computes one IcaRecord per (station, bucket) present in
// rows. Rows without a value and pollutants without a table contribute
// nothing; a group with zero sub-indices yields no record. Output is
// sorted by station and bucket.
func (c *Calculator) Aggregate(rows []airq.Row) []airq.IcaRecord {
	type groupKey struct {
		station string
		bucket  airq.TimeBucket
	}

	groups := make(map[groupKey][]SubIndex)
	for _, row := range rows {
		if row.Value == nil {
			continue
		}
		sub, err := c.SubIndex(row.Pollutant, *row.Value)
		if err != nil {
			if errors.Is(err, ErrTableMissing) {
				c.logger.Debug("pollutant without breakpoint table, skipping",
					"pollutant", row.Pollutant, "station", row.Station)
				continue
			}
			continue
		}
		k := groupKey{station: row.Station, bucket: row.Bucket}
		groups[k] = append(groups[k], sub)
	}

	records := make([]airq.IcaRecord, 0, len(groups))
	for k, subs := range groups {
		dominant := c.dominant(subs)
		rec := airq.IcaRecord{
			Station:    k.station,
			Bucket:     k.bucket,
			Dominant:   dominant.Pollutant,
			Index:      dominant.Index,
			Category:   dominant.Category,
			SubIndices: make(map[string]int, len(subs)),
		}
		for _, s := range subs {
			rec.SubIndices[s.Pollutant] = s.Index
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Station != records[j].Station {
			return records[i].Station < records[j].Station
		}
		return records[i].Bucket.Before(records[j].Bucket)
	})
	return records
}

// dominant picks the sub-index with the highest value; ties resolve by
// the configured pollutant priority, then by code so the choice never
// depends on input order.
func (c *Calculator) dominant(subs []SubIndex) SubIndex {
	best := subs[0]
	for _, s := range subs[1:] {
		switch {
		case s.Index > best.Index:
			best = s
		case s.Index == best.Index && c.outranks(s.Pollutant, best.Pollutant):
			best = s
		}
	}
	return best
}

func (c *Calculator) outranks(a, b string) bool {
	ra, aok := c.priority[a]
	rb, bok := c.priority[b]
	switch {
	case aok && bok:
		return ra < rb
	case aok:
		return true
	case bok:
		return false
	default:
		return a < b
	}
}
