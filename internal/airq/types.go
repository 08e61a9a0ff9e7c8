// Package airq defines the canonical domain types shared by the
// pipeline stages: raw feed records, cleaned measurement rows, hourly
// time buckets and air-quality index records.
package airq

import "time"

// ValueSource flags how a measurement value was obtained.
type ValueSource string

const (
	// SourceObserved marks a value reported by the station feed.
	SourceObserved ValueSource = "observado"
	// SourceImputed marks a value synthesized by gap interpolation.
	SourceImputed ValueSource = "imputado"
)

// Pollutant codes recognized by the default breakpoint tables.
const (
	PM25 = "PM2.5"
	PM10 = "PM10"
	O3   = "O3"
	NO2  = "NO2"
	CO   = "CO"
	SO2  = "SO2"
	H2S  = "H2S"
)

// DefaultPriority is the tie-break order used when two pollutants
// reach the same sub-index for a station/bucket. Configurable via
// pipeline.priority.
var DefaultPriority = []string{PM25, PM10, O3, NO2, CO, SO2, H2S}

// TimeBucket identifies the hourly granularity at which measurements
// and indices are keyed. Derived deterministically from a timestamp.
type TimeBucket struct {
	Year  int
	Month int
	Day   int
	Hour  int
}

// BucketOf truncates a timestamp to its hourly bucket.
func BucketOf(t time.Time) TimeBucket {
	t = t.UTC()
	return TimeBucket{Year: t.Year(), Month: int(t.Month()), Day: t.Day(), Hour: t.Hour()}
}

// Time returns the bucket start as a UTC timestamp.
func (b TimeBucket) Time() time.Time {
	return time.Date(b.Year, time.Month(b.Month), b.Day, b.Hour, 0, 0, 0, time.UTC)
}

// Before reports whether b starts before other.
func (b TimeBucket) Before(other TimeBucket) bool {
	return b.Time().Before(other.Time())
}

// AddHours returns the bucket n hours after b.
func (b TimeBucket) AddHours(n int) TimeBucket {
	return BucketOf(b.Time().Add(time.Duration(n) * time.Hour))
}

// HoursUntil returns the whole hours from b to other.
func (b TimeBucket) HoursUntil(other TimeBucket) int {
	return int(other.Time().Sub(b.Time()) / time.Hour)
}

// Key is the natural identity of a measurement.
type Key struct {
	Station   string
	Pollutant string
	Bucket    TimeBucket
}

// RawRecord is one row as handed over by the extraction collaborator.
// All fields are raw strings; parsing and validation belong to the
// Normalizer. Extra feed columns are dropped at the source boundary.
type RawRecord struct {
	SourceLabel string
	Station     string
	Pollutant   string
	Timestamp   string
	Value       string
	Unit        string
	ExtractedAt time.Time
}

// Row is a canonical measurement row flowing through the pipeline.
// Value is nil when the feed reported a sentinel or empty reading;
// nil-valued rows are treated as gaps before imputation.
type Row struct {
	Station     string
	Pollutant   string
	Bucket      TimeBucket
	Value       *float64
	Source      ValueSource
	ExtractedAt time.Time
}

// Key returns the natural identity of the row.
func (r Row) Key() Key {
	return Key{Station: r.Station, Pollutant: r.Pollutant, Bucket: r.Bucket}
}

// IcaRecord is the derived overall index for one station and bucket.
type IcaRecord struct {
	Station    string
	Bucket     TimeBucket
	Dominant   string
	Index      int
	Category   string
	SubIndices map[string]int
}

// Station is immutable reference data seeded administratively.
type Station struct {
	Code         string  `koanf:"codigo"`
	Name         string  `koanf:"nombre"`
	Municipality string  `koanf:"municipio"`
	Department   string  `koanf:"departamento"`
	Latitude     float64 `koanf:"latitud"`
	Longitude    float64 `koanf:"longitud"`
	Altitude     float64 `koanf:"altitud"`
	Active       bool    `koanf:"activo"`
}

// Pollutant is immutable reference data seeded administratively.
type Pollutant struct {
	Code  string   `koanf:"codigo"`
	Name  string   `koanf:"nombre"`
	Unit  string   `koanf:"unidad"`
	Limit *float64 `koanf:"limite_normativo"`
}

// Float returns a pointer to v. Convenience for optional values.
func Float(v float64) *float64 { return &v }
