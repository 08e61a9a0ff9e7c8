package normalize

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are the known source formats, tried in order.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04",
}

// excelEpoch is day zero of the Excel serial date scheme used by some
// manually exported station files.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// ParseTimestamp parses a raw timestamp in any of the known source
// formats, including Excel serial day numbers.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty timestamp")
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}

	// Excel serial: fractional days since 1899-12-30.
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 && serial < 80000 {
		d := time.Duration(serial * 24 * float64(time.Hour))
		return excelEpoch.Add(d).UTC(), nil
	}

	return time.Time{}, errors.New("unrecognized timestamp format")
}
