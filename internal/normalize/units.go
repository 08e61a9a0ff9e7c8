package normalize

import (
	"strings"
)

// Molar volume at 25 C and 1 atm over molecular weight gives the
// ug/m3 <-> ppm conversion for gaseous pollutants.
const molarVolume = 24.45

// molecularWeight in g/mol per gaseous pollutant code.
var molecularWeight = map[string]float64{
	"O3":  48.00,
	"CO":  28.01,
	"NO2": 46.01,
	"SO2": 64.07,
	"H2S": 34.08,
}

// normalizeUnit collapses the unit spellings seen across feeds.
func normalizeUnit(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	switch u {
	case "ug/m3", "µg/m3", "ug/m³", "µg/m³", "mcg/m3":
		return "ug/m3"
	case "mg/m3", "mg/m³":
		return "mg/m3"
	case "ppm":
		return "ppm"
	case "ppb":
		return "ppb"
	default:
		return u
	}
}

// Convert translates a concentration between units for one pollutant.
// Particulate pollutants only support mass-per-volume units; gaseous
// ones additionally convert between mass-per-volume and ppm/ppb using
// their molecular weight.
func Convert(pollutant string, value float64, from, to string) (float64, error) {
	from, to = normalizeUnit(from), normalizeUnit(to)
	if from == to {
		return value, nil
	}

	// Mass units convert between themselves for any pollutant.
	if from == "mg/m3" && to == "ug/m3" {
		return value * 1000, nil
	}
	if from == "ug/m3" && to == "mg/m3" {
		return value / 1000, nil
	}

	mw, gaseous := molecularWeight[pollutant]
	if !gaseous {
		return 0, &SchemaMismatchError{
			Field:  "unit",
			Reason: "cannot convert " + from + " to " + to + " for " + pollutant,
		}
	}

	// Route through ppm.
	var ppm float64
	switch from {
	case "ppm":
		ppm = value
	case "ppb":
		ppm = value / 1000
	case "ug/m3":
		ppm = value * molarVolume / (mw * 1000)
	case "mg/m3":
		ppm = value * molarVolume / mw
	default:
		return 0, &SchemaMismatchError{Field: "unit", Reason: "unrecognized unit " + from}
	}

	switch to {
	case "ppm":
		return ppm, nil
	case "ppb":
		return ppm * 1000, nil
	case "ug/m3":
		return ppm * mw * 1000 / molarVolume, nil
	case "mg/m3":
		return ppm * mw / molarVolume, nil
	default:
		return 0, &SchemaMismatchError{Field: "unit", Reason: "unrecognized unit " + to}
	}
}
