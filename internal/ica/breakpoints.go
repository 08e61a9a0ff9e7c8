// Package ica converts pollutant concentrations into standardized
// air-quality sub-indices via breakpoint tables and aggregates them
// into one overall index per station and hourly bucket.
package ica

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Band maps a concentration range onto a sub-index range.
type Band struct {
	CLow     float64 `koanf:"conc_min"`
	CHigh    float64 `koanf:"conc_max"`
	ILow     int     `koanf:"ica_min"`
	IHigh    int     `koanf:"ica_max"`
	Category string  `koanf:"categoria"`
}

// Table is the ordered list of bands for one pollutant. Bands must be
// strictly increasing in both concentration and index.
type Table []Band

// Tables maps pollutant code to its breakpoint table.
type Tables map[string]Table

// Validate checks the table for ordering violations.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("empty breakpoint table")
	}
	for i, b := range t {
		if b.CHigh < b.CLow || b.IHigh < b.ILow {
			return fmt.Errorf("band %d: inverted range", i)
		}
		if i > 0 {
			prev := t[i-1]
			if b.CLow <= prev.CLow || b.ILow <= prev.ILow {
				return fmt.Errorf("band %d: not monotonically increasing", i)
			}
		}
	}
	return nil
}

// Validate checks every pollutant table.
func (ts Tables) Validate() error {
	for code, t := range ts {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("pollutant %s: %w", code, err)
		}
	}
	return nil
}

// DefaultTables returns the EPA/IDEAM breakpoint tables. Concentration
// units are the canonical unit of each pollutant: ug/m3 for PM2.5 and
// PM10, ppm for O3 and CO, ppb for NO2, SO2 and H2S.
func DefaultTables() Tables {
	return Tables{
		"PM2.5": {
			{0.0, 12.0, 0, 50, "Buena"},
			{12.1, 35.4, 51, 100, "Moderada"},
			{35.5, 55.4, 101, 150, "Dañina a grupos sensibles"},
			{55.5, 150.4, 151, 200, "Dañina"},
			{150.5, 250.4, 201, 300, "Muy dañina"},
			{250.5, 500.4, 301, 500, "Peligrosa"},
		},
		"PM10": {
			{0, 54, 0, 50, "Buena"},
			{55, 154, 51, 100, "Moderada"},
			{155, 254, 101, 150, "Dañina a grupos sensibles"},
			{255, 354, 151, 200, "Dañina"},
			{355, 424, 201, 300, "Muy dañina"},
			{425, 604, 301, 500, "Peligrosa"},
		},
		"O3": {
			{0.000, 0.054, 0, 50, "Buena"},
			{0.055, 0.070, 51, 100, "Moderada"},
			{0.071, 0.085, 101, 150, "Dañina a grupos sensibles"},
			{0.086, 0.105, 151, 200, "Dañina"},
			{0.106, 0.200, 201, 300, "Muy dañina"},
		},
		"CO": {
			{0.0, 4.4, 0, 50, "Buena"},
			{4.5, 9.4, 51, 100, "Moderada"},
			{9.5, 12.4, 101, 150, "Dañina a grupos sensibles"},
			{12.5, 15.4, 151, 200, "Dañina"},
			{15.5, 30.4, 201, 300, "Muy dañina"},
			{30.5, 50.4, 301, 500, "Peligrosa"},
		},
		"NO2": {
			{0, 53, 0, 50, "Buena"},
			{54, 100, 51, 100, "Moderada"},
			{101, 360, 101, 150, "Dañina a grupos sensibles"},
			{361, 649, 151, 200, "Dañina"},
			{650, 1249, 201, 300, "Muy dañina"},
			{1250, 2049, 301, 500, "Peligrosa"},
		},
		"SO2": {
			{0, 35, 0, 50, "Buena"},
			{36, 75, 51, 100, "Moderada"},
			{76, 185, 101, 150, "Dañina a grupos sensibles"},
			{186, 304, 151, 200, "Dañina"},
			{305, 604, 201, 300, "Muy dañina"},
			{605, 1004, 301, 500, "Peligrosa"},
		},
		"H2S": {
			{0, 30, 0, 50, "Buena"},
			{31, 70, 51, 100, "Moderada"},
			{71, 150, 101, 150, "Dañina a grupos sensibles"},
			{151, 225, 151, 200, "Dañina"},
			{226, 300, 201, 300, "Muy dañina"},
			{301, 500, 301, 500, "Peligrosa"},
		},
	}
}

// LoadTables reads breakpoint tables from a YAML file. The file maps
// pollutant code to a list of bands; pollutants present in the file
// replace their default table, others keep the defaults.
func LoadTables(path string) (Tables, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load breakpoints file: %w", err)
	}

	var loaded Tables
	if err := k.Unmarshal("", &loaded); err != nil {
		return nil, fmt.Errorf("parse breakpoints file: %w", err)
	}

	tables := DefaultTables()
	for code, t := range loaded {
		tables[code] = t
	}

	if err := tables.Validate(); err != nil {
		return nil, err
	}
	return tables, nil
}
