package ica

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTables_Valid(t *testing.T) {
	require.NoError(t, DefaultTables().Validate())
}

func TestTableValidate(t *testing.T) {
	tests := []struct {
		name    string
		table   Table
		wantErr bool
	}{
		{"empty", Table{}, true},
		{"inverted concentration range", Table{{CLow: 10, CHigh: 5, ILow: 0, IHigh: 50}}, true},
		{"non increasing bands", Table{
			{CLow: 0, CHigh: 50, ILow: 0, IHigh: 50},
			{CLow: 0, CHigh: 100, ILow: 51, IHigh: 100},
		}, true},
		{"valid", Table{
			{CLow: 0, CHigh: 50, ILow: 0, IHigh: 50},
			{CLow: 51, CHigh: 100, ILow: 51, IHigh: 100},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadTables_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "breakpoints.yaml")
	content := `
PM2.5:
  - conc_min: 0
    conc_max: 100
    ica_min: 0
    ica_max: 100
    categoria: Buena
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tables, err := LoadTables(path)
	require.NoError(t, err)

	require.Len(t, tables["PM2.5"], 1)
	assert.Equal(t, 100.0, tables["PM2.5"][0].CHigh)

	// Pollutants absent from the file keep their defaults.
	assert.Len(t, tables["PM10"], 6)
}

func TestLoadTables_MissingFile(t *testing.T) {
	_, err := LoadTables(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadTables_InvalidTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "breakpoints.yaml")
	content := `
PM2.5:
  - conc_min: 50
    conc_max: 10
    ica_min: 0
    ica_max: 50
    categoria: Buena
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadTables(path)
	assert.Error(t, err)
}
