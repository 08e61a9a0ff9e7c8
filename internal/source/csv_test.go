package source

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fallback = time.Date(2024, 3, 12, 8, 0, 0, 0, time.UTC)

func TestReadCSV_LongFormat(t *testing.T) {
	input := `estacion,componente,Fecha & Hora,valor,unidad
Ermita,PM10,2024-03-11 14:00:00,37.5,ug/m3
Pance,O3 (ug/m3),2024-03-11 14:00:00,98,
`
	m := BuiltinMappings()["cali-ckan"]
	records, err := readCSV(strings.NewReader(input), "cali-ckan", m, fallback)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Ermita", records[0].Station)
	assert.Equal(t, "PM10", records[0].Pollutant)
	assert.Equal(t, "37.5", records[0].Value)
	assert.Equal(t, "ug/m3", records[0].Unit)
	assert.Equal(t, fallback, records[0].ExtractedAt)

	assert.Equal(t, "O3 (ug/m3)", records[1].Pollutant)
	assert.Empty(t, records[1].Unit)
}

func TestReadCSV_WideFormat(t *testing.T) {
	input := `Estacion,Fecha inicial,Fecha final,PM10 (ug/m3)
Ermita,2019-05-01 00:00,2019-05-01 01:00,22
Ermita,2019-05-01 01:00,2019-05-01 02:00,25
`
	m := BuiltinMappings()["manual-csv"]
	records, err := readCSV(strings.NewReader(input), "manual-csv", m, fallback)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "PM10 (ug/m3)", records[0].Pollutant)
	assert.Equal(t, "22", records[0].Value)
	assert.Equal(t, "2019-05-01 00:00", records[0].Timestamp)
}

func TestReadCSV_WideAmbiguousPollutant(t *testing.T) {
	input := `Estacion,Fecha inicial,Fecha final,PM10,O3
Ermita,2019-05-01 00:00,2019-05-01 01:00,22,0.05
`
	m := BuiltinMappings()["manual-csv"]
	_, err := readCSV(strings.NewReader(input), "manual-csv", m, fallback)
	assert.Error(t, err)
}

func TestReadCSV_MissingMappedColumn(t *testing.T) {
	input := `sensor,componente,Fecha & Hora,valor
x,PM10,2024-03-11 14:00:00,1
`
	m := BuiltinMappings()["cali-ckan"]
	_, err := readCSV(strings.NewReader(input), "cali-ckan", m, fallback)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "station column")
}

func TestReadCSV_ExtractedAtColumn(t *testing.T) {
	input := `estacion,componente,Fecha & Hora,valor,unidad,extraido
Ermita,PM10,2024-03-11 14:00:00,37.5,ug/m3,2024-03-11T18:00:00Z
Ermita,PM10,2024-03-11 15:00:00,40,ug/m3,not-a-time
`
	m := BuiltinMappings()["cali-ckan"]
	m.ExtractedAt = "extraido"

	records, err := readCSV(strings.NewReader(input), "cali-ckan", m, fallback)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, time.Date(2024, 3, 11, 18, 0, 0, 0, time.UTC), records[0].ExtractedAt)
	assert.Equal(t, fallback, records[1].ExtractedAt, "unparsable extracted_at falls back")
}

func TestReadCSV_HeaderNormalization(t *testing.T) {
	// Doubled spaces in headers, as seen in raw exports.
	input := "estacion,componente,Fecha &  Hora,valor,unidad\nErmita,PM10,2024-03-11 14:00:00,1,ug/m3\n"
	m := BuiltinMappings()["cali-ckan"]

	records, err := readCSV(strings.NewReader(input), "cali-ckan", m, fallback)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2024-03-11 14:00:00", records[0].Timestamp)
}

func TestMappingValidate(t *testing.T) {
	tests := []struct {
		name    string
		m       Mapping
		wantErr bool
	}{
		{"valid long", Mapping{Kind: KindLong, Station: "s", Timestamp: "t", Pollutant: "p", Value: "v"}, false},
		{"valid wide", Mapping{Kind: KindWide, Station: "s", Timestamp: "t"}, false},
		{"unknown kind", Mapping{Kind: "sideways", Station: "s", Timestamp: "t"}, true},
		{"long missing value", Mapping{Kind: KindLong, Station: "s", Timestamp: "t", Pollutant: "p"}, true},
		{"missing station", Mapping{Kind: KindLong, Timestamp: "t", Pollutant: "p", Value: "v"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
