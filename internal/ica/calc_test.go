package ica

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calidata/icaflow/internal/airq"
)

func newTestCalculator(t *testing.T, priority []string) *Calculator {
	t.Helper()
	calc, err := NewCalculator(DefaultTables(), priority, nil)
	require.NoError(t, err)
	return calc
}

func TestSubIndex_Breakpoints(t *testing.T) {
	calc := newTestCalculator(t, nil)

	tests := []struct {
		name      string
		pollutant string
		conc      float64
		want      int
		category  string
	}{
		{"pm25 band floor", "PM2.5", 0.0, 0, "Buena"},
		{"pm25 upper bound of moderate band", "PM2.5", 35.4, 100, "Moderada"},
		{"pm25 lower bound of sensitive band", "PM2.5", 35.5, 101, "Dañina a grupos sensibles"},
		{"pm25 mid band", "PM2.5", 12.0, 50, "Buena"},
		{"pm10 clean air", "PM10", 27, 25, "Buena"},
		{"o3 moderate", "O3", 0.070, 100, "Moderada"},
		{"co upper scale", "CO", 50.4, 500, "Peligrosa"},
		{"so2 mid", "SO2", 35, 50, "Buena"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := calc.SubIndex(tt.pollutant, tt.conc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sub.Index)
			assert.Equal(t, tt.category, sub.Category)
		})
	}
}

func TestSubIndex_Clamping(t *testing.T) {
	calc := newTestCalculator(t, nil)

	below, err := calc.SubIndex("PM2.5", -4)
	require.NoError(t, err)
	assert.Equal(t, 0, below.Index)

	above, err := calc.SubIndex("PM2.5", 9000)
	require.NoError(t, err)
	assert.Equal(t, MaxSubIndex, above.Index)

	// O3 tables stop at 0.200; anything above still clamps rather
	// than erroring.
	o3, err := calc.SubIndex("O3", 0.5)
	require.NoError(t, err)
	assert.Equal(t, MaxSubIndex, o3.Index)
}

func TestSubIndex_GapBetweenBands(t *testing.T) {
	calc := newTestCalculator(t, nil)

	// PM10 bands are discrete: 0-54 then 55-154. A reading of 54.5
	// snaps to the floor of the higher band.
	sub, err := calc.SubIndex("PM10", 54.5)
	require.NoError(t, err)
	assert.Equal(t, 51, sub.Index)
	assert.Equal(t, "Moderada", sub.Category)
}

func TestSubIndex_Monotonic(t *testing.T) {
	calc := newTestCalculator(t, nil)

	for _, pollutant := range []string{"PM2.5", "PM10", "O3", "NO2", "CO", "SO2"} {
		prev := -1
		for conc := 0.0; conc < 700; conc += 0.25 {
			sub, err := calc.SubIndex(pollutant, conc)
			require.NoError(t, err)
			if sub.Index < prev {
				t.Fatalf("%s: sub-index decreased from %d to %d at concentration %v",
					pollutant, prev, sub.Index, conc)
			}
			prev = sub.Index
		}
	}
}

func TestSubIndex_MissingTable(t *testing.T) {
	calc := newTestCalculator(t, nil)

	_, err := calc.SubIndex("NH3", 12)
	assert.True(t, errors.Is(err, ErrTableMissing))
}

func TestAggregate_DominantPollutant(t *testing.T) {
	calc := newTestCalculator(t, nil)
	bucket := airq.TimeBucket{Year: 2024, Month: 3, Day: 11, Hour: 14}

	rows := []airq.Row{
		{Station: "ERMITA", Pollutant: "PM2.5", Bucket: bucket, Value: airq.Float(55.4)}, // 150
		{Station: "ERMITA", Pollutant: "PM10", Bucket: bucket, Value: airq.Float(154)},   // 100
		{Station: "ERMITA", Pollutant: "O3", Bucket: bucket, Value: airq.Float(0.060)},   // 67
	}

	records := calc.Aggregate(rows)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "ERMITA", rec.Station)
	assert.Equal(t, 150, rec.Index)
	assert.Equal(t, "PM2.5", rec.Dominant)
	assert.Equal(t, map[string]int{"PM2.5": 150, "PM10": 100, "O3": 67}, rec.SubIndices)
}

func TestAggregate_TieBreakByPriority(t *testing.T) {
	bucket := airq.TimeBucket{Year: 2024, Month: 3, Day: 11, Hour: 14}
	rows := []airq.Row{
		// Both map to sub-index 50.
		{Station: "PANCE", Pollutant: "PM10", Bucket: bucket, Value: airq.Float(54)},
		{Station: "PANCE", Pollutant: "PM2.5", Bucket: bucket, Value: airq.Float(12.0)},
	}

	calc := newTestCalculator(t, nil)
	records := calc.Aggregate(rows)
	require.Len(t, records, 1)
	assert.Equal(t, "PM2.5", records[0].Dominant, "default priority prefers PM2.5")

	calc = newTestCalculator(t, []string{"PM10", "PM2.5"})
	records = calc.Aggregate(rows)
	require.Len(t, records, 1)
	assert.Equal(t, "PM10", records[0].Dominant, "configured priority wins ties")
}

func TestAggregate_NoSubIndicesNoRecord(t *testing.T) {
	calc := newTestCalculator(t, nil)
	bucket := airq.TimeBucket{Year: 2024, Month: 3, Day: 11, Hour: 14}

	rows := []airq.Row{
		{Station: "PANCE", Pollutant: "NH3", Bucket: bucket, Value: airq.Float(3)},
		{Station: "PANCE", Pollutant: "PM2.5", Bucket: bucket, Value: nil},
	}

	assert.Empty(t, calc.Aggregate(rows))
}

func TestAggregate_SortedOutput(t *testing.T) {
	calc := newTestCalculator(t, nil)
	b1 := airq.TimeBucket{Year: 2024, Month: 3, Day: 11, Hour: 8}
	b2 := b1.AddHours(1)

	rows := []airq.Row{
		{Station: "UNIVALLE", Pollutant: "PM10", Bucket: b2, Value: airq.Float(30)},
		{Station: "FLORA", Pollutant: "PM10", Bucket: b1, Value: airq.Float(30)},
		{Station: "FLORA", Pollutant: "PM10", Bucket: b2, Value: airq.Float(30)},
	}

	records := calc.Aggregate(rows)
	require.Len(t, records, 3)
	assert.Equal(t, "FLORA", records[0].Station)
	assert.Equal(t, b1, records[0].Bucket)
	assert.Equal(t, "FLORA", records[1].Station)
	assert.Equal(t, "UNIVALLE", records[2].Station)
}
