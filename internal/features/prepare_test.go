package features_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventiglobe/ventiglobe/internal/features"
	"github.com/ventiglobe/ventiglobe/internal/weather"
)

func seasonal(city string, lat float64, days int) []weather.DailyRecord {
	out := make([]weather.DailyRecord, days)
	for i := range out {
		out[i] = day(city, lat, i, 10+float64(i%2))
		out[i].Humidity = weather.Float(60 + float64(i%3))
		out[i].Pressure = weather.Float(1010 + float64(i%3))
		out[i].MaxWindspeed = 10 + float64(i%2)
	}
	return out
}

func TestPrepare(t *testing.T) {
	records := append(seasonal("Warsaw", 52.2, 30), seasonal("Krakow", 50.1, 30)...)

	prepared, err := features.Prepare(records, features.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 60, prepared.Stats.Input)
	assert.Equal(t, 2, prepared.Stats.Locations)
	assert.Equal(t, 58, prepared.Stats.Examples)

	assert.Equal(t, 46, prepared.Train.Len())
	assert.Equal(t, 12, prepared.Test.Len())
	require.Len(t, prepared.Train.YMax, 46)
	require.Len(t, prepared.Test.YMin, 12)

	require.True(t, prepared.Scaler.Fitted())
	assert.Len(t, prepared.Train.X[0], features.NumFeatures)
}

func TestPrepare_InsufficientData(t *testing.T) {
	tests := []struct {
		name    string
		records []weather.DailyRecord
	}{
		{"empty", nil},
		{"one record", seasonal("Warsaw", 52.2, 1)},
		{"two records one example", seasonal("Warsaw", 52.2, 2)},
		{"one record per city", append(seasonal("Warsaw", 52.2, 1), seasonal("Krakow", 50.1, 1)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := features.Prepare(tt.records, features.DefaultOptions())
			assert.ErrorIs(t, err, features.ErrInsufficientData)
		})
	}
}

func TestPrepare_DropsIncompleteRows(t *testing.T) {
	records := seasonal("Warsaw", 52.2, 10)
	records[3].Humidity = nil
	records[5].MarkIncomplete()

	prepared, err := features.Prepare(records, features.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 8, prepared.Stats.Cleaned)
	assert.Equal(t, 7, prepared.Stats.Examples)
}
