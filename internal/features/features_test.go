package features_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventiglobe/ventiglobe/internal/features"
	"github.com/ventiglobe/ventiglobe/internal/weather"
)

func day(city string, lat float64, d int, maxT float64) weather.DailyRecord {
	return weather.DailyRecord{
		Date:           time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d),
		MaxTemperature: maxT,
		MinTemperature: maxT - 8,
		MaxWindspeed:   15,
		Humidity:       weather.Float(75),
		Pressure:       weather.Float(1013),
		City:           city,
		Country:        "Poland",
		Latitude:       lat,
		Longitude:      20,
	}
}

func TestPair_PerLocation(t *testing.T) {
	records := []weather.DailyRecord{
		day("Warsaw", 52.2, 0, 1),
		day("Warsaw", 52.2, 1, 2),
		day("Warsaw", 52.2, 2, 3),
		day("Gdansk", 54.3, 0, 10),
		day("Gdansk", 54.3, 1, 11),
	}

	examples := features.Pair(records)
	require.Len(t, examples, 3, "N-1 examples per location")

	assert.Equal(t, "Warsaw", examples[0].City)
	assert.Equal(t, 2.0, examples[0].TargetMax)
	assert.Equal(t, 3.0, examples[1].TargetMax)
	assert.Equal(t, "Gdansk", examples[2].City)
	assert.Equal(t, 11.0, examples[2].TargetMax)
	assert.Equal(t, 3.0, examples[2].TargetMin)

	for _, e := range examples {
		assert.NotEqual(t, 10.0, e.TargetMax, "the first Gdansk day is never a Warsaw target")
	}
}

func TestPair_SortsByDateWithinLocation(t *testing.T) {
	records := []weather.DailyRecord{
		day("Warsaw", 52.2, 2, 3),
		day("Warsaw", 52.2, 0, 1),
		day("Warsaw", 52.2, 1, 2),
	}

	examples := features.Pair(records)
	require.Len(t, examples, 2)
	assert.Equal(t, records[1].Date, examples[0].Date)
	assert.Equal(t, 2.0, examples[0].TargetMax)
	assert.Equal(t, 3.0, examples[1].TargetMax)
}

func TestPair_SameNameDifferentCoordinates(t *testing.T) {
	records := []weather.DailyRecord{
		day("Warsaw", 52.2, 0, 1),
		day("Warsaw", 41.2, 0, 30),
		day("Warsaw", 52.2, 1, 2),
		day("Warsaw", 41.2, 1, 31),
	}

	examples := features.Pair(records)
	require.Len(t, examples, 2)
	assert.Equal(t, 2.0, examples[0].TargetMax)
	assert.Equal(t, 31.0, examples[1].TargetMax)
}

func TestPair_SingleRecord(t *testing.T) {
	assert.Empty(t, features.Pair([]weather.DailyRecord{day("Warsaw", 52.2, 0, 1)}))
	assert.Empty(t, features.Pair(nil))
}

func TestDerive(t *testing.T) {
	r := day("Warsaw", 52.2, 40, 4.5) // 2023-02-10
	v := features.Derive(r)

	require.Len(t, v, features.NumFeatures)
	require.Len(t, features.FeatureNames, features.NumFeatures)
	assert.Equal(t, []float64{52.2, 20, 41, 2, 2023, 4.5, -3.5, 15, 75, 1013}, v)
}

func TestClean(t *testing.T) {
	incomplete := day("Warsaw", 52.2, 1, 2)
	incomplete.MarkIncomplete()
	noPressure := day("Warsaw", 52.2, 2, 3)
	noPressure.Pressure = nil
	noPrecip := day("Warsaw", 52.2, 3, 4)

	records := []weather.DailyRecord{
		day("Warsaw", 52.2, 0, 1),
		day("Warsaw", 52.2, 0, 1),
		incomplete,
		noPressure,
		noPrecip,
	}

	cleaned := features.Clean(records)
	require.Len(t, cleaned, 2)
	assert.Equal(t, records[0], cleaned[0])
	assert.Equal(t, noPrecip, cleaned[1], "precipitation is not required")
}

func TestClean_NearDuplicatesKept(t *testing.T) {
	a := day("Warsaw", 52.2, 0, 1)
	b := a
	b.PrecipitationProbability = weather.Float(10)

	assert.Len(t, features.Clean([]weather.DailyRecord{a, b}), 2)
}

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}

	assert.InDelta(t, 1.75, features.Quantile(sorted, 0.25), 1e-12)
	assert.InDelta(t, 2.5, features.Quantile(sorted, 0.5), 1e-12)
	assert.InDelta(t, 3.25, features.Quantile(sorted, 0.75), 1e-12)
	assert.Equal(t, 1.0, features.Quantile(sorted, 0))
	assert.Equal(t, 4.0, features.Quantile(sorted, 1))
	assert.Equal(t, 7.0, features.Quantile([]float64{7}, 0.25))
	assert.True(t, math.IsNaN(features.Quantile(nil, 0.5)))
}

func TestRemoveOutliers(t *testing.T) {
	var records []weather.DailyRecord
	for i := 0; i < 20; i++ {
		records = append(records, day("Warsaw", 52.2, i, 10+float64(i%5)))
	}
	spike := day("Warsaw", 52.2, 20, 60)
	records = append(records, spike)

	bounds := features.OutlierBounds(records, features.ColMaxTemperature)
	assert.False(t, bounds.Contains(60))

	kept := features.RemoveOutliers(records, []features.Column{features.ColMaxTemperature})
	assert.Len(t, kept, 20)

	for _, r := range kept {
		assert.True(t, bounds.Contains(r.MaxTemperature), "survivors lie within the fences they were filtered by")
	}

	again := features.RemoveOutliers(kept, []features.Column{features.ColMaxTemperature})
	assert.Equal(t, kept, again, "a second pass over uniform-ish data removes nothing")
}

func TestRemoveOutliers_Progressive(t *testing.T) {
	var records []weather.DailyRecord
	for i := 0; i < 12; i++ {
		r := day("Warsaw", 52.2, i, 10+float64(i%3))
		r.MaxWindspeed = 10 + float64(i%4)
		records = append(records, r)
	}
	hot := day("Warsaw", 52.2, 12, 80)
	hot.MaxWindspeed = 200
	records = append(records, hot)

	kept := features.RemoveOutliers(records, features.OutlierColumns)
	assert.Len(t, kept, 12)
	assert.NotContains(t, kept, hot)
}

func TestRemoveOutliers_Empty(t *testing.T) {
	assert.Empty(t, features.RemoveOutliers(nil, features.OutlierColumns))
}

func TestSplit(t *testing.T) {
	examples := make([]features.Example, 10)
	for i := range examples {
		examples[i].TargetMax = float64(i)
	}

	train, test := features.Split(examples, 0.2)
	require.Len(t, train, 8)
	require.Len(t, test, 2)
	assert.Equal(t, 7.0, train[7].TargetMax)
	assert.Equal(t, 8.0, test[0].TargetMax, "contiguous, no shuffling")

	train, test = features.Split(examples[:3], 0.2)
	assert.Len(t, train, 2, "int(3*0.8) truncates")
	assert.Len(t, test, 1)
}
