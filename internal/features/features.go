// Package features turns the raw daily dataset into supervised examples:
// cleaning, IQR outlier removal, calendar features, next-day pairing per
// location, standardization and a contiguous train/test split.
package features

import (
	"errors"
	"sort"
	"time"

	"github.com/ventiglobe/ventiglobe/internal/weather"
)

// ErrInsufficientData is returned when fewer than two usable examples remain.
var ErrInsufficientData = errors.New("insufficient data for training")

// FeatureNames is the model input order. Precipitation is not a feature.
var FeatureNames = []string{
	"latitude",
	"longitude",
	"day_of_year",
	"month",
	"year",
	"max_temperature",
	"min_temperature",
	"max_windspeed",
	"humidity",
	"pressure",
}

// NumFeatures is len(FeatureNames).
const NumFeatures = 10

// Inputs are the raw values needed to build one feature vector.
type Inputs struct {
	Latitude       float64
	Longitude      float64
	Date           time.Time
	MaxTemperature float64
	MinTemperature float64
	MaxWindspeed   float64
	Humidity       float64
	Pressure       float64
}

// Vector builds the feature vector in FeatureNames order.
func (in Inputs) Vector() []float64 {
	return []float64{
		in.Latitude,
		in.Longitude,
		float64(in.Date.YearDay()),
		float64(in.Date.Month()),
		float64(in.Date.Year()),
		in.MaxTemperature,
		in.MinTemperature,
		in.MaxWindspeed,
		in.Humidity,
		in.Pressure,
	}
}

// Derive builds the feature vector for a cleaned record. Humidity and
// pressure must be present.
func Derive(r weather.DailyRecord) []float64 {
	return Inputs{
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		Date:           r.Date,
		MaxTemperature: r.MaxTemperature,
		MinTemperature: r.MinTemperature,
		MaxWindspeed:   r.MaxWindspeed,
		Humidity:       deref(r.Humidity),
		Pressure:       deref(r.Pressure),
	}.Vector()
}

// Example is one supervised training row: features of day d, targets of the
// next chronological record at the same location.
type Example struct {
	Features  []float64
	TargetMax float64
	TargetMin float64

	City string
	Date time.Time
}

type locationKey struct {
	city     string
	lat, lon float64
}

// Pair groups records by (city, latitude, longitude), sorts each group by
// date and pairs every record with the next one in its group. The last
// record of each location has no target and is dropped, so a location with
// N records yields N-1 examples. Groups are emitted in first-appearance
// order. Gaps in the calendar are not filled: the next record is the target
// even if days are missing in between.
func Pair(records []weather.DailyRecord) []Example {
	var (
		order  []locationKey
		groups = make(map[locationKey][]weather.DailyRecord)
	)
	for _, r := range records {
		k := locationKey{city: r.City, lat: r.Latitude, lon: r.Longitude}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	var examples []Example
	for _, k := range order {
		g := groups[k]
		sort.SliceStable(g, func(i, j int) bool { return g[i].Date.Before(g[j].Date) })

		for i := 0; i+1 < len(g); i++ {
			examples = append(examples, Example{
				Features:  Derive(g[i]),
				TargetMax: g[i+1].MaxTemperature,
				TargetMin: g[i+1].MinTemperature,
				City:      g[i].City,
				Date:      g[i].Date,
			})
		}
	}
	return examples
}

// Split returns the first int(n*(1-testFraction)) examples as the training
// set and the rest as the test set. Order is preserved; nothing is shuffled.
func Split(examples []Example, testFraction float64) (train, test []Example) {
	if testFraction < 0 {
		testFraction = 0
	}
	if testFraction > 1 {
		testFraction = 1
	}
	idx := int(float64(len(examples)) * (1 - testFraction))
	return examples[:idx], examples[idx:]
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
