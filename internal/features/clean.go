package features

import (
	"fmt"
	"math"
	"sort"

	"github.com/ventiglobe/ventiglobe/internal/weather"
)

// Column names a numeric record column subject to outlier filtering.
type Column string

const (
	ColMaxTemperature Column = "max_temperature"
	ColMinTemperature Column = "min_temperature"
	ColMaxWindspeed   Column = "max_windspeed"
	ColHumidity       Column = "humidity"
	ColPressure       Column = "pressure"
)

// OutlierColumns is the fixed filtering order.
var OutlierColumns = []Column{
	ColMaxTemperature,
	ColMinTemperature,
	ColMaxWindspeed,
	ColHumidity,
	ColPressure,
}

// IQRMultiplier scales the interquartile range for the outlier fences.
const IQRMultiplier = 1.5

// Clean drops records with a missing model input (mandatory values, humidity
// or pressure) and exact duplicates, keeping the first occurrence.
func Clean(records []weather.DailyRecord) []weather.DailyRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]weather.DailyRecord, 0, len(records))

	for _, r := range records {
		if !r.Valid() || r.Humidity == nil || r.Pressure == nil {
			continue
		}
		k := rowKey(r)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// rowKey covers every column, so only fully identical rows collide.
func rowKey(r weather.DailyRecord) string {
	precip := "nil"
	if r.PrecipitationProbability != nil {
		precip = fmt.Sprint(*r.PrecipitationProbability)
	}
	return fmt.Sprint(
		weather.FormatDate(r.Date), "|",
		r.MaxTemperature, "|", r.MinTemperature, "|", precip, "|",
		r.MaxWindspeed, "|", deref(r.Humidity), "|", deref(r.Pressure), "|",
		r.City, "|", r.Country, "|", r.Latitude, "|", r.Longitude,
	)
}

// Value returns the column value of r.
func (c Column) Value(r weather.DailyRecord) float64 {
	switch c {
	case ColMaxTemperature:
		return r.MaxTemperature
	case ColMinTemperature:
		return r.MinTemperature
	case ColMaxWindspeed:
		return r.MaxWindspeed
	case ColHumidity:
		return deref(r.Humidity)
	case ColPressure:
		return deref(r.Pressure)
	default:
		return math.NaN()
	}
}

// Bounds are the inclusive outlier fences for one column.
type Bounds struct {
	Q1, Q3    float64
	Low, High float64
}

// Contains reports whether v lies within the fences.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Low && v <= b.High
}

// OutlierBounds computes the IQR fences for column over all records pooled.
func OutlierBounds(records []weather.DailyRecord, column Column) Bounds {
	values := make([]float64, len(records))
	for i, r := range records {
		values[i] = column.Value(r)
	}
	sort.Float64s(values)

	q1 := Quantile(values, 0.25)
	q3 := Quantile(values, 0.75)
	iqr := q3 - q1
	return Bounds{
		Q1:   q1,
		Q3:   q3,
		Low:  q1 - IQRMultiplier*iqr,
		High: q3 + IQRMultiplier*iqr,
	}
}

// RemoveOutliers filters columns in the given order. Each column's fences are
// computed over the rows that survived the previous columns.
func RemoveOutliers(records []weather.DailyRecord, columns []Column) []weather.DailyRecord {
	out := records
	for _, col := range columns {
		if len(out) == 0 {
			break
		}
		b := OutlierBounds(out, col)
		kept := make([]weather.DailyRecord, 0, len(out))
		for _, r := range out {
			if b.Contains(col.Value(r)) {
				kept = append(kept, r)
			}
		}
		out = kept
	}
	return out
}

// Quantile returns the q-quantile of sorted values using linear
// interpolation between the closest ranks. NaN for empty input.
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}

	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
