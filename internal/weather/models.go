package weather

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO-8601 calendar date format used by the provider,
// the persisted dataset and the API.
const DateLayout = "2006-01-02"

// Coordinates is a resolved location. Values are looked up per request and
// never cached across calls.
type Coordinates struct {
	Latitude  float64
	Longitude float64

	// Name is the canonical display name returned by the geocoder.
	Name string

	// Country is the country display name.
	Country string
}

// DailyRecord holds the daily aggregates for one location and calendar date.
// Optional values are nil when the provider did not report them.
type DailyRecord struct {
	Date time.Time

	// Temperatures in degrees Celsius.
	MaxTemperature float64
	MinTemperature float64

	// PrecipitationProbability is the daily maximum, percent (0-100).
	PrecipitationProbability *float64

	// MaxWindspeed at 10m, km/h.
	MaxWindspeed float64

	// Humidity is the daily mean relative humidity at 2m, percent.
	Humidity *float64

	// Pressure is the daily mean sea-level pressure, hPa.
	Pressure *float64

	City      string
	Country   string
	Latitude  float64
	Longitude float64

	// incomplete marks a range-mode record whose mandatory values were null
	// upstream. Such records are kept so that cleaning can account for them.
	incomplete bool
}

// Valid reports whether all mandatory values were present upstream.
func (r DailyRecord) Valid() bool {
	return !r.incomplete
}

// MarkIncomplete flags the record as missing a mandatory value.
func (r *DailyRecord) MarkIncomplete() {
	r.incomplete = true
}

// Key identifies the record's location and date.
func (r DailyRecord) Key() string {
	return fmt.Sprintf("%s|%.5f|%.5f|%s", r.City, r.Latitude, r.Longitude, FormatDate(r.Date))
}

// ParseDate parses a YYYY-MM-DD calendar date. The result is midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &Error{Kind: KindInvalidInput, Err: fmt.Errorf("invalid date %q, use YYYY-MM-DD", s)}
	}
	return t, nil
}

// FormatDate formats the calendar date part of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// CalendarDate returns midnight UTC of t's calendar date in t's own location.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Float returns a pointer to v. Used for optional record values.
func Float(v float64) *float64 {
	return &v
}
