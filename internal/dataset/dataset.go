// Package dataset persists the historical weather dataset used for training.
// Every write replaces the whole dataset; there is no merge.
package dataset

import (
	"context"
	"errors"

	"github.com/ventiglobe/ventiglobe/internal/weather"
)

// Predefined errors for dataset operations.
var (
	// ErrNotFound is returned by Load when nothing has been persisted yet.
	ErrNotFound = errors.New("dataset not found")

	// ErrEmpty is returned by Replace when asked to persist zero records.
	ErrEmpty = errors.New("dataset is empty")
)

// Dataset is the flat table of daily records, ordered by city then date as
// produced by collection.
type Dataset struct {
	Records []weather.DailyRecord
}

// New wraps records in a Dataset.
func New(records []weather.DailyRecord) *Dataset {
	return &Dataset{Records: records}
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Cities returns the distinct city names in first-appearance order.
func (d *Dataset) Cities() []string {
	if d == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var cities []string
	for _, r := range d.Records {
		if r.City == "" {
			continue
		}
		if _, ok := seen[r.City]; ok {
			continue
		}
		seen[r.City] = struct{}{}
		cities = append(cities, r.City)
	}
	return cities
}

// Store loads and replaces the persisted dataset.
type Store interface {
	// Load returns the persisted dataset or ErrNotFound.
	Load(ctx context.Context) (*Dataset, error)

	// Replace overwrites the persisted dataset.
	Replace(ctx context.Context, ds *Dataset) error

	// Exists reports whether a dataset has been persisted.
	Exists(ctx context.Context) (bool, error)
}
