package features

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ventiglobe/ventiglobe/internal/weather"
)

// Options controls Prepare.
type Options struct {
	// TestFraction is the share of examples held out at the end.
	// Default: 0.2
	TestFraction float64

	// Columns overrides the outlier filtering columns.
	// Default: OutlierColumns
	Columns []Column

	Logger zerolog.Logger
}

// DefaultOptions returns the standard preparation options.
func DefaultOptions() Options {
	return Options{
		TestFraction: 0.2,
		Columns:      OutlierColumns,
		Logger:       zerolog.Nop(),
	}
}

// Matrix is a set of scaled feature rows with their targets.
type Matrix struct {
	X    [][]float64
	YMax []float64
	YMin []float64
}

// Len returns the number of rows.
func (m Matrix) Len() int {
	return len(m.X)
}

// Stats counts rows surviving each stage.
type Stats struct {
	Input         int
	Cleaned       int
	AfterOutliers int
	Examples      int
	Locations     int
}

// Prepared is the output of Prepare: scaled train and test matrices and the
// fitted scaler.
type Prepared struct {
	Train  Matrix
	Test   Matrix
	Scaler *StandardScaler
	Stats  Stats
}

// Prepare runs cleaning, outlier removal, pairing, scaling and the split.
// The scaler is fitted on all examples before splitting.
func Prepare(records []weather.DailyRecord, opts Options) (*Prepared, error) {
	if opts.TestFraction <= 0 || opts.TestFraction >= 1 {
		opts.TestFraction = 0.2
	}
	if len(opts.Columns) == 0 {
		opts.Columns = OutlierColumns
	}
	log := opts.Logger

	stats := Stats{Input: len(records)}

	cleaned := Clean(records)
	stats.Cleaned = len(cleaned)

	filtered := RemoveOutliers(cleaned, opts.Columns)
	stats.AfterOutliers = len(filtered)

	examples := Pair(filtered)
	stats.Examples = len(examples)
	stats.Locations = countLocations(filtered)

	log.Info().
		Int("input", stats.Input).
		Int("cleaned", stats.Cleaned).
		Int("after_outliers", stats.AfterOutliers).
		Int("examples", stats.Examples).
		Int("locations", stats.Locations).
		Msg("prepared features")

	if len(examples) < 2 {
		return nil, fmt.Errorf("%w: %d examples after cleaning", ErrInsufficientData, len(examples))
	}

	rows := make([][]float64, len(examples))
	for i, e := range examples {
		rows[i] = e.Features
	}

	scaler := &StandardScaler{}
	if err := scaler.Fit(rows); err != nil {
		return nil, err
	}

	scaled, err := scaler.Transform(rows)
	if err != nil {
		return nil, err
	}
	for i := range examples {
		examples[i].Features = scaled[i]
	}

	train, test := Split(examples, opts.TestFraction)
	if len(train) == 0 || len(test) == 0 {
		return nil, fmt.Errorf("%w: split left %d train and %d test examples", ErrInsufficientData, len(train), len(test))
	}

	log.Debug().Int("train", len(train)).Int("test", len(test)).Msg("split examples")

	return &Prepared{
		Train:  toMatrix(train),
		Test:   toMatrix(test),
		Scaler: scaler,
		Stats:  stats,
	}, nil
}

func toMatrix(examples []Example) Matrix {
	m := Matrix{
		X:    make([][]float64, len(examples)),
		YMax: make([]float64, len(examples)),
		YMin: make([]float64, len(examples)),
	}
	for i, e := range examples {
		m.X[i] = e.Features
		m.YMax[i] = e.TargetMax
		m.YMin[i] = e.TargetMin
	}
	return m
}

func countLocations(records []weather.DailyRecord) int {
	seen := make(map[locationKey]struct{})
	for _, r := range records {
		seen[locationKey{city: r.City, lat: r.Latitude, lon: r.Longitude}] = struct{}{}
	}
	return len(seen)
}
