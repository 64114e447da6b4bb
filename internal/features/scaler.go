package features

import (
	"errors"
	"fmt"
	"math"
)

// StandardScaler standardizes each column to zero mean and unit variance.
// Variance is the population variance; columns with zero variance keep a
// scale of 1 so they pass through centered.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Fit computes column means and scales from rows.
func (s *StandardScaler) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return errors.New("fit scaler: no rows")
	}
	width := len(rows[0])
	mean := make([]float64, width)
	for i, row := range rows {
		if len(row) != width {
			return fmt.Errorf("fit scaler: row %d has %d columns, want %d", i, len(row), width)
		}
		for j, v := range row {
			mean[j] += v
		}
	}
	n := float64(len(rows))
	for j := range mean {
		mean[j] /= n
	}

	scale := make([]float64, width)
	for _, row := range rows {
		for j, v := range row {
			d := v - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / n)
		if scale[j] == 0 {
			scale[j] = 1
		}
	}

	s.Mean, s.Scale = mean, scale
	return nil
}

// Fitted reports whether Fit has run.
func (s *StandardScaler) Fitted() bool {
	return s != nil && len(s.Mean) > 0 && len(s.Mean) == len(s.Scale)
}

// TransformRow returns a standardized copy of row.
func (s *StandardScaler) TransformRow(row []float64) ([]float64, error) {
	if err := s.check(row); err != nil {
		return nil, err
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// Transform standardizes every row.
func (s *StandardScaler) Transform(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		t, err := s.TransformRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// InverseTransformRow maps a standardized row back to original units.
func (s *StandardScaler) InverseTransformRow(row []float64) ([]float64, error) {
	if err := s.check(row); err != nil {
		return nil, err
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = v*s.Scale[j] + s.Mean[j]
	}
	return out, nil
}

func (s *StandardScaler) check(row []float64) error {
	if !s.Fitted() {
		return errors.New("scaler not fitted")
	}
	if len(row) != len(s.Mean) {
		return fmt.Errorf("got %d columns, scaler fitted on %d", len(row), len(s.Mean))
	}
	return nil
}
