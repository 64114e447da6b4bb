package model

import "math"

// Score holds regression metrics on the test split.
type Score struct {
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
}

// Metrics holds one Score per target.
type Metrics struct {
	MaxTemp Score `json:"max_temp"`
	MinTemp Score `json:"min_temp"`
}

// AsMap flattens the metrics as target -> metric -> value.
func (m Metrics) AsMap() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"max_temp": {"rmse": m.MaxTemp.RMSE, "mae": m.MaxTemp.MAE, "r2": m.MaxTemp.R2},
		"min_temp": {"rmse": m.MinTemp.RMSE, "mae": m.MinTemp.MAE, "r2": m.MinTemp.R2},
	}
}

// Evaluate computes RMSE, MAE and R² of pred against truth. When truth is
// constant R² is 1 for a perfect prediction and 0 otherwise.
func Evaluate(truth, pred []float64) Score {
	n := len(truth)
	if n == 0 || n != len(pred) {
		return Score{RMSE: math.NaN(), MAE: math.NaN(), R2: math.NaN()}
	}

	var mean float64
	for _, v := range truth {
		mean += v
	}
	mean /= float64(n)

	var sse, sae, sst float64
	for i := range truth {
		d := truth[i] - pred[i]
		sse += d * d
		sae += math.Abs(d)
		t := truth[i] - mean
		sst += t * t
	}

	r2 := 1 - sse/sst
	if sst == 0 {
		r2 = 0
		if sse == 0 {
			r2 = 1
		}
	}

	return Score{
		RMSE: math.Sqrt(sse / float64(n)),
		MAE:  sae / float64(n),
		R2:   r2,
	}
}
