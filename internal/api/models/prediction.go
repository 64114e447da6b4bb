package models

// PredictionResponse is one next-day temperature prediction.
type PredictionResponse struct {
	City                    string  `json:"city"`
	Date                    Date    `json:"date"`
	PredictedMaxTemperature float64 `json:"predicted_max_temperature"`
	PredictedMinTemperature float64 `json:"predicted_min_temperature"`
	ModelVersion            string  `json:"model_version,omitempty"`
	UsedPlaceholders        bool    `json:"used_placeholders,omitempty"`
}

// PredictionRangeResponse is returned by GET /v1/predict/{city}/week.
type PredictionRangeResponse struct {
	City        string               `json:"city"`
	Predictions []PredictionResponse `json:"predictions"`
}
