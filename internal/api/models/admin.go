package models

// RetrainRequest is the optional body of POST /v1/admin/retrain. Empty
// fields fall back to the configured cities and lookback.
type RetrainRequest struct {
	Cities []string `json:"cities,omitempty"`
	Years  int      `json:"years,omitempty"`
}

// RetrainResponse reports a completed retrain.
type RetrainResponse struct {
	Status   string                        `json:"status"`
	Message  string                        `json:"message"`
	Version  string                        `json:"version,omitempty"`
	Metrics  map[string]map[string]float64 `json:"metrics,omitempty"`
	Records  int                           `json:"records"`
	Skipped  []string                      `json:"skipped_cities,omitempty"`
	Duration string                        `json:"duration"`
}

// ModelStatus is returned by GET /v1/admin/model.
type ModelStatus struct {
	Phase        string                        `json:"phase"`
	Version      string                        `json:"version,omitempty"`
	TrainedAt    *Timestamp                    `json:"trained_at,omitempty"`
	Metrics      map[string]map[string]float64 `json:"metrics,omitempty"`
	FeatureNames []string                      `json:"feature_names,omitempty"`
	TrainSamples int                           `json:"train_samples,omitempty"`
	TestSamples  int                           `json:"test_samples,omitempty"`
}
