package main

import (
	"time"

	"github.com/ventiglobe/ventiglobe/internal/collector"
	"github.com/ventiglobe/ventiglobe/internal/model"
	"github.com/ventiglobe/ventiglobe/internal/pipeline"
	"github.com/ventiglobe/ventiglobe/internal/predict"
	"github.com/ventiglobe/ventiglobe/internal/weather"
)

type skippedCity struct {
	City   string `json:"city"`
	Reason string `json:"reason"`
}

type collectOutput struct {
	Records  int           `json:"records"`
	Skipped  []skippedCity `json:"skipped_cities,omitempty"`
	Duration string        `json:"duration"`
}

type trainOutput struct {
	Version  string        `json:"version"`
	Metrics  model.Metrics `json:"metrics"`
	Samples  model.Samples `json:"samples"`
	Records  int           `json:"records,omitempty"`
	Skipped  []skippedCity `json:"skipped_cities,omitempty"`
	Duration string        `json:"duration"`
}

type predictionOutput struct {
	City             string  `json:"city"`
	Date             string  `json:"date"`
	MaxTemperature   float64 `json:"predicted_max_temperature"`
	MinTemperature   float64 `json:"predicted_min_temperature"`
	ModelVersion     string  `json:"model_version"`
	UsedPlaceholders bool    `json:"used_placeholders"`
}

func collectSummary(records int, skipped []collector.CityResult, d time.Duration) collectOutput {
	return collectOutput{
		Records:  records,
		Skipped:  skippedCities(skipped),
		Duration: d.Round(time.Millisecond).String(),
	}
}

func outcomeSummary(out *pipeline.Outcome) trainOutput {
	summary := trainOutput{Duration: out.Duration.Round(time.Millisecond).String()}
	if out.Artifact != nil {
		summary.Version = out.Artifact.Version
		summary.Metrics = out.Artifact.Metrics
		summary.Samples = out.Artifact.Samples
	}
	if out.Collection != nil {
		summary.Records = out.Collection.Records
		summary.Skipped = skippedCities(out.Collection.Skipped())
	}
	return summary
}

func predictionSummary(preds []predict.Prediction) []predictionOutput {
	out := make([]predictionOutput, len(preds))
	for i, p := range preds {
		out[i] = predictionOutput{
			City:             p.City,
			Date:             weather.FormatDate(p.Date),
			MaxTemperature:   p.PredictedMaxTemperature,
			MinTemperature:   p.PredictedMinTemperature,
			ModelVersion:     p.ModelVersion,
			UsedPlaceholders: p.UsedPlaceholders,
		}
	}
	return out
}

func skippedCities(results []collector.CityResult) []skippedCity {
	var out []skippedCity
	for _, r := range results {
		out = append(out, skippedCity{City: r.City, Reason: r.Error})
	}
	return out
}
