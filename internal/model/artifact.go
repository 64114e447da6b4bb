// Package model trains, evaluates and persists the pair of random-forest
// regressors that predict next-day maximum and minimum temperature.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ventiglobe/ventiglobe/internal/features"
)

// Predefined errors for model operations.
var (
	// ErrModelNotTrained is returned when no complete artifact set exists.
	ErrModelNotTrained = errors.New("model not trained")

	// ErrTrainingInProgress is returned by TryTrain while another run holds
	// the training lock.
	ErrTrainingInProgress = errors.New("training already in progress")
)

// Artifact is one immutable trained model set. All three parts come from the
// same training run; it is never modified after Save.
type Artifact struct {
	Version   string
	TrainedAt time.Time

	MaxModel *Forest
	MinModel *Forest
	Scaler   *features.StandardScaler

	Metrics      Metrics
	FeatureNames []string
	Samples      Samples
}

// Samples records how many examples were used.
type Samples struct {
	Train int `json:"train"`
	Test  int `json:"test"`
}

// Metadata describes an artifact without its models.
type Metadata struct {
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	Metrics      Metrics   `json:"metrics"`
	FeatureNames []string  `json:"feature_names"`
	Samples      Samples   `json:"samples"`
}

// Metadata returns the artifact's metadata.
func (a *Artifact) Metadata() Metadata {
	return Metadata{
		Version:      a.Version,
		TrainedAt:    a.TrainedAt,
		Metrics:      a.Metrics,
		FeatureNames: a.FeatureNames,
		Samples:      a.Samples,
	}
}

// Validate checks that all parts are present and agree on the feature count.
func (a *Artifact) Validate() error {
	if a == nil || a.MaxModel == nil || a.MinModel == nil || !a.Scaler.Fitted() {
		return ErrModelNotTrained
	}
	n := len(a.Scaler.Mean)
	if a.MaxModel.NumFeatures != n || a.MinModel.NumFeatures != n {
		return fmt.Errorf("artifact %s: feature count mismatch (scaler %d, max %d, min %d)",
			a.Version, n, a.MaxModel.NumFeatures, a.MinModel.NumFeatures)
	}
	return nil
}

// versionLayout has fixed-width nanoseconds so versions sort by creation
// time even within one second.
const versionLayout = "20060102T150405.000000000Z"

// NewVersion returns a version identifier that sorts by creation time.
func NewVersion(t time.Time) string {
	return t.UTC().Format(versionLayout) + "-" + uuid.NewString()[:8]
}
