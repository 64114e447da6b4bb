package model_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventiglobe/ventiglobe/internal/features"
	"github.com/ventiglobe/ventiglobe/internal/model"
)

func artifact(t *testing.T, version string) *model.Artifact {
	t.Helper()

	x, y := linear(20)
	f, err := model.FitForest(context.Background(), model.ForestConfig{NTrees: 2, MaxDepth: 3}, x, y)
	require.NoError(t, err)

	scaler := &features.StandardScaler{}
	require.NoError(t, scaler.Fit(x))

	return &model.Artifact{
		Version:      version,
		TrainedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		MaxModel:     f,
		MinModel:     f,
		Scaler:       scaler,
		Metrics:      model.Metrics{MaxTemp: model.Score{RMSE: 1.2, MAE: 0.9, R2: 0.8}},
		FeatureNames: []string{"a", "b"},
		Samples:      model.Samples{Train: 16, Test: 4},
	}
}

func TestFileStore_NotTrained(t *testing.T) {
	store := model.NewFileStore(model.FileStoreConfig{Dir: t.TempDir(), Logger: zerolog.Nop()})

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, model.ErrModelNotTrained)

	_, err = store.Current(context.Background())
	assert.ErrorIs(t, err, model.ErrModelNotTrained)
}

func TestFileStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := model.NewFileStore(model.FileStoreConfig{Dir: dir, Logger: zerolog.Nop()})

	want := artifact(t, "20240501T120000Z-aaaaaaaa")
	require.NoError(t, store.Save(ctx, want))

	for _, name := range []string{model.MaxModelFile, model.MinModelFile, model.ScalerFile, model.MetadataFile} {
		assert.FileExists(t, filepath.Join(dir, "versions", want.Version, name))
	}

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Version, got.Version)
	assert.Equal(t, want.Metrics, got.Metrics)
	assert.Equal(t, want.Samples, got.Samples)
	assert.Equal(t, want.Scaler.Mean, got.Scaler.Mean)

	x, _ := linear(20)
	for _, row := range x {
		a, err := want.MaxModel.Predict(row)
		require.NoError(t, err)
		b, err := got.MaxModel.Predict(row)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}

	meta, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Version, meta.Version)
	assert.True(t, want.TrainedAt.Equal(meta.TrainedAt))
}

func TestFileStore_SaveReplacesCurrentAndPrunes(t *testing.T) {
	ctx := context.Background()
	store := model.NewFileStore(model.FileStoreConfig{Dir: t.TempDir(), KeepVersions: 2, Logger: zerolog.Nop()})

	for _, v := range []string{"v1", "v2", "v3"} {
		require.NoError(t, store.Save(ctx, artifact(t, v)))
	}

	meta, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v3", meta.Version)

	versions, err := store.Versions()
	require.NoError(t, err)
	assert.Equal(t, []string{"v2", "v3"}, versions)
}

func TestFileStore_MissingPart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := model.NewFileStore(model.FileStoreConfig{Dir: dir, Logger: zerolog.Nop()})
	require.NoError(t, store.Save(ctx, artifact(t, "v1")))

	require.NoError(t, os.Remove(filepath.Join(dir, "versions", "v1", model.ScalerFile)))

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, model.ErrModelNotTrained)
}

func TestFileStore_RejectsIncompleteArtifact(t *testing.T) {
	store := model.NewFileStore(model.FileStoreConfig{Dir: t.TempDir(), Logger: zerolog.Nop()})

	a := artifact(t, "v1")
	a.MinModel = nil
	assert.ErrorIs(t, store.Save(context.Background(), a), model.ErrModelNotTrained)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := model.NewMemoryStore()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, model.ErrModelNotTrained)

	require.NoError(t, store.Save(ctx, artifact(t, "v1")))
	meta, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1", meta.Version)
	assert.Equal(t, 1, store.Saves())
}

func TestNewVersion_SortsByTime(t *testing.T) {
	early := model.NewVersion(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	late := model.NewVersion(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.Less(t, early, late)
}

func TestNewVersion_SortsWithinOneSecond(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	prev := model.NewVersion(base)
	for _, d := range []time.Duration{time.Nanosecond, time.Millisecond, 999 * time.Millisecond} {
		next := model.NewVersion(base.Add(d))
		assert.Less(t, prev, next, "version at +%s", d)
		prev = next
	}
}

func TestFileStore_PrunesOldestWithinOneSecond(t *testing.T) {
	ctx := context.Background()
	store := model.NewFileStore(model.FileStoreConfig{Dir: t.TempDir(), KeepVersions: 2, Logger: zerolog.Nop()})

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var saved []string
	for i := 0; i < 3; i++ {
		v := model.NewVersion(base.Add(time.Duration(i) * time.Millisecond))
		require.NoError(t, store.Save(ctx, artifact(t, v)))
		saved = append(saved, v)
	}

	versions, err := store.Versions()
	require.NoError(t, err)
	assert.Equal(t, saved[1:], versions)

	meta, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved[2], meta.Version)
}
