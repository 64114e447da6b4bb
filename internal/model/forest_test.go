package model_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventiglobe/ventiglobe/internal/model"
)

func linear(n int) ([][]float64, []float64) {
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := range x {
		v := float64(i) / float64(n)
		x[i] = []float64{v, float64(i % 3)}
		y[i] = 10*v + 5
	}
	return x, y
}

func TestFitForest_FitsSimpleFunction(t *testing.T) {
	x, y := linear(200)
	cfg := model.ForestConfig{NTrees: 20, MaxDepth: 8, Seed: 42}

	forest, err := model.FitForest(context.Background(), cfg, x, y)
	require.NoError(t, err)

	assert.Len(t, forest.Trees, 20)
	assert.Equal(t, 2, forest.NumFeatures)

	for _, v := range []float64{0.1, 0.5, 0.9} {
		got, err := forest.Predict([]float64{v, 1})
		require.NoError(t, err)
		assert.InDelta(t, 10*v+5, got, 0.5)
	}
}

func TestFitForest_Deterministic(t *testing.T) {
	x, y := linear(100)
	cfg := model.ForestConfig{NTrees: 10, MaxDepth: 5, Seed: 7}

	cfg.Workers = 1
	a, err := model.FitForest(context.Background(), cfg, x, y)
	require.NoError(t, err)

	cfg.Workers = 4
	b, err := model.FitForest(context.Background(), cfg, x, y)
	require.NoError(t, err)

	pa, err := a.PredictAll(x)
	require.NoError(t, err)
	pb, err := b.PredictAll(x)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestFitForest_RespectsMaxDepth(t *testing.T) {
	x, y := linear(100)
	forest, err := model.FitForest(context.Background(), model.ForestConfig{NTrees: 3, MaxDepth: 2}, x, y)
	require.NoError(t, err)

	for _, tree := range forest.Trees {
		assert.LessOrEqual(t, tree.Depth(), 2)
	}
}

func TestFitForest_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := model.FitForest(ctx, model.DefaultForestConfig(), nil, nil)
	assert.Error(t, err)

	_, err = model.FitForest(ctx, model.DefaultForestConfig(), [][]float64{{1}}, []float64{1, 2})
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	x, y := linear(10)
	_, err = model.FitForest(cancelled, model.ForestConfig{NTrees: 50, Workers: 1}, x, y)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestForest_PredictFeatureMismatch(t *testing.T) {
	x, y := linear(20)
	forest, err := model.FitForest(context.Background(), model.ForestConfig{NTrees: 2}, x, y)
	require.NoError(t, err)

	_, err = forest.Predict([]float64{1})
	assert.Error(t, err)
}

func TestForest_ConstantTarget(t *testing.T) {
	x, _ := linear(30)
	y := make([]float64, len(x))
	for i := range y {
		y[i] = 3
	}

	forest, err := model.FitForest(context.Background(), model.ForestConfig{NTrees: 4}, x, y)
	require.NoError(t, err)

	for _, tree := range forest.Trees {
		assert.Equal(t, 0, tree.Depth())
	}
	got, err := forest.Predict(x[0])
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)
}

func TestTree_PredictStep(t *testing.T) {
	tree := model.Tree{Nodes: []model.Node{
		{Feature: 0, Threshold: 0.5, Left: 1, Right: 2},
		{Left: -1, Right: -1, Value: -1},
		{Left: -1, Right: -1, Value: 1},
	}}

	assert.Equal(t, -1.0, tree.Predict([]float64{0.5}))
	assert.Equal(t, 1.0, tree.Predict([]float64{0.6}))
	assert.Equal(t, 1, tree.Depth())
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		truth []float64
		pred  []float64
		want  model.Score
	}{
		{
			name:  "perfect",
			truth: []float64{1, 2, 3},
			pred:  []float64{1, 2, 3},
			want:  model.Score{RMSE: 0, MAE: 0, R2: 1},
		},
		{
			name:  "constant offset",
			truth: []float64{1, 2, 3},
			pred:  []float64{2, 3, 4},
			want:  model.Score{RMSE: 1, MAE: 1, R2: -0.5},
		},
		{
			name:  "constant truth exact",
			truth: []float64{5, 5},
			pred:  []float64{5, 5},
			want:  model.Score{RMSE: 0, MAE: 0, R2: 1},
		},
		{
			name:  "constant truth miss",
			truth: []float64{5, 5},
			pred:  []float64{4, 6},
			want:  model.Score{RMSE: 1, MAE: 1, R2: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := model.Evaluate(tt.truth, tt.pred)
			assert.InDelta(t, tt.want.RMSE, got.RMSE, 1e-9)
			assert.InDelta(t, tt.want.MAE, got.MAE, 1e-9)
			assert.InDelta(t, tt.want.R2, got.R2, 1e-9)
		})
	}
}

func TestEvaluate_Empty(t *testing.T) {
	got := model.Evaluate(nil, nil)
	assert.True(t, math.IsNaN(got.RMSE))
}

func TestMetrics_AsMap(t *testing.T) {
	m := model.Metrics{MaxTemp: model.Score{RMSE: 1.5}, MinTemp: model.Score{R2: 0.8}}
	flat := m.AsMap()
	assert.Equal(t, 1.5, flat["max_temp"]["rmse"])
	assert.Equal(t, 0.8, flat["min_temp"]["r2"])
}
