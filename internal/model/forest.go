package model

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
)

// ForestConfig holds random forest hyperparameters.
type ForestConfig struct {
	// NTrees is the number of trees. Default: 100
	NTrees int `json:"n_trees"`

	// MaxDepth bounds every tree. Default: 10
	MaxDepth int `json:"max_depth"`

	// MinSamplesSplit is the smallest node that may be split. Default: 2
	MinSamplesSplit int `json:"min_samples_split"`

	// Seed makes bootstrap sampling reproducible. Default: 42
	Seed uint64 `json:"seed"`

	// Workers bounds parallel tree construction. Default: GOMAXPROCS
	Workers int `json:"-"`
}

// DefaultForestConfig returns the production hyperparameters.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		NTrees:          100,
		MaxDepth:        10,
		MinSamplesSplit: 2,
		Seed:            42,
	}
}

func (c ForestConfig) withDefaults() ForestConfig {
	d := DefaultForestConfig()
	if c.NTrees <= 0 {
		c.NTrees = d.NTrees
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.MinSamplesSplit < 2 {
		c.MinSamplesSplit = d.MinSamplesSplit
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	return c
}

// Forest is a bagged ensemble of regression trees. Every split considers all
// features; the prediction is the mean over trees.
type Forest struct {
	Config      ForestConfig `json:"config"`
	NumFeatures int          `json:"num_features"`
	Trees       []*Tree      `json:"trees"`
}

// FitForest trains a forest on x/y. Tree i draws its bootstrap sample from a
// generator seeded with (Seed, i), so results do not depend on scheduling.
func FitForest(ctx context.Context, cfg ForestConfig, x [][]float64, y []float64) (*Forest, error) {
	if len(x) == 0 {
		return nil, errors.New("fit forest: no samples")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("fit forest: %d rows but %d targets", len(x), len(y))
	}
	cfg = cfg.withDefaults()

	forest := &Forest{
		Config:      cfg,
		NumFeatures: len(x[0]),
		Trees:       make([]*Tree, cfg.NTrees),
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(cfg.Workers, cfg.NTrees); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
				idx := make([]int, len(x))
				for k := range idx {
					idx[k] = rng.IntN(len(x))
				}
				forest.Trees[i] = buildTree(x, y, idx, cfg.MaxDepth, cfg.MinSamplesSplit)
			}
		}()
	}

	var err error
feed:
	for i := 0; i < cfg.NTrees; i++ {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}
	return forest, nil
}

// Predict returns the mean tree prediction for one feature vector.
func (f *Forest) Predict(x []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, errors.New("forest has no trees")
	}
	if len(x) != f.NumFeatures {
		return 0, fmt.Errorf("got %d features, forest trained on %d", len(x), f.NumFeatures)
	}
	var sum float64
	for _, t := range f.Trees {
		sum += t.Predict(x)
	}
	return sum / float64(len(f.Trees)), nil
}

// PredictAll predicts every row.
func (f *Forest) PredictAll(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		p, err := f.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}
