package models

import (
	"math"
	"testing"

	"github.com/Noofbiz/seq2seqTime/datasets"
	"github.com/Noofbiz/seq2seqTime/metrics"
	"github.com/pkg/errors"
)

func sineSplits(t *testing.T, past, future int) (train, test *datasets.WindowDataset) {
	t.Helper()
	src := datasets.NewSeriesSource("sine", func() (*datasets.Series, error) {
		return datasets.Synthetic(datasets.SyntheticConfig{Rows: 600, Noise: 0.05, Period: 24, Seed: 5}), nil
	}, datasets.Split{Train: 0.6, Val: 0.2})
	train, _, test, err := src.ToDatasets(past, future)
	if err != nil {
		t.Fatalf("ToDatasets: %v", err)
	}
	return train, test
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func meanNLL(t *testing.T, m Model, b *datasets.Batch) float64 {
	t.Helper()
	dist, _, err := m.Forward(b.WithoutTargets())
	if err != nil {
		t.Fatalf("%s Forward: %v", m.Name(), err)
	}
	var y, mu, sd []float64
	for s := range b.YFuture {
		for j := range b.YFuture[s] {
			for k := range b.YFuture[s][j] {
				y = append(y, float64(b.YFuture[s][j][k]))
				mu = append(mu, dist.Mean[s][j][k])
				sd = append(sd, dist.Std[s][j][k])
			}
		}
	}
	v, err := metrics.NLL(y, mu, sd)
	if err != nil {
		t.Fatalf("NLL: %v", err)
	}
	return v
}

func TestBaselineMean(t *testing.T) {
	b := &datasets.Batch{
		Indices: []int{0},
		YPast:   [][][]float32{{{1}, {2}, {3}}},
		XPast:   [][][]float32{{{0}, {0}, {0}}},
		XFuture: [][][]float32{{{0}, {0}}},
	}
	dist, _, err := BaselineMean{}.Forward(b)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if err := dist.CheckShape(1, 2, 1); err != nil {
		t.Fatalf("CheckShape: %v", err)
	}
	if dist.Mean[0][1][0] != 2 || math.Abs(dist.Std[0][0][0]-1) > 1e-12 {
		t.Fatalf("unexpected baseline mean output: mean=%v std=%v", dist.Mean, dist.Std)
	}
}

func TestBaselineLast(t *testing.T) {
	b := &datasets.Batch{
		Indices: []int{0},
		YPast:   [][][]float32{{{1}, {3}, {5}, {7}}},
		XPast:   [][][]float32{{{0}, {0}, {0}, {0}}},
		XFuture: [][][]float32{{{0}}},
	}
	dist, _, err := BaselineLast{}.Forward(b)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if dist.Mean[0][0][0] != 7 {
		t.Fatalf("expected last value 7, got %v", dist.Mean[0][0][0])
	}
	// constant steps: std floors at MinStd instead of zero
	if dist.Std[0][0][0] != metrics.MinStd {
		t.Fatalf("expected MinStd floor, got %v", dist.Std[0][0][0])
	}
}

func TestDistributionCheckShape(t *testing.T) {
	d := NewDistribution(2, 3, 1)
	if err := d.CheckShape(2, 3, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, dims := range [][3]int{{1, 3, 1}, {2, 2, 1}, {2, 3, 2}} {
		if err := d.CheckShape(dims[0], dims[1], dims[2]); errors.Cause(err) != ErrOutputShape {
			t.Fatalf("dims %v: expected ErrOutputShape, got %v", dims, err)
		}
	}
	var nilDist *Distribution
	if err := nilDist.CheckShape(1, 1, 1); errors.Cause(err) != ErrOutputShape {
		t.Fatalf("expected ErrOutputShape for nil, got %v", err)
	}
}

// TestMLPTrainReducesNLL verifies the pure-Go trainer reduces the Gaussian
// NLL on a periodic series.
func TestMLPTrainReducesNLL(t *testing.T) {
	train, test := sineSplits(t, 12, 4)
	m, err := NewMLPFromDims(Dims{X: train.XDim(), Y: train.YDim(), Future: 4, Hidden: 16, Layers: 2, Seed: 42})
	if err != nil {
		t.Fatalf("NewMLPFromDims: %v", err)
	}
	if m.NumParams() != (8*16+16)+(16*16+16)+(16*2+2) {
		t.Fatalf("unexpected parameter count %d", m.NumParams())
	}

	holdout, err := test.Batch(allIndices(40))
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	before := meanNLL(t, m, holdout)

	loader := &datasets.Loader{DS: train, BatchSize: 32, Shuffle: true, Seed: 1}
	for epoch := 0; epoch < 15; epoch++ {
		it := loader.Iter(epoch)
		for {
			b, err := it.Next()
			if err != nil {
				break
			}
			if _, _, err := m.Backward(b); err != nil {
				t.Fatalf("Backward: %v", err)
			}
			if err := m.Step(0.05, 0, 5); err != nil {
				t.Fatalf("Step: %v", err)
			}
		}
		it.Close()
	}
	after := meanNLL(t, m, holdout)
	t.Logf("nll before=%.4f after=%.4f", before, after)
	if !(after < before) {
		t.Fatalf("expected nll to decrease after training: before=%.4f after=%.4f", before, after)
	}
	if math.IsNaN(after) || math.IsInf(after, 0) {
		t.Fatalf("non-finite nll after training")
	}
}

func TestMLPForwardIsPure(t *testing.T) {
	train, _ := sineSplits(t, 6, 3)
	m, err := NewMLPFromDims(Dims{X: train.XDim(), Y: train.YDim(), Future: 3, Seed: 7})
	if err != nil {
		t.Fatalf("NewMLPFromDims: %v", err)
	}
	b, err := train.Batch([]int{0, 1, 2})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	first, _, err := m.Forward(b.WithoutTargets())
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	second, _, _ := m.Forward(b.WithoutTargets())
	for s := range first.Mean {
		for j := range first.Mean[s] {
			if first.Mean[s][j][0] != second.Mean[s][j][0] || first.Std[s][j][0] != second.Std[s][j][0] {
				t.Fatalf("Forward changed model output between calls")
			}
			if first.Std[s][j][0] <= 0 {
				t.Fatalf("std must be positive")
			}
		}
	}
	if _, _, err := m.Backward(b.WithoutTargets()); err == nil {
		t.Fatalf("expected Backward to require targets")
	}
}

func TestMLPRejectsWrongCovariates(t *testing.T) {
	m, err := NewMLP(MLPConfig{XDim: 3, YDim: 1, Future: 1, Seed: 1})
	if err != nil {
		t.Fatalf("NewMLP: %v", err)
	}
	b := &datasets.Batch{
		Indices: []int{0},
		YPast:   [][][]float32{{{1}}},
		XPast:   [][][]float32{{{1}}},
		XFuture: [][][]float32{{{1}}},
	}
	if _, _, err := m.Forward(b); errors.Cause(err) != ErrOutputShape {
		t.Fatalf("expected ErrOutputShape, got %v", err)
	}
	if _, err := NewMLP(MLPConfig{XDim: 1}); err == nil {
		t.Fatalf("expected error for zero targets")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	for _, kind := range []string{"BaselineMean", "BaselineLast", "MLP"} {
		ctor, ok := r.Get(kind)
		if !ok {
			t.Fatalf("missing %s", kind)
		}
		m, err := ctor(Dims{X: 2, Y: 1, Future: 2, Seed: 1})
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if m.Name() != kind {
			t.Fatalf("expected name %s, got %s", kind, m.Name())
		}
	}
	if _, ok := r.Get("Transformer"); ok {
		t.Fatalf("unexpected kind")
	}
	if got := r.Kinds(); len(got) != 3 || got[0] != "BaselineLast" {
		t.Fatalf("unexpected kinds %v", got)
	}
}
