package monte

import (
	"math"
	"testing"

	"github.com/Noofbiz/seq2seqTime/datasets"
	"github.com/Noofbiz/seq2seqTime/models"
	"github.com/pkg/errors"
)

// mockLib is a small in-memory library.
type mockLib struct {
	past   [][]float32
	future [][]float32
}

func (m *mockLib) Len() int { return len(m.past) }

func (m *mockLib) Example(i int) ([]float32, []float32, error) {
	return m.past[i], m.future[i], nil
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func queryBatch(origin int, past ...float32) *datasets.Batch {
	yPast := make([][]float32, len(past))
	xPast := make([][]float32, len(past))
	for i, v := range past {
		yPast[i] = []float32{v}
		xPast[i] = []float32{0}
	}
	return &datasets.Batch{
		Indices: []int{origin},
		XPast:   [][][]float32{xPast},
		YPast:   [][][]float32{yPast},
		XFuture: [][][]float32{{{0}, {0}}},
	}
}

func TestForwardUsesNearestAnalogs(t *testing.T) {
	lib := &mockLib{
		past:   [][]float32{{0, 0}, {0, 0.1}, {10, 10}},
		future: [][]float32{{1, 2}, {1, 2}, {50, 60}},
	}
	a, err := NewAnalog(2, 20, 12345)
	if err != nil {
		t.Fatalf("NewAnalog: %v", err)
	}
	a.SetLibrary(lib, 2, 1)

	dist, _, err := a.Forward(queryBatch(0, 0, 0))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if err := dist.CheckShape(1, 2, 1); err != nil {
		t.Fatalf("CheckShape: %v", err)
	}
	// both nearest analogs share the same future, so the spread floors
	if !approxEqual(dist.Mean[0][0][0], 1, 1e-9) || !approxEqual(dist.Mean[0][1][0], 2, 1e-9) {
		t.Fatalf("unexpected mean %v", dist.Mean[0])
	}
	if dist.Std[0][0][0] <= 0 || dist.Std[0][0][0] > 1e-3 {
		t.Fatalf("expected floored std, got %v", dist.Std[0][0][0])
	}
}

func TestForwardIsDeterministicPerOrigin(t *testing.T) {
	lib := &mockLib{
		past:   [][]float32{{0, 0}, {0, 1}, {1, 0}, {1, 1}},
		future: [][]float32{{1, 1}, {2, 2}, {3, 3}, {4, 4}},
	}
	a, _ := NewAnalog(4, 30, 7)
	a.SetLibrary(lib, 2, 1)

	first, _, err := a.Forward(queryBatch(3, 0.5, 0.5))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	second, _, _ := a.Forward(queryBatch(3, 0.5, 0.5))
	if first.Mean[0][0][0] != second.Mean[0][0][0] || first.Std[0][1][0] != second.Std[0][1][0] {
		t.Fatalf("same origin produced different forecasts")
	}
	if first.Std[0][0][0] <= 0.1 {
		t.Fatalf("expected spread across distinct analogs, got %v", first.Std[0][0][0])
	}
	if m := first.Mean[0][0][0]; m < 1 || m > 4 {
		t.Fatalf("mean %v outside the range of analog outcomes", m)
	}
}

func TestForwardBeforeFit(t *testing.T) {
	a, _ := NewAnalog(1, 1, 0)
	if _, _, err := a.Forward(queryBatch(0, 1)); errors.Cause(err) != ErrNotFitted {
		t.Fatalf("expected ErrNotFitted, got %v", err)
	}
	if _, err := NewAnalog(0, 10, 0); err == nil {
		t.Fatalf("expected error for k=0")
	}
}

func TestFitOnWindowDataset(t *testing.T) {
	src := datasets.NewSeriesSource("sine", func() (*datasets.Series, error) {
		return datasets.Synthetic(datasets.SyntheticConfig{Rows: 400, Period: 20, Noise: 0.01, Seed: 3}), nil
	}, datasets.DefaultSplit)
	train, _, test, err := src.ToDatasets(10, 3)
	if err != nil {
		t.Fatalf("ToDatasets: %v", err)
	}

	r := models.NewRegistry()
	Register(r)
	ctor, ok := r.Get(Kind)
	if !ok {
		t.Fatalf("Analog not registered")
	}
	m, err := ctor(models.Dims{X: train.XDim(), Y: train.YDim(), Future: 3, Seed: 1, Params: map[string]float64{"k": 5, "sims": 40}})
	if err != nil {
		t.Fatalf("ctor: %v", err)
	}
	fitter, ok := m.(models.Fitter)
	if !ok {
		t.Fatalf("Analog must be a Fitter")
	}
	if err := fitter.Fit(train); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	b, err := test.Batch([]int{0, 1, 2, 3})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	dist, _, err := m.Forward(b.WithoutTargets())
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	// a clean periodic series has near-perfect analogs
	for s := range b.YFuture {
		for j := range b.YFuture[s] {
			got := dist.Mean[s][j][0]
			want := float64(b.YFuture[s][j][0])
			if !approxEqual(got, want, 0.3) {
				t.Fatalf("sample %d step %d: got %.3f want %.3f", s, j, got, want)
			}
		}
	}
}
