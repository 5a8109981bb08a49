package datasets

import (
	"math"
	"testing"

	"github.com/pkg/errors"
)

func TestSplitBounds(t *testing.T) {
	trainEnd, valEnd, err := Split{Train: 0.6, Val: 0.2}.Bounds(500)
	if err != nil {
		t.Fatalf("Bounds: %v", err)
	}
	if trainEnd != 300 || valEnd != 400 {
		t.Fatalf("expected 300/400, got %d/%d", trainEnd, valEnd)
	}
	if _, _, err := (Split{Train: 0.8, Val: 0.3}).Bounds(10); err == nil {
		t.Fatalf("expected error for fractions summing past 1")
	}
	// zero split falls back to the default
	trainEnd, valEnd, err = Split{}.Bounds(10)
	if err != nil || trainEnd != 6 || valEnd != 8 {
		t.Fatalf("default split: got %d/%d err=%v", trainEnd, valEnd, err)
	}
}

func TestSeriesSourceToDatasets(t *testing.T) {
	series := Synthetic(SyntheticConfig{Rows: 500, Noise: 0.1, Seed: 3})
	loads := 0
	src := NewSeriesSource("sine", func() (*Series, error) {
		loads++
		return series, nil
	}, Split{Train: 0.6, Val: 0.2})

	train, val, test, err := src.ToDatasets(4, 2)
	if err != nil {
		t.Fatalf("ToDatasets: %v", err)
	}
	if train.Len() != 300-4-2+1 || val.Len() != 95 || test.Len() != 95 {
		t.Fatalf("unexpected split lengths: %d %d %d", train.Len(), val.Len(), test.Len())
	}
	if train.XDim() != 5 || train.YDim() != 1 {
		t.Fatalf("unexpected dims x=%d y=%d", train.XDim(), train.YDim())
	}

	// splits are time ordered and do not overlap
	lastTrain := train.FutureTimes(train.Len() - 1)
	firstVal := val.PastTimes(0)
	if !firstVal[0].After(lastTrain[len(lastTrain)-1]) {
		t.Fatalf("val split overlaps train split")
	}
	lastVal := val.FutureTimes(val.Len() - 1)
	if !test.PastTimes(0)[0].After(lastVal[len(lastVal)-1]) {
		t.Fatalf("test split overlaps val split")
	}

	// scalers are fit on train: scaled train targets have ~zero mean
	var sum float64
	for i := 0; i < 300; i++ {
		sum += float64(train.targets[i][0])
	}
	if math.Abs(sum/300) > 1e-4 {
		t.Fatalf("expected zero-mean scaled train targets, got mean %v", sum/300)
	}
	sc := src.OutputScaler()
	if sc == nil || sc.Dim() != 1 {
		t.Fatalf("expected fitted output scaler")
	}
	raw := float64(series.Targets[0][0])
	if back := sc.InverseValue(float64(train.targets[0][0]), 0); math.Abs(back-raw) > 1e-4 {
		t.Fatalf("inverse transform mismatch: %v vs %v", back, raw)
	}

	if _, _, _, err := src.ToDatasets(4, 2); err != nil {
		t.Fatalf("second ToDatasets: %v", err)
	}
	if loads != 1 {
		t.Fatalf("expected series to load once, loaded %d times", loads)
	}
}

func TestSeriesSourceTooShort(t *testing.T) {
	src := NewSeriesSource("tiny", func() (*Series, error) {
		return Synthetic(SyntheticConfig{Rows: 20}), nil
	}, Split{Train: 0.6, Val: 0.2})
	_, _, _, err := src.ToDatasets(4, 2)
	if errors.Cause(err) != ErrTooShort {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestScalerConstantColumn(t *testing.T) {
	sc, err := FitScaler([][]float32{{5, 1}, {5, 3}})
	if err != nil {
		t.Fatalf("FitScaler: %v", err)
	}
	if sc.Std[0] != 1 {
		t.Fatalf("expected unit scale for constant column, got %v", sc.Std[0])
	}
	out, err := sc.Transform([][]float32{{5, 2}})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out[0][0] != 0 || out[0][1] != 0 {
		t.Fatalf("unexpected transform %v", out[0])
	}
	if got := sc.InverseStd(1, 1); got != 1 {
		t.Fatalf("expected inverse std 1, got %v", got)
	}
}
