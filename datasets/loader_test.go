package datasets

import (
	"io"
	"reflect"
	"testing"
	"time"
)

func rampDataset(t *testing.T, n, past, future int) *WindowDataset {
	t.Helper()
	start := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, n)
	inputs := make([][]float32, n)
	targets := make([][]float32, n)
	for i := 0; i < n; i++ {
		times[i] = start.Add(time.Duration(i) * time.Hour)
		inputs[i] = []float32{float32(i), float32(-i)}
		targets[i] = []float32{float32(i) * 10}
	}
	ds, err := NewWindowDataset("ramp", times, inputs, targets, past, future)
	if err != nil {
		t.Fatalf("NewWindowDataset: %v", err)
	}
	return ds
}

func TestWindowRows(t *testing.T) {
	ds := rampDataset(t, 10, 3, 2)
	if ds.Len() != 6 {
		t.Fatalf("expected 6 origins, got %d", ds.Len())
	}
	xp, yp, xf, yf, err := ds.Rows(1)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(xp) != 3 || len(yp) != 3 || len(xf) != 2 || len(yf) != 2 {
		t.Fatalf("unexpected window lengths %d %d %d %d", len(xp), len(yp), len(xf), len(yf))
	}
	if yp[0][0] != 10 || yp[2][0] != 30 || yf[0][0] != 40 || xf[1][1] != -5 {
		t.Fatalf("unexpected window values yp=%v yf=%v xf=%v", yp, yf, xf)
	}
	if got := ds.OriginTime(1); !got.Equal(ds.times[3]) {
		t.Fatalf("origin time: got %v want %v", got, ds.times[3])
	}
	if _, _, _, _, err := ds.Rows(6); err == nil {
		t.Fatalf("expected out of range error")
	}

	// rows are copies
	yp[0][0] = 999
	_, yp2, _, _, _ := ds.Rows(1)
	if yp2[0][0] != 10 {
		t.Fatalf("Rows must not alias dataset buffers")
	}
}

func TestBatchToGomlxTensors(t *testing.T) {
	ds := rampDataset(t, 12, 4, 2)
	b, err := ds.Batch([]int{0, 3, 5})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	ts, err := b.ToGomlxTensors()
	if err != nil {
		t.Fatalf("ToGomlxTensors: %v", err)
	}
	if len(ts) != 4 {
		t.Fatalf("expected 4 tensors, got %d", len(ts))
	}
	if dims := ts[0].Shape().Dimensions; !reflect.DeepEqual(dims, []int{3, 4, 2}) {
		t.Fatalf("x_past dims: %v", dims)
	}
	if dims := ts[3].Shape().Dimensions; !reflect.DeepEqual(dims, []int{3, 2, 1}) {
		t.Fatalf("y_future dims: %v", dims)
	}

	inf, err := b.WithoutTargets().ToGomlxTensors()
	if err != nil {
		t.Fatalf("ToGomlxTensors without targets: %v", err)
	}
	if len(inf) != 3 {
		t.Fatalf("expected 3 tensors without targets, got %d", len(inf))
	}
	if b.YFuture == nil {
		t.Fatalf("WithoutTargets must not modify the original batch")
	}
	if _, err := (&Batch{}).ToGomlxTensors(); err == nil {
		t.Fatalf("expected error for empty batch")
	}
}

func collect(t *testing.T, l *Loader, epoch int) [][]int {
	t.Helper()
	it := l.Iter(epoch)
	defer it.Close()
	var out [][]int
	for {
		b, err := it.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, b.Indices)
	}
}

func TestLoaderKeepsShortLastBatch(t *testing.T) {
	ds := rampDataset(t, 30, 4, 2) // 25 origins
	l := &Loader{DS: ds, BatchSize: 8}
	if l.NumBatches() != 4 {
		t.Fatalf("expected 4 batches, got %d", l.NumBatches())
	}
	got := collect(t, l, 0)
	if len(got) != 4 || len(got[3]) != 1 {
		t.Fatalf("unexpected batches %v", got)
	}
	seen := 0
	for _, b := range got {
		seen += len(b)
	}
	if seen != 25 {
		t.Fatalf("expected every sample once, saw %d", seen)
	}
}

func TestLoaderWorkersPreserveOrder(t *testing.T) {
	ds := rampDataset(t, 200, 5, 3)
	serial := &Loader{DS: ds, BatchSize: 7, Shuffle: true, Seed: 42}
	parallel := &Loader{DS: ds, BatchSize: 7, Shuffle: true, Seed: 42, Workers: 4}

	for epoch := 0; epoch < 3; epoch++ {
		want := collect(t, serial, epoch)
		got := collect(t, parallel, epoch)
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("epoch %d: worker order differs from serial order", epoch)
		}
	}
	if reflect.DeepEqual(serial.Order(0), serial.Order(1)) {
		t.Fatalf("expected a different shuffle per epoch")
	}
	if !reflect.DeepEqual(serial.Order(2), parallel.Order(2)) {
		t.Fatalf("shuffle must only depend on seed and epoch")
	}
}

func TestLoaderCloseEarly(t *testing.T) {
	ds := rampDataset(t, 300, 5, 3)
	l := &Loader{DS: ds, BatchSize: 4, Workers: 2}
	it := l.Iter(0)
	if _, err := it.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	it.Close()
	it.Close()
	// after Close the iterator either drains a prefetched batch or stops
	for i := 0; i < 10; i++ {
		if _, err := it.Next(); err == io.EOF {
			return
		}
	}
	t.Fatalf("iterator kept producing batches after Close")
}
