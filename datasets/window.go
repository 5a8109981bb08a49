package datasets

import (
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// WindowDataset is one split of a Series, viewed as overlapping
// past/future windows. Values are in scaled units.
type WindowDataset struct {
	// Name of the split: "train", "val" or "test".
	Name string

	past   int
	future int

	times      []time.Time
	inputs     [][]float32
	targets    [][]float32
	inputCols  []string
	targetCols []string
	freq       time.Duration
}

// NewWindowDataset builds a split directly from already scaled rows.
func NewWindowDataset(name string, times []time.Time, inputs, targets [][]float32, past, future int) (*WindowDataset, error) {
	if len(inputs) != len(times) || len(targets) != len(times) {
		return nil, errors.Errorf("window dataset %s: length mismatch times=%d inputs=%d targets=%d", name, len(times), len(inputs), len(targets))
	}
	if past < 1 || future < 1 {
		return nil, errors.Errorf("window dataset %s: invalid window past=%d future=%d", name, past, future)
	}
	ds := &WindowDataset{Name: name, past: past, future: future, times: times, inputs: inputs, targets: targets}
	if len(times) > 1 {
		ds.freq = times[1].Sub(times[0])
	}
	return ds, nil
}

// Len returns the number of forecast origins in the split.
func (d *WindowDataset) Len() int {
	n := len(d.times) - d.past - d.future + 1
	if n < 0 {
		return 0
	}
	return n
}

// Past is the number of past timesteps per sample.
func (d *WindowDataset) Past() int { return d.past }

// Future is the number of future timesteps per sample.
func (d *WindowDataset) Future() int { return d.future }

// XDim is the number of covariates.
func (d *WindowDataset) XDim() int {
	if len(d.inputs) == 0 {
		return 0
	}
	return len(d.inputs[0])
}

// YDim is the number of targets.
func (d *WindowDataset) YDim() int {
	if len(d.targets) == 0 {
		return 0
	}
	return len(d.targets[0])
}

// TargetCols names the target columns.
func (d *WindowDataset) TargetCols() []string { return d.targetCols }

// InputCols names the covariate columns.
func (d *WindowDataset) InputCols() []string { return d.inputCols }

// Freq is the sampling interval of the underlying series.
func (d *WindowDataset) Freq() time.Duration { return d.freq }

func (d *WindowDataset) check(i int) error {
	if i < 0 || i >= d.Len() {
		return errors.Errorf("index %d out of range [0, %d)", i, d.Len())
	}
	return nil
}

// Rows returns copies of the four arrays of sample i.
func (d *WindowDataset) Rows(i int) (xPast, yPast, xFuture, yFuture [][]float32, err error) {
	if err := d.check(i); err != nil {
		return nil, nil, nil, nil, err
	}
	mid := i + d.past
	end := mid + d.future
	return copyRows(d.inputs[i:mid]), copyRows(d.targets[i:mid]),
		copyRows(d.inputs[mid:end]), copyRows(d.targets[mid:end]), nil
}

// OriginTime is the time of the last past step of sample i: the moment the
// forecast is made.
func (d *WindowDataset) OriginTime(i int) time.Time {
	return d.times[i+d.past-1]
}

// PastTimes returns the timestamps of the past window of sample i.
func (d *WindowDataset) PastTimes(i int) []time.Time {
	return append([]time.Time(nil), d.times[i:i+d.past]...)
}

// FutureTimes returns the timestamps of the future window of sample i.
func (d *WindowDataset) FutureTimes(i int) []time.Time {
	mid := i + d.past
	return append([]time.Time(nil), d.times[mid:mid+d.future]...)
}

// Batch reads the samples at the given indices, in order.
func (d *WindowDataset) Batch(indices []int) (*Batch, error) {
	b := &Batch{
		Indices: append([]int(nil), indices...),
		XPast:   make([][][]float32, len(indices)),
		YPast:   make([][][]float32, len(indices)),
		XFuture: make([][][]float32, len(indices)),
		YFuture: make([][][]float32, len(indices)),
	}
	for bi, idx := range indices {
		xp, yp, xf, yf, err := d.Rows(idx)
		if err != nil {
			return nil, errors.Wrapf(err, "%s batch", d.Name)
		}
		b.XPast[bi], b.YPast[bi], b.XFuture[bi], b.YFuture[bi] = xp, yp, xf, yf
	}
	return b, nil
}

// Batch stores a batch as [sample][step][feature] buffers. YFuture is nil
// when the batch is used for inference.
type Batch struct {
	Indices []int
	XPast   [][][]float32
	YPast   [][][]float32
	XFuture [][][]float32
	YFuture [][][]float32
}

// Size returns the number of samples in the batch.
func (b *Batch) Size() int { return len(b.Indices) }

// WithoutTargets returns a shallow copy with YFuture removed.
func (b *Batch) WithoutTargets() *Batch {
	c := *b
	c.YFuture = nil
	return &c
}

// ToGomlxTensors converts the batch to gomlx tensors, in the order x_past,
// y_past, x_future and (when present) y_future.
func (b *Batch) ToGomlxTensors() ([]*tensors.Tensor, error) {
	if b.Size() == 0 {
		return nil, errors.New("empty batch")
	}
	parts := [][][][]float32{b.XPast, b.YPast, b.XFuture}
	if b.YFuture != nil {
		parts = append(parts, b.YFuture)
	}
	out := make([]*tensors.Tensor, 0, len(parts))
	for i, p := range parts {
		if len(p) != b.Size() || len(p[0]) == 0 || len(p[0][0]) == 0 {
			return nil, errors.Errorf("batch part %d has an empty dimension", i)
		}
		out = append(out, tensors.FromAnyValue(p))
	}
	return out, nil
}
