package datasets

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// ErrTooShort is returned when a split has fewer rows than one window needs.
var ErrTooShort = errors.New("split shorter than one window")

// Series is a time-ordered table of covariates and targets.
type Series struct {
	Times      []time.Time
	Inputs     [][]float32 // [t][input feature]
	Targets    [][]float32 // [t][target]
	InputCols  []string
	TargetCols []string
	Freq       time.Duration
}

// Len returns the number of timesteps.
func (s *Series) Len() int { return len(s.Times) }

// Validate checks that all columns line up and that time strictly increases.
func (s *Series) Validate() error {
	n := len(s.Times)
	if len(s.Inputs) != n || len(s.Targets) != n {
		return errors.Errorf("series length mismatch: times=%d inputs=%d targets=%d", n, len(s.Inputs), len(s.Targets))
	}
	if len(s.TargetCols) == 0 {
		return errors.New("series has no target columns")
	}
	for i := 0; i < n; i++ {
		if len(s.Inputs[i]) != len(s.InputCols) {
			return errors.Errorf("row %d: %d inputs, want %d", i, len(s.Inputs[i]), len(s.InputCols))
		}
		if len(s.Targets[i]) != len(s.TargetCols) {
			return errors.Errorf("row %d: %d targets, want %d", i, len(s.Targets[i]), len(s.TargetCols))
		}
		if i > 0 && !s.Times[i].After(s.Times[i-1]) {
			return errors.Errorf("row %d: time %s not after %s", i, s.Times[i], s.Times[i-1])
		}
	}
	return nil
}

// Slice returns rows [start, end) sharing the underlying buffers.
func (s *Series) Slice(start, end int) *Series {
	return &Series{
		Times:      s.Times[start:end],
		Inputs:     s.Inputs[start:end],
		Targets:    s.Targets[start:end],
		InputCols:  s.InputCols,
		TargetCols: s.TargetCols,
		Freq:       s.Freq,
	}
}

// AddTimeFeatures appends cyclical hour-of-day and day-of-week covariates.
// These are known in advance, so they are valid future covariates.
func AddTimeFeatures(s *Series) {
	for i, t := range s.Times {
		hour := (float64(t.Hour()) + float64(t.Minute())/60) / 24
		dow := float64(t.Weekday()) / 7
		s.Inputs[i] = append(s.Inputs[i],
			float32(math.Sin(2*math.Pi*hour)),
			float32(math.Cos(2*math.Pi*hour)),
			float32(math.Sin(2*math.Pi*dow)),
			float32(math.Cos(2*math.Pi*dow)),
		)
	}
	s.InputCols = append(s.InputCols, "hour_sin", "hour_cos", "dow_sin", "dow_cos")
}

// Split holds the fractions of the series used for training and validation.
// The remainder is the test split.
type Split struct {
	Train float64 `yaml:"train" json:"train"`
	Val   float64 `yaml:"val" json:"val"`
}

// DefaultSplit is used when a Split is left zero.
var DefaultSplit = Split{Train: 0.6, Val: 0.2}

// Bounds returns the row boundaries of the three splits for a series of n rows.
func (sp Split) Bounds(n int) (trainEnd, valEnd int, err error) {
	if sp.Train <= 0 && sp.Val <= 0 {
		sp = DefaultSplit
	}
	if sp.Train <= 0 || sp.Val < 0 || sp.Train+sp.Val >= 1 {
		return 0, 0, errors.Errorf("invalid split train=%v val=%v", sp.Train, sp.Val)
	}
	trainEnd = int(float64(n) * sp.Train)
	valEnd = trainEnd + int(float64(n)*sp.Val)
	return trainEnd, valEnd, nil
}

// SeriesSource is a Source backed by a Series that is loaded on first use.
type SeriesSource struct {
	name  string
	load  func() (*Series, error)
	split Split

	series       *Series
	inputScaler  *Scaler
	outputScaler *Scaler
}

// NewSeriesSource creates a lazily loaded source. load is called once, the
// first time the series is needed.
func NewSeriesSource(name string, load func() (*Series, error), split Split) *SeriesSource {
	return &SeriesSource{name: name, load: load, split: split}
}

// Name returns the dataset name.
func (s *SeriesSource) Name() string { return s.name }

// Series loads (if needed) and returns the full series.
func (s *SeriesSource) Series() (*Series, error) {
	if s.series != nil {
		return s.series, nil
	}
	series, err := s.load()
	if err != nil {
		return nil, errors.Wrapf(err, "load dataset %s", s.name)
	}
	if err := series.Validate(); err != nil {
		return nil, errors.Wrapf(err, "dataset %s", s.name)
	}
	s.series = series
	return series, nil
}

// OutputScaler returns the target scaler, or nil before ToDatasets was called.
func (s *SeriesSource) OutputScaler() *Scaler { return s.outputScaler }

// InputScaler returns the covariate scaler, or nil before ToDatasets was called.
func (s *SeriesSource) InputScaler() *Scaler { return s.inputScaler }

// ToDatasets cuts the series into train/val/test splits and windows them.
func (s *SeriesSource) ToDatasets(windowPast, windowFuture int) (train, val, test *WindowDataset, err error) {
	if windowPast < 1 || windowFuture < 1 {
		return nil, nil, nil, errors.Errorf("window sizes must be >= 1, got past=%d future=%d", windowPast, windowFuture)
	}
	series, err := s.Series()
	if err != nil {
		return nil, nil, nil, err
	}
	trainEnd, valEnd, err := s.split.Bounds(series.Len())
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "dataset %s", s.name)
	}

	trainSeries := series.Slice(0, trainEnd)
	if trainSeries.Len() == 0 {
		return nil, nil, nil, errors.Wrapf(ErrTooShort, "dataset %s train split is empty", s.name)
	}
	if s.inputScaler, err = FitScaler(trainSeries.Inputs); err != nil {
		return nil, nil, nil, errors.Wrap(err, "input scaler")
	}
	if s.outputScaler, err = FitScaler(trainSeries.Targets); err != nil {
		return nil, nil, nil, errors.Wrap(err, "output scaler")
	}

	parts := []struct {
		name       string
		start, end int
		out        **WindowDataset
	}{
		{"train", 0, trainEnd, &train},
		{"val", trainEnd, valEnd, &val},
		{"test", valEnd, series.Len(), &test},
	}
	for _, p := range parts {
		ds, err := s.window(series.Slice(p.start, p.end), p.name, windowPast, windowFuture)
		if err != nil {
			return nil, nil, nil, err
		}
		*p.out = ds
	}
	return train, val, test, nil
}

func (s *SeriesSource) window(part *Series, split string, past, future int) (*WindowDataset, error) {
	inputs, err := s.inputScaler.Transform(part.Inputs)
	if err != nil {
		return nil, errors.Wrapf(err, "%s/%s inputs", s.name, split)
	}
	targets, err := s.outputScaler.Transform(part.Targets)
	if err != nil {
		return nil, errors.Wrapf(err, "%s/%s targets", s.name, split)
	}
	ds := &WindowDataset{
		Name:       split,
		past:       past,
		future:     future,
		times:      part.Times,
		inputs:     inputs,
		targets:    targets,
		inputCols:  part.InputCols,
		targetCols: part.TargetCols,
		freq:       part.Freq,
	}
	if ds.Len() == 0 {
		return nil, errors.Wrapf(ErrTooShort, "dataset %s %s split has %d rows, window needs %d", s.name, split, part.Len(), past+future)
	}
	return ds, nil
}
