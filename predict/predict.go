// Package predict runs a model over a split and keeps every forecast it
// makes, in original units, together with the per-element Gaussian NLL.
package predict

import (
	"io"
	"time"

	"github.com/Noofbiz/seq2seqTime/datasets"
	"github.com/Noofbiz/seq2seqTime/metrics"
	"github.com/Noofbiz/seq2seqTime/models"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// ErrShape is returned when a model's output does not match its batch.
var ErrShape = errors.New("prediction shape mismatch")

// Metric names reported by Predictions.Metrics.
const (
	MetricRMSE  = "rmse"
	MetricSMAPE = "smape"
	MetricNLL   = "nll"
)

// Predictions holds the forecasts of one model on one split. The value
// arrays are indexed [origin][ahead][target]; YPast is [origin][past][target].
type Predictions struct {
	Dataset string
	Model   string
	Targets []string
	Freq    time.Duration

	TSource []time.Time   // forecast origin of each row
	TAhead  []int         // steps ahead, 1..future
	TTarget [][]time.Time // [origin][ahead]
	TPast   [][]time.Time // [origin][past]

	YPast    [][][]float64
	YTrue    [][][]float64
	YPred    [][][]float64
	YPredStd [][][]float64
	NLL      [][][]float64
}

// Predict runs model over every origin of ds in order. Future targets are
// hidden from the model. Outputs are mapped back to original units with
// scaler, which may be nil when ds is unscaled.
func Predict(model models.Model, ds *datasets.WindowDataset, batchSize int, scaler *datasets.Scaler) (*Predictions, error) {
	n := ds.Len()
	if n == 0 {
		return nil, errors.Errorf("predict: split %s has no origins", ds.Name)
	}
	ahead := make([]int, ds.Future())
	for j := range ahead {
		ahead[j] = j + 1
	}
	p := &Predictions{
		Model:    model.Name(),
		Targets:  append([]string(nil), ds.TargetCols()...),
		Freq:     ds.Freq(),
		TAhead:   ahead,
		TSource:  make([]time.Time, 0, n),
		TTarget:  make([][]time.Time, 0, n),
		TPast:    make([][]time.Time, 0, n),
		YPast:    make([][][]float64, 0, n),
		YTrue:    make([][][]float64, 0, n),
		YPred:    make([][][]float64, 0, n),
		YPredStd: make([][][]float64, 0, n),
		NLL:      make([][][]float64, 0, n),
	}
	inv := func(v float64, k int) float64 { return v }
	invStd := func(v float64, k int) float64 { return v }
	if scaler != nil {
		inv, invStd = scaler.InverseValue, scaler.InverseStd
	}

	loader := &datasets.Loader{DS: ds, BatchSize: batchSize}
	it := loader.Iter(0)
	defer it.Close()
	for {
		b, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "predict: reading batch")
		}
		dist, _, err := model.Forward(b.WithoutTargets())
		if err != nil {
			return nil, errors.Wrapf(err, "predict: %s forward", model.Name())
		}
		if err := dist.CheckShape(b.Size(), ds.Future(), ds.YDim()); err != nil {
			return nil, errors.Wrapf(ErrShape, "%s: %v", model.Name(), err)
		}
		for s, idx := range b.Indices {
			p.TSource = append(p.TSource, ds.OriginTime(idx))
			p.TTarget = append(p.TTarget, ds.FutureTimes(idx))
			p.TPast = append(p.TPast, ds.PastTimes(idx))
			p.YPast = append(p.YPast, unscale(b.YPast[s], inv))
			yTrue := unscale(b.YFuture[s], inv)
			mean := make([][]float64, len(dist.Mean[s]))
			std := make([][]float64, len(dist.Std[s]))
			nll := make([][]float64, len(dist.Mean[s]))
			for j := range mean {
				mean[j] = make([]float64, len(dist.Mean[s][j]))
				std[j] = make([]float64, len(dist.Mean[s][j]))
				nll[j] = make([]float64, len(dist.Mean[s][j]))
				for k := range mean[j] {
					mean[j][k] = inv(dist.Mean[s][j][k], k)
					std[j][k] = invStd(dist.Std[s][j][k], k)
					nll[j][k] = metrics.GaussianNLL(yTrue[j][k], mean[j][k], std[j][k])
				}
			}
			p.YTrue = append(p.YTrue, yTrue)
			p.YPred = append(p.YPred, mean)
			p.YPredStd = append(p.YPredStd, std)
			p.NLL = append(p.NLL, nll)
		}
	}
	return p, nil
}

func unscale(rows [][]float32, inv func(float64, int) float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = make([]float64, len(r))
		for k, v := range r {
			out[i][k] = inv(float64(v), k)
		}
	}
	return out
}

// Len is the number of forecast origins.
func (p *Predictions) Len() int { return len(p.TSource) }

// Flat returns the true values, means and standard deviations flattened in
// [origin][ahead][target] order.
func (p *Predictions) Flat() (yTrue, mean, std []float64) {
	for i := range p.YTrue {
		for j := range p.YTrue[i] {
			yTrue = append(yTrue, p.YTrue[i][j]...)
			mean = append(mean, p.YPred[i][j]...)
			std = append(std, p.YPredStd[i][j]...)
		}
	}
	return yTrue, mean, std
}

// Metrics computes rmse, smape and nll over every element.
func (p *Predictions) Metrics() (map[string]float64, error) {
	yTrue, mean, std := p.Flat()
	rmse, err := metrics.RMSE(yTrue, mean)
	if err != nil {
		return nil, errors.Wrap(err, "rmse")
	}
	smape, err := metrics.SMAPE(yTrue, mean)
	if err != nil {
		return nil, errors.Wrap(err, "smape")
	}
	nll, err := metrics.NLL(yTrue, mean, std)
	if err != nil {
		return nil, errors.Wrap(err, "nll")
	}
	return map[string]float64{MetricRMSE: rmse, MetricSMAPE: smape, MetricNLL: nll}, nil
}

// MeanNLL averages the stored NLL over every element.
func (p *Predictions) MeanNLL() float64 {
	var all []float64
	for i := range p.NLL {
		for j := range p.NLL[i] {
			all = append(all, p.NLL[i][j]...)
		}
	}
	return stat.Mean(all, nil)
}

// NLLByAhead averages the NLL over origins and targets for each step ahead.
func (p *Predictions) NLLByAhead() []float64 {
	out := make([]float64, len(p.TAhead))
	for j := range out {
		var vals []float64
		for i := range p.NLL {
			vals = append(vals, p.NLL[i][j]...)
		}
		out[j] = stat.Mean(vals, nil)
	}
	return out
}

// NLLByOrigin averages the NLL over steps ahead and targets for each origin.
func (p *Predictions) NLLByOrigin() []float64 {
	out := make([]float64, len(p.NLL))
	for i := range p.NLL {
		var vals []float64
		for j := range p.NLL[i] {
			vals = append(vals, p.NLL[i][j]...)
		}
		out[i] = stat.Mean(vals, nil)
	}
	return out
}

// Forecast is a single origin's forecast for one target.
type Forecast struct {
	Origin      time.Time
	PastTimes   []time.Time
	Past        []float64
	TargetTimes []time.Time
	True        []float64
	Mean        []float64
	Std         []float64
}

// At returns the forecast made at origin i for target k.
func (p *Predictions) At(i, k int) (Forecast, error) {
	if i < 0 || i >= p.Len() {
		return Forecast{}, errors.Errorf("origin %d out of range [0,%d)", i, p.Len())
	}
	if len(p.YTrue[i]) == 0 || k < 0 || k >= len(p.YTrue[i][0]) {
		return Forecast{}, errors.Errorf("target %d out of range", k)
	}
	col := func(rows [][]float64) []float64 {
		out := make([]float64, len(rows))
		for j := range rows {
			out[j] = rows[j][k]
		}
		return out
	}
	return Forecast{
		Origin:      p.TSource[i],
		PastTimes:   p.TPast[i],
		Past:        col(p.YPast[i]),
		TargetTimes: p.TTarget[i],
		True:        col(p.YTrue[i]),
		Mean:        col(p.YPred[i]),
		Std:         col(p.YPredStd[i]),
	}, nil
}

// IndexOf returns the row whose origin is closest to t.
func (p *Predictions) IndexOf(t time.Time) int {
	best, bestD := 0, time.Duration(-1)
	for i, ts := range p.TSource {
		d := ts.Sub(t)
		if d < 0 {
			d = -d
		}
		if bestD < 0 || d < bestD {
			best, bestD = i, d
		}
	}
	return best
}
