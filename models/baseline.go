package models

import (
	"math"

	"github.com/Noofbiz/seq2seqTime/datasets"
	"github.com/Noofbiz/seq2seqTime/metrics"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// BaselineMean predicts the mean of the past window for every future step,
// with the past window's standard deviation as uncertainty.
type BaselineMean struct{}

// Name implements Model.
func (BaselineMean) Name() string { return "BaselineMean" }

// Forward implements Model.
func (BaselineMean) Forward(b *datasets.Batch) (*Distribution, Extras, error) {
	return baselineForward(b, func(past []float64) (float64, float64) {
		return stat.MeanStdDev(past, nil)
	})
}

// BaselineLast repeats the last observed value. Its uncertainty is the
// standard deviation of the step-to-step changes in the past window.
type BaselineLast struct{}

// Name implements Model.
func (BaselineLast) Name() string { return "BaselineLast" }

// Forward implements Model.
func (BaselineLast) Forward(b *datasets.Batch) (*Distribution, Extras, error) {
	return baselineForward(b, func(past []float64) (float64, float64) {
		last := past[len(past)-1]
		if len(past) < 3 {
			_, std := stat.MeanStdDev(past, nil)
			return last, std
		}
		diffs := make([]float64, len(past)-1)
		for i := 1; i < len(past); i++ {
			diffs[i-1] = past[i] - past[i-1]
		}
		return last, stat.StdDev(diffs, nil)
	})
}

func baselineForward(b *datasets.Batch, summarize func(past []float64) (mean, std float64)) (*Distribution, Extras, error) {
	if b.Size() == 0 {
		return nil, nil, errors.New("empty batch")
	}
	steps := len(b.XFuture[0])
	targets := len(b.YPast[0][0])
	dist := NewDistribution(b.Size(), steps, targets)
	past := make([]float64, len(b.YPast[0]))
	for s := range b.YPast {
		for k := 0; k < targets; k++ {
			for t, row := range b.YPast[s] {
				past[t] = float64(row[k])
			}
			mean, std := summarize(past)
			if math.IsNaN(std) || std < metrics.MinStd {
				std = metrics.MinStd
			}
			for j := 0; j < steps; j++ {
				dist.Mean[s][j][k] = mean
				dist.Std[s][j][k] = std
			}
		}
	}
	return dist, nil, nil
}
