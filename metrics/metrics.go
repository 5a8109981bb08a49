// Package metrics implements the scalar error measures used to compare
// forecasters: root-mean-square error, symmetric mean absolute percentage
// error and the Gaussian negative log-likelihood.
//
// All functions take flat slices. Multi-dimensional predictions (origin x
// steps-ahead x target) are flattened by the caller, which makes the metrics
// broadcast over any leading dimensions.
package metrics

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MinStd is the floor applied to predicted standard deviations before a
// log-likelihood is evaluated.
const MinStd = 1e-6

var (
	// ErrShapeMismatch is returned when inputs are not elementwise comparable.
	ErrShapeMismatch = errors.New("metrics: shape mismatch")
	// ErrEmpty is returned when a metric is requested over zero elements.
	ErrEmpty = errors.New("metrics: empty input")
)

func checkShapes(n int, others ...[]float64) error {
	if n == 0 {
		return ErrEmpty
	}
	for _, o := range others {
		if len(o) != n {
			return errors.Wrapf(ErrShapeMismatch, "got lengths %d and %d", n, len(o))
		}
	}
	return nil
}

// RMSE returns the root of the mean squared difference between yTrue and yPred.
func RMSE(yTrue, yPred []float64) (float64, error) {
	if err := checkShapes(len(yTrue), yPred); err != nil {
		return math.NaN(), err
	}
	return floats.Distance(yTrue, yPred, 2) / math.Sqrt(float64(len(yTrue))), nil
}

// SMAPE returns the mean of |p-t| / ((|t|+|p|)/2). An element where both the
// true and predicted values are zero contributes zero.
func SMAPE(yTrue, yPred []float64) (float64, error) {
	if err := checkShapes(len(yTrue), yPred); err != nil {
		return math.NaN(), err
	}
	terms := make([]float64, len(yTrue))
	for i := range yTrue {
		denom := (math.Abs(yTrue[i]) + math.Abs(yPred[i])) / 2
		if denom == 0 {
			continue
		}
		terms[i] = math.Abs(yPred[i]-yTrue[i]) / denom
	}
	return stat.Mean(terms, nil), nil
}

// GaussianNLL is the negative log-likelihood of y under N(mean, std^2).
// std is clamped to MinStd.
func GaussianNLL(y, mean, std float64) float64 {
	if std < MinStd || math.IsNaN(std) {
		std = MinStd
	}
	z := (y - mean) / std
	return 0.5*math.Log(2*math.Pi) + math.Log(std) + 0.5*z*z
}

// NLL returns the mean Gaussian negative log-likelihood of yTrue under the
// predicted means and standard deviations.
func NLL(yTrue, mean, std []float64) (float64, error) {
	if err := checkShapes(len(yTrue), mean, std); err != nil {
		return math.NaN(), err
	}
	terms := make([]float64, len(yTrue))
	for i := range yTrue {
		terms[i] = GaussianNLL(yTrue[i], mean[i], std[i])
	}
	return stat.Mean(terms, nil), nil
}
