package datasets

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes each column to zero mean and unit variance. Columns
// with zero variance keep a scale of one.
type Scaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler computes per-column statistics over rows.
func FitScaler(rows [][]float32) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, errors.New("fit scaler: no rows")
	}
	dim := len(rows[0])
	s := &Scaler{Mean: make([]float64, dim), Std: make([]float64, dim)}
	col := make([]float64, len(rows))
	for j := 0; j < dim; j++ {
		for i, r := range rows {
			if len(r) != dim {
				return nil, errors.Errorf("fit scaler: row %d has %d columns, want %d", i, len(r), dim)
			}
			col[i] = float64(r[j])
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j] = mean
		s.Std[j] = std
	}
	return s, nil
}

// Dim is the number of columns the scaler was fit on.
func (s *Scaler) Dim() int { return len(s.Mean) }

// Transform returns a scaled copy of rows.
func (s *Scaler) Transform(rows [][]float32) ([][]float32, error) {
	out := make([][]float32, len(rows))
	for i, r := range rows {
		if len(r) != s.Dim() {
			return nil, errors.Errorf("transform: row %d has %d columns, want %d", i, len(r), s.Dim())
		}
		o := make([]float32, len(r))
		for j, v := range r {
			o[j] = float32((float64(v) - s.Mean[j]) / s.Std[j])
		}
		out[i] = o
	}
	return out, nil
}

// InverseValue maps a scaled value of column j back to original units.
func (s *Scaler) InverseValue(v float64, j int) float64 {
	return v*s.Std[j] + s.Mean[j]
}

// InverseStd maps a standard deviation in scaled units of column j back to
// original units.
func (s *Scaler) InverseStd(std float64, j int) float64 {
	return std * s.Std[j]
}
