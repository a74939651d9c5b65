package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes features column-wise to zero mean and unit deviation.
// It is fitted on the training split and persisted with the checkpoint so
// serving applies the same transform.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes per-column statistics from the dataset features.
func FitScaler(d *Dataset) *Scaler {
	n, dim := d.X.Dims()
	s := &Scaler{Mean: make([]float64, dim), Std: make([]float64, dim)}
	col := make([]float64, n)
	for j := 0; j < dim; j++ {
		mat.Col(col, j, d.X)
		mean, std := stat.MeanStdDev(col, nil)
		if math.IsNaN(std) || std < 1e-12 {
			std = 1
		}
		s.Mean[j], s.Std[j] = mean, std
	}
	return s
}

// Transform standardizes a feature matrix in place-compatible copy form.
func (s *Scaler) Transform(x *mat.Dense) (*mat.Dense, error) {
	n, dim := x.Dims()
	if dim != len(s.Mean) {
		return nil, fmt.Errorf("dataset: scaler fitted on %d columns, input has %d", len(s.Mean), dim)
	}
	out := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < dim; j++ {
			out.Set(i, j, (x.At(i, j)-s.Mean[j])/s.Std[j])
		}
	}
	return out, nil
}

// Apply standardizes the dataset features, returning a new dataset sharing
// the target column.
func (s *Scaler) Apply(d *Dataset) (*Dataset, error) {
	x, err := s.Transform(d.X)
	if err != nil {
		return nil, err
	}
	return &Dataset{X: x, Y: d.Y, Columns: d.Columns, Target: d.Target}, nil
}
