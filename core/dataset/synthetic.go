package dataset

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Synthetic generator names.
const (
	SynthLinear          = "linear"
	SynthSine            = "sine"
	SynthHeteroscedastic = "heteroscedastic"
)

// Synthetic builds a seeded benchmark set. The heteroscedastic generator is
// the interesting one for distribution regression: its noise scale grows with
// the first feature, so the conditional quantiles fan out.
func Synthetic(kind string, n, dim int, seed int64) (*Dataset, error) {
	if n <= 0 || dim <= 0 {
		return nil, fmt.Errorf("dataset: synthetic needs positive n and dim, got %d, %d", n, dim)
	}
	rng := rand.New(rand.NewSource(seed))
	x := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < dim; j++ {
			x.Set(i, j, rng.NormFloat64())
		}
	}

	weights := make([]float64, dim)
	for j := range weights {
		weights[j] = rng.NormFloat64()
	}
	dot := func(i int) float64 {
		var s float64
		for j := 0; j < dim; j++ {
			s += weights[j] * x.At(i, j)
		}
		return s
	}

	y := mat.NewDense(n, 1, nil)
	switch kind {
	case SynthLinear:
		for i := 0; i < n; i++ {
			y.Set(i, 0, dot(i)+0.1*rng.NormFloat64())
		}
	case SynthSine:
		for i := 0; i < n; i++ {
			y.Set(i, 0, math.Sin(2*x.At(i, 0))+0.5*dot(i)+0.1*rng.NormFloat64())
		}
	case SynthHeteroscedastic:
		for i := 0; i < n; i++ {
			scale := 0.1 + 0.5*math.Abs(x.At(i, 0))
			y.Set(i, 0, dot(i)+scale*rng.NormFloat64())
		}
	default:
		return nil, fmt.Errorf("dataset: unknown synthetic kind %q", kind)
	}

	columns := make([]string, dim)
	for j := range columns {
		columns[j] = fmt.Sprintf("x%d", j)
	}
	return New(x, y, columns, "y")
}

// Rows renders the dataset as headered string records, the inverse of
// LoadCSV, for the export writers.
func (d *Dataset) Rows() [][]string {
	n, dim := d.X.Dims()
	out := make([][]string, 0, n+1)
	header := append(append([]string{}, d.Columns...), d.Target)
	out = append(out, header)
	for i := 0; i < n; i++ {
		row := make([]string, 0, dim+1)
		for j := 0; j < dim; j++ {
			row = append(row, fmt.Sprintf("%g", d.X.At(i, j)))
		}
		row = append(row, fmt.Sprintf("%g", d.Y.At(i, 0)))
		out = append(out, row)
	}
	return out
}
