// Package dataset holds tabular data in batch-major matrices and provides
// loading, standardization, splitting and batching for the trainers.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Dataset is one tabular regression set: features X (n, dim) and a single
// target column Y (n, 1).
type Dataset struct {
	X       *mat.Dense
	Y       *mat.Dense
	Columns []string
	Target  string
}

// New wraps pre-built matrices after checking their shapes.
func New(x, y *mat.Dense, columns []string, target string) (*Dataset, error) {
	xr, xc := x.Dims()
	yr, yc := y.Dims()
	if yc != 1 {
		return nil, fmt.Errorf("dataset: target must be one column, got %d", yc)
	}
	if xr != yr {
		return nil, fmt.Errorf("dataset: %d feature rows vs %d target rows", xr, yr)
	}
	if xr == 0 || xc == 0 {
		return nil, errors.New("dataset: empty data")
	}
	if len(columns) != xc {
		return nil, fmt.Errorf("dataset: %d column names for %d features", len(columns), xc)
	}
	return &Dataset{X: x, Y: y, Columns: columns, Target: target}, nil
}

// Len returns the sample count.
func (d *Dataset) Len() int {
	r, _ := d.X.Dims()
	return r
}

// Dim returns the feature count.
func (d *Dataset) Dim() int {
	_, c := d.X.Dims()
	return c
}

// TargetStats summarizes the target column.
type TargetStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// TargetStats computes mean, deviation and range of the target.
func (d *Dataset) TargetStats() TargetStats {
	n := d.Len()
	vals := make([]float64, n)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		v := d.Y.At(i, 0)
		vals[i] = v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean, std := stat.MeanStdDev(vals, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return TargetStats{Mean: mean, Std: std, Min: lo, Max: hi}
}

// Split partitions the rows into train and validation sets after a seeded
// shuffle. frac is the training share.
func (d *Dataset) Split(frac float64, seed int64) (train, val *Dataset, err error) {
	if frac <= 0 || frac >= 1 {
		return nil, nil, fmt.Errorf("dataset: train fraction %v out of (0,1)", frac)
	}
	n := d.Len()
	idx := rand.New(rand.NewSource(seed)).Perm(n)
	cut := int(float64(n) * frac)
	if cut == 0 || cut == n {
		return nil, nil, fmt.Errorf("dataset: split of %d rows at %v leaves an empty side", n, frac)
	}
	return d.subset(idx[:cut]), d.subset(idx[cut:]), nil
}

func (d *Dataset) subset(idx []int) *Dataset {
	dim := d.Dim()
	x := mat.NewDense(len(idx), dim, nil)
	y := mat.NewDense(len(idx), 1, nil)
	for to, from := range idx {
		for j := 0; j < dim; j++ {
			x.Set(to, j, d.X.At(from, j))
		}
		y.Set(to, 0, d.Y.At(from, 0))
	}
	return &Dataset{X: x, Y: y, Columns: d.Columns, Target: d.Target}
}

// Batch is one training slice.
type Batch struct {
	X *mat.Dense
	Y *mat.Dense
}

// Batches cuts the rows into batches of the given size. A non-nil rng
// shuffles the row order first; the tail batch may be short.
func (d *Dataset) Batches(size int, rng *rand.Rand) []Batch {
	n := d.Len()
	if size <= 0 || size > n {
		size = n
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if rng != nil {
		rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}
	var out []Batch
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		sub := d.subset(idx[start:end])
		out = append(out, Batch{X: sub.X, Y: sub.Y})
	}
	return out
}
