package dataset

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	content := "a,b,y\n1,2,3\n4,5,6\n7,8,9\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	d, err := LoadCSV(path, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if d.Len() != 3 || d.Dim() != 2 {
		t.Fatalf("got %dx%d, want 3x2", d.Len(), d.Dim())
	}
	if d.Target != "y" {
		t.Fatalf("target = %q, want y", d.Target)
	}
	if d.Y.At(1, 0) != 6 || d.X.At(2, 1) != 8 {
		t.Fatalf("values misplaced: y[1]=%v x[2,1]=%v", d.Y.At(1, 0), d.X.At(2, 1))
	}

	// explicit target in the middle of the header
	d, err = LoadCSV(path, "b")
	if err != nil {
		t.Fatalf("load with target b: %v", err)
	}
	if d.Y.At(0, 0) != 2 || d.X.At(0, 1) != 3 {
		t.Fatalf("middle target misparsed: y[0]=%v x[0,1]=%v", d.Y.At(0, 0), d.X.At(0, 1))
	}

	if _, err := LoadCSV(path, "missing"); err == nil {
		t.Fatalf("expected error for unknown target column")
	}
}

func TestLoadCSVRejectsRaggedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("a,y\n1,2\n3\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadCSV(path, ""); err == nil {
		t.Fatalf("expected error for ragged row")
	}
}

func TestScalerStandardizes(t *testing.T) {
	d, err := Synthetic(SynthLinear, 200, 3, 42)
	if err != nil {
		t.Fatalf("synthetic: %v", err)
	}
	scaler := FitScaler(d)
	scaled, err := scaler.Apply(d)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	n, dim := scaled.X.Dims()
	col := make([]float64, n)
	for j := 0; j < dim; j++ {
		mat.Col(col, j, scaled.X)
		var sum, sq float64
		for _, v := range col {
			sum += v
			sq += v * v
		}
		mean := sum / float64(n)
		if math.Abs(mean) > 1e-9 {
			t.Fatalf("column %d mean %v, want ~0", j, mean)
		}
		variance := sq/float64(n-1) - mean*mean*float64(n)/float64(n-1)
		if math.Abs(variance-1) > 1e-6 {
			t.Fatalf("column %d variance %v, want ~1", j, variance)
		}
	}

	if _, err := scaler.Transform(mat.NewDense(1, 2, nil)); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestSplitPartitions(t *testing.T) {
	d, err := Synthetic(SynthSine, 100, 2, 7)
	if err != nil {
		t.Fatalf("synthetic: %v", err)
	}
	train, val, err := d.Split(0.8, 1)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if train.Len() != 80 || val.Len() != 20 {
		t.Fatalf("split sizes %d/%d, want 80/20", train.Len(), val.Len())
	}
	if _, _, err := d.Split(1.5, 1); err == nil {
		t.Fatalf("expected error for out-of-range fraction")
	}
}

func TestBatchesCoverEveryRow(t *testing.T) {
	d, err := Synthetic(SynthHeteroscedastic, 25, 2, 3)
	if err != nil {
		t.Fatalf("synthetic: %v", err)
	}
	batches := d.Batches(10, rand.New(rand.NewSource(5)))
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	var total int
	for _, b := range batches {
		r, _ := b.X.Dims()
		total += r
	}
	if total != 25 {
		t.Fatalf("batches cover %d rows, want 25", total)
	}
	last, _ := batches[2].X.Dims()
	if last != 5 {
		t.Fatalf("tail batch has %d rows, want 5", last)
	}
}

func TestTargetStats(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{0, 0, 0, 0})
	y := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	d, err := New(x, y, []string{"x0"}, "y")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s := d.TargetStats()
	if s.Mean != 2.5 || s.Min != 1 || s.Max != 4 {
		t.Fatalf("stats %+v", s)
	}
	if math.Abs(s.Std-math.Sqrt(5.0/3.0)) > 1e-12 {
		t.Fatalf("std = %v", s.Std)
	}
}
